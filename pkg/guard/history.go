package guard

import (
	"sync"
	"time"
)

// SampleHistory records the times of the last N guard samples.
type SampleHistory struct {
	MaxRecordCount int
	Times          []time.Time
	interval       time.Duration
	mu             *sync.Mutex
}

// NewSampleHistory returns a history expecting one record per interval.
func NewSampleHistory(maxRecordCount int, interval time.Duration) *SampleHistory {
	return &SampleHistory{
		MaxRecordCount: maxRecordCount,
		Times:          make([]time.Time, 0),
		interval:       interval,
		mu:             &sync.Mutex{},
	}
}

// AddRecordNow adds a new record with the current time.
func (h *SampleHistory) AddRecordNow() {
	h.AddRecord(time.Now())
}

// AddRecord adds a new record.
func (h *SampleHistory) AddRecord(t time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Strip monotonic clock reading so suspended time counts.
	t = t.Round(0)

	if len(h.Times) >= h.MaxRecordCount {
		h.Times = h.Times[1:]
	}
	h.Times = append(h.Times, t)
}

// ClearRecords clears all records.
func (h *SampleHistory) ClearRecords() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.Times = make([]time.Time, 0)
}

// GetRecordsIn returns the number of continuous records in the last duration.
// Two adjacent records are continuous when they are less than one interval
// plus a grace period apart.
func (h *SampleHistory) GetRecordsIn(last time.Duration) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	gap := h.interval + h.grace()

	if len(h.Times) > 0 && time.Since(h.Times[len(h.Times)-1]) >= gap {
		return 0
	}

	count := 0
	for i := len(h.Times) - 1; i >= 0; i-- {
		record := h.Times[i]
		if time.Since(record) > last {
			break
		}

		after := record
		if i+1 < len(h.Times) {
			after = h.Times[i+1]
		}
		if after.Sub(record) >= gap {
			break
		}
		count++
	}

	return count
}

// GetLastRecord returns the last record.
func (h *SampleHistory) GetLastRecord() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.Times) == 0 {
		return time.Time{}
	}
	return h.Times[len(h.Times)-1]
}

func (h *SampleHistory) grace() time.Duration {
	return h.interval / 2
}
