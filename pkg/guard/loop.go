package guard

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultInterval is the sample period of the overload guard.
const DefaultInterval = 100 * time.Millisecond

// Runner ticks a Guard periodically until its context is cancelled.
type Runner struct {
	guard    *Guard
	interval time.Duration
	history  *SampleHistory

	// tickLock prevents a forced tick from racing the periodic one.
	tickLock sync.Mutex

	lastPrintTime time.Time
	lastStatus    Status
}

// NewRunner returns a runner sampling g every interval.
func NewRunner(g *Guard, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Runner{
		guard:    g,
		interval: interval,
		history:  NewSampleHistory(max(int(10*time.Second/interval), 10), interval),
	}
}

// Guard returns the guard driven by r.
func (r *Runner) Guard() *Guard {
	return r.guard
}

// History returns the recorded sample times.
func (r *Runner) History() *SampleHistory {
	return r.history
}

// Run samples the guard until ctx is done. Sensor and line errors are logged
// and do not stop the loop, since the guard has already failed safe.
func (r *Runner) Run(ctx context.Context) error {
	logrus.WithField("interval", r.interval).Debug("guard loop starts")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Debug("guard loop stopped")
			return nil
		case <-ticker.C:
			r.checkMissedSamples()
			r.history.AddRecordNow()
			_, _ = r.RunOnce()
		}
	}
}

// RunOnce takes a single sample outside the periodic schedule.
func (r *Runner) RunOnce() (Status, error) {
	r.tickLock.Lock()
	defer r.tickLock.Unlock()

	st, err := r.guard.Tick()
	if err != nil {
		logrus.WithError(err).Error("guard tick failed")
	}
	r.printStatus(st)
	return st, err
}

// checkMissedSamples reports stalls such as a suspended process, which leave
// the rail unguarded.
func (r *Runner) checkMissedSamples() bool {
	window := r.interval * 10
	if r.history.GetLastRecord().IsZero() {
		return false
	}

	got := r.history.GetRecordsIn(window)
	expected := int(window / r.interval)
	if got < expected-1 {
		logrus.WithFields(logrus.Fields{
			"samples":  got,
			"expected": expected,
			"last":     time.Since(r.history.GetLastRecord()).String(),
		}).Debug("possibly missed guard samples")
		return true
	}
	return false
}

func (r *Runner) printStatus(st Status) {
	fields := logrus.Fields{
		"current":     st.Current,
		"holdCounter": st.HoldCounter,
		"tripped":     st.Tripped,
	}

	defer func() { r.lastPrintTime = time.Now() }()

	// Skip debug output while consecutive samples stay the same.
	if time.Since(r.lastPrintTime) < time.Second && reflect.DeepEqual(r.lastStatus, st) {
		logrus.WithFields(fields).Trace("guard status")
		return
	}

	logrus.WithFields(fields).Debug("guard status")
	r.lastStatus = st
}
