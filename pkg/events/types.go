package events

import "encoding/json"

// Event name constants
const (
	GuardTripped  = "guard.tripped"
	GuardRestored = "guard.restored"
	GuardLimits   = "guard.limits"
)

// Event is a generic SSE event from the guard daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// GuardEvent is the typed payload of guard.tripped and guard.restored.
type GuardEvent struct {
	Tripped     bool   `json:"tripped"`
	Current     int    `json:"current"`
	HoldCounter int    `json:"holdCounter"`
	Reason      string `json:"reason,omitempty"`
	// Instance identifies the daemon run that published the event.
	Instance string `json:"instance"`
	Ts       int64  `json:"ts"`
}

// LimitsEvent is the typed payload of guard.limits.
type LimitsEvent struct {
	CurrentMax int    `json:"currentMax"`
	CounterMax int    `json:"counterMax"`
	Instance   string `json:"instance"`
	Ts         int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.GuardEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.Tripped, payload.Current)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
