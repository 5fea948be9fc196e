// Package guard protects the servo power rail from sustained overcurrent.
//
// A Guard keeps a single hold counter. Every over-limit sample adds one and
// every in-bounds sample subtracts DecayStep, so tripping needs CounterMax
// consecutive over-limit samples while recovery from a full counter needs
// only CounterMax/DecayStep in-bounds samples. Power is cut when the counter
// reaches CounterMax and restored when it decays to zero.
package guard

import (
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultCurrentMax = 1500000
	DefaultCounterMax = 100
	DecayStep         = 10
)

// ErrSensorUnavailable is returned by Tick when the current cannot be read.
// The guard trips when this happens.
var ErrSensorUnavailable = pkgerrors.New("current sensor unavailable")

// Sensor reports the instantaneous current draw.
type Sensor interface {
	ReadCurrent() (int, error)
}

// Switch drives the servo rail enable lines.
type Switch interface {
	Assert() error
	Deassert() error
}

// Limits are the trip thresholds of a Guard.
type Limits struct {
	// CurrentMax is the highest in-bounds reading, in sensor units.
	CurrentMax int `json:"currentMax"`
	// CounterMax is the number of consecutive over-limit samples that trip.
	CounterMax int `json:"counterMax"`
}

// DefaultLimits returns the factory thresholds.
func DefaultLimits() Limits {
	return Limits{CurrentMax: DefaultCurrentMax, CounterMax: DefaultCounterMax}
}

func (l Limits) validate() error {
	if l.CurrentMax <= 0 {
		return pkgerrors.Errorf("current max must be positive, got %d", l.CurrentMax)
	}
	if l.CounterMax <= 0 {
		return pkgerrors.Errorf("counter max must be positive, got %d", l.CounterMax)
	}
	return nil
}

// Status is a snapshot of the guard after a sample.
type Status struct {
	Current     int    `json:"current"`
	HoldCounter int    `json:"holdCounter"`
	Tripped     bool   `json:"tripped"`
	Limits      Limits `json:"limits"`
}

// Transition reasons passed to TransitionFunc.
const (
	ReasonOvercurrent   = "overcurrent"
	ReasonRecovered     = "recovered"
	ReasonSensorFailure = "sensor failure"
	ReasonReset         = "reset"
)

// TransitionFunc is called after the guard trips or recovers, with the
// reason for the change.
type TransitionFunc func(st Status, reason string)

// Guard is safe for concurrent use so that status can be read while another
// goroutine ticks it.
type Guard struct {
	mu sync.Mutex

	sensor Sensor
	lines  Switch
	limits Limits

	counter     int
	tripped     bool
	lastCurrent int

	onTransition TransitionFunc
}

// New returns a guard in the Normal state. It does not touch the enable lines
// until the first sample.
func New(sensor Sensor, lines Switch, limits Limits) (*Guard, error) {
	if err := limits.validate(); err != nil {
		return nil, err
	}
	return &Guard{
		sensor: sensor,
		lines:  lines,
		limits: limits,
	}, nil
}

// OnTransition registers fn to be called on every trip and recovery. fn runs
// with the guard unlocked.
func (g *Guard) OnTransition(fn TransitionFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onTransition = fn
}

// Tick reads the sensor once and advances the state machine. A failed read
// cuts power and is reported together with the tripped status.
func (g *Guard) Tick() (Status, error) {
	current, err := g.sensor.ReadCurrent()
	if err != nil {
		return g.failSafe(err)
	}
	return g.Sample(current)
}

// Sample advances the state machine with an already read current.
func (g *Guard) Sample(current int) (Status, error) {
	g.mu.Lock()

	wasTripped := g.tripped
	g.lastCurrent = current

	var err error
	if current > g.limits.CurrentMax {
		g.counter++
		if g.counter >= g.limits.CounterMax {
			g.counter = g.limits.CounterMax
			// Power is considered cut even if the write failed, so the
			// caller keeps treating the rail as unsafe.
			g.tripped = true
			err = pkgerrors.Wrap(g.lines.Deassert(), "failed to cut servo power")
		}
	} else {
		g.counter -= DecayStep
		if g.counter <= 0 {
			g.counter = 0
			err = pkgerrors.Wrap(g.lines.Assert(), "failed to restore servo power")
			if err == nil {
				g.tripped = false
			}
		}
	}

	st := g.statusLocked()
	fn := g.onTransition
	g.mu.Unlock()

	if st.Tripped != wasTripped {
		logTransition(st)
		reason := ReasonRecovered
		if st.Tripped {
			reason = ReasonOvercurrent
		}
		if fn != nil {
			fn(st, reason)
		}
	}

	return st, err
}

func (g *Guard) failSafe(cause error) (Status, error) {
	g.mu.Lock()

	wasTripped := g.tripped
	g.counter = g.limits.CounterMax
	g.tripped = true
	err := pkgerrors.Wrapf(ErrSensorUnavailable, "%v", cause)
	if derr := g.lines.Deassert(); derr != nil {
		err = pkgerrors.Wrapf(err, "failed to cut servo power: %v", derr)
	}

	st := g.statusLocked()
	fn := g.onTransition
	g.mu.Unlock()

	logrus.WithError(cause).Error("current sensor read failed, servo power cut")
	if !wasTripped && fn != nil {
		fn(st, ReasonSensorFailure)
	}

	return st, err
}

// Reset forces the guard back to Normal and restores power.
func (g *Guard) Reset() (Status, error) {
	g.mu.Lock()

	wasTripped := g.tripped
	g.counter = 0
	err := pkgerrors.Wrap(g.lines.Assert(), "failed to restore servo power")
	if err == nil {
		g.tripped = false
	}

	st := g.statusLocked()
	fn := g.onTransition
	g.mu.Unlock()

	logrus.WithField("tripped", st.Tripped).Info("overload guard reset")
	if st.Tripped != wasTripped && fn != nil {
		fn(st, ReasonReset)
	}

	return st, err
}

// SetLimits replaces the thresholds. The hold counter is kept.
func (g *Guard) SetLimits(l Limits) error {
	if err := l.validate(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.limits = l
	return nil
}

// Status returns the state after the most recent sample.
func (g *Guard) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusLocked()
}

func (g *Guard) statusLocked() Status {
	return Status{
		Current:     g.lastCurrent,
		HoldCounter: g.counter,
		Tripped:     g.tripped,
		Limits:      g.limits,
	}
}

func logTransition(st Status) {
	fields := logrus.Fields{
		"current":     st.Current,
		"holdCounter": st.HoldCounter,
		"currentMax":  st.Limits.CurrentMax,
		"counterMax":  st.Limits.CounterMax,
	}
	if st.Tripped {
		logrus.WithFields(fields).Warn("sustained overcurrent, servo power cut")
		return
	}
	logrus.WithFields(fields).Info("current back in bounds, servo power restored")
}
