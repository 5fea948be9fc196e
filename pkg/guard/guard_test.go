package guard

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSensor struct {
	mu      sync.Mutex
	current int
	err     error
}

func (s *fakeSensor) set(current int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current, s.err = current, err
}

func (s *fakeSensor) ReadCurrent() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.err
}

type fakeSwitch struct {
	mu        sync.Mutex
	powered   bool
	asserts   int
	deasserts int
	err       error
}

func (s *fakeSwitch) Assert() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asserts++
	if s.err != nil {
		return s.err
	}
	s.powered = true
	return nil
}

func (s *fakeSwitch) Deassert() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deasserts++
	if s.err != nil {
		return s.err
	}
	s.powered = false
	return nil
}

func newTestGuard(t *testing.T) (*Guard, *fakeSensor, *fakeSwitch) {
	t.Helper()
	sensor, sw := &fakeSensor{}, &fakeSwitch{powered: true}
	g, err := New(sensor, sw, DefaultLimits())
	require.NoError(t, err)
	return g, sensor, sw
}

func TestTripsOnHundredthSample(t *testing.T) {
	g, sensor, sw := newTestGuard(t)
	sensor.set(DefaultCurrentMax+1, nil)

	for i := 1; i < DefaultCounterMax; i++ {
		st, err := g.Tick()
		require.NoError(t, err)
		require.False(t, st.Tripped, "tripped after %d samples", i)
		require.Equal(t, i, st.HoldCounter)
	}
	assert.Equal(t, 0, sw.deasserts)

	st, err := g.Tick()
	require.NoError(t, err)
	assert.True(t, st.Tripped)
	assert.Equal(t, DefaultCounterMax, st.HoldCounter)
	assert.False(t, sw.powered)
	assert.Equal(t, 1, sw.deasserts)
}

func TestRecoversOnTenthSample(t *testing.T) {
	g, sensor, sw := newTestGuard(t)
	sensor.set(DefaultCurrentMax+1, nil)
	for i := 0; i < DefaultCounterMax; i++ {
		_, err := g.Tick()
		require.NoError(t, err)
	}
	require.True(t, g.Status().Tripped)

	sensor.set(DefaultCurrentMax, nil)
	for i := 1; i < DefaultCounterMax/DecayStep; i++ {
		st, err := g.Tick()
		require.NoError(t, err)
		require.True(t, st.Tripped, "recovered after %d samples", i)
		require.Equal(t, DefaultCounterMax-i*DecayStep, st.HoldCounter)
	}
	assert.False(t, sw.powered)

	st, err := g.Tick()
	require.NoError(t, err)
	assert.False(t, st.Tripped)
	assert.Equal(t, 0, st.HoldCounter)
	assert.True(t, sw.powered)
}

func TestCounterStaysInBounds(t *testing.T) {
	g, _, _ := newTestGuard(t)

	for i := 0; i < 3*DefaultCounterMax; i++ {
		st, err := g.Sample(DefaultCurrentMax * 2)
		require.NoError(t, err)
		require.LessOrEqual(t, st.HoldCounter, DefaultCounterMax)
	}
	for i := 0; i < 3*DefaultCounterMax; i++ {
		st, err := g.Sample(0)
		require.NoError(t, err)
		require.GreaterOrEqual(t, st.HoldCounter, 0)
	}
}

func TestInBoundsSampleKeepsPower(t *testing.T) {
	g, _, sw := newTestGuard(t)

	st, err := g.Sample(DefaultCurrentMax)
	require.NoError(t, err)
	assert.False(t, st.Tripped)
	assert.Equal(t, 0, st.HoldCounter)
	assert.Equal(t, 1, sw.asserts)
	assert.True(t, sw.powered)
}

func TestShortBurstDecays(t *testing.T) {
	g, _, sw := newTestGuard(t)

	for i := 0; i < 50; i++ {
		_, err := g.Sample(DefaultCurrentMax + 1)
		require.NoError(t, err)
	}
	st, err := g.Sample(0)
	require.NoError(t, err)
	assert.Equal(t, 40, st.HoldCounter)
	assert.False(t, st.Tripped)
	assert.Equal(t, 0, sw.deasserts)
}

func TestSensorFailureTrips(t *testing.T) {
	g, sensor, sw := newTestGuard(t)
	sensor.set(0, errors.New("i2c timeout"))

	var transitions []Status
	var reasons []string
	g.OnTransition(func(st Status, reason string) {
		transitions = append(transitions, st)
		reasons = append(reasons, reason)
	})

	st, err := g.Tick()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSensorUnavailable)
	assert.True(t, st.Tripped)
	assert.Equal(t, DefaultCounterMax, st.HoldCounter)
	assert.False(t, sw.powered)
	require.Len(t, transitions, 1)
	assert.True(t, transitions[0].Tripped)

	// A recovered sensor decays like any other trip.
	sensor.set(0, nil)
	for i := 0; i < DefaultCounterMax/DecayStep; i++ {
		_, err = g.Tick()
		require.NoError(t, err)
	}
	assert.False(t, g.Status().Tripped)
	assert.True(t, sw.powered)
	require.Len(t, transitions, 2)
	assert.False(t, transitions[1].Tripped)
	assert.Equal(t, []string{ReasonSensorFailure, ReasonRecovered}, reasons)
}

func TestLineFailureIsReported(t *testing.T) {
	g, _, sw := newTestGuard(t)
	sw.err = errors.New("gpio busy")

	for i := 0; i < DefaultCounterMax-1; i++ {
		_, err := g.Sample(DefaultCurrentMax + 1)
		require.NoError(t, err)
	}
	st, err := g.Sample(DefaultCurrentMax + 1)
	assert.Error(t, err)
	assert.True(t, st.Tripped)

	// Power cannot be confirmed back on, so the guard stays tripped.
	for i := 0; i < DefaultCounterMax/DecayStep; i++ {
		st, _ = g.Sample(0)
	}
	assert.True(t, st.Tripped)

	sw.err = nil
	st, err = g.Sample(0)
	require.NoError(t, err)
	assert.False(t, st.Tripped)
}

func TestReset(t *testing.T) {
	g, _, sw := newTestGuard(t)
	for i := 0; i < DefaultCounterMax; i++ {
		_, _ = g.Sample(DefaultCurrentMax + 1)
	}
	require.True(t, g.Status().Tripped)

	var reasons []string
	g.OnTransition(func(_ Status, reason string) { reasons = append(reasons, reason) })

	st, err := g.Reset()
	require.NoError(t, err)
	assert.False(t, st.Tripped)
	assert.Equal(t, 0, st.HoldCounter)
	assert.True(t, sw.powered)
	assert.Equal(t, []string{ReasonReset}, reasons)

	// Resetting a guard that is not tripped changes nothing.
	_, err = g.Reset()
	require.NoError(t, err)
	assert.Len(t, reasons, 1)
}

func TestSetLimits(t *testing.T) {
	g, _, _ := newTestGuard(t)

	assert.Error(t, g.SetLimits(Limits{CurrentMax: 0, CounterMax: 10}))
	assert.Error(t, g.SetLimits(Limits{CurrentMax: 10, CounterMax: -1}))

	require.NoError(t, g.SetLimits(Limits{CurrentMax: 100, CounterMax: 3}))
	for i := 0; i < 2; i++ {
		st, _ := g.Sample(101)
		require.False(t, st.Tripped)
	}
	st, _ := g.Sample(101)
	assert.True(t, st.Tripped)
	assert.Equal(t, Limits{CurrentMax: 100, CounterMax: 3}, st.Limits)
}

func TestNewRejectsInvalidLimits(t *testing.T) {
	_, err := New(&fakeSensor{}, &fakeSwitch{}, Limits{})
	assert.Error(t, err)
}
