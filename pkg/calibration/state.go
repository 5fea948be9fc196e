package calibration

// State owns the four matrices of a calibration session. The zero value is
// not usable; create one with NewState.
type State struct {
	// live is the correction matrix, and the only one that is persisted.
	live Matrix
	// standard never changes.
	standard Matrix
	// baseline and reserved are snapshots of live taken at load time.
	baseline Matrix
	// reserved is not read by the offset computation.
	reserved Matrix
}

// NewState returns the state for a freshly loaded correction matrix.
func NewState(loaded Matrix) *State {
	return &State{
		live:     loaded,
		standard: StandardMatrix(),
		baseline: loaded,
		reserved: loaded,
	}
}

// Live returns the current correction matrix.
func (s *State) Live() Matrix { return s.live }

func (s *State) Standard() Matrix { return s.standard }

// Baseline returns the correction matrix as it was found at load time.
func (s *State) Baseline() Matrix { return s.baseline }

// Reserved returns the second load-time snapshot.
func (s *State) Reserved() Matrix { return s.reserved }

// Apply replaces the live correction matrix. The snapshots are left alone so
// that later computations in the same session still measure against the pose
// the robot booted with.
func (s *State) Apply(m Matrix) {
	s.live = m
}
