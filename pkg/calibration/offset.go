package calibration

import "github.com/minipupper/mpct/pkg/leg"

// ComputeOffsets turns the operator's dialed joint values (indexed
// [leg][joint]) into a candidate correction matrix:
//
//	angle[r][c] = standard[r][c] - values[c][r] + baseline[r][c]
//
// clamped to ±ServoLimit. The operator's adjustment range is wider than the
// servo travel, so the clamp applies here and not in the leg entity.
//
// Nothing in st is modified. Committing the result is up to the caller.
func ComputeOffsets(st *State, values PerLeg) Matrix {
	var angle Matrix
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			v := st.standard[r][c] - values[c][r] + st.baseline[r][c]
			angle[r][c] = clamp(v, -ServoLimit, ServoLimit)
		}
	}
	return angle
}

// Snapshot collects the current values of legs into the [leg][joint] view.
func Snapshot(legs [leg.Count]*leg.Leg) PerLeg {
	var p PerLeg
	for _, l := range legs {
		p[l.ID()] = l.Snapshot()
	}
	return p
}

// ResetToStandard drives every leg back to its column of the standard
// matrix. Persisted calibration is not touched.
func ResetToStandard(st *State, legs [leg.Count]*leg.Leg) {
	for _, l := range legs {
		col := st.standard.Column(l.ID())
		l.SetAll(col[leg.Hip], col[leg.Thigh], col[leg.Calf])
	}
}

// PreviewAngles returns the joint angles, in degrees and indexed
// [joint][leg], that make the servos show the operator's dialed pose.
func PreviewAngles(st *State, values PerLeg) [Rows][Cols]float64 {
	var out [Rows][Cols]float64
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			drift := st.baseline[r][c] - st.reserved[r][c]
			out[r][c] = float64(values[c][r] - drift)
		}
	}
	return out
}
