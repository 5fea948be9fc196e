package calibration

import (
	"fmt"
	"strings"

	"github.com/minipupper/mpct/pkg/leg"
)

const (
	Rows = leg.JointCount
	Cols = leg.Count

	// ServoLimit is the physical travel limit of a correction, in degrees.
	ServoLimit = 90
)

// Matrix is indexed [joint][leg].
type Matrix [Rows][Cols]int

// PerLeg is the transposed view of a Matrix, indexed [leg][joint].
type PerLeg [Cols][Rows]int

// DefaultMatrix is the correction matrix of a robot that was never calibrated.
func DefaultMatrix() Matrix {
	return Matrix{
		{0, 0, 0, 0},
		{45, 45, 45, 45},
		{-45, -45, -45, -45},
	}
}

// StandardMatrix is the reference pose every joint should read once the robot
// is correctly calibrated.
func StandardMatrix() Matrix {
	return Matrix{
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{-90, -90, -90, -90},
	}
}

// At returns the cell for joint j of leg id.
func (m Matrix) At(j leg.Joint, id leg.ID) int {
	return m[j][id]
}

// Column returns the (hip, thigh, calf) values of leg id.
func (m Matrix) Column(id leg.ID) [Rows]int {
	var col [Rows]int
	for r := 0; r < Rows; r++ {
		col[r] = m[r][id]
	}
	return col
}

// PerLeg transposes m into the [leg][joint] orientation.
func (m Matrix) PerLeg() PerLeg {
	var p PerLeg
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			p[c][r] = m[r][c]
		}
	}
	return p
}

// FromPerLeg transposes p back into the [joint][leg] orientation.
func FromPerLeg(p PerLeg) Matrix {
	var m Matrix
	for c := 0; c < Cols; c++ {
		for r := 0; r < Rows; r++ {
			m[r][c] = p[c][r]
		}
	}
	return m
}

func (m Matrix) String() string {
	var sb strings.Builder
	for r := 0; r < Rows; r++ {
		if r > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%v", m[r])
	}
	return sb.String()
}

func clamp(v, lo, hi int) int {
	if v > hi {
		return hi
	}
	if v < lo {
		return lo
	}
	return v
}
