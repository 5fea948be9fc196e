package calibration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minipupper/mpct/pkg/leg"
)

func fill(v int) Matrix {
	var m Matrix
	for r := range m {
		for c := range m[r] {
			m[r][c] = v
		}
	}
	return m
}

func fillPerLeg(v int) PerLeg {
	var p PerLeg
	for c := range p {
		for r := range p[c] {
			p[c][r] = v
		}
	}
	return p
}

func TestNewStateSnapshotsMatchLoaded(t *testing.T) {
	loaded := Matrix{{1, 2, 3, 4}, {5, 6, 7, 8}, {-9, -10, -11, -12}}
	st := NewState(loaded)

	assert.Equal(t, loaded, st.Live())
	assert.Equal(t, loaded, st.Baseline())
	assert.Equal(t, loaded, st.Reserved())
	assert.Equal(t, StandardMatrix(), st.Standard())
}

func TestComputeOffsetsOperatorAtReference(t *testing.T) {
	tests := []struct {
		name     string
		baseline Matrix
	}{
		{name: "zero baseline", baseline: Matrix{}},
		{name: "factory default baseline", baseline: DefaultMatrix()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := NewState(tt.baseline)
			// The reference pose equals the baseline, and the operator leaves
			// every joint at that reference.
			st.standard = tt.baseline
			values := st.standard.PerLeg()

			got := ComputeOffsets(st, values)
			// standard - standard + baseline leaves the correction unchanged.
			assert.Equal(t, tt.baseline, got)
		})
	}
}

func TestComputeOffsetsAllZero(t *testing.T) {
	st := NewState(Matrix{})
	st.standard = Matrix{}

	got := ComputeOffsets(st, PerLeg{})
	assert.Equal(t, Matrix{}, got)
}

func TestComputeOffsetsFormula(t *testing.T) {
	st := NewState(DefaultMatrix())
	values := PerLeg{
		{3, -4, -80},
		{0, 0, -90},
		{-10, 20, -100},
		{1, 1, -91},
	}

	got := ComputeOffsets(st, values)
	want := Matrix{
		{0 - 3 + 0, 0 - 0 + 0, 0 + 10 + 0, 0 - 1 + 0},
		{0 + 4 + 45, 0 - 0 + 45, 0 - 20 + 45, 0 - 1 + 45},
		{-90 + 80 - 45, -90 + 90 - 45, -90 + 100 - 45, -90 + 91 - 45},
	}
	assert.Equal(t, want, got)
}

func TestComputeOffsetsClamps(t *testing.T) {
	st := NewState(Matrix{})

	upper := ComputeOffsets(st, fillPerLeg(-1000))
	assert.Equal(t, fill(ServoLimit), upper)

	lower := ComputeOffsets(st, fillPerLeg(1000))
	assert.Equal(t, fill(-ServoLimit), lower)

	// Exactly at the limit is kept, one past it is clamped.
	edge := ComputeOffsets(st, PerLeg{{-90, -91, 0}, {90, 91, 0}, {}, {}})
	assert.Equal(t, 90, edge[0][0])
	assert.Equal(t, 90, edge[1][0])
	assert.Equal(t, -90, edge[0][1])
	assert.Equal(t, -90, edge[1][1])
}

func TestComputeOffsetsDoesNotMutate(t *testing.T) {
	loaded := DefaultMatrix()
	st := NewState(loaded)
	legs := leg.NewSet()
	legs[leg.LeftFront].SetAll(12, -30, -150)
	before := Snapshot(legs)

	_ = ComputeOffsets(st, before)

	assert.Equal(t, loaded, st.Live())
	assert.Equal(t, loaded, st.Baseline())
	assert.Equal(t, StandardMatrix(), st.Standard())
	assert.Equal(t, before, Snapshot(legs))
}

func TestApplyKeepsSnapshots(t *testing.T) {
	st := NewState(DefaultMatrix())
	next := fill(7)
	st.Apply(next)

	assert.Equal(t, next, st.Live())
	assert.Equal(t, DefaultMatrix(), st.Baseline())
	assert.Equal(t, DefaultMatrix(), st.Reserved())
}

func TestResetToStandard(t *testing.T) {
	st := NewState(DefaultMatrix())
	legs := leg.NewSet()
	legs[leg.LeftFront].SetAll(100, -100, -200)
	legs[leg.RightFront].SetAll(-5, 6, -7)
	legs[leg.RightBack].Increment(leg.Hip)

	ResetToStandard(st, legs)

	for _, l := range legs {
		assert.Equal(t, st.Standard().Column(l.ID()), l.Snapshot(), l.Name())
	}
	assert.Equal(t, DefaultMatrix(), st.Live())
}

func TestTransposeRoundTrip(t *testing.T) {
	m := Matrix{{1, 2, 3, 4}, {5, 6, 7, 8}, {9, 10, 11, 12}}
	p := m.PerLeg()

	require.Equal(t, [Rows]int{2, 6, 10}, p[leg.RightFront])
	require.Equal(t, m.Column(leg.LeftBack), p[leg.LeftBack])
	assert.Equal(t, m, FromPerLeg(p))
	assert.Equal(t, 7, m.At(leg.Thigh, leg.LeftBack))
}

func TestPreviewAngles(t *testing.T) {
	st := NewState(DefaultMatrix())
	values := PerLeg{{1, 2, -3}, {}, {}, {0, 0, -90}}

	got := PreviewAngles(st, values)
	assert.Equal(t, 1.0, got[leg.Hip][leg.LeftFront])
	assert.Equal(t, 2.0, got[leg.Thigh][leg.LeftFront])
	assert.Equal(t, -3.0, got[leg.Calf][leg.LeftFront])
	assert.Equal(t, -90.0, got[leg.Calf][leg.RightBack])
}

func TestMatrixString(t *testing.T) {
	assert.Equal(t, "[0 0 0 0]\n[45 45 45 45]\n[-45 -45 -45 -45]", DefaultMatrix().String())
}
