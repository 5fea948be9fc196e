// Package leg holds the per-leg joint state an operator edits during a
// calibration session.
//
// Every value written to a Leg is clamped into the range of its joint, so a
// Leg can never hold an out-of-range value and no setter returns an error.
package leg

import "fmt"

// Joint identifies one of the three joints on a leg.
type Joint int

const (
	Hip Joint = iota
	Thigh
	Calf

	JointCount = 3
)

// Joints lists every joint in snapshot order.
var Joints = [JointCount]Joint{Hip, Thigh, Calf}

// Range is an inclusive [Min, Max] bound.
type Range struct {
	Min int
	Max int
}

// Clamp returns v limited to r.
func (r Range) Clamp(v int) int {
	if v > r.Max {
		return r.Max
	}
	if v < r.Min {
		return r.Min
	}
	return v
}

var jointRanges = [JointCount]Range{
	Hip:   {Min: -100, Max: 100},
	Thigh: {Min: -100, Max: 100},
	Calf:  {Min: -200, Max: 0},
}

// RangeOf returns the adjustment range of j.
func RangeOf(j Joint) Range {
	return jointRanges[j]
}

func (j Joint) String() string {
	switch j {
	case Hip:
		return "Hip"
	case Thigh:
		return "Thigh"
	case Calf:
		return "Calf"
	default:
		return fmt.Sprintf("Joint(%d)", int(j))
	}
}

// Valid reports whether j names a real joint.
func (j Joint) Valid() bool {
	return j >= Hip && j <= Calf
}

// ID identifies a physical leg. The value doubles as the column index in a
// correction matrix.
type ID int

const (
	LeftFront ID = iota
	RightFront
	LeftBack
	RightBack

	Count = 4
)

// IDs lists every leg in column order.
var IDs = [Count]ID{LeftFront, RightFront, LeftBack, RightBack}

type identity struct {
	name   string
	title  string
	accent string
}

var identities = [Count]identity{
	LeftFront:  {name: "left-front", title: "1: Left-Front", accent: "green"},
	RightFront: {name: "right-front", title: "2: Right-Front", accent: "blue"},
	LeftBack:   {name: "left-back", title: "3: Left-Back", accent: "green"},
	RightBack:  {name: "right-back", title: "4: Right-Back", accent: "blue"},
}

func (id ID) String() string {
	if !id.Valid() {
		return fmt.Sprintf("Leg(%d)", int(id))
	}
	return identities[id].name
}

// Valid reports whether id names a real leg.
func (id ID) Valid() bool {
	return id >= LeftFront && id <= RightBack
}

const (
	initialHip   = 0
	initialThigh = 0
	initialCalf  = -90
)

// Leg is the mutable joint state of one leg.
type Leg struct {
	id     ID
	values [JointCount]int
}

// New returns the leg identified by id in its session start pose.
func New(id ID) *Leg {
	l := &Leg{id: id}
	l.SetAll(initialHip, initialThigh, initialCalf)
	return l
}

// NewSet returns all four legs indexed by ID.
func NewSet() [Count]*Leg {
	var legs [Count]*Leg
	for _, id := range IDs {
		legs[id] = New(id)
	}
	return legs
}

func (l *Leg) ID() ID { return l.id }

func (l *Leg) Name() string { return identities[l.id].name }

func (l *Leg) Title() string { return identities[l.id].title }

// AccentColor is the display colour name used by frontends.
func (l *Leg) AccentColor() string { return identities[l.id].accent }

func (l *Leg) Hip() int { return l.values[Hip] }

func (l *Leg) Thigh() int { return l.values[Thigh] }

func (l *Leg) Calf() int { return l.values[Calf] }

// Joint returns the current value of j.
func (l *Leg) Joint(j Joint) int {
	return l.values[j]
}

// SetJoint stores v clamped into the range of j.
func (l *Leg) SetJoint(j Joint, v int) {
	l.values[j] = jointRanges[j].Clamp(v)
}

func (l *Leg) Increment(j Joint) {
	l.SetJoint(j, l.values[j]+1)
}

func (l *Leg) Decrement(j Joint) {
	l.SetJoint(j, l.values[j]-1)
}

// SetAll stores all three joints, each clamped independently.
func (l *Leg) SetAll(hip, thigh, calf int) {
	l.SetJoint(Hip, hip)
	l.SetJoint(Thigh, thigh)
	l.SetJoint(Calf, calf)
}

// Snapshot returns (hip, thigh, calf).
func (l *Leg) Snapshot() [JointCount]int {
	return l.values
}
