// Package session runs one interactive calibration: the operator dials each
// joint to its reference pose, reviews the resulting correction matrix and
// writes it to the calibration record.
package session

import (
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/minipupper/mpct/pkg/calibration"
	"github.com/minipupper/mpct/pkg/guard"
	"github.com/minipupper/mpct/pkg/leg"
	"github.com/minipupper/mpct/pkg/servo"
)

// Mode is the input mode of a session.
type Mode int

const (
	// ModeEdit accepts joint adjustments.
	ModeEdit Mode = iota
	// ModeReview shows a candidate matrix and waits for confirmation.
	ModeReview
)

func (m Mode) String() string {
	if m == ModeReview {
		return "review"
	}
	return "edit"
}

// SaveFunc persists a correction matrix.
type SaveFunc func(m calibration.Matrix) error

// Options configure a Controller.
type Options struct {
	// Loaded is the correction matrix the record held at startup, or the
	// factory default.
	Loaded calibration.Matrix
	Save   SaveFunc
	// Guard is ticked on every Tick. Optional.
	Guard *guard.Guard
	// Driver receives the preview pose on every Tick. Optional.
	Driver servo.Driver
}

// Controller owns the calibration state and the four legs of a session.
// It is not safe for concurrent use; frontends drive it from one loop.
type Controller struct {
	id     uuid.UUID
	log    *logrus.Entry
	state  *calibration.State
	legs   [leg.Count]*leg.Leg
	save   SaveFunc
	guard  *guard.Guard
	driver servo.Driver

	selLeg   leg.ID
	selJoint leg.Joint

	mode           Mode
	candidate      calibration.Matrix
	quitAfterWrite bool

	calibrated  bool
	done        bool
	guardStatus guard.Status
	err         error
	message     string
}

// New returns a controller in edit mode with every leg at its start pose.
func New(opts Options) *Controller {
	id := uuid.New()
	driver := opts.Driver
	if driver == nil {
		driver = servo.Nop{}
	}

	c := &Controller{
		id:     id,
		log:    logrus.WithField("session", id.String()),
		state:  calibration.NewState(opts.Loaded),
		legs:   leg.NewSet(),
		save:   opts.Save,
		guard:  opts.Guard,
		driver: driver,
	}
	c.log.WithField("live", c.state.Live().String()).Debug("session started")
	return c
}

func (c *Controller) ID() uuid.UUID { return c.id }

func (c *Controller) State() *calibration.State { return c.state }

func (c *Controller) Legs() [leg.Count]*leg.Leg { return c.legs }

// Selected returns the leg and joint adjusted by the next increment.
func (c *Controller) Selected() (leg.ID, leg.Joint) { return c.selLeg, c.selJoint }

func (c *Controller) Mode() Mode { return c.mode }

// Candidate is the matrix under review. It is only meaningful in ModeReview.
func (c *Controller) Candidate() calibration.Matrix { return c.candidate }

// Calibrated reports whether a matrix has been written this session.
func (c *Controller) Calibrated() bool { return c.calibrated }

// Done reports whether the session has ended.
func (c *Controller) Done() bool { return c.done }

func (c *Controller) GuardStatus() guard.Status { return c.guardStatus }

// Err is the last error surfaced to the operator, cleared by the next key.
func (c *Controller) Err() error { return c.err }

// Message is the last informational line surfaced to the operator.
func (c *Controller) Message() string { return c.message }

// HandleKey applies one key press by name.
func (c *Controller) HandleKey(name string) {
	c.Handle(ParseKey(name))
}

// Handle applies one decoded key. Keys that do not apply in the current mode
// are ignored.
func (c *Controller) Handle(k Key) {
	if c.done || k.Action == ActionNone {
		return
	}
	c.err = nil

	if k.Action == ActionAbort {
		c.log.Info("session aborted without writing")
		c.done = true
		return
	}

	switch c.mode {
	case ModeEdit:
		c.handleEdit(k)
	case ModeReview:
		c.handleReview(k)
	}
}

func (c *Controller) handleEdit(k Key) {
	switch k.Action {
	case ActionSelectLeg:
		c.selLeg = k.Leg
		c.message = ""
	case ActionSelectJoint:
		c.selJoint = k.Joint
		c.message = ""
	case ActionIncrement:
		c.legs[c.selLeg].Increment(c.selJoint)
	case ActionDecrement:
		c.legs[c.selLeg].Decrement(c.selJoint)
	case ActionReset:
		calibration.ResetToStandard(c.state, c.legs)
		c.message = "all legs reset to standard"
		c.log.Debug("legs reset to standard")
	case ActionWrite:
		c.review(false)
	case ActionQuit:
		c.review(true)
	}
}

func (c *Controller) handleReview(k Key) {
	switch k.Action {
	case ActionConfirm:
		c.commit()
	case ActionDiscard:
		c.mode = ModeEdit
		c.candidate = calibration.Matrix{}
		if c.quitAfterWrite {
			c.log.Info("candidate discarded, quitting")
			c.done = true
			return
		}
		c.message = "candidate discarded"
	case ActionBack:
		c.mode = ModeEdit
		c.message = ""
	}
}

func (c *Controller) review(quit bool) {
	c.candidate = calibration.ComputeOffsets(c.state, calibration.Snapshot(c.legs))
	c.quitAfterWrite = quit
	c.mode = ModeReview
	c.message = ""
	c.log.WithField("candidate", c.candidate.String()).Debug("candidate computed")
}

// commit writes the candidate. On failure the session stays in review so the
// operator can retry.
func (c *Controller) commit() {
	if c.save == nil {
		c.err = pkgerrors.New("no calibration record configured")
		return
	}
	if err := c.save(c.candidate); err != nil {
		c.err = pkgerrors.Wrap(err, "failed to write calibration record")
		c.log.WithError(err).Error("failed to write calibration record")
		return
	}

	c.state.Apply(c.candidate)
	c.calibrated = true
	c.mode = ModeEdit
	c.message = "calibration written"
	c.log.WithField("live", c.state.Live().String()).Info("calibration written")

	if c.quitAfterWrite {
		c.done = true
	}
}

// Tick samples the overload guard and pushes the preview pose to the servo
// driver. Frontends call it about every 100 ms.
func (c *Controller) Tick() {
	if c.guard != nil {
		st, err := c.guard.Tick()
		c.guardStatus = st
		if err != nil {
			c.err = err
		}
	}

	angles := servo.Angles(c.state, calibration.Snapshot(c.legs))
	if err := c.driver.Apply(c.state.Live(), angles); err != nil {
		c.log.WithError(err).Warn("failed to apply servo preview")
		c.err = err
	}
}
