package session

import "github.com/minipupper/mpct/pkg/leg"

// Action is what a key press asks the controller to do.
type Action int

const (
	ActionNone Action = iota
	ActionSelectLeg
	ActionSelectJoint
	ActionIncrement
	ActionDecrement
	ActionReset
	ActionWrite
	ActionQuit
	ActionConfirm
	ActionDiscard
	ActionBack
	ActionAbort
)

func (a Action) String() string {
	switch a {
	case ActionSelectLeg:
		return "select-leg"
	case ActionSelectJoint:
		return "select-joint"
	case ActionIncrement:
		return "increment"
	case ActionDecrement:
		return "decrement"
	case ActionReset:
		return "reset"
	case ActionWrite:
		return "write"
	case ActionQuit:
		return "quit"
	case ActionConfirm:
		return "confirm"
	case ActionDiscard:
		return "discard"
	case ActionBack:
		return "back"
	case ActionAbort:
		return "abort"
	default:
		return "none"
	}
}

// Key is a decoded key press.
type Key struct {
	Action Action
	Leg    leg.ID
	Joint  leg.Joint
}

// ParseKey decodes a key name as bubbletea spells it ("a", "up", "esc",
// "ctrl+c"). Unknown keys decode to ActionNone.
func ParseKey(name string) Key {
	switch name {
	case "1":
		return Key{Action: ActionSelectLeg, Leg: leg.LeftFront}
	case "2":
		return Key{Action: ActionSelectLeg, Leg: leg.RightFront}
	case "3":
		return Key{Action: ActionSelectLeg, Leg: leg.LeftBack}
	case "4":
		return Key{Action: ActionSelectLeg, Leg: leg.RightBack}
	case "h":
		return Key{Action: ActionSelectJoint, Joint: leg.Hip}
	case "t":
		return Key{Action: ActionSelectJoint, Joint: leg.Thigh}
	case "c":
		return Key{Action: ActionSelectJoint, Joint: leg.Calf}
	case "+", "=", "k", "up":
		return Key{Action: ActionIncrement}
	case "-", "j", "down":
		return Key{Action: ActionDecrement}
	case "r":
		return Key{Action: ActionReset}
	case "w":
		return Key{Action: ActionWrite}
	case "q":
		return Key{Action: ActionQuit}
	case "y":
		return Key{Action: ActionConfirm}
	case "n":
		return Key{Action: ActionDiscard}
	case "esc":
		return Key{Action: ActionBack}
	case "ctrl+c":
		return Key{Action: ActionAbort}
	default:
		return Key{Action: ActionNone}
	}
}

// HelpLines describes the key bindings of mode.
func HelpLines(mode Mode) []string {
	if mode == ModeReview {
		return []string{
			"y: write record   n: discard   esc: keep editing   ctrl+c: quit without writing",
		}
	}
	return []string{
		"1-4: select leg   h/t/c: select hip/thigh/calf   +/-, k/j, up/down: adjust",
		"r: reset to standard   w: review and write   q: review and quit   ctrl+c: quit without writing",
	}
}
