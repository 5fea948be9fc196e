package session

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/eiannone/keyboard"
	"github.com/fatih/color"
	pkgerrors "github.com/pkg/errors"

	"github.com/minipupper/mpct/pkg/calibration"
	"github.com/minipupper/mpct/pkg/leg"
)

// TickInterval is the longest a frontend waits for a key before ticking.
const TickInterval = 100 * time.Millisecond

// Keyboard reads raw key presses from the terminal.
type Keyboard struct {
	keys chan string
	quit chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// OpenKeyboard puts the terminal in raw mode and starts reading keys.
func OpenKeyboard() (*Keyboard, error) {
	events, err := keyboard.GetKeys(16)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to open keyboard")
	}

	k := &Keyboard{
		keys: make(chan string, 16),
		quit: make(chan struct{}),
	}
	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		defer close(k.keys)
		for {
			select {
			case <-k.quit:
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if ev.Err != nil {
					continue
				}
				name := keyName(ev.Rune, ev.Key)
				if name == "" {
					continue
				}
				select {
				case k.keys <- name:
				case <-k.quit:
					return
				}
			}
		}
	}()
	return k, nil
}

// Keys returns key names as ParseKey expects them. The channel is closed
// by Close.
func (k *Keyboard) Keys() <-chan string { return k.keys }

func (k *Keyboard) Close() error {
	var err error
	k.once.Do(func() {
		close(k.quit)
		err = keyboard.Close()
		k.wg.Wait()
	})
	return err
}

func keyName(r rune, key keyboard.Key) string {
	switch key {
	case keyboard.KeyArrowUp:
		return "up"
	case keyboard.KeyArrowDown:
		return "down"
	case keyboard.KeyEsc:
		return "esc"
	case keyboard.KeyCtrlC:
		return "ctrl+c"
	case 0:
		if r == 0 {
			return ""
		}
		return string(r)
	default:
		return ""
	}
}

// RunPlain drives c from keys until the session ends, printing a status line
// to out whenever it changes.
func RunPlain(ctx context.Context, c *Controller, keys <-chan string, out io.Writer) error {
	timer := time.NewTimer(TickInterval)
	defer timer.Stop()

	last := ""
	for !c.Done() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case name, ok := <-keys:
			if !ok {
				return pkgerrors.New("keyboard closed")
			}
			c.HandleKey(name)
		case <-timer.C:
		}

		c.Tick()

		if s := RenderPlain(c); s != last {
			if _, err := fmt.Fprint(out, s); err != nil {
				return pkgerrors.Wrap(err, "failed to write status")
			}
			last = s
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(TickInterval)
	}
	return nil
}

var (
	accentColors = map[string]*color.Color{
		"green": color.New(color.FgGreen),
		"blue":  color.New(color.FgBlue),
	}
	selectedColor = color.New(color.Bold, color.ReverseVideo)
	warnColor     = color.New(color.FgYellow)
	errColor      = color.New(color.FgRed, color.Bold)
	okColor       = color.New(color.FgGreen)
)

// RenderPlain returns the plain-terminal view of c, ending in a newline.
func RenderPlain(c *Controller) string {
	var b strings.Builder

	if c.Mode() == ModeReview {
		b.WriteString("candidate correction matrix:\n")
		for _, row := range matrixRows(c.Candidate()) {
			b.WriteString(row)
			b.WriteString("\n")
		}
	} else {
		selLeg, selJoint := c.Selected()
		for _, l := range c.Legs() {
			name := l.Title()
			if cc, ok := accentColors[l.AccentColor()]; ok {
				name = cc.Sprint(name)
			}
			fmt.Fprintf(&b, "%s:", name)
			for _, j := range leg.Joints {
				v := fmt.Sprintf("%s=%d", j, l.Joint(j))
				if l.ID() == selLeg && j == selJoint {
					v = selectedColor.Sprint(v)
				}
				fmt.Fprintf(&b, " %s", v)
			}
			b.WriteString("  ")
		}
		b.WriteString("\n")
	}

	st := c.GuardStatus()
	if st.Tripped {
		b.WriteString(warnColor.Sprintf("servo power cut (hold %d/%d)", st.HoldCounter, st.Limits.CounterMax))
		b.WriteString("\n")
	}
	if err := c.Err(); err != nil {
		b.WriteString(errColor.Sprint(err.Error()))
		b.WriteString("\n")
	}
	if msg := c.Message(); msg != "" {
		b.WriteString(okColor.Sprint(msg))
		b.WriteString("\n")
	}
	for _, h := range HelpLines(c.Mode()) {
		b.WriteString(h)
		b.WriteString("\n")
	}
	return b.String()
}

// matrixRows renders m as a header and one labelled row per joint.
func matrixRows(m calibration.Matrix) []string {
	rows := make([]string, 0, calibration.Rows+1)
	rows = append(rows, "        LF   RF   LB   RB")
	for _, j := range leg.Joints {
		var cells []string
		for _, id := range leg.IDs {
			cells = append(cells, fmt.Sprintf("%4d", m.At(j, id)))
		}
		rows = append(rows, fmt.Sprintf("%-5s %s", j, strings.Join(cells, " ")))
	}
	return rows
}
