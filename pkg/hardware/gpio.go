package hardware

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stianeikeland/go-rpio/v4"

	"github.com/minipupper/mpct/pkg/config"
)

// EnableLines drives both servo-rail enable outputs together.
type EnableLines interface {
	// Assert powers the servo rails.
	Assert() error
	// Deassert cuts servo rail power.
	Deassert() error
	Close() error
}

// NewEnableLines opens the enable outputs on pins with the given backend.
func NewEnableLines(backend string, pins [2]int) (EnableLines, error) {
	switch backend {
	case config.GPIOBackendSysfs, "":
		return OpenSysfsGPIO(DefaultGPIORoot, pins)
	case config.GPIOBackendRPIO:
		return OpenRPIO(pins)
	default:
		return nil, pkgerrors.Errorf("unknown gpio backend %q", backend)
	}
}

// DefaultGPIORoot is the legacy sysfs GPIO class directory.
const DefaultGPIORoot = "/sys/class/gpio"

// SysfsGPIO drives GPIO lines through /sys/class/gpio.
type SysfsGPIO struct {
	root string
	pins [2]int
}

// OpenSysfsGPIO exports pins as outputs under root if they are not already.
func OpenSysfsGPIO(root string, pins [2]int) (*SysfsGPIO, error) {
	g := &SysfsGPIO{root: root, pins: pins}
	for _, pin := range pins {
		if err := g.export(pin); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *SysfsGPIO) pinDir(pin int) string {
	return filepath.Join(g.root, fmt.Sprintf("gpio%d", pin))
}

func (g *SysfsGPIO) export(pin int) error {
	if _, err := os.Stat(g.pinDir(pin)); err == nil {
		return nil
	}

	logrus.WithField("pin", pin).Debug("exporting gpio")

	if err := writeSysfs(filepath.Join(g.root, "export"), strconv.Itoa(pin)); err != nil {
		return pkgerrors.Wrapf(err, "failed to export gpio%d", pin)
	}
	if err := writeSysfs(filepath.Join(g.pinDir(pin), "direction"), "out"); err != nil {
		return pkgerrors.Wrapf(err, "failed to set gpio%d direction", pin)
	}
	return nil
}

// set writes value to every pin. A failed pin does not stop the others, so a
// power cut reaches every rail that can still be written.
func (g *SysfsGPIO) set(value string) error {
	var errs []error
	for _, pin := range g.pins {
		path := filepath.Join(g.pinDir(pin), "value")

		logrus.WithFields(logrus.Fields{
			"pin": pin,
			"val": value,
		}).Trace("Trying to write gpio")

		if err := writeSysfs(path, value); err != nil {
			errs = append(errs, pkgerrors.Wrapf(err, "failed to write gpio%d", pin))
		}
	}
	return errors.Join(errs...)
}

func (g *SysfsGPIO) Assert() error {
	logrus.Tracef("Assert called")
	return g.set("1")
}

func (g *SysfsGPIO) Deassert() error {
	logrus.Tracef("Deassert called")
	return g.set("0")
}

// Close leaves the pins exported so their state survives the process.
func (g *SysfsGPIO) Close() error {
	return nil
}

func writeSysfs(path, value string) error {
	return os.WriteFile(path, []byte(value), 0644)
}

// rpioRefs counts open RPIO users; the memory mapping is shared process-wide.
var (
	rpioMu   sync.Mutex
	rpioRefs int

	rpioOpen  = rpio.Open
	rpioClose = rpio.Close
)

// RPIO drives GPIO lines through /dev/gpiomem with go-rpio.
type RPIO struct {
	pins   [2]rpio.Pin
	closed bool
}

// OpenRPIO maps GPIO memory and configures pins as outputs.
func OpenRPIO(pins [2]int) (*RPIO, error) {
	rpioMu.Lock()
	defer rpioMu.Unlock()

	if rpioRefs == 0 {
		if err := rpioOpen(); err != nil {
			return nil, pkgerrors.Wrap(err, "failed to open gpio memory")
		}
	}
	rpioRefs++

	r := &RPIO{pins: [2]rpio.Pin{rpio.Pin(pins[0]), rpio.Pin(pins[1])}}
	for _, p := range r.pins {
		p.Output()
	}
	return r, nil
}

func (r *RPIO) Assert() error {
	logrus.WithField("pins", r.pins).Trace("Assert called")
	for _, p := range r.pins {
		p.High()
	}
	return nil
}

func (r *RPIO) Deassert() error {
	logrus.WithField("pins", r.pins).Trace("Deassert called")
	for _, p := range r.pins {
		p.Low()
	}
	return nil
}

func (r *RPIO) Close() error {
	rpioMu.Lock()
	defer rpioMu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	rpioRefs--
	if rpioRefs == 0 {
		return rpioClose()
	}
	return nil
}
