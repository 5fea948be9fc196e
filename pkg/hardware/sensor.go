package hardware

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/distatus/battery"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/minipupper/mpct/pkg/config"
)

// CurrentSensor reports the instantaneous current draw in µA.
type CurrentSensor interface {
	ReadCurrent() (int, error)
}

// NewCurrentSensor returns the sensor configured in c.
func NewCurrentSensor(c config.Config) (CurrentSensor, error) {
	switch c.CurrentSensor() {
	case config.CurrentSensorSysfs, "":
		return &SysfsCurrent{Path: c.CurrentSensorPath()}, nil
	case config.CurrentSensorBattery:
		return &BatteryCurrent{Index: c.BatteryIndex()}, nil
	default:
		return nil, pkgerrors.Errorf("unknown current sensor %q", c.CurrentSensor())
	}
}

// SysfsCurrent reads a power_supply current_now attribute.
type SysfsCurrent struct {
	Path string
}

func (s *SysfsCurrent) ReadCurrent() (int, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to read %s", s.Path)
	}

	v, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to parse current from %s", s.Path)
	}

	logrus.WithFields(logrus.Fields{
		"path":    s.Path,
		"current": v,
	}).Trace("Load current succeed")

	return v, nil
}

var getBattery = battery.Get

// BatteryCurrent derives current from the charge rate and voltage reported
// by the platform battery API.
type BatteryCurrent struct {
	Index int
}

func (s *BatteryCurrent) ReadCurrent() (int, error) {
	b, err := getBattery(s.Index)
	if err != nil {
		// Fields the current does not depend on may fail independently.
		var partial battery.ErrPartial
		if !errors.As(err, &partial) || partial.ChargeRate != nil || partial.Voltage != nil {
			return 0, pkgerrors.Wrapf(err, "failed to read battery %d", s.Index)
		}
	}
	if b == nil || b.Voltage <= 0 {
		return 0, pkgerrors.Errorf("battery %d reports no voltage", s.Index)
	}

	// mW / V = mA
	ua := int(b.ChargeRate / b.Voltage * 1000)

	logrus.WithFields(logrus.Fields{
		"battery":    s.Index,
		"chargeRate": b.ChargeRate,
		"voltage":    b.Voltage,
		"current":    ua,
	}).Trace("Load current succeed")

	return ua, nil
}
