package config

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Config is the runtime configuration shared by the calibration session and
// the guard daemon.
type Config interface {
	// HardwareVersionFile is the one-line marker that selects a profile.
	HardwareVersionFile() string
	// AltMarker is the marker value that selects the alternate profile.
	AltMarker() string
	RecordPath() string
	EnablePins() [2]int
	AltRecordPath() string
	AltEnablePins() [2]int

	GPIOBackend() string
	CurrentSensor() string
	CurrentSensorPath() string
	BatteryIndex() int
	CurrentMax() int
	CounterMax() int
	GuardInterval() time.Duration

	// Services are stopped for the duration of a calibration session.
	Services() []string

	ServoDriver() string
	ServoPort() string
	ServoBaud() int

	AllowNonRootAccess() bool

	SetCurrentMax(int)
	SetCounterMax(int)
	SetAllowNonRootAccess(bool)

	LogrusFields() logrus.Fields

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}

const (
	GPIOBackendSysfs = "sysfs"
	GPIOBackendRPIO  = "rpio"

	CurrentSensorSysfs   = "sysfs"
	CurrentSensorBattery = "battery"

	ServoDriverNone   = "none"
	ServoDriverSerial = "serial"
)
