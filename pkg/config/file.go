package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/minipupper/mpct/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		HardwareVersionFile: ptr.To("/home/ubuntu/.hw_version"),
		RecordPath:          ptr.To("/sys/bus/nvmem/devices/3-00501/nvmem"),
		EnablePins:          []int{25, 21},
		AltMarker:           ptr.To("P1"),
		AltRecordPath:       ptr.To("/home/ubuntu/.nv_file"),
		AltEnablePins:       []int{19, 26},
		GPIOBackend:         ptr.To(GPIOBackendSysfs),
		CurrentSensor:       ptr.To(CurrentSensorSysfs),
		CurrentSensorPath:   ptr.To("/sys/class/power_supply/max1720x_battery/current_now"),
		BatteryIndex:        ptr.To(0),
		CurrentMax:          ptr.To(1500000),
		CounterMax:          ptr.To(100),
		GuardIntervalMillis: ptr.To(100),
		Services:            []string{"robot"},
		ServoDriver:         ptr.To(ServoDriverNone),
		ServoPort:           ptr.To("/dev/ttyAMA0"),
		ServoBaud:           ptr.To(115200),
		AllowNonRootAccess:  ptr.To(false),
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

type RawFileConfig struct {
	HardwareVersionFile *string  `json:"hardwareVersionFile,omitempty"`
	RecordPath          *string  `json:"recordPath,omitempty"`
	EnablePins          []int    `json:"enablePins,omitempty"`
	AltMarker           *string  `json:"altMarker,omitempty"`
	AltRecordPath       *string  `json:"altRecordPath,omitempty"`
	AltEnablePins       []int    `json:"altEnablePins,omitempty"`
	GPIOBackend         *string  `json:"gpioBackend,omitempty"`
	CurrentSensor       *string  `json:"currentSensor,omitempty"`
	CurrentSensorPath   *string  `json:"currentSensorPath,omitempty"`
	BatteryIndex        *int     `json:"batteryIndex,omitempty"`
	CurrentMax          *int     `json:"currentMax,omitempty"`
	CounterMax          *int     `json:"counterMax,omitempty"`
	GuardIntervalMillis *int     `json:"guardIntervalMillis,omitempty"`
	Services            []string `json:"services,omitempty"`
	ServoDriver         *string  `json:"servoDriver,omitempty"`
	ServoPort           *string  `json:"servoPort,omitempty"`
	ServoBaud           *int     `json:"servoBaud,omitempty"`
	AllowNonRootAccess  *bool    `json:"allowNonRootAccess,omitempty"`
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	pins := c.EnablePins()
	altPins := c.AltEnablePins()

	rawConfig := &RawFileConfig{
		HardwareVersionFile: ptr.To(c.HardwareVersionFile()),
		RecordPath:          ptr.To(c.RecordPath()),
		EnablePins:          pins[:],
		AltMarker:           ptr.To(c.AltMarker()),
		AltRecordPath:       ptr.To(c.AltRecordPath()),
		AltEnablePins:       altPins[:],
		GPIOBackend:         ptr.To(c.GPIOBackend()),
		CurrentSensor:       ptr.To(c.CurrentSensor()),
		CurrentSensorPath:   ptr.To(c.CurrentSensorPath()),
		BatteryIndex:        ptr.To(c.BatteryIndex()),
		CurrentMax:          ptr.To(c.CurrentMax()),
		CounterMax:          ptr.To(c.CounterMax()),
		GuardIntervalMillis: ptr.To(int(c.GuardInterval() / time.Millisecond)),
		Services:            c.Services(),
		ServoDriver:         ptr.To(c.ServoDriver()),
		ServoPort:           ptr.To(c.ServoPort()),
		ServoBaud:           ptr.To(c.ServoBaud()),
		AllowNonRootAccess:  ptr.To(c.AllowNonRootAccess()),
	}

	return rawConfig, nil
}

// get returns the field picked by sel from the file, or from the defaults
// when the file leaves it unset.
func get[T any](f *File, sel func(*RawFileConfig) *T) T {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if v := sel(f.c); v != nil {
		return *v
	}
	return *sel(defaultFileConfig)
}

func getPins(f *File, sel func(*RawFileConfig) []int) [2]int {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	pins := sel(f.c)
	if len(pins) != 2 {
		pins = sel(defaultFileConfig)
	}
	return [2]int{pins[0], pins[1]}
}

func (f *File) HardwareVersionFile() string {
	return get(f, func(c *RawFileConfig) *string { return c.HardwareVersionFile })
}

func (f *File) AltMarker() string {
	return get(f, func(c *RawFileConfig) *string { return c.AltMarker })
}

func (f *File) RecordPath() string {
	return get(f, func(c *RawFileConfig) *string { return c.RecordPath })
}

func (f *File) EnablePins() [2]int {
	return getPins(f, func(c *RawFileConfig) []int { return c.EnablePins })
}

func (f *File) AltRecordPath() string {
	return get(f, func(c *RawFileConfig) *string { return c.AltRecordPath })
}

func (f *File) AltEnablePins() [2]int {
	return getPins(f, func(c *RawFileConfig) []int { return c.AltEnablePins })
}

func (f *File) GPIOBackend() string {
	return get(f, func(c *RawFileConfig) *string { return c.GPIOBackend })
}

func (f *File) CurrentSensor() string {
	return get(f, func(c *RawFileConfig) *string { return c.CurrentSensor })
}

func (f *File) CurrentSensorPath() string {
	return get(f, func(c *RawFileConfig) *string { return c.CurrentSensorPath })
}

func (f *File) BatteryIndex() int {
	return get(f, func(c *RawFileConfig) *int { return c.BatteryIndex })
}

func (f *File) CurrentMax() int {
	return get(f, func(c *RawFileConfig) *int { return c.CurrentMax })
}

func (f *File) CounterMax() int {
	return get(f, func(c *RawFileConfig) *int { return c.CounterMax })
}

func (f *File) GuardInterval() time.Duration {
	ms := get(f, func(c *RawFileConfig) *int { return c.GuardIntervalMillis })
	return time.Duration(ms) * time.Millisecond
}

func (f *File) Services() []string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	// An explicit empty list means "stop nothing".
	if f.c.Services != nil {
		return append([]string(nil), f.c.Services...)
	}
	return append([]string(nil), defaultFileConfig.Services...)
}

func (f *File) ServoDriver() string {
	return get(f, func(c *RawFileConfig) *string { return c.ServoDriver })
}

func (f *File) ServoPort() string {
	return get(f, func(c *RawFileConfig) *string { return c.ServoPort })
}

func (f *File) ServoBaud() int {
	return get(f, func(c *RawFileConfig) *int { return c.ServoBaud })
}

func (f *File) AllowNonRootAccess() bool {
	return get(f, func(c *RawFileConfig) *bool { return c.AllowNonRootAccess })
}

func (f *File) SetCurrentMax(i int) {
	if f.c == nil {
		panic("config is nil")
	}

	if i <= 0 {
		panic("current max must be positive")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.CurrentMax = &i
}

func (f *File) SetCounterMax(i int) {
	if f.c == nil {
		panic("config is nil")
	}

	if i <= 0 {
		panic("counter max must be positive")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.CounterMax = &i
}

func (f *File) SetAllowNonRootAccess(a bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.AllowNonRootAccess = &a
}

// validate checks c without applying defaults to unset fields.
func validate(c *RawFileConfig) error {
	if c.CurrentMax != nil && *c.CurrentMax <= 0 {
		return pkgerrors.Errorf("currentMax must be positive, got %d", *c.CurrentMax)
	}
	if c.CounterMax != nil && *c.CounterMax <= 0 {
		return pkgerrors.Errorf("counterMax must be positive, got %d", *c.CounterMax)
	}
	if c.GuardIntervalMillis != nil && *c.GuardIntervalMillis <= 0 {
		return pkgerrors.Errorf("guardIntervalMillis must be positive, got %d", *c.GuardIntervalMillis)
	}
	if c.EnablePins != nil && len(c.EnablePins) != 2 {
		return pkgerrors.Errorf("enablePins must list exactly 2 pins, got %d", len(c.EnablePins))
	}
	if c.AltEnablePins != nil && len(c.AltEnablePins) != 2 {
		return pkgerrors.Errorf("altEnablePins must list exactly 2 pins, got %d", len(c.AltEnablePins))
	}
	if c.GPIOBackend != nil && *c.GPIOBackend != GPIOBackendSysfs && *c.GPIOBackend != GPIOBackendRPIO {
		return pkgerrors.Errorf("unknown gpioBackend %q", *c.GPIOBackend)
	}
	if c.CurrentSensor != nil && *c.CurrentSensor != CurrentSensorSysfs && *c.CurrentSensor != CurrentSensorBattery {
		return pkgerrors.Errorf("unknown currentSensor %q", *c.CurrentSensor)
	}
	if c.ServoDriver != nil && *c.ServoDriver != ServoDriverNone && *c.ServoDriver != ServoDriverSerial {
		return pkgerrors.Errorf("unknown servoDriver %q", *c.ServoDriver)
	}
	return nil
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using json.Decoder will
	// not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}
	configString := string(b)

	if strings.TrimSpace(configString) == "" {
		// If the file is empty, return the empty config.
		// Do not make f.c a nil.
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	if err := validate(&conf); err != nil {
		return pkgerrors.Wrapf(err, "invalid config in file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	return logrus.Fields{
		"hardwareVersionFile": f.HardwareVersionFile(),
		"recordPath":          f.RecordPath(),
		"enablePins":          f.EnablePins(),
		"altRecordPath":       f.AltRecordPath(),
		"altEnablePins":       f.AltEnablePins(),
		"gpioBackend":         f.GPIOBackend(),
		"currentSensor":       f.CurrentSensor(),
		"currentMax":          f.CurrentMax(),
		"counterMax":          f.CounterMax(),
		"guardInterval":       f.GuardInterval(),
		"services":            f.Services(),
		"servoDriver":         f.ServoDriver(),
	}
}
