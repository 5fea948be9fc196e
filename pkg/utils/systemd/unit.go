// Package systemd controls the services a calibration session has to pause
// and installs the guard daemon as a systemd unit.
package systemd

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

var runSystemctl = func(args ...string) error {
	var out bytes.Buffer
	cmd := exec.Command("systemctl", args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("systemctl %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(out.String()))
	}
	return nil
}

// Unit is a systemd service.
type Unit struct {
	Name string
}

// Units wraps names as units.
func Units(names []string) []Unit {
	units := make([]Unit, 0, len(names))
	for _, n := range names {
		units = append(units, Unit{Name: n})
	}
	return units
}

func (u Unit) Stop() error {
	logrus.WithField("unit", u.Name).Info("stopping service")
	return runSystemctl("stop", u.Name)
}

func (u Unit) Start() error {
	logrus.WithField("unit", u.Name).Info("starting service")
	return runSystemctl("start", u.Name)
}

// Active reports whether the unit is running. systemctl exits non-zero for
// inactive units, so any failure reads as inactive.
func (u Unit) Active() bool {
	return runSystemctl("is-active", "--quiet", u.Name) == nil
}
