package systemd

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

//go:embed mpct-guard.service
var unitTemplate string

// GuardUnitName is the unit that runs the overload guard daemon.
const GuardUnitName = "mpct-guard.service"

var (
	unitDir    = "/etc/systemd/system"
	executable = os.Executable
)

func unitPath() string {
	return filepath.Join(unitDir, GuardUnitName)
}

// RenderUnit returns the guard unit file for the binary at exePath.
func RenderUnit(exePath string) string {
	return strings.ReplaceAll(unitTemplate, "/path/to/mpct", exePath)
}

// Install writes the guard unit for the running binary, then enables and
// starts it.
func Install() error {
	exePath, err := executable()
	if err != nil {
		return fmt.Errorf("failed to get the path to the current executable: %w", err)
	}
	exePath, err = filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the current executable: %w", err)
	}

	logrus.Infof("current executable path: %s", exePath)

	if err := os.MkdirAll(unitDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", unitDir, err)
	}

	path := unitPath()
	if _, err := os.Stat(path); err == nil {
		logrus.Warnf("%s already exists, overwriting", path)
	}

	logrus.Infof("writing systemd unit to %s", path)

	if err := os.WriteFile(path, []byte(RenderUnit(exePath)), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	if err := runSystemctl("daemon-reload"); err != nil {
		return err
	}

	logrus.Infof("starting %s", GuardUnitName)

	return runSystemctl("enable", "--now", GuardUnitName)
}

// Uninstall stops, disables and removes the guard unit.
func Uninstall() error {
	logrus.Infof("stopping %s", GuardUnitName)

	if err := runSystemctl("disable", "--now", GuardUnitName); err != nil {
		return fmt.Errorf("%w. Are you root?", err)
	}

	logrus.Infof("removing systemd unit")

	path := unitPath()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove %s: %w. Are you root?", path, err)
	}

	return runSystemctl("daemon-reload")
}
