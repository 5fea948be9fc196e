// Package hardware talks to the robot's power board: the hardware revision
// marker, the two servo-rail enable lines and the battery current sensor.
package hardware

import (
	"os"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/minipupper/mpct/pkg/config"
)

// Profile is the revision-dependent wiring of a robot.
type Profile struct {
	// Revision is the trimmed marker content, empty if it could not be read.
	Revision   string
	RecordPath string
	EnablePins [2]int
}

// ReadRevision returns the first line of the hardware version marker.
func ReadRevision(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to read hardware version from %s", path)
	}
	line, _, _ := strings.Cut(string(b), "\n")
	return strings.TrimSpace(line), nil
}

// SelectProfile picks the alternate profile when revision equals the
// configured marker and the default profile otherwise.
func SelectProfile(c config.Config, revision string) Profile {
	if revision != "" && revision == c.AltMarker() {
		return Profile{
			Revision:   revision,
			RecordPath: c.AltRecordPath(),
			EnablePins: c.AltEnablePins(),
		}
	}
	return Profile{
		Revision:   revision,
		RecordPath: c.RecordPath(),
		EnablePins: c.EnablePins(),
	}
}

// DetectProfile reads the marker configured in c and selects a profile. A
// missing marker selects the default profile.
func DetectProfile(c config.Config) Profile {
	revision, err := ReadRevision(c.HardwareVersionFile())
	if err != nil {
		logrus.WithError(err).Warn("hardware version unknown, using default profile")
	}

	p := SelectProfile(c, revision)
	logrus.WithFields(logrus.Fields{
		"revision":   p.Revision,
		"recordPath": p.RecordPath,
		"enablePins": p.EnablePins,
	}).Debug("hardware profile selected")

	return p
}
