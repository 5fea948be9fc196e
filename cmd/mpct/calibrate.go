package main

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/minipupper/mpct/pkg/calibration"
	"github.com/minipupper/mpct/pkg/config"
	"github.com/minipupper/mpct/pkg/guard"
	"github.com/minipupper/mpct/pkg/hardware"
	"github.com/minipupper/mpct/pkg/record"
	"github.com/minipupper/mpct/pkg/servo"
	"github.com/minipupper/mpct/pkg/session"
	"github.com/minipupper/mpct/pkg/utils/systemd"
)

// NewCalibrateCommand .
func NewCalibrateCommand() *cobra.Command {
	plain := false

	cmd := &cobra.Command{
		Use:     "calibrate",
		Aliases: []string{"cali"},
		Short:   "Run an interactive servo calibration session",
		GroupID: gBasic,
		Long: `Run an interactive servo calibration session.

The robot services and the guard daemon are stopped while the session runs
and started again when it ends. Move each joint to its reference pose with the
keys shown on screen, then press 'w' to review and write the correction record.

You usually need to run this command as root to access GPIO and the EEPROM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.NewFile(configPath)
			if err != nil {
				return err
			}
			logrus.WithFields(conf.LogrusFields()).Debug("config loaded")

			return runCalibration(cmd, conf, plain)
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "Use a line-based interface instead of the full-screen one.")

	return cmd
}

func runCalibration(cmd *cobra.Command, conf config.Config, plain bool) error {
	profile := hardware.DetectProfile(conf)

	loaded, err := record.LoadOrDefault(profile.RecordPath)
	if err != nil {
		logrus.WithError(err).Warn("no usable calibration record, starting from factory defaults")
	}

	lines, err := hardware.NewEnableLines(conf.GPIOBackend(), profile.EnablePins)
	if err != nil {
		return err
	}
	defer func() {
		if err := lines.Close(); err != nil {
			logrus.Errorf("failed to close enable lines: %v", err)
		}
	}()

	sensor, err := hardware.NewCurrentSensor(conf)
	if err != nil {
		return err
	}

	g, err := guard.New(sensor, lines, guard.Limits{CurrentMax: conf.CurrentMax(), CounterMax: conf.CounterMax()})
	if err != nil {
		return err
	}

	driver, err := servo.New(conf)
	if err != nil {
		return err
	}
	defer func() {
		if err := driver.Close(); err != nil {
			logrus.Errorf("failed to close servo driver: %v", err)
		}
	}()

	c := session.New(session.Options{
		Loaded: loaded,
		Save: func(m calibration.Matrix) error {
			return record.Save(profile.RecordPath, m)
		},
		Guard:  g,
		Driver: driver,
	})

	release, err := session.Acquire(sessionServices(conf), lines)
	if err != nil {
		return err
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var run func() error
	interrupt := cancel
	if plain {
		run = func() error { return runPlain(ctx, c) }
	} else {
		p := tea.NewProgram(session.NewModel(c), tea.WithAltScreen(), tea.WithContext(ctx))
		run = func() error {
			_, err := p.Run()
			return err
		}
		interrupt = p.Quit
	}

	var interrupted atomic.Bool
	stop := session.ReleaseOnSignal(release, func() {
		interrupted.Store(true)
		interrupt()
	})
	defer stop()

	err = run()
	if interrupted.Load() {
		return fmt.Errorf("calibration session interrupted")
	}
	if err != nil {
		return fmt.Errorf("calibration session failed: %w", err)
	}

	if c.Calibrated() {
		cmd.Printf("Calibration written to %s\n%s\n", profile.RecordPath, c.State().Live())
	} else {
		cmd.Println("Calibration not written.")
	}
	return nil
}

func runPlain(ctx context.Context, c *session.Controller) error {
	kb, err := session.OpenKeyboard()
	if err != nil {
		return err
	}
	defer func() {
		if err := kb.Close(); err != nil {
			logrus.Warnf("failed to close keyboard: %v", err)
		}
	}()

	return session.RunPlain(ctx, c, kb.Keys(), os.Stdout)
}

// sessionServices lists the units to stop for the session. The guard daemon
// shares the enable lines, so it is stopped too when it is running.
func sessionServices(conf config.Config) []session.Service {
	var services []session.Service
	for _, u := range systemd.Units(conf.Services()) {
		services = append(services, u)
	}

	guardUnit := systemd.Unit{Name: systemd.GuardUnitName}
	if guardUnit.Active() {
		services = append(services, guardUnit)
	}

	return services
}
