package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/minipupper/mpct/pkg/daemon"
	"github.com/minipupper/mpct/pkg/events"
	"github.com/minipupper/mpct/pkg/guard"
	"github.com/minipupper/mpct/pkg/version"
)

var (
	// alwaysAllowNonRootAccess indicates whether to always allow non-root users to access the guard daemon.
	alwaysAllowNonRootAccess = false
)

func NewGuardCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "guard",
		Short:   "Run or control the servo overload guard",
		GroupID: gAdvanced,
		Long: `Run or control the servo overload guard.

The guard samples the battery current and cuts servo power when it stays
above the limit for too long. It restores power once the current has been
back under the limit for a while.`,
	}

	cmd.AddCommand(
		newGuardRunCommand(),
		newGuardStatusCommand(),
		newGuardWatchCommand(),
		newGuardResetCommand(),
		newGuardLimitsCommand(),
	)

	return cmd
}

func newGuardRunCommand() *cobra.Command {
	logFile := ""

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the guard daemon in the foreground",
		RunE: func(_ *cobra.Command, _ []string) error {
			if logFile != "" {
				lj := teeLogFile(logFile)
				defer lj.Close()
			}
			logrus.WithFields(logrus.Fields{
				"version": version.Version,
				"commit":  version.GitCommit,
			}).Info("mpct guard daemon starting")
			return daemon.Run(configPath, unixSocketPath, alwaysAllowNonRootAccess)
		},
	}

	cmd.Flags().BoolVar(&alwaysAllowNonRootAccess, "always-allow-non-root-access", false,
		"Always allow non-root users to access the daemon.")
	cmd.Flags().StringVar(&logFile, "log-file", "", "Also write logs to this file, rotated by size.")

	return cmd
}

func newGuardStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "status",
		Short:       "Show the guard state",
		Annotations: needsDaemon,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.GetStatus()
			if err != nil {
				return fmt.Errorf("failed to get guard status: %w", err)
			}

			cmd.Printf("Servo power: %s\n", bool2Text(!st.Tripped))
			if st.Tripped {
				cmd.Printf("  %s\n", color.RedString("tripped by sustained overcurrent"))
			}
			cmd.Printf("Current: %s µA (limit %d)\n", bold("%d", st.Current), st.Limits.CurrentMax)
			cmd.Printf("Hold counter: %s / %d\n", bold("%d", st.HoldCounter), st.Limits.CounterMax)
			if st.LastSample != "" {
				cmd.Printf("Last sample: %s\n", st.LastSample)
			}
			cmd.Printf("Daemon instance: %s\n", st.Instance)

			return nil
		},
	}
}

func newGuardWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "watch",
		Short:       "Print guard transitions as they happen",
		Annotations: needsDaemon,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return apiClient.Watch(ctx, func(ev events.Event) bool {
				cmd.Println(formatEvent(ev))
				return true
			})
		},
	}
}

func formatEvent(ev events.Event) string {
	switch ev.Name {
	case events.GuardTripped, events.GuardRestored:
		p, err := events.DecodeAs[events.GuardEvent](ev)
		if err != nil {
			return fmt.Sprintf("%s: %s", ev.Name, ev.Data)
		}
		state := color.GreenString("restored")
		if p.Tripped {
			state = color.RedString("tripped")
		}
		line := fmt.Sprintf("%s %s current=%d counter=%d",
			time.Unix(p.Ts, 0).Format(time.Kitchen), state, p.Current, p.HoldCounter)
		if p.Reason != "" {
			line += " (" + p.Reason + ")"
		}
		return line
	case events.GuardLimits:
		p, err := events.DecodeAs[events.LimitsEvent](ev)
		if err != nil {
			return fmt.Sprintf("%s: %s", ev.Name, ev.Data)
		}
		return fmt.Sprintf("%s limits currentMax=%d counterMax=%d",
			time.Unix(p.Ts, 0).Format(time.Kitchen), p.CurrentMax, p.CounterMax)
	default:
		return fmt.Sprintf("%s: %s", ev.Name, ev.Data)
	}
}

func newGuardResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "reset",
		Short:       "Restore servo power after checking the robot",
		Annotations: needsDaemon,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.ResetGuard()
			if err != nil {
				return fmt.Errorf("failed to reset guard: %w", err)
			}
			cmd.Printf("Servo power: %s\n", bool2Text(!st.Tripped))
			return nil
		},
	}
}

func newGuardLimitsCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "limits [current-max-uA] [counter-max]",
		Short:       "Set the overcurrent limits",
		Annotations: needsDaemon,
		Long: `Set the overcurrent limits.

current-max-uA is the current in µA above which a sample counts as an
overload. counter-max is the number of overload samples that trip the guard.
The limits are saved to the daemon's config file.`,
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			currentMax, err := parseIntArg(args[:1], "current limit")
			if err != nil {
				return err
			}
			counterMax, err := parseIntArg(args[1:], "counter limit")
			if err != nil {
				return err
			}

			ret, err := apiClient.SetLimits(guard.Limits{CurrentMax: currentMax, CounterMax: counterMax})
			if err != nil {
				return fmt.Errorf("failed to set limits: %w", err)
			}
			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}
			return nil
		},
	}
}
