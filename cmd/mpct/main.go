package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/minipupper/mpct/pkg/client"
	"github.com/minipupper/mpct/pkg/record"
)

var (
	logLevel       = "info"
	unixSocketPath = "/var/run/mpct.sock"
	configPath     = "/etc/mpct.json"
)

var (
	gBasic        = "Basic:"
	gAdvanced     = "Advanced:"
	gInstallation = "Installation:"
	commandGroups = []string{
		gBasic,
		gAdvanced,
		gInstallation,
	}
)

var apiClient *client.Client

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

// teeLogFile copies log output to a size-rotated file at path.
func teeLogFile(path string) io.Closer {
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	logrus.SetOutput(io.MultiWriter(os.Stderr, lj))
	return lj
}

func handleCmdError(err error) {
	switch {
	case errors.Is(err, client.ErrDaemonNotRunning):
		fmt.Fprintln(os.Stderr, "\nError: mpct guard daemon is not running")
		fmt.Fprintln(os.Stderr, "Is the daemon running? Have you installed it with 'mpct install'?")
	case errors.Is(err, client.ErrPermissionDenied):
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or reinstall the daemon with the '--allow-non-root-access' flag to grant permissions to your user")
	case errors.Is(err, record.ErrStorageUnavailable):
		fmt.Fprintln(os.Stderr, "\nError: the calibration record could not be accessed")
		fmt.Fprintln(os.Stderr, "Writing the EEPROM usually requires root. Try again with 'sudo'.")
	}
}

func main() {
	// The Pi has few cores and the servo loop does little work.
	if os.Getenv("GOMAXPROCS") == "" {
		runtime.GOMAXPROCS(2)
	}

	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mpct",
		Short: "mpct calibrates the servos of a Mini Pupper quadruped",
		Long: `mpct calibrates the servos of a Mini Pupper quadruped.

It runs an interactive calibration session that writes the per-joint
correction record, and an overload guard that cuts servo power when the
battery current stays above a limit.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			err := setupLogger()
			if err != nil {
				return err
			}

			apiClient = client.NewClient(unixSocketPath)

			// Only commands that talk to the daemon care about its version.
			if cmd.Annotations[annotationNeedsDaemon] == "" {
				return nil
			}

			if clientVersion, daemonVersion, err := getVersion(); err == nil {
				if daemonVersion != clientVersion {
					logrus.WithFields(logrus.Fields{
						"clientVersion": clientVersion,
						"daemonVersion": daemonVersion,
					}).Warn("Version mismatch between client and daemon. Reinstall the daemon with 'mpct install' so both are the same version.")
				}
			} else if errors.Is(err, client.ErrNotFound) {
				logrus.Error("mpct daemon is too old to report its version. Reinstall the daemon with 'mpct install'.")
			}

			return nil
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", unixSocketPath, "mpct guard daemon unix socket path")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewVersionCommand(),
		NewCalibrateCommand(),
		NewRecordCommand(),
		NewGuardCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
	)

	return cmd
}
