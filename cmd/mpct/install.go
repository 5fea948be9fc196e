package main

import (
	"fmt"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/minipupper/mpct/pkg/config"
	"github.com/minipupper/mpct/pkg/utils/systemd"
)

// NewInstallCommand .
func NewInstallCommand() *cobra.Command {
	allowNonRootAccess := false

	cmd := &cobra.Command{
		Use:     "install",
		Short:   "Install the guard daemon (system-wide)",
		GroupID: gInstallation,
		Long: `Install the mpct guard daemon as a systemd service.

This makes the guard run in the background and start on boot. You must run this command as root.

By default, only root is allowed to access the guard daemon. Use --allow-non-root-access to let other users query and reset it without sudo.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.NewFile(configPath)
			if err != nil {
				return err
			}

			conf.SetAllowNonRootAccess(allowNonRootAccess)
			if allowNonRootAccess {
				logrus.Info("non-root users are allowed to access the guard daemon.")
			} else {
				logrus.Info("only root user is allowed to access the guard daemon.")
			}

			// The daemon reads the config at startup, so save it first.
			err = conf.Save()
			if err != nil {
				return pkgerrors.Wrapf(err, "failed to save config")
			}

			err = systemd.Install()
			if err != nil {
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to install daemon: %v. Are you root?", err)
			}

			logrus.Infof("installation succeeded")

			exePath, _ := os.Executable()

			cmd.Printf("`systemd' will use current binary (%s) at startup so please make sure you do not move this binary. Once this binary is moved or deleted, you will need to run ``mpct install'' again.\n", exePath)

			return nil
		},
	}

	cmd.Flags().BoolVar(&allowNonRootAccess, "allow-non-root-access", false, "Allow non-root users to access the guard daemon.")

	return cmd
}

// NewUninstallCommand .
func NewUninstallCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "uninstall",
		Short:   "Uninstall the guard daemon (system-wide)",
		GroupID: gInstallation,
		Long: `Uninstall the mpct guard daemon.

This stops the guard and removes its systemd unit. The daemon powers the servo
rails on exit, so the robot is left powered.

You must run this command as root.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := systemd.Uninstall()
			if err != nil {
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to uninstall daemon: %v", err)
			}

			fmt.Println("successfully uninstalled")

			cmd.Printf("Your config is kept in %s, in case you want to use the guard again. If you want a complete uninstall, you can remove both config file and mpct itself manually.\n", configPath)

			return nil
		},
	}

	return cmd
}
