package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/minipupper/mpct/pkg/calibration"
	"github.com/minipupper/mpct/pkg/config"
	"github.com/minipupper/mpct/pkg/hardware"
	"github.com/minipupper/mpct/pkg/leg"
	"github.com/minipupper/mpct/pkg/record"
)

func NewRecordCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "record",
		Short:   "Inspect or reset the calibration record",
		GroupID: gBasic,
	}

	cmd.AddCommand(
		newRecordShowCommand(),
		newRecordResetCommand(),
	)

	return cmd
}

func newRecordShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the persisted correction matrix",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.NewFile(configPath)
			if err != nil {
				return err
			}
			profile := hardware.DetectProfile(conf)

			m, loadErr := record.LoadOrDefault(profile.RecordPath)

			revision := profile.Revision
			if revision == "" {
				revision = "unknown"
			}
			cmd.Printf("Hardware revision: %s\n", bold("%s", revision))
			cmd.Printf("Record: %s\n", bold("%s", profile.RecordPath))
			cmd.Printf("Loaded: %s\n", bool2Text(loadErr == nil))
			if loadErr != nil {
				cmd.Printf("  %s\n", color.YellowString("%v", loadErr))
				cmd.Println("  Showing the factory default matrix.")
			}
			cmd.Println()
			cmd.Print(formatMatrix(m))

			return nil
		},
	}
}

func newRecordResetCommand() *cobra.Command {
	yes := false

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Overwrite the calibration record with factory defaults",
		Long: `Overwrite the calibration record with factory defaults.

Every joint correction is lost. Pass --yes to confirm.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to reset the calibration record without --yes")
			}

			conf, err := config.NewFile(configPath)
			if err != nil {
				return err
			}
			profile := hardware.DetectProfile(conf)

			if err := record.Save(profile.RecordPath, calibration.DefaultMatrix()); err != nil {
				return err
			}
			logrus.WithField("path", profile.RecordPath).Info("calibration record reset to factory defaults")

			cmd.Print(formatMatrix(calibration.DefaultMatrix()))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm overwriting the record.")

	return cmd
}

// formatMatrix renders m with leg and joint labels.
func formatMatrix(m calibration.Matrix) string {
	var b strings.Builder
	b.WriteString(bold("      %5s%5s%5s%5s", "LF", "RF", "LB", "RB"))
	b.WriteString("\n")
	for _, j := range leg.Joints {
		fmt.Fprintf(&b, "%-6s", j)
		for _, id := range leg.IDs {
			fmt.Fprintf(&b, "%5d", m.At(j, id))
		}
		b.WriteString("\n")
	}
	return b.String()
}
