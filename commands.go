package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/oszuidwest/zwfm-speakerswitch/internal/audio"
	"github.com/oszuidwest/zwfm-speakerswitch/internal/service"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio capture devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		devices := audio.Devices()
		if len(devices) == 0 {
			return audio.ErrNoAudioDevice
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME")
		for _, d := range devices {
			fmt.Fprintf(tw, "%s\t%s\n", d.ID, d.Name)
		}
		return tw.Flush()
	},
}

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Install or remove speakerswitch as a system service",
}

var serviceInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install and start the service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		if err := service.Install(cmd.Context(), service.Options{ConfigPath: path}); err != nil {
			return serviceError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "service %s installed and started\n", service.Name)
		return nil
	},
}

var serviceUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop and remove the service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := service.Uninstall(cmd.Context()); err != nil {
			return serviceError(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "service %s removed\n", service.Name)
		return nil
	},
}

func init() {
	serviceCmd.AddCommand(serviceInstallCmd, serviceUninstallCmd)
}

// serviceError adds a hint to privilege failures.
func serviceError(err error) error {
	if errors.Is(err, service.ErrNotPrivileged) {
		return fmt.Errorf("%w (run again as root or from an administrator prompt)", err)
	}
	return err
}
