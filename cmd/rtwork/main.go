// rtwork drives the background work scheduler from a simulated realtime cycle.
//
// Usage:
//
//	rtwork [--config path] <command> [flags]
//
// Commands:
//
//	run      Start the scheduler with the digest and journal workers
//	config   Print the effective configuration as JSON
//	version  Print the build version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rtwork/config"
)

// version is set through ldflags at build time.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "rtwork",
		Short:         "Realtime-safe background work scheduler",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $"+config.EnvPath+")")

	loadFn := func() (config.Config, error) { return config.Load(configPath) }

	rootCmd.AddCommand(
		newRunCmd(loadFn),
		newConfigCmd(loadFn),
		newVersionCmd(),
	)
	return rootCmd
}

func newConfigCmd(loadFn func() (config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadFn()
			if err != nil {
				return err
			}
			out, err := cfg.JSON()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
