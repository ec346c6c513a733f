package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taxoclaim/cmd/audit"
	"taxoclaim/cmd/depicts"
	"taxoclaim/cmd/illustrations"
	"taxoclaim/internal/conf"
	"taxoclaim/internal/logging"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "taxoclaim",
		Short:        "Reconcile Commons botanical illustrations with Wikidata",
		Long:         "taxoclaim walks botanical-illustration category trees on Wikimedia Commons and brings Wikidata items and MediaInfo entities up to date with the files found there.",
		SilenceUsage: true,
	}

	// Set up the global flags for the root command.
	setupFlags(rootCmd, settings)

	subcommands := []*cobra.Command{
		depicts.Command(settings),
		illustrations.Command(settings),
		audit.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		// Command-line flags take precedence over the config file.
		switch {
		case settings.Debug:
			logging.SetLevel(slog.LevelDebug)
		case settings.Verbose:
			logging.SetLevel(slog.LevelInfo)
		default:
			logging.SetLevel(slog.LevelWarn)
		}
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().BoolVarP(&settings.Verbose, "verbose", "v", viper.GetBool("verbose"), "Enable info level console output")
	rootCmd.PersistentFlags().BoolVarP(&settings.Reconcile.DryRun, "dry-run", "n", viper.GetBool("reconcile.dryrun"), "Resolve and plan edits without writing anything")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
