package audit

import (
	"fmt"
	"os"
	"regexp"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taxoclaim/internal/batch"
	"taxoclaim/internal/conf"
)

var itemPattern = regexp.MustCompile(`^Q\d+$`)

// Command creates the audit subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	var property string

	cmd := &cobra.Command{
		Use:   "audit <item>...",
		Short: "Report items that lack an image property",
		Long: "Query which of the given items carry no statement for the audited " +
			"property and print one line per item that needs attention.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("requires at least one item ID")
			}
			for _, arg := range args {
				if !itemPattern.MatchString(arg) {
					return fmt.Errorf("invalid item ID %q, expected the Q42 form", arg)
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return batch.Audit(cmd.Context(), settings, os.Stdout, args, property)
		},
	}

	if err := setupFlags(cmd, &property); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the audit command.
func setupFlags(cmd *cobra.Command, property *string) error {
	cmd.Flags().StringVar(property, "property", "", "Property to audit (defaults to the configured image property)")

	// Bind flags to the viper settings
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
