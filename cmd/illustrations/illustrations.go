package illustrations

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taxoclaim/internal/batch"
	"taxoclaim/internal/conf"
)

// Command creates the illustrations subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "illustrations <category>",
		Short: "Add image or illustration claims to taxon items",
		Long: "Walk a botanical-illustration category tree and attach its files to " +
			"the matching taxon items: the image property when it is free, the " +
			"illustration property when an image already exists. Items carrying " +
			"both are left alone.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return batch.Illustrations(cmd.Context(), settings, args[0])
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the illustrations command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().IntVar(&settings.Reconcile.ReviewThreshold, "threshold", viper.GetInt("reconcile.reviewthreshold"), "Route categories with at least this many files to manual review")
	cmd.Flags().IntVar(&settings.Reconcile.EditGroupSize, "batch-size", viper.GetInt("reconcile.editgroupsize"), "Writes per edit group token")

	// Bind flags to the viper settings
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
