package depicts

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taxoclaim/internal/batch"
	"taxoclaim/internal/conf"
)

// Command creates the depicts subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	var byFamily bool

	cmd := &cobra.Command{
		Use:   "depicts [family-category]",
		Short: "Add depicts statements to illustration files",
		Long: "Walk a family's botanical-illustration category tree and add depicts " +
			"statements to the MediaInfo entity of each file. Without a category " +
			"argument every family under " + batch.DefaultUmbrella + " is walked.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category := batch.DefaultUmbrella
			walkFamilies := byFamily
			if len(args) == 0 {
				walkFamilies = true
			} else {
				category = args[0]
			}
			return batch.Depicts(cmd.Context(), settings, category, walkFamilies)
		},
	}

	if err := setupFlags(cmd, settings, &byFamily); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the depicts command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings, byFamily *bool) error {
	cmd.Flags().BoolVar(byFamily, "by-family", false, "Treat the category as an umbrella and walk each family under it")
	cmd.Flags().IntVar(&settings.Reconcile.ReviewThreshold, "threshold", viper.GetInt("reconcile.reviewthreshold"), "Route categories with at least this many files to manual review")
	cmd.Flags().IntVar(&settings.Reconcile.EditGroupSize, "batch-size", viper.GetInt("reconcile.editgroupsize"), "Writes per edit group token")

	// Bind flags to the viper settings
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
