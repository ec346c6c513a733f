// conf/defaults.go default values for configuration parameters
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig sets the default values for all configuration parameters.
func setDefaultConfig() {
	viper.SetDefault("debug", false)
	viper.SetDefault("verbose", false)

	// Main settings
	viper.SetDefault("main.name", "TaxoClaim")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/taxoclaim.log")
	viper.SetDefault("main.log.rotation", string(RotationDaily))
	viper.SetDefault("main.log.maxsize", 10*1024*1024)

	// Wikimedia Commons Action API
	viper.SetDefault("commons.api", "https://commons.wikimedia.org/w/api.php")
	viper.SetDefault("commons.username", "")
	viper.SetDefault("commons.password", "")
	viper.SetDefault("commons.passwordfile", "")
	viper.SetDefault("commons.ratelimit", 0.5)

	// Wikidata Action API and query service
	viper.SetDefault("wikidata.api", "https://www.wikidata.org/w/api.php")
	viper.SetDefault("wikidata.sparql", "https://query.wikidata.org/sparql")
	viper.SetDefault("wikidata.cachettl", 14*24*time.Hour)

	// Reconciliation engine
	viper.SetDefault("reconcile.reviewthreshold", 3)
	viper.SetDefault("reconcile.editgroupsize", 50)
	viper.SetDefault("reconcile.dryrun", false)
	viper.SetDefault("reconcile.properties.image", "P18")
	viper.SetDefault("reconcile.properties.illustration", "P13162")
	viper.SetDefault("reconcile.properties.depicts", "P180")
	viper.SetDefault("reconcile.properties.inferredfrom", "P887")
	viper.SetDefault("reconcile.properties.importurl", "P4656")
	viper.SetDefault("reconcile.inferredfromvalue", "Q131478853")
	viper.SetDefault("reconcile.summarysuffix", "")

	// State files
	viper.SetDefault("ledger.path", "state")
	viper.SetDefault("review.path", "state/categories_to_review.yaml")
}
