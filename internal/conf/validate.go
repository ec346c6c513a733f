// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

var (
	propertyIDPattern = regexp.MustCompile(`^P\d+$`)
	itemIDPattern     = regexp.MustCompile(`^Q\d+$`)
)

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateMainSettings(&settings.Main); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateCommonsSettings(&settings.Commons); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateWikidataSettings(&settings.Wikidata); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateReconcileSettings(&settings.Reconcile); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// validateMainSettings validates the main application settings
func validateMainSettings(settings *MainSettings) error {
	var errs []string

	if settings.Name == "" {
		errs = append(errs, "main name must not be empty")
	}

	if settings.Log.Enabled {
		if settings.Log.Path == "" {
			errs = append(errs, "log path must not be empty when logging is enabled")
		}
		switch settings.Log.Rotation {
		case RotationDaily, RotationWeekly, RotationSize:
		default:
			errs = append(errs, fmt.Sprintf("invalid log rotation type: %s", settings.Log.Rotation))
		}
		if settings.Log.Rotation == RotationSize && settings.Log.MaxSize <= 0 {
			errs = append(errs, "log max size must be positive for size rotation")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("main settings errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// validateCommonsSettings validates the Commons API settings.
// Credentials are deliberately not required here; write flows check them
// separately via RequireCredentials.
func validateCommonsSettings(settings *CommonsSettings) error {
	var errs []string

	if err := validateEndpoint("commons api", settings.API); err != nil {
		errs = append(errs, err.Error())
	}
	if settings.RateLimit <= 0 {
		errs = append(errs, "commons ratelimit must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("commons settings errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// validateWikidataSettings validates the Wikidata API settings
func validateWikidataSettings(settings *WikidataSettings) error {
	var errs []string

	if err := validateEndpoint("wikidata api", settings.API); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateEndpoint("wikidata sparql", settings.SPARQL); err != nil {
		errs = append(errs, err.Error())
	}
	if settings.CacheTTL < 0 {
		errs = append(errs, "wikidata cachettl must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("wikidata settings errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// validateReconcileSettings validates the reconciliation engine settings
func validateReconcileSettings(settings *ReconcileSettings) error {
	var errs []string

	if settings.ReviewThreshold < 1 {
		errs = append(errs, "review threshold must be at least 1")
	}
	if settings.EditGroupSize < 1 {
		errs = append(errs, "edit group size must be at least 1")
	}

	properties := map[string]string{
		"image":        settings.Properties.Image,
		"illustration": settings.Properties.Illustration,
		"depicts":      settings.Properties.Depicts,
		"inferredfrom": settings.Properties.InferredFrom,
		"importurl":    settings.Properties.ImportURL,
	}
	for name, id := range properties {
		if !propertyIDPattern.MatchString(id) {
			errs = append(errs, fmt.Sprintf("property %s must look like P123, got %q", name, id))
		}
	}

	if !itemIDPattern.MatchString(settings.InferredFromValue) {
		errs = append(errs, fmt.Sprintf("inferredfromvalue must look like Q123, got %q", settings.InferredFromValue))
	}

	if len(errs) > 0 {
		return fmt.Errorf("reconcile settings errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// validateEndpoint checks that an endpoint is an absolute http(s) URL
func validateEndpoint(name, endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("%s endpoint must not be empty", name)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("%s endpoint is not a valid URL: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s endpoint must use http or https, got %q", name, endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("%s endpoint is missing a host", name)
	}
	return nil
}

// RequireCredentials reports an error when the Commons account is not
// configured. Write flows call this before their first edit; read-only
// flows never do. The password itself is resolved at login time, so a
// password file that exists but is unreadable still fails late.
func RequireCredentials(settings *Settings) error {
	var missing []string
	if settings.Commons.Username == "" {
		missing = append(missing, "commons.username")
	}
	if settings.Commons.Password == "" && settings.Commons.PasswordFile == "" {
		missing = append(missing, "commons.password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing credentials: %s (set them in the config file, via %s_COMMONS_USERNAME / %s_COMMONS_PASSWORD, or point commons.passwordfile at a secret file)",
			strings.Join(missing, ", "), envPrefix, envPrefix)
	}
	return nil
}
