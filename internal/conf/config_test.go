package conf

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

// resetViper isolates tests from each other and from any developer config
// by pointing HOME at a temp dir and clearing viper's global state.
func resetViper(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	viper.Reset()
	t.Cleanup(viper.Reset)
	return home
}

func TestLoadCreatesDefaultConfig(t *testing.T) {
	home := resetViper(t)

	settings, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	configPath := filepath.Join(home, ".config", appDirName, "config.yaml")
	if _, err := os.Stat(configPath); err != nil {
		t.Fatalf("Expected default config file at %s: %v", configPath, err)
	}

	if settings.Commons.API != "https://commons.wikimedia.org/w/api.php" {
		t.Errorf("Unexpected commons api default: %s", settings.Commons.API)
	}
	if settings.Reconcile.ReviewThreshold != 3 {
		t.Errorf("Expected review threshold default 3, got %d", settings.Reconcile.ReviewThreshold)
	}
	if settings.Reconcile.EditGroupSize != 50 {
		t.Errorf("Expected edit group size default 50, got %d", settings.Reconcile.EditGroupSize)
	}
	if settings.Reconcile.Properties.Depicts != "P180" {
		t.Errorf("Expected depicts property default P180, got %s", settings.Reconcile.Properties.Depicts)
	}
	if settings.Wikidata.CacheTTL != 14*24*time.Hour {
		t.Errorf("Expected cache ttl default of two weeks, got %v", settings.Wikidata.CacheTTL)
	}
}

func TestLoadReadsExistingConfig(t *testing.T) {
	home := resetViper(t)

	configDir := filepath.Join(home, ".config", appDirName)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatal(err)
	}
	configYAML := `
main:
  name: FieldTest
commons:
  username: ReconcilerBot
reconcile:
  reviewthreshold: 5
  dryrun: true
`
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(configYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	settings, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if settings.Main.Name != "FieldTest" {
		t.Errorf("Expected configured name, got %s", settings.Main.Name)
	}
	if settings.Commons.Username != "ReconcilerBot" {
		t.Errorf("Expected configured username, got %s", settings.Commons.Username)
	}
	if settings.Reconcile.ReviewThreshold != 5 {
		t.Errorf("Expected configured review threshold 5, got %d", settings.Reconcile.ReviewThreshold)
	}
	if !settings.Reconcile.DryRun {
		t.Error("Expected dry run to be enabled")
	}
	// Defaults still fill unset keys
	if settings.Reconcile.Properties.Image != "P18" {
		t.Errorf("Expected image property default P18, got %s", settings.Reconcile.Properties.Image)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	home := resetViper(t)

	configDir := filepath.Join(home, ".config", appDirName)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatal(err)
	}
	configYAML := `
reconcile:
  reviewthreshold: 0
`
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(configYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(); err == nil {
		t.Fatal("Expected Load to reject an invalid config")
	}
}

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	settings := validTestSettings()
	settings.Main.Name = "RoundTrip"
	settings.Commons.Username = "ReconcilerBot"

	if err := SaveYAMLConfig(configPath, settings); err != nil {
		t.Fatalf("SaveYAMLConfig failed: %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Reading saved config failed: %v", err)
	}
	content := string(data)
	for _, want := range []string{"RoundTrip", "ReconcilerBot", "P13162"} {
		if !strings.Contains(content, want) {
			t.Errorf("Saved config missing %q:\n%s", want, content)
		}
	}

	// No leftover temp files from the atomic write
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected only the config file in %s, found %d entries", dir, len(entries))
	}
}
