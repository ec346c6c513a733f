// Package reconcile walks Commons botanical-illustration category trees and
// brings Wikidata items and MediaInfo entities up to date with the files
// found there. Traversal, bookkeeping and error policy live here; the actual
// claim semantics are pluggable policies so the same walk serves both the
// item-image flow and the depicts flow.
package reconcile

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"

	"taxoclaim/internal/commons"
	"taxoclaim/internal/conf"
	"taxoclaim/internal/logging"
	"taxoclaim/internal/wikibase"
)

// Package-level logger specific to the reconcile service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar) // Dynamic level control
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "reconcile.log")
	initialLevel := slog.LevelDebug
	serviceLevelVar.Set(initialLevel)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "reconcile", serviceLevelVar)
	if err != nil {
		// Fallback: log the error and disable file logging for the service
		log.Printf("FATAL: Failed to initialize reconcile file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "reconcile")
		closeLogger = func() error { return nil }
	}
}

// Close releases the engine's logging resources.
func (e *Engine) Close() {
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Failed to close reconcile logger: %v", err)
		}
	}
}

// CategoryLister walks category membership on Commons.
type CategoryLister interface {
	Subcategories(ctx context.Context, category string) ([]string, error)
	FilesInCategory(ctx context.Context, category string) ([]string, error)
}

// FileInspector reads file page metadata and MediaInfo statements.
type FileInspector interface {
	FileInfo(ctx context.Context, fileTitle string) (*commons.FileInfo, error)
	FileCategories(ctx context.Context, fileTitle string) ([]string, error)
	StatementValues(ctx context.Context, mediaID, property string) ([]string, error)
	Permalink(title string, revisionID int64) string
}

// TaxonResolver resolves a taxon name to a Wikidata item ID. An empty ID
// with a nil error means the name has no item.
type TaxonResolver interface {
	ResolveTaxon(ctx context.Context, name string) (string, error)
}

// ClaimReader reads existing statement values from an item.
type ClaimReader interface {
	PropertyValues(ctx context.Context, item, property string) ([]string, error)
}

// ClaimWriter appends statements to an entity.
type ClaimWriter interface {
	WriteClaims(ctx context.Context, entityID string, claims []wikibase.Claim, summary string) error
}

// Target is one unit of reconciliation work: a species category whose taxon
// resolved to an item, together with the category's member files. File names
// are bare, without the File: prefix.
type Target struct {
	Category string
	Taxon    string
	Files    []string
}

// Policy decides what claims a target needs and writes them. Write failures
// are logged inside the policy and never returned; a non-nil error means the
// target could not be assessed at all and should be retried on a later run.
type Policy interface {
	Name() string
	Reconcile(ctx context.Context, target Target) (written int, err error)
}

// Options tunes the engine and its policies.
type Options struct {
	Properties        conf.PropertyIDs
	InferredFromValue string // item stamped into every inferred-from reference
	ReviewThreshold   int    // categories with at least this many files go to review
	SummarySuffix     string // extra text appended to edit summaries
	BotName           string // account name used in edit summaries
	DryRun            bool   // plan claims but never write
}

// OptionsFromSettings derives engine options from the application settings.
func OptionsFromSettings(settings *conf.Settings) Options {
	opts := Options{
		Properties:        settings.Reconcile.Properties,
		InferredFromValue: settings.Reconcile.InferredFromValue,
		ReviewThreshold:   settings.Reconcile.ReviewThreshold,
		SummarySuffix:     settings.Reconcile.SummarySuffix,
		BotName:           settings.Commons.Username,
		DryRun:            settings.Reconcile.DryRun,
	}
	if opts.ReviewThreshold <= 0 {
		opts.ReviewThreshold = 3
	}
	if opts.BotName == "" {
		opts.BotName = settings.Main.Name
	}
	return opts
}

// provenance builds the reference block stamped onto every written claim.
func (o Options) provenance(permalink string) wikibase.Reference {
	return wikibase.Provenance{
		InferredFromProperty: o.Properties.InferredFrom,
		InferredFromValue:    o.InferredFromValue,
		ImportURLProperty:    o.Properties.ImportURL,
		ImportURL:            permalink,
	}.Reference()
}

// summary assembles an edit summary from its base text and the edit-group
// snippet, honoring the configured suffix.
func (o Options) summary(base string, group *EditGroup) string {
	parts := []string{base}
	if group != nil {
		parts = append(parts, group.Snippet())
	}
	if o.SummarySuffix != "" {
		parts = append(parts, o.SummarySuffix)
	}
	return strings.Join(parts, " ")
}

// normalizeFileName reduces the spellings a Commons file name shows up in
// (File: prefix, percent-encoding from FilePath URIs, underscores for
// spaces) to a single comparable form.
func normalizeFileName(name string) string {
	name = strings.TrimPrefix(name, "File:")
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	return strings.ReplaceAll(name, "_", " ")
}
