package reconcile

import (
	"context"
	"strings"

	"taxoclaim/internal/errors"
	"taxoclaim/internal/ledger"
	"taxoclaim/internal/review"
	"taxoclaim/internal/taxon"
)

// Engine owns one reconciliation run: the walk order, the ledger and review
// bookkeeping, and the policy applied to each resolved species category.
type Engine struct {
	lister   CategoryLister
	resolver TaxonResolver
	ledger   *ledger.Ledger
	review   *review.Sink
	policy   Policy
	opts     Options
}

// NewEngine wires an engine from its collaborators.
func NewEngine(lister CategoryLister, resolver TaxonResolver, led *ledger.Ledger, sink *review.Sink, policy Policy, opts Options) *Engine {
	return &Engine{
		lister:   lister,
		resolver: resolver,
		ledger:   led,
		review:   sink,
		policy:   policy,
		opts:     opts,
	}
}

// WalkFamilies walks every family category under the umbrella category,
// skipping families already in the ledger. Failures never stop the walk;
// they are collected and returned once every family has been visited. A
// family that saw any failure stays unmarked so the next run retries the
// units the ledger does not cover yet.
func (e *Engine) WalkFamilies(ctx context.Context, umbrella string) error {
	families, err := e.lister.Subcategories(ctx, umbrella)
	if err != nil {
		return err
	}
	logger.Info("Walking family categories",
		"umbrella", taxon.StripCategory(umbrella),
		"families", len(families),
		"policy", e.policy.Name())
	var errs []error
	for _, family := range families {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, runCancelled(err, umbrella))...)
		}
		name := taxon.StripCategory(family)
		if e.ledger.IsProcessed(ledger.KindFamilies, name) {
			logger.Debug("Family already processed, skipping", "family", name)
			continue
		}
		if err := e.Walk(ctx, family); err != nil {
			if isCancelled(err) {
				return errors.Join(append(errs, err)...)
			}
			logger.Error("Family walk incomplete, continuing with next",
				"family", name, "error", err)
			errs = append(errs, err)
			continue
		}
		if err := e.ledger.MarkProcessed(ledger.KindFamilies, name); err != nil {
			logger.Error("Failed to record processed family", "family", name, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Walk reconciles one family tree. The family category's subcategories are
// genus categories and their subcategories are species categories; files
// only hang off the species level. The returned error joins all unit
// failures and is nil only when every unit reached a terminal state.
func (e *Engine) Walk(ctx context.Context, family string) error {
	genera, err := e.lister.Subcategories(ctx, family)
	if err != nil {
		return err
	}
	logger.Info("Walking genus categories",
		"family", taxon.StripCategory(family),
		"genera", len(genera),
		"policy", e.policy.Name())
	var errs []error
	for _, genus := range genera {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, runCancelled(err, family))...)
		}
		name := taxon.StripCategory(genus)
		if taxon.IsUnidentified(name) {
			logger.Debug("Unidentified genus category, skipping", "genus", name)
			continue
		}
		if e.ledger.IsProcessed(ledger.KindGenera, name) {
			logger.Debug("Genus already processed, skipping", "genus", name)
			continue
		}
		if err := e.walkGenus(ctx, genus); err != nil {
			if isCancelled(err) {
				return errors.Join(append(errs, err)...)
			}
			logger.Error("Genus walk incomplete, continuing with next",
				"genus", name, "error", err)
			errs = append(errs, err)
			continue
		}
		if err := e.ledger.MarkProcessed(ledger.KindGenera, name); err != nil {
			logger.Error("Failed to record processed genus", "genus", name, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// walkGenus reconciles each species category under one genus category.
// Species failures are logged and the loop moves on; only cancellation
// stops it early.
func (e *Engine) walkGenus(ctx context.Context, genus string) error {
	species, err := e.lister.Subcategories(ctx, genus)
	if err != nil {
		return err
	}
	var errs []error
	for _, category := range species {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, runCancelled(err, genus))...)
		}
		if err := e.reconcileSpecies(ctx, category); err != nil {
			if isCancelled(err) {
				return errors.Join(append(errs, err)...)
			}
			logger.Error("Species reconciliation failed, continuing with next",
				"category", taxon.StripCategory(category), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// reconcileSpecies handles one species category end to end: extract the
// taxon name, resolve it, then either hand the member files to the policy
// or route the category to manual review. Every terminal outcome marks the
// species in the ledger; errors leave it unmarked for the next run.
func (e *Engine) reconcileSpecies(ctx context.Context, category string) error {
	title := taxon.StripCategory(category)
	catLogger := logger.With("category", title)

	name, ok := taxon.Extract(category)
	if !ok {
		catLogger.Info("No taxon name in category title, skipping")
		return nil
	}
	if e.ledger.IsProcessed(ledger.KindSpecies, name) {
		catLogger.Debug("Species already processed, skipping", "species", name)
		return nil
	}

	qid, err := e.resolver.ResolveTaxon(ctx, name)
	if err != nil {
		return err
	}
	if qid == "" {
		catLogger.Info("No item found for taxon, marking processed", "species", name)
		return e.ledger.MarkProcessed(ledger.KindSpecies, name)
	}

	files, err := e.lister.FilesInCategory(ctx, category)
	if err != nil {
		return err
	}
	names := bareFileNames(files)

	if len(names) >= e.opts.ReviewThreshold {
		catLogger.Info("Routing category to manual review",
			"species", name, "files", len(names), "threshold", e.opts.ReviewThreshold)
		if err := e.review.Record(title, names); err != nil {
			return err
		}
		return e.ledger.MarkProcessed(ledger.KindSpecies, name)
	}

	written, err := e.policy.Reconcile(ctx, Target{
		Category: title,
		Taxon:    qid,
		Files:    names,
	})
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		// Interrupted mid-target: leave the species unmarked.
		return runCancelled(err, category)
	}
	catLogger.Info("Species reconciled",
		"species", name, "item", qid, "files", len(names), "written", written)
	return e.ledger.MarkProcessed(ledger.KindSpecies, name)
}

// bareFileNames strips the File: namespace prefix from page titles.
func bareFileNames(titles []string) []string {
	names := make([]string, 0, len(titles))
	for _, title := range titles {
		names = append(names, strings.TrimPrefix(title, "File:"))
	}
	return names
}

// runCancelled wraps a context error once the walk stops between units.
func runCancelled(err error, where string) error {
	return errors.New(err).
		Category(errors.CategoryCancellation).
		Component("reconcile").
		Context("category", taxon.StripCategory(where)).
		Build()
}

// isCancelled reports whether err ends the whole run rather than one unit.
func isCancelled(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.IsCategory(err, errors.CategoryCancellation)
}
