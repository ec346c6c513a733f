// Package batch wires clients, state files and the engine together and runs
// the reconciliation flows the CLI exposes.
package batch

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"taxoclaim/internal/commons"
	"taxoclaim/internal/conf"
	"taxoclaim/internal/errors"
	"taxoclaim/internal/ledger"
	"taxoclaim/internal/logging"
	"taxoclaim/internal/reconcile"
	"taxoclaim/internal/review"
	"taxoclaim/internal/wikidata"
)

// DefaultUmbrella is the category whose subcategories are the per-family
// illustration trees. The depicts command walks it when no category is
// given.
const DefaultUmbrella = "Category:Botanical illustrations by family"

var logger *slog.Logger

func init() {
	logger = logging.ForService("batch")
	if logger == nil {
		logger = slog.Default().With("service", "batch")
	}
}

// collaborators bundles everything a reconciliation run needs.
type collaborators struct {
	commons  *commons.Client
	wikidata *wikidata.Client
	ledger   *ledger.Ledger
	review   *review.Sink
}

func (c *collaborators) Close() {
	c.wikidata.Close()
	c.commons.Close()
}

// setup builds the shared collaborators. Write flows require bot
// credentials up front so a long walk cannot fail on its first edit.
func setup(settings *conf.Settings, writes bool) (*collaborators, error) {
	if writes && !settings.Reconcile.DryRun {
		if err := conf.RequireCredentials(settings); err != nil {
			return nil, errors.New(err).
				Category(errors.CategoryConfiguration).
				Component("batch").
				Context("hint", "use --dry-run for a credential-free pass").
				Build()
		}
	}
	commonsClient, err := commons.NewClient(commons.ConfigFromSettings(settings))
	if err != nil {
		return nil, err
	}
	wikidataClient, err := wikidata.NewClient(wikidata.ConfigFromSettings(settings))
	if err != nil {
		commonsClient.Close()
		return nil, err
	}
	led, err := ledger.Load(settings.Ledger.Path)
	if err != nil {
		wikidataClient.Close()
		commonsClient.Close()
		return nil, err
	}
	return &collaborators{
		commons:  commonsClient,
		wikidata: wikidataClient,
		ledger:   led,
		review:   review.NewSink(settings.Review.Path),
	}, nil
}

// Depicts runs the depicts flow: one family tree, or every family under the
// umbrella category when byFamily is set.
func Depicts(ctx context.Context, settings *conf.Settings, category string, byFamily bool) error {
	c, err := setup(settings, true)
	if err != nil {
		return err
	}
	defer c.Close()

	opts := reconcile.OptionsFromSettings(settings)
	group := reconcile.NewEditGroup(reconcile.CommonsEditGroupTool, settings.Reconcile.EditGroupSize)
	policy := reconcile.NewDepictsPolicy(c.commons, c.wikidata, c.commons, c.ledger, group, opts)
	engine := reconcile.NewEngine(c.commons, c.wikidata, c.ledger, c.review, policy, opts)
	defer engine.Close()

	logger.Info("Starting depicts run",
		"category", category,
		"by_family", byFamily,
		"dry_run", opts.DryRun,
		"edit_group", group.Token())
	if byFamily {
		return engine.WalkFamilies(ctx, category)
	}
	return engine.Walk(ctx, category)
}

// Illustrations runs the item-image flow over one category tree.
func Illustrations(ctx context.Context, settings *conf.Settings, category string) error {
	c, err := setup(settings, true)
	if err != nil {
		return err
	}
	defer c.Close()

	opts := reconcile.OptionsFromSettings(settings)
	group := reconcile.NewEditGroup(reconcile.WikidataEditGroupTool, settings.Reconcile.EditGroupSize)
	policy := reconcile.NewItemImagePolicy(c.commons, c.wikidata, c.wikidata, group, opts)
	engine := reconcile.NewEngine(c.commons, c.wikidata, c.ledger, c.review, policy, opts)
	defer engine.Close()

	logger.Info("Starting illustrations run",
		"category", category,
		"dry_run", opts.DryRun,
		"edit_group", group.Token())
	return engine.Walk(ctx, category)
}

// Audit prints which of the given items lack the audited property, one line
// per affected item plus a summary line.
func Audit(ctx context.Context, settings *conf.Settings, w io.Writer, items []string, property string) error {
	if property == "" {
		property = settings.Reconcile.Properties.Image
	}
	client, err := wikidata.NewClient(wikidata.ConfigFromSettings(settings))
	if err != nil {
		return err
	}
	defer client.Close()

	missing, err := client.MissingImage(ctx, items, property)
	if err != nil {
		return err
	}
	count := 0
	for _, item := range items {
		if missing[item] {
			count++
			fmt.Fprintf(w, "%s is missing %s\n", item, property)
		}
	}
	fmt.Fprintf(w, "%d of %d items are missing %s\n", count, len(items), property)
	return nil
}
