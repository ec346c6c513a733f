package reconcile

import (
	"context"
	"fmt"

	"taxoclaim/internal/errors"
	"taxoclaim/internal/ledger"
	"taxoclaim/internal/taxon"
	"taxoclaim/internal/wikibase"
)

// DepictsPolicy writes depicts statements on the MediaInfo entity of each
// file. Statements are derived from every category the file belongs to, not
// just the category being walked, so a plate filed under several taxa gets
// one statement per taxon. Files are tracked individually in the ledger.
type DepictsPolicy struct {
	files    FileInspector
	resolver TaxonResolver
	writer   ClaimWriter
	ledger   *ledger.Ledger
	group    *EditGroup
	opts     Options
}

// NewDepictsPolicy builds the policy. The writer must target Commons, where
// the MediaInfo entities live.
func NewDepictsPolicy(files FileInspector, resolver TaxonResolver, writer ClaimWriter, led *ledger.Ledger, group *EditGroup, opts Options) *DepictsPolicy {
	return &DepictsPolicy{
		files:    files,
		resolver: resolver,
		writer:   writer,
		ledger:   led,
		group:    group,
		opts:     opts,
	}
}

// Name identifies the policy in logs.
func (p *DepictsPolicy) Name() string { return "depicts" }

// Reconcile processes the target's files one by one. Per-file failures are
// logged and the walk moves on; only a cancelled context stops the loop.
func (p *DepictsPolicy) Reconcile(ctx context.Context, target Target) (int, error) {
	written := 0
	for _, file := range target.Files {
		if err := ctx.Err(); err != nil {
			return written, errors.New(err).
				Category(errors.CategoryCancellation).
				Component("reconcile").
				Context("category", target.Category).
				Build()
		}
		name := normalizeFileName(file)
		if p.ledger.IsProcessed(ledger.KindFiles, name) {
			logger.Debug("File already processed, skipping", "file", name)
			continue
		}
		n, done := p.reconcileFile(ctx, target, name)
		written += n
		if !done {
			continue
		}
		if err := p.ledger.MarkProcessed(ledger.KindFiles, name); err != nil {
			logger.Error("Failed to record processed file", "file", name, "error", err)
		}
	}
	return written, nil
}

// reconcileFile writes the depicts statements one file needs. It reports
// whether the file counts as handled; files whose state could not be read
// are left unmarked so a later run retries them.
func (p *DepictsPolicy) reconcileFile(ctx context.Context, target Target, name string) (int, bool) {
	fileLogger := logger.With("policy", p.Name(), "file", name, "category", target.Category)

	info, err := p.files.FileInfo(ctx, name)
	if err != nil {
		fileLogger.Warn("Could not load file page, skipping", "error", err)
		return 0, false
	}
	mediaID := info.MediaInfoID()

	existing, err := p.files.StatementValues(ctx, mediaID, p.opts.Properties.Depicts)
	if err != nil {
		if !errors.IsEntityMissing(err) {
			fileLogger.Warn("Could not load existing statements, skipping", "error", err)
			return 0, false
		}
		// No MediaInfo entity yet; the write creates it.
		existing = nil
	}
	depicted := make(map[string]bool, len(existing))
	for _, qid := range existing {
		depicted[qid] = true
	}

	categories, err := p.files.FileCategories(ctx, name)
	if err != nil {
		fileLogger.Warn("Could not load file categories, treating as none", "error", err)
		categories = nil
	}

	// Every category the file sits in nominates a taxon. Names that do not
	// resolve are dropped; the rest dedupe into the candidate list.
	var candidates []string
	seen := make(map[string]bool)
	for _, category := range categories {
		taxonName := taxon.FromCategory(category)
		if taxonName == "" {
			continue
		}
		qid, err := p.resolver.ResolveTaxon(ctx, taxonName)
		if err != nil {
			fileLogger.Debug("Taxon lookup failed", "name", taxonName, "error", err)
			continue
		}
		if qid == "" || seen[qid] {
			continue
		}
		seen[qid] = true
		candidates = append(candidates, qid)
	}

	// A file depicting exactly one taxon gets a preferred-rank statement.
	// The rank reflects what the file depicts, so it is decided before
	// already-present statements are dropped.
	rank := wikibase.RankNormal
	if len(candidates) == 1 {
		rank = wikibase.RankPreferred
	}

	fresh := make([]string, 0, len(candidates))
	for _, qid := range candidates {
		if !depicted[qid] {
			fresh = append(fresh, qid)
		}
	}
	if len(fresh) == 0 {
		fileLogger.Debug("No depicts data to add")
		return 0, true
	}

	permalink := p.files.Permalink(info.Title, info.LastRevID)
	reference := p.opts.provenance(permalink)
	claims := make([]wikibase.Claim, 0, len(fresh))
	for _, qid := range fresh {
		claims = append(claims, wikibase.NewItemClaim(p.opts.Properties.Depicts, qid, rank, reference))
	}

	summary := p.opts.summary(fmt.Sprintf("Add depicts claim for %s", target.Taxon), p.group)

	if p.opts.DryRun {
		fileLogger.Info("Dry run, skipping write",
			"media_id", mediaID, "claims", len(claims), "summary", summary)
		return 0, false
	}
	if err := p.writer.WriteClaims(ctx, mediaID, claims, summary); err != nil {
		if ctx.Err() != nil {
			return 0, false
		}
		// The file still counts as handled: failed writes are not retried.
		fileLogger.Error("Failed to write depicts claims",
			"media_id", mediaID, "claims", len(claims), "error", err)
		return 0, true
	}
	p.group.RecordWrite()
	fileLogger.Info("Added depicts claims",
		"media_id", mediaID, "claims", len(claims), "rank", string(rank))
	return len(claims), true
}
