package reconcile

import (
	"context"
	"fmt"

	"taxoclaim/internal/wikibase"
)

// ItemImagePolicy attaches illustration files to the taxon item itself. The
// primary property is filled first; items that already carry it get the
// secondary property instead, and items carrying both are left alone.
// Existing statements are never overwritten.
type ItemImagePolicy struct {
	files  FileInspector
	reader ClaimReader
	writer ClaimWriter
	group  *EditGroup
	opts   Options
}

// NewItemImagePolicy builds the policy. The writer must target the wiki
// hosting the taxon items, not Commons.
func NewItemImagePolicy(files FileInspector, reader ClaimReader, writer ClaimWriter, group *EditGroup, opts Options) *ItemImagePolicy {
	return &ItemImagePolicy{
		files:  files,
		reader: reader,
		writer: writer,
		group:  group,
		opts:   opts,
	}
}

// Name identifies the policy in logs.
func (p *ItemImagePolicy) Name() string { return "item-image" }

// Reconcile picks the property to fill, drops files the item already uses
// under either property, and appends the rest in a single edit.
func (p *ItemImagePolicy) Reconcile(ctx context.Context, target Target) (int, error) {
	itemLogger := logger.With("policy", p.Name(), "item", target.Taxon, "category", target.Category)

	primary := p.opts.Properties.Image
	secondary := p.opts.Properties.Illustration

	existingPrimary, err := p.reader.PropertyValues(ctx, target.Taxon, primary)
	if err != nil {
		return 0, err
	}
	existingSecondary, err := p.reader.PropertyValues(ctx, target.Taxon, secondary)
	if err != nil {
		return 0, err
	}

	var property string
	switch {
	case len(existingPrimary) == 0:
		property = primary
	case len(existingSecondary) == 0:
		property = secondary
	default:
		itemLogger.Info("Item already carries both image properties, nothing to add")
		return 0, nil
	}

	// Files used under either property are dropped, regardless of which
	// property is being filled.
	used := make(map[string]bool, len(existingPrimary)+len(existingSecondary))
	for _, v := range existingPrimary {
		used[normalizeFileName(v)] = true
	}
	for _, v := range existingSecondary {
		used[normalizeFileName(v)] = true
	}

	var claims []wikibase.Claim
	for _, file := range target.Files {
		name := normalizeFileName(file)
		if used[name] {
			itemLogger.Debug("File already used on item, skipping", "file", name)
			continue
		}
		info, err := p.files.FileInfo(ctx, file)
		if err != nil {
			itemLogger.Warn("Could not load file info, skipping file",
				"file", file, "error", err)
			continue
		}
		permalink := p.files.Permalink(info.Title, info.LastRevID)
		claims = append(claims, wikibase.NewMediaClaim(property, name, p.opts.provenance(permalink)))
	}
	if len(claims) == 0 {
		itemLogger.Debug("No new files for item")
		return 0, nil
	}

	summary := p.opts.summary(
		fmt.Sprintf("Adding %s claims via %s", property, p.opts.BotName), p.group)

	if p.opts.DryRun {
		itemLogger.Info("Dry run, skipping write",
			"property", property, "claims", len(claims), "summary", summary)
		return 0, nil
	}
	if err := p.writer.WriteClaims(ctx, target.Taxon, claims, summary); err != nil {
		itemLogger.Error("Failed to write image claims",
			"property", property, "claims", len(claims), "error", err)
		return 0, nil
	}
	p.group.RecordWrite()
	itemLogger.Info("Added image claims",
		"property", property, "claims", len(claims))
	return len(claims), nil
}
