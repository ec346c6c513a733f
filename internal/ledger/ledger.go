// Package ledger persists the set of already-handled entities per kind so an
// interrupted run can resume without reprocessing anything. Each kind lives
// in its own YAML file as a plain list of names, which keeps the state
// reviewable and diffable by hand.
package ledger

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"taxoclaim/internal/errors"
	"taxoclaim/internal/logging"
)

var logger *slog.Logger

func init() {
	logger = logging.ForService("ledger")
	if logger == nil {
		logger = slog.Default().With("service", "ledger")
	}
}

// Kind identifies one of the independent processed-entity sets.
type Kind string

const (
	KindSpecies  Kind = "species"
	KindGenera   Kind = "genera"
	KindFamilies Kind = "families"
	KindFiles    Kind = "files"
)

var kindFiles = map[Kind]string{
	KindSpecies:  "processed_species.yaml",
	KindGenera:   "processed_genera.yaml",
	KindFamilies: "processed_families.yaml",
	KindFiles:    "processed_files.yaml",
}

// Ledger tracks processed entities in memory and mirrors every change to
// disk. Membership is monotonic within a run: entries are added, never
// removed.
type Ledger struct {
	mu   sync.Mutex
	dir  string
	sets map[Kind]map[string]struct{}
}

// Load reads all ledger files from dir. Missing or unreadable files are
// treated as empty sets so a corrupt ledger degrades to reprocessing, never
// to a crash.
func Load(dir string) (*Ledger, error) {
	if dir == "" {
		return nil, errors.Newf("ledger directory is not configured").
			Component("ledger").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.New(err).
			Component("ledger").
			Category(errors.CategoryLedgerIO).
			Context("operation", "create_ledger_dir").
			Context("dir", dir).
			Build()
	}

	l := &Ledger{
		dir:  dir,
		sets: make(map[Kind]map[string]struct{}, len(kindFiles)),
	}
	for kind := range kindFiles {
		l.sets[kind] = loadSet(l.path(kind))
	}

	logger.Info("Ledger loaded",
		"dir", dir,
		"species", len(l.sets[KindSpecies]),
		"genera", len(l.sets[KindGenera]),
		"families", len(l.sets[KindFamilies]),
		"files", len(l.sets[KindFiles]))
	return l, nil
}

// loadSet reads one kind file into a set. Any read or parse problem yields
// an empty set with a warning.
func loadSet(path string) map[string]struct{} {
	set := make(map[string]struct{})

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Ledger file unreadable, starting with empty set", "path", path, "error", err)
		}
		return set
	}

	var names []string
	if err := yaml.Unmarshal(data, &names); err != nil {
		logger.Warn("Ledger file corrupt, starting with empty set", "path", path, "error", err)
		return set
	}

	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

func (l *Ledger) path(kind Kind) string {
	return filepath.Join(l.dir, kindFiles[kind])
}

// IsProcessed reports whether id was already handled for the given kind.
func (l *Ledger) IsProcessed(kind Kind, id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.sets[kind][id]
	return ok
}

// MarkProcessed records id as handled and immediately rewrites the kind's
// file, so an interruption right after a unit of work never repeats it.
func (l *Ledger) MarkProcessed(kind Kind, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	set, ok := l.sets[kind]
	if !ok {
		return errors.Newf("unknown ledger kind: %s", kind).
			Component("ledger").
			Category(errors.CategoryValidation).
			Context("kind", string(kind)).
			Build()
	}
	if _, exists := set[id]; exists {
		return nil
	}
	set[id] = struct{}{}

	if err := l.saveSet(kind); err != nil {
		return err
	}
	logger.Debug("Entity marked processed", "kind", string(kind), "id", id, "total", len(set))
	return nil
}

// Count returns the number of processed entries for a kind.
func (l *Ledger) Count(kind Kind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sets[kind])
}

// saveSet rewrites one kind's file with the full sorted set. The caller must
// hold l.mu. Sorting keeps the files stable across runs so diffs show only
// real additions.
func (l *Ledger) saveSet(kind Kind) error {
	set := l.sets[kind]
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)

	data, err := yaml.Marshal(names)
	if err != nil {
		return errors.New(err).
			Component("ledger").
			Category(errors.CategoryLedgerIO).
			Context("operation", "marshal_ledger").
			Context("kind", string(kind)).
			Build()
	}

	path := l.path(kind)

	// Write to a temporary file first so a crash mid-write cannot leave a
	// truncated ledger behind
	tempFile, err := os.CreateTemp(l.dir, "ledger-*.yaml")
	if err != nil {
		return errors.New(err).
			Component("ledger").
			Category(errors.CategoryLedgerIO).
			Context("operation", "create_temp").
			Context("kind", string(kind)).
			Build()
	}
	tempName := tempFile.Name()
	defer os.Remove(tempName)

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return errors.New(err).
			Component("ledger").
			Category(errors.CategoryLedgerIO).
			Context("operation", "write_temp").
			Context("kind", string(kind)).
			Build()
	}
	if err := tempFile.Close(); err != nil {
		return errors.New(err).
			Component("ledger").
			Category(errors.CategoryLedgerIO).
			Context("operation", "close_temp").
			Context("kind", string(kind)).
			Build()
	}

	if err := os.Rename(tempName, path); err != nil {
		return errors.New(err).
			Component("ledger").
			Category(errors.CategoryLedgerIO).
			Context("operation", "rename_temp").
			Context("path", path).
			Build()
	}
	return nil
}
