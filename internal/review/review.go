// Package review persists categories whose file count exceeds the
// auto-process threshold, mapping each category title to its files so a
// human can triage them later.
package review

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"taxoclaim/internal/errors"
	"taxoclaim/internal/logging"
)

var logger *slog.Logger

func init() {
	logger = logging.ForService("review")
	if logger == nil {
		logger = slog.Default().With("service", "review")
	}
}

// Sink writes review entries to a single YAML file. Every write merges into
// the file's current contents, so entries collected by earlier runs survive;
// recording the same category again replaces its file list with the fresh
// one.
type Sink struct {
	mu   sync.Mutex
	path string
}

// NewSink returns a Sink backed by the YAML file at path.
func NewSink(path string) *Sink {
	return &Sink{path: path}
}

// Record merges one category and its file list into the review file.
func (s *Sink) Record(category string, files []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	entries[category] = files

	if err := s.save(entries); err != nil {
		return err
	}
	logger.Info("Category routed to review", "category", category, "files", len(files), "path", s.path)
	return nil
}

// Load returns all review entries currently on disk.
func (s *Sink) Load() (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// load reads the review file. A missing file is an empty map; a corrupt one
// is an error, because silently overwriting it would destroy triage notes.
func (s *Sink) load() (map[string][]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string][]string), nil
		}
		return nil, errors.New(err).
			Component("review").
			Category(errors.CategoryReviewIO).
			Context("operation", "read_review_file").
			Context("path", s.path).
			Build()
	}

	entries := make(map[string][]string)
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, errors.New(err).
			Component("review").
			Category(errors.CategoryReviewIO).
			Context("operation", "parse_review_file").
			Context("path", s.path).
			Build()
	}
	return entries, nil
}

func (s *Sink) save(entries map[string][]string) error {
	data, err := yaml.Marshal(entries)
	if err != nil {
		return errors.New(err).
			Component("review").
			Category(errors.CategoryReviewIO).
			Context("operation", "marshal_review").
			Build()
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.New(err).
			Component("review").
			Category(errors.CategoryReviewIO).
			Context("operation", "create_review_dir").
			Context("dir", dir).
			Build()
	}

	tempFile, err := os.CreateTemp(dir, "review-*.yaml")
	if err != nil {
		return errors.New(err).
			Component("review").
			Category(errors.CategoryReviewIO).
			Context("operation", "create_temp").
			Build()
	}
	tempName := tempFile.Name()
	defer os.Remove(tempName)

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return errors.New(err).
			Component("review").
			Category(errors.CategoryReviewIO).
			Context("operation", "write_temp").
			Build()
	}
	if err := tempFile.Close(); err != nil {
		return errors.New(err).
			Component("review").
			Category(errors.CategoryReviewIO).
			Context("operation", "close_temp").
			Build()
	}

	if err := os.Rename(tempName, s.path); err != nil {
		return errors.New(err).
			Component("review").
			Category(errors.CategoryReviewIO).
			Context("operation", "rename_temp").
			Context("path", s.path).
			Build()
	}
	return nil
}
