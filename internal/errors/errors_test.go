package errors

import (
	"fmt"
	"io"
	"testing"
)

func TestBuildDefaults(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("test error")
	ee := New(err).Build()

	if ee.Err.Error() != "test error" {
		t.Errorf("Expected error message 'test error', got '%s'", ee.Err.Error())
	}

	if ee.Category != CategoryGeneric {
		t.Errorf("Expected category 'generic', got '%s'", ee.Category)
	}

	if ee.GetTimestamp().IsZero() {
		t.Error("Expected timestamp to be set")
	}
}

func TestBuilderChain(t *testing.T) {
	t.Parallel()

	ee := Newf("lookup of %q failed", "Iris sibirica").
		Component("wikidata").
		Category(CategoryTaxonLookup).
		Context("taxon_name", "Iris sibirica").
		Context("attempt", 2).
		Build()

	if ee.GetComponent() != "wikidata" {
		t.Errorf("Expected component 'wikidata', got '%s'", ee.GetComponent())
	}
	if ee.Category != CategoryTaxonLookup {
		t.Errorf("Expected category 'taxon-lookup', got '%s'", ee.Category)
	}

	ctx := ee.GetContext()
	if ctx["taxon_name"] != "Iris sibirica" {
		t.Errorf("Expected taxon_name context, got %v", ctx["taxon_name"])
	}
	if ctx["attempt"] != 2 {
		t.Errorf("Expected attempt context 2, got %v", ctx["attempt"])
	}
}

func TestContextCopyIsIsolated(t *testing.T) {
	t.Parallel()

	ee := Newf("boom").Context("key", "value").Build()

	ctx := ee.GetContext()
	ctx["key"] = "mutated"

	if ee.GetContext()["key"] != "value" {
		t.Error("Mutating the returned context must not affect the error")
	}
}

func TestCategoryDetection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected ErrorCategory
	}{
		{"entity missing", fmt.Errorf("API said no-such-entity for M123"), CategoryEntityMissing},
		{"not found", fmt.Errorf("category not found"), CategoryNotFound},
		{"timeout", fmt.Errorf("request timeout after 30s"), CategoryTimeout},
		{"deadline", fmt.Errorf("context deadline exceeded"), CategoryTimeout},
		{"canceled", fmt.Errorf("context canceled"), CategoryCancellation},
		{"network", fmt.Errorf("dial tcp: connection refused"), CategoryNetwork},
		{"parsing", fmt.Errorf("cannot unmarshal response body"), CategoryFileParsing},
		{"generic", fmt.Errorf("something odd"), CategoryGeneric},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ee := New(tt.err).Build()
			if ee.Category != tt.expected {
				t.Errorf("Expected category '%s', got '%s'", tt.expected, ee.Category)
			}
		})
	}
}

type categorizedTestError struct{ msg string }

func (e *categorizedTestError) Error() string                { return e.msg }
func (e *categorizedTestError) ErrorCategory() ErrorCategory { return CategoryClaimWrite }

func TestCategorizedErrorInterface(t *testing.T) {
	t.Parallel()

	ee := New(&categorizedTestError{msg: "write rejected"}).Build()
	if ee.Category != CategoryClaimWrite {
		t.Errorf("Expected category from CategorizedError, got '%s'", ee.Category)
	}
}

func TestUnwrapAndIs(t *testing.T) {
	t.Parallel()

	ee := New(io.EOF).Category(CategoryNetwork).Build()

	if !Is(ee, io.EOF) {
		t.Error("Expected errors.Is to find the wrapped sentinel")
	}
	if Unwrap(ee) != io.EOF {
		t.Error("Expected Unwrap to return the original error")
	}
}

func TestIsCategoryThroughWrapping(t *testing.T) {
	t.Parallel()

	inner := Newf("entity M42 does not exist").Category(CategoryEntityMissing).Build()
	wrapped := fmt.Errorf("reading depicts: %w", inner)

	if !IsCategory(wrapped, CategoryEntityMissing) {
		t.Error("Expected IsCategory to see through fmt.Errorf wrapping")
	}
	if !IsEntityMissing(wrapped) {
		t.Error("Expected IsEntityMissing helper to match")
	}
	if IsNotFound(wrapped) {
		t.Error("Did not expect IsNotFound to match an entity-missing error")
	}
}

func TestPriorityValidation(t *testing.T) {
	t.Parallel()

	if got := Newf("x").Priority(PriorityCritical).Build().GetPriority(); got != PriorityCritical {
		t.Errorf("Expected critical priority, got '%s'", got)
	}
	if got := Newf("x").Priority("bogus").Build().GetPriority(); got != PriorityMedium {
		t.Errorf("Expected invalid priority to fall back to medium, got '%s'", got)
	}
	if got := Newf("x").Build().GetPriority(); got != "" {
		t.Errorf("Expected empty priority by default, got '%s'", got)
	}
}

func TestComponentLookup(t *testing.T) {
	t.Parallel()

	if got := lookupComponent("taxoclaim/internal/ledger.(*Ledger).Save"); got != "ledger" {
		t.Errorf("Expected 'ledger', got '%s'", got)
	}
	if got := lookupComponent("taxoclaim/internal/errors.New"); got != "" {
		t.Errorf("Expected errors package frames to be skipped, got '%s'", got)
	}
	if got := lookupComponent("net/http.(*Client).Do"); got != "" {
		t.Errorf("Expected unregistered package to yield empty, got '%s'", got)
	}
}
