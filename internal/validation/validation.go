// Package validation runs data-driven relevance checks against a search
// backend. A query file lists searches and the files each must (or must
// not) return; the same file can carry a corpus so the checks run against
// a throwaway drive in tests.
//
// Tiers:
//
//	tier1     an expected file must be the first result
//	tier2     an expected file must appear on the first page
//	negative  no forbidden file may appear, and the search must not fail
package validation

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/amandrive/internal/extract"
	"github.com/Aman-CERP/amandrive/internal/search"
)

// Searcher runs one search. *engine.Engine and *api.Client satisfy it.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
}

// QuerySpec is one relevance check.
type QuerySpec struct {
	ID        string   `yaml:"id"`
	Name      string   `yaml:"name"`
	Owner     string   `yaml:"owner"`
	Query     string   `yaml:"query"`
	Category  string   `yaml:"category,omitempty"`
	Sort      string   `yaml:"sort,omitempty"`
	Expected  []string `yaml:"expected,omitempty"`
	Forbidden []string `yaml:"forbidden,omitempty"`
	Notes     string   `yaml:"notes,omitempty"`
	Tier      int      `yaml:"-"`
}

// Corpus maps owner to owner-relative file path to file content.
type Corpus map[string]map[string]string

// QueryFile is the YAML document holding the checks.
type QueryFile struct {
	Corpus   Corpus      `yaml:"corpus,omitempty"`
	Tier1    []QuerySpec `yaml:"tier1"`
	Tier2    []QuerySpec `yaml:"tier2"`
	Negative []QuerySpec `yaml:"negative"`
}

// LoadQueries reads a query file.
func LoadQueries(path string) (*QueryFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read queries file %s: %w", path, err)
	}
	var qf QueryFile
	if err := yaml.Unmarshal(data, &qf); err != nil {
		return nil, fmt.Errorf("failed to parse queries file %s: %w", path, err)
	}
	for i := range qf.Tier1 {
		qf.Tier1[i].Tier = 1
	}
	for i := range qf.Tier2 {
		qf.Tier2[i].Tier = 2
	}
	if err := qf.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &qf, nil
}

func (qf *QueryFile) validate() error {
	seen := make(map[string]bool)
	for _, group := range [][]QuerySpec{qf.Tier1, qf.Tier2, qf.Negative} {
		for _, s := range group {
			switch {
			case s.ID == "":
				return fmt.Errorf("query %q has no id", s.Query)
			case seen[s.ID]:
				return fmt.Errorf("duplicate query id %s", s.ID)
			case s.Owner == "":
				return fmt.Errorf("query %s has no owner", s.ID)
			case s.Tier > 0 && len(s.Expected) == 0:
				return fmt.Errorf("query %s expects nothing", s.ID)
			}
			if s.Category != "" {
				if _, ok := extract.ParseCategory(s.Category); !ok {
					return fmt.Errorf("query %s has unknown category %q", s.ID, s.Category)
				}
			}
			seen[s.ID] = true
		}
	}
	return nil
}

// Seed writes the corpus below root as <root>/<owner>/<path>.
func (c Corpus) Seed(root string) error {
	for owner, files := range c {
		for rel, content := range files {
			abs := filepath.Join(root, owner, filepath.FromSlash(rel))
			if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
				return err
			}
		}
	}
	return nil
}

// TestResult is the outcome of one check.
type TestResult struct {
	Spec       QuerySpec `json:"spec"`
	Passed     bool      `json:"passed"`
	DurationMS int64     `json:"duration_ms"`
	TopResults []string  `json:"top_results"`
	// MatchedAt is the rank of the first expected file, -1 when absent.
	MatchedAt int    `json:"matched_at"`
	Error     string `json:"error,omitempty"`
}

// Result summarises a full run.
type Result struct {
	Timestamp  time.Time    `json:"timestamp"`
	Tier1      []TestResult `json:"tier1"`
	Tier2      []TestResult `json:"tier2"`
	Negative   []TestResult `json:"negative"`
	Tier1Pass  int          `json:"tier1_pass"`
	Tier1Total int          `json:"tier1_total"`
	Tier2Pass  int          `json:"tier2_pass"`
	Tier2Total int          `json:"tier2_total"`
	NegPass    int          `json:"negative_pass"`
	NegTotal   int          `json:"negative_total"`
}

// Passed reports whether every check passed.
func (r *Result) Passed() bool {
	return r.Tier1Pass == r.Tier1Total && r.Tier2Pass == r.Tier2Total && r.NegPass == r.NegTotal
}

// Failures returns the failed checks.
func (r *Result) Failures() []TestResult {
	var failed []TestResult
	for _, group := range [][]TestResult{r.Tier1, r.Tier2, r.Negative} {
		for _, tr := range group {
			if !tr.Passed {
				failed = append(failed, tr)
			}
		}
	}
	return failed
}

// Validator runs checks against a Searcher.
type Validator struct {
	searcher Searcher
	pageSize int
}

// NewValidator creates a validator inspecting the first pageSize results.
func NewValidator(searcher Searcher, pageSize int) *Validator {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &Validator{searcher: searcher, pageSize: pageSize}
}

// RunQuery runs one check.
func (v *Validator) RunQuery(ctx context.Context, spec QuerySpec) TestResult {
	result := TestResult{Spec: spec, MatchedAt: -1}

	start := time.Now()
	resp, err := v.searcher.Search(ctx, search.Request{
		OwnerID:   spec.Owner,
		Keyword:   spec.Query,
		Category:  spec.Category,
		SortField: search.ParseSortField(spec.Sort),
		PageSize:  v.pageSize,
	})
	result.DurationMS = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = err.Error()
		return result
	}

	for _, f := range resp.Files {
		result.TopResults = append(result.TopResults, path.Join(f.Path, f.Name))
	}
	result.MatchedAt = firstMatch(result.TopResults, spec.Expected)

	switch spec.Tier {
	case 1:
		result.Passed = result.MatchedAt == 0
	case 2:
		result.Passed = result.MatchedAt >= 0
	default:
		result.Passed = firstMatch(result.TopResults, spec.Forbidden) < 0
	}
	if result.Passed && spec.Tier > 0 {
		result.Passed = firstMatch(result.TopResults, spec.Forbidden) < 0
	}
	return result
}

// RunAll runs every check in qf.
func (v *Validator) RunAll(ctx context.Context, qf *QueryFile) *Result {
	r := &Result{Timestamp: time.Now()}
	run := func(specs []QuerySpec, results *[]TestResult, pass, total *int) {
		for _, spec := range specs {
			tr := v.RunQuery(ctx, spec)
			*results = append(*results, tr)
			*total++
			if tr.Passed {
				*pass++
			}
		}
	}
	run(qf.Tier1, &r.Tier1, &r.Tier1Pass, &r.Tier1Total)
	run(qf.Tier2, &r.Tier2, &r.Tier2Pass, &r.Tier2Total)
	run(qf.Negative, &r.Negative, &r.NegPass, &r.NegTotal)
	return r
}

// firstMatch returns the rank of the first result ending in one of want,
// compared as owner-relative paths, or -1.
func firstMatch(results, want []string) int {
	for i, p := range results {
		for _, w := range want {
			w = "/" + strings.TrimPrefix(w, "/")
			if p == w || strings.HasSuffix(p, w) {
				return i
			}
		}
	}
	return -1
}
