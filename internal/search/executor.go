package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/blevesearch/bleve/v2"
	bsearch "github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/Aman-CERP/amandrive/internal/index"
	"github.com/Aman-CERP/amandrive/internal/store"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// scoreNone disables scoring on requests that only need ids or counts.
const scoreNone = "none"

// Executor runs searches and pages through the results.
type Executor struct {
	searcher Searcher
	metadata store.MetadataStore
	builder  *Builder
	config   Config
}

// ExecutorOption configures the executor.
type ExecutorOption func(*Executor)

// WithBuilder sets the query builder. Defaults to NewBuilder(DefaultBoosts()).
func WithBuilder(b *Builder) ExecutorOption {
	return func(e *Executor) {
		if b != nil {
			e.builder = b
		}
	}
}

// NewExecutor creates an executor over searcher, resolving hits through
// metadata.
func NewExecutor(searcher Searcher, metadata store.MetadataStore, config Config, opts ...ExecutorOption) (*Executor, error) {
	if searcher == nil {
		return nil, fmt.Errorf("searcher: %w", ErrNilDependency)
	}
	if metadata == nil {
		return nil, fmt.Errorf("metadata store: %w", ErrNilDependency)
	}
	def := DefaultConfig()
	if config.MaxPageSize <= 0 {
		config.MaxPageSize = def.MaxPageSize
	}
	if config.DefaultPageSize <= 0 {
		config.DefaultPageSize = def.DefaultPageSize
	}
	if config.DefaultPageSize > config.MaxPageSize {
		config.DefaultPageSize = config.MaxPageSize
	}

	e := &Executor{
		searcher: searcher,
		metadata: metadata,
		builder:  NewBuilder(DefaultBoosts()),
		config:   config,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search returns one page of records matching req plus the total number of
// matches. A blank keyword yields an empty response, not an error.
func (e *Executor) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	req = e.applyDefaults(req)
	resp := &Response{Files: []*store.File{}, Page: req.Page, PageSize: req.PageSize}

	q := e.builder.Build(req)
	if q == nil {
		searchesTotal.WithLabelValues("empty").Inc()
		return resp, nil
	}

	files, total, err := e.run(ctx, q, req)
	searchDuration.WithLabelValues(sortLabel(req.SortField)).Observe(time.Since(start).Seconds())
	if err != nil {
		searchesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if total == 0 {
		searchesTotal.WithLabelValues("empty").Inc()
	} else {
		searchesTotal.WithLabelValues("hit").Inc()
	}

	resp.Files = files
	resp.TotalCount = total
	slog.Debug("search_completed",
		slog.String("owner", req.OwnerID),
		slog.Int("page", req.Page),
		slog.Int("returned", len(files)),
		slog.Uint64("total", total),
		slog.Duration("duration", time.Since(start)))
	return resp, nil
}

func (e *Executor) run(ctx context.Context, q query.Query, req Request) ([]*store.File, uint64, error) {
	total, err := e.count(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []*store.File{}, 0, nil
	}

	order := sortOrder(req)
	var after []string
	var offset int
	if req.Page > 1 {
		after, offset, err = e.skip(ctx, q, order, (req.Page-1)*req.PageSize)
		if err != nil {
			return nil, 0, err
		}
	}

	pageReq := bleve.NewSearchRequestOptions(q, req.PageSize, offset, false)
	pageReq.SortByCustom(order)
	if after != nil {
		pageReq.SearchAfter = after
	}
	res, err := e.searcher.Search(ctx, pageReq)
	if err != nil {
		return nil, 0, fmt.Errorf("search page %d: %w", req.Page, err)
	}

	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	if len(ids) == 0 {
		return []*store.File{}, total, nil
	}

	files, err := e.metadata.GetFilesOrdered(ctx, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("resolve %d hits: %w", len(ids), err)
	}
	if len(files) < len(ids) {
		slog.Debug("search_hits_without_metadata",
			slog.Int("hits", len(ids)),
			slog.Int("resolved", len(files)))
	}
	return files, total, nil
}

// count returns the exact number of matches for q.
func (e *Executor) count(ctx context.Context, q query.Query) (uint64, error) {
	req := bleve.NewSearchRequestOptions(q, 0, 0, false)
	req.Score = scoreNone
	res, err := e.searcher.Search(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("count matches: %w", err)
	}
	return res.Total, nil
}

// skip fetches the first n hits in order and positions the page after
// them. The position is the SearchAfter key of the last hit, or the offset n
// when that hit lacks a sort value, since the missing-value sentinel is not
// a valid key. A short result means the page is served from the start, so
// neither is returned.
func (e *Executor) skip(ctx context.Context, q query.Query, order bsearch.SortOrder, n int) ([]string, int, error) {
	req := bleve.NewSearchRequestOptions(q, n, 0, false)
	req.SortByCustom(order)
	if !order.RequiresScore() {
		req.Score = scoreNone
	}
	res, err := e.searcher.Search(ctx, req)
	if err != nil {
		return nil, 0, fmt.Errorf("skip %d hits: %w", n, err)
	}
	if len(res.Hits) < n {
		return nil, 0, nil
	}
	after, ok := afterKey(order, res.Hits[len(res.Hits)-1])
	if !ok {
		return nil, n, nil
	}
	return after, 0, nil
}

func (e *Executor) applyDefaults(req Request) Request {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = e.config.DefaultPageSize
	}
	if req.PageSize > e.config.MaxPageSize {
		req.PageSize = e.config.MaxPageSize
	}
	return req
}

// sortOrder returns the hit order for req. The document id always breaks
// ties so the order is total.
func sortOrder(req Request) bsearch.SortOrder {
	var field string
	switch req.SortField {
	case SortModified:
		field = index.FieldModified
	case SortSize:
		field = index.FieldSize
	default:
		return bsearch.SortOrder{
			&bsearch.SortScore{Desc: true},
			&bsearch.SortDocID{},
		}
	}
	return bsearch.SortOrder{
		&bsearch.SortField{
			Field:   field,
			Type:    bsearch.SortFieldAsNumber,
			Desc:    req.Descending,
			Missing: bsearch.SortFieldMissingLast,
		},
		&bsearch.SortDocID{Desc: req.Descending},
	}
}

// afterKey converts a hit's sort values into a SearchAfter key. Field
// values are taken decoded, as bleve prefix-codes the key again. ok is false
// when the hit has no value for a sorted field.
func afterKey(order bsearch.SortOrder, hit *bsearch.DocumentMatch) (key []string, ok bool) {
	key = make([]string, len(order))
	for i, s := range order {
		switch s.(type) {
		case *bsearch.SortScore:
			key[i] = strconv.FormatFloat(hit.Score, 'g', -1, 64)
		case *bsearch.SortDocID:
			key[i] = hit.ID
		default:
			if i >= len(hit.Sort) || i >= len(hit.DecodedSort) ||
				hit.Sort[i] == bsearch.HighTerm || hit.Sort[i] == bsearch.LowTerm {
				return nil, false
			}
			key[i] = hit.DecodedSort[i]
		}
	}
	return key, true
}

func sortLabel(f SortField) string {
	if f == SortRelevance {
		return "relevance"
	}
	return string(f)
}
