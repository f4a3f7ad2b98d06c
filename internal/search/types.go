// Package search turns drive search requests into bleve queries, pages
// through the ranked hits and resolves them to metadata records.
package search

import (
	"context"
	"strings"

	"github.com/blevesearch/bleve/v2"

	"github.com/Aman-CERP/amandrive/internal/store"
)

// Searcher runs a prepared request against a point-in-time view of the
// index. *index.Writer satisfies it.
type Searcher interface {
	Search(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error)
}

// SortField names an orderable property of an index entry.
type SortField string

const (
	// SortRelevance orders by score, best first.
	SortRelevance SortField = ""
	SortModified  SortField = "modified"
	SortSize      SortField = "size"
)

// ParseSortField maps a request property to a SortField. The web layer's
// names (updateDate, size) are accepted alongside the field names. Unknown
// values fall back to relevance.
func ParseSortField(s string) SortField {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "modified", "updatedate", "update_date", "modtime":
		return SortModified
	case "size":
		return SortSize
	default:
		return SortRelevance
	}
}

// IsDescending reports whether a direction string asks for descending
// order. Anything else is ascending.
func IsDescending(direction string) bool {
	switch strings.ToLower(strings.TrimSpace(direction)) {
	case "descending", "desc":
		return true
	default:
		return false
	}
}

// Request is one drive search.
type Request struct {
	OwnerID string
	Keyword string

	// Optional filters.
	Category   string
	PathPrefix string
	IsFolder   *bool
	IsFavorite *bool

	SortField  SortField
	Descending bool

	// Page is 1-based. Values below 1 are treated as 1.
	Page     int
	PageSize int
}

// Response holds one page of records in ranked order and the exact number
// of matching entries.
type Response struct {
	Files      []*store.File `json:"records"`
	TotalCount uint64        `json:"totalCount"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
}

// Config configures paging limits for the executor.
type Config struct {
	DefaultPageSize int
	MaxPageSize     int
}

// DefaultConfig returns the default paging limits.
func DefaultConfig() Config {
	return Config{
		DefaultPageSize: 20,
		MaxPageSize:     200,
	}
}
