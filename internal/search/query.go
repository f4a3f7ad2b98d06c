package search

import (
	"regexp"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/Aman-CERP/amandrive/internal/index"
)

// Searchable field keys used in Boosts.Fields.
const (
	BoostName    = "name"
	BoostTag     = "tag"
	BoostContent = "content"
)

// Boosts holds per-field relevance weights and the multiplier applied to
// the substring strategy.
type Boosts struct {
	Fields    map[string]float64
	Substring float64
}

// DefaultBoosts weighs name over tag over content, and substring matches
// above everything else.
func DefaultBoosts() Boosts {
	return Boosts{
		Fields: map[string]float64{
			BoostName:    3,
			BoostTag:     2,
			BoostContent: 1,
		},
		Substring: 10,
	}
}

func (b Boosts) weight(field string) float64 {
	if w, ok := b.Fields[field]; ok && w > 0 {
		return w
	}
	return 1
}

// textField pairs a boost key with the exact and tokenized index fields
// that hold it. Content has no exact variant.
type textField struct {
	key       string
	exact     string
	tokenized string
}

var textFields = []textField{
	{key: BoostName, exact: index.FieldName, tokenized: index.FieldNameText},
	{key: BoostTag, exact: index.FieldTag, tokenized: index.FieldTagText},
	{key: BoostContent, tokenized: index.FieldContent},
}

// Builder assembles the bleve query for a Request.
type Builder struct {
	boosts Boosts
}

// NewBuilder creates a Builder. Zero-valued boosts fall back to defaults.
func NewBuilder(boosts Boosts) *Builder {
	def := DefaultBoosts()
	if len(boosts.Fields) == 0 {
		boosts.Fields = def.Fields
	}
	if boosts.Substring <= 0 {
		boosts.Substring = def.Substring
	}
	return &Builder{boosts: boosts}
}

// Build returns the query for req, or nil when the keyword is blank or no
// owner is given. A nil query matches nothing.
func (b *Builder) Build(req Request) query.Query {
	keyword := strings.ToLower(strings.TrimSpace(req.Keyword))
	if keyword == "" || strings.TrimSpace(req.OwnerID) == "" {
		return nil
	}

	owner := bleve.NewTermQuery(req.OwnerID)
	owner.SetField(index.FieldOwner)
	clauses := []query.Query{owner}

	if req.Category != "" {
		q := bleve.NewTermQuery(req.Category)
		q.SetField(index.FieldCategory)
		clauses = append(clauses, q)
	}
	if req.PathPrefix != "" {
		q := bleve.NewPrefixQuery(req.PathPrefix)
		q.SetField(index.FieldPath)
		clauses = append(clauses, q)
	}
	if req.IsFolder != nil {
		q := bleve.NewBoolFieldQuery(*req.IsFolder)
		q.SetField(index.FieldIsFolder)
		clauses = append(clauses, q)
	}
	if req.IsFavorite != nil {
		q := bleve.NewBoolFieldQuery(*req.IsFavorite)
		q.SetField(index.FieldIsFavorite)
		clauses = append(clauses, q)
	}

	clauses = append(clauses, b.relevance(keyword))
	return bleve.NewConjunctionQuery(clauses...)
}

// relevance ORs the substring, phrase and tokenized strategies.
func (b *Builder) relevance(keyword string) query.Query {
	return bleve.NewDisjunctionQuery(
		b.substring(keyword),
		b.phrase(keyword),
		b.tokenized(keyword),
	)
}

// substring matches the keyword anywhere inside the whole lower-cased name
// or tag, so fragments that are not tokens still hit.
func (b *Builder) substring(keyword string) query.Query {
	pattern := ".*" + regexp.QuoteMeta(keyword) + ".*"
	var qs []query.Query
	for _, f := range textFields {
		if f.exact == "" {
			continue
		}
		q := bleve.NewRegexpQuery(pattern)
		q.SetField(f.exact)
		q.SetBoost(b.boosts.weight(f.key))
		qs = append(qs, q)
	}
	group := bleve.NewDisjunctionQuery(qs...)
	group.SetBoost(b.boosts.Substring)
	return group
}

func (b *Builder) phrase(keyword string) query.Query {
	qs := make([]query.Query, 0, len(textFields))
	for _, f := range textFields {
		q := bleve.NewMatchPhraseQuery(keyword)
		q.SetField(f.tokenized)
		q.SetBoost(b.boosts.weight(f.key))
		qs = append(qs, q)
	}
	return bleve.NewDisjunctionQuery(qs...)
}

func (b *Builder) tokenized(keyword string) query.Query {
	qs := make([]query.Query, 0, len(textFields))
	for _, f := range textFields {
		q := bleve.NewMatchQuery(keyword)
		q.SetField(f.tokenized)
		q.SetOperator(query.MatchQueryOperatorOr)
		q.SetBoost(b.boosts.weight(f.key))
		qs = append(qs, q)
	}
	return bleve.NewDisjunctionQuery(qs...)
}
