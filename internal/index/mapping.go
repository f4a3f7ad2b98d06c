package index

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/cjk"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/single"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Index entry field names.
const (
	FieldID         = "id"
	FieldOwner      = "owner"
	FieldCategory   = "category"
	FieldPath       = "path"
	FieldName       = "name"
	FieldNameText   = "name_text"
	FieldTag        = "tag"
	FieldTagText    = "tag_text"
	FieldContent    = "content"
	FieldIsFolder   = "is_folder"
	FieldIsFavorite = "is_favorite"
	FieldModified   = "modified"
	FieldSize       = "size"
)

const (
	// KeywordLowerAnalyzer indexes a whole value as one lower-cased term.
	KeywordLowerAnalyzer = "keyword_lc"

	// TextAnalyzer tokenizes free text; CJK runs become bigrams.
	TextAnalyzer = cjk.AnalyzerName
)

// NewIndexMapping returns the bleve mapping for index entries. Only the
// listed fields are indexed; anything else in a document is ignored.
func NewIndexMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()

	err := im.AddCustomAnalyzer(KeywordLowerAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     single.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add %s analyzer: %w", KeywordLowerAnalyzer, err)
	}
	im.DefaultAnalyzer = TextAnalyzer

	exact := func(store bool) *mapping.FieldMapping {
		fm := bleve.NewKeywordFieldMapping()
		fm.Analyzer = keyword.Name
		fm.Store = store
		fm.IncludeInAll = false
		fm.IncludeTermVectors = false
		return fm
	}
	exactLower := func() *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = KeywordLowerAnalyzer
		fm.Store = false
		fm.IncludeInAll = false
		return fm
	}
	text := func() *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = TextAnalyzer
		fm.Store = false
		fm.IncludeInAll = false
		fm.IncludeTermVectors = true
		return fm
	}
	boolean := func() *mapping.FieldMapping {
		fm := bleve.NewBooleanFieldMapping()
		fm.Store = false
		fm.IncludeInAll = false
		return fm
	}
	numeric := func() *mapping.FieldMapping {
		fm := bleve.NewNumericFieldMapping()
		fm.Store = false
		fm.IncludeInAll = false
		fm.DocValues = true
		return fm
	}

	doc := bleve.NewDocumentStaticMapping()
	doc.AddFieldMappingsAt(FieldID, exact(true))
	doc.AddFieldMappingsAt(FieldOwner, exact(false))
	doc.AddFieldMappingsAt(FieldCategory, exact(false))
	doc.AddFieldMappingsAt(FieldPath, exact(false))
	doc.AddFieldMappingsAt(FieldName, exactLower())
	doc.AddFieldMappingsAt(FieldNameText, text())
	doc.AddFieldMappingsAt(FieldTag, exactLower())
	doc.AddFieldMappingsAt(FieldTagText, text())
	doc.AddFieldMappingsAt(FieldContent, text())
	doc.AddFieldMappingsAt(FieldIsFolder, boolean())
	doc.AddFieldMappingsAt(FieldIsFavorite, boolean())
	doc.AddFieldMappingsAt(FieldModified, numeric())
	doc.AddFieldMappingsAt(FieldSize, numeric())

	im.DefaultMapping = doc
	im.StoreDynamic = false
	im.IndexDynamic = false
	im.DocValuesDynamic = false
	return im, nil
}
