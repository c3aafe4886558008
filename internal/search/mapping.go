package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/cjk"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the Bleve index mapping for tag documents.
//
// Tag content is mostly Traditional Chinese, so the content field uses the
// CJK bigram analyzer. Category and vote count are numeric for filtering and
// sorting.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = cjk.AnalyzerName

	docMapping := bleve.NewDocumentMapping()

	contentFieldMapping := bleve.NewTextFieldMapping()
	contentFieldMapping.Analyzer = cjk.AnalyzerName
	contentFieldMapping.Store = true
	contentFieldMapping.IncludeTermVectors = true // For highlighting
	docMapping.AddFieldMappingsAt("content", contentFieldMapping)

	idFieldMapping := bleve.NewTextFieldMapping()
	idFieldMapping.Analyzer = keyword.Name
	idFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("id", idFieldMapping)

	categoryFieldMapping := bleve.NewNumericFieldMapping()
	categoryFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("category_id", categoryFieldMapping)

	voteFieldMapping := bleve.NewNumericFieldMapping()
	voteFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("vote_count", voteFieldMapping)

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}
