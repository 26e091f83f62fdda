package transactions

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// searchDocument is the indexed projection of a transaction
type searchDocument struct {
	Description string   `json:"description"`
	Notes       string   `json:"notes"`
	Tags        []string `json:"tags"`
	Category    string   `json:"category"`
	Type        string   `json:"type"`
}

// searchIndex is an in-memory full-text index over description, notes and tags.
// Callers serialise access through the manager's lock.
type searchIndex struct {
	index bleve.Index
}

func newSearchIndex(txns []Transaction) (*searchIndex, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create search index: %w", err)
	}
	si := &searchIndex{index: index}
	if err := si.indexAll(txns); err != nil {
		return nil, err
	}
	return si, nil
}

func buildIndexMapping() mapping.IndexMapping {
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = simple.Name

	keywordFieldMapping := bleve.NewTextFieldMapping()
	keywordFieldMapping.Analyzer = keyword.Name

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("description", textFieldMapping)
	docMapping.AddFieldMappingsAt("notes", textFieldMapping)
	docMapping.AddFieldMappingsAt("tags", textFieldMapping)
	docMapping.AddFieldMappingsAt("category", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("type", keywordFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = simple.Name
	return indexMapping
}

func toSearchDocument(t Transaction) searchDocument {
	return searchDocument{
		Description: t.Description,
		Notes:       t.Notes,
		Tags:        t.Tags,
		Category:    t.Category,
		Type:        string(t.Type),
	}
}

func (si *searchIndex) indexAll(txns []Transaction) error {
	if si == nil {
		return nil
	}
	batch := si.index.NewBatch()
	for _, t := range txns {
		if err := batch.Index(t.ID, toSearchDocument(t)); err != nil {
			return fmt.Errorf("failed to index transaction %s: %w", t.ID, err)
		}
	}
	if err := si.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch index: %w", err)
	}
	return nil
}

func (si *searchIndex) remove(ids ...string) error {
	if si == nil {
		return nil
	}
	batch := si.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return si.index.Batch(batch)
}

// search returns matching ids ordered by relevance. Each word of the query must
// match a term (with one typo allowed) or prefix a term in a text field.
func (si *searchIndex) search(text string, limit int) ([]string, error) {
	if si == nil {
		return nil, fmt.Errorf("search index unavailable")
	}
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return nil, nil
	}

	conjuncts := make([]query.Query, 0, len(words))
	for _, w := range words {
		disjuncts := make([]query.Query, 0, 6)
		for _, field := range []string{"description", "notes", "tags"} {
			match := bleve.NewMatchQuery(w)
			match.SetField(field)
			match.SetFuzziness(1)

			prefix := bleve.NewPrefixQuery(w)
			prefix.SetField(field)

			disjuncts = append(disjuncts, match, prefix)
		}
		conjuncts = append(conjuncts, bleve.NewDisjunctionQuery(disjuncts...))
	}

	req := bleve.NewSearchRequest(bleve.NewConjunctionQuery(conjuncts...))
	req.Size = limit

	res, err := si.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

func (si *searchIndex) close() error {
	if si == nil {
		return nil
	}
	return si.index.Close()
}
