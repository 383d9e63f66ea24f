// Package index keeps an in-memory full-text index of command content.
package index

import (
	"regexp"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/sha1n/mcp-acmt-server/internal/domain"
)

const maxHeadingLength = 200

var headingPattern = regexp.MustCompile(`(?m)^[ \t]{0,3}#{1,6}[ \t]+(.+?)[ \t#]*$`)

// CreateIndexMapping creates the Bleve index mapping for command documents.
func CreateIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	nameField := bleve.NewTextFieldMapping()
	nameField.Analyzer = keyword.Name
	nameField.Store = true
	docMapping.AddFieldMappingsAt(domain.CommandFieldName, nameField)

	pathField := bleve.NewTextFieldMapping()
	pathField.Analyzer = keyword.Name
	pathField.Store = true
	pathField.IncludeInAll = false
	docMapping.AddFieldMappingsAt(domain.CommandFieldPath, pathField)

	// Stored with term vectors so hits can be highlighted
	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = standard.Name
	contentField.Store = true
	contentField.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt(domain.CommandFieldContent, contentField)

	headingsField := bleve.NewTextFieldMapping()
	headingsField.Analyzer = standard.Name
	headingsField.Store = true
	headingsField.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt(domain.CommandFieldHeadings, headingsField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name

	return indexMapping
}

// ExtractHeadings returns the distinct ATX heading texts of a Markdown
// document in order of appearance.
func ExtractHeadings(content string) []string {
	seen := make(map[string]struct{})
	var headings []string
	for _, match := range headingPattern.FindAllStringSubmatch(content, -1) {
		heading := strings.TrimSpace(match[1])
		if heading == "" || len(heading) > maxHeadingLength {
			continue
		}
		if _, ok := seen[heading]; ok {
			continue
		}
		seen[heading] = struct{}{}
		headings = append(headings, heading)
	}
	return headings
}

func document(cmd *domain.Command) domain.CommandDocument {
	return domain.CommandDocument{
		Name:     cmd.Name,
		Path:     cmd.Path,
		Headings: strings.Join(ExtractHeadings(cmd.Content), "\n"),
		Content:  cmd.Content,
	}
}
