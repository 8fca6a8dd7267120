package mcp

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/amanrecall/internal/search"
)

// FormatSearchResults formats search results as markdown for the text
// content of a tool response.
func FormatSearchResults(query string, results []*search.SearchResult) string {
	valid := filterValidResults(results)
	if len(valid) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(valid))
	if len(valid) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range valid {
		formatResult(&sb, i+1, r)
	}
	return sb.String()
}

func filterValidResults(results []*search.SearchResult) []*search.SearchResult {
	valid := make([]*search.SearchResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			valid = append(valid, r)
		}
	}
	return valid
}

func formatResult(sb *strings.Builder, num int, r *search.SearchResult) {
	fmt.Fprintf(sb, "### %d. %s:%d-%d (score: %.4f)\n",
		num, r.FilePath, r.StartLine, r.EndLine, r.Score)

	if r.Explain != nil {
		fmt.Fprintf(sb, "**Match:** %s\n", matchReason(r.Explain))
	}
	sb.WriteString("\n")

	// Markdown sources render as-is; everything else is fenced.
	if isMarkdown(r.FilePath) {
		sb.WriteString(r.Content)
		sb.WriteString("\n\n---\n\n")
		return
	}
	fmt.Fprintf(sb, "```%s\n%s\n```\n\n", fenceLanguage(r.FilePath), r.Content)
}

func matchReason(e *search.Explanation) string {
	switch {
	case e.LexicalRank > 0 && e.SemanticRank > 0:
		return fmt.Sprintf("exact phrase (#%d) and meaning (#%d, similarity %.2f)",
			e.LexicalRank, e.SemanticRank, e.Similarity)
	case e.LexicalRank > 0:
		return fmt.Sprintf("exact phrase (#%d)", e.LexicalRank)
	case e.SemanticRank > 0:
		return fmt.Sprintf("meaning (#%d, similarity %.2f)", e.SemanticRank, e.Similarity)
	default:
		return "unknown"
	}
}

func isMarkdown(path string) bool {
	return MimeTypeForPath(path) == "text/markdown"
}

// fenceLanguage derives a code fence hint from the file extension.
func fenceLanguage(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" || ext == "txt" {
		return "text"
	}
	return ext
}
