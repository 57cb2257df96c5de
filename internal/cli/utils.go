// Package cli provides output helpers for the shiryo command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/pkg/utils"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SearchOutputFormat = "text"
	// OutputCompact prints one hit per line.
	OutputCompact SearchOutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON SearchOutputFormat = "json"
)

// ParseFormat maps a flag value onto a format.
func ParseFormat(s string) (SearchOutputFormat, error) {
	switch SearchOutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case OutputText, "":
		return OutputText, nil
	case OutputCompact:
		return OutputCompact, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
}

// WriteSearchResults writes search results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for i, h := range response.Hits {
			fmt.Fprintf(w, "%d\t%.4f\t%s\t%s\n", i+1, h.Score, h.DocumentID, displayTitle(h))
		}
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	scope := "all folders"
	if response.Folder != "" {
		scope = response.Folder
	}
	cached := ""
	if response.Cached {
		cached = ", cached"
	}
	fmt.Fprintf(w, "\nFound %d results for %q in %s (%dms%s)\n\n",
		response.Total, response.Query, scope, response.QueryTime, cached)
	for i, h := range response.Hits {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f | Version: %d\n", i+1, h.Score, h.Version)
		fmt.Fprintf(w, "ID: %s\n", h.DocumentID)
		fmt.Fprintf(w, "Title: %s\n", displayTitle(h))
		if h.Folder != "" {
			fmt.Fprintf(w, "Folder: %s\n", h.Folder)
		}
		fmt.Fprintln(w)
	}
}

// maxTitleLen bounds titles printed in result lists.
const maxTitleLen = 120

func displayTitle(h models.SearchHit) string {
	if h.Title != "" {
		return Truncate(h.Title, maxTitleLen)
	}
	return h.DocumentID
}

// WriteDocument prints a stored record. Text output shows the first words of the
// extracted text; JSON output is the full record.
func WriteDocument(w io.Writer, doc *models.Document, format SearchOutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, doc)
	}
	fmt.Fprintf(w, "ID:          %s\n", doc.ID)
	fmt.Fprintf(w, "Title:       %s\n", doc.Title)
	if doc.Folder != "" {
		fmt.Fprintf(w, "Folder:      %s\n", doc.Folder)
	}
	if len(doc.Tags) > 0 {
		fmt.Fprintf(w, "Tags:        %s\n", strings.Join(doc.Tags, ", "))
	}
	fmt.Fprintf(w, "Status:      %s\n", doc.Status)
	if doc.ExtractionMethod != models.MethodNone {
		fmt.Fprintf(w, "Method:      %s\n", doc.ExtractionMethod)
	}
	fmt.Fprintf(w, "Confidence:  %.2f\n", doc.Confidence)
	fmt.Fprintf(w, "Version:     %d\n", doc.Version)
	if doc.ExtractionError != "" {
		fmt.Fprintf(w, "Error:       %s\n", doc.ExtractionError)
	}
	if doc.ExtractedText != "" {
		fmt.Fprintf(w, "\n%s\n", TruncateWords(doc.ExtractedText, 60))
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintSearchResults prints search results to stdout in text format.
func PrintSearchResults(response *models.SearchResponse) {
	_ = WriteSearchResults(os.Stdout, response, OutputText)
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	return utils.Truncate(s, maxLen)
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
