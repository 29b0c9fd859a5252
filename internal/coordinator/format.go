package coordinator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ziadkadry99/docindex/internal/catalog"
)

// FormatHits renders search hits as human-readable text.
func FormatHits(hits []Hit) string {
	if len(hits) == 0 {
		return "No results found."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d result(s):\n\n", len(hits)))

	for i, h := range hits {
		sb.WriteString(fmt.Sprintf("--- Result %d (score: %.4f) ---\n", i+1, h.Score))
		sb.WriteString(fmt.Sprintf("ID: %s\n", h.ID))
		sb.WriteString(fmt.Sprintf("Collection: %s\n", h.Collection))
		if h.Filename != "" {
			sb.WriteString(fmt.Sprintf("File: %s\n", h.Filename))
		}
		if h.Unsynced {
			sb.WriteString("Metadata: (not yet in catalog)\n")
		} else if len(h.Metadata) > 0 {
			sb.WriteString("Metadata: " + formatMetadata(h.Metadata) + "\n")
		}

		sb.WriteString("\n")
		sb.WriteString(h.Content)
		sb.WriteString("\n\n")
	}

	return sb.String()
}

// FormatDocument renders one catalog document.
func FormatDocument(doc *catalog.Document) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("ID: %s\n", doc.ID))
	sb.WriteString(fmt.Sprintf("Collection: %s\n", doc.Collection))
	if doc.Filename != "" {
		sb.WriteString(fmt.Sprintf("File: %s\n", doc.Filename))
	}
	if doc.SourcePath != "" {
		sb.WriteString(fmt.Sprintf("Source: %s\n", doc.SourcePath))
	}
	sb.WriteString(fmt.Sprintf("Vectorized: %t\n", doc.Vectorized))
	sb.WriteString(fmt.Sprintf("Updated: %s\n", doc.LastUpdated.Format("2006-01-02 15:04:05")))
	if len(doc.Metadata) > 0 {
		sb.WriteString("Metadata: " + formatMetadata(doc.Metadata) + "\n")
	}
	if doc.Content != "" {
		sb.WriteString("\n")
		sb.WriteString(doc.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatMetadata(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, m[k])
	}
	return strings.Join(parts, ", ")
}
