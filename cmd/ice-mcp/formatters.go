package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
)

// formatSearchResults formats document search results as markdown
func formatSearchResults(query, symbol string, docs []*models.Document) string {
	label := query
	if label == "" {
		label = symbol
	} else if symbol != "" {
		label = fmt.Sprintf("%s [%s]", query, symbol)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Search Results for \"%s\" (%d results)\n\n", label, len(docs)))

	if len(docs) == 0 {
		sb.WriteString("No results found.\n")
		return sb.String()
	}

	for i, doc := range docs {
		sb.WriteString(fmt.Sprintf("### %d. %s\n", i+1, doc.Title))
		sb.WriteString(fmt.Sprintf("**Source:** %s (%s)\n", doc.SourceType, doc.ID))
		if doc.URL != "" {
			sb.WriteString(fmt.Sprintf("**URL:** %s\n", doc.URL))
		}
		if len(doc.Symbols) > 0 {
			sb.WriteString(fmt.Sprintf("**Symbols:** %s\n", strings.Join(doc.Symbols, ", ")))
		}
		sb.WriteString(fmt.Sprintf("**Updated:** %s\n\n", doc.UpdatedAt.Format(time.RFC3339)))

		// Content preview (first 300 chars)
		content := doc.ContentMarkdown
		if len(content) > 300 {
			content = content[:300] + "..."
		}
		sb.WriteString("#### Content:\n")
		sb.WriteString(content)
		sb.WriteString("\n\n")

		// Metadata carries validation annotations (corroborations, warnings)
		if len(doc.Metadata) > 0 {
			metadataJSON, _ := json.MarshalIndent(doc.Metadata, "", "  ")
			sb.WriteString(fmt.Sprintf("**Metadata:** %s\n", string(metadataJSON)))
		}
		sb.WriteString("\n---\n\n")
	}

	return sb.String()
}

// formatEntityGraph formats entity mentions and their linked documents
// as markdown
func formatEntityGraph(entity string, entities []models.Entity, docs []*models.Document) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Entity Graph for \"%s\"\n\n", entity))

	if len(entities) == 0 && len(docs) == 0 {
		sb.WriteString("No entities or related documents found.\n")
		return sb.String()
	}

	if len(entities) > 0 {
		counts := make(map[string]int)
		for i := range entities {
			counts[string(entities[i].Type)]++
		}
		types := make([]string, 0, len(counts))
		for t := range counts {
			types = append(types, t)
		}
		sort.Strings(types)
		parts := make([]string, 0, len(types))
		for _, t := range types {
			parts = append(parts, fmt.Sprintf("%s: %d", t, counts[t]))
		}
		sb.WriteString(fmt.Sprintf("**Types:** %s\n\n", strings.Join(parts, ", ")))

		sb.WriteString(fmt.Sprintf("### Entities (%d)\n\n", len(entities)))
		for i := range entities {
			e := &entities[i]
			sb.WriteString(fmt.Sprintf("%d. **%s** [%s] confidence %.2f\n", i+1, e.Value, e.Type, e.Confidence))
			if len(e.Attributes) > 0 {
				attrJSON, _ := json.Marshal(e.Attributes)
				sb.WriteString(fmt.Sprintf("   Attributes: %s\n", string(attrJSON)))
			}
			sb.WriteString(fmt.Sprintf("   Document: %s\n", e.DocumentID))
		}
		sb.WriteString("\n")
	}

	if len(docs) > 0 {
		sb.WriteString(fmt.Sprintf("### Related Documents (%d)\n\n", len(docs)))
		for i, doc := range docs {
			sb.WriteString(fmt.Sprintf("%d. **%s** (%s - %s)\n", i+1, doc.Title, doc.SourceType, doc.ID))
			if doc.URL != "" {
				sb.WriteString(fmt.Sprintf("   URL: %s\n", doc.URL))
			}
			sb.WriteString(fmt.Sprintf("   Updated: %s\n", doc.UpdatedAt.Format(time.RFC3339)))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// formatIngestStatus formats run history and connector health as markdown
func formatIngestStatus(runs []models.RunSummary, enabled []string, breakers []interfaces.BreakerStatus, docCount int) string {
	var sb strings.Builder
	sb.WriteString("## Ingestion Status\n\n")

	if docCount >= 0 {
		sb.WriteString(fmt.Sprintf("**Documents stored:** %d\n", docCount))
	}
	if len(enabled) > 0 {
		sb.WriteString(fmt.Sprintf("**Enabled connectors:** %s\n", strings.Join(enabled, ", ")))
	} else {
		sb.WriteString("**Enabled connectors:** none\n")
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("### Recent Runs (%d)\n\n", len(runs)))
	if len(runs) == 0 {
		sb.WriteString("No ingestion runs recorded.\n\n")
	}
	for i := range runs {
		run := &runs[i]
		sb.WriteString(fmt.Sprintf("%d. **%s** started %s (%s)\n", i+1, run.Source,
			run.StartedAt.Format(time.RFC3339), run.Duration.Round(time.Millisecond)))
		sb.WriteString(fmt.Sprintf("   Fetched %d, valid %d, rejected %d, stored %d, entities %d\n",
			run.Fetched, run.Valid, run.Rejected, run.Stored, run.Entities))
		for _, e := range run.Errors {
			sb.WriteString(fmt.Sprintf("   Error: %s\n", e))
		}
	}
	sb.WriteString("\n")

	// Breaker state is tracked per process, so a fresh MCP session
	// reports activity only for requests it made itself
	sb.WriteString("### Circuit Breakers\n\n")
	if len(breakers) == 0 {
		sb.WriteString("No breaker activity recorded.\n")
		return sb.String()
	}
	for _, b := range breakers {
		line := fmt.Sprintf("- %s: %s (%d failures", b.Host, b.State, b.Failures)
		if !b.OpenedAt.IsZero() {
			line += fmt.Sprintf(", opened %s", b.OpenedAt.Format(time.RFC3339))
		}
		sb.WriteString(line + ")\n")
	}

	return sb.String()
}
