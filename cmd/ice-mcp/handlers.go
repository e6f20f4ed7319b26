package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/connectors"
	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
	"github.com/ternarybob/ice/internal/services/attribution"
)

// handleResearchQuery implements the research_query tool
func handleResearchQuery(queryService interfaces.QueryService, formatter *attribution.Formatter, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		// Parse question parameter (required)
		question, err := request.RequireString("question")
		if err != nil || question == "" {
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent("Error: question parameter is required"),
				},
			}, nil
		}

		// Parse detail level (default: sourced)
		detail := models.DetailLevel(request.GetString("detail", string(models.DetailSourced)))
		switch detail {
		case models.DetailSummary, models.DetailSourced, models.DetailDetailed, models.DetailForensic:
		default:
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("Error: unknown detail level %q (use summary, sourced, detailed or forensic)", string(detail))),
				},
			}, nil
		}

		// Parse symbol scope hint
		symbols := request.GetStringSlice("symbols", nil)

		// Run the question pipeline
		result, err := queryService.Process(ctx, models.QueryRequest{
			Question: question,
			Detail:   detail,
			Symbols:  symbols,
		})
		if err != nil {
			logger.Error().Err(err).Msg("Query pipeline failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("Query error: %v", err)),
				},
			}, nil
		}

		// Render at the requested attribution detail
		markdown := formatter.Format(result.Answer, result.Chunks, detail)
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(markdown),
			},
		}, nil
	}
}

// handleSearchDocuments implements the search_documents tool
func handleSearchDocuments(searchService interfaces.SearchService, documents interfaces.DocumentStorage, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		// Parse search terms: at least one of query or symbol
		query := strings.TrimSpace(request.GetString("query", ""))
		symbol := strings.ToUpper(strings.TrimSpace(request.GetString("symbol", "")))
		if query == "" && symbol == "" {
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent("Error: query or symbol parameter is required"),
				},
			}, nil
		}

		// Parse limit (default: 10, max: 50)
		limit := request.GetInt("limit", 10)
		if limit > 50 {
			limit = 50
		}

		var docs []*models.Document
		var err error
		if query != "" {
			docs, err = searchService.SearchDocuments(ctx, query, limit)
			if err == nil && symbol != "" {
				docs = filterBySymbol(docs, symbol)
			}
		} else {
			docs, err = documents.GetDocumentsBySymbol(symbol, limit)
		}
		if err != nil {
			logger.Error().Err(err).Msg("Search failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("Search error: %v", err)),
				},
			}, nil
		}

		// Format results as markdown
		markdown := formatSearchResults(query, symbol, docs)
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(markdown),
			},
		}, nil
	}
}

// handleGetEntityGraph implements the get_entity_graph tool
func handleGetEntityGraph(entities interfaces.EntityStorage, documents interfaces.DocumentStorage, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		// Parse entity parameter (required)
		entity, err := request.RequireString("entity")
		if err != nil || strings.TrimSpace(entity) == "" {
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent("Error: entity parameter is required"),
				},
			}, nil
		}
		normalized := strings.ToUpper(strings.TrimSpace(entity))

		// Parse limit (default: 20, max: 100)
		limit := request.GetInt("limit", 20)
		if limit > 100 {
			limit = 100
		}

		// Ticker lookup first: entities co-occurring in the symbol's
		// documents. Non-ticker values fall back to direct mentions.
		found, err := entities.FindBySymbol(normalized, nil, limit)
		if err != nil {
			logger.Error().Err(err).Str("entity", normalized).Msg("Entity lookup failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("Entity lookup error: %v", err)),
				},
			}, nil
		}
		if len(found) == 0 {
			found, err = entities.FindByValue(normalized, limit)
			if err != nil {
				logger.Error().Err(err).Str("entity", normalized).Msg("Entity lookup failed")
				return &mcp.CallToolResult{
					Content: []mcp.Content{
						mcp.NewTextContent(fmt.Sprintf("Entity lookup error: %v", err)),
					},
				}, nil
			}
		}

		// Relationship-linked documents
		docIDs, err := entities.RelatedDocuments(normalized, limit)
		if err != nil {
			logger.Error().Err(err).Str("entity", normalized).Msg("Related document lookup failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("Related document error: %v", err)),
				},
			}, nil
		}

		docs := make([]*models.Document, 0, len(docIDs))
		for _, id := range docIDs {
			doc, err := documents.GetDocument(id)
			if err != nil {
				// Relationship rows can outlive a deleted document
				continue
			}
			docs = append(docs, doc)
		}

		// Format graph as markdown
		markdown := formatEntityGraph(normalized, found, docs)
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(markdown),
			},
		}, nil
	}
}

// handleIngestStatus implements the ingest_status tool
func handleIngestStatus(runs interfaces.RunStorage, registry *connectors.Registry, documents interfaces.DocumentStorage, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		// Parse limit (default: 10, max: 50)
		limit := request.GetInt("limit", 10)
		if limit > 50 {
			limit = 50
		}

		summaries, err := runs.ListRunSummaries(ctx, limit)
		if err != nil {
			logger.Error().Err(err).Msg("Run summary lookup failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("Run summary error: %v", err)),
				},
			}, nil
		}

		docCount, err := documents.CountDocuments()
		if err != nil {
			logger.Error().Err(err).Msg("Document count failed")
			docCount = -1
		}

		// Format status as markdown
		markdown := formatIngestStatus(summaries, registry.Enabled(), registry.BreakerStatus(), docCount)
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(markdown),
			},
		}, nil
	}
}

// filterBySymbol keeps documents tagged with the symbol
func filterBySymbol(docs []*models.Document, symbol string) []*models.Document {
	var filtered []*models.Document
	for _, doc := range docs {
		for _, s := range doc.Symbols {
			if strings.EqualFold(s, symbol) {
				filtered = append(filtered, doc)
				break
			}
		}
	}
	return filtered
}
