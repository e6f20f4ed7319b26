package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createResearchQueryTool returns the research_query tool definition
func createResearchQueryTool() mcp.Tool {
	return mcp.NewTool("research_query",
		mcp.WithDescription("Ask the investment research knowledge base a question and get a source-attributed answer"),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Research question (e.g. \"What is AAPL's P/E ratio?\", \"What did analysts say about NVDA this week?\")"),
		),
		mcp.WithString("detail",
			mcp.Description("Attribution detail: summary, sourced, detailed, forensic (default: sourced)"),
		),
		mcp.WithArray("symbols",
			mcp.WithStringItems(),
			mcp.Description("Restrict retrieval to these ticker symbols"),
		),
	)
}

// createSearchDocumentsTool returns the search_documents tool definition
func createSearchDocumentsTool() mcp.Tool {
	return mcp.NewTool("search_documents",
		mcp.WithDescription("Search stored research documents by keyword text or ticker symbol"),
		mcp.WithString("query",
			mcp.Description("Keyword search text"),
		),
		mcp.WithString("symbol",
			mcp.Description("Ticker symbol filter (e.g. AAPL); usable alone or combined with query"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results to return (default: 10, max: 50)"),
		),
	)
}

// createGetEntityGraphTool returns the get_entity_graph tool definition
func createGetEntityGraphTool() mcp.Tool {
	return mcp.NewTool("get_entity_graph",
		mcp.WithDescription("Show extracted entities and relationship-linked documents for a ticker or entity value"),
		mcp.WithString("entity",
			mcp.Required(),
			mcp.Description("Ticker symbol (AAPL) or entity value (an analyst firm, a metric name)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum entities and documents to return (default: 20, max: 100)"),
		),
	)
}

// createIngestStatusTool returns the ingest_status tool definition
func createIngestStatusTool() mcp.Tool {
	return mcp.NewTool("ingest_status",
		mcp.WithDescription("Report recent ingestion runs, enabled connectors and circuit breaker state"),
		mcp.WithNumber("limit",
			mcp.Description("Run summaries to include (default: 10, max: 50)"),
		),
	)
}
