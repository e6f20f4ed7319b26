package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Root route (service identification)
	mux.HandleFunc("/", s.app.APIHandler.IndexHandler)

	// WebSocket route (pipeline event stream)
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Research queries
	mux.HandleFunc("/api/query", s.app.QueryHandler.AskHandler)           // POST - ask a question
	mux.HandleFunc("/api/query/export", s.app.QueryHandler.ExportHandler) // POST - export the answer as PDF

	// API routes - Documents
	mux.HandleFunc("/api/documents/stats", s.app.DocumentHandler.StatsHandler)
	mux.HandleFunc("/api/documents", s.app.DocumentHandler.ListHandler)
	mux.HandleFunc("/api/documents/", s.handleDocumentRoutes) // GET/DELETE /{id}

	// API routes - Ingestion
	mux.HandleFunc("/api/ingest/run", s.app.IngestHandler.RunHandler)         // POST - trigger a pipeline run
	mux.HandleFunc("/api/ingest/email", s.app.IngestHandler.EmailSyncHandler) // POST - sync IMAP accounts

	// API routes - Entities
	mux.HandleFunc("/api/entities", s.app.EntityHandler.ListHandler) // GET - entities by symbol
	mux.HandleFunc("/api/entities/", s.handleEntityRoutes)           // GET /{value}/related

	// API routes - Status and scheduled jobs
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)
	mux.HandleFunc("/api/jobs", s.app.JobsHandler.ListHandler)
	mux.HandleFunc("/api/jobs/", s.app.JobsHandler.ActionHandler) // POST /{name}/{action}

	// API routes - Digest mailer
	mux.HandleFunc("/api/mailer/test", s.app.MailerHandler.SendTestHandler)
	mux.HandleFunc("/api/mailer/digest", s.app.MailerHandler.SendDigestHandler)

	// API routes - Settings (key/value storage)
	mux.HandleFunc("/api/kv", s.handleKVRoute)   // GET (list), POST (create)
	mux.HandleFunc("/api/kv/", s.handleKVRoutes) // GET/PUT/DELETE /{key}

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleDocumentRoutes routes /api/documents/{id} requests
func (s *Server) handleDocumentRoutes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.DocumentHandler.GetHandler(w, r)
	case "DELETE":
		s.app.DocumentHandler.DeleteHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleEntityRoutes routes /api/entities/{value}/related requests
func (s *Server) handleEntityRoutes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.EntityHandler.RelatedHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleKVRoute routes /api/kv requests (list and create)
func (s *Server) handleKVRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.KVHandler.ListKVHandler(w, r)
	case "POST":
		s.app.KVHandler.CreateKVHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleKVRoutes routes /api/kv/{key} requests
func (s *Server) handleKVRoutes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.KVHandler.GetKVHandler(w, r)
	case "PUT":
		s.app.KVHandler.UpdateKVHandler(w, r)
	case "DELETE":
		s.app.KVHandler.DeleteKVHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
