// Package api provides HTTP handlers and the main API server logic for
// LexDraft.
//
// It exposes the per-turn dialogue endpoint, direct document generation,
// template listing and document file retrieval. The API integrates the flow,
// store and renderer modules; the server itself holds no conversation state.
package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/lexdraft/lexdraft/internal/flow"
	"github.com/lexdraft/lexdraft/internal/genai"
	"github.com/lexdraft/lexdraft/internal/renderer"
	"github.com/lexdraft/lexdraft/internal/store"
)

// DefaultAPIAddr is the default listen address.
const DefaultAPIAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the server listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server dispatches HTTP requests to the dialogue engine and its
// collaborators.
type Server struct {
	engine    *flow.Engine
	templates store.Store
	docs      *renderer.Renderer
	addr      string
}

// NewServer creates an API server around an already-wired engine.
func NewServer(engine *flow.Engine, templates store.Store, docs *renderer.Renderer, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAPIAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{engine: engine, templates: templates, docs: docs, addr: cfg.Addr}
}

// Run wires the modules from their option slices and serves the API. It
// blocks until the listener fails.
func Run(genaiOpts []genai.Option, storeOpts []store.Option, rendererOpts []renderer.Option, flowOpts []flow.EngineOption, apiOpts []Option) error {
	client, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return fmt.Errorf("failed to create completion client: %w", err)
	}

	st, err := store.NewStore(storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to create template store: %w", err)
	}
	defer st.Close()

	docs, err := renderer.NewRenderer(rendererOpts...)
	if err != nil {
		return fmt.Errorf("failed to create document renderer: %w", err)
	}

	engine := flow.NewEngine(client, st, docs, flowOpts...)
	server := NewServer(engine, st, docs, apiOpts...)

	slog.Info("Server.Run: LexDraft API listening", "addr", server.addr)
	return http.ListenAndServe(server.addr, server.Handler())
}

// Handler builds the route table with CORS applied to every endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/turn", s.turnHandler)
	mux.HandleFunc("/documents", s.documentsHandler)
	mux.HandleFunc("/documents/files/", s.documentFileHandler)
	mux.HandleFunc("/templates", s.templatesHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return corsMiddleware(mux)
}

// corsMiddleware applies permissive CORS headers on every route and answers
// preflight requests directly. The API is consumed from browsers.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
