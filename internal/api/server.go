package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"quizgen/internal/cache"
	"quizgen/internal/config"
	"quizgen/internal/pipeline"
	"quizgen/internal/qg"
	"quizgen/internal/store"
)

// Server is the HTTP API server for quizgen.
type Server struct {
	router       chi.Router
	gen          *qg.Pipeline
	orchestrator *pipeline.Orchestrator
	results      *cache.Results
	events       *store.Store
	stats        *GenStats
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(gen *qg.Pipeline, orch *pipeline.Orchestrator, results *cache.Results, events *store.Store, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		gen:          gen,
		orchestrator: orch,
		results:      results,
		events:       events,
		stats:        NewGenStats(time.Hour),
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}))
	r.Use(RequestLogger(s.log))

	// Synchronous generation endpoints.
	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/info", s.handleInfo)
	r.Post("/question_generation", s.handleQuestionGeneration)
	r.Post("/question_generation_dummy", s.handleQuestionGenerationDummy)

	// Document jobs and stats, behind the API key when one is configured.
	r.Route("/api", func(r chi.Router) {
		if s.cfg.QuizgenAPIKey != "" {
			r.Use(AuthMiddleware(s.cfg.QuizgenAPIKey, s.log))
		}
		r.Post("/documents", s.handleUploadDocument)
		r.Get("/documents/{jobID}", s.handleDocumentStatus)
		r.Get("/stats", s.handleStats)
	})

	s.router = r
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "quizgen: question and answer generation service",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	m := s.gen.Model()
	writeJSON(w, http.StatusOK, map[string]any{
		"model":             m.Name(),
		"model_type":        m.Type().String(),
		"max_length":        s.cfg.MaxLength,
		"max_length_output": s.cfg.MaxLengthOutput,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
