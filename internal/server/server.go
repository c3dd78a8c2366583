package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/claude/liftlog/internal/analytics"
	"github.com/claude/liftlog/internal/ingest"
	"github.com/claude/liftlog/internal/metrics"
	"github.com/claude/liftlog/internal/session"
	"github.com/claude/liftlog/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Importer stores a CSV export for a user. *alpha.Provider implements it.
type Importer interface {
	Ingest(ctx context.Context, r io.Reader, userID int) (*ingest.Result, error)
}

// AdminStore serves the data overview and import history. *storage.DB
// implements it; it is absent with the memory driver.
type AdminStore interface {
	GetDataStats(ctx context.Context, userID int) (*storage.DataStats, error)
	InsertImportLog(ctx context.Context, log storage.ImportLog) (int64, error)
	QueryImportLogs(ctx context.Context, userID, limit int) ([]storage.ImportLog, error)
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	sessions  *session.Service
	analytics *analytics.Service
	importer  Importer
	admin     AdminStore
	metrics   *metrics.Manager
	log       *slog.Logger
	apiKey    string
	router    chi.Router

	whois WhoIs
	users UserDirectory
}

// New creates a new Server with all routes configured. importer may be nil.
func New(sessions *session.Service, an *analytics.Service, importer Importer, m *metrics.Manager, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		sessions:  sessions,
		analytics: an,
		importer:  importer,
		metrics:   m,
		log:       log,
		apiKey:    apiKey,
		router:    chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SetTailscale switches identity from the dev user to tailnet logins.
func (s *Server) SetTailscale(lc WhoIs, users UserDirectory) {
	s.whois = lc
	s.users = users
}

// SetAdmin enables the stats and import-log endpoints.
func (s *Server) SetAdmin(admin AdminStore) {
	s.admin = admin
}

// SetMetrics exposes the registry at path.
func (s *Server) SetMetrics(path string, g prometheus.Gatherer) {
	s.router.Handle(path, promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}

// MountMCP serves an MCP endpoint at /mcp behind the identity middleware.
func (s *Server) MountMCP(h http.Handler) {
	s.router.With(s.identify).Handle("/mcp", h)
}

// identify picks the identity middleware at request time so SetTailscale can
// run after the routes are built.
func (s *Server) identify(next http.Handler) http.Handler {
	dev := DevIdentity(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.whois == nil {
			dev.ServeHTTP(w, r)
			return
		}
		TailscaleIdentity(s.whois, s.users)(next).ServeHTTP(w, r)
	})
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(RequestMetrics(s.metrics))
	s.router.Use(CORS)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.identify)

		r.Get("/me", s.handleMe)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleStartSession)
			r.Get("/", s.handleListSessions)
			r.Get("/active", s.handleActiveSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Post("/exercises", s.handleAddExercise)
				r.Post("/exercises/{exerciseID}/sets", s.handleAddSet)
				r.Post("/sets/{setID}/complete", s.handleCompleteSet)
				r.Post("/undo", s.handleUndoLastSet)
				r.Post("/complete", s.handleCompleteSession)
				r.Post("/abandon", s.handleAbandonSession)
			})
		})

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/exercises/{name}/progress", s.handleExerciseProgress)
			r.Get("/muscle-groups/{group}/progress", s.handleMuscleGroupProgress)
			r.Get("/records", s.handlePersonalRecords)
			r.Get("/stats", s.handleWorkoutStats)
			r.Get("/strength-level", s.handleStrengthLevel)
			r.Get("/days/{dayID}/duration", s.handleEstimateDuration)
			r.Get("/week", s.handleWeekStatus)
		})

		r.Get("/data/stats", s.handleStats)
		r.Get("/data/imports", s.handleImportLogs)

		// Import endpoints (API key required)
		r.Group(func(r chi.Router) {
			r.Use(APIKeyAuth(s.apiKey))
			r.Post("/import/alpha", s.handleAlphaImport)
		})
	})
}
