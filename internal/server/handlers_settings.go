package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/claude/liftlog/internal/ingest"
	"github.com/claude/liftlog/internal/storage"
)

const maxImportBytes = 32 << 20

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	if s.admin == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "not available with this storage driver"})
		return
	}
	stats, err := s.admin.GetDataStats(r.Context(), uid)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleImportLogs(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	if s.admin == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "not available with this storage driver"})
		return
	}
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	logs, err := s.admin.QueryImportLogs(r.Context(), uid, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if logs == nil {
		logs = []storage.ImportLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handleAlphaImport(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	if s.importer == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "import disabled"})
		return
	}

	start := time.Now()
	result, err := s.importer.Ingest(r.Context(), http.MaxBytesReader(w, r.Body, maxImportBytes), uid)
	s.logImport(uid, "alpha:upload", result, err, int(time.Since(start).Milliseconds()))
	if err != nil {
		s.log.Error("alpha import error", "user_id", uid, "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// logImport records an import operation's result to the import_logs table.
func (s *Server) logImport(uid int, source string, result *ingest.Result, importErr error, durationMs int) {
	if s.admin == nil {
		return
	}
	log := storage.ImportLog{
		UserID:     uid,
		Source:     source,
		Status:     "success",
		DurationMs: &durationMs,
	}
	if result != nil {
		log.SessionsFound = result.SessionsReceived
		log.SessionsImported = result.SessionsImported
		log.SessionsSkipped = result.SessionsSkipped
		log.RecordsBroken = result.RecordsBroken
	}
	if importErr != nil {
		msg := importErr.Error()
		log.Status = "error"
		log.ErrorMessage = &msg
	}

	ctx, cancel := contextWithTimeout()
	defer cancel()

	if _, err := s.admin.InsertImportLog(ctx, log); err != nil {
		s.log.Error("failed to log import", "source", source, "error", err)
	}
}

// contextWithTimeout returns a background context with a 5-second timeout for async logging.
func contextWithTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second) //nolint:mnd
}
