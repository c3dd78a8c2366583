package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorStatus maps the core error kinds to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidState):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v unchanged.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("invalid JSON: %w", err)
}

// uuidParam parses the named URL parameter, writing 400 on failure.
func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		badRequest(w, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// intQuery reads a non-negative integer query parameter, def when absent.
func intQuery(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func parseTime(s string, endOfDay bool) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24 * time.Hour)
	}
	return t, nil
}

func parseTimeRange(r *http.Request) (start, end time.Time, err error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if endStr == "" {
		end = time.Now()
	} else if end, err = parseTime(endStr, true); err != nil {
		return time.Time{}, time.Time{}, err
	}

	if startStr == "" {
		// Default: last 7 days
		start = end.AddDate(0, 0, -7)
		return
	}
	start, err = parseTime(startStr, false)
	return
}

// parseOptionalRange is parseTimeRange without defaults: absent bounds stay nil.
func parseOptionalRange(r *http.Request) (start, end *time.Time, err error) {
	if v := r.URL.Query().Get("start"); v != "" {
		t, err := parseTime(v, false)
		if err != nil {
			return nil, nil, err
		}
		start = &t
	}
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := parseTime(v, false)
		if err != nil {
			return nil, nil, err
		}
		end = &t
	}
	return start, end, nil
}
