package server

import (
	"errors"
	"net/http"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/session"
	"github.com/google/uuid"
)

type startSessionRequest struct {
	SourceDayID *uuid.UUID `json:"source_day_id"`
	Title       string     `json:"title"`
	Notes       string     `json:"notes"`
	RepeatLast  bool       `json:"repeat_last"`
}

type addExerciseRequest struct {
	Name              string     `json:"name"`
	MuscleGroup       string     `json:"muscle_group"`
	Notes             string     `json:"notes"`
	CatalogExerciseID *uuid.UUID `json:"catalog_exercise_id"`
}

type addSetRequest struct {
	Weight          *float64       `json:"weight"`
	Reps            *int           `json:"reps"`
	DurationSeconds *int           `json:"duration_sec"`
	Type            models.SetType `json:"type"`
}

type completeSetRequest struct {
	Weight          *float64       `json:"weight"`
	WeightKg        *float64       `json:"weight_kg"`
	Reps            *int           `json:"reps"`
	DurationSeconds *int           `json:"duration_sec"`
	RPE             *float64       `json:"rpe"`
	Type            models.SetType `json:"type"`
	Notes           *string        `json:"notes"`
}

type completeSessionRequest struct {
	Notes string `json:"notes"`
}

// completeSessionResponse reports a completed session. RollupDeferred is set
// when the statistics could not be updated yet; they are retried at startup.
type completeSessionResponse struct {
	*models.WorkoutSession
	RollupDeferred bool `json:"rollup_deferred,omitempty"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	var req startSessionRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	sess, err := s.sessions.Start(r.Context(), uid, session.StartParams{
		SourceDayID: req.SourceDayID,
		Title:       req.Title,
		Notes:       req.Notes,
		RepeatLast:  req.RepeatLast,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	start, end, err := parseOptionalRange(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	page, err := intQuery(r, "page", 1)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	size, err := intQuery(r, "page_size", models.DefaultPageSize)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	status := models.SessionStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		badRequest(w, "invalid status")
		return
	}

	limit, offset := models.PageBounds(page, size)
	items, total, err := s.sessions.History(r.Context(), uid, models.SessionQuery{
		Status: status,
		Start:  start,
		End:    end,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []models.WorkoutSession{}
	}
	writeJSON(w, http.StatusOK, models.Page[models.WorkoutSession]{
		Items:    items,
		Total:    total,
		Page:     offset/limit + 1,
		PageSize: limit,
	})
}

func (s *Server) handleActiveSession(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	sess, err := s.sessions.Active(r.Context(), uid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sess == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no session in progress"})
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	sess, err := s.sessions.Get(r.Context(), uid, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleAddExercise(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req addExerciseRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	ex, err := s.sessions.AddExercise(r.Context(), uid, id, session.AddExerciseParams{
		Name:              req.Name,
		MuscleGroup:       req.MuscleGroup,
		Notes:             req.Notes,
		CatalogExerciseID: req.CatalogExerciseID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ex)
}

func (s *Server) handleAddSet(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	exerciseID, ok := uuidParam(w, r, "exerciseID")
	if !ok {
		return
	}
	var req addSetRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	set, err := s.sessions.AddSet(r.Context(), uid, id, exerciseID, session.AddSetParams{
		Weight:          req.Weight,
		Reps:            req.Reps,
		DurationSeconds: req.DurationSeconds,
		Type:            req.Type,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, set)
}

func (s *Server) handleCompleteSet(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	setID, ok := uuidParam(w, r, "setID")
	if !ok {
		return
	}
	var req completeSetRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	res, err := s.sessions.CompleteSet(r.Context(), uid, id, setID, session.CompleteSetParams{
		Weight:          req.Weight,
		WeightKg:        req.WeightKg,
		Reps:            req.Reps,
		DurationSeconds: req.DurationSeconds,
		RPE:             req.RPE,
		Type:            req.Type,
		Notes:           req.Notes,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUndoLastSet(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	set, err := s.sessions.UndoLastSet(r.Context(), uid, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (s *Server) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var req completeSessionRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	sess, err := s.sessions.CompleteSession(r.Context(), uid, id, req.Notes)
	if errors.Is(err, session.ErrRollupDeferred) {
		s.log.Warn("session completed without rollup", "session_id", id, "error", err)
		writeJSON(w, http.StatusOK, completeSessionResponse{WorkoutSession: sess, RollupDeferred: true})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, completeSessionResponse{WorkoutSession: sess})
}

func (s *Server) handleAbandonSession(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	sess, err := s.sessions.AbandonSession(r.Context(), uid, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
