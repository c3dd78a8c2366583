package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleExerciseProgress(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	start, end, err := parseOptionalRange(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	out, err := s.analytics.ExerciseProgress(r.Context(), uid, chi.URLParam(r, "name"), start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMuscleGroupProgress(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	start, end, err := parseOptionalRange(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	out, err := s.analytics.MuscleGroupProgress(r.Context(), uid, chi.URLParam(r, "group"), start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePersonalRecords(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	page, err := intQuery(r, "page", 1)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	size, err := intQuery(r, "page_size", 0)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	out, err := s.analytics.PersonalRecords(r.Context(), uid, r.URL.Query().Get("exercise"), page, size)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleWorkoutStats(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	start, end, err := parseTimeRange(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	out, err := s.analytics.WorkoutStats(r.Context(), uid, start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStrengthLevel(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	exercise := q.Get("exercise")
	if exercise == "" {
		badRequest(w, "exercise parameter required")
		return
	}
	bodyweight, err := strconv.ParseFloat(q.Get("bodyweight"), 64)
	if err != nil {
		badRequest(w, "bodyweight parameter must be a number")
		return
	}
	gender := q.Get("gender")
	if gender == "" {
		gender = "male"
	}
	out, err := s.analytics.StrengthLevel(r.Context(), uid, exercise, bodyweight, gender)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEstimateDuration(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	dayID, ok := uuidParam(w, r, "dayID")
	if !ok {
		return
	}
	out, err := s.analytics.EstimateDuration(r.Context(), uid, dayID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleWeekStatus(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	out, err := s.analytics.WeekStatus(r.Context(), uid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
