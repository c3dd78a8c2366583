package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a workout session.
type SessionStatus string

const (
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
	StatusAbandoned  SessionStatus = "abandoned"
)

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	switch s {
	case StatusInProgress, StatusCompleted, StatusAbandoned:
		return true
	}
	return false
}

// WorkoutSession is one training occurrence for one user. It owns its
// exercises, which own their sets.
type WorkoutSession struct {
	ID              uuid.UUID     `json:"id"`
	UserID          int           `json:"user_id"`
	SourceProgramID *uuid.UUID    `json:"source_program_id,omitempty"`
	SourceDayID     *uuid.UUID    `json:"source_day_id,omitempty"`
	Title           string        `json:"title"`
	Notes           string        `json:"notes,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
	DurationSeconds int           `json:"duration_sec"`
	Status          SessionStatus `json:"status"`

	// Computed once at completion.
	TotalTonnageKg     float64 `json:"total_tonnage_kg"`
	TotalVolumeReps    int     `json:"total_volume_reps"`
	TotalSets          int     `json:"total_sets"`
	AverageIntensityKg float64 `json:"average_intensity_kg"`
	AverageRestSeconds float64 `json:"average_rest_sec"`

	// RollupPending is true between the completion write and the fold into
	// the statistics buckets.
	RollupPending bool `json:"-"`
	Version       int  `json:"version"`

	Exercises []SessionExercise `json:"exercises"`
}

// SessionExercise is an ordered exercise instance inside a session.
type SessionExercise struct {
	ID                uuid.UUID    `json:"id"`
	CatalogExerciseID *uuid.UUID   `json:"catalog_exercise_id,omitempty"`
	Name              string       `json:"name"`
	MuscleGroup       string       `json:"muscle_group"`
	Notes             string       `json:"notes,omitempty"`
	Order             int          `json:"order"`
	StartedAt         *time.Time   `json:"started_at,omitempty"`
	CompletedAt       *time.Time   `json:"completed_at,omitempty"`
	Sets              []SessionSet `json:"sets"`
}

// Active reports whether the session still accepts mutations.
func (s *WorkoutSession) Active() bool {
	return s.Status == StatusInProgress
}

// Exercise returns the exercise with the given ID.
func (s *WorkoutSession) Exercise(id uuid.UUID) (*SessionExercise, bool) {
	for i := range s.Exercises {
		if s.Exercises[i].ID == id {
			return &s.Exercises[i], true
		}
	}
	return nil, false
}

// FindSet returns the set with the given ID and its owning exercise.
func (s *WorkoutSession) FindSet(id uuid.UUID) (*SessionExercise, *SessionSet, bool) {
	for i := range s.Exercises {
		ex := &s.Exercises[i]
		for j := range ex.Sets {
			if ex.Sets[j].ID == id {
				return ex, &ex.Sets[j], true
			}
		}
	}
	return nil, nil, false
}

// NextExerciseOrder is max(existing order)+1, or 0 for an empty session.
func (s *WorkoutSession) NextExerciseOrder() int {
	next := 0
	for _, ex := range s.Exercises {
		if ex.Order >= next {
			next = ex.Order + 1
		}
	}
	return next
}

// LastCompletedSet returns the most recently completed set across the whole
// session, by completion time.
func (s *WorkoutSession) LastCompletedSet() (*SessionExercise, *SessionSet, bool) {
	var (
		bestEx  *SessionExercise
		bestSet *SessionSet
	)
	for i := range s.Exercises {
		ex := &s.Exercises[i]
		for j := range ex.Sets {
			set := &ex.Sets[j]
			if !set.Completed() {
				continue
			}
			if bestSet == nil || set.CompletedAt.After(*bestSet.CompletedAt) {
				bestEx, bestSet = ex, set
			}
		}
	}
	return bestEx, bestSet, bestSet != nil
}

// CompletedSets counts sets with a completion stamp.
func (e *SessionExercise) CompletedSets() int {
	n := 0
	for i := range e.Sets {
		if e.Sets[i].Completed() {
			n++
		}
	}
	return n
}

// IsCompleted is true when the exercise has at least one set and every set is done.
func (e *SessionExercise) IsCompleted() bool {
	return len(e.Sets) > 0 && e.CompletedSets() == len(e.Sets)
}

// LastSet returns the highest-ordered set, if any.
func (e *SessionExercise) LastSet() (*SessionSet, bool) {
	if len(e.Sets) == 0 {
		return nil, false
	}
	last := &e.Sets[0]
	for i := range e.Sets {
		if e.Sets[i].Order > last.Order {
			last = &e.Sets[i]
		}
	}
	return last, true
}

// NextSetOrder is max(existing order)+1, or 0 for an exercise without sets.
func (e *SessionExercise) NextSetOrder() int {
	if last, ok := e.LastSet(); ok {
		return last.Order + 1
	}
	return 0
}

// SetAt returns the set with the given order index.
func (e *SessionExercise) SetAt(order int) (*SessionSet, bool) {
	for i := range e.Sets {
		if e.Sets[i].Order == order {
			return &e.Sets[i], true
		}
	}
	return nil, false
}

// previousCompletion returns the other completed set of the exercise whose
// completion is the latest one not after at.
func (e *SessionExercise) previousCompletion(exclude uuid.UUID, at time.Time) (*SessionSet, bool) {
	var prev *SessionSet
	for i := range e.Sets {
		set := &e.Sets[i]
		if set.ID == exclude || !set.Completed() || set.CompletedAt.After(at) {
			continue
		}
		if prev == nil || set.CompletedAt.After(*prev.CompletedAt) {
			prev = set
		}
	}
	return prev, prev != nil
}

// SetActuals holds the performed values of a set.
type SetActuals struct {
	Weight          *float64
	WeightKg        *float64
	Reps            *int
	DurationSeconds *int
	RPE             *float64
	Type            SetType
	Notes           *string
}

// CompleteSet records the actuals and stamps the set, its exercise and the
// rest period of the set that finished before it.
func (e *SessionExercise) CompleteSet(set *SessionSet, a SetActuals, now time.Time) {
	set.ActualWeight = a.Weight
	set.ActualWeightKg = a.WeightKg
	set.ActualReps = a.Reps
	set.ActualDurationSeconds = a.DurationSeconds
	set.RPE = a.RPE
	if a.Type != "" {
		set.Type = a.Type
	}
	if a.Notes != nil {
		set.Notes = *a.Notes
	}
	if set.StartedAt == nil {
		set.StartedAt = &now
	}
	set.CompletedAt = &now

	if e.StartedAt == nil {
		e.StartedAt = &now
	}
	if prev, ok := e.previousCompletion(set.ID, now); ok {
		rest := int(now.Sub(*prev.CompletedAt).Seconds())
		prev.RestAfterSeconds = &rest
	}
	if e.IsCompleted() {
		e.CompletedAt = &now
	} else {
		e.CompletedAt = nil
	}
}

// UndoSet clears a completed set back to unstarted and drops the exercise's
// completion stamp. The rest period the set closed is measured again up to the
// next remaining completion, or cleared when there is none.
func (e *SessionExercise) UndoSet(set *SessionSet) {
	if set.Completed() {
		if prev, ok := e.previousCompletion(set.ID, *set.CompletedAt); ok {
			prev.RestAfterSeconds = e.restAfter(prev, set.ID)
		}
	}
	set.clearActuals()
	e.CompletedAt = nil
}

func (e *SessionExercise) restAfter(prev *SessionSet, exclude uuid.UUID) *int {
	var next *time.Time
	for i := range e.Sets {
		s := &e.Sets[i]
		if s.ID == exclude || s.ID == prev.ID || !s.Completed() || !s.CompletedAt.After(*prev.CompletedAt) {
			continue
		}
		if next == nil || s.CompletedAt.Before(*next) {
			next = s.CompletedAt
		}
	}
	if next == nil {
		return nil
	}
	rest := int(next.Sub(*prev.CompletedAt).Seconds())
	return &rest
}

// Finalize stamps completion and computes the session rollup fields.
func (s *WorkoutSession) Finalize(now time.Time, notes string) {
	s.Status = StatusCompleted
	s.CompletedAt = &now
	s.DurationSeconds = int(now.Sub(s.StartedAt).Seconds())
	s.AppendNotes(notes)
	s.RollupPending = true

	var (
		sets, reps       int
		tonnage          float64
		loadSum          float64
		loadReps         int
		restSum, restCnt int
	)
	for _, ex := range s.Exercises {
		for i := range ex.Sets {
			set := &ex.Sets[i]
			if set.RestAfterSeconds != nil {
				restSum += *set.RestAfterSeconds
				restCnt++
			}
			if !set.Completed() {
				continue
			}
			sets++
			tonnage += set.Tonnage()
			if set.ActualReps != nil {
				reps += *set.ActualReps
				if set.ActualWeightKg != nil {
					loadSum += *set.ActualWeightKg * float64(*set.ActualReps)
					loadReps += *set.ActualReps
				}
			}
		}
	}

	s.TotalSets = sets
	s.TotalTonnageKg = tonnage
	s.TotalVolumeReps = reps
	s.AverageIntensityKg = 0
	if loadReps > 0 {
		s.AverageIntensityKg = loadSum / float64(loadReps)
	}
	s.AverageRestSeconds = 0
	if restCnt > 0 {
		s.AverageRestSeconds = float64(restSum) / float64(restCnt)
	}
}

// Abandon stamps completion and moves the session to its abandoned terminal state.
func (s *WorkoutSession) Abandon(now time.Time) {
	s.Status = StatusAbandoned
	s.CompletedAt = &now
}

// AppendNotes adds text on a new line after any existing notes.
func (s *WorkoutSession) AppendNotes(notes string) {
	switch {
	case notes == "":
	case s.Notes == "":
		s.Notes = notes
	default:
		s.Notes += "\n" + notes
	}
}

// ContainsExercise reports whether the session has an exercise with the name,
// ignoring case.
func (s *WorkoutSession) ContainsExercise(name string) (*SessionExercise, bool) {
	for i := range s.Exercises {
		if strings.EqualFold(s.Exercises[i].Name, name) {
			return &s.Exercises[i], true
		}
	}
	return nil, false
}
