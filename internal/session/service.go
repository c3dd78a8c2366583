// Package session runs live workout sessions: starting them, logging sets,
// and completing or abandoning them.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/claude/liftlog/internal/metrics"
	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/records"
	"github.com/claude/liftlog/internal/rollup"
	"github.com/claude/liftlog/internal/store"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// DefaultTitle is used when neither the caller nor a source supplies one.
const DefaultTitle = "Workout"

// ErrRollupDeferred is returned together with the completed session when
// folding it into the statistics failed. The session stays completed and is
// folded again by RetryPendingRollups.
var ErrRollupDeferred = errors.New("rollup deferred")

// Service is safe for concurrent use. Operations on one user are serialized.
type Service struct {
	store   store.Store
	catalog store.Catalog
	records *records.Engine
	rollup  *rollup.Aggregator
	metrics *metrics.Manager
	log     *slog.Logger

	now     func() time.Time
	newID   func() uuid.UUID
	retries int
	backoff time.Duration

	locks userLocks
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRollupRetries sets how many times a fold is attempted and the linear
// backoff step between attempts.
func WithRollupRetries(attempts int, backoff time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.retries = attempts
		}
		s.backoff = backoff
	}
}

// NewService creates a session service. catalog may be nil, in which case
// sessions cannot be seeded from a program day.
func NewService(st store.Store, catalog store.Catalog, agg *rollup.Aggregator, m *metrics.Manager, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:   st,
		catalog: catalog,
		records: records.NewEngine(),
		rollup:  agg,
		metrics: m,
		log:     log,
		now:     time.Now,
		newID:   uuid.New,
		retries: 3,
		backoff: 200 * time.Millisecond,
		locks:   userLocks{m: make(map[int]*sync.Mutex)},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// userLocks hands out one mutex per user.
type userLocks struct {
	mu sync.Mutex
	m  map[int]*sync.Mutex
}

func (l *userLocks) lock(userID int) func() {
	l.mu.Lock()
	m, ok := l.m[userID]
	if !ok {
		m = &sync.Mutex{}
		l.m[userID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// mutate loads an in-progress session, applies fn and writes it back in one
// transaction. The caller must hold the user's lock.
func (s *Service) mutate(ctx context.Context, op string, userID int, sessionID uuid.UUID, fn func(tx store.Store, sess *models.WorkoutSession) error) (*models.WorkoutSession, error) {
	var out *models.WorkoutSession
	err := s.store.RunInTx(ctx, func(tx store.Store) error {
		sess, err := tx.GetSession(ctx, userID, sessionID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return models.NotFound(op, "session", sessionID)
			}
			return fmt.Errorf("%s: %w", op, err)
		}
		if !sess.Active() {
			return models.InvalidState(op, sess)
		}
		if err := fn(tx, sess); err != nil {
			return err
		}
		if err := tx.UpdateSession(ctx, sess); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		out = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// StartParams describes how to seed a new session. SourceDayID takes
// precedence over RepeatLast.
type StartParams struct {
	SourceDayID *uuid.UUID
	Title       string
	Notes       string
	RepeatLast  bool
}

// Start opens a new session for the user. It fails with models.ErrConflict
// when another session is in progress.
func (s *Service) Start(ctx context.Context, userID int, p StartParams) (*models.WorkoutSession, error) {
	const op = "start session"
	defer s.locks.lock(userID)()

	now := s.now()
	sess := &models.WorkoutSession{
		ID:        s.newID(),
		UserID:    userID,
		Notes:     p.Notes,
		StartedAt: now,
		Status:    models.StatusInProgress,
	}

	err := s.store.RunInTx(ctx, func(tx store.Store) error {
		active, err := tx.GetActiveSession(ctx, userID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if active != nil {
			return models.Conflict(op, "session", active.ID, "another session is in progress")
		}

		var sourceTitle string
		switch {
		case p.SourceDayID != nil:
			sourceTitle, err = s.seedFromDay(ctx, tx, sess, *p.SourceDayID)
		case p.RepeatLast:
			sourceTitle, err = s.seedFromLast(ctx, tx, sess)
		}
		if err != nil {
			return err
		}
		sess.Title = firstNonEmpty(p.Title, sourceTitle, DefaultTitle)

		if err := tx.CreateSession(ctx, sess); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.CounterSessions.WithLabelValues("started").Inc()
	s.log.Info("session started", "user_id", userID, "session_id", sess.ID, "exercises", len(sess.Exercises))
	return sess, nil
}

// seedFromDay expands a program day and carries forward what the user did
// last time for every exercise of the day.
func (s *Service) seedFromDay(ctx context.Context, tx store.Store, sess *models.WorkoutSession, dayID uuid.UUID) (string, error) {
	if s.catalog == nil {
		return "", models.NotFound("start session", "day", dayID)
	}
	day, err := s.catalog.GetProgramDay(ctx, sess.UserID, dayID)
	if err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	sess.SourceDayID = &day.ID
	if day.ProgramID != uuid.Nil {
		programID := day.ProgramID
		sess.SourceProgramID = &programID
	}

	for _, pe := range day.Exercises {
		prev, err := tx.LatestCompletedWithExercise(ctx, sess.UserID, pe.Name)
		if err != nil {
			return "", fmt.Errorf("loading previous %s: %w", pe.Name, err)
		}
		var prevEx *models.SessionExercise
		if prev != nil {
			prevEx, _ = prev.ContainsExercise(pe.Name)
		}

		catalogID := pe.ID
		ex := models.SessionExercise{
			ID:                s.newID(),
			CatalogExerciseID: &catalogID,
			Name:              pe.Name,
			MuscleGroup:       pe.MuscleGroup,
			Notes:             pe.Notes,
			Order:             pe.Order,
		}
		for _, ps := range pe.Sets {
			set := models.SessionSet{
				ID:                     s.newID(),
				Order:                  ps.Order,
				Type:                   setTypeOr(ps.Type, models.SetWorking),
				PlannedWeight:          ps.Weight,
				PlannedReps:            ps.Reps,
				PlannedDurationSeconds: ps.DurationSeconds,
			}
			if prevEx != nil {
				if slot, ok := prevEx.SetAt(ps.Order); ok {
					set.PreviousWeight = slot.ActualWeight
					set.PreviousReps = slot.ActualReps
				}
			}
			ex.Sets = append(ex.Sets, set)
		}
		sess.Exercises = append(sess.Exercises, ex)
	}
	return day.Name, nil
}

// seedFromLast clones the skeleton of the user's latest completed session.
// Last time's actuals become both the previous and the planned values.
func (s *Service) seedFromLast(ctx context.Context, tx store.Store, sess *models.WorkoutSession) (string, error) {
	last, err := tx.LatestCompletedSession(ctx, sess.UserID)
	if err != nil {
		return "", fmt.Errorf("start session: loading last session: %w", err)
	}
	if last == nil {
		return "", nil
	}
	sess.SourceProgramID = last.SourceProgramID
	sess.SourceDayID = last.SourceDayID

	for _, old := range last.Exercises {
		ex := models.SessionExercise{
			ID:                s.newID(),
			CatalogExerciseID: old.CatalogExerciseID,
			Name:              old.Name,
			MuscleGroup:       old.MuscleGroup,
			Notes:             old.Notes,
			Order:             old.Order,
		}
		for _, prev := range old.Sets {
			ex.Sets = append(ex.Sets, models.SessionSet{
				ID:                     s.newID(),
				Order:                  prev.Order,
				Type:                   prev.Type,
				PlannedWeight:          firstSet(prev.ActualWeight, prev.PlannedWeight),
				PlannedReps:            firstSet(prev.ActualReps, prev.PlannedReps),
				PlannedDurationSeconds: firstSet(prev.ActualDurationSeconds, prev.PlannedDurationSeconds),
				PreviousWeight:         prev.ActualWeight,
				PreviousReps:           prev.ActualReps,
			})
		}
		sess.Exercises = append(sess.Exercises, ex)
	}
	return last.Title, nil
}

// AddExerciseParams describes an exercise appended to a running session.
type AddExerciseParams struct {
	Name              string
	MuscleGroup       string
	Notes             string
	CatalogExerciseID *uuid.UUID
}

// AddExercise appends an exercise after the current last one.
func (s *Service) AddExercise(ctx context.Context, userID int, sessionID uuid.UUID, p AddExerciseParams) (*models.SessionExercise, error) {
	const op = "add exercise"
	if p.Name == "" {
		return nil, models.InvalidInput(op, "name", "is required")
	}
	defer s.locks.lock(userID)()

	ex := models.SessionExercise{
		ID:                s.newID(),
		CatalogExerciseID: p.CatalogExerciseID,
		Name:              p.Name,
		MuscleGroup:       p.MuscleGroup,
		Notes:             p.Notes,
	}
	_, err := s.mutate(ctx, op, userID, sessionID, func(_ store.Store, sess *models.WorkoutSession) error {
		ex.Order = sess.NextExerciseOrder()
		sess.Exercises = append(sess.Exercises, ex)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ex, nil
}

// AddSetParams overrides the values copied from the exercise's last set.
type AddSetParams struct {
	Weight          *float64
	Reps            *int
	DurationSeconds *int
	Type            models.SetType
}

// AddSet appends a set to the exercise. Missing values default to the last
// set's actual values, falling back to its planned ones.
func (s *Service) AddSet(ctx context.Context, userID int, sessionID, exerciseID uuid.UUID, p AddSetParams) (*models.SessionSet, error) {
	const op = "add set"
	if p.Type != "" && !p.Type.Valid() {
		return nil, models.InvalidInput(op, "type", fmt.Sprintf("unknown set type %q", p.Type))
	}
	defer s.locks.lock(userID)()

	var added models.SessionSet
	_, err := s.mutate(ctx, op, userID, sessionID, func(_ store.Store, sess *models.WorkoutSession) error {
		ex, ok := sess.Exercise(exerciseID)
		if !ok {
			return models.NotFound(op, "exercise", exerciseID)
		}

		set := models.SessionSet{
			ID:                     s.newID(),
			Order:                  ex.NextSetOrder(),
			Type:                   setTypeOr(p.Type, models.SetWorking),
			PlannedWeight:          p.Weight,
			PlannedReps:            p.Reps,
			PlannedDurationSeconds: p.DurationSeconds,
		}
		if last, ok := ex.LastSet(); ok {
			if set.PlannedWeight == nil {
				set.PlannedWeight = firstSet(last.ActualWeight, last.PlannedWeight)
			}
			if set.PlannedReps == nil {
				set.PlannedReps = firstSet(last.ActualReps, last.PlannedReps)
			}
			if set.PlannedDurationSeconds == nil {
				set.PlannedDurationSeconds = firstSet(last.ActualDurationSeconds, last.PlannedDurationSeconds)
			}
			if p.Type == "" {
				set.Type = last.Type
			}
		}
		ex.Sets = append(ex.Sets, set)
		// Adding a set reopens a completed exercise.
		ex.CompletedAt = nil
		added = set
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &added, nil
}

// CompleteSetParams carries the performed values. Missing weight, reps or
// duration default to the planned value; WeightKg defaults to Weight.
type CompleteSetParams struct {
	Weight          *float64
	WeightKg        *float64
	Reps            *int
	DurationSeconds *int
	RPE             *float64
	Type            models.SetType
	Notes           *string
}

// CompleteSetResult is the completed set and the records it broke.
type CompleteSetResult struct {
	Set        models.SessionSet          `json:"set"`
	ExerciseID uuid.UUID                  `json:"exercise_id"`
	Comparison models.Comparison          `json:"comparison"`
	Records    []models.PersonalRecordLog `json:"records"`
}

// CompleteSet records a performed set and runs the record checks for it.
func (s *Service) CompleteSet(ctx context.Context, userID int, sessionID, setID uuid.UUID, p CompleteSetParams) (*CompleteSetResult, error) {
	const op = "complete set"
	if p.Type != "" && !p.Type.Valid() {
		return nil, models.InvalidInput(op, "type", fmt.Sprintf("unknown set type %q", p.Type))
	}
	if p.Reps != nil && *p.Reps < 0 {
		return nil, models.InvalidInput(op, "reps", "must not be negative")
	}
	defer s.locks.lock(userID)()

	now := s.now()
	res := &CompleteSetResult{Records: []models.PersonalRecordLog{}}
	_, err := s.mutate(ctx, op, userID, sessionID, func(tx store.Store, sess *models.WorkoutSession) error {
		ex, set, ok := sess.FindSet(setID)
		if !ok {
			return models.NotFound(op, "set", setID)
		}

		weight := firstSet(p.Weight, set.PlannedWeight)
		ex.CompleteSet(set, models.SetActuals{
			Weight:          weight,
			WeightKg:        firstSet(p.WeightKg, weight),
			Reps:            firstSet(p.Reps, set.PlannedReps),
			DurationSeconds: firstSet(p.DurationSeconds, set.PlannedDurationSeconds),
			RPE:             p.RPE,
			Type:            p.Type,
			Notes:           p.Notes,
		}, now)

		logs, err := s.records.Evaluate(ctx, tx, sess, ex, set, now)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		res.Records = append(res.Records, logs...)
		res.Set = *set
		res.ExerciseID = ex.ID
		res.Comparison = set.CompareWithPrevious()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.CounterSetsCompleted.Inc()
	for _, r := range res.Records {
		s.metrics.CounterRecords.WithLabelValues(string(r.RecordType)).Inc()
		s.log.Info("personal record", "user_id", userID, "exercise", r.ExerciseName, "type", r.RecordType, "value", r.Value)
	}
	return res, nil
}

// UndoLastSet clears the most recently completed set of the session. Record
// log rows written for it are kept.
func (s *Service) UndoLastSet(ctx context.Context, userID int, sessionID uuid.UUID) (*models.SessionSet, error) {
	const op = "undo last set"
	defer s.locks.lock(userID)()

	var undone models.SessionSet
	_, err := s.mutate(ctx, op, userID, sessionID, func(_ store.Store, sess *models.WorkoutSession) error {
		ex, set, ok := sess.LastCompletedSet()
		if !ok {
			return models.Conflict(op, "session", sess.ID, "no completed set to undo")
		}
		ex.UndoSet(set)
		undone = *set
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &undone, nil
}

// CompleteSession finalizes the session and folds it into the statistics.
// When folding keeps failing the completed session is returned together with
// an error wrapping ErrRollupDeferred.
func (s *Service) CompleteSession(ctx context.Context, userID int, sessionID uuid.UUID, notes string) (*models.WorkoutSession, error) {
	defer s.locks.lock(userID)()

	now := s.now()
	sess, err := s.mutate(ctx, "complete session", userID, sessionID, func(_ store.Store, sess *models.WorkoutSession) error {
		sess.Finalize(now, notes)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.CounterSessions.WithLabelValues("completed").Inc()
	s.log.Info("session completed",
		"user_id", userID,
		"session_id", sess.ID,
		"sets", sess.TotalSets,
		"tonnage_kg", sess.TotalTonnageKg,
		"duration_sec", sess.DurationSeconds,
	)

	if err := s.fold(ctx, sess); err != nil {
		return sess, fmt.Errorf("%w: %w", ErrRollupDeferred, err)
	}
	sess.RollupPending = false
	return sess, nil
}

// fold attempts the rollup up to s.retries times with a linear backoff.
func (s *Service) fold(ctx context.Context, sess *models.WorkoutSession) error {
	var errs error
	for attempt := 1; attempt <= s.retries; attempt++ {
		begin := time.Now()
		err := s.store.RunInTx(ctx, func(tx store.Store) error {
			_, err := s.rollup.Fold(ctx, tx, sess)
			return err
		})
		if err == nil {
			s.metrics.HistRollupDuration.Observe(time.Since(begin).Seconds())
			return nil
		}

		s.metrics.CounterRollupFailures.Inc()
		s.log.Warn("rollup failed", "session_id", sess.ID, "attempt", attempt, "error", err)
		errs = multierr.Append(errs, fmt.Errorf("attempt %d: %w", attempt, err))

		if attempt == s.retries {
			break
		}
		select {
		case <-ctx.Done():
			return multierr.Append(errs, ctx.Err())
		case <-time.After(time.Duration(attempt) * s.backoff):
		}
	}
	return fmt.Errorf("folding session %s: %w", sess.ID, errs)
}

// AbandonSession ends the session without contributing to any statistics.
func (s *Service) AbandonSession(ctx context.Context, userID int, sessionID uuid.UUID) (*models.WorkoutSession, error) {
	defer s.locks.lock(userID)()

	now := s.now()
	sess, err := s.mutate(ctx, "abandon session", userID, sessionID, func(_ store.Store, sess *models.WorkoutSession) error {
		sess.Abandon(now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.CounterSessions.WithLabelValues("abandoned").Inc()
	s.log.Info("session abandoned", "user_id", userID, "session_id", sess.ID)
	return sess, nil
}

// Get returns one of the user's sessions.
func (s *Service) Get(ctx context.Context, userID int, sessionID uuid.UUID) (*models.WorkoutSession, error) {
	sess, err := s.store.GetSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Active returns the user's in-progress session, or nil.
func (s *Service) Active(ctx context.Context, userID int) (*models.WorkoutSession, error) {
	sess, err := s.store.GetActiveSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get active session: %w", err)
	}
	return sess, nil
}

// History returns one page of the user's sessions, newest first.
func (s *Service) History(ctx context.Context, userID int, q models.SessionQuery) ([]models.WorkoutSession, int, error) {
	items, total, err := s.store.ListSessions(ctx, userID, q)
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	return items, total, nil
}

// RetryPendingRollups folds every completed session whose rollup never
// committed. It returns how many sessions were folded.
func (s *Service) RetryPendingRollups(ctx context.Context) (int, error) {
	pending, err := s.store.ListPendingRollups(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending rollups: %w", err)
	}

	var errs error
	folded := 0
	for i := range pending {
		sess := &pending[i]
		unlock := s.locks.lock(sess.UserID)
		err := s.fold(ctx, sess)
		unlock()
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		folded++
	}
	if len(pending) > 0 {
		s.log.Info("pending rollups retried", "pending", len(pending), "folded", folded)
	}
	return folded, errs
}

func firstSet[T any](vals ...*T) *T {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func setTypeOr(t, def models.SetType) models.SetType {
	if t == "" {
		return def
	}
	return t
}
