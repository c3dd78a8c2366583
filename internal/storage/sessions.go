package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const activeSessionIndex = "workout_sessions_one_active"

const sessionColumns = `id, user_id, source_program_id, source_day_id, title, notes,
	started_at, completed_at, duration_sec, status,
	total_tonnage_kg, total_volume_reps, total_sets, average_intensity_kg, average_rest_sec,
	rollup_pending, version`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.WorkoutSession, error) {
	var (
		s      models.WorkoutSession
		status string
	)
	err := row.Scan(&s.ID, &s.UserID, &s.SourceProgramID, &s.SourceDayID, &s.Title, &s.Notes,
		&s.StartedAt, &s.CompletedAt, &s.DurationSeconds, &status,
		&s.TotalTonnageKg, &s.TotalVolumeReps, &s.TotalSets, &s.AverageIntensityKg, &s.AverageRestSeconds,
		&s.RollupPending, &s.Version)
	if err != nil {
		return nil, err
	}
	s.Status = models.SessionStatus(status)
	return &s, nil
}

// querySessions selects sessions matching the clause and loads their exercises and sets.
func (db *DB) querySessions(ctx context.Context, clause string, args ...any) ([]models.WorkoutSession, error) {
	rows, err := db.q.Query(ctx, `SELECT `+sessionColumns+` FROM workout_sessions `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var result []models.WorkoutSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	if err := db.loadChildren(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// querySession returns the first matching session or nil.
func (db *DB) querySession(ctx context.Context, clause string, args ...any) (*models.WorkoutSession, error) {
	sessions, err := db.querySessions(ctx, clause, args...)
	if err != nil || len(sessions) == 0 {
		return nil, err
	}
	return &sessions[0], nil
}

func (db *DB) loadChildren(ctx context.Context, sessions []models.WorkoutSession) error {
	if len(sessions) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(sessions))
	bySession := make(map[uuid.UUID]int, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
		bySession[s.ID] = i
		sessions[i].Exercises = []models.SessionExercise{}
	}

	rows, err := db.q.Query(ctx,
		`SELECT id, session_id, catalog_exercise_id, name, muscle_group, notes, exercise_order, started_at, completed_at
		 FROM session_exercises
		 WHERE session_id = ANY($1::uuid[])
		 ORDER BY session_id, exercise_order`, ids)
	if err != nil {
		return fmt.Errorf("querying session exercises: %w", err)
	}
	for rows.Next() {
		var (
			ex        models.SessionExercise
			sessionID uuid.UUID
		)
		if err := rows.Scan(&ex.ID, &sessionID, &ex.CatalogExerciseID, &ex.Name, &ex.MuscleGroup, &ex.Notes,
			&ex.Order, &ex.StartedAt, &ex.CompletedAt); err != nil {
			rows.Close()
			return fmt.Errorf("scanning session exercise: %w", err)
		}
		ex.Sets = []models.SessionSet{}
		i := bySession[sessionID]
		sessions[i].Exercises = append(sessions[i].Exercises, ex)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating session exercises: %w", err)
	}

	type slot struct{ session, exercise int }
	byExercise := make(map[uuid.UUID]slot)
	for i := range sessions {
		for j, ex := range sessions[i].Exercises {
			byExercise[ex.ID] = slot{i, j}
		}
	}

	rows, err = db.q.Query(ctx,
		`SELECT id, exercise_id, set_order, set_type, notes,
		 planned_weight, planned_reps, planned_duration_sec,
		 actual_weight, actual_weight_kg, actual_reps, actual_duration_sec, rpe,
		 previous_weight, previous_reps, started_at, completed_at, rest_after_sec
		 FROM session_sets
		 WHERE session_id = ANY($1::uuid[])
		 ORDER BY exercise_id, set_order`, ids)
	if err != nil {
		return fmt.Errorf("querying session sets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			set        models.SessionSet
			exerciseID uuid.UUID
			setType    string
		)
		if err := rows.Scan(&set.ID, &exerciseID, &set.Order, &setType, &set.Notes,
			&set.PlannedWeight, &set.PlannedReps, &set.PlannedDurationSeconds,
			&set.ActualWeight, &set.ActualWeightKg, &set.ActualReps, &set.ActualDurationSeconds, &set.RPE,
			&set.PreviousWeight, &set.PreviousReps, &set.StartedAt, &set.CompletedAt, &set.RestAfterSeconds); err != nil {
			return fmt.Errorf("scanning session set: %w", err)
		}
		set.Type = models.SetType(setType)
		pos, ok := byExercise[exerciseID]
		if !ok {
			continue
		}
		ex := &sessions[pos.session].Exercises[pos.exercise]
		ex.Sets = append(ex.Sets, set)
	}
	return rows.Err()
}

// GetSession returns a session with its exercises and sets.
func (db *DB) GetSession(ctx context.Context, userID int, id uuid.UUID) (*models.WorkoutSession, error) {
	s, err := db.querySession(ctx, `WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return nil, fmt.Errorf("getting session %s: %w", id, err)
	}
	if s == nil {
		return nil, models.NotFound("get session", "session", id)
	}
	return s, nil
}

func (db *DB) GetActiveSession(ctx context.Context, userID int) (*models.WorkoutSession, error) {
	s, err := db.querySession(ctx, `WHERE user_id = $1 AND status = 'in_progress'`, userID)
	if err != nil {
		return nil, fmt.Errorf("getting active session: %w", err)
	}
	return s, nil
}

func (db *DB) LatestCompletedSession(ctx context.Context, userID int) (*models.WorkoutSession, error) {
	s, err := db.querySession(ctx,
		`WHERE user_id = $1 AND status = 'completed'
		 ORDER BY COALESCE(completed_at, started_at) DESC
		 LIMIT 1`, userID)
	if err != nil {
		return nil, fmt.Errorf("getting latest completed session: %w", err)
	}
	return s, nil
}

func (db *DB) LatestCompletedWithExercise(ctx context.Context, userID int, exerciseName string) (*models.WorkoutSession, error) {
	s, err := db.querySession(ctx,
		`WHERE user_id = $1 AND status = 'completed'
		   AND EXISTS (SELECT 1 FROM session_exercises e WHERE e.session_id = workout_sessions.id AND lower(e.name) = lower($2))
		 ORDER BY COALESCE(completed_at, started_at) DESC
		 LIMIT 1`, userID, exerciseName)
	if err != nil {
		return nil, fmt.Errorf("getting latest session with %s: %w", exerciseName, err)
	}
	return s, nil
}

// ListSessions returns a page of the user's sessions, newest first, and the total count.
func (db *DB) ListSessions(ctx context.Context, userID int, q models.SessionQuery) ([]models.WorkoutSession, int, error) {
	conds := []string{"user_id = $1"}
	args := []any{userID}
	if q.Status != "" {
		args = append(args, string(q.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if q.Start != nil {
		args = append(args, *q.Start)
		conds = append(conds, fmt.Sprintf("started_at >= $%d", len(args)))
	}
	if q.End != nil {
		args = append(args, *q.End)
		conds = append(conds, fmt.Sprintf("started_at < $%d", len(args)))
	}
	where := "WHERE " + strings.Join(conds, " AND ")

	var total int
	if err := db.q.QueryRow(ctx, `SELECT COUNT(*) FROM workout_sessions `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting sessions: %w", err)
	}

	var limit *int
	if q.Limit > 0 {
		limit = &q.Limit
	}
	args = append(args, limit, q.Offset)
	clause := fmt.Sprintf("%s ORDER BY started_at DESC LIMIT $%d OFFSET $%d", where, len(args)-1, len(args))

	sessions, err := db.querySessions(ctx, clause, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing sessions: %w", err)
	}
	return sessions, total, nil
}

func (db *DB) ListPendingRollups(ctx context.Context) ([]models.WorkoutSession, error) {
	sessions, err := db.querySessions(ctx,
		`WHERE status = 'completed' AND rollup_pending ORDER BY started_at`)
	if err != nil {
		return nil, fmt.Errorf("listing pending rollups: %w", err)
	}
	return sessions, nil
}

// CreateSession inserts the session row, its exercises and its sets.
func (db *DB) CreateSession(ctx context.Context, s *models.WorkoutSession) error {
	if !db.inTx {
		return db.RunInTx(ctx, func(tx store.Store) error { return tx.CreateSession(ctx, s) })
	}

	_, err := db.q.Exec(ctx,
		`INSERT INTO workout_sessions (`+sessionColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,1)`,
		s.ID, s.UserID, s.SourceProgramID, s.SourceDayID, s.Title, s.Notes,
		s.StartedAt, s.CompletedAt, s.DurationSeconds, string(s.Status),
		s.TotalTonnageKg, s.TotalVolumeReps, s.TotalSets, s.AverageIntensityKg, s.AverageRestSeconds,
		s.RollupPending)
	switch {
	case isUniqueViolation(err, activeSessionIndex):
		return models.Conflict("create session", "session", s.ID, "already in progress")
	case isUniqueViolation(err, ""):
		return models.Conflict("create session", "session", s.ID, "duplicate id")
	case err != nil:
		return fmt.Errorf("inserting session: %w", err)
	}
	s.Version = 1
	return db.insertChildren(ctx, s)
}

// UpdateSession rewrites the aggregate when s.Version matches the stored version.
func (db *DB) UpdateSession(ctx context.Context, s *models.WorkoutSession) error {
	if !db.inTx {
		return db.RunInTx(ctx, func(tx store.Store) error { return tx.UpdateSession(ctx, s) })
	}

	var version int
	err := db.q.QueryRow(ctx,
		`UPDATE workout_sessions SET
		 source_program_id = $4, source_day_id = $5, title = $6, notes = $7,
		 started_at = $8, completed_at = $9, duration_sec = $10, status = $11,
		 total_tonnage_kg = $12, total_volume_reps = $13, total_sets = $14,
		 average_intensity_kg = $15, average_rest_sec = $16, rollup_pending = $17,
		 version = version + 1
		 WHERE id = $1 AND user_id = $2 AND version = $3
		 RETURNING version`,
		s.ID, s.UserID, s.Version,
		s.SourceProgramID, s.SourceDayID, s.Title, s.Notes,
		s.StartedAt, s.CompletedAt, s.DurationSeconds, string(s.Status),
		s.TotalTonnageKg, s.TotalVolumeReps, s.TotalSets,
		s.AverageIntensityKg, s.AverageRestSeconds, s.RollupPending,
	).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return db.staleOrMissing(ctx, s)
	}
	if isUniqueViolation(err, activeSessionIndex) {
		return models.Conflict("update session", "session", s.ID, "another session is in progress")
	}
	if err != nil {
		return fmt.Errorf("updating session %s: %w", s.ID, err)
	}

	if _, err := db.q.Exec(ctx, `DELETE FROM session_exercises WHERE session_id = $1`, s.ID); err != nil {
		return fmt.Errorf("clearing exercises of session %s: %w", s.ID, err)
	}
	if err := db.insertChildren(ctx, s); err != nil {
		return err
	}
	s.Version = version
	return nil
}

func (db *DB) staleOrMissing(ctx context.Context, s *models.WorkoutSession) error {
	var current int
	err := db.q.QueryRow(ctx,
		`SELECT version FROM workout_sessions WHERE id = $1 AND user_id = $2`,
		s.ID, s.UserID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.NotFound("update session", "session", s.ID)
	}
	if err != nil {
		return fmt.Errorf("reading version of session %s: %w", s.ID, err)
	}
	return models.Conflict("update session", "session", s.ID,
		fmt.Sprintf("version %d is stale, current is %d", s.Version, current))
}

func (db *DB) insertChildren(ctx context.Context, s *models.WorkoutSession) error {
	if len(s.Exercises) == 0 {
		return nil
	}

	const exerciseCols = 9
	values := make([]string, 0, len(s.Exercises))
	args := make([]any, 0, len(s.Exercises)*exerciseCols)
	var setCount int
	for i, ex := range s.Exercises {
		values = append(values, placeholders(i*exerciseCols, exerciseCols))
		args = append(args, ex.ID, s.ID, ex.CatalogExerciseID, ex.Name, ex.MuscleGroup, ex.Notes,
			ex.Order, ex.StartedAt, ex.CompletedAt)
		setCount += len(ex.Sets)
	}
	_, err := db.q.Exec(ctx,
		`INSERT INTO session_exercises (id, session_id, catalog_exercise_id, name, muscle_group, notes,
		 exercise_order, started_at, completed_at) VALUES `+strings.Join(values, ","), args...)
	if err != nil {
		return fmt.Errorf("inserting exercises of session %s: %w", s.ID, err)
	}
	if setCount == 0 {
		return nil
	}

	const setCols = 19
	values = make([]string, 0, setCount)
	args = make([]any, 0, setCount*setCols)
	for _, ex := range s.Exercises {
		for _, set := range ex.Sets {
			values = append(values, placeholders(len(values)*setCols, setCols))
			args = append(args, set.ID, ex.ID, s.ID, set.Order, string(set.Type), set.Notes,
				set.PlannedWeight, set.PlannedReps, set.PlannedDurationSeconds,
				set.ActualWeight, set.ActualWeightKg, set.ActualReps, set.ActualDurationSeconds, set.RPE,
				set.PreviousWeight, set.PreviousReps, set.StartedAt, set.CompletedAt, set.RestAfterSeconds)
		}
	}
	_, err = db.q.Exec(ctx,
		`INSERT INTO session_sets (id, exercise_id, session_id, set_order, set_type, notes,
		 planned_weight, planned_reps, planned_duration_sec,
		 actual_weight, actual_weight_kg, actual_reps, actual_duration_sec, rpe,
		 previous_weight, previous_reps, started_at, completed_at, rest_after_sec) VALUES `+strings.Join(values, ","), args...)
	if err != nil {
		return fmt.Errorf("inserting sets of session %s: %w", s.ID, err)
	}
	return nil
}

// placeholders renders "($base+1,...,$base+n)".
func placeholders(base, n int) string {
	var b strings.Builder
	b.WriteByte('(')
	for i := 1; i <= n; i++ {
		if i > 1 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "$%d", base+i)
	}
	b.WriteByte(')')
	return b.String()
}

// ClaimRollup clears rollup_pending and reports whether this call cleared it.
func (db *DB) ClaimRollup(ctx context.Context, userID int, sessionID uuid.UUID) (bool, error) {
	var id uuid.UUID
	err := db.q.QueryRow(ctx,
		`UPDATE workout_sessions SET rollup_pending = FALSE
		 WHERE id = $1 AND user_id = $2 AND rollup_pending
		 RETURNING id`, sessionID, userID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("claiming rollup of session %s: %w", sessionID, err)
	}

	var exists bool
	err = db.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM workout_sessions WHERE id = $1 AND user_id = $2)`,
		sessionID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking session %s: %w", sessionID, err)
	}
	if !exists {
		return false, models.NotFound("claim rollup", "session", sessionID)
	}
	return false, nil
}

// AverageRestSeconds averages the rest of the last n completed sessions that recorded any.
func (db *DB) AverageRestSeconds(ctx context.Context, userID, n int) (float64, bool, error) {
	var (
		avg   *float64
		count int
	)
	err := db.q.QueryRow(ctx,
		`SELECT AVG(average_rest_sec), COUNT(*)
		 FROM (
			SELECT average_rest_sec FROM workout_sessions
			WHERE user_id = $1 AND status = 'completed'
			ORDER BY COALESCE(completed_at, started_at) DESC
			LIMIT $2
		 ) recent
		 WHERE average_rest_sec > 0`, userID, n).Scan(&avg, &count)
	if err != nil {
		return 0, false, fmt.Errorf("averaging rest: %w", err)
	}
	if count == 0 || avg == nil {
		return 0, false, nil
	}
	return *avg, true, nil
}

// WorkoutDates lists start times of completed sessions in [from, to).
func (db *DB) WorkoutDates(ctx context.Context, userID int, from, to time.Time) ([]time.Time, error) {
	rows, err := db.q.Query(ctx,
		`SELECT started_at FROM workout_sessions
		 WHERE user_id = $1 AND status = 'completed' AND started_at >= $2 AND started_at < $3
		 ORDER BY started_at`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying workout dates: %w", err)
	}
	defer rows.Close()

	var result []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scanning workout date: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}
