package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/jackc/pgx/v5"
)

// DataStats holds aggregate counts about a user's stored training data.
type DataStats struct {
	TotalSessions  int64      `json:"total_sessions"`
	TotalSets      int64      `json:"total_sets"`
	TotalRecords   int64      `json:"total_records"`
	TotalExercises int64      `json:"total_exercises"`
	EarliestData   *time.Time `json:"earliest_data"`
	LatestData     *time.Time `json:"latest_data"`
}

// GetDataStats returns aggregate statistics for a user's stored data.
func (db *DB) GetDataStats(ctx context.Context, userID int) (*DataStats, error) {
	stats := &DataStats{}

	err := db.q.QueryRow(ctx,
		`SELECT COUNT(*), MIN(started_at), MAX(started_at)
		 FROM workout_sessions WHERE user_id = $1 AND status = 'completed'`, userID,
	).Scan(&stats.TotalSessions, &stats.EarliestData, &stats.LatestData)
	if err != nil {
		return nil, fmt.Errorf("counting sessions: %w", err)
	}

	err = db.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM session_sets st
		 JOIN workout_sessions ws ON ws.id = st.session_id
		 WHERE ws.user_id = $1 AND ws.status = 'completed' AND st.completed_at IS NOT NULL`, userID,
	).Scan(&stats.TotalSets)
	if err != nil {
		return nil, fmt.Errorf("counting sets: %w", err)
	}

	err = db.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM personal_record_logs WHERE user_id = $1`, userID,
	).Scan(&stats.TotalRecords)
	if err != nil {
		return nil, fmt.Errorf("counting records: %w", err)
	}

	err = db.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_exercise_prs WHERE user_id = $1`, userID,
	).Scan(&stats.TotalExercises)
	if err != nil {
		return nil, fmt.Errorf("counting exercises: %w", err)
	}

	return stats, nil
}

const dailyColumns = `user_id, date, exercise_name, muscle_group, total_sets, total_reps,
	tonnage_kg, max_weight_kg, best_e1rm, avg_rpe`

func scanDaily(row scanner) (models.DailyExerciseStats, error) {
	var d models.DailyExerciseStats
	err := row.Scan(&d.UserID, &d.Date, &d.ExerciseName, &d.MuscleGroup, &d.TotalSets, &d.TotalReps,
		&d.TonnageKg, &d.MaxWeightKg, &d.BestE1RM, &d.AvgRPE)
	return d, err
}

// dateOnly keeps the calendar day of t as seen in its own location.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (db *DB) GetDailyExerciseStats(ctx context.Context, userID int, date time.Time, exerciseName string) (*models.DailyExerciseStats, error) {
	d, err := scanDaily(db.q.QueryRow(ctx,
		`SELECT `+dailyColumns+` FROM daily_exercise_stats
		 WHERE user_id = $1 AND date = $2 AND lower(exercise_name) = lower($3)`,
		userID, dateOnly(date), exerciseName))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting daily stats for %s: %w", exerciseName, err)
	}
	return &d, nil
}

// UpsertDailyExerciseStats replaces the (user, date, exercise) bucket.
func (db *DB) UpsertDailyExerciseStats(ctx context.Context, s models.DailyExerciseStats) error {
	_, err := db.q.Exec(ctx,
		`INSERT INTO daily_exercise_stats (`+dailyColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		 ON CONFLICT (user_id, date, lower(exercise_name)) DO UPDATE SET
			muscle_group = EXCLUDED.muscle_group,
			total_sets = EXCLUDED.total_sets,
			total_reps = EXCLUDED.total_reps,
			tonnage_kg = EXCLUDED.tonnage_kg,
			max_weight_kg = EXCLUDED.max_weight_kg,
			best_e1rm = EXCLUDED.best_e1rm,
			avg_rpe = EXCLUDED.avg_rpe`,
		s.UserID, dateOnly(s.Date), s.ExerciseName, s.MuscleGroup, s.TotalSets, s.TotalReps,
		s.TonnageKg, s.MaxWeightKg, s.BestE1RM, s.AvgRPE)
	if err != nil {
		return fmt.Errorf("upserting daily stats for %s: %w", s.ExerciseName, err)
	}
	return nil
}

// ListDailyExerciseStats returns the exercise's daily buckets in date order.
func (db *DB) ListDailyExerciseStats(ctx context.Context, userID int, exerciseName string, from, to *time.Time) ([]models.DailyExerciseStats, error) {
	var fromDate, toDate *time.Time
	if from != nil {
		d := dateOnly(*from)
		fromDate = &d
	}
	if to != nil {
		d := dateOnly(*to)
		toDate = &d
	}
	rows, err := db.q.Query(ctx,
		`SELECT `+dailyColumns+` FROM daily_exercise_stats
		 WHERE user_id = $1 AND lower(exercise_name) = lower($2)
		   AND ($3::date IS NULL OR date >= $3)
		   AND ($4::date IS NULL OR date <= $4)
		 ORDER BY date`, userID, exerciseName, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("querying daily stats: %w", err)
	}
	defer rows.Close()

	var result []models.DailyExerciseStats
	for rows.Next() {
		d, err := scanDaily(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning daily stats: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

// weekBounds converts optional ISO weeks into comparable year*100+week keys.
func weekBounds(from, to *models.ISOWeek) (lo, hi *int) {
	if from != nil {
		k := from.Year*100 + from.Week
		lo = &k
	}
	if to != nil {
		k := to.Year*100 + to.Week
		hi = &k
	}
	return lo, hi
}

func (db *DB) GetWeeklyMuscleVolume(ctx context.Context, userID int, week models.ISOWeek, muscleGroup string) (*models.WeeklyMuscleVolume, error) {
	v := models.WeeklyMuscleVolume{UserID: userID, Week: week, MuscleGroup: muscleGroup}
	err := db.q.QueryRow(ctx,
		`SELECT total_sets, total_reps, tonnage_kg FROM weekly_muscle_volume
		 WHERE user_id = $1 AND iso_year = $2 AND iso_week = $3 AND lower(muscle_group) = lower($4)`,
		userID, week.Year, week.Week, muscleGroup,
	).Scan(&v.TotalSets, &v.TotalReps, &v.TonnageKg)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting weekly volume for %s: %w", muscleGroup, err)
	}
	return &v, nil
}

// AddWeeklyMuscleVolume increments the bucket's counters by delta.
func (db *DB) AddWeeklyMuscleVolume(ctx context.Context, delta models.WeeklyMuscleVolume) error {
	_, err := db.q.Exec(ctx,
		`INSERT INTO weekly_muscle_volume (user_id, iso_year, iso_week, muscle_group, total_sets, total_reps, tonnage_kg)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (user_id, iso_year, iso_week, lower(muscle_group)) DO UPDATE SET
			total_sets = weekly_muscle_volume.total_sets + EXCLUDED.total_sets,
			total_reps = weekly_muscle_volume.total_reps + EXCLUDED.total_reps,
			tonnage_kg = weekly_muscle_volume.tonnage_kg + EXCLUDED.tonnage_kg`,
		delta.UserID, delta.Week.Year, delta.Week.Week, delta.MuscleGroup,
		delta.TotalSets, delta.TotalReps, delta.TonnageKg)
	if err != nil {
		return fmt.Errorf("adding weekly volume for %s: %w", delta.MuscleGroup, err)
	}
	return nil
}

func (db *DB) ListWeeklyMuscleVolume(ctx context.Context, userID int, muscleGroup string, from, to *models.ISOWeek) ([]models.WeeklyMuscleVolume, error) {
	lo, hi := weekBounds(from, to)
	rows, err := db.q.Query(ctx,
		`SELECT muscle_group, iso_year, iso_week, total_sets, total_reps, tonnage_kg
		 FROM weekly_muscle_volume
		 WHERE user_id = $1 AND lower(muscle_group) = lower($2)
		   AND ($3::int IS NULL OR iso_year * 100 + iso_week >= $3)
		   AND ($4::int IS NULL OR iso_year * 100 + iso_week <= $4)
		 ORDER BY iso_year, iso_week`, userID, muscleGroup, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("querying weekly volume: %w", err)
	}
	defer rows.Close()

	var result []models.WeeklyMuscleVolume
	for rows.Next() {
		v := models.WeeklyMuscleVolume{UserID: userID}
		if err := rows.Scan(&v.MuscleGroup, &v.Week.Year, &v.Week.Week, &v.TotalSets, &v.TotalReps, &v.TonnageKg); err != nil {
			return nil, fmt.Errorf("scanning weekly volume: %w", err)
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

func (db *DB) GetWeeklyUserStats(ctx context.Context, userID int, week models.ISOWeek) (*models.WeeklyUserStats, error) {
	s := models.WeeklyUserStats{UserID: userID, Week: week}
	err := db.q.QueryRow(ctx,
		`SELECT sessions, total_sets, total_reps, tonnage_kg, duration_sec, average_rest_sec
		 FROM weekly_user_stats
		 WHERE user_id = $1 AND iso_year = $2 AND iso_week = $3`,
		userID, week.Year, week.Week,
	).Scan(&s.Sessions, &s.TotalSets, &s.TotalReps, &s.TonnageKg, &s.DurationSeconds, &s.AverageRestSeconds)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting weekly stats: %w", err)
	}
	return &s, nil
}

// AddWeeklyUserStats increments the bucket's counters and overwrites its average rest.
func (db *DB) AddWeeklyUserStats(ctx context.Context, delta models.WeeklyUserStats) error {
	_, err := db.q.Exec(ctx,
		`INSERT INTO weekly_user_stats (user_id, iso_year, iso_week, sessions, total_sets, total_reps,
		 tonnage_kg, duration_sec, average_rest_sec)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 ON CONFLICT (user_id, iso_year, iso_week) DO UPDATE SET
			sessions = weekly_user_stats.sessions + EXCLUDED.sessions,
			total_sets = weekly_user_stats.total_sets + EXCLUDED.total_sets,
			total_reps = weekly_user_stats.total_reps + EXCLUDED.total_reps,
			tonnage_kg = weekly_user_stats.tonnage_kg + EXCLUDED.tonnage_kg,
			duration_sec = weekly_user_stats.duration_sec + EXCLUDED.duration_sec,
			average_rest_sec = EXCLUDED.average_rest_sec`,
		delta.UserID, delta.Week.Year, delta.Week.Week, delta.Sessions, delta.TotalSets, delta.TotalReps,
		delta.TonnageKg, delta.DurationSeconds, delta.AverageRestSeconds)
	if err != nil {
		return fmt.Errorf("adding weekly stats: %w", err)
	}
	return nil
}

func (db *DB) ListWeeklyUserStats(ctx context.Context, userID int, from, to *models.ISOWeek) ([]models.WeeklyUserStats, error) {
	lo, hi := weekBounds(from, to)
	rows, err := db.q.Query(ctx,
		`SELECT iso_year, iso_week, sessions, total_sets, total_reps, tonnage_kg, duration_sec, average_rest_sec
		 FROM weekly_user_stats
		 WHERE user_id = $1
		   AND ($2::int IS NULL OR iso_year * 100 + iso_week >= $2)
		   AND ($3::int IS NULL OR iso_year * 100 + iso_week <= $3)
		 ORDER BY iso_year, iso_week`, userID, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("querying weekly stats: %w", err)
	}
	defer rows.Close()

	var result []models.WeeklyUserStats
	for rows.Next() {
		s := models.WeeklyUserStats{UserID: userID}
		if err := rows.Scan(&s.Week.Year, &s.Week.Week, &s.Sessions, &s.TotalSets, &s.TotalReps,
			&s.TonnageKg, &s.DurationSeconds, &s.AverageRestSeconds); err != nil {
			return nil, fmt.Errorf("scanning weekly stats: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
