package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/claude/liftlog/internal/models"
	"github.com/jackc/pgx/v5"
)

// GetExercisePR returns nil, nil when the user has no record state for the exercise.
func (db *DB) GetExercisePR(ctx context.Context, userID int, exerciseName string) (*models.UserExercisePR, error) {
	pr := models.UserExercisePR{UserID: userID, ExerciseName: exerciseName}
	var repsAtWeight, weightAtReps []byte
	err := db.q.QueryRow(ctx,
		`SELECT best_weight_kg, best_weight_date, best_e1rm, best_e1rm_date,
		 best_volume_kg, best_volume_date, reps_at_weight, weight_at_reps, updated_at
		 FROM user_exercise_prs
		 WHERE user_id = $1 AND lower(exercise_name) = lower($2)`,
		userID, exerciseName,
	).Scan(&pr.BestWeightKg, &pr.BestWeightDate, &pr.BestE1RM, &pr.BestE1RMDate,
		&pr.BestVolumeKg, &pr.BestVolumeDate, &repsAtWeight, &weightAtReps, &pr.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting records for %s: %w", exerciseName, err)
	}
	if err := json.Unmarshal(repsAtWeight, &pr.RepsAtWeight); err != nil {
		return nil, fmt.Errorf("decoding reps at weight for %s: %w", exerciseName, err)
	}
	if err := json.Unmarshal(weightAtReps, &pr.WeightAtReps); err != nil {
		return nil, fmt.Errorf("decoding weight at reps for %s: %w", exerciseName, err)
	}
	return &pr, nil
}

// UpsertExercisePR writes the whole record state for (user, exercise).
func (db *DB) UpsertExercisePR(ctx context.Context, pr models.UserExercisePR) error {
	if pr.RepsAtWeight == nil {
		pr.RepsAtWeight = []models.BracketRecord{}
	}
	if pr.WeightAtReps == nil {
		pr.WeightAtReps = []models.RepRecord{}
	}
	repsAtWeight, err := json.Marshal(pr.RepsAtWeight)
	if err != nil {
		return fmt.Errorf("encoding reps at weight: %w", err)
	}
	weightAtReps, err := json.Marshal(pr.WeightAtReps)
	if err != nil {
		return fmt.Errorf("encoding weight at reps: %w", err)
	}

	_, err = db.q.Exec(ctx,
		`INSERT INTO user_exercise_prs (user_id, exercise_name, best_weight_kg, best_weight_date,
		 best_e1rm, best_e1rm_date, best_volume_kg, best_volume_date, reps_at_weight, weight_at_reps, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		 ON CONFLICT (user_id, lower(exercise_name)) DO UPDATE SET
			best_weight_kg = EXCLUDED.best_weight_kg,
			best_weight_date = EXCLUDED.best_weight_date,
			best_e1rm = EXCLUDED.best_e1rm,
			best_e1rm_date = EXCLUDED.best_e1rm_date,
			best_volume_kg = EXCLUDED.best_volume_kg,
			best_volume_date = EXCLUDED.best_volume_date,
			reps_at_weight = EXCLUDED.reps_at_weight,
			weight_at_reps = EXCLUDED.weight_at_reps,
			updated_at = EXCLUDED.updated_at`,
		pr.UserID, pr.ExerciseName, pr.BestWeightKg, pr.BestWeightDate,
		pr.BestE1RM, pr.BestE1RMDate, pr.BestVolumeKg, pr.BestVolumeDate,
		repsAtWeight, weightAtReps, pr.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting records for %s: %w", pr.ExerciseName, err)
	}
	return nil
}

// AppendRecordLog inserts an immutable record log entry.
func (db *DB) AppendRecordLog(ctx context.Context, e models.PersonalRecordLog) error {
	var bracket *int
	if e.Bracket != nil {
		b := int(*e.Bracket)
		bracket = &b
	}
	_, err := db.q.Exec(ctx,
		`INSERT INTO personal_record_logs (id, user_id, exercise_name, muscle_group, record_type, bracket,
		 value, previous_value, previous_date, improvement_pct, session_id, set_id, achieved_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		e.ID, e.UserID, e.ExerciseName, e.MuscleGroup, string(e.RecordType), bracket,
		e.Value, e.PreviousValue, e.PreviousDate, e.ImprovementPct, e.SessionID, e.SetID, e.AchievedAt)
	if err != nil {
		return fmt.Errorf("inserting record log: %w", err)
	}
	return nil
}

// ListRecordLogs returns a page of record logs, newest first, and the total count.
// Entries broken by the same set keep their insertion order.
func (db *DB) ListRecordLogs(ctx context.Context, userID int, q models.RecordQuery) ([]models.PersonalRecordLog, int, error) {
	var exercise *string
	if q.ExerciseName != "" {
		exercise = &q.ExerciseName
	}

	var total int
	err := db.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM personal_record_logs
		 WHERE user_id = $1 AND ($2::text IS NULL OR lower(exercise_name) = lower($2))`,
		userID, exercise).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting record logs: %w", err)
	}

	var limit *int
	if q.Limit > 0 {
		limit = &q.Limit
	}
	rows, err := db.q.Query(ctx,
		`SELECT id, user_id, exercise_name, muscle_group, record_type, bracket,
		 value, previous_value, previous_date, improvement_pct, session_id, set_id, achieved_at
		 FROM personal_record_logs
		 WHERE user_id = $1 AND ($2::text IS NULL OR lower(exercise_name) = lower($2))
		 ORDER BY achieved_at DESC, seq
		 LIMIT $3 OFFSET $4`,
		userID, exercise, limit, q.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("querying record logs: %w", err)
	}
	defer rows.Close()

	var result []models.PersonalRecordLog
	for rows.Next() {
		var (
			e          models.PersonalRecordLog
			recordType string
			bracket    *int
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.ExerciseName, &e.MuscleGroup, &recordType, &bracket,
			&e.Value, &e.PreviousValue, &e.PreviousDate, &e.ImprovementPct, &e.SessionID, &e.SetID, &e.AchievedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning record log: %w", err)
		}
		e.RecordType = models.RecordType(recordType)
		if bracket != nil {
			b := models.WeightBracket(*bracket)
			e.Bracket = &b
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating record logs: %w", err)
	}
	return result, total, nil
}

func (db *DB) CountRecordLogs(ctx context.Context, userID int) (int, error) {
	var n int
	err := db.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM personal_record_logs WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting record logs: %w", err)
	}
	return n, nil
}
