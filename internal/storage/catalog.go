package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/claude/liftlog/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetProgramDay loads a prescribed day owned by the user, with its exercises and sets.
func (db *DB) GetProgramDay(ctx context.Context, userID int, dayID uuid.UUID) (*models.ProgramDay, error) {
	day := models.ProgramDay{ID: dayID, Exercises: []models.ProgramExercise{}}
	err := db.q.QueryRow(ctx,
		`SELECT d.program_id, d.name
		 FROM program_days d
		 JOIN programs p ON p.id = d.program_id
		 WHERE d.id = $1 AND p.user_id = $2`, dayID, userID,
	).Scan(&day.ProgramID, &day.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NotFound("get program day", "day", dayID)
	}
	if err != nil {
		return nil, fmt.Errorf("getting program day %s: %w", dayID, err)
	}

	rows, err := db.q.Query(ctx,
		`SELECT e.id, e.name, e.muscle_group, e.notes, e.exercise_order,
		 s.set_order, s.set_type, s.weight, s.reps, s.duration_sec
		 FROM program_exercises e
		 LEFT JOIN program_sets s ON s.exercise_id = e.id
		 WHERE e.day_id = $1
		 ORDER BY e.exercise_order, e.id, s.set_order`, dayID)
	if err != nil {
		return nil, fmt.Errorf("querying program exercises: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ex       models.ProgramExercise
			setOrder *int
			setType  *string
			set      models.ProgramSet
		)
		if err := rows.Scan(&ex.ID, &ex.Name, &ex.MuscleGroup, &ex.Notes, &ex.Order,
			&setOrder, &setType, &set.Weight, &set.Reps, &set.DurationSeconds); err != nil {
			return nil, fmt.Errorf("scanning program exercise: %w", err)
		}
		n := len(day.Exercises)
		if n == 0 || day.Exercises[n-1].ID != ex.ID {
			ex.Sets = []models.ProgramSet{}
			day.Exercises = append(day.Exercises, ex)
			n++
		}
		if setOrder == nil {
			continue
		}
		set.Order = *setOrder
		set.Type = models.SetWorking
		if setType != nil {
			set.Type = models.SetType(*setType)
		}
		day.Exercises[n-1].Sets = append(day.Exercises[n-1].Sets, set)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating program exercises: %w", err)
	}
	return &day, nil
}

// Ratios returns the five bodyweight ratios of the exercise's strength standard.
func (db *DB) Ratios(ctx context.Context, exercise, gender string) ([]float64, error) {
	var ratios []float64
	err := db.q.QueryRow(ctx,
		`SELECT ratios FROM strength_standards
		 WHERE exercise = lower($1) AND gender = lower($2)`, exercise, gender,
	).Scan(&ratios)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &models.Error{Kind: models.ErrNotFound, Op: "get strength standards", Entity: "exercise", ID: exercise}
	}
	if err != nil {
		return nil, fmt.Errorf("getting strength standards for %s: %w", exercise, err)
	}
	return ratios, nil
}
