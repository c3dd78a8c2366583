// Package records detects personal records as sets are completed.
package records

import (
	"context"
	"fmt"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/store"
	"github.com/google/uuid"
)

// SetInput is what the record checks look at for one completed set.
type SetInput struct {
	UserID       int
	ExerciseName string
	WeightKg     *float64
	Reps         *int
	At           time.Time
}

// InputFor builds the check input from a completed set.
func InputFor(userID int, exerciseName string, set *models.SessionSet, at time.Time) SetInput {
	return SetInput{
		UserID:       userID,
		ExerciseName: exerciseName,
		WeightKg:     set.ActualWeightKg,
		Reps:         set.ActualReps,
		At:           at,
	}
}

// Event is one broken record.
type Event struct {
	Type           models.RecordType
	Bracket        *models.WeightBracket
	Value          float64
	PreviousValue  *float64
	PreviousDate   *time.Time
	ImprovementPct float64
}

// Improvement returns (new-old)/old*100, or 0 without a usable previous value.
func Improvement(value float64, previous *float64) float64 {
	if previous == nil || *previous == 0 {
		return 0
	}
	return (value - *previous) / *previous * 100
}

// Check runs the max weight, max estimated 1RM and max reps per weight
// bracket checks against prior, which may be nil. It returns the updated
// record state and one event per record broken. prior is not modified.
func Check(prior *models.UserExercisePR, in SetInput) (*models.UserExercisePR, []Event) {
	var next *models.UserExercisePR
	if prior != nil {
		next = prior.Clone()
	} else {
		next = &models.UserExercisePR{UserID: in.UserID, ExerciseName: in.ExerciseName}
	}

	var events []Event
	at := in.At

	if in.WeightKg != nil && *in.WeightKg > 0 {
		w := *in.WeightKg
		if next.BestWeightKg == nil || w > *next.BestWeightKg {
			events = append(events, Event{
				Type:           models.RecordMaxWeight,
				Value:          w,
				PreviousValue:  next.BestWeightKg,
				PreviousDate:   next.BestWeightDate,
				ImprovementPct: Improvement(w, next.BestWeightKg),
			})
			next.BestWeightKg = &w
			next.BestWeightDate = &at
		}
	}

	if in.WeightKg != nil && in.Reps != nil {
		if e1rm := models.Estimate1RM(*in.WeightKg, *in.Reps); e1rm > 0 {
			if next.BestE1RM == nil || e1rm > *next.BestE1RM {
				events = append(events, Event{
					Type:           models.RecordMaxEstimated1RM,
					Value:          e1rm,
					PreviousValue:  next.BestE1RM,
					PreviousDate:   next.BestE1RMDate,
					ImprovementPct: Improvement(e1rm, next.BestE1RM),
				})
				next.BestE1RM = &e1rm
				next.BestE1RMDate = &at
			}
		}
	}

	if in.WeightKg != nil && in.Reps != nil && *in.Reps > 0 {
		bracket := models.BracketFor(*in.WeightKg)
		reps := *in.Reps
		rec, ok := next.Bracket(bracket)
		if !ok || reps > rec.BestReps {
			ev := Event{
				Type:    models.RecordMaxRepAtWeight,
				Bracket: &bracket,
				Value:   float64(reps),
			}
			if ok {
				prev, prevDate := float64(rec.BestReps), rec.Date
				ev.PreviousValue = &prev
				ev.PreviousDate = &prevDate
				ev.ImprovementPct = Improvement(ev.Value, &prev)
			}
			events = append(events, ev)
			next.SetBracket(models.BracketRecord{Bracket: bracket, BestReps: reps, Date: at})
		}
	}

	if len(events) > 0 {
		next.UpdatedAt = at
	}
	return next, events
}

// Engine persists the outcome of Check.
type Engine struct {
	newID func() uuid.UUID
}

// NewEngine returns an engine that assigns random log IDs.
func NewEngine() *Engine {
	return &Engine{newID: uuid.New}
}

// Evaluate checks a completed set of exercise against the user's records,
// writes the updated record state and appends one log row per broken record.
// Warmups are never evaluated.
func (e *Engine) Evaluate(ctx context.Context, stats store.StatsStore, sess *models.WorkoutSession, ex *models.SessionExercise, set *models.SessionSet, now time.Time) ([]models.PersonalRecordLog, error) {
	if set.Type == models.SetWarmup || !set.Completed() {
		return nil, nil
	}

	prior, err := stats.GetExercisePR(ctx, sess.UserID, ex.Name)
	if err != nil {
		return nil, fmt.Errorf("loading record for %s: %w", ex.Name, err)
	}

	next, events := Check(prior, InputFor(sess.UserID, ex.Name, set, now))
	if len(events) == 0 {
		return nil, nil
	}

	if err := stats.UpsertExercisePR(ctx, *next); err != nil {
		return nil, fmt.Errorf("saving record for %s: %w", ex.Name, err)
	}

	logs := make([]models.PersonalRecordLog, 0, len(events))
	for _, ev := range events {
		entry := models.PersonalRecordLog{
			ID:             e.newID(),
			UserID:         sess.UserID,
			ExerciseName:   ex.Name,
			MuscleGroup:    ex.MuscleGroup,
			RecordType:     ev.Type,
			Bracket:        ev.Bracket,
			Value:          ev.Value,
			PreviousValue:  ev.PreviousValue,
			PreviousDate:   ev.PreviousDate,
			ImprovementPct: ev.ImprovementPct,
			SessionID:      sess.ID,
			SetID:          set.ID,
			AchievedAt:     now,
		}
		if err := stats.AppendRecordLog(ctx, entry); err != nil {
			return nil, fmt.Errorf("appending %s record log: %w", ev.Type, err)
		}
		logs = append(logs, entry)
	}
	return logs, nil
}
