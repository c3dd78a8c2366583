// Package rollup folds completed sessions into the daily and weekly
// statistics buckets.
package rollup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/store"
)

// Aggregator folds sessions. Dates and ISO weeks are taken in loc.
type Aggregator struct {
	loc *time.Location
}

// New returns an aggregator bucketing by the calendar of loc (UTC if nil).
func New(loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{loc: loc}
}

// Fold claims sess and adds it to the buckets. It reports false without
// writing anything when the session was already folded. Call it inside the
// transaction that owns stats so the claim and the writes commit together.
func (a *Aggregator) Fold(ctx context.Context, stats store.StatsStore, sess *models.WorkoutSession) (bool, error) {
	if sess.Status != models.StatusCompleted {
		return false, models.InvalidState("fold session", sess)
	}

	claimed, err := stats.ClaimRollup(ctx, sess.UserID, sess.ID)
	if err != nil {
		return false, fmt.Errorf("claiming session %s: %w", sess.ID, err)
	}
	if !claimed {
		return false, nil
	}

	local := sess.StartedAt.In(a.loc)
	date := models.Day(local)
	week := models.WeekOf(local)

	for _, ex := range mergeByName(sess.Exercises) {
		sum := Summarize(ex)
		if sum.Sets == 0 {
			continue
		}

		daily := models.DailyExerciseStats{
			UserID:       sess.UserID,
			Date:         date,
			ExerciseName: ex.Name,
			MuscleGroup:  ex.MuscleGroup,
			TotalSets:    sum.Sets,
			TotalReps:    sum.Reps,
			TonnageKg:    sum.TonnageKg,
			MaxWeightKg:  sum.MaxWeightKg,
			BestE1RM:     sum.BestE1RM,
			AvgRPE:       sum.AvgRPE,
		}
		if err := stats.UpsertDailyExerciseStats(ctx, daily); err != nil {
			return false, fmt.Errorf("upserting daily stats for %s: %w", ex.Name, err)
		}

		if err := a.updateRecord(ctx, stats, sess, ex.Name, sum); err != nil {
			return false, err
		}

		if err := stats.AddWeeklyMuscleVolume(ctx, models.WeeklyMuscleVolume{
			UserID:      sess.UserID,
			Week:        week,
			MuscleGroup: ex.MuscleGroup,
			TotalSets:   sum.Sets,
			TotalReps:   sum.Reps,
			TonnageKg:   sum.TonnageKg,
		}); err != nil {
			return false, fmt.Errorf("adding weekly volume for %s: %w", ex.MuscleGroup, err)
		}
	}

	if err := stats.AddWeeklyUserStats(ctx, models.WeeklyUserStats{
		UserID:             sess.UserID,
		Week:               week,
		Sessions:           1,
		TotalSets:          sess.TotalSets,
		TotalReps:          sess.TotalVolumeReps,
		TonnageKg:          sess.TotalTonnageKg,
		DurationSeconds:    sess.DurationSeconds,
		AverageRestSeconds: sess.AverageRestSeconds,
	}); err != nil {
		return false, fmt.Errorf("adding weekly user stats: %w", err)
	}

	return true, nil
}

// mergeByName joins exercises logged more than once in a session under names
// equal up to case. The first instance supplies the name and muscle group.
func mergeByName(exercises []models.SessionExercise) []*models.SessionExercise {
	var merged []*models.SessionExercise
	byName := make(map[string]*models.SessionExercise, len(exercises))
	for i := range exercises {
		ex := &exercises[i]
		key := strings.ToLower(ex.Name)
		if first, ok := byName[key]; ok {
			first.Sets = append(first.Sets, ex.Sets...)
			continue
		}
		cp := *ex
		cp.Sets = append([]models.SessionSet(nil), ex.Sets...)
		byName[key] = &cp
		merged = append(merged, &cp)
	}
	return merged
}

// updateRecord raises the stored record to the session-level maxima. It
// never writes log rows; those belong to the live checks.
func (a *Aggregator) updateRecord(ctx context.Context, stats store.StatsStore, sess *models.WorkoutSession, name string, sum Summary) error {
	prior, err := stats.GetExercisePR(ctx, sess.UserID, name)
	if err != nil {
		return fmt.Errorf("loading record for %s: %w", name, err)
	}
	at := sess.StartedAt
	if sess.CompletedAt != nil {
		at = *sess.CompletedAt
	}

	next, changed := Raise(prior, sess.UserID, name, sum, at)
	if !changed {
		return nil
	}
	if err := stats.UpsertExercisePR(ctx, *next); err != nil {
		return fmt.Errorf("saving record for %s: %w", name, err)
	}
	return nil
}

// Raise returns prior lifted to the maxima in sum. prior may be nil and is
// not modified.
func Raise(prior *models.UserExercisePR, userID int, name string, sum Summary, at time.Time) (*models.UserExercisePR, bool) {
	var next *models.UserExercisePR
	if prior != nil {
		next = prior.Clone()
	} else {
		next = &models.UserExercisePR{UserID: userID, ExerciseName: name}
	}

	changed := false
	raise := func(best **float64, date **time.Time, v float64) {
		if v <= 0 || (*best != nil && v <= **best) {
			return
		}
		*best = &v
		*date = &at
		changed = true
	}
	raise(&next.BestWeightKg, &next.BestWeightDate, sum.MaxWeightKg)
	raise(&next.BestE1RM, &next.BestE1RMDate, sum.BestE1RM)
	raise(&next.BestVolumeKg, &next.BestVolumeDate, sum.TonnageKg)

	for reps, kg := range sum.BestWeightAtReps {
		if cur, ok := next.RepCount(reps); ok && kg <= cur.BestWeightKg {
			continue
		}
		next.SetRepCount(models.RepRecord{Reps: reps, BestWeightKg: kg, Date: at})
		changed = true
	}

	if changed {
		next.UpdatedAt = at
	}
	return next, changed
}

// Summary is one exercise's contribution to a session.
type Summary struct {
	Sets        int
	Reps        int
	TonnageKg   float64
	MaxWeightKg float64
	BestE1RM    float64
	AvgRPE      *float64
	// BestWeightAtReps maps an exact rep count to the heaviest working load.
	BestWeightAtReps map[int]float64
}

// Summarize totals the completed sets of ex. Warmups count as sets and reps
// but never as loads.
func Summarize(ex *models.SessionExercise) Summary {
	sum := Summary{BestWeightAtReps: make(map[int]float64)}
	var rpeSum float64
	var rpeCount int

	for i := range ex.Sets {
		set := &ex.Sets[i]
		if !set.Completed() {
			continue
		}
		sum.Sets++
		if set.ActualReps != nil {
			sum.Reps += *set.ActualReps
		}
		sum.TonnageKg += set.Tonnage()
		if set.RPE != nil {
			rpeSum += *set.RPE
			rpeCount++
		}

		if set.Type == models.SetWarmup || set.ActualWeightKg == nil {
			continue
		}
		kg := *set.ActualWeightKg
		if kg > sum.MaxWeightKg {
			sum.MaxWeightKg = kg
		}
		if e := set.Estimated1RM(); e > sum.BestE1RM {
			sum.BestE1RM = e
		}
		if set.ActualReps != nil && *set.ActualReps > 0 && kg > 0 {
			reps := *set.ActualReps
			if kg > sum.BestWeightAtReps[reps] {
				sum.BestWeightAtReps[reps] = kg
			}
		}
	}

	if rpeCount > 0 {
		avg := rpeSum / float64(rpeCount)
		sum.AvgRPE = &avg
	}
	return sum
}
