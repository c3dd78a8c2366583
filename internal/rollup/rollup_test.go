package rollup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/store/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }

type lift struct {
	kg   float64
	reps int
	typ  models.SetType
	rpe  *float64
}

// completed builds and stores a completed session started at start, with
// one exercise per entry of lifts and two minutes between sets.
func completed(t *testing.T, st *memstore.Store, userID int, start time.Time, exercises map[string][]lift) *models.WorkoutSession {
	t.Helper()
	sess := &models.WorkoutSession{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     "Workout",
		StartedAt: start,
		Status:    models.StatusInProgress,
	}
	require.NoError(t, st.CreateSession(context.Background(), sess))

	at := start
	order := 0
	for name, lifts := range exercises {
		ex := models.SessionExercise{ID: uuid.New(), Name: name, MuscleGroup: muscleOf(name), Order: order}
		order++
		for i, l := range lifts {
			typ := l.typ
			if typ == "" {
				typ = models.SetWorking
			}
			ex.Sets = append(ex.Sets, models.SessionSet{ID: uuid.New(), Order: i, Type: typ})
		}
		for i, l := range lifts {
			at = at.Add(2 * time.Minute)
			ex.CompleteSet(&ex.Sets[i], models.SetActuals{WeightKg: f64(l.kg), Reps: intp(l.reps), RPE: l.rpe}, at)
		}
		sess.Exercises = append(sess.Exercises, ex)
	}
	sess.Finalize(at.Add(5*time.Minute), "")
	require.NoError(t, st.UpdateSession(context.Background(), sess))
	return sess
}

func muscleOf(name string) string {
	switch name {
	case "Bench Press":
		return "chest"
	case "Squat":
		return "legs"
	case "Fly":
		return "chest"
	}
	return "other"
}

var monday = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) // ISO 2026-W10

func TestFoldScenarioTonnage(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	agg := New(time.UTC)

	sess := completed(t, st, 1, monday, map[string][]lift{"Bench Press": {{kg: 100, reps: 5}}})
	folded, err := agg.Fold(ctx, st, sess)
	require.NoError(t, err)
	assert.True(t, folded)

	daily, err := st.GetDailyExerciseStats(ctx, 1, monday, "Bench Press")
	require.NoError(t, err)
	require.NotNil(t, daily)
	assert.Equal(t, 500.0, daily.TonnageKg)
	assert.Equal(t, 1, daily.TotalSets)
	assert.Equal(t, 100.0, daily.MaxWeightKg)
	assert.InDelta(t, 114.58, daily.BestE1RM, 0.01)

	week := models.WeekOf(monday)
	vol, err := st.GetWeeklyMuscleVolume(ctx, 1, week, "chest")
	require.NoError(t, err)
	require.NotNil(t, vol)
	assert.Equal(t, 500.0, vol.TonnageKg)

	ws, err := st.GetWeeklyUserStats(ctx, 1, week)
	require.NoError(t, err)
	require.NotNil(t, ws)
	assert.Equal(t, 1, ws.Sessions)
	assert.Equal(t, 500.0, ws.TonnageKg)
	assert.Equal(t, 5, ws.TotalReps)
}

func TestFoldAtMostOnce(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	agg := New(nil)

	sess := completed(t, st, 1, monday, map[string][]lift{"Squat": {{kg: 140, reps: 3}, {kg: 140, reps: 3}}})
	folded, err := agg.Fold(ctx, st, sess)
	require.NoError(t, err)
	require.True(t, folded)

	folded, err = agg.Fold(ctx, st, sess)
	require.NoError(t, err)
	assert.False(t, folded)

	ws, err := st.GetWeeklyUserStats(ctx, 1, models.WeekOf(monday))
	require.NoError(t, err)
	assert.Equal(t, 1, ws.Sessions)
	assert.Equal(t, 840.0, ws.TonnageKg)
}

func TestFoldRejectsOpenSession(t *testing.T) {
	sess := &models.WorkoutSession{ID: uuid.New(), UserID: 1, Status: models.StatusAbandoned}
	_, err := New(nil).Fold(context.Background(), memstore.New(), sess)
	assert.True(t, errors.Is(err, models.ErrInvalidState))
}

func TestFoldWeeklyBucketsAreAdditive(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	agg := New(time.UTC)

	s1 := completed(t, st, 1, monday, map[string][]lift{
		"Bench Press": {{kg: 100, reps: 5}},
		"Fly":         {{kg: 20, reps: 10}},
	})
	s2 := completed(t, st, 1, monday.AddDate(0, 0, 2), map[string][]lift{"Bench Press": {{kg: 100, reps: 5}, {kg: 100, reps: 5}}})
	next := completed(t, st, 1, monday.AddDate(0, 0, 7), map[string][]lift{"Bench Press": {{kg: 50, reps: 5}}})

	for _, s := range []*models.WorkoutSession{s1, s2, next} {
		_, err := agg.Fold(ctx, st, s)
		require.NoError(t, err)
	}

	vol, err := st.GetWeeklyMuscleVolume(ctx, 1, models.WeekOf(monday), "chest")
	require.NoError(t, err)
	assert.Equal(t, 4, vol.TotalSets)
	assert.Equal(t, 25, vol.TotalReps)
	assert.Equal(t, 1700.0, vol.TonnageKg)

	ws, err := st.GetWeeklyUserStats(ctx, 1, models.WeekOf(monday))
	require.NoError(t, err)
	assert.Equal(t, 2, ws.Sessions)
	assert.Equal(t, s1.DurationSeconds+s2.DurationSeconds, ws.DurationSeconds)

	nextWeek, err := st.GetWeeklyUserStats(ctx, 1, models.WeekOf(monday.AddDate(0, 0, 7)))
	require.NoError(t, err)
	assert.Equal(t, 1, nextWeek.Sessions)
	assert.Equal(t, 250.0, nextWeek.TonnageKg)
}

// Two sessions with the same exercise on one day: the later fold replaces
// the daily bucket instead of merging it. Known undercount, kept as is.
func TestFoldSameDayDailyStatsOverwrite(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	agg := New(time.UTC)

	morning := completed(t, st, 1, monday, map[string][]lift{"Squat": {{kg: 100, reps: 5}, {kg: 100, reps: 5}}})
	evening := completed(t, st, 1, monday.Add(9*time.Hour), map[string][]lift{"Squat": {{kg: 60, reps: 10}}})
	for _, s := range []*models.WorkoutSession{morning, evening} {
		_, err := agg.Fold(ctx, st, s)
		require.NoError(t, err)
	}

	daily, err := st.GetDailyExerciseStats(ctx, 1, monday, "Squat")
	require.NoError(t, err)
	assert.Equal(t, 1, daily.TotalSets)
	assert.Equal(t, 600.0, daily.TonnageKg)
	assert.Equal(t, 60.0, daily.MaxWeightKg)

	// The weekly buckets still see both sessions.
	vol, err := st.GetWeeklyMuscleVolume(ctx, 1, models.WeekOf(monday), "legs")
	require.NoError(t, err)
	assert.Equal(t, 1600.0, vol.TonnageKg)
}

// TestFoldMergesRepeatedExercise folds an exercise logged twice in one session
// as a single daily row.
func TestFoldMergesRepeatedExercise(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	agg := New(time.UTC)

	sess := completed(t, st, 1, monday, map[string][]lift{"Bench Press": {{kg: 100, reps: 5, rpe: f64(8)}}})
	extra := models.SessionExercise{ID: uuid.New(), Name: "bench press", MuscleGroup: "chest", Order: 1,
		Sets: []models.SessionSet{{ID: uuid.New(), Type: models.SetWorking}}}
	extra.CompleteSet(&extra.Sets[0], models.SetActuals{WeightKg: f64(125), Reps: intp(4), RPE: f64(9)}, monday.Add(time.Hour))
	sess.Exercises = append(sess.Exercises, extra)

	_, err := agg.Fold(ctx, st, sess)
	require.NoError(t, err)

	daily, err := st.GetDailyExerciseStats(ctx, 1, monday, "Bench Press")
	require.NoError(t, err)
	require.NotNil(t, daily)
	assert.Equal(t, "Bench Press", daily.ExerciseName)
	assert.Equal(t, 2, daily.TotalSets)
	assert.Equal(t, 9, daily.TotalReps)
	assert.Equal(t, 1000.0, daily.TonnageKg)
	assert.Equal(t, 125.0, daily.MaxWeightKg)
	require.NotNil(t, daily.AvgRPE)
	assert.InDelta(t, 8.5, *daily.AvgRPE, 1e-9)

	pr, err := st.GetExercisePR(ctx, 1, "Bench Press")
	require.NoError(t, err)
	require.NotNil(t, pr)
	require.NotNil(t, pr.BestVolumeKg)
	assert.Equal(t, 1000.0, *pr.BestVolumeKg)
}

// The weekly average rest is the last folded session's value, not a mean.
func TestFoldWeeklyAverageRestOverwrite(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	agg := New(time.UTC)

	s1 := completed(t, st, 1, monday, map[string][]lift{"Squat": {{kg: 100, reps: 5}, {kg: 100, reps: 5}}})
	s2 := completed(t, st, 1, monday.AddDate(0, 0, 1), map[string][]lift{"Bench Press": {{kg: 80, reps: 5}}})
	s1.AverageRestSeconds = 120
	s2.AverageRestSeconds = 0
	for _, s := range []*models.WorkoutSession{s1, s2} {
		_, err := agg.Fold(ctx, st, s)
		require.NoError(t, err)
	}

	ws, err := st.GetWeeklyUserStats(ctx, 1, models.WeekOf(monday))
	require.NoError(t, err)
	assert.Equal(t, 0.0, ws.AverageRestSeconds)
}

func TestFoldUsesLocalCalendar(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	loc := time.FixedZone("UTC+3", 3*60*60)
	agg := New(loc)

	// Sunday 22:30 UTC is already Monday in UTC+3.
	start := time.Date(2026, 3, 1, 22, 30, 0, 0, time.UTC)
	sess := completed(t, st, 1, start, map[string][]lift{"Squat": {{kg: 100, reps: 5}}})
	_, err := agg.Fold(ctx, st, sess)
	require.NoError(t, err)

	ws, err := st.GetWeeklyUserStats(ctx, 1, models.ISOWeek{Year: 2026, Week: 10})
	require.NoError(t, err)
	require.NotNil(t, ws)
	assert.Equal(t, 1, ws.Sessions)
}

func TestFoldRaisesRecordWithoutLogs(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	agg := New(time.UTC)

	sess := completed(t, st, 1, monday, map[string][]lift{
		"Bench Press": {{kg: 60, reps: 10, typ: models.SetWarmup}, {kg: 100, reps: 5}, {kg: 90, reps: 5}, {kg: 80, reps: 8}},
	})
	_, err := agg.Fold(ctx, st, sess)
	require.NoError(t, err)

	pr, err := st.GetExercisePR(ctx, 1, "Bench Press")
	require.NoError(t, err)
	require.NotNil(t, pr)
	assert.Equal(t, 100.0, *pr.BestWeightKg)
	assert.Equal(t, 1590.0, *pr.BestVolumeKg)

	five, ok := pr.RepCount(5)
	require.True(t, ok)
	assert.Equal(t, 100.0, five.BestWeightKg)
	eight, ok := pr.RepCount(8)
	require.True(t, ok)
	assert.Equal(t, 80.0, eight.BestWeightKg)
	_, ok = pr.RepCount(10)
	assert.False(t, ok, "warmups never set loads")

	n, err := st.CountRecordLogs(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRaiseNeverLowers(t *testing.T) {
	at := monday
	prior, _ := Raise(nil, 1, "Squat", Summary{MaxWeightKg: 150, BestE1RM: 160, TonnageKg: 3000, BestWeightAtReps: map[int]float64{3: 150}}, at)
	next, changed := Raise(prior, 1, "Squat", Summary{MaxWeightKg: 120, BestE1RM: 130, TonnageKg: 2000, BestWeightAtReps: map[int]float64{3: 120}}, at.Add(time.Hour))
	assert.False(t, changed)
	assert.Equal(t, 150.0, *next.BestWeightKg)
	rec, _ := next.RepCount(3)
	assert.Equal(t, 150.0, rec.BestWeightKg)
}

func TestSummarizeAverageRPE(t *testing.T) {
	ex := models.SessionExercise{Sets: []models.SessionSet{
		{ID: uuid.New(), Type: models.SetWorking},
		{ID: uuid.New(), Type: models.SetWorking},
		{ID: uuid.New(), Type: models.SetWorking},
	}}
	ex.CompleteSet(&ex.Sets[0], models.SetActuals{WeightKg: f64(100), Reps: intp(5), RPE: f64(7)}, monday)
	ex.CompleteSet(&ex.Sets[1], models.SetActuals{WeightKg: f64(100), Reps: intp(5), RPE: f64(9)}, monday.Add(time.Minute))

	sum := Summarize(&ex)
	assert.Equal(t, 2, sum.Sets)
	require.NotNil(t, sum.AvgRPE)
	assert.Equal(t, 8.0, *sum.AvgRPE)
}
