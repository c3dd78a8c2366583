package analytics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/claude/liftlog/internal/metrics"
	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/rollup"
	"github.com/claude/liftlog/internal/session"
	"github.com/claude/liftlog/internal/store/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }

// Wednesday of ISO week 2026-W10.
var wednesday = time.Date(2026, 3, 4, 18, 0, 0, 0, time.UTC)

type env struct {
	store    *memstore.Store
	sessions *session.Service
	svc      *Service
	now      time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{store: memstore.New(), now: wednesday}
	clock := func() time.Time { return e.now }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e.sessions = session.NewService(e.store, e.store, rollup.New(time.UTC), metrics.NewTestManager(), logger,
		session.WithClock(clock), session.WithRollupRetries(1, 0))
	e.svc = New(e.store, e.store, e.store, Config{}, time.UTC)
	e.svc.SetClock(clock)
	return e
}

type lift struct {
	kg   float64
	reps int
}

// train runs a full session at e.now and moves the clock one day ahead.
func (e *env) train(t *testing.T, dayID *uuid.UUID, exercise, group string, rest time.Duration, lifts ...lift) *models.WorkoutSession {
	t.Helper()
	ctx := context.Background()
	sess, err := e.sessions.Start(ctx, 1, session.StartParams{SourceDayID: dayID})
	require.NoError(t, err)
	ex, err := e.sessions.AddExercise(ctx, 1, sess.ID, session.AddExerciseParams{Name: exercise, MuscleGroup: group})
	require.NoError(t, err)
	for _, l := range lifts {
		set, err := e.sessions.AddSet(ctx, 1, sess.ID, ex.ID, session.AddSetParams{Weight: f64(l.kg), Reps: intp(l.reps)})
		require.NoError(t, err)
		_, err = e.sessions.CompleteSet(ctx, 1, sess.ID, set.ID, session.CompleteSetParams{})
		require.NoError(t, err)
		e.now = e.now.Add(rest)
	}
	done, err := e.sessions.CompleteSession(ctx, 1, sess.ID, "")
	require.NoError(t, err)
	e.now = time.Date(e.now.Year(), e.now.Month(), e.now.Day()+1, 18, 0, 0, 0, time.UTC)
	return done
}

func TestExerciseProgress(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	first := e.train(t, nil, "Bench Press", "chest", 2*time.Minute, lift{100, 5})
	e.train(t, nil, "Bench Press", "chest", 2*time.Minute, lift{100, 6}, lift{90, 8})

	got, err := e.svc.ExerciseProgress(ctx, 1, "Bench Press", nil, nil)
	require.NoError(t, err)
	require.Len(t, got.Points, 2)
	assert.Equal(t, 500.0, got.Points[0].TonnageKg)
	assert.Equal(t, 1320.0, got.Points[1].TonnageKg)
	require.NotNil(t, got.Record)
	assert.Equal(t, 100.0, *got.Record.BestWeightKg)

	from := models.Day(first.StartedAt).AddDate(0, 0, 1)
	got, err = e.svc.ExerciseProgress(ctx, 1, "Bench Press", &from, nil)
	require.NoError(t, err)
	assert.Len(t, got.Points, 1)

	none, err := e.svc.ExerciseProgress(ctx, 1, "Deadlift", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, none.Points)
	assert.Nil(t, none.Record)
}

func TestNamesIgnoreCase(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.train(t, nil, "Bench Press", "chest", 2*time.Minute, lift{100, 5})
	e.train(t, nil, "bench press", "Chest", 2*time.Minute, lift{110, 3})

	got, err := e.svc.ExerciseProgress(ctx, 1, "BENCH PRESS", nil, nil)
	require.NoError(t, err)
	assert.Len(t, got.Points, 2)
	require.NotNil(t, got.Record)
	assert.Equal(t, "Bench Press", got.Record.ExerciseName)
	assert.Equal(t, 110.0, *got.Record.BestWeightKg)

	vol, err := e.svc.MuscleGroupProgress(ctx, 1, "chest", nil, nil)
	require.NoError(t, err)
	require.Len(t, vol.Points, 1)
	assert.Equal(t, 830.0, vol.Points[0].TonnageKg)
}

func TestMuscleGroupProgress(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.train(t, nil, "Squat", "legs", time.Minute, lift{100, 5})
	e.now = e.now.AddDate(0, 0, 7)
	e.train(t, nil, "Squat", "legs", time.Minute, lift{110, 5})

	got, err := e.svc.MuscleGroupProgress(ctx, 1, "legs", nil, nil)
	require.NoError(t, err)
	require.Len(t, got.Points, 2)
	assert.True(t, got.Points[0].Week.Before(got.Points[1].Week))
	assert.Equal(t, 550.0, got.Points[1].TonnageKg)

	from := e.now.AddDate(0, 0, -2)
	got, err = e.svc.MuscleGroupProgress(ctx, 1, "legs", &from, nil)
	require.NoError(t, err)
	assert.Len(t, got.Points, 1)
}

func TestPersonalRecordsPaging(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.train(t, nil, "Bench Press", "chest", time.Minute, lift{100, 5}) // 3 records
	e.train(t, nil, "Squat", "legs", time.Minute, lift{140, 3})        // 3 records
	e.train(t, nil, "Bench Press", "chest", time.Minute, lift{105, 5}) // 3 records

	page, err := e.svc.PersonalRecords(ctx, 1, "", 1, 4)
	require.NoError(t, err)
	assert.Equal(t, 9, page.Total)
	assert.Equal(t, 1, page.Page)
	require.Len(t, page.Items, 4)
	assert.Equal(t, "Bench Press", page.Items[0].ExerciseName)
	assert.False(t, page.Items[0].AchievedAt.Before(page.Items[3].AchievedAt), "newest first")

	page, err = e.svc.PersonalRecords(ctx, 1, "", 3, 4)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)

	bench, err := e.svc.PersonalRecords(ctx, 1, "Bench Press", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 6, bench.Total)
	assert.Equal(t, models.DefaultPageSize, bench.PageSize)
}

func TestWorkoutStats(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	s1 := e.train(t, nil, "Bench Press", "chest", 2*time.Minute, lift{100, 5}, lift{100, 5})
	s2 := e.train(t, nil, "Fly", "chest", 2*time.Minute, lift{20, 10})
	s3 := e.train(t, nil, "Squat", "legs", 2*time.Minute, lift{140, 3})

	from := models.Monday(wednesday)
	to := from.AddDate(0, 0, 7)
	got, err := e.svc.WorkoutStats(ctx, 1, from, to)
	require.NoError(t, err)

	assert.Equal(t, 3, got.Workouts)
	assert.Equal(t, 4, got.TotalSets)
	assert.Equal(t, 1000.0+200+420, got.TonnageKg)
	assert.InDelta(t, got.TonnageKg/3, got.AvgTonnageKg, 1e-9)
	assert.Equal(t, s1.DurationSeconds+s2.DurationSeconds+s3.DurationSeconds, got.DurationSeconds)
	assert.Equal(t, 9, got.LifetimeRecords)
	assert.Equal(t, map[string]int{"chest": 2, "legs": 1}, got.MuscleGroupFrequency)

	empty, err := e.svc.WorkoutStats(ctx, 1, to.AddDate(0, 0, 7), to.AddDate(0, 0, 14))
	require.NoError(t, err)
	assert.Zero(t, empty.Workouts)
	assert.Zero(t, empty.AvgTonnageKg)
}

type countingStandards struct {
	mu     sync.Mutex
	calls  int
	ratios map[string][]float64
}

func (c *countingStandards) Ratios(ctx context.Context, exercise, gender string) ([]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	r, ok := c.ratios[exercise+"/"+gender]
	if !ok {
		return nil, models.NotFound("get strength standards", "exercise", nil)
	}
	return r, nil
}

func TestStrengthLevel(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.store.SetStandards("Bench Press", "male", []float64{0.5, 0.75, 1.25, 1.75, 2.5})
	e.store.SetStandards("Squat", "male", []float64{0.75, 1.25, 1.5}) // malformed
	e.train(t, nil, "Bench Press", "chest", time.Minute, lift{100, 5})

	got, err := e.svc.StrengthLevel(ctx, 1, "Bench Press", 80, "male")
	require.NoError(t, err)
	require.True(t, got.Classified)
	assert.InDelta(t, 114.58/80, got.Ratio, 0.001)
	assert.Equal(t, Intermediate, got.Level)
	assert.Equal(t, 50, got.Percentile)
	assert.Equal(t, Advanced, got.NextLevel)
	require.NotNil(t, got.NextLevelWeightKg)
	assert.InDelta(t, 140.0, *got.NextLevelWeightKg, 1e-9)
	require.Len(t, got.Thresholds, 5)
	assert.Equal(t, 200.0, got.Thresholds[4].WeightKg)

	light, err := e.svc.StrengthLevel(ctx, 1, "Bench Press", 400, "male")
	require.NoError(t, err)
	assert.Equal(t, Beginner, light.Level, "no threshold met defaults to beginner")
	assert.Equal(t, 5, light.Percentile)

	elite, err := e.svc.StrengthLevel(ctx, 1, "Bench Press", 40, "male")
	require.NoError(t, err)
	assert.Equal(t, Elite, elite.Level)
	assert.Empty(t, elite.NextLevel)
	assert.Nil(t, elite.NextLevelWeightKg)

	malformed, err := e.svc.StrengthLevel(ctx, 1, "Squat", 80, "male")
	require.NoError(t, err)
	assert.False(t, malformed.Classified)
	assert.Empty(t, malformed.Level)

	_, err = e.svc.StrengthLevel(ctx, 1, "Curl", 80, "male")
	assert.True(t, errors.Is(err, models.ErrNotFound))

	_, err = e.svc.StrengthLevel(ctx, 1, "Bench Press", 0, "male")
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
}

func TestCachedStandards(t *testing.T) {
	ctx := context.Background()
	src := &countingStandards{ratios: map[string][]float64{"Bench Press/male": {0.5, 0.75, 1.25, 1.75, 2.5}}}
	cached := NewCachedStandards(src, 1, 60, slog.New(slog.NewTextHandler(io.Discard, nil)))

	for i := 0; i < 3; i++ {
		r, err := cached.Ratios(ctx, "Bench Press", "male")
		require.NoError(t, err)
		assert.Equal(t, []float64{0.5, 0.75, 1.25, 1.75, 2.5}, r)
	}
	assert.Equal(t, 1, src.calls)

	for i := 0; i < 2; i++ {
		_, err := cached.Ratios(ctx, "Curl", "male")
		assert.True(t, errors.Is(err, models.ErrNotFound))
	}
	assert.Equal(t, 3, src.calls, "errors are not cached")
}

func TestEstimateDuration(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	day := models.ProgramDay{
		ID:   uuid.New(),
		Name: "Push",
		Exercises: []models.ProgramExercise{
			{ID: uuid.New(), Name: "Bench Press", Sets: make([]models.ProgramSet, 4)},
			{ID: uuid.New(), Name: "Fly", Sets: make([]models.ProgramSet, 2)},
		},
	}
	e.store.AddProgramDay(1, day)

	got, err := e.svc.EstimateDuration(ctx, 1, day.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, got.TotalSets)
	assert.False(t, got.RestFromHistory)
	assert.Equal(t, 90.0, got.AverageRestSeconds)
	assert.Equal(t, 12.0, got.Minutes)

	// Two sessions with 150 s between sets.
	e.train(t, nil, "Bench Press", "chest", 150*time.Second, lift{100, 5}, lift{100, 5})
	e.train(t, nil, "Bench Press", "chest", 150*time.Second, lift{100, 5}, lift{100, 5})

	got, err = e.svc.EstimateDuration(ctx, 1, day.ID)
	require.NoError(t, err)
	assert.True(t, got.RestFromHistory)
	assert.Equal(t, 150.0, got.AverageRestSeconds)
	assert.Equal(t, 18.0, got.Minutes)

	_, err = e.svc.EstimateDuration(ctx, 1, uuid.New())
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestWeekStatus(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	push := models.ProgramDay{ID: uuid.New(), Name: "Push"}
	e.store.AddProgramDay(1, push)

	// Last week's session does not count.
	e.now = wednesday.AddDate(0, 0, -7)
	e.train(t, &push.ID, "Bench Press", "chest", time.Minute, lift{100, 5})

	e.now = models.Monday(wednesday).Add(18 * time.Hour)
	e.train(t, &push.ID, "Bench Press", "chest", time.Minute, lift{100, 5})
	e.train(t, nil, "Squat", "legs", time.Minute, lift{100, 5})

	active, err := e.sessions.Start(ctx, 1, session.StartParams{})
	require.NoError(t, err)

	got, err := e.svc.WeekStatus(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ISOWeek{Year: 2026, Week: 10}, got.Week)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), got.WeekStart)
	require.Len(t, got.PerformedDays, 1)
	assert.Equal(t, push.ID, got.PerformedDays[0].DayID)
	assert.Equal(t, "Push", got.PerformedDays[0].Title)
	assert.Len(t, got.WorkoutDates, 2)
	require.NotNil(t, got.Active)
	assert.Equal(t, active.ID, got.Active.ID)
}
