package session

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
	"github.com/claude/liftlog/internal/store"
	"github.com/claude/liftlog/internal/store/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func f64(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc   *Service
	store *memstore.Store
	clock *clock
}

func newFixture(t *testing.T, st store.Store, mem *memstore.Store, opts ...Option) *fixture {
	t.Helper()
	clk := &clock{t: time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithClock(clk.Now), WithRollupRetries(3, 0)}, opts...)
	svc := NewService(st, mem, rollup.New(time.UTC), metrics.NewTestManager(), logger, opts...)
	return &fixture{svc: svc, store: mem, clock: clk}
}

func setup(t *testing.T) *fixture {
	mem := memstore.New()
	return newFixture(t, mem, mem)
}

// benchSession starts a session with a bench press exercise and one planned set.
func (f *fixture) benchSession(t *testing.T, userID int) (*models.WorkoutSession, *models.SessionExercise, *models.SessionSet) {
	t.Helper()
	ctx := context.Background()
	sess, err := f.svc.Start(ctx, userID, StartParams{})
	require.NoError(t, err)
	ex, err := f.svc.AddExercise(ctx, userID, sess.ID, AddExerciseParams{Name: "Bench Press", MuscleGroup: "chest"})
	require.NoError(t, err)
	set, err := f.svc.AddSet(ctx, userID, sess.ID, ex.ID, AddSetParams{Weight: f64(100), Reps: intp(5)})
	require.NoError(t, err)
	return sess, ex, set
}

func recordTypes(logs []models.PersonalRecordLog) []models.RecordType {
	out := make([]models.RecordType, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.RecordType)
	}
	return out
}

func TestStartConflict(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	first, err := f.svc.Start(ctx, 1, StartParams{})
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, first.Title)
	assert.Equal(t, models.StatusInProgress, first.Status)

	_, err = f.svc.Start(ctx, 1, StartParams{Title: "Again"})
	assert.True(t, errors.Is(err, models.ErrConflict), "got %v", err)

	other, err := f.svc.Start(ctx, 2, StartParams{})
	require.NoError(t, err)
	assert.Equal(t, 2, other.UserID)
}

func TestStartConcurrent(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Start(ctx, 7, StartParams{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, models.ErrConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, conflicts)
}

func TestRecordScenario(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	sess, _, set := f.benchSession(t, 1)
	f.clock.Advance(time.Minute)
	res, err := f.svc.CompleteSet(ctx, 1, sess.ID, set.ID, CompleteSetParams{})
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]models.RecordType{models.RecordMaxWeight, models.RecordMaxEstimated1RM, models.RecordMaxRepAtWeight},
		recordTypes(res.Records))
	assert.Equal(t, 500.0, res.Set.Tonnage(), "planned values are used when actuals are omitted")
	assert.Equal(t, models.NoPrevious, res.Comparison)

	f.clock.Advance(30 * time.Minute)
	done, err := f.svc.CompleteSession(ctx, 1, sess.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 500.0, done.TotalTonnageKg)
	assert.False(t, done.RollupPending)

	daily, err := f.store.GetDailyExerciseStats(ctx, 1, models.Day(done.StartedAt), "Bench Press")
	require.NoError(t, err)
	require.NotNil(t, daily)
	assert.Equal(t, 500.0, daily.TonnageKg)
	ws, err := f.store.GetWeeklyUserStats(ctx, 1, models.WeekOf(done.StartedAt))
	require.NoError(t, err)
	assert.Equal(t, 500.0, ws.TonnageKg)

	// A week later the same slot is repeated with one more rep.
	f.clock.Advance(7 * 24 * time.Hour)
	next, err := f.svc.Start(ctx, 1, StartParams{RepeatLast: true})
	require.NoError(t, err)
	require.Len(t, next.Exercises, 1)
	repeated := next.Exercises[0].Sets[0]
	require.NotNil(t, repeated.PreviousWeight)
	assert.Equal(t, 100.0, *repeated.PreviousWeight)
	assert.Equal(t, 5, *repeated.PreviousReps)
	assert.Equal(t, 100.0, *repeated.PlannedWeight)

	f.clock.Advance(time.Minute)
	res, err = f.svc.CompleteSet(ctx, 1, next.ID, repeated.ID, CompleteSetParams{Reps: intp(6)})
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]models.RecordType{models.RecordMaxEstimated1RM, models.RecordMaxRepAtWeight},
		recordTypes(res.Records))
	assert.Equal(t, models.Better, res.Comparison)
	for _, r := range res.Records {
		if r.RecordType == models.RecordMaxRepAtWeight {
			assert.Equal(t, "100.0", r.Bracket.String())
			assert.Equal(t, 5.0, *r.PreviousValue)
			assert.InDelta(t, 20.0, r.ImprovementPct, 1e-9)
		}
	}
}

func TestCompleteSetWarmupSkipsRecords(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	sess, _, set := f.benchSession(t, 1)
	res, err := f.svc.CompleteSet(ctx, 1, sess.ID, set.ID, CompleteSetParams{Type: models.SetWarmup})
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Equal(t, models.SetWarmup, res.Set.Type)
	assert.Zero(t, res.Set.Tonnage())
}

func TestCompleteSetAttributesRest(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	sess, ex, first := f.benchSession(t, 1)
	second, err := f.svc.AddSet(ctx, 1, sess.ID, ex.ID, AddSetParams{})
	require.NoError(t, err)

	_, err = f.svc.CompleteSet(ctx, 1, sess.ID, first.ID, CompleteSetParams{})
	require.NoError(t, err)
	f.clock.Advance(150 * time.Second)
	_, err = f.svc.CompleteSet(ctx, 1, sess.ID, second.ID, CompleteSetParams{})
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, 1, sess.ID)
	require.NoError(t, err)
	sets := got.Exercises[0].Sets
	require.NotNil(t, sets[0].RestAfterSeconds)
	assert.Equal(t, 150, *sets[0].RestAfterSeconds)
	assert.Nil(t, sets[1].RestAfterSeconds)
	assert.NotNil(t, got.Exercises[0].CompletedAt)
}

func TestAddSetDefaultsFromLastSet(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	sess, ex, first := f.benchSession(t, 1)
	_, err := f.svc.CompleteSet(ctx, 1, sess.ID, first.ID, CompleteSetParams{Weight: f64(102.5), Reps: intp(4)})
	require.NoError(t, err)

	dup, err := f.svc.AddSet(ctx, 1, sess.ID, ex.ID, AddSetParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, dup.Order)
	assert.Equal(t, 102.5, *dup.PlannedWeight, "actual value of the last set wins")
	assert.Equal(t, 4, *dup.PlannedReps)

	override, err := f.svc.AddSet(ctx, 1, sess.ID, ex.ID, AddSetParams{Reps: intp(8)})
	require.NoError(t, err)
	assert.Equal(t, 2, override.Order)
	assert.Equal(t, 8, *override.PlannedReps)
	assert.Equal(t, 102.5, *override.PlannedWeight, "falls back to the planned value of the last set")

	_, err = f.svc.AddSet(ctx, 1, sess.ID, uuid.New(), AddSetParams{})
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestAddExerciseOrder(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	sess, _, _ := f.benchSession(t, 1)
	ex, err := f.svc.AddExercise(ctx, 1, sess.ID, AddExerciseParams{Name: "Row", MuscleGroup: "back"})
	require.NoError(t, err)
	assert.Equal(t, 1, ex.Order)

	_, err = f.svc.AddExercise(ctx, 1, sess.ID, AddExerciseParams{})
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
}

func TestUndoLastSet(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	sess, _, set := f.benchSession(t, 1)
	_, err := f.svc.UndoLastSet(ctx, 1, sess.ID)
	assert.True(t, errors.Is(err, models.ErrConflict), "nothing to undo")

	_, err = f.svc.CompleteSet(ctx, 1, sess.ID, set.ID, CompleteSetParams{})
	require.NoError(t, err)

	undone, err := f.svc.UndoLastSet(ctx, 1, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, set.ID, undone.ID)
	assert.False(t, undone.Completed())
	assert.Nil(t, undone.ActualReps)

	got, err := f.svc.Get(ctx, 1, sess.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Exercises[0].CompletedAt)

	// Record log rows written for the undone set stay.
	n, err := f.store.CountRecordLogs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestUndoPicksLatestCompletion(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	sess, ex, first := f.benchSession(t, 1)
	second, err := f.svc.AddSet(ctx, 1, sess.ID, ex.ID, AddSetParams{})
	require.NoError(t, err)

	// Complete out of order: the second slot first.
	_, err = f.svc.CompleteSet(ctx, 1, sess.ID, second.ID, CompleteSetParams{})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.svc.CompleteSet(ctx, 1, sess.ID, first.ID, CompleteSetParams{})
	require.NoError(t, err)

	undone, err := f.svc.UndoLastSet(ctx, 1, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, undone.ID)
}

func TestUndoDropsRestFromAverage(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	sess, ex, first := f.benchSession(t, 1)
	second, err := f.svc.AddSet(ctx, 1, sess.ID, ex.ID, AddSetParams{})
	require.NoError(t, err)

	_, err = f.svc.CompleteSet(ctx, 1, sess.ID, first.ID, CompleteSetParams{})
	require.NoError(t, err)
	f.clock.Advance(90 * time.Second)
	_, err = f.svc.CompleteSet(ctx, 1, sess.ID, second.ID, CompleteSetParams{})
	require.NoError(t, err)
	_, err = f.svc.UndoLastSet(ctx, 1, sess.ID)
	require.NoError(t, err)

	done, err := f.svc.CompleteSession(ctx, 1, sess.ID, "")
	require.NoError(t, err)
	assert.Nil(t, done.Exercises[0].Sets[0].RestAfterSeconds)
	assert.Zero(t, done.AverageRestSeconds)
	assert.Equal(t, 1, done.TotalSets)
}

func TestTerminalSessionsRejectMutations(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	sess, ex, set := f.benchSession(t, 1)
	_, err := f.svc.AbandonSession(ctx, 1, sess.ID)
	require.NoError(t, err)

	checks := map[string]error{}
	_, checks["add exercise"] = f.svc.AddExercise(ctx, 1, sess.ID, AddExerciseParams{Name: "Row"})
	_, checks["add set"] = f.svc.AddSet(ctx, 1, sess.ID, ex.ID, AddSetParams{})
	_, checks["complete set"] = f.svc.CompleteSet(ctx, 1, sess.ID, set.ID, CompleteSetParams{})
	_, checks["undo"] = f.svc.UndoLastSet(ctx, 1, sess.ID)
	_, checks["complete session"] = f.svc.CompleteSession(ctx, 1, sess.ID, "")
	_, checks["abandon session"] = f.svc.AbandonSession(ctx, 1, sess.ID)
	for name, err := range checks {
		assert.True(t, errors.Is(err, models.ErrInvalidState), "%s: %v", name, err)
	}

	// A new session can start after the old one ended.
	_, err = f.svc.Start(ctx, 1, StartParams{})
	assert.NoError(t, err)
}

func TestAbandonLeavesStatsUntouched(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	sess, _, set := f.benchSession(t, 1)
	_, err := f.svc.CompleteSet(ctx, 1, sess.ID, set.ID, CompleteSetParams{})
	require.NoError(t, err)

	abandoned, err := f.svc.AbandonSession(ctx, 1, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAbandoned, abandoned.Status)
	assert.NotNil(t, abandoned.CompletedAt)

	daily, err := f.store.GetDailyExerciseStats(ctx, 1, models.Day(sess.StartedAt), "Bench Press")
	require.NoError(t, err)
	assert.Nil(t, daily)
	vol, err := f.store.GetWeeklyMuscleVolume(ctx, 1, models.WeekOf(sess.StartedAt), "chest")
	require.NoError(t, err)
	assert.Nil(t, vol)
	ws, err := f.store.GetWeeklyUserStats(ctx, 1, models.WeekOf(sess.StartedAt))
	require.NoError(t, err)
	assert.Nil(t, ws)
}

func TestOtherUsersSessionIsNotFound(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	sess, _, set := f.benchSession(t, 1)
	_, err := f.svc.Get(ctx, 2, sess.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))
	_, err = f.svc.CompleteSet(ctx, 2, sess.ID, set.ID, CompleteSetParams{})
	assert.True(t, errors.Is(err, models.ErrNotFound))

	_, err = f.svc.CompleteSet(ctx, 1, sess.ID, uuid.New(), CompleteSetParams{})
	assert.True(t, errors.Is(err, models.ErrNotFound))
	assert.Contains(t, err.Error(), "complete set: set")
}

func TestStartFromProgramDay(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	// History: squat 140x3 last week.
	old, err := f.svc.Start(ctx, 1, StartParams{})
	require.NoError(t, err)
	sq, err := f.svc.AddExercise(ctx, 1, old.ID, AddExerciseParams{Name: "Squat", MuscleGroup: "legs"})
	require.NoError(t, err)
	set, err := f.svc.AddSet(ctx, 1, old.ID, sq.ID, AddSetParams{Weight: f64(140), Reps: intp(3)})
	require.NoError(t, err)
	_, err = f.svc.CompleteSet(ctx, 1, old.ID, set.ID, CompleteSetParams{})
	require.NoError(t, err)
	_, err = f.svc.CompleteSession(ctx, 1, old.ID, "")
	require.NoError(t, err)

	day := models.ProgramDay{
		ID:        uuid.New(),
		ProgramID: uuid.New(),
		Name:      "Leg Day",
		Exercises: []models.ProgramExercise{
			{ID: uuid.New(), Name: "Squat", MuscleGroup: "legs", Order: 0, Sets: []models.ProgramSet{
				{Order: 0, Weight: f64(142.5), Reps: intp(3)},
				{Order: 1, Weight: f64(142.5), Reps: intp(3)},
			}},
			{ID: uuid.New(), Name: "Leg Curl", MuscleGroup: "legs", Order: 1, Sets: []models.ProgramSet{
				{Order: 0, Weight: f64(40), Reps: intp(12)},
			}},
		},
	}
	f.store.AddProgramDay(1, day)

	f.clock.Advance(7 * 24 * time.Hour)
	sess, err := f.svc.Start(ctx, 1, StartParams{SourceDayID: &day.ID})
	require.NoError(t, err)
	assert.Equal(t, "Leg Day", sess.Title)
	assert.Equal(t, day.ID, *sess.SourceDayID)
	assert.Equal(t, day.ProgramID, *sess.SourceProgramID)
	require.Len(t, sess.Exercises, 2)

	squat := sess.Exercises[0]
	assert.Equal(t, 142.5, *squat.Sets[0].PlannedWeight)
	require.NotNil(t, squat.Sets[0].PreviousWeight)
	assert.Equal(t, 140.0, *squat.Sets[0].PreviousWeight)
	assert.Nil(t, squat.Sets[1].PreviousWeight, "no matching slot last time")
	assert.Nil(t, sess.Exercises[1].Sets[0].PreviousWeight)

	_, err = f.svc.AbandonSession(ctx, 1, sess.ID)
	require.NoError(t, err)

	custom, err := f.svc.Start(ctx, 1, StartParams{SourceDayID: &day.ID, Title: "Heavy legs"})
	require.NoError(t, err)
	assert.Equal(t, "Heavy legs", custom.Title)
	_, err = f.svc.AbandonSession(ctx, 1, custom.ID)
	require.NoError(t, err)

	unknown := uuid.New()
	_, err = f.svc.Start(ctx, 1, StartParams{SourceDayID: &unknown})
	assert.True(t, errors.Is(err, models.ErrNotFound))
	_, err = f.svc.Start(ctx, 2, StartParams{SourceDayID: &day.ID})
	assert.True(t, errors.Is(err, models.ErrNotFound), "days of another user do not resolve")
}

// TestStartFromDayReturns guards against the catalog lookup blocking on the
// store's transaction lock when both are the same memstore.
func TestStartFromDayReturns(t *testing.T) {
	f := setup(t)
	day := models.ProgramDay{ID: uuid.New(), ProgramID: uuid.New(), Name: "Push", Exercises: []models.ProgramExercise{
		{ID: uuid.New(), Name: "Bench Press", MuscleGroup: "chest", Sets: []models.ProgramSet{{Weight: f64(80), Reps: intp(8)}}},
	}}
	f.store.AddProgramDay(1, day)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Start(ctx, 1, StartParams{SourceDayID: &day.ID})
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("Start from a program day did not return")
	}
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	for i := 0; i < 3; i++ {
		sess, err := f.svc.Start(ctx, 1, StartParams{})
		require.NoError(t, err)
		f.clock.Advance(time.Hour)
		_, err = f.svc.CompleteSession(ctx, 1, sess.ID, "")
		require.NoError(t, err)
		f.clock.Advance(24 * time.Hour)
	}
	_, err := f.svc.Start(ctx, 1, StartParams{})
	require.NoError(t, err)

	items, total, err := f.svc.History(ctx, 1, models.SessionQuery{Status: models.StatusCompleted, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 2)
	assert.True(t, items[0].StartedAt.After(items[1].StartedAt))

	active, err := f.svc.Active(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, models.StatusInProgress, active.Status)
}

// flakyStore fails the weekly user stats write while failures remain.
type flakyStore struct {
	store.Store
	mu       sync.Mutex
	failures int
}

func (f *flakyStore) RunInTx(ctx context.Context, fn func(tx store.Store) error) error {
	return f.Store.RunInTx(ctx, func(tx store.Store) error {
		return fn(&flakyTx{Store: tx, parent: f})
	})
}

func (f *flakyStore) setFailures(n int) {
	f.mu.Lock()
	f.failures = n
	f.mu.Unlock()
}

type flakyTx struct {
	store.Store
	parent *flakyStore
}

func (t *flakyTx) AddWeeklyUserStats(ctx context.Context, delta models.WeeklyUserStats) error {
	t.parent.mu.Lock()
	defer t.parent.mu.Unlock()
	if t.parent.failures > 0 {
		t.parent.failures--
		return errors.New("connection reset")
	}
	return t.Store.AddWeeklyUserStats(ctx, delta)
}

func TestCompleteSessionRetriesRollup(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	flaky := &flakyStore{Store: mem}
	f := newFixture(t, flaky, mem)

	sess, _, set := f.benchSession(t, 1)
	_, err := f.svc.CompleteSet(ctx, 1, sess.ID, set.ID, CompleteSetParams{})
	require.NoError(t, err)

	flaky.setFailures(2)
	done, err := f.svc.CompleteSession(ctx, 1, sess.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)

	ws, err := mem.GetWeeklyUserStats(ctx, 1, models.WeekOf(done.StartedAt))
	require.NoError(t, err)
	require.NotNil(t, ws)
	assert.Equal(t, 1, ws.Sessions, "failed attempts roll back and fold nothing")

	vol, err := mem.GetWeeklyMuscleVolume(ctx, 1, models.WeekOf(done.StartedAt), "chest")
	require.NoError(t, err)
	assert.Equal(t, 500.0, vol.TonnageKg)
}

func TestCompleteSessionDefersRollup(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	flaky := &flakyStore{Store: mem}
	f := newFixture(t, flaky, mem)

	sess, _, set := f.benchSession(t, 1)
	_, err := f.svc.CompleteSet(ctx, 1, sess.ID, set.ID, CompleteSetParams{})
	require.NoError(t, err)

	flaky.setFailures(10)
	done, err := f.svc.CompleteSession(ctx, 1, sess.ID, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRollupDeferred))
	require.NotNil(t, done)
	assert.Equal(t, models.StatusCompleted, done.Status)

	stored, err := mem.GetSession(ctx, 1, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status, "terminal state is never reverted")
	assert.True(t, stored.RollupPending)

	flaky.setFailures(0)
	folded, err := f.svc.RetryPendingRollups(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, folded)

	folded, err = f.svc.RetryPendingRollups(ctx)
	require.NoError(t, err)
	assert.Zero(t, folded)

	ws, err := mem.GetWeeklyUserStats(ctx, 1, models.WeekOf(done.StartedAt))
	require.NoError(t, err)
	assert.Equal(t, 1, ws.Sessions)
}

func TestFoldStopsOnCancel(t *testing.T) {
	mem := memstore.New()
	flaky := &flakyStore{Store: mem}
	f := newFixture(t, flaky, mem, WithRollupRetries(5, time.Hour))

	bg := context.Background()
	sess, _, _ := f.benchSession(t, 1)
	flaky.setFailures(100)

	ctx, cancel := context.WithCancel(bg)
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := f.svc.CompleteSession(ctx, 1, sess.ID, "")
	assert.True(t, errors.Is(err, ErrRollupDeferred))
	assert.True(t, errors.Is(err, context.Canceled))
}
