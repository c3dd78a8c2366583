// Package memstore is an in-memory implementation of the store contracts,
// used by tests and by the server's memory driver.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/store"
	"github.com/google/uuid"
)

var (
	_ store.Store     = (*Store)(nil)
	_ store.Catalog   = (*Store)(nil)
	_ store.Standards = (*Store)(nil)
)

type dailyKey struct {
	user     int
	date     string
	exercise string
}

type muscleKey struct {
	user  int
	week  models.ISOWeek
	group string
}

type weekKey struct {
	user int
	week models.ISOWeek
}

type prKey struct {
	user     int
	exercise string
}

// Exercise names and muscle groups match regardless of case. Keys hold the
// folded form; rows keep the name they were first written with.

func newDailyKey(user int, date time.Time, exercise string) dailyKey {
	return dailyKey{user, dayKey(date), strings.ToLower(exercise)}
}

func newMuscleKey(user int, week models.ISOWeek, group string) muscleKey {
	return muscleKey{user, week, strings.ToLower(group)}
}

func newPRKey(user int, exercise string) prKey {
	return prKey{user, strings.ToLower(exercise)}
}

type programDay struct {
	userID int
	day    models.ProgramDay
}

type data struct {
	sessions  map[uuid.UUID]*models.WorkoutSession
	daily     map[dailyKey]models.DailyExerciseStats
	muscle    map[muscleKey]models.WeeklyMuscleVolume
	weekly    map[weekKey]models.WeeklyUserStats
	prs       map[prKey]*models.UserExercisePR
	logs      []models.PersonalRecordLog
	users     map[string]int
}

// reference holds the read-mostly catalog and standards. It has its own lock
// so transactions can consult it while holding the data lock.
type reference struct {
	mu        sync.RWMutex
	days      map[uuid.UUID]programDay
	standards map[string][]float64
}

func newData() *data {
	return &data{
		sessions:  make(map[uuid.UUID]*models.WorkoutSession),
		daily:     make(map[dailyKey]models.DailyExerciseStats),
		muscle:    make(map[muscleKey]models.WeeklyMuscleVolume),
		weekly:    make(map[weekKey]models.WeeklyUserStats),
		prs:       make(map[prKey]*models.UserExercisePR),
		users:     make(map[string]int),
	}
}

func (d *data) clone() *data {
	c := newData()
	for k, v := range d.sessions {
		c.sessions[k] = cloneSession(v)
	}
	for k, v := range d.daily {
		c.daily[k] = v
	}
	for k, v := range d.muscle {
		c.muscle[k] = v
	}
	for k, v := range d.weekly {
		c.weekly[k] = v
	}
	for k, v := range d.prs {
		c.prs[k] = v.Clone()
	}
	c.logs = append(c.logs, d.logs...)
	for k, v := range d.users {
		c.users[k] = v
	}
	return c
}

// Store is safe for concurrent use. All operations share one mutex; a
// transaction holds it for its whole duration.
type Store struct {
	mu   *sync.Mutex
	d    *data
	ref  *reference
	inTx bool
}

// New returns an empty store.
func New() *Store {
	return &Store{
		mu: &sync.Mutex{},
		d:  newData(),
		ref: &reference{
			days:      make(map[uuid.UUID]programDay),
			standards: make(map[string][]float64),
		},
	}
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// RunInTx runs fn with the store locked and restores the previous state if fn fails.
func (s *Store) RunInTx(ctx context.Context, fn func(tx store.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.d.clone()
	tx := &Store{mu: s.mu, d: s.d, ref: s.ref, inTx: true}
	if err := fn(tx); err != nil {
		*s.d = *snapshot
		return err
	}
	return nil
}

func cloneSession(s *models.WorkoutSession) *models.WorkoutSession {
	c := *s
	c.Exercises = make([]models.SessionExercise, len(s.Exercises))
	for i, ex := range s.Exercises {
		ex.Sets = append([]models.SessionSet(nil), ex.Sets...)
		c.Exercises[i] = ex
	}
	return &c
}

// --- sessions ---

func (s *Store) GetSession(ctx context.Context, userID int, id uuid.UUID) (*models.WorkoutSession, error) {
	defer s.lock()()
	sess, ok := s.d.sessions[id]
	if !ok || sess.UserID != userID {
		return nil, models.NotFound("get session", "session", id)
	}
	return cloneSession(sess), nil
}

func (s *Store) GetActiveSession(ctx context.Context, userID int) (*models.WorkoutSession, error) {
	defer s.lock()()
	for _, sess := range s.d.sessions {
		if sess.UserID == userID && sess.Status == models.StatusInProgress {
			return cloneSession(sess), nil
		}
	}
	return nil, nil
}

func (s *Store) completedNewestFirst(userID int) []*models.WorkoutSession {
	var out []*models.WorkoutSession
	for _, sess := range s.d.sessions {
		if sess.UserID == userID && sess.Status == models.StatusCompleted {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return completedAt(out[i]).After(completedAt(out[j]))
	})
	return out
}

func completedAt(s *models.WorkoutSession) time.Time {
	if s.CompletedAt != nil {
		return *s.CompletedAt
	}
	return s.StartedAt
}

func (s *Store) LatestCompletedSession(ctx context.Context, userID int) (*models.WorkoutSession, error) {
	defer s.lock()()
	completed := s.completedNewestFirst(userID)
	if len(completed) == 0 {
		return nil, nil
	}
	return cloneSession(completed[0]), nil
}

func (s *Store) LatestCompletedWithExercise(ctx context.Context, userID int, exerciseName string) (*models.WorkoutSession, error) {
	defer s.lock()()
	for _, sess := range s.completedNewestFirst(userID) {
		if _, ok := sess.ContainsExercise(exerciseName); ok {
			return cloneSession(sess), nil
		}
	}
	return nil, nil
}

func (s *Store) ListSessions(ctx context.Context, userID int, q models.SessionQuery) ([]models.WorkoutSession, int, error) {
	defer s.lock()()
	var matched []*models.WorkoutSession
	for _, sess := range s.d.sessions {
		if sess.UserID != userID {
			continue
		}
		if q.Status != "" && sess.Status != q.Status {
			continue
		}
		if q.Start != nil && sess.StartedAt.Before(*q.Start) {
			continue
		}
		if q.End != nil && !sess.StartedAt.Before(*q.End) {
			continue
		}
		matched = append(matched, sess)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StartedAt.After(matched[j].StartedAt)
	})

	total := len(matched)
	matched = window(matched, q.Limit, q.Offset)
	out := make([]models.WorkoutSession, 0, len(matched))
	for _, sess := range matched {
		out = append(out, *cloneSession(sess))
	}
	return out, total, nil
}

func (s *Store) ListPendingRollups(ctx context.Context) ([]models.WorkoutSession, error) {
	defer s.lock()()
	var out []models.WorkoutSession
	for _, sess := range s.d.sessions {
		if sess.Status == models.StatusCompleted && sess.RollupPending {
			out = append(out, *cloneSession(sess))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

func (s *Store) CreateSession(ctx context.Context, sess *models.WorkoutSession) error {
	defer s.lock()()
	if _, exists := s.d.sessions[sess.ID]; exists {
		return models.Conflict("create session", "session", sess.ID, "duplicate id")
	}
	if sess.Status == models.StatusInProgress {
		for _, other := range s.d.sessions {
			if other.UserID == sess.UserID && other.Status == models.StatusInProgress {
				return models.Conflict("create session", "session", other.ID, "already in progress")
			}
		}
	}
	sess.Version = 1
	s.d.sessions[sess.ID] = cloneSession(sess)
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, sess *models.WorkoutSession) error {
	defer s.lock()()
	current, ok := s.d.sessions[sess.ID]
	if !ok || current.UserID != sess.UserID {
		return models.NotFound("update session", "session", sess.ID)
	}
	if current.Version != sess.Version {
		return models.Conflict("update session", "session", sess.ID,
			fmt.Sprintf("version %d is stale, current is %d", sess.Version, current.Version))
	}
	sess.Version++
	s.d.sessions[sess.ID] = cloneSession(sess)
	return nil
}

// --- stats ---

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func (s *Store) GetDailyExerciseStats(ctx context.Context, userID int, date time.Time, exerciseName string) (*models.DailyExerciseStats, error) {
	defer s.lock()()
	row, ok := s.d.daily[newDailyKey(userID, date, exerciseName)]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (s *Store) UpsertDailyExerciseStats(ctx context.Context, row models.DailyExerciseStats) error {
	defer s.lock()()
	k := newDailyKey(row.UserID, row.Date, row.ExerciseName)
	if prev, ok := s.d.daily[k]; ok {
		row.ExerciseName = prev.ExerciseName
	}
	s.d.daily[k] = row
	return nil
}

func (s *Store) ListDailyExerciseStats(ctx context.Context, userID int, exerciseName string, from, to *time.Time) ([]models.DailyExerciseStats, error) {
	defer s.lock()()
	var out []models.DailyExerciseStats
	for k, row := range s.d.daily {
		if k.user != userID || !strings.EqualFold(k.exercise, exerciseName) {
			continue
		}
		if from != nil && row.Date.Before(models.Day(*from)) {
			continue
		}
		if to != nil && row.Date.After(*to) {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) GetWeeklyMuscleVolume(ctx context.Context, userID int, week models.ISOWeek, muscleGroup string) (*models.WeeklyMuscleVolume, error) {
	defer s.lock()()
	row, ok := s.d.muscle[newMuscleKey(userID, week, muscleGroup)]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (s *Store) AddWeeklyMuscleVolume(ctx context.Context, delta models.WeeklyMuscleVolume) error {
	defer s.lock()()
	k := newMuscleKey(delta.UserID, delta.Week, delta.MuscleGroup)
	row, ok := s.d.muscle[k]
	if !ok {
		s.d.muscle[k] = delta
		return nil
	}
	row.TotalSets += delta.TotalSets
	row.TotalReps += delta.TotalReps
	row.TonnageKg += delta.TonnageKg
	s.d.muscle[k] = row
	return nil
}

func inWeekRange(w models.ISOWeek, from, to *models.ISOWeek) bool {
	if from != nil && w.Before(*from) {
		return false
	}
	if to != nil && to.Before(w) {
		return false
	}
	return true
}

func (s *Store) ListWeeklyMuscleVolume(ctx context.Context, userID int, muscleGroup string, from, to *models.ISOWeek) ([]models.WeeklyMuscleVolume, error) {
	defer s.lock()()
	var out []models.WeeklyMuscleVolume
	for k, row := range s.d.muscle {
		if k.user != userID || !strings.EqualFold(k.group, muscleGroup) || !inWeekRange(k.week, from, to) {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Week.Before(out[j].Week) })
	return out, nil
}

func (s *Store) GetWeeklyUserStats(ctx context.Context, userID int, week models.ISOWeek) (*models.WeeklyUserStats, error) {
	defer s.lock()()
	row, ok := s.d.weekly[weekKey{userID, week}]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (s *Store) AddWeeklyUserStats(ctx context.Context, delta models.WeeklyUserStats) error {
	defer s.lock()()
	k := weekKey{delta.UserID, delta.Week}
	row, ok := s.d.weekly[k]
	if !ok {
		s.d.weekly[k] = delta
		return nil
	}
	row.Sessions += delta.Sessions
	row.TotalSets += delta.TotalSets
	row.TotalReps += delta.TotalReps
	row.TonnageKg += delta.TonnageKg
	row.DurationSeconds += delta.DurationSeconds
	row.AverageRestSeconds = delta.AverageRestSeconds
	s.d.weekly[k] = row
	return nil
}

func (s *Store) ListWeeklyUserStats(ctx context.Context, userID int, from, to *models.ISOWeek) ([]models.WeeklyUserStats, error) {
	defer s.lock()()
	var out []models.WeeklyUserStats
	for k, row := range s.d.weekly {
		if k.user != userID || !inWeekRange(k.week, from, to) {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Week.Before(out[j].Week) })
	return out, nil
}

func (s *Store) GetExercisePR(ctx context.Context, userID int, exerciseName string) (*models.UserExercisePR, error) {
	defer s.lock()()
	pr, ok := s.d.prs[newPRKey(userID, exerciseName)]
	if !ok {
		return nil, nil
	}
	return pr.Clone(), nil
}

func (s *Store) UpsertExercisePR(ctx context.Context, pr models.UserExercisePR) error {
	defer s.lock()()
	k := newPRKey(pr.UserID, pr.ExerciseName)
	next := pr.Clone()
	if prev, ok := s.d.prs[k]; ok {
		next.ExerciseName = prev.ExerciseName
	}
	s.d.prs[k] = next
	return nil
}

func (s *Store) AppendRecordLog(ctx context.Context, entry models.PersonalRecordLog) error {
	defer s.lock()()
	s.d.logs = append(s.d.logs, entry)
	return nil
}

func (s *Store) ListRecordLogs(ctx context.Context, userID int, q models.RecordQuery) ([]models.PersonalRecordLog, int, error) {
	defer s.lock()()
	var matched []models.PersonalRecordLog
	for _, l := range s.d.logs {
		if l.UserID != userID {
			continue
		}
		if q.ExerciseName != "" && !strings.EqualFold(l.ExerciseName, q.ExerciseName) {
			continue
		}
		matched = append(matched, l)
	}
	// Stable keeps append order for entries broken by the same set.
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].AchievedAt.After(matched[j].AchievedAt)
	})
	total := len(matched)
	return window(matched, q.Limit, q.Offset), total, nil
}

func (s *Store) CountRecordLogs(ctx context.Context, userID int) (int, error) {
	defer s.lock()()
	n := 0
	for _, l := range s.d.logs {
		if l.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *Store) AverageRestSeconds(ctx context.Context, userID, n int) (float64, bool, error) {
	defer s.lock()()
	completed := s.completedNewestFirst(userID)
	if len(completed) > n {
		completed = completed[:n]
	}
	var sum float64
	var count int
	for _, sess := range completed {
		if sess.AverageRestSeconds > 0 {
			sum += sess.AverageRestSeconds
			count++
		}
	}
	if count == 0 {
		return 0, false, nil
	}
	return sum / float64(count), true, nil
}

func (s *Store) WorkoutDates(ctx context.Context, userID int, from, to time.Time) ([]time.Time, error) {
	defer s.lock()()
	var out []time.Time
	for _, sess := range s.d.sessions {
		if sess.UserID != userID || sess.Status != models.StatusCompleted {
			continue
		}
		if sess.StartedAt.Before(from) || !sess.StartedAt.Before(to) {
			continue
		}
		out = append(out, sess.StartedAt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (s *Store) ClaimRollup(ctx context.Context, userID int, sessionID uuid.UUID) (bool, error) {
	defer s.lock()()
	sess, ok := s.d.sessions[sessionID]
	if !ok || sess.UserID != userID {
		return false, models.NotFound("claim rollup", "session", sessionID)
	}
	if !sess.RollupPending {
		return false, nil
	}
	sess.RollupPending = false
	return true, nil
}

// --- catalog and standards ---

// AddProgramDay registers a prescribed day owned by userID.
func (s *Store) AddProgramDay(userID int, day models.ProgramDay) {
	s.ref.mu.Lock()
	defer s.ref.mu.Unlock()
	s.ref.days[day.ID] = programDay{userID: userID, day: day}
}

func (s *Store) GetProgramDay(ctx context.Context, userID int, dayID uuid.UUID) (*models.ProgramDay, error) {
	s.ref.mu.RLock()
	defer s.ref.mu.RUnlock()
	entry, ok := s.ref.days[dayID]
	if !ok || entry.userID != userID {
		return nil, models.NotFound("get program day", "day", dayID)
	}
	day := entry.day
	return &day, nil
}

func standardsKey(exercise, gender string) string {
	return strings.ToLower(exercise) + "|" + strings.ToLower(gender)
}

// SetStandards registers the strength standard ratios for an exercise and gender.
func (s *Store) SetStandards(exercise, gender string, ratios []float64) {
	s.ref.mu.Lock()
	defer s.ref.mu.Unlock()
	s.ref.standards[standardsKey(exercise, gender)] = append([]float64(nil), ratios...)
}

func (s *Store) Ratios(ctx context.Context, exercise, gender string) ([]float64, error) {
	s.ref.mu.RLock()
	defer s.ref.mu.RUnlock()
	r, ok := s.ref.standards[standardsKey(exercise, gender)]
	if !ok {
		return nil, &models.Error{Kind: models.ErrNotFound, Op: "get strength standards", Entity: "exercise", ID: exercise}
	}
	return append([]float64(nil), r...), nil
}

// --- users ---

// GetOrCreateUser assigns IDs to logins in first-seen order, starting at 1.
func (s *Store) GetOrCreateUser(ctx context.Context, login, displayName string) (int, error) {
	defer s.lock()()
	if id, ok := s.d.users[login]; ok {
		return id, nil
	}
	id := len(s.d.users) + 1
	s.d.users[login] = id
	return id, nil
}

// IsUserAllowed admits everyone; the memory driver has no allowlist.
func (s *Store) IsUserAllowed(ctx context.Context, login string) (bool, error) {
	return true, nil
}

func window[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
