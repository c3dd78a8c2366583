// Package analytics answers read-side questions about a user's training:
// progress curves, record history, strength level and planning estimates.
// It never mutates state.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/store"
	"github.com/google/uuid"
)

// Config holds the estimation constants.
type Config struct {
	SetWorkSeconds     int // assumed working time per set
	DefaultRestSeconds int // rest used without history
	RestWindowSessions int // completed sessions averaged for rest
}

// DefaultConfig is used for zero fields of the config given to New.
var DefaultConfig = Config{SetWorkSeconds: 30, DefaultRestSeconds: 90, RestWindowSessions: 10}

// Service runs the queries.
type Service struct {
	store     store.Store
	catalog   store.Catalog
	standards store.Standards
	cfg       Config
	loc       *time.Location
	now       func() time.Time
}

// New creates the query service. Weeks and days are computed in loc (UTC if nil).
func New(st store.Store, catalog store.Catalog, standards store.Standards, cfg Config, loc *time.Location) *Service {
	if cfg.SetWorkSeconds <= 0 {
		cfg.SetWorkSeconds = DefaultConfig.SetWorkSeconds
	}
	if cfg.DefaultRestSeconds <= 0 {
		cfg.DefaultRestSeconds = DefaultConfig.DefaultRestSeconds
	}
	if cfg.RestWindowSessions <= 0 {
		cfg.RestWindowSessions = DefaultConfig.RestWindowSessions
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: st, catalog: catalog, standards: standards, cfg: cfg, loc: loc, now: time.Now}
}

// SetClock replaces time.Now.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// ExerciseProgress is the daily series of an exercise with its current records.
type ExerciseProgress struct {
	Exercise string                      `json:"exercise"`
	Points   []models.DailyExerciseStats `json:"points"`
	Record   *models.UserExercisePR      `json:"record,omitempty"`
}

// ExerciseProgress returns the daily stats of an exercise within [from, to].
// Either bound may be nil.
func (s *Service) ExerciseProgress(ctx context.Context, userID int, exercise string, from, to *time.Time) (*ExerciseProgress, error) {
	points, err := s.store.ListDailyExerciseStats(ctx, userID, exercise, from, to)
	if err != nil {
		return nil, fmt.Errorf("list daily stats: %w", err)
	}
	pr, err := s.store.GetExercisePR(ctx, userID, exercise)
	if err != nil {
		return nil, fmt.Errorf("get exercise record: %w", err)
	}
	if points == nil {
		points = []models.DailyExerciseStats{}
	}
	return &ExerciseProgress{Exercise: exercise, Points: points, Record: pr}, nil
}

// MuscleGroupProgress is the weekly volume series of one muscle group.
type MuscleGroupProgress struct {
	MuscleGroup string                      `json:"muscle_group"`
	Points      []models.WeeklyMuscleVolume `json:"points"`
}

// MuscleGroupProgress returns weekly volume for the weeks touching [from, to].
func (s *Service) MuscleGroupProgress(ctx context.Context, userID int, group string, from, to *time.Time) (*MuscleGroupProgress, error) {
	fromWeek, toWeek := s.weekBounds(from, to)
	points, err := s.store.ListWeeklyMuscleVolume(ctx, userID, group, fromWeek, toWeek)
	if err != nil {
		return nil, fmt.Errorf("list weekly muscle volume: %w", err)
	}
	if points == nil {
		points = []models.WeeklyMuscleVolume{}
	}
	return &MuscleGroupProgress{MuscleGroup: group, Points: points}, nil
}

func (s *Service) weekBounds(from, to *time.Time) (*models.ISOWeek, *models.ISOWeek) {
	var fw, tw *models.ISOWeek
	if from != nil {
		w := models.WeekOf(from.In(s.loc))
		fw = &w
	}
	if to != nil {
		w := models.WeekOf(to.In(s.loc))
		tw = &w
	}
	return fw, tw
}

// PersonalRecords returns one page of the record log, newest first.
// exercise filters when non-empty.
func (s *Service) PersonalRecords(ctx context.Context, userID int, exercise string, page, pageSize int) (*models.Page[models.PersonalRecordLog], error) {
	limit, offset := models.PageBounds(page, pageSize)
	items, total, err := s.store.ListRecordLogs(ctx, userID, models.RecordQuery{
		ExerciseName: exercise,
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list record logs: %w", err)
	}
	if items == nil {
		items = []models.PersonalRecordLog{}
	}
	return &models.Page[models.PersonalRecordLog]{
		Items:    items,
		Total:    total,
		Page:     offset/limit + 1,
		PageSize: limit,
	}, nil
}

// WorkoutStats summarizes a window of training.
type WorkoutStats struct {
	From                 time.Time      `json:"from"`
	To                   time.Time      `json:"to"`
	Workouts             int            `json:"workouts"`
	TotalSets            int            `json:"total_sets"`
	TotalReps            int            `json:"total_reps"`
	TonnageKg            float64        `json:"tonnage_kg"`
	DurationSeconds      int            `json:"duration_sec"`
	AvgDurationSeconds   float64        `json:"avg_duration_sec"`
	AvgTonnageKg         float64        `json:"avg_tonnage_kg"`
	AvgSetsPerWorkout    float64        `json:"avg_sets_per_workout"`
	LifetimeRecords      int            `json:"lifetime_records"`
	MuscleGroupFrequency map[string]int `json:"muscle_group_frequency"`
}

// WorkoutStats sums the weekly rollups of the weeks touching [from, to) and
// counts how often each muscle group was trained by scanning the completed
// sessions started in the window.
func (s *Service) WorkoutStats(ctx context.Context, userID int, from, to time.Time) (*WorkoutStats, error) {
	last := to.Add(-time.Nanosecond)
	fromWeek, toWeek := s.weekBounds(&from, &last)
	weeks, err := s.store.ListWeeklyUserStats(ctx, userID, fromWeek, toWeek)
	if err != nil {
		return nil, fmt.Errorf("list weekly user stats: %w", err)
	}

	out := &WorkoutStats{From: from, To: to, MuscleGroupFrequency: map[string]int{}}
	for _, w := range weeks {
		out.Workouts += w.Sessions
		out.TotalSets += w.TotalSets
		out.TotalReps += w.TotalReps
		out.TonnageKg += w.TonnageKg
		out.DurationSeconds += w.DurationSeconds
	}
	if out.Workouts > 0 {
		n := float64(out.Workouts)
		out.AvgDurationSeconds = float64(out.DurationSeconds) / n
		out.AvgTonnageKg = out.TonnageKg / n
		out.AvgSetsPerWorkout = float64(out.TotalSets) / n
	}

	out.LifetimeRecords, err = s.store.CountRecordLogs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count record logs: %w", err)
	}

	sessions, _, err := s.store.ListSessions(ctx, userID, models.SessionQuery{
		Status: models.StatusCompleted,
		Start:  &from,
		End:    &to,
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	for _, sess := range sessions {
		for i := range sess.Exercises {
			ex := &sess.Exercises[i]
			if ex.MuscleGroup == "" || ex.CompletedSets() == 0 {
				continue
			}
			out.MuscleGroupFrequency[ex.MuscleGroup]++
		}
	}
	return out, nil
}

// Level is a strength classification.
type Level string

const (
	Beginner     Level = "beginner"
	Novice       Level = "novice"
	Intermediate Level = "intermediate"
	Advanced     Level = "advanced"
	Elite        Level = "elite"
)

var (
	levels      = []Level{Beginner, Novice, Intermediate, Advanced, Elite}
	percentiles = []int{5, 20, 50, 80, 95}
)

// Threshold is one row of a strength standard table.
type Threshold struct {
	Level    Level   `json:"level"`
	Ratio    float64 `json:"ratio"`
	WeightKg float64 `json:"weight_kg"`
}

// StrengthLevel classifies the user's best estimated 1RM against bodyweight.
// Classified is false when the standards table is malformed.
type StrengthLevel struct {
	Exercise          string      `json:"exercise"`
	Gender            string      `json:"gender"`
	BodyweightKg      float64     `json:"bodyweight_kg"`
	BestE1RM          float64     `json:"best_e1rm"`
	Ratio             float64     `json:"ratio"`
	Classified        bool        `json:"classified"`
	Level             Level       `json:"level,omitempty"`
	Percentile        int         `json:"percentile,omitempty"`
	NextLevel         Level       `json:"next_level,omitempty"`
	NextLevelWeightKg *float64    `json:"next_level_weight_kg,omitempty"`
	Thresholds        []Threshold `json:"thresholds"`
}

// StrengthLevel looks up the standards for exercise and gender and places the
// user's best estimated 1RM in them.
func (s *Service) StrengthLevel(ctx context.Context, userID int, exercise string, bodyweightKg float64, gender string) (*StrengthLevel, error) {
	const op = "strength level"
	if bodyweightKg <= 0 {
		return nil, models.InvalidInput(op, "bodyweight", "must be positive")
	}
	if s.standards == nil {
		return nil, fmt.Errorf("%s: no standards source configured", op)
	}

	out := &StrengthLevel{
		Exercise:     exercise,
		Gender:       gender,
		BodyweightKg: bodyweightKg,
		Thresholds:   []Threshold{},
	}

	pr, err := s.store.GetExercisePR(ctx, userID, exercise)
	if err != nil {
		return nil, fmt.Errorf("%s: get exercise record: %w", op, err)
	}
	if pr != nil && pr.BestE1RM != nil {
		out.BestE1RM = *pr.BestE1RM
	}
	out.Ratio = out.BestE1RM / bodyweightKg

	ratios, err := s.standards.Ratios(ctx, exercise, gender)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !validRatios(ratios) {
		return out, nil
	}

	for i, r := range ratios {
		out.Thresholds = append(out.Thresholds, Threshold{Level: levels[i], Ratio: r, WeightKg: r * bodyweightKg})
	}

	idx := 0
	for i := len(ratios) - 1; i >= 0; i-- {
		if out.Ratio >= ratios[i] {
			idx = i
			break
		}
	}
	out.Classified = true
	out.Level = levels[idx]
	out.Percentile = percentiles[idx]
	if idx+1 < len(levels) {
		target := ratios[idx+1] * bodyweightKg
		out.NextLevel = levels[idx+1]
		out.NextLevelWeightKg = &target
	}
	return out, nil
}

// validRatios requires five positive, strictly ascending thresholds.
func validRatios(r []float64) bool {
	if len(r) != len(levels) {
		return false
	}
	for i, v := range r {
		if v <= 0 || (i > 0 && v <= r[i-1]) {
			return false
		}
	}
	return true
}

// DurationEstimate is the expected length of a program day.
type DurationEstimate struct {
	DayID              uuid.UUID `json:"day_id"`
	DayName            string    `json:"day_name"`
	TotalSets          int       `json:"total_sets"`
	AverageRestSeconds float64   `json:"average_rest_sec"`
	RestFromHistory    bool      `json:"rest_from_history"`
	Minutes            float64   `json:"minutes"`
}

// EstimateDuration estimates a day as sets × (work + average rest), using the
// rest of the user's recent sessions when there is any.
func (s *Service) EstimateDuration(ctx context.Context, userID int, dayID uuid.UUID) (*DurationEstimate, error) {
	if s.catalog == nil {
		return nil, models.NotFound("estimate duration", "day", dayID)
	}
	day, err := s.catalog.GetProgramDay(ctx, userID, dayID)
	if err != nil {
		return nil, fmt.Errorf("estimate duration: %w", err)
	}

	rest, ok, err := s.store.AverageRestSeconds(ctx, userID, s.cfg.RestWindowSessions)
	if err != nil {
		return nil, fmt.Errorf("estimate duration: average rest: %w", err)
	}
	if !ok {
		rest = float64(s.cfg.DefaultRestSeconds)
	}

	sets := day.TotalSets()
	return &DurationEstimate{
		DayID:              day.ID,
		DayName:            day.Name,
		TotalSets:          sets,
		AverageRestSeconds: rest,
		RestFromHistory:    ok,
		Minutes:            float64(sets) * (float64(s.cfg.SetWorkSeconds) + rest) / 60,
	}, nil
}

// PerformedDay is a program day already trained this week.
type PerformedDay struct {
	DayID     uuid.UUID `json:"day_id"`
	SessionID uuid.UUID `json:"session_id"`
	Title     string    `json:"title"`
	Date      time.Time `json:"date"`
}

// WeekStatus is the state of the current ISO week.
type WeekStatus struct {
	Week          models.ISOWeek         `json:"week"`
	WeekStart     time.Time              `json:"week_start"`
	WorkoutDates  []time.Time            `json:"workout_dates"`
	PerformedDays []PerformedDay         `json:"performed_days"`
	Active        *models.WorkoutSession `json:"active,omitempty"`
}

// WeekStatus lists what was trained since Monday and the running session.
func (s *Service) WeekStatus(ctx context.Context, userID int) (*WeekStatus, error) {
	now := s.now().In(s.loc)
	monday := models.Monday(now)
	end := monday.AddDate(0, 0, 7)

	out := &WeekStatus{
		Week:          models.WeekOf(now),
		WeekStart:     monday,
		WorkoutDates:  []time.Time{},
		PerformedDays: []PerformedDay{},
	}

	dates, err := s.store.WorkoutDates(ctx, userID, monday, end)
	if err != nil {
		return nil, fmt.Errorf("week status: workout dates: %w", err)
	}
	seen := map[time.Time]bool{}
	for _, d := range dates {
		day := models.Day(d.In(s.loc))
		if !seen[day] {
			seen[day] = true
			out.WorkoutDates = append(out.WorkoutDates, day)
		}
	}

	sessions, _, err := s.store.ListSessions(ctx, userID, models.SessionQuery{
		Status: models.StatusCompleted,
		Start:  &monday,
		End:    &end,
	})
	if err != nil {
		return nil, fmt.Errorf("week status: list sessions: %w", err)
	}
	for _, sess := range sessions {
		if sess.SourceDayID == nil {
			continue
		}
		out.PerformedDays = append(out.PerformedDays, PerformedDay{
			DayID:     *sess.SourceDayID,
			SessionID: sess.ID,
			Title:     sess.Title,
			Date:      models.Day(sess.StartedAt.In(s.loc)),
		})
	}
	sort.Slice(out.PerformedDays, func(i, j int) bool {
		return out.PerformedDays[i].Date.Before(out.PerformedDays[j].Date)
	})

	out.Active, err = s.store.GetActiveSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("week status: active session: %w", err)
	}
	return out, nil
}
