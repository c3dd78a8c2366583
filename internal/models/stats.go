package models

import "time"

// ISOWeek is an ISO-8601 week (Monday start).
type ISOWeek struct {
	Year int `json:"year"`
	Week int `json:"week"`
}

// WeekOf returns the ISO week containing t.
func WeekOf(t time.Time) ISOWeek {
	y, w := t.ISOWeek()
	return ISOWeek{Year: y, Week: w}
}

// Before orders weeks chronologically.
func (w ISOWeek) Before(o ISOWeek) bool {
	if w.Year != o.Year {
		return w.Year < o.Year
	}
	return w.Week < o.Week
}

// Monday returns midnight of the Monday starting the week containing t, in t's location.
func Monday(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	d := t.AddDate(0, 0, -offset)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, t.Location())
}

// Day truncates t to midnight in its location.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DailyExerciseStats is one (user, date, exercise) bucket.
type DailyExerciseStats struct {
	UserID       int       `json:"user_id"`
	Date         time.Time `json:"date"`
	ExerciseName string    `json:"exercise_name"`
	MuscleGroup  string    `json:"muscle_group"`
	TotalSets    int       `json:"total_sets"`
	TotalReps    int       `json:"total_reps"`
	TonnageKg    float64   `json:"tonnage_kg"`
	MaxWeightKg  float64   `json:"max_weight_kg"`
	BestE1RM     float64   `json:"best_e1rm"`
	AvgRPE       *float64  `json:"avg_rpe,omitempty"`
}

// WeeklyMuscleVolume is one (user, ISO week, muscle group) bucket.
type WeeklyMuscleVolume struct {
	UserID      int     `json:"user_id"`
	Week        ISOWeek `json:"week"`
	MuscleGroup string  `json:"muscle_group"`
	TotalSets   int     `json:"total_sets"`
	TotalReps   int     `json:"total_reps"`
	TonnageKg   float64 `json:"tonnage_kg"`
}

// WeeklyUserStats is one (user, ISO week) bucket.
type WeeklyUserStats struct {
	UserID             int     `json:"user_id"`
	Week               ISOWeek `json:"week"`
	Sessions           int     `json:"sessions"`
	TotalSets          int     `json:"total_sets"`
	TotalReps          int     `json:"total_reps"`
	TonnageKg          float64 `json:"tonnage_kg"`
	DurationSeconds    int     `json:"duration_sec"`
	AverageRestSeconds float64 `json:"average_rest_sec"`
}
