package models

import "time"

// AlphaSession is a session parsed from an Alpha Progression CSV export,
// before it is converted into a completed WorkoutSession.
type AlphaSession struct {
	Name        string
	Date        time.Time
	Duration    string // as exported, e.g. "1:02 hr"
	DurationSec int
	Exercises   []AlphaExercise
}

// AlphaExercise is a single exercise within a parsed session.
type AlphaExercise struct {
	Number     int
	Name       string
	Equipment  string
	TargetReps int
	Sets       []AlphaSet
}

// AlphaSet is a single parsed set (working or warmup).
type AlphaSet struct {
	Number           int
	WeightKg         float64
	IsBodyweightPlus bool
	Reps             int
	RIR              float64
	IsWarmup         bool
}
