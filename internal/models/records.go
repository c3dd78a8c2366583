package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// RecordType names which personal record a log entry broke.
type RecordType string

const (
	RecordMaxWeight       RecordType = "max_weight"
	RecordMaxEstimated1RM RecordType = "max_estimated_1rm"
	RecordMaxRepAtWeight  RecordType = "max_rep_at_weight"
)

// BracketRecord is the best rep count ever performed in one weight bracket.
type BracketRecord struct {
	Bracket  WeightBracket `json:"bracket"`
	BestReps int           `json:"best_reps"`
	Date     time.Time     `json:"date"`
}

// RepRecord is the heaviest weight ever moved for an exact rep count.
type RepRecord struct {
	Reps         int       `json:"reps"`
	BestWeightKg float64   `json:"best_weight_kg"`
	Date         time.Time `json:"date"`
}

// UserExercisePR is the mutable record state for one (user, exercise name).
type UserExercisePR struct {
	UserID       int    `json:"user_id"`
	ExerciseName string `json:"exercise_name"`

	BestWeightKg   *float64   `json:"best_weight_kg,omitempty"`
	BestWeightDate *time.Time `json:"best_weight_date,omitempty"`
	BestE1RM       *float64   `json:"best_e1rm,omitempty"`
	BestE1RMDate   *time.Time `json:"best_e1rm_date,omitempty"`
	BestVolumeKg   *float64   `json:"best_volume_kg,omitempty"`
	BestVolumeDate *time.Time `json:"best_volume_date,omitempty"`

	RepsAtWeight []BracketRecord `json:"reps_at_weight"`
	WeightAtReps []RepRecord     `json:"weight_at_reps"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Bracket returns the record for a weight bracket.
func (p *UserExercisePR) Bracket(b WeightBracket) (BracketRecord, bool) {
	for _, r := range p.RepsAtWeight {
		if r.Bracket == b {
			return r, true
		}
	}
	return BracketRecord{}, false
}

// SetBracket inserts or replaces a bracket record, keeping brackets ordered.
func (p *UserExercisePR) SetBracket(rec BracketRecord) {
	for i := range p.RepsAtWeight {
		if p.RepsAtWeight[i].Bracket == rec.Bracket {
			p.RepsAtWeight[i] = rec
			return
		}
	}
	p.RepsAtWeight = append(p.RepsAtWeight, rec)
	sort.Slice(p.RepsAtWeight, func(i, j int) bool {
		return p.RepsAtWeight[i].Bracket < p.RepsAtWeight[j].Bracket
	})
}

// RepCount returns the best-weight record for an exact rep count.
func (p *UserExercisePR) RepCount(reps int) (RepRecord, bool) {
	for _, r := range p.WeightAtReps {
		if r.Reps == reps {
			return r, true
		}
	}
	return RepRecord{}, false
}

// SetRepCount inserts or replaces a rep-count record, keeping them ordered.
func (p *UserExercisePR) SetRepCount(rec RepRecord) {
	for i := range p.WeightAtReps {
		if p.WeightAtReps[i].Reps == rec.Reps {
			p.WeightAtReps[i] = rec
			return
		}
	}
	p.WeightAtReps = append(p.WeightAtReps, rec)
	sort.Slice(p.WeightAtReps, func(i, j int) bool {
		return p.WeightAtReps[i].Reps < p.WeightAtReps[j].Reps
	})
}

// Clone returns a deep copy.
func (p *UserExercisePR) Clone() *UserExercisePR {
	c := *p
	c.RepsAtWeight = append([]BracketRecord(nil), p.RepsAtWeight...)
	c.WeightAtReps = append([]RepRecord(nil), p.WeightAtReps...)
	return &c
}

// PersonalRecordLog is an immutable entry written each time a record is broken.
type PersonalRecordLog struct {
	ID             uuid.UUID      `json:"id"`
	UserID         int            `json:"user_id"`
	ExerciseName   string         `json:"exercise_name"`
	MuscleGroup    string         `json:"muscle_group"`
	RecordType     RecordType     `json:"record_type"`
	Bracket        *WeightBracket `json:"bracket,omitempty"`
	Value          float64        `json:"value"`
	PreviousValue  *float64       `json:"previous_value,omitempty"`
	PreviousDate   *time.Time     `json:"previous_date,omitempty"`
	ImprovementPct float64        `json:"improvement_pct"`
	SessionID      uuid.UUID      `json:"session_id"`
	SetID          uuid.UUID      `json:"set_id"`
	AchievedAt     time.Time      `json:"achieved_at"`
}
