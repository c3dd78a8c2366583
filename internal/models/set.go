package models

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// SetType classifies a set. Warmups never count towards tonnage or records.
type SetType string

const (
	SetWorking SetType = "working"
	SetWarmup  SetType = "warmup"
	SetFailure SetType = "failure"
	SetDrop    SetType = "drop"
)

// Valid reports whether t is a known set type.
func (t SetType) Valid() bool {
	switch t {
	case SetWorking, SetWarmup, SetFailure, SetDrop:
		return true
	}
	return false
}

// Comparison is the result of comparing a set against the previous session's slot.
type Comparison string

const (
	NoPrevious Comparison = "no_previous"
	Better     Comparison = "better"
	Same       Comparison = "same"
	Worse      Comparison = "worse"
)

// maxRepsFor1RM is the rep count past which the 1RM formulas stop being reliable.
const maxRepsFor1RM = 12

// SessionSet is a single planned or performed set.
type SessionSet struct {
	ID    uuid.UUID `json:"id"`
	Order int       `json:"order"`
	Type  SetType   `json:"type"`
	Notes string    `json:"notes,omitempty"`

	PlannedWeight          *float64 `json:"planned_weight,omitempty"`
	PlannedReps            *int     `json:"planned_reps,omitempty"`
	PlannedDurationSeconds *int     `json:"planned_duration_sec,omitempty"`

	ActualWeight          *float64 `json:"actual_weight,omitempty"`
	ActualWeightKg        *float64 `json:"actual_weight_kg,omitempty"`
	ActualReps            *int     `json:"actual_reps,omitempty"`
	ActualDurationSeconds *int     `json:"actual_duration_sec,omitempty"`
	RPE                   *float64 `json:"rpe,omitempty"`

	PreviousWeight *float64 `json:"previous_weight,omitempty"`
	PreviousReps   *int     `json:"previous_reps,omitempty"`

	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	RestAfterSeconds *int       `json:"rest_after_sec,omitempty"`
}

// Completed reports whether the set has been performed.
func (s *SessionSet) Completed() bool {
	return s.CompletedAt != nil
}

// Tonnage is weight (kg) × reps. Warmups and sets missing either value weigh nothing.
func (s *SessionSet) Tonnage() float64 {
	if s.Type == SetWarmup || s.ActualWeightKg == nil || s.ActualReps == nil {
		return 0
	}
	return *s.ActualWeightKg * float64(*s.ActualReps)
}

// Estimated1RM returns the set's estimated one-rep max in kg, or 0 when the
// rep count is outside the range the formulas cover.
func (s *SessionSet) Estimated1RM() float64 {
	if s.ActualWeightKg == nil || s.ActualReps == nil {
		return 0
	}
	return Estimate1RM(*s.ActualWeightKg, *s.ActualReps)
}

// Estimate1RM is the mean of the Epley and Brzycki estimates.
// A single is its own max; 0 or more than 12 reps yields 0.
func Estimate1RM(weight float64, reps int) float64 {
	switch {
	case reps <= 0 || reps > maxRepsFor1RM:
		return 0
	case reps == 1:
		return weight
	}
	r := float64(reps)
	epley := weight * (1 + r/30)
	brzycki := weight * 36 / (37 - r)
	return (epley + brzycki) / 2
}

// CompareWithPrevious compares weight × reps against the previous session's slot.
func (s *SessionSet) CompareWithPrevious() Comparison {
	if s.ActualWeight == nil || s.ActualReps == nil || s.PreviousWeight == nil || s.PreviousReps == nil {
		return NoPrevious
	}
	current := *s.ActualWeight * float64(*s.ActualReps)
	previous := *s.PreviousWeight * float64(*s.PreviousReps)
	switch {
	case current > previous:
		return Better
	case current < previous:
		return Worse
	default:
		return Same
	}
}

// clearActuals resets the set to an unstarted state. Planned and previous
// values, type and notes are kept.
func (s *SessionSet) clearActuals() {
	s.ActualWeight = nil
	s.ActualWeightKg = nil
	s.ActualReps = nil
	s.ActualDurationSeconds = nil
	s.RPE = nil
	s.StartedAt = nil
	s.CompletedAt = nil
	s.RestAfterSeconds = nil
}

// bracketStep is the width of a weight bracket in kg.
const bracketStep = 2.5

// WeightBracket groups near-equal loads: the number of 2.5 kg steps nearest
// to the weight, rounding half away from zero.
type WeightBracket int

// BracketFor returns the bracket for a weight in kg.
func BracketFor(kg float64) WeightBracket {
	return WeightBracket(math.Round(kg / bracketStep))
}

// Kg returns the bracket's weight.
func (b WeightBracket) Kg() float64 {
	return float64(b) * bracketStep
}

// String formats the bracket weight with one decimal place, e.g. "100.0".
func (b WeightBracket) String() string {
	return fmt.Sprintf("%.1f", b.Kg())
}

// MarshalText encodes the bracket as its display key.
func (b WeightBracket) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText parses a display key such as "102.5".
func (b *WeightBracket) UnmarshalText(text []byte) error {
	var kg float64
	if _, err := fmt.Sscanf(string(text), "%g", &kg); err != nil {
		return fmt.Errorf("parsing weight bracket %q: %w", text, err)
	}
	*b = BracketFor(kg)
	return nil
}
