package models

import "github.com/google/uuid"

// ProgramDay is one prescribed training day of a program. Programs are
// maintained elsewhere; the core only reads them.
type ProgramDay struct {
	ID        uuid.UUID         `json:"id"`
	ProgramID uuid.UUID         `json:"program_id"`
	Name      string            `json:"name"`
	Exercises []ProgramExercise `json:"exercises"`
}

// ProgramExercise is a prescribed exercise of a day.
type ProgramExercise struct {
	ID          uuid.UUID    `json:"id"`
	Name        string       `json:"name"`
	MuscleGroup string       `json:"muscle_group"`
	Notes       string       `json:"notes,omitempty"`
	Order       int          `json:"order"`
	Sets        []ProgramSet `json:"sets"`
}

// ProgramSet is a prescribed set.
type ProgramSet struct {
	Order           int      `json:"order"`
	Type            SetType  `json:"type"`
	Weight          *float64 `json:"weight,omitempty"`
	Reps            *int     `json:"reps,omitempty"`
	DurationSeconds *int     `json:"duration_sec,omitempty"`
}

// TotalSets counts the prescribed sets of the day.
func (d *ProgramDay) TotalSets() int {
	n := 0
	for _, ex := range d.Exercises {
		n += len(ex.Sets)
	}
	return n
}
