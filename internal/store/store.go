// Package store declares the persistence contracts the workout core runs
// against. internal/storage implements them on PostgreSQL and
// internal/store/memstore keeps everything in memory.
package store

import (
	"context"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/google/uuid"
)

// SessionStore persists workout sessions together with their exercises and sets.
type SessionStore interface {
	// GetSession returns models.ErrNotFound when the session does not exist
	// or belongs to another user.
	GetSession(ctx context.Context, userID int, id uuid.UUID) (*models.WorkoutSession, error)
	// GetActiveSession returns nil, nil when the user has no session in progress.
	GetActiveSession(ctx context.Context, userID int) (*models.WorkoutSession, error)
	// LatestCompletedSession returns nil, nil when the user never completed a session.
	LatestCompletedSession(ctx context.Context, userID int) (*models.WorkoutSession, error)
	// LatestCompletedWithExercise returns nil, nil when no completed session has the exercise.
	LatestCompletedWithExercise(ctx context.Context, userID int, exerciseName string) (*models.WorkoutSession, error)
	// ListSessions returns one page of history, newest first, and the total match count.
	ListSessions(ctx context.Context, userID int, q models.SessionQuery) ([]models.WorkoutSession, int, error)
	// ListPendingRollups returns completed sessions that were not folded yet.
	ListPendingRollups(ctx context.Context) ([]models.WorkoutSession, error)

	// CreateSession inserts a session. It fails with models.ErrConflict when
	// the session is in progress and the user already has one in progress.
	CreateSession(ctx context.Context, s *models.WorkoutSession) error
	// UpdateSession writes the whole aggregate. It fails with
	// models.ErrConflict when s.Version is stale and bumps it on success.
	UpdateSession(ctx context.Context, s *models.WorkoutSession) error
}

// StatsStore persists personal records and the rollup buckets.
type StatsStore interface {
	GetDailyExerciseStats(ctx context.Context, userID int, date time.Time, exerciseName string) (*models.DailyExerciseStats, error)
	// UpsertDailyExerciseStats replaces the bucket.
	UpsertDailyExerciseStats(ctx context.Context, s models.DailyExerciseStats) error
	ListDailyExerciseStats(ctx context.Context, userID int, exerciseName string, from, to *time.Time) ([]models.DailyExerciseStats, error)

	GetWeeklyMuscleVolume(ctx context.Context, userID int, week models.ISOWeek, muscleGroup string) (*models.WeeklyMuscleVolume, error)
	// AddWeeklyMuscleVolume adds delta's counters to the bucket, creating it if missing.
	AddWeeklyMuscleVolume(ctx context.Context, delta models.WeeklyMuscleVolume) error
	ListWeeklyMuscleVolume(ctx context.Context, userID int, muscleGroup string, from, to *models.ISOWeek) ([]models.WeeklyMuscleVolume, error)

	GetWeeklyUserStats(ctx context.Context, userID int, week models.ISOWeek) (*models.WeeklyUserStats, error)
	// AddWeeklyUserStats adds delta's counters to the bucket and overwrites
	// its average rest with delta's.
	AddWeeklyUserStats(ctx context.Context, delta models.WeeklyUserStats) error
	ListWeeklyUserStats(ctx context.Context, userID int, from, to *models.ISOWeek) ([]models.WeeklyUserStats, error)

	// GetExercisePR returns nil, nil when the user has no record for the exercise.
	GetExercisePR(ctx context.Context, userID int, exerciseName string) (*models.UserExercisePR, error)
	UpsertExercisePR(ctx context.Context, pr models.UserExercisePR) error

	AppendRecordLog(ctx context.Context, entry models.PersonalRecordLog) error
	// ListRecordLogs returns one page, newest first, and the total match count.
	ListRecordLogs(ctx context.Context, userID int, q models.RecordQuery) ([]models.PersonalRecordLog, int, error)
	CountRecordLogs(ctx context.Context, userID int) (int, error)

	// AverageRestSeconds averages the rest of the user's last n completed
	// sessions that recorded any rest. ok is false without such history.
	AverageRestSeconds(ctx context.Context, userID, n int) (avg float64, ok bool, err error)
	// WorkoutDates lists the start times of completed sessions in [from, to).
	WorkoutDates(ctx context.Context, userID int, from, to time.Time) ([]time.Time, error)

	// ClaimRollup clears the session's pending flag. It reports false when the
	// session was already folded, which makes folding at-most-once when
	// called in the same transaction as the bucket writes.
	ClaimRollup(ctx context.Context, userID int, sessionID uuid.UUID) (bool, error)
}

// Store is the full persistence surface of the core.
type Store interface {
	SessionStore
	StatsStore
	// RunInTx runs fn in one transaction. The Store handed to fn is bound to
	// the transaction; fn's error rolls everything back.
	RunInTx(ctx context.Context, fn func(tx Store) error) error
}

// Catalog reads prescribed program days.
type Catalog interface {
	// GetProgramDay returns models.ErrNotFound for unknown or foreign days.
	GetProgramDay(ctx context.Context, userID int, dayID uuid.UUID) (*models.ProgramDay, error)
}

// Standards looks up strength standards: five ascending bodyweight ratios
// (beginner, novice, intermediate, advanced, elite).
type Standards interface {
	Ratios(ctx context.Context, exercise, gender string) ([]float64, error)
}
