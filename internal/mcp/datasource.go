package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/claude/liftlog/internal/analytics"
	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/session"
	"github.com/google/uuid"
)

// DataSource abstracts the data layer for MCP tools. Local (in-process
// services) and HTTPClient (remote via REST API) satisfy this interface.
type DataSource interface {
	ExerciseProgress(ctx context.Context, userID int, exercise string, from, to *time.Time) (*analytics.ExerciseProgress, error)
	MuscleGroupProgress(ctx context.Context, userID int, group string, from, to *time.Time) (*analytics.MuscleGroupProgress, error)
	PersonalRecords(ctx context.Context, userID int, exercise string, page, pageSize int) (*models.Page[models.PersonalRecordLog], error)
	WorkoutStats(ctx context.Context, userID int, from, to time.Time) (*analytics.WorkoutStats, error)
	StrengthLevel(ctx context.Context, userID int, exercise string, bodyweightKg float64, gender string) (*analytics.StrengthLevel, error)
	EstimateDuration(ctx context.Context, userID int, dayID uuid.UUID) (*analytics.DurationEstimate, error)
	WeekStatus(ctx context.Context, userID int) (*analytics.WeekStatus, error)
	SessionHistory(ctx context.Context, userID int, q HistoryQuery) (*models.Page[models.WorkoutSession], error)
}

// HistoryQuery selects one page of session history.
type HistoryQuery struct {
	Status   models.SessionStatus
	Start    *time.Time
	End      *time.Time
	Page     int
	PageSize int
}

// Local serves the tools from the analytics and session services of this process.
type Local struct {
	*analytics.Service
	sessions *session.Service
}

// Compile-time check: Local satisfies DataSource.
var _ DataSource = (*Local)(nil)

// NewLocal creates a DataSource over in-process services.
func NewLocal(an *analytics.Service, sessions *session.Service) *Local {
	return &Local{Service: an, sessions: sessions}
}

// SessionHistory returns one page of the user's sessions, newest first.
func (l *Local) SessionHistory(ctx context.Context, userID int, q HistoryQuery) (*models.Page[models.WorkoutSession], error) {
	limit, offset := models.PageBounds(q.Page, q.PageSize)
	items, total, err := l.sessions.History(ctx, userID, models.SessionQuery{
		Status: q.Status,
		Start:  q.Start,
		End:    q.End,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("session history: %w", err)
	}
	if items == nil {
		items = []models.WorkoutSession{}
	}
	return &models.Page[models.WorkoutSession]{
		Items:    items,
		Total:    total,
		Page:     offset/limit + 1,
		PageSize: limit,
	}, nil
}
