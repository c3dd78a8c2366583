package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/claude/liftlog/internal/analytics"
	"github.com/claude/liftlog/internal/metrics"
	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/rollup"
	"github.com/claude/liftlog/internal/session"
	"github.com/claude/liftlog/internal/store/memstore"
	"github.com/mark3labs/mcp-go/mcp"
)

// newLocalHandlers wires the tool handlers to in-process services over a
// memstore and records one completed bench session for user 1.
func newLocalHandlers(t *testing.T) *handlers {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := memstore.New()
	st.SetStandards("bench press", "male", []float64{0.5, 0.75, 1.25, 1.75, 2})
	sessions := session.NewService(st, st, rollup.New(time.UTC), metrics.NewTestManager(), log)
	an := analytics.New(st, st, st, analytics.DefaultConfig, time.UTC)

	ctx := context.Background()
	sess, err := sessions.Start(ctx, 1, session.StartParams{Title: "Push"})
	if err != nil {
		t.Fatal(err)
	}
	ex, err := sessions.AddExercise(ctx, 1, sess.ID, session.AddExerciseParams{Name: "Bench Press", MuscleGroup: "chest"})
	if err != nil {
		t.Fatal(err)
	}
	weight, reps := 100.0, 5
	set, err := sessions.AddSet(ctx, 1, sess.ID, ex.ID, session.AddSetParams{Weight: &weight, Reps: &reps})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sessions.CompleteSet(ctx, 1, sess.ID, set.ID, session.CompleteSetParams{}); err != nil {
		t.Fatal(err)
	}
	if _, err := sessions.CompleteSession(ctx, 1, sess.ID, ""); err != nil {
		t.Fatal(err)
	}

	return &handlers{ds: NewLocal(an, sessions), log: log}
}

func callTool(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := mcp.AsTextContent(res.Content[0])
	if !ok {
		t.Fatalf("content = %T, want text", res.Content[0])
	}
	return text.Text
}

func TestExerciseProgressTool(t *testing.T) {
	h := newLocalHandlers(t)

	res, err := h.getExerciseProgress(context.Background(), callTool("get_exercise_progress", map[string]any{"exercise": "bench press"}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", resultText(t, res))
	}
	var progress analytics.ExerciseProgress
	if err := json.Unmarshal([]byte(resultText(t, res)), &progress); err != nil {
		t.Fatal(err)
	}
	if len(progress.Points) != 1 || progress.Points[0].TonnageKg != 500 {
		t.Errorf("points = %+v", progress.Points)
	}
}

func TestExerciseProgressToolRequiresExercise(t *testing.T) {
	h := newLocalHandlers(t)

	res, err := h.getExerciseProgress(context.Background(), callTool("get_exercise_progress", map[string]any{}))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("expected tool error without exercise")
	}
}

// TestToolsAreUserScoped verifies the user in the context selects the data.
func TestToolsAreUserScoped(t *testing.T) {
	h := newLocalHandlers(t)

	ctx := WithUserID(context.Background(), 2)
	res, err := h.getSessionHistory(ctx, callTool("get_session_history", map[string]any{}))
	if err != nil {
		t.Fatal(err)
	}
	var page models.Page[models.WorkoutSession]
	if err := json.Unmarshal([]byte(resultText(t, res)), &page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 0 || len(page.Items) != 0 {
		t.Errorf("user 2 sees %d sessions, want 0", page.Total)
	}

	res, err = h.getSessionHistory(context.Background(), callTool("get_session_history", map[string]any{"status": "completed"}))
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(resultText(t, res)), &page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || page.Items[0].Title != "Push" {
		t.Errorf("user 1 history = %+v", page)
	}
}

func TestStrengthLevelTool(t *testing.T) {
	h := newLocalHandlers(t)

	tests := []struct {
		name    string
		args    map[string]any
		wantErr bool
	}{
		{"classified", map[string]any{"exercise": "bench press", "bodyweight_kg": 80.0}, false},
		{"zero bodyweight", map[string]any{"exercise": "bench press", "bodyweight_kg": 0.0}, true},
		{"missing bodyweight", map[string]any{"exercise": "bench press"}, true},
		{"missing exercise", map[string]any{"bodyweight_kg": 80.0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := h.getStrengthLevel(context.Background(), callTool("get_strength_level", tt.args))
			if err != nil {
				t.Fatal(err)
			}
			if res.IsError != tt.wantErr {
				t.Errorf("IsError = %v, want %v (%s)", res.IsError, tt.wantErr, resultText(t, res))
			}
		})
	}
}

func TestEstimateDurationToolRejectsBadID(t *testing.T) {
	h := newLocalHandlers(t)

	res, err := h.estimateWorkoutDuration(context.Background(), callTool("estimate_workout_duration", map[string]any{"day_id": "abc"}))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "UUID") {
		t.Errorf("result = %+v, want UUID error", res)
	}
}

func TestRecentRecordsResource(t *testing.T) {
	h := newLocalHandlers(t)

	var req mcp.ReadResourceRequest
	req.Params.URI = "liftlog://recent_records"
	contents, err := h.recentRecords(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(contents))
	}
	text, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("content = %T", contents[0])
	}
	var records []models.PersonalRecordLog
	if err := json.Unmarshal([]byte(text.Text), &records); err != nil {
		t.Fatal(err)
	}
	if len(records) == 0 {
		t.Error("expected records from the first bench session")
	}
}
