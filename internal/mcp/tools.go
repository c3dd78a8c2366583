package mcp

import (
	"context"
	"time"

	"github.com/claude/liftlog/internal/models"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

// defaultTimeRange returns start/end defaulting to the last 7 days.
func defaultTimeRange(startStr, endStr string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if endStr != "" {
		end, err = parseFlexTime(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		end = time.Now()
	}

	if startStr != "" {
		start, err = parseFlexTime(startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		start = end.AddDate(0, 0, -7)
	}

	return start, end, nil
}

// optionalTimeRange parses start/end, leaving absent bounds nil.
func optionalTimeRange(startStr, endStr string) (*time.Time, *time.Time, error) {
	var start, end *time.Time
	if startStr != "" {
		t, err := parseFlexTime(startStr)
		if err != nil {
			return nil, nil, err
		}
		start = &t
	}
	if endStr != "" {
		t, err := parseFlexTime(endStr)
		if err != nil {
			return nil, nil, err
		}
		end = &t
	}
	return start, end, nil
}

func parseFlexTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse("2006-01-02", s)
	if err == nil {
		return t, nil
	}
	return time.Time{}, err
}

func jsonResult(v any) *mcp.CallToolResult {
	result, err := mcp.NewToolResultJSON(v)
	if err != nil {
		return mcp.NewToolResultError("serialization failed")
	}
	return result
}

// --- Tool definitions ---

var toolGetExerciseProgress = mcp.NewTool("get_exercise_progress",
	mcp.WithDescription("Daily progression of one exercise: sets, reps, tonnage, max weight, best estimated 1RM and average RPE per training day, plus the current personal records."),
	mcp.WithString("exercise", mcp.Required(), mcp.Description("Exercise name (case-insensitive, e.g. 'Bench Press')")),
	mcp.WithString("start", mcp.Description("Start date (ISO 8601 or YYYY-MM-DD). Open when omitted.")),
	mcp.WithString("end", mcp.Description("End date, inclusive. Open when omitted.")),
)

var toolGetMuscleGroupProgress = mcp.NewTool("get_muscle_group_progress",
	mcp.WithDescription("Weekly training volume (sets, reps, tonnage, exercises) of one muscle group per ISO week."),
	mcp.WithString("muscle_group", mcp.Required(), mcp.Description("Muscle group (e.g. 'chest', 'legs')")),
	mcp.WithString("start", mcp.Description("Start date. Open when omitted.")),
	mcp.WithString("end", mcp.Description("End date. Open when omitted.")),
)

var toolGetPersonalRecords = mcp.NewTool("get_personal_records",
	mcp.WithDescription("Personal record history, newest first. Each entry has the record type (weight, e1rm, volume, reps at weight), the new and previous values and the improvement in percent."),
	mcp.WithString("exercise", mcp.Description("Filter by exercise name (case-insensitive)")),
	mcp.WithNumber("page", mcp.Description("1-based page. Defaults to 1.")),
	mcp.WithNumber("page_size", mcp.Description("Entries per page. Defaults to 20.")),
)

var toolGetWorkoutStats = mcp.NewTool("get_workout_stats",
	mcp.WithDescription("Totals and averages over a time window: workouts, sets, reps, tonnage, duration, lifetime record count and how often each muscle group was trained."),
	mcp.WithString("start", mcp.Description("Start date. Defaults to 7 days ago.")),
	mcp.WithString("end", mcp.Description("End date. Defaults to now.")),
)

var toolGetStrengthLevel = mcp.NewTool("get_strength_level",
	mcp.WithDescription("Classify the best estimated 1RM of an exercise against bodyweight strength standards (beginner to elite), with the weight needed for the next level."),
	mcp.WithString("exercise", mcp.Required(), mcp.Description("Exercise name (e.g. 'bench press', 'squat', 'deadlift')")),
	mcp.WithNumber("bodyweight_kg", mcp.Required(), mcp.Description("Current bodyweight in kg")),
	mcp.WithString("gender", mcp.Description("Standards table to use. Defaults to 'male'."), mcp.Enum("male", "female")),
)

var toolEstimateWorkoutDuration = mcp.NewTool("estimate_workout_duration",
	mcp.WithDescription("Estimate how long a program day takes, from its prescribed sets and the average rest of recent sessions."),
	mcp.WithString("day_id", mcp.Required(), mcp.Description("Program day UUID")),
)

var toolGetWeekStatus = mcp.NewTool("get_week_status",
	mcp.WithDescription("What was trained this week (Monday start): workout dates, program days performed and the session in progress."),
)

var toolGetSessionHistory = mcp.NewTool("get_session_history",
	mcp.WithDescription("Workout sessions with exercises and sets, newest first."),
	mcp.WithString("status", mcp.Description("Filter by status"), mcp.Enum("in_progress", "completed", "abandoned")),
	mcp.WithString("start", mcp.Description("Sessions started at or after this date")),
	mcp.WithString("end", mcp.Description("Sessions started before this date")),
	mcp.WithNumber("page", mcp.Description("1-based page. Defaults to 1.")),
	mcp.WithNumber("page_size", mcp.Description("Sessions per page. Defaults to 20.")),
)

// --- Tool handlers ---

func (h *handlers) getExerciseProgress(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	exercise, err := req.RequireString("exercise")
	if err != nil {
		return mcp.NewToolResultError("exercise parameter is required"), nil
	}
	start, end, err := optionalTimeRange(req.GetString("start", ""), req.GetString("end", ""))
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	progress, err := h.ds.ExerciseProgress(ctx, UserIDFromContext(ctx), exercise, start, end)
	if err != nil {
		h.log.Error("mcp get_exercise_progress", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(progress), nil
}

func (h *handlers) getMuscleGroupProgress(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	group, err := req.RequireString("muscle_group")
	if err != nil {
		return mcp.NewToolResultError("muscle_group parameter is required"), nil
	}
	start, end, err := optionalTimeRange(req.GetString("start", ""), req.GetString("end", ""))
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	progress, err := h.ds.MuscleGroupProgress(ctx, UserIDFromContext(ctx), group, start, end)
	if err != nil {
		h.log.Error("mcp get_muscle_group_progress", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(progress), nil
}

func (h *handlers) getPersonalRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page, err := h.ds.PersonalRecords(ctx, UserIDFromContext(ctx),
		req.GetString("exercise", ""), req.GetInt("page", 1), req.GetInt("page_size", models.DefaultPageSize))
	if err != nil {
		h.log.Error("mcp get_personal_records", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(page), nil
}

func (h *handlers) getWorkoutStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := defaultTimeRange(req.GetString("start", ""), req.GetString("end", ""))
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	stats, err := h.ds.WorkoutStats(ctx, UserIDFromContext(ctx), start, end)
	if err != nil {
		h.log.Error("mcp get_workout_stats", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(stats), nil
}

func (h *handlers) getStrengthLevel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	exercise, err := req.RequireString("exercise")
	if err != nil {
		return mcp.NewToolResultError("exercise parameter is required"), nil
	}
	bodyweight, err := req.RequireFloat("bodyweight_kg")
	if err != nil || bodyweight <= 0 {
		return mcp.NewToolResultError("bodyweight_kg must be a positive number"), nil
	}

	level, err := h.ds.StrengthLevel(ctx, UserIDFromContext(ctx), exercise, bodyweight, req.GetString("gender", "male"))
	if err != nil {
		h.log.Error("mcp get_strength_level", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(level), nil
}

func (h *handlers) estimateWorkoutDuration(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("day_id")
	if err != nil {
		return mcp.NewToolResultError("day_id parameter is required"), nil
	}
	dayID, err := uuid.Parse(raw)
	if err != nil {
		return mcp.NewToolResultError("day_id must be a UUID"), nil
	}

	estimate, err := h.ds.EstimateDuration(ctx, UserIDFromContext(ctx), dayID)
	if err != nil {
		h.log.Error("mcp estimate_workout_duration", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(estimate), nil
}

func (h *handlers) getWeekStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := h.ds.WeekStatus(ctx, UserIDFromContext(ctx))
	if err != nil {
		h.log.Error("mcp get_week_status", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(status), nil
}

func (h *handlers) getSessionHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := optionalTimeRange(req.GetString("start", ""), req.GetString("end", ""))
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	page, err := h.ds.SessionHistory(ctx, UserIDFromContext(ctx), HistoryQuery{
		Status:   models.SessionStatus(req.GetString("status", "")),
		Start:    start,
		End:      end,
		Page:     req.GetInt("page", 1),
		PageSize: req.GetInt("page_size", models.DefaultPageSize),
	})
	if err != nil {
		h.log.Error("mcp get_session_history", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(page), nil
}
