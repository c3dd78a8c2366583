package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type contextKey int

const userIDKey contextKey = iota

// UserIDFromContext extracts the user ID injected by the transport layer.
func UserIDFromContext(ctx context.Context) int {
	if id, ok := ctx.Value(userIDKey).(int); ok {
		return id
	}
	return 1
}

// WithUserID returns a context with the given user ID.
func WithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// New creates an MCP server with all tools and resources registered.
func New(ds DataSource, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("liftlog", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("liftlog strength training server. Query exercise progress, personal records, weekly volume, strength levels and session history. All data is scoped to the authenticated user."),
	)

	h := &handlers{ds: ds, log: log}

	// Tools
	s.AddTools(
		server.ServerTool{Tool: toolGetExerciseProgress, Handler: h.getExerciseProgress},
		server.ServerTool{Tool: toolGetMuscleGroupProgress, Handler: h.getMuscleGroupProgress},
		server.ServerTool{Tool: toolGetPersonalRecords, Handler: h.getPersonalRecords},
		server.ServerTool{Tool: toolGetWorkoutStats, Handler: h.getWorkoutStats},
		server.ServerTool{Tool: toolGetStrengthLevel, Handler: h.getStrengthLevel},
		server.ServerTool{Tool: toolEstimateWorkoutDuration, Handler: h.estimateWorkoutDuration},
		server.ServerTool{Tool: toolGetWeekStatus, Handler: h.getWeekStatus},
		server.ServerTool{Tool: toolGetSessionHistory, Handler: h.getSessionHistory},
	)

	// Resources
	s.AddResources(
		server.ServerResource{Resource: resWeekStatus, Handler: h.weekStatus},
		server.ServerResource{Resource: resRecentSessions, Handler: h.recentSessions},
		server.ServerResource{Resource: resRecentRecords, Handler: h.recentRecords},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds  DataSource
	log *slog.Logger
}

// --- Resource definitions ---

var resWeekStatus = mcp.NewResource(
	"liftlog://week_status",
	"Week Status",
	mcp.WithResourceDescription("Workout days and program days performed in the current ISO week, plus the session in progress"),
	mcp.WithMIMEType("application/json"),
)

var resRecentSessions = mcp.NewResource(
	"liftlog://recent_sessions",
	"Recent Sessions",
	mcp.WithResourceDescription("Sessions started in the last 14 days"),
	mcp.WithMIMEType("application/json"),
)

var resRecentRecords = mcp.NewResource(
	"liftlog://recent_records",
	"Recent Personal Records",
	mcp.WithResourceDescription("The 20 most recent personal records across all exercises"),
	mcp.WithMIMEType("application/json"),
)
