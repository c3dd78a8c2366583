package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/claude/liftlog/internal/analytics"
	"github.com/claude/liftlog/internal/models"
	"github.com/google/uuid"
)

// HTTPClient implements DataSource by calling the liftlog REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// data lives on the remote server (accessed over Tailscale). The server
// identifies the caller, so the userID arguments are ignored.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// Compile-time check: HTTPClient satisfies DataSource.
var _ DataSource = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, body)
	}

	return body, nil
}

// getJSON fetches path and decodes the body into out.
func (c *HTTPClient) getJSON(ctx context.Context, path string, params url.Values, what string, out any) error {
	body, err := c.get(ctx, path, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("httpclient: decode %s: %w", what, err)
	}
	return nil
}

func timeParams(start, end time.Time) url.Values {
	v := url.Values{}
	v.Set("start", start.Format(time.RFC3339))
	v.Set("end", end.Format(time.RFC3339))
	return v
}

func optionalTimeParams(start, end *time.Time) url.Values {
	v := url.Values{}
	if start != nil {
		v.Set("start", start.Format(time.RFC3339))
	}
	if end != nil {
		v.Set("end", end.Format(time.RFC3339))
	}
	return v
}

func pageParams(v url.Values, page, pageSize int) {
	if page > 0 {
		v.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		v.Set("page_size", strconv.Itoa(pageSize))
	}
}

func (c *HTTPClient) ExerciseProgress(ctx context.Context, _ int, exercise string, from, to *time.Time) (*analytics.ExerciseProgress, error) {
	var out analytics.ExerciseProgress
	path := "/api/v1/analytics/exercises/" + url.PathEscape(exercise) + "/progress"
	if err := c.getJSON(ctx, path, optionalTimeParams(from, to), "exercise progress", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) MuscleGroupProgress(ctx context.Context, _ int, group string, from, to *time.Time) (*analytics.MuscleGroupProgress, error) {
	var out analytics.MuscleGroupProgress
	path := "/api/v1/analytics/muscle-groups/" + url.PathEscape(group) + "/progress"
	if err := c.getJSON(ctx, path, optionalTimeParams(from, to), "muscle group progress", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) PersonalRecords(ctx context.Context, _ int, exercise string, page, pageSize int) (*models.Page[models.PersonalRecordLog], error) {
	params := url.Values{}
	if exercise != "" {
		params.Set("exercise", exercise)
	}
	pageParams(params, page, pageSize)

	var out models.Page[models.PersonalRecordLog]
	if err := c.getJSON(ctx, "/api/v1/analytics/records", params, "personal records", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) WorkoutStats(ctx context.Context, _ int, from, to time.Time) (*analytics.WorkoutStats, error) {
	var out analytics.WorkoutStats
	if err := c.getJSON(ctx, "/api/v1/analytics/stats", timeParams(from, to), "workout stats", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) StrengthLevel(ctx context.Context, _ int, exercise string, bodyweightKg float64, gender string) (*analytics.StrengthLevel, error) {
	params := url.Values{}
	params.Set("exercise", exercise)
	params.Set("bodyweight", strconv.FormatFloat(bodyweightKg, 'f', -1, 64))
	if gender != "" {
		params.Set("gender", gender)
	}

	var out analytics.StrengthLevel
	if err := c.getJSON(ctx, "/api/v1/analytics/strength-level", params, "strength level", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) EstimateDuration(ctx context.Context, _ int, dayID uuid.UUID) (*analytics.DurationEstimate, error) {
	var out analytics.DurationEstimate
	if err := c.getJSON(ctx, "/api/v1/analytics/days/"+dayID.String()+"/duration", nil, "duration estimate", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) WeekStatus(ctx context.Context, _ int) (*analytics.WeekStatus, error) {
	var out analytics.WeekStatus
	if err := c.getJSON(ctx, "/api/v1/analytics/week", nil, "week status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) SessionHistory(ctx context.Context, _ int, q HistoryQuery) (*models.Page[models.WorkoutSession], error) {
	params := optionalTimeParams(q.Start, q.End)
	if q.Status != "" {
		params.Set("status", string(q.Status))
	}
	pageParams(params, q.Page, q.PageSize)

	var out models.Page[models.WorkoutSession]
	if err := c.getJSON(ctx, "/api/v1/sessions", params, "session history", &out); err != nil {
		return nil, err
	}
	return &out, nil
}
