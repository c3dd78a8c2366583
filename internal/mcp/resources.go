package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (h *handlers) weekStatus(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	status, err := h.ds.WeekStatus(ctx, UserIDFromContext(ctx))
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, status)
}

func (h *handlers) recentSessions(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	start := time.Now().AddDate(0, 0, -14)
	page, err := h.ds.SessionHistory(ctx, UserIDFromContext(ctx), HistoryQuery{Start: &start, PageSize: 100})
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, page.Items)
}

func (h *handlers) recentRecords(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	page, err := h.ds.PersonalRecords(ctx, UserIDFromContext(ctx), "", 1, 20)
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, page.Items)
}
