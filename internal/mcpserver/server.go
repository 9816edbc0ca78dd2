// Package mcpserver exposes the dam queries as an MCP tool and the dam
// records as MCP resources.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mr1hm/go-dam-alerts/internal/compare"
	"github.com/mr1hm/go-dam-alerts/internal/query"
)

// Version is set at build time via ldflags.
var Version = "dev"

const (
	damURIPrefix = "dam://"
	damsListURI  = "dams://list"
	jsonMIMEType = "application/json"
)

type handlers struct {
	queries *query.Service
	dams    query.DamStore
}

// New builds the MCP server with the dam_monitor tool and the dam resources.
func New(queries *query.Service, dams query.DamStore) *server.MCPServer {
	h := &handlers{queries: queries, dams: dams}

	s := server.NewMCPServer(
		"Keralam AI Server",
		Version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
	)

	s.AddTool(damMonitorTool(), h.handleDamMonitor)
	s.AddResourceTemplate(damTemplate(), h.handleDam)
	s.AddResource(damsListResource(), h.handleDamsList)

	return s
}

func damMonitorTool() mcp.Tool {
	metrics := make([]string, 0, len(compare.Metrics()))
	for _, m := range compare.Metrics() {
		metrics = append(metrics, string(m))
	}

	return mcp.NewTool("dam_monitor",
		mcp.WithDescription("Monitor dam data and provide insights on water levels, storage, inflow and outflow"),
		mcp.WithString("action",
			mcp.Description("get_dam: details of one dam; list_all: all dams with current status; "+
				"check_alerts: dams at alert levels; compare: compare two dams on a metric"),
			mcp.Enum(query.ActionGetDam, query.ActionListAll, query.ActionCheckAlerts, query.ActionCompare),
			mcp.DefaultString(query.ActionListAll),
		),
		mcp.WithString("dam_id",
			mcp.Description("ID of the dam (required for get_dam and compare)"),
		),
		mcp.WithString("second_dam_id",
			mcp.Description("ID of the second dam (required for compare)"),
		),
		mcp.WithString("metric",
			mcp.Description("Metric to compare (required for compare)"),
			mcp.Enum(metrics...),
		),
	)
}

func (h *handlers) handleDamMonitor(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := h.queries.Dispatch(ctx, query.Request{
		Action:      req.GetString("action", query.ActionListAll),
		DamID:       req.GetString("dam_id", ""),
		SecondDamID: req.GetString("second_dam_id", ""),
		Metric:      req.GetString("metric", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(out), nil
}

func damTemplate() mcp.ResourceTemplate {
	return mcp.NewResourceTemplate(damURIPrefix+"{dam_id}", "Dam",
		mcp.WithTemplateDescription("Dam information with its full reading history"),
		mcp.WithTemplateMIMEType(jsonMIMEType),
	)
}

func (h *handlers) handleDam(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	id := strings.TrimPrefix(req.Params.URI, damURIPrefix)
	if id == "" || id == req.Params.URI {
		return nil, fmt.Errorf("invalid dam resource URI: %q", req.Params.URI)
	}

	d, err := h.dams.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, d)
}

func damsListResource() mcp.Resource {
	return mcp.NewResource(damsListURI, "All dams",
		mcp.WithResourceDescription("Every monitored dam with its reading history"),
		mcp.WithMIMEType(jsonMIMEType),
	)
}

func (h *handlers) handleDamsList(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	dams, err := h.dams.All(ctx)
	if err != nil {
		return nil, err
	}
	return jsonContents(damsListURI, dams)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("error encoding %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: jsonMIMEType,
			Text:     string(b),
		},
	}, nil
}
