// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/evanschultz/pmforge/internal/adapters/server/common"
	"github.com/evanschultz/pmforge/internal/agent"
	"github.com/evanschultz/pmforge/internal/domain"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter exposing the planning tools.
func NewHandler(cfg Config, service common.Service) (*Handler, error) {
	if service == nil {
		return nil, fmt.Errorf("project service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerPlanTools(mcpSrv, service)
	registerReportTools(mcpSrv, service)
	registerProjectTools(mcpSrv, service, service)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "pmforge"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerPlanTools registers `pmforge.generate` and `pmforge.replan`.
func registerPlanTools(srv *mcpserver.MCPServer, plans common.PlanService) {
	srv.AddTool(
		mcp.NewTool(
			"pmforge.generate",
			mcp.WithDescription("Run the planning pipeline for one project and return its manifest."),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project id or slug")),
			mcp.WithString("text", mcp.Description("Extra requirement text placed ahead of stored documents")),
			mcp.WithString("wbs_json", mcp.Description("Optional WBS JSON that replaces the generated WBS")),
			mcp.WithObject("options", mcp.Description("Optional run options (confidence_threshold, estimation_mode, use_risk, ...)")),
			mcp.WithArray("change_requests", mcp.Description("Optional change requests applied after scheduling")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				ProjectID      string                 `json:"project_id"`
				Text           string                 `json:"text"`
				WBSJSON        string                 `json:"wbs_json"`
				Options        agent.Options          `json:"options"`
				ChangeRequests []domain.ChangeRequest `json:"change_requests"`
			}
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			if strings.TrimSpace(args.ProjectID) == "" {
				return mcp.NewToolResultError(`invalid_request: required argument "project_id" not found`), nil
			}
			out, err := plans.Generate(ctx, common.GenerateRequest{
				ProjectID:      args.ProjectID,
				Text:           args.Text,
				WBSJSON:        args.WBSJSON,
				Options:        args.Options,
				ChangeRequests: args.ChangeRequests,
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(out)
			if err != nil {
				return nil, fmt.Errorf("encode generate result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"pmforge.replan",
			mcp.WithDescription("Apply change requests to the latest schedule of one project."),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project id or slug")),
			mcp.WithArray("change_requests", mcp.Required(), mcp.Description("Change requests: {op, task_id, new_duration|predecessor|predecessors|new_name}")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				ProjectID      string                 `json:"project_id"`
				ChangeRequests []domain.ChangeRequest `json:"change_requests"`
			}
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			if strings.TrimSpace(args.ProjectID) == "" {
				return mcp.NewToolResultError(`invalid_request: required argument "project_id" not found`), nil
			}
			out, err := plans.Replan(ctx, common.ReplanRequest{ProjectID: args.ProjectID, ChangeRequests: args.ChangeRequests})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(out)
			if err != nil {
				return nil, fmt.Errorf("encode replan result: %w", err)
			}
			return result, nil
		},
	)
}

// registerReportTools registers the weekly report and risk register tools.
func registerReportTools(srv *mcpserver.MCPServer, reports common.ReportService) {
	srv.AddTool(
		mcp.NewTool(
			"pmforge.weekly_report",
			mcp.WithDescription("Build and store the weekly status report of one project."),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project id or slug")),
			mcp.WithString("week_of", mcp.Description("Any day in the reported week (YYYY-MM-DD); defaults to this week")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			projectID, err := req.RequireString("project_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			out, err := reports.WeeklyReport(ctx, common.WeeklyReportRequest{
				ProjectID: projectID,
				WeekOf:    req.GetString("week_of", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(out)
			if err != nil {
				return nil, fmt.Errorf("encode weekly_report result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"pmforge.list_risks",
			mcp.WithDescription("List the stored risk register of one project."),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project id or slug")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			projectID, err := req.RequireString("project_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			risks, err := reports.ListRisks(ctx, projectID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"risks": risks})
			if err != nil {
				return nil, fmt.Errorf("encode list_risks result: %w", err)
			}
			return result, nil
		},
	)
}

// toolResultFromError maps service errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, common.ErrInvalidRequest):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	case errors.Is(err, common.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	case errors.Is(err, common.ErrPipelineFailed):
		return mcp.NewToolResultError("pipeline_failed: " + err.Error())
	case errors.Is(err, common.ErrUnavailable):
		return mcp.NewToolResultError("not_implemented: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}

// invalidRequestToolResult maps argument binding failures into invalid_request tool errors.
func invalidRequestToolResult(err error) *mcp.CallToolResult {
	if err == nil {
		return mcp.NewToolResultError("invalid_request: malformed arguments")
	}
	return mcp.NewToolResultError("invalid_request: " + err.Error())
}
