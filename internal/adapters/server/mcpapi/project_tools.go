package mcpapi

import (
	"context"
	"fmt"
	"strings"

	"github.com/evanschultz/pmforge/internal/adapters/server/common"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// registerProjectTools registers project and document tools.
func registerProjectTools(srv *mcpserver.MCPServer, projects common.ProjectService, documents common.DocumentService) {
	srv.AddTool(
		mcp.NewTool(
			"pmforge.list_projects",
			mcp.WithDescription("List projects."),
			mcp.WithBoolean("include_archived", mcp.Description("Include archived projects")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			rows, err := projects.ListProjects(ctx, req.GetBool("include_archived", false))
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"projects": rows})
			if err != nil {
				return nil, fmt.Errorf("encode list_projects result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"pmforge.create_project",
			mcp.WithDescription("Create one project."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Project name")),
			mcp.WithString("description", mcp.Description("Project description")),
			mcp.WithString("methodology", mcp.Description("Delivery model"), mcp.Enum("waterfall", "agile")),
			mcp.WithString("owner", mcp.Description("Project owner")),
			mcp.WithString("client", mcp.Description("Client name")),
			mcp.WithArray("tags", mcp.Description("Optional tags"), mcp.WithStringItems()),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args common.CreateProjectRequest
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			if strings.TrimSpace(args.Name) == "" {
				return mcp.NewToolResultError(`invalid_request: required argument "name" not found`), nil
			}
			project, err := projects.CreateProject(ctx, args)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(project)
			if err != nil {
				return nil, fmt.Errorf("encode create_project result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"pmforge.add_document",
			mcp.WithDescription("Store one project document. Meeting minutes also yield action items."),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project id or slug")),
			mcp.WithString("kind", mcp.Required(), mcp.Description("Document kind"), mcp.Enum("rfp", "proposal", "meeting", "issue")),
			mcp.WithString("text", mcp.Required(), mcp.Description("Document text")),
			mcp.WithString("title", mcp.Description("Optional title")),
			mcp.WithString("source", mcp.Description("Optional source path or url")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			projectID, err := req.RequireString("project_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			kind, err := req.RequireString("kind")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			text, err := req.RequireString("text")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			out, err := documents.AddDocument(ctx, common.AddDocumentRequest{
				ProjectID: projectID,
				Kind:      kind,
				Title:     req.GetString("title", ""),
				Text:      text,
				Source:    req.GetString("source", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(out)
			if err != nil {
				return nil, fmt.Errorf("encode add_document result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"pmforge.list_action_items",
			mcp.WithDescription("List action items of one project, open items first."),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project id or slug")),
			mcp.WithBoolean("include_done", mcp.Description("Include completed items")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			projectID, err := req.RequireString("project_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			items, err := documents.ListActionItems(ctx, projectID, req.GetBool("include_done", false))
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{"action_items": items})
			if err != nil {
				return nil, fmt.Errorf("encode list_action_items result: %w", err)
			}
			return result, nil
		},
	)
}
