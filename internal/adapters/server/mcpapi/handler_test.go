package mcpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/evanschultz/pmforge/internal/adapters/server/common"
	"github.com/evanschultz/pmforge/internal/agent"
	"github.com/evanschultz/pmforge/internal/domain"
	"github.com/evanschultz/pmforge/internal/planner"
	"github.com/mark3labs/mcp-go/mcp"
)

// stubService provides deterministic service responses for MCP tool tests.
type stubService struct {
	projects            []domain.Project
	risks               []domain.Risk
	err                 error
	lastIncludeArchived bool
	lastCreate          common.CreateProjectRequest
	lastDocument        common.AddDocumentRequest
	lastGenerate        common.GenerateRequest
	lastReplan          common.ReplanRequest
	lastReport          common.WeeklyReportRequest
}

func (s *stubService) ListProjects(_ context.Context, includeArchived bool) ([]domain.Project, error) {
	s.lastIncludeArchived = includeArchived
	if s.err != nil {
		return nil, s.err
	}
	return append([]domain.Project(nil), s.projects...), nil
}

func (s *stubService) GetProject(_ context.Context, ref string) (domain.Project, error) {
	return domain.Project{ID: ref}, s.err
}

func (s *stubService) CreateProject(_ context.Context, req common.CreateProjectRequest) (domain.Project, error) {
	s.lastCreate = req
	if s.err != nil {
		return domain.Project{}, s.err
	}
	return domain.Project{ID: "p1", Name: req.Name}, nil
}

func (s *stubService) AddDocument(_ context.Context, req common.AddDocumentRequest) (common.DocumentResult, error) {
	s.lastDocument = req
	if s.err != nil {
		return common.DocumentResult{}, s.err
	}
	return common.DocumentResult{
		Status:      common.StatusOK,
		ActionItems: []domain.ActionItem{{ID: "a1", ProjectID: req.ProjectID, Task: "send the budget draft"}},
	}, nil
}

func (s *stubService) ListActionItems(context.Context, string, bool) ([]domain.ActionItem, error) {
	return nil, s.err
}

func (s *stubService) Generate(_ context.Context, req common.GenerateRequest) (common.GenerateResult, error) {
	s.lastGenerate = req
	if s.err != nil {
		return common.GenerateResult{}, s.err
	}
	return common.GenerateResult{
		Status:       common.StatusOK,
		Message:      "plan generated with 3 step(s)",
		ManifestPath: "/data/outputs/" + req.ProjectID + "/proposal_manifest.json",
		Manifest:     &planner.Manifest{ProjectID: req.ProjectID},
	}, nil
}

func (s *stubService) Replan(_ context.Context, req common.ReplanRequest) (common.ReplanResult, error) {
	s.lastReplan = req
	if s.err != nil {
		return common.ReplanResult{}, s.err
	}
	return common.ReplanResult{Status: common.StatusOK, Schedule: agent.ScheduleOutput{ProjectFinish: 9, Revised: true}}, nil
}

func (s *stubService) LatestSchedule(context.Context, string) (agent.ScheduleOutput, error) {
	return agent.ScheduleOutput{}, s.err
}

func (s *stubService) WeeklyReport(_ context.Context, req common.WeeklyReportRequest) (common.ReportResult, error) {
	s.lastReport = req
	if s.err != nil {
		return common.ReportResult{}, s.err
	}
	return common.ReportResult{Status: common.StatusOK, Report: domain.WeeklyReport{ID: "w1", ProjectID: req.ProjectID}}, nil
}

func (s *stubService) ListWeeklyReports(context.Context, string) ([]domain.WeeklyReport, error) {
	return nil, s.err
}

func (s *stubService) ListRisks(context.Context, string) ([]domain.Risk, error) {
	return s.risks, s.err
}

func (s *stubService) ListLogs(context.Context, string, int) ([]domain.LogEntry, error) {
	return nil, s.err
}

// jsonRPCResponse models minimal JSON-RPC response fields used in MCP adapter tests.
type jsonRPCResponse struct {
	ID     float64        `json:"id"`
	Result map[string]any `json:"result"`
}

// callToolRequest constructs one deterministic tools/call JSON-RPC request payload.
func callToolRequest(id int, toolName string, arguments map[string]any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      toolName,
			"arguments": arguments,
		},
	}
}

// toolResultText decodes the first text entry from one tool-call result payload.
func toolResultText(t *testing.T, result map[string]any) string {
	t.Helper()

	contentRaw, ok := result["content"].([]any)
	if !ok || len(contentRaw) == 0 {
		t.Fatalf("content missing in tool result: %#v", result)
	}
	first, ok := contentRaw[0].(map[string]any)
	if !ok {
		t.Fatalf("first content entry has unexpected type: %#v", contentRaw[0])
	}
	text, ok := first["text"].(string)
	if !ok {
		t.Fatalf("content text missing in tool result: %#v", first)
	}
	return text
}

// toolResultStructured decodes structuredContent as one map for stable assertions.
func toolResultStructured(t *testing.T, result map[string]any) map[string]any {
	t.Helper()
	structured, ok := result["structuredContent"].(map[string]any)
	if !ok {
		t.Fatalf("structuredContent missing in tool result: %#v", result)
	}
	return structured
}

// postJSONRPC sends one JSON-RPC payload and decodes the response body.
func postJSONRPC(t *testing.T, client *http.Client, url string, payload any) (*http.Response, jsonRPCResponse) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	var decoded jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if err := resp.Body.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return resp, decoded
}

// initializeRequest builds a deterministic MCP initialize request payload.
func initializeRequest() map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
		"params": map[string]any{
			"protocolVersion": mcp.LATEST_PROTOCOL_VERSION,
			"clientInfo": map[string]any{
				"name":    "pmforge-test",
				"version": "1.0.0",
			},
		},
	}
}

// startServer wraps one handler in an httptest server and runs initialize.
func startServer(t *testing.T, svc common.Service) *httptest.Server {
	t.Helper()
	handler, err := NewHandler(Config{}, svc)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	_, _ = postJSONRPC(t, server.Client(), server.URL, initializeRequest())
	return server
}

// TestHandlerUsesStatelessTransport verifies MCP transport does not issue session ids.
func TestHandlerUsesStatelessTransport(t *testing.T) {
	handler, err := NewHandler(Config{}, &stubService{})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	server := httptest.NewServer(handler)
	defer server.Close()

	resp, decoded := postJSONRPC(t, server.Client(), server.URL, initializeRequest())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if decoded.ID != 1 {
		t.Fatalf("id = %v, want 1", decoded.ID)
	}
	if got := resp.Header.Get("Mcp-Session-Id"); got != "" {
		t.Fatalf("Mcp-Session-Id header = %q, want empty (stateless transport)", got)
	}
}

// TestNewHandlerRequiresService verifies construction fails without a backing service.
func TestNewHandlerRequiresService(t *testing.T) {
	if _, err := NewHandler(Config{}, nil); err == nil {
		t.Fatal("NewHandler(nil) error = nil, want error")
	}
}

// TestHandlerRegistersPlanningTools verifies tool discovery lists the planning surface.
func TestHandlerRegistersPlanningTools(t *testing.T) {
	server := startServer(t, &stubService{})
	_, toolsResp := postJSONRPC(t, server.Client(), server.URL, map[string]any{
		"jsonrpc": "2.0",
		"id":      2,
		"method":  "tools/list",
	})

	toolsRaw, ok := toolsResp.Result["tools"].([]any)
	if !ok {
		t.Fatalf("tools list payload missing tools: %#v", toolsResp.Result)
	}
	toolNames := make([]string, 0, len(toolsRaw))
	for _, toolRaw := range toolsRaw {
		toolMap, ok := toolRaw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := toolMap["name"].(string)
		toolNames = append(toolNames, name)
	}
	for _, required := range []string{
		"pmforge.generate",
		"pmforge.replan",
		"pmforge.weekly_report",
		"pmforge.list_projects",
		"pmforge.create_project",
		"pmforge.add_document",
		"pmforge.list_risks",
	} {
		if !slices.Contains(toolNames, required) {
			t.Fatalf("tool list missing %q: %#v", required, toolNames)
		}
	}
}

// TestGenerateToolForwardsArguments verifies generate arguments and the structured manifest result.
func TestGenerateToolForwardsArguments(t *testing.T) {
	svc := &stubService{}
	server := startServer(t, svc)

	_, callResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(3, "pmforge.generate", map[string]any{
		"project_id": "p1",
		"text":       "The system shall export invoices.",
		"options":    map[string]any{"estimation_mode": "llm", "sprint_length_weeks": 3},
		"change_requests": []any{
			map[string]any{"op": "update_duration", "task_id": "B", "new_duration": 4},
		},
	}))
	structured := toolResultStructured(t, callResp.Result)
	if structured["status"] != common.StatusOK {
		t.Fatalf("status = %#v, want ok", structured["status"])
	}
	if path, _ := structured["manifest_path"].(string); !strings.HasSuffix(path, "proposal_manifest.json") {
		t.Fatalf("manifest_path = %q", path)
	}
	if svc.lastGenerate.Options.EstimationMode != "llm" || svc.lastGenerate.Options.SprintLengthWeeks != 3 {
		t.Fatalf("options not forwarded: %#v", svc.lastGenerate.Options)
	}
	if len(svc.lastGenerate.ChangeRequests) != 1 {
		t.Fatalf("change requests = %#v, want one", svc.lastGenerate.ChangeRequests)
	}
	cr := svc.lastGenerate.ChangeRequests[0]
	if cr.Op != domain.ChangeOpUpdateDuration || cr.NewDuration == nil || *cr.NewDuration != 4 {
		t.Fatalf("unexpected change request %#v", cr)
	}
}

// TestGenerateToolRequiresProjectID verifies missing arguments fail as invalid requests.
func TestGenerateToolRequiresProjectID(t *testing.T) {
	server := startServer(t, &stubService{})
	_, resp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(3, "pmforge.generate", map[string]any{}))
	if isError, _ := resp.Result["isError"].(bool); !isError {
		t.Fatalf("isError = %v, want true", resp.Result["isError"])
	}
	if got := toolResultText(t, resp.Result); !strings.Contains(got, `required argument "project_id" not found`) {
		t.Fatalf("tool error = %q", got)
	}
}

// TestReplanToolMapsErrors verifies service errors surface with stable prefixes.
func TestReplanToolMapsErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantPrefix string
	}{
		{name: "no schedule", err: errors.Join(common.ErrNotFound, errors.New("no schedule snapshot")), wantPrefix: "not_found:"},
		{name: "empty change set", err: errors.Join(common.ErrInvalidRequest, errors.New("no change requests")), wantPrefix: "invalid_request:"},
		{name: "pipeline", err: errors.Join(common.ErrPipelineFailed, errors.New("scope")), wantPrefix: "pipeline_failed:"},
		{name: "internal", err: errors.New("boom"), wantPrefix: "internal_error:"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			server := startServer(t, &stubService{err: tt.err})
			_, resp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(3, "pmforge.replan", map[string]any{
				"project_id":      "p1",
				"change_requests": []any{map[string]any{"op": "add_pred", "task_id": "C", "predecessor": "B"}},
			}))
			if isError, _ := resp.Result["isError"].(bool); !isError {
				t.Fatalf("isError = %v, want true", resp.Result["isError"])
			}
			if got := toolResultText(t, resp.Result); !strings.HasPrefix(got, tt.wantPrefix) {
				t.Fatalf("tool error = %q, want prefix %q", got, tt.wantPrefix)
			}
		})
	}
}

// TestWeeklyReportAndProjectTools verifies report and project tool wiring.
func TestWeeklyReportAndProjectTools(t *testing.T) {
	now := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	svc := &stubService{projects: []domain.Project{{ID: "p1", Slug: "payments-portal", Name: "Payments Portal", CreatedAt: now, UpdatedAt: now}}}
	server := startServer(t, svc)

	_, reportResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(3, "pmforge.weekly_report", map[string]any{
		"project_id": "p1",
		"week_of":    "2026-03-04",
	}))
	structured := toolResultStructured(t, reportResp.Result)
	if structured["status"] != common.StatusOK {
		t.Fatalf("status = %#v, want ok", structured["status"])
	}
	if svc.lastReport.WeekOf != "2026-03-04" {
		t.Fatalf("week_of = %q, want 2026-03-04", svc.lastReport.WeekOf)
	}

	_, listResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(4, "pmforge.list_projects", map[string]any{
		"include_archived": true,
	}))
	projectsRaw, ok := toolResultStructured(t, listResp.Result)["projects"].([]any)
	if !ok || len(projectsRaw) != 1 {
		t.Fatalf("projects = %#v, want one row", projectsRaw)
	}
	if !svc.lastIncludeArchived {
		t.Fatalf("include_archived = false, want true")
	}

	_, docResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(5, "pmforge.add_document", map[string]any{
		"project_id": "p1",
		"kind":       "meeting",
		"text":       "ACTION: send the budget draft @dana",
	}))
	items, ok := toolResultStructured(t, docResp.Result)["action_items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("action_items = %#v, want one", items)
	}
	if svc.lastDocument.Kind != "meeting" {
		t.Fatalf("kind = %q, want meeting", svc.lastDocument.Kind)
	}
}

// TestNormalizeConfigDefaults verifies deterministic config defaults.
func TestNormalizeConfigDefaults(t *testing.T) {
	got := normalizeConfig(Config{EndpointPath: "tools/mcp/"})
	if got.ServerName != "pmforge" || got.ServerVersion != "dev" {
		t.Fatalf("unexpected defaults %#v", got)
	}
	if got.EndpointPath != "/tools/mcp" {
		t.Fatalf("endpoint = %q, want /tools/mcp", got.EndpointPath)
	}
}
