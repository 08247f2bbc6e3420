// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/evanschultz/pmforge/internal/adapters/server/common"
	"github.com/evanschultz/pmforge/internal/planner"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	service common.Service
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Error   APIError `json:"error"`
}

// ListEnvelope wraps one list response.
type ListEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Count   int    `json:"count"`
	Items   any    `json:"items"`
}

// ItemEnvelope wraps one single-record response.
type ItemEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Item    any    `json:"item"`
}

// NewHandler constructs one HTTP API adapter over the transport service.
func NewHandler(service common.Service) *Handler {
	return &Handler{service: service}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "project service is not configured",
		})
		return
	}
	path := normalizePath(r.URL.Path)
	if path == "projects" {
		switch r.Method {
		case http.MethodGet:
			h.handleListProjects(w, r)
		case http.MethodPost:
			h.handleCreateProject(w, r)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
		return
	}

	ref, sub, ok := resolveProjectRoute(path)
	if !ok {
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
		return
	}
	switch sub {
	case "":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleGetProject(w, r, ref)
	case "documents":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleAddDocument(w, r, ref)
	case "action_items":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleListActionItems(w, r, ref)
	case "generate":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleGenerate(w, r, ref)
	case "replan":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleReplan(w, r, ref)
	case "schedule":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleSchedule(w, r, ref)
	case "risks":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleListRisks(w, r, ref)
	case "reports":
		switch r.Method {
		case http.MethodGet:
			h.handleListReports(w, r, ref)
		case http.MethodPost:
			h.handleWeeklyReport(w, r, ref)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case "logs":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		h.handleListLogs(w, r, ref)
	default:
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
	}
}

// handleListProjects serves GET `/projects`.
func (h *Handler) handleListProjects(w http.ResponseWriter, r *http.Request) {
	includeArchived, err := queryBool(r, "include_archived")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	projects, err := h.service.ListProjects(r.Context(), includeArchived)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeList(w, "projects", projects, len(projects))
}

// handleCreateProject serves POST `/projects`.
func (h *Handler) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req common.CreateProjectRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	project, err := h.service.CreateProject(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ItemEnvelope{Status: common.StatusOK, Message: "project created", Item: project})
}

// handleGetProject serves GET `/projects/{ref}`.
func (h *Handler) handleGetProject(w http.ResponseWriter, r *http.Request, ref string) {
	project, err := h.service.GetProject(r.Context(), ref)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ItemEnvelope{Status: common.StatusOK, Message: project.Name, Item: project})
}

// handleAddDocument serves POST `/projects/{ref}/documents`.
func (h *Handler) handleAddDocument(w http.ResponseWriter, r *http.Request, ref string) {
	var req common.AddDocumentRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ProjectID = ref
	out, err := h.service.AddDocument(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// handleListActionItems serves GET `/projects/{ref}/action_items`.
func (h *Handler) handleListActionItems(w http.ResponseWriter, r *http.Request, ref string) {
	includeDone, err := queryBool(r, "include_done")
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	items, err := h.service.ListActionItems(r.Context(), ref, includeDone)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeList(w, "action items", items, len(items))
}

// handleGenerate serves POST `/projects/{ref}/generate`. The body is optional.
func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request, ref string) {
	var req common.GenerateRequest
	if err := decodeOptionalJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ProjectID = ref
	out, err := h.service.Generate(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleReplan serves POST `/projects/{ref}/replan`.
func (h *Handler) handleReplan(w http.ResponseWriter, r *http.Request, ref string) {
	var req common.ReplanRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ProjectID = ref
	out, err := h.service.Replan(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSchedule serves GET `/projects/{ref}/schedule`.
func (h *Handler) handleSchedule(w http.ResponseWriter, r *http.Request, ref string) {
	out, err := h.service.LatestSchedule(r.Context(), ref)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	status := common.StatusOK
	if out.Degraded {
		status = common.StatusDegraded
	}
	writeJSON(w, http.StatusOK, ItemEnvelope{
		Status:  status,
		Message: fmt.Sprintf("finish day %d", out.ProjectFinish),
		Item:    out,
	})
}

// handleListRisks serves GET `/projects/{ref}/risks`.
func (h *Handler) handleListRisks(w http.ResponseWriter, r *http.Request, ref string) {
	risks, err := h.service.ListRisks(r.Context(), ref)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeList(w, "risks", risks, len(risks))
}

// handleListReports serves GET `/projects/{ref}/reports`.
func (h *Handler) handleListReports(w http.ResponseWriter, r *http.Request, ref string) {
	reports, err := h.service.ListWeeklyReports(r.Context(), ref)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeList(w, "weekly reports", reports, len(reports))
}

// handleWeeklyReport serves POST `/projects/{ref}/reports`. The body is optional.
func (h *Handler) handleWeeklyReport(w http.ResponseWriter, r *http.Request, ref string) {
	var req common.WeeklyReportRequest
	if err := decodeOptionalJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.ProjectID = ref
	out, err := h.service.WeeklyReport(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// handleListLogs serves GET `/projects/{ref}/logs`.
func (h *Handler) handleListLogs(w http.ResponseWriter, r *http.Request, ref string) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeErrorFrom(w, fmt.Errorf("limit must be a non-negative integer: %w", common.ErrInvalidRequest))
			return
		}
		limit = n
	}
	entries, err := h.service.ListLogs(r.Context(), ref, limit)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeList(w, "log entries", entries, len(entries))
}

// resolveProjectRoute splits `projects/{ref}[/{sub}]` paths.
func resolveProjectRoute(path string) (string, string, bool) {
	rest, ok := strings.CutPrefix(path, "projects/")
	if !ok {
		return "", "", false
	}
	ref, sub, _ := strings.Cut(rest, "/")
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.Contains(sub, "/") {
		return "", "", false
	}
	return ref, sub, true
}

func queryBool(r *http.Request, key string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, common.ErrInvalidRequest)
	}
	return v, nil
}

// normalizePath canonicalizes one request path for route matching.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	return path
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	var stepErr *planner.StepError
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, common.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrInvalidRequest):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrPipelineFailed):
		apiErr := APIError{
			Code:    "pipeline_failed",
			Message: err.Error(),
			Hint:    "Check the project documents and retry; the step log lists the failure.",
		}
		if errors.As(err, &stepErr) {
			apiErr.Context = map[string]any{"step_id": stepErr.StepID}
		}
		writeJSONError(w, http.StatusUnprocessableEntity, apiErr)
	case errors.Is(err, common.ErrUnavailable):
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: err.Error(),
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Status: common.StatusError, Message: apiErr.Message, Error: apiErr})
}

func writeList(w http.ResponseWriter, what string, items any, count int) {
	writeJSON(w, http.StatusOK, ListEnvelope{
		Status:  common.StatusOK,
		Message: fmt.Sprintf("%d %s", count, what),
		Count:   count,
		Items:   items,
	})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"status":"error","message":%q}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}

// decodeOptionalJSONBody decodes one optional JSON body and ignores empty payloads.
func decodeOptionalJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(out)
	if err == nil {
		select {
		case <-ctx.Done():
			return fmt.Errorf("request canceled: %w", ctx.Err())
		default:
			return nil
		}
	}
	if errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
}
