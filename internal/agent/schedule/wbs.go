package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/evanschultz/pmforge/internal/agent"
	"github.com/evanschultz/pmforge/internal/agent/scope"
	"github.com/evanschultz/pmforge/internal/domain"
	"github.com/evanschultz/pmforge/internal/llm"
	"github.com/evanschultz/pmforge/internal/prompt"
)

// WBS sources reported in logs.
const (
	WBSFromJSON     = "json"
	WBSFromFile     = "file"
	WBSFromScope    = "scope"
	WBSFromLLM      = "llm"
	WBSFromFallback = "fallback"
)

const (
	defaultWBSDepth = 3
	maxWBSFileBytes = 8 << 20
)

// ParseWBS decodes a WBS from JSON or YAML. It accepts {"nodes": [...]} or a bare node list.
// Missing or duplicate ids are renumbered into dotted paths.
func ParseWBS(data []byte, yamlInput bool) (domain.WBS, error) {
	if yamlInput {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return domain.WBS{}, fmt.Errorf("decode wbs yaml: %w", err)
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return domain.WBS{}, fmt.Errorf("convert wbs yaml: %w", err)
		}
		data = converted
	}
	trimmed := strings.TrimSpace(string(data))
	var w domain.WBS
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &w.Nodes); err != nil {
			return domain.WBS{}, fmt.Errorf("decode wbs: %w", err)
		}
	} else if err := json.Unmarshal([]byte(trimmed), &w); err != nil {
		return domain.WBS{}, fmt.Errorf("decode wbs: %w", err)
	}
	if len(w.Nodes) == 0 {
		return domain.WBS{}, fmt.Errorf("%w: no nodes", domain.ErrInvalidWBS)
	}
	if needsRenumber(w) {
		w.Renumber()
	}
	return w, nil
}

func needsRenumber(w domain.WBS) bool {
	seen := map[string]struct{}{}
	for _, n := range w.Flatten() {
		id := strings.TrimSpace(n.ID)
		if id == "" {
			return true
		}
		if _, dup := seen[id]; dup {
			return true
		}
		seen[id] = struct{}{}
	}
	return false
}

// ReadWBSFile loads a .json, .yaml, or .yml WBS file.
func ReadWBSFile(path string) (domain.WBS, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.WBS{}, fmt.Errorf("stat wbs: %w", err)
	}
	if info.Size() > maxWBSFileBytes {
		return domain.WBS{}, fmt.Errorf("wbs file %s exceeds %d bytes", path, maxWBSFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.WBS{}, fmt.Errorf("read wbs: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	return ParseWBS(data, ext == ".yaml" || ext == ".yml")
}

// loadWBS resolves the WBS from, in order: inline JSON, a file path, the scope result, or a
// synthesis from requirements. Synthesis falls back to the three-phase draft.
func (a *Agent) loadWBS(ctx context.Context, in agent.Payload, methodology domain.Methodology, logger *log.Logger) (domain.WBS, string, []string) {
	var warnings []string
	warn := func(msg string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s: %v", msg, err))
		logger.Warn(msg, "err", err)
	}

	if raw := strings.TrimSpace(in.WBSJSON); raw != "" {
		w, err := ParseWBS([]byte(raw), !strings.HasPrefix(raw, "{") && !strings.HasPrefix(raw, "["))
		if err == nil {
			return w, WBSFromJSON, warnings
		}
		warn("inline wbs unusable", err)
	}
	if path := strings.TrimSpace(in.WBSPath); path != "" {
		w, err := ReadWBSFile(path)
		if err == nil {
			return w, WBSFromFile, warnings
		}
		warn("wbs file unusable", err)
	}
	if in.Scope != nil && len(in.Scope.WBS.Nodes) > 0 {
		return in.Scope.WBS.Clone(), WBSFromScope, warnings
	}

	reqs := in.Requirements()
	if len(reqs) == 0 && strings.TrimSpace(in.RequirementsPath) != "" {
		loaded, err := readRequirements(in.RequirementsPath)
		if err != nil {
			warn("requirements file unusable", err)
		}
		reqs = loaded
	}
	depth := in.Options.WBSDepth
	if depth < 1 {
		depth = defaultWBSDepth
	}
	if len(reqs) > 0 && a.caller.Available() {
		w, err := a.synthesizeWBS(ctx, methodology, depth, reqs)
		if err == nil {
			w.ProjectID = in.ProjectID
			w.Methodology = methodology
			return w, WBSFromLLM, warnings
		}
		warn("wbs synthesis failed; using three-phase draft", err)
	}
	return scope.DraftWBS(in.ProjectID, methodology, reqs, depth), WBSFromFallback, warnings
}

func (a *Agent) synthesizeWBS(ctx context.Context, methodology domain.Methodology, depth int, reqs []domain.Requirement) (domain.WBS, error) {
	raw, _, err := a.caller.TextWithRetry(ctx, prompt.WBSSynthesis(methodology, depth, reqs))
	if err != nil {
		return domain.WBS{}, err
	}
	obj := llm.ExtractJSON(raw)
	if obj == "" {
		obj = llm.ExtractJSONArray(raw)
	}
	if obj == "" {
		return domain.WBS{}, llm.ErrNoJSON
	}
	return ParseWBS([]byte(obj), false)
}

func readRequirements(path string) ([]domain.Requirement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read requirements: %w", err)
	}
	cat, err := scope.ParseCatalogue(string(data))
	if err != nil {
		return nil, fmt.Errorf("decode requirements: %w", err)
	}
	return cat.Requirements, nil
}

// tasksFromWBS flattens w depth-first into schedule tasks, keeping explicit durations.
func tasksFromWBS(w domain.WBS) []domain.ScheduleTask {
	flat := w.Flatten()
	out := make([]domain.ScheduleTask, 0, len(flat))
	for _, n := range flat {
		out = append(out, domain.ScheduleTask{
			ID:           n.ID,
			Name:         n.Name,
			ParentID:     n.ParentID,
			Level:        n.Level,
			Duration:     max(n.DurationDays, 0),
			Predecessors: append([]string{}, n.Predecessors...),
		})
	}
	return out
}

// linkHierarchy adds parent -> child edges when no task declares any predecessor.
func linkHierarchy(tasks []domain.ScheduleTask) bool {
	for _, t := range tasks {
		if len(t.Predecessors) > 0 {
			return false
		}
	}
	linked := false
	for i := range tasks {
		if tasks[i].ParentID != "" {
			tasks[i].Predecessors = []string{tasks[i].ParentID}
			linked = true
		}
	}
	return linked
}
