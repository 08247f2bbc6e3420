package domain

import (
	"encoding/json"
	"slices"
	"strings"
)

// ChangeOp names one change-request operation.
type ChangeOp string

// ChangeOp values.
const (
	ChangeOpUpdateDuration  ChangeOp = "update_duration"
	ChangeOpAddPred         ChangeOp = "add_pred"
	ChangeOpRemovePred      ChangeOp = "remove_pred"
	ChangeOpSetPredecessors ChangeOp = "set_predecessors"
	ChangeOpUpdateName      ChangeOp = "update_name"
)

var validChangeOps = []ChangeOp{
	ChangeOpUpdateDuration,
	ChangeOpAddPred,
	ChangeOpRemovePred,
	ChangeOpSetPredecessors,
	ChangeOpUpdateName,
}

// IsValidChangeOp reports whether op is supported.
func IsValidChangeOp(op ChangeOp) bool {
	return slices.Contains(validChangeOps, op)
}

// ChangeRequest is one transient re-plan instruction.
type ChangeRequest struct {
	Op           ChangeOp `json:"op"`
	TaskID       string   `json:"task_id"`
	NewDuration  *int     `json:"new_duration,omitempty"`
	Predecessor  string   `json:"predecessor,omitempty"`
	Predecessors []string `json:"predecessors,omitempty"`
	NewName      string   `json:"new_name,omitempty"`
}

// UnmarshalJSON accepts the short aliases clients commonly send (pred, duration, name).
func (c *ChangeRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		Op           string   `json:"op"`
		TaskID       string   `json:"task_id"`
		ID           string   `json:"id"`
		NewDuration  *float64 `json:"new_duration"`
		Duration     *float64 `json:"duration"`
		Predecessor  string   `json:"predecessor"`
		Pred         string   `json:"pred"`
		Predecessors []string `json:"predecessors"`
		NewName      string   `json:"new_name"`
		Name         string   `json:"name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Op = ChangeOp(strings.ToLower(strings.TrimSpace(raw.Op)))
	c.TaskID = firstNonEmpty(raw.TaskID, raw.ID)
	dur := raw.NewDuration
	if dur == nil {
		dur = raw.Duration
	}
	c.NewDuration = nil
	if dur != nil {
		v := int(*dur + 0.5)
		c.NewDuration = &v
	}
	c.Predecessor = firstNonEmpty(raw.Predecessor, raw.Pred)
	c.Predecessors = raw.Predecessors
	c.NewName = firstNonEmpty(raw.NewName, raw.Name)
	return nil
}

// ChangeLogEntry records the outcome of applying one change request.
type ChangeLogEntry struct {
	OK     bool           `json:"ok"`
	Op     ChangeOp       `json:"op"`
	TaskID string         `json:"task_id"`
	Reason string         `json:"reason,omitempty"`
	Detail map[string]any `json:"detail,omitempty"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
