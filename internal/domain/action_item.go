package domain

import (
	"strings"
	"time"
)

// ActionItemStatus tracks the lifecycle of one action item.
type ActionItemStatus string

// ActionItemStatus values.
const (
	ActionItemOpen   ActionItemStatus = "open"
	ActionItemDone   ActionItemStatus = "done"
	ActionItemClosed ActionItemStatus = "closed"
)

// ActionItem is a follow-up captured from meeting minutes or issue notes.
type ActionItem struct {
	ID         string           `json:"id"`
	ProjectID  string           `json:"project_id"`
	DocumentID string           `json:"document_id,omitempty"`
	Task       string           `json:"task"`
	Owner      string           `json:"owner,omitempty"`
	DueAt      *time.Time       `json:"due_at,omitempty"`
	Status     ActionItemStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// ActionItemInput holds input values for action item creation.
type ActionItemInput struct {
	ID         string
	ProjectID  string
	DocumentID string
	Task       string
	Owner      string
	DueAt      *time.Time
}

// NewActionItem validates and constructs an open action item.
func NewActionItem(in ActionItemInput, now time.Time) (ActionItem, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.Task = strings.TrimSpace(in.Task)
	if in.ID == "" || in.ProjectID == "" {
		return ActionItem{}, ErrInvalidID
	}
	if in.Task == "" {
		return ActionItem{}, ErrInvalidTitle
	}
	var due *time.Time
	if in.DueAt != nil {
		ts := in.DueAt.UTC().Truncate(time.Second)
		due = &ts
	}
	return ActionItem{
		ID:         in.ID,
		ProjectID:  in.ProjectID,
		DocumentID: strings.TrimSpace(in.DocumentID),
		Task:       in.Task,
		Owner:      strings.TrimSpace(in.Owner),
		DueAt:      due,
		Status:     ActionItemOpen,
		CreatedAt:  now.UTC(),
		UpdatedAt:  now.UTC(),
	}, nil
}

// Complete marks the item done.
func (a *ActionItem) Complete(now time.Time) {
	a.Status = ActionItemDone
	a.UpdatedAt = now.UTC()
}

// IsOpen reports whether the item still needs work.
func (a ActionItem) IsOpen() bool {
	return a.Status == "" || a.Status == ActionItemOpen
}
