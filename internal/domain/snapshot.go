package domain

import (
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// SnapshotKind names the pipeline artifact a snapshot captures.
type SnapshotKind string

// SnapshotKind values.
const (
	SnapshotScope    SnapshotKind = "scope"
	SnapshotSchedule SnapshotKind = "schedule"
	SnapshotManifest SnapshotKind = "manifest"
)

var validSnapshotKinds = []SnapshotKind{SnapshotScope, SnapshotSchedule, SnapshotManifest}

// Snapshot stores one JSON-encoded pipeline result for later reporting.
type Snapshot struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	Kind      SnapshotKind    `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewSnapshot marshals payload into a snapshot value.
func NewSnapshot(id, projectID string, kind SnapshotKind, payload any, now time.Time) (Snapshot, error) {
	id = strings.TrimSpace(id)
	projectID = strings.TrimSpace(projectID)
	if id == "" || projectID == "" {
		return Snapshot{}, ErrInvalidID
	}
	if !slices.Contains(validSnapshotKinds, kind) {
		return Snapshot{}, ErrInvalidSnapshotKind
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		ID:        id,
		ProjectID: projectID,
		Kind:      kind,
		Payload:   raw,
		CreatedAt: now.UTC(),
	}, nil
}
