package domain

import (
	"slices"
	"strings"
	"time"
)

// DocumentKind classifies an ingested project artifact.
type DocumentKind string

// DocumentKind values.
const (
	DocumentKindMeeting  DocumentKind = "meeting"
	DocumentKindRFP      DocumentKind = "rfp"
	DocumentKindProposal DocumentKind = "proposal"
	DocumentKindIssue    DocumentKind = "issue"
)

var validDocumentKinds = []DocumentKind{
	DocumentKindMeeting,
	DocumentKindRFP,
	DocumentKindProposal,
	DocumentKindIssue,
}

// Document is an immutable ingested artifact owned by one project.
type Document struct {
	ID        string       `json:"id"`
	ProjectID string       `json:"project_id"`
	Kind      DocumentKind `json:"kind"`
	Title     string       `json:"title"`
	Text      string       `json:"text"`
	Source    string       `json:"source,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// DocumentInput holds input values for document creation.
type DocumentInput struct {
	ID        string
	ProjectID string
	Kind      DocumentKind
	Title     string
	Text      string
	Source    string
}

// NormalizeDocumentKind canonicalizes one kind value.
func NormalizeDocumentKind(kind DocumentKind) DocumentKind {
	return DocumentKind(strings.ToLower(strings.TrimSpace(string(kind))))
}

// IsValidDocumentKind reports whether kind is supported.
func IsValidDocumentKind(kind DocumentKind) bool {
	return slices.Contains(validDocumentKinds, NormalizeDocumentKind(kind))
}

// NewDocument validates and constructs a document.
func NewDocument(in DocumentInput, now time.Time) (Document, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.Kind = NormalizeDocumentKind(in.Kind)
	in.Title = strings.TrimSpace(in.Title)
	if in.ID == "" || in.ProjectID == "" {
		return Document{}, ErrInvalidID
	}
	if !IsValidDocumentKind(in.Kind) {
		return Document{}, ErrInvalidDocumentKind
	}
	if strings.TrimSpace(in.Text) == "" {
		return Document{}, ErrInvalidText
	}
	if in.Title == "" {
		in.Title = string(in.Kind)
	}
	return Document{
		ID:        in.ID,
		ProjectID: in.ProjectID,
		Kind:      in.Kind,
		Title:     in.Title,
		Text:      in.Text,
		Source:    strings.TrimSpace(in.Source),
		CreatedAt: now.UTC(),
	}, nil
}
