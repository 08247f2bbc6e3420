package domain

import (
	"slices"
	"strings"
)

// RiskLevel is a qualitative probability or impact rating.
type RiskLevel string

// RiskLevel values.
const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

var validRiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh}

// Weight maps a level onto 1..3 for scoring.
func (l RiskLevel) Weight() int {
	switch l {
	case RiskHigh:
		return 3
	case RiskMedium:
		return 2
	case RiskLow:
		return 1
	default:
		return 0
	}
}

// Risk is one register entry. Probability and Impact are always set.
type Risk struct {
	ID                   string    `json:"id"`
	ProjectID            string    `json:"project_id,omitempty"`
	Title                string    `json:"title"`
	Category             string    `json:"category"`
	Probability          RiskLevel `json:"probability"`
	Impact               RiskLevel `json:"impact"`
	Score                int       `json:"score"`
	Source               string    `json:"source,omitempty"`
	Owner                string    `json:"owner,omitempty"`
	RecommendedResponses []string  `json:"recommended_responses"`
}

// Validate checks that probability and impact are present and supported.
func (r Risk) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return ErrInvalidTitle
	}
	if !slices.Contains(validRiskLevels, r.Probability) || !slices.Contains(validRiskLevels, r.Impact) {
		return ErrInvalidRiskLevel
	}
	return nil
}
