package prompt

import (
	"fmt"
	"strings"

	"github.com/evanschultz/pmforge/internal/llm"
)

// Strategy detail levels chosen for extraction.
const (
	DetailFull     = "full_detail"
	DetailBalanced = "balanced"
	DetailMinimal  = "minimal"
)

const scopeSystem = `You are a senior business analyst producing PMP-style requirement catalogues.
You read project artifacts and return structured JSON only. Never invent scope the text does not support.`

// ExtractionParams configures the first-attempt extraction prompt.
type ExtractionParams struct {
	Text         string
	Hierarchical bool
	WBSDepth     int
	Detail       string
	Context      []string
}

// Extraction returns the first-attempt requirements extraction prompt.
func Extraction(p ExtractionParams) []llm.Message {
	var b strings.Builder
	b.WriteString(contextBlock(p.Context))
	b.WriteString("## Task\n\nExtract every requirement stated or clearly implied by the project text below.\n")
	b.WriteString(detailInstruction(p.Detail))
	fmt.Fprintf(&b, "The work breakdown will be at most %d levels deep; keep titles short enough to serve as task names.\n\n", max(p.WBSDepth, 1))
	b.WriteString("## Output Format\n\nReturn ONLY valid JSON in this exact format:\n\n")
	b.WriteString(schemaExample(p.Hierarchical))
	b.WriteString(fieldRules)
	b.WriteString("\n## Project text\n\n")
	b.WriteString(p.Text)
	b.WriteByte('\n')
	return conversation(scopeSystem, b.String())
}

// RefinementParams configures a retry prompt that corrects a previous reply.
type RefinementParams struct {
	Text         string
	PreviousJSON string
	Defects      []string
	Hierarchical bool
	Context      []string
}

// Refinement returns the correction prompt used on attempts after the first.
func Refinement(p RefinementParams) []llm.Message {
	var b strings.Builder
	b.WriteString(contextBlock(p.Context))
	b.WriteString("## Task\n\nYour previous answer needs corrections. Fix every defect listed and return the complete catalogue again.\n\n")
	b.WriteString("## Defects\n\n")
	b.WriteString(bulletList(p.Defects, "- The previous answer was not usable."))
	b.WriteString("\n## Previous answer\n\n")
	if strings.TrimSpace(p.PreviousJSON) == "" {
		b.WriteString("(no JSON was found in the previous answer)\n")
	} else {
		b.WriteString(fence + "json\n" + strings.TrimSpace(p.PreviousJSON) + "\n" + fence + "\n")
	}
	b.WriteString("\n## Output Format\n\nReturn ONLY valid JSON in this exact format:\n\n")
	b.WriteString(schemaExample(p.Hierarchical))
	b.WriteString(fieldRules)
	b.WriteString("\n## Project text\n\n")
	b.WriteString(p.Text)
	b.WriteByte('\n')
	return conversation(scopeSystem, b.String())
}

// Critique returns the Self-Refine critique prompt. The reply is {score, issues, missing, strengths}.
func Critique(text, catalogueJSON string) []llm.Message {
	user := fmt.Sprintf(`## Task

Critique the requirement catalogue below against the project text. Score it from 0.0 to 1.0 for
completeness, testability, and faithfulness to the text.

## Output Format

Return ONLY valid JSON:

%sjson
{"score": 0.82, "issues": ["REQ-2 acceptance criteria are not measurable"], "missing": ["data retention policy"], "strengths": ["clear priorities"]}
%s

## Catalogue

%sjson
%s
%s

## Project text

%s
`, fence, fence, fence, strings.TrimSpace(catalogueJSON), fence, Truncate(text, 4000))
	return conversation(scopeSystem, user)
}

// ImproveParams configures the Self-Refine improvement prompt.
type ImproveParams struct {
	Text          string
	CatalogueJSON string
	Issues        []string
	Missing       []string
	Hierarchical  bool
}

// Improve returns the Self-Refine rewrite prompt that addresses a critique.
func Improve(p ImproveParams) []llm.Message {
	var b strings.Builder
	b.WriteString("## Task\n\nRevise the catalogue to resolve every issue and add the missing requirements. Keep existing req_id values.\n\n")
	b.WriteString("## Issues\n\n")
	b.WriteString(bulletList(p.Issues, "- (none)"))
	b.WriteString("\n## Missing\n\n")
	b.WriteString(bulletList(p.Missing, "- (none)"))
	b.WriteString("\n## Current catalogue\n\n")
	b.WriteString(fence + "json\n" + strings.TrimSpace(p.CatalogueJSON) + "\n" + fence + "\n")
	b.WriteString("\n## Output Format\n\nReturn ONLY valid JSON in this exact format:\n\n")
	b.WriteString(schemaExample(p.Hierarchical))
	b.WriteString("\n## Project text\n\n")
	b.WriteString(Truncate(p.Text, 4000))
	b.WriteByte('\n')
	return conversation(scopeSystem, b.String())
}

func detailInstruction(detail string) string {
	switch detail {
	case DetailFull:
		return "Be exhaustive: capture every functional, non-functional, and constraint statement, with 3 or more acceptance criteria each.\n"
	case DetailMinimal:
		return "Be concise: capture only the essential requirements, with 2 acceptance criteria each.\n"
	default:
		return "Capture all significant requirements with 2-3 acceptance criteria each.\n"
	}
}

const fieldRules = `
## Field Rules

1. req_id is unique, e.g. "REQ-001".
2. type is one of: functional, non-functional, constraint.
3. priority is one of: High, Medium, Low.
4. description is a full sentence; acceptance_criteria is an ordered list of short, testable statements.
5. source_span quotes the sentence the requirement came from.
6. confidence is your confidence from 0.0 to 1.0 that the catalogue is complete and correct.
`

func schemaExample(hierarchical bool) string {
	if hierarchical {
		return fence + `json
{
  "confidence": 0.9,
  "epics": [
    {
      "title": "Account management",
      "features": [
        {
          "title": "Sign-in",
          "requirements": [
            {
              "req_id": "REQ-001",
              "title": "Authenticate users",
              "type": "functional",
              "priority": "High",
              "description": "The system shall authenticate users with email and password.",
              "source_span": "The system shall authenticate users",
              "acceptance_criteria": ["Valid credentials grant a session", "Invalid credentials show an error"]
            }
          ]
        }
      ]
    }
  ]
}
` + fence + "\n"
	}
	return fence + `json
{
  "confidence": 0.9,
  "requirements": [
    {
      "req_id": "REQ-001",
      "title": "Authenticate users",
      "type": "functional",
      "priority": "High",
      "description": "The system shall authenticate users with email and password.",
      "source_span": "The system shall authenticate users",
      "acceptance_criteria": ["Valid credentials grant a session", "Invalid credentials show an error"]
    }
  ]
}
` + fence + "\n"
}
