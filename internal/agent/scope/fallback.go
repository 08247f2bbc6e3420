package scope

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/evanschultz/pmforge/internal/domain"
)

var (
	requirementVerb = regexp.MustCompile(`(?i)\b(shall|must|should|will|needs? to|(?:is|are) required to)\b`)
	listMarker      = regexp.MustCompile(`^\s*(?:[-*+•]|\d+[.)]|[a-z][.)])\s+`)
	nonFunctional   = regexp.MustCompile(`(?i)\b(performance|perform|secure|security|encrypt\w*|available|availability|uptime|latency|respond\w*|response time|scalab\w*|reliab\w*|usab\w*|accessib\w*|backup|concurrent)\b`)
	constraintHint  = regexp.MustCompile(`(?i)\b(comply|compliance|regulation|budget|deadline|must use|license)\b`)
)

// maxFallbackTitle bounds the title of a fallback requirement.
const maxFallbackTitle = 160

// Fallback scans text for sentences containing requirement verbs and returns one requirement per
// distinct sentence. req_ids are left empty for the caller to assign.
func Fallback(text string) []domain.Requirement {
	out := []domain.Requirement{}
	seen := map[string]struct{}{}
	for _, line := range strings.Split(text, "\n") {
		line = listMarker.ReplaceAllString(strings.TrimSpace(line), "")
		line = strings.TrimLeft(line, "#> ")
		for _, sentence := range sentences(line) {
			if !requirementVerb.MatchString(sentence) {
				continue
			}
			title := strings.TrimRightFunc(sentence, func(r rune) bool {
				return r == '.' || r == '!' || r == ';' || unicode.IsSpace(r)
			})
			if title == "" {
				continue
			}
			key := strings.ToLower(title)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, domain.Requirement{
				Title:              truncateTitle(title),
				Type:               classify(sentence),
				Priority:           priorityFor(sentence),
				Description:        sentence,
				SourceSpan:         sentence,
				AcceptanceCriteria: []string{},
			}.Normalize())
		}
	}
	return out
}

// sentences splits on '.', '!', '?' or ';' followed by whitespace or end of line.
func sentences(line string) []string {
	var out []string
	runes := []rune(line)
	start := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' && r != ';' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

func classify(sentence string) domain.RequirementType {
	switch {
	case constraintHint.MatchString(sentence):
		return domain.RequirementConstraint
	case nonFunctional.MatchString(sentence):
		return domain.RequirementNonFunctional
	default:
		return domain.RequirementFunctional
	}
}

func priorityFor(sentence string) domain.Priority {
	verb := strings.ToLower(requirementVerb.FindString(sentence))
	switch {
	case verb == "shall" || verb == "must" || strings.Contains(verb, "required"):
		return domain.PriorityHigh
	case verb == "should":
		return domain.PriorityMedium
	default:
		return domain.PriorityLow
	}
}

func truncateTitle(s string) string {
	r := []rune(s)
	if len(r) <= maxFallbackTitle {
		return s
	}
	return strings.TrimSpace(string(r[:maxFallbackTitle]))
}
