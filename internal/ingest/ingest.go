// Package ingest loads project artifacts from disk and extracts action items from meeting notes.
package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/evanschultz/pmforge/internal/domain"
)

// ErrNoMatches reports glob patterns that matched no files.
var ErrNoMatches = errors.New("no files match")

var (
	htmlTitleRe    = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	scriptRe       = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe        = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	excessiveLines = regexp.MustCompile(`\n{3,}`)
)

// Loaded is one artifact read from disk.
type Loaded struct {
	Path  string
	Title string
	Text  string
	Kind  domain.DocumentKind
}

// Expand resolves glob patterns (with ** support) into a sorted, de-duplicated file list.
// Literal paths are passed through when they exist.
func Expand(patterns []string) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || info.IsDir() {
				continue
			}
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMatches, strings.Join(patterns, ", "))
	}
	slices.Sort(out)
	return out, nil
}

// LoadFile reads one artifact. HTML is converted to markdown; everything else is read as text.
// kind overrides the kind guessed from the file name when set.
func LoadFile(path string, kind domain.DocumentKind) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, fmt.Errorf("read %s: %w", path, err)
	}
	out := Loaded{Path: path, Kind: kind}
	if out.Kind == "" {
		out.Kind = GuessKind(path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		out.Title = htmlTitle(string(data))
		out.Text, err = HTMLToMarkdown(string(data))
		if err != nil {
			return Loaded{}, fmt.Errorf("convert %s: %w", path, err)
		}
	default:
		out.Text = string(data)
		out.Title = markdownTitle(out.Text)
	}
	if out.Title == "" {
		out.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return out, nil
}

// HTMLToMarkdown converts an HTML document into GitHub-flavored markdown.
func HTMLToMarkdown(html string) (string, error) {
	html = scriptRe.ReplaceAllString(html, "")
	html = styleRe.ReplaceAllString(html, "")
	conv := md.NewConverter("", true, nil)
	conv.Use(plugin.GitHubFlavored())
	out, err := conv.ConvertString(html)
	if err != nil {
		return "", err
	}
	out = excessiveLines.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out) + "\n", nil
}

// GuessKind infers the document kind from a file name, defaulting to rfp.
func GuessKind(path string) domain.DocumentKind {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.Contains(name, "meeting"), strings.Contains(name, "minutes"), strings.Contains(name, "standup"):
		return domain.DocumentKindMeeting
	case strings.Contains(name, "proposal"):
		return domain.DocumentKindProposal
	case strings.Contains(name, "issue"), strings.Contains(name, "bug"):
		return domain.DocumentKindIssue
	default:
		return domain.DocumentKindRFP
	}
}

func htmlTitle(html string) string {
	if m := htmlTitleRe.FindStringSubmatch(html); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func markdownTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
		if line != "" {
			return ""
		}
	}
	return ""
}
