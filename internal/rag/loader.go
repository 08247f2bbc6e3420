package rag

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// TemplatePattern selects the files LoadDir indexes.
const TemplatePattern = "**/*.{md,markdown,txt,yaml,yml}"

// ruleFile is the YAML shape for rule collections.
type ruleFile struct {
	Rules []struct {
		ID    string `yaml:"id"`
		Title string `yaml:"title"`
		Text  string `yaml:"text"`
	} `yaml:"rules"`
}

// LoadDir indexes every template and rule file under dir. Markdown and text files are split
// on level-1/level-2 headings; YAML files contribute one snippet per rule.
func LoadDir(dir string) (*MemoryStore, error) {
	store := NewMemoryStore()
	if strings.TrimSpace(dir) == "" {
		return store, nil
	}
	fsys := os.DirFS(dir)
	matches, err := doublestar.Glob(fsys, TemplatePattern)
	if err != nil {
		return nil, fmt.Errorf("glob templates: %w", err)
	}
	for _, name := range matches {
		snippets, err := loadFile(fsys, name)
		if err != nil {
			return nil, err
		}
		store.Add(snippets...)
	}
	return store, nil
}

func loadFile(fsys fs.FS, name string) ([]Snippet, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", name, err)
	}
	switch path.Ext(name) {
	case ".yaml", ".yml":
		var rf ruleFile
		if err := yaml.Unmarshal(data, &rf); err != nil {
			return nil, fmt.Errorf("decode rules %s: %w", name, err)
		}
		out := make([]Snippet, 0, len(rf.Rules))
		for i, r := range rf.Rules {
			id := r.ID
			if id == "" {
				id = fmt.Sprintf("%s#%d", name, i+1)
			}
			out = append(out, Snippet{ID: id, Source: name, Title: r.Title, Text: r.Text})
		}
		return out, nil
	default:
		return splitSections(name, string(data)), nil
	}
}

func splitSections(name, body string) []Snippet {
	var (
		out   []Snippet
		title string
		buf   strings.Builder
	)
	flush := func() {
		text := strings.TrimSpace(buf.String())
		buf.Reset()
		if text == "" {
			return
		}
		out = append(out, Snippet{
			ID:     fmt.Sprintf("%s#%d", name, len(out)+1),
			Source: name,
			Title:  title,
			Text:   text,
		})
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") || strings.HasPrefix(trimmed, "## ") {
			flush()
			title = strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			continue
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	flush()
	return out
}
