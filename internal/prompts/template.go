// Package prompts implements the Prompt Registry: loading
// versioned prompt templates from disk, content-hash-based dedup, default
// promotion, and variable substitution.
package prompts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"podship/internal/hashing"
	"podship/internal/services"
)

// Frontmatter is the YAML metadata block at the top of a template file.
type Frontmatter struct {
	Name        string  `yaml:"name"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Description string  `yaml:"description"`
	Author      string  `yaml:"author"`
	Notes       string  `yaml:"notes"`
}

// Template is a loaded, parsed prompt template file.
type Template struct {
	Name        string
	FilePath    string
	Frontmatter Frontmatter
	Body        string
}

// ContentHash returns the SHA-256 hash of the body only; frontmatter is
// excluded so cosmetic metadata edits never change the hash.
func (t *Template) ContentHash() string {
	return hashing.HashBytes([]byte(t.Body))
}

const fence = "---"

// LoadTemplate reads `{templatesDir}/{name}.md`, splits frontmatter from
// body, and parses the YAML. Fails with services.ErrNotFound when no file
// matches name, or services.ErrValidation on malformed YAML.
func LoadTemplate(templatesDir, name string) (*Template, error) {
	path := filepath.Join(templatesDir, name+".md")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, services.Wrap(services.ErrNotFound, "prompts", "load_template", name, err)
		}
		return nil, services.Wrap(services.ErrIO, "prompts", "load_template", name, err)
	}

	frontmatter, body, err := splitFrontmatter(string(raw))
	if err != nil {
		return nil, services.WrapHint(services.ErrValidation, "prompts", "load_template",
			fmt.Sprintf("parse frontmatter for %s", name), "E_VALIDATION", err.Error(), err)
	}

	var fm Frontmatter
	if strings.TrimSpace(frontmatter) != "" {
		if err := yaml.Unmarshal([]byte(frontmatter), &fm); err != nil {
			return nil, services.WrapHint(services.ErrValidation, "prompts", "load_template",
				fmt.Sprintf("parse frontmatter for %s", name), "E_VALIDATION", "invalid YAML frontmatter", err)
		}
	}
	if fm.Name == "" {
		fm.Name = name
	}

	return &Template{
		Name:        name,
		FilePath:    path,
		Frontmatter: fm,
		Body:        body,
	}, nil
}

// splitFrontmatter separates a leading `---`-fenced YAML block from the
// template body. A template with no frontmatter block is valid: the whole
// file is the body.
func splitFrontmatter(raw string) (frontmatter, body string, err error) {
	lines := strings.Split(raw, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != fence {
		return "", raw, nil
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == fence {
			frontmatter = strings.Join(lines[1:i], "\n")
			body = strings.Join(lines[i+1:], "\n")
			body = strings.TrimPrefix(body, "\n")
			return frontmatter, body, nil
		}
	}
	return "", "", fmt.Errorf("unterminated frontmatter fence")
}

// Render substitutes `{{ variable }}` placeholders in the body with the
// supplied values. Missing variables substitute as the empty string;
// unused variables are ignored.
func Render(body string, variables map[string]string) string {
	var out strings.Builder
	remaining := body
	for {
		start := strings.Index(remaining, "{{")
		if start == -1 {
			out.WriteString(remaining)
			break
		}
		end := strings.Index(remaining[start:], "}}")
		if end == -1 {
			out.WriteString(remaining)
			break
		}
		end += start

		out.WriteString(remaining[:start])
		key := strings.TrimSpace(remaining[start+2 : end])
		out.WriteString(variables[key])
		remaining = remaining[end+2:]
	}
	return out.String()
}
