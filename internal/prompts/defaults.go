package prompts

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
)

//go:embed templates/*.md
var defaultTemplates embed.FS

// WriteDefaults copies every bundled default template into dir, skipping any
// file that already exists so operator edits are never clobbered.
func WriteDefaults(dir string) error {
	entries, err := defaultTemplates.ReadDir("templates")
	if err != nil {
		return fmt.Errorf("read bundled templates: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prompts directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		dest := filepath.Join(dir, entry.Name())
		if _, err := os.Stat(dest); err == nil {
			continue
		}
		data, err := defaultTemplates.ReadFile(filepath.Join("templates", entry.Name()))
		if err != nil {
			return fmt.Errorf("read bundled template %s: %w", entry.Name(), err)
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return fmt.Errorf("write template %s: %w", entry.Name(), err)
		}
	}
	return nil
}
