package scaffold

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/tandem/internal/config"
)

// CheckExisting returns an error if dir already holds a tandem.yml.
func CheckExisting(dir string) error {
	path := filepath.Join(dir, config.DefaultFilename)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf(`node already initialized

Found existing: %s

Use 'tandem init --force' to reinitialize (this will overwrite existing configuration)`, path)
	}
	return nil
}

// validateContent runs the rendered file through the same loader `tandem`
// uses, without environment overrides.
func validateContent(content []byte) error {
	if _, err := config.Parse(content, nil); err != nil {
		return fmt.Errorf("generated tandem.yml is invalid: %w", err)
	}
	return nil
}
