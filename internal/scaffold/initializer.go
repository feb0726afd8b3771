// Package scaffold writes a starter tandem.yml for `tandem init`.
package scaffold

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/dyluth/tandem/internal/config"
)

//go:embed templates/*
var templatesFS embed.FS

// Options are the values filled into the template. Empty optional fields
// take config defaults.
type Options struct {
	Dir      string // where tandem.yml is written; defaults to "."
	Space    string
	Node     string
	Peer     string
	RelayURL string
	Backend  string
	Force    bool // overwrite an existing tandem.yml
}

// templateData is Options with defaults resolved.
type templateData struct {
	Space, Node, Peer, RelayURL, Backend, StorePath string
}

// Initialize renders tandem.yml into opts.Dir, validates it and returns
// the path written.
func Initialize(opts Options) (string, error) {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	path := filepath.Join(opts.Dir, config.DefaultFilename)

	if !opts.Force {
		if err := CheckExisting(opts.Dir); err != nil {
			return "", err
		}
	}

	content, err := render(opts)
	if err != nil {
		return "", err
	}

	// Validate before touching the disk, so a bad flag never leaves a file behind
	if err := validateContent(content); err != nil {
		return "", err
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", opts.Dir, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	return path, nil
}

func render(opts Options) ([]byte, error) {
	data := templateData{
		Space:    opts.Space,
		Node:     opts.Node,
		Peer:     opts.Peer,
		RelayURL: opts.RelayURL,
		Backend:  opts.Backend,
	}
	if data.RelayURL == "" {
		data.RelayURL = config.DefaultRedisURL
	}
	if data.Backend == "" {
		data.Backend = config.DefaultStoreBackend
	}
	data.StorePath = config.DefaultStorePath(data.Backend, data.Node)

	tmpl, err := template.ParseFS(templatesFS, "templates/tandem.yml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read tandem.yml template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render tandem.yml: %w", err)
	}
	return buf.Bytes(), nil
}

// PrintSuccess prints the created file and next steps.
func PrintSuccess(path, node, peer string) {
	fmt.Println("\n✅ Successfully initialized tandem node!")
	fmt.Println("\nCreated:")
	fmt.Printf("  ✓ %s\n", path)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Add '.tandem/' to your .gitignore file")
	fmt.Printf("  2. On the other device run: tandem init --node %s --peer %s\n", peer, node)
	fmt.Println("  3. Start a relay with 'tandem relay up' or point relay.url at one")
	fmt.Println("  4. Run 'tandem node' to start replicating")
}
