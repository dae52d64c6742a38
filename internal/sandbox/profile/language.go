// Package profile maps language tags onto the file and command used to run them.
package profile

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/shlex"
)

// LanguageConfig is the configurable form of a language profile.
type LanguageConfig struct {
	// SourceFile is the base name the program is written to inside the work dir.
	SourceFile string `yaml:"sourceFile"`
	// Command is a shell-style command line run with the work dir as cwd.
	Command string `yaml:"command"`
}

// LanguageSpec is a resolved language profile.
type LanguageSpec struct {
	ID         string
	SourceFile string
	Cmd        []string
}

// DefaultLanguages returns the built-in profiles.
func DefaultLanguages() map[string]LanguageConfig {
	return map[string]LanguageConfig{
		"python": {SourceFile: "main.py", Command: "python3 -I -B main.py"},
	}
}

// Registry resolves language tags. It is read-only after construction.
type Registry struct {
	langs map[string]LanguageSpec
}

// NewRegistry parses every configured language; tags are matched case-insensitively.
func NewRegistry(langs map[string]LanguageConfig) (*Registry, error) {
	if len(langs) == 0 {
		return nil, fmt.Errorf("at least one language is required")
	}
	r := &Registry{langs: make(map[string]LanguageSpec, len(langs))}
	for id, cfg := range langs {
		spec, err := parseLanguage(id, cfg)
		if err != nil {
			return nil, err
		}
		r.langs[spec.ID] = spec
	}
	return r, nil
}

func parseLanguage(id string, cfg LanguageConfig) (LanguageSpec, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return LanguageSpec{}, fmt.Errorf("language id is required")
	}
	if cfg.SourceFile == "" || cfg.SourceFile != filepath.Base(cfg.SourceFile) || cfg.SourceFile == "." || cfg.SourceFile == ".." {
		return LanguageSpec{}, fmt.Errorf("language %s: sourceFile must be a plain file name, got %q", id, cfg.SourceFile)
	}
	cmd, err := shlex.Split(cfg.Command)
	if err != nil {
		return LanguageSpec{}, fmt.Errorf("language %s: parse command: %w", id, err)
	}
	if len(cmd) == 0 {
		return LanguageSpec{}, fmt.Errorf("language %s: command is required", id)
	}
	return LanguageSpec{ID: id, SourceFile: cfg.SourceFile, Cmd: cmd}, nil
}

// Lookup returns the profile for a language tag.
func (r *Registry) Lookup(language string) (LanguageSpec, bool) {
	spec, ok := r.langs[strings.ToLower(strings.TrimSpace(language))]
	if !ok {
		return LanguageSpec{}, false
	}
	spec.Cmd = append([]string(nil), spec.Cmd...)
	return spec, true
}

// Languages lists the configured tags in sorted order.
func (r *Registry) Languages() []string {
	out := make([]string, 0, len(r.langs))
	for id := range r.langs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
