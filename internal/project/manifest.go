// Package project locates and decodes the bridge.toml project manifest.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file this package looks for.
const FileName = "bridge.toml"

// Manifest is a loaded bridge.toml with defaults applied and relative paths
// resolved against the project root.
type Manifest struct {
	Path string // manifest file
	Root string // directory containing it

	Name        string   // [project].name
	Out         string   // [project].out, default "gen"
	ProfileName string   // [profile].name, a builtin profile
	ProfilePath string   // [profile].path, a custom profile file
	Decls       []string // [inputs].decls
	Jobs        int      // [generate].jobs, 0 selects one per CPU
	Cache       bool     // [generate].cache, default true
}

type manifestConfig struct {
	Project  projectSection  `toml:"project"`
	Profile  profileSection  `toml:"profile"`
	Inputs   inputsSection   `toml:"inputs"`
	Generate generateSection `toml:"generate"`
}

type projectSection struct {
	Name string `toml:"name"`
	Out  string `toml:"out"`
}

type profileSection struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

type inputsSection struct {
	Decls []string `toml:"decls"`
}

type generateSection struct {
	Jobs  int  `toml:"jobs"`
	Cache bool `toml:"cache"`
}

// Find walks up from startDir to locate bridge.toml.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load finds and decodes the nearest manifest. ok reports whether one was
// found; a found but invalid manifest is an error, not a miss.
func Load(startDir string) (*Manifest, bool, error) {
	path, ok, err := Find(startDir)
	if err != nil || !ok {
		return nil, ok, err
	}
	m, err := LoadFile(path)
	if err != nil {
		return nil, true, err
	}
	return m, true, nil
}

// LoadFile decodes a single manifest file.
func LoadFile(path string) (*Manifest, error) {
	var cfg manifestConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if !meta.IsDefined("project") {
		return nil, fmt.Errorf("%s: missing [project]", path)
	}
	if !meta.IsDefined("project", "name") || strings.TrimSpace(cfg.Project.Name) == "" {
		return nil, fmt.Errorf("%s: missing [project].name", path)
	}
	if meta.IsDefined("profile", "name") && meta.IsDefined("profile", "path") {
		return nil, fmt.Errorf("%s: [profile] needs name or path, not both", path)
	}
	if cfg.Generate.Jobs < 0 {
		return nil, fmt.Errorf("%s: [generate].jobs must not be negative", path)
	}

	root := filepath.Dir(path)
	m := &Manifest{
		Path:        path,
		Root:        root,
		Name:        strings.TrimSpace(cfg.Project.Name),
		Out:         "gen",
		ProfileName: strings.TrimSpace(cfg.Profile.Name),
		ProfilePath: strings.TrimSpace(cfg.Profile.Path),
		Jobs:        cfg.Generate.Jobs,
		Cache:       true,
	}
	if out := strings.TrimSpace(cfg.Project.Out); out != "" {
		m.Out = out
	}
	m.Out = resolve(root, m.Out)
	if m.ProfilePath != "" {
		m.ProfilePath = resolve(root, m.ProfilePath)
	}
	for _, d := range cfg.Inputs.Decls {
		d = strings.TrimSpace(d)
		if d == "" {
			return nil, fmt.Errorf("%s: [inputs].decls contains an empty path", path)
		}
		m.Decls = append(m.Decls, resolve(root, d))
	}
	if meta.IsDefined("generate", "cache") {
		m.Cache = cfg.Generate.Cache
	}
	return m, nil
}

// resolve keeps absolute paths and anchors relative ones at the project root.
func resolve(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}
