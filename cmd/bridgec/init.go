package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"bridgec/internal/project"
)

var initCmd = &cobra.Command{
	Use:   "init [path|name]",
	Short: "Initialize a new bridgec project",
	Long: `Initialize a new bridgec project by creating a project manifest
(bridge.toml) and a starter declaration set (decls/api.json). If [path|name]
is omitted, the current directory is initialized. A non-existing name creates
the directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

// runInit scaffolds a project at the target path: it resolves the directory
// (creating it when missing), derives the project name from the basename with
// a "bridge-project" fallback, refuses directories that already carry a
// bridge.toml, and writes the manifest plus a starter declaration set.
func runInit(cmd *cobra.Command, args []string) error {
	var target string
	if len(args) == 0 || args[0] == "." {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		target = wd
	} else {
		arg := args[0]
		if !filepath.IsAbs(arg) {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			target = filepath.Join(wd, arg)
		} else {
			target = arg
		}
	}

	if st, err := os.Stat(target); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err = os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %q: %w", target, err)
			}
		} else {
			return err
		}
	} else if !st.IsDir() {
		return fmt.Errorf("%q is not a directory", target)
	}

	name := strings.TrimSpace(filepath.Base(target))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "bridge-project"
	}

	manifestPath := filepath.Join(target, project.FileName)
	if _, err := os.Stat(manifestPath); err == nil {
		return fmt.Errorf("project already initialized: %s exists", manifestPath)
	}

	if err := os.WriteFile(manifestPath, []byte(defaultManifest(name)), 0o600); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	declsPath := filepath.Join(target, "decls", "api.json")
	createdDecls := false
	if _, err := os.Stat(declsPath); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(declsPath), 0o755); err != nil {
			return fmt.Errorf("failed to create decls directory: %w", err)
		}
		if err := os.WriteFile(declsPath, []byte(starterDecls()), 0o600); err != nil {
			return fmt.Errorf("failed to write starter declarations: %w", err)
		}
		createdDecls = true
	}

	rel := target
	if wd, err := os.Getwd(); err == nil {
		if r, err2 := filepath.Rel(wd, target); err2 == nil {
			rel = r
		}
	}
	fmt.Fprintf(os.Stdout, "Initialized bridgec project in %s\n", rel)
	fmt.Fprintf(os.Stdout, "  - %s\n", project.FileName)
	if createdDecls {
		fmt.Fprintf(os.Stdout, "  - decls/api.json\n")
	} else {
		fmt.Fprintf(os.Stdout, "  - decls/api.json (existing)\n")
	}
	return nil
}

// defaultManifest returns the minimal manifest for a fresh project. It doubles
// as the project marker for the walk-up search.
func defaultManifest(name string) string {
	return fmt.Sprintf(`# bridgec project manifest
[project]
name = "%s"
out = "gen"

[profile]
name = "x86_64-linux-gnu"

[inputs]
decls = ["decls/api.json"]
`, name)
}

// starterDecls returns a declaration set small enough to read in one sitting
// but broad enough to exercise a struct and a function thunk.
func starterDecls() string {
	return `{
  "schema_version": 1,
  "decls": [
    {"struct": "Point", "fields": [
      {"name": "x", "type": "f64"},
      {"name": "y", "type": "f64"}
    ]},
    {"func": "scale", "params": [
      {"name": "p", "type": "Point"},
      {"name": "k", "type": "f64"}
    ], "result": "Point"}
  ]
}
`
}
