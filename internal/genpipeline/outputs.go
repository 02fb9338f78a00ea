package genpipeline

import (
	"fmt"
	"os"
	"path/filepath"

	runtimeembed "bridgec/runtime"
)

// Output file names inside the run's output directory.
const (
	SourceFileName   = "bridge.gen.c"
	ManifestFileName = "manifest.json"
)

// writeOutputs writes the full artefact set for one run.
func writeOutputs(dir string, source, prelude, manifest []byte) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	files := []struct {
		name string
		data []byte
	}{
		{SourceFileName, source},
		{runtimeembed.PreludeFileName, prelude},
		{ManifestFileName, manifest},
	}
	for _, f := range files {
		if err := writeFileAtomic(filepath.Join(dir, f.name), f.data); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.name, err)
		}
	}
	return nil
}

// writeFileAtomic stages the write in the target directory and renames into
// place, so a concurrent reader never observes a half-written artefact.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
