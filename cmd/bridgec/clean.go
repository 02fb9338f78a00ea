package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"bridgec/internal/gencache"
	"bridgec/internal/project"
)

var cleanCmd = &cobra.Command{
	Use:   "clean [path]",
	Short: "Remove generated bridge outputs",
	Long:  "Remove the output directory named by bridge.toml. With --cache the shared output cache is dropped as well.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runClean,
}

func init() {
	cleanCmd.Flags().Bool("cache", false, "also drop the shared output cache")
}

func runClean(cmd *cobra.Command, args []string) error {
	dropCache, err := cmd.Flags().GetBool("cache")
	if err != nil {
		return fmt.Errorf("failed to get cache flag: %w", err)
	}
	baseDir := "."
	if len(args) > 0 && args[0] != "" {
		baseDir = args[0]
	}

	outDir := filepath.Join(baseDir, "gen")
	manifest, ok, err := project.Load(baseDir)
	if err != nil {
		return err
	}
	if ok {
		outDir = manifest.Out
	}

	info, err := os.Stat(outDir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		_, _ = fmt.Fprintf(os.Stdout, "output directory not found\n")
	case err != nil:
		return fmt.Errorf("failed to stat %q: %w", outDir, err)
	case !info.IsDir():
		return fmt.Errorf("%q is not a directory", outDir)
	default:
		if err := os.RemoveAll(outDir); err != nil {
			return fmt.Errorf("failed to remove %q: %w", outDir, err)
		}
		_, _ = fmt.Fprintf(os.Stdout, "removed %s\n", displayPath(outDir))
	}

	if dropCache {
		cache, err := gencache.Open("")
		if err != nil {
			return err
		}
		dir := cache.Dir()
		if err := cache.DropAll(); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(os.Stdout, "dropped cache %s\n", dir)
	}
	return nil
}
