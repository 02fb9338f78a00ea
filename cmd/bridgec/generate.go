// Package main implements the bridgec CLI.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"bridgec/internal/abi"
	"bridgec/internal/diag"
	"bridgec/internal/diagfmt"
	"bridgec/internal/frontend"
	"bridgec/internal/gencache"
	"bridgec/internal/genpipeline"
	"bridgec/internal/project"
	"bridgec/internal/trace"
	"bridgec/internal/version"
)

const defaultProfileName = "x86_64-linux-gnu"

const noManifestMessage = "no bridge.toml found\npass declaration sets explicitly, e.g.:\n  bridgec generate decls/api.json"

var generateCmd = &cobra.Command{
	Use:   "generate [flags] [decls.json ...]",
	Short: "Generate bridge sources from declaration sets",
	Long: `Generate the C bridge source, the prelude header, and the symbol manifest
from JSON declaration sets. Without file arguments the command reads inputs
and settings from the nearest bridge.toml.`,
	Args: cobra.ArbitraryArgs,
	RunE: runGenerate,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	profileArg, err := cmd.Flags().GetString("profile")
	if err != nil {
		return fmt.Errorf("failed to get profile flag: %w", err)
	}
	outFlag, err := cmd.Flags().GetString("out")
	if err != nil {
		return fmt.Errorf("failed to get out flag: %w", err)
	}
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return fmt.Errorf("failed to get jobs flag: %w", err)
	}
	noCache, err := cmd.Flags().GetBool("no-cache")
	if err != nil {
		return fmt.Errorf("failed to get no-cache flag: %w", err)
	}
	tracePath, err := cmd.Flags().GetString("trace")
	if err != nil {
		return fmt.Errorf("failed to get trace flag: %w", err)
	}
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return fmt.Errorf("failed to get ui flag: %w", err)
	}
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	withNotes, err := cmd.Flags().GetBool("with-notes")
	if err != nil {
		return fmt.Errorf("failed to get with-notes flag: %w", err)
	}
	maxDiagnostics, err := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
	if err != nil {
		return fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	showTimings, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil {
		return fmt.Errorf("failed to get timings flag: %w", err)
	}
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
	}
	colorFlag, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return fmt.Errorf("failed to get color flag: %w", err)
	}

	switch format {
	case "pretty", "json":
	default:
		return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
	}
	uiModeValue, err := readUIMode(uiValue)
	if err != nil {
		return err
	}

	cfg, err := resolveGenerateConfig(".", args, profileArg, outFlag, jobs, noCache)
	if err != nil {
		return err
	}
	profile, err := resolveProfile(cfg)
	if err != nil {
		return err
	}

	profSession, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer profSession.Stop()

	tracer, traceCleanup, err := setupTracing(tracePath)
	if err != nil {
		return err
	}
	defer traceCleanup()

	loadStart := time.Now()
	loadBag := diag.NewBag(maxDiagnostics)
	reg, decls, err := frontend.Load(cfg.declFiles, loadBag)
	loadDur := time.Since(loadStart)
	if err != nil {
		// Unreadable inputs are a configuration problem, not a
		// declaration failure.
		return err
	}
	loadStatus := genpipeline.StatusDone
	if loadBag.HasErrors() {
		loadStatus = genpipeline.StatusError
	}
	tracer.Emit(&trace.Event{
		Stage:     string(genpipeline.StageLoad),
		Status:    string(loadStatus),
		DurMicros: loadDur.Microseconds(),
	})

	var cache *gencache.Cache
	if cfg.useCache {
		cache, err = gencache.Open("")
		if err != nil {
			fmt.Fprintf(os.Stderr, "cache disabled: %v\n", err)
			cache = nil
		}
	}

	req := genpipeline.Request{
		Profile:        profile,
		Registry:       reg,
		Decls:          decls,
		OutDir:         cfg.outDir,
		Jobs:           cfg.jobs,
		MaxDiagnostics: maxDiagnostics,
		ToolVersion:    version.Version,
		Cache:          cache,
	}

	var progress genpipeline.ProgressSink
	if tracer.Enabled() {
		progress = traceSink{tracer: tracer}
	}

	declNames := make([]string, 0, len(decls))
	for i := range decls {
		declNames = append(declNames, decls[i].Name)
	}

	useTUI := shouldUseTUI(uiModeValue) && !quiet && format == "pretty"
	var result genpipeline.Result
	if useTUI && len(declNames) > 0 {
		result, err = runGenerateWithUI(cmd.Context(), "bridgec generate", declNames, &req, progress)
	} else {
		req.Progress = progress
		result, err = genpipeline.Generate(cmd.Context(), &req)
	}
	if err != nil {
		if showTimings {
			printStageTimings(os.Stdout, loadDur, loadNote(cfg.declFiles), result.Timings)
		}
		return err
	}

	result.Bag.Merge(loadBag)
	result.Bag.Sort()
	result.Bag.Dedup()

	useColor := colorFlag == "on" || (colorFlag == "auto" && isTerminal(os.Stdout))
	switch format {
	case "pretty":
		diagfmt.Pretty(os.Stdout, result.Bag, diagfmt.PrettyOpts{
			Color:     useColor,
			Max:       maxDiagnostics,
			ShowNotes: withNotes,
		})
		if !quiet {
			printGenerateSummary(os.Stdout, cfg.outDir, len(decls), &result)
		}
	case "json":
		if err := diagfmt.JSON(os.Stdout, result.Bag, diagfmt.JSONOpts{
			Max:          maxDiagnostics,
			IncludeNotes: withNotes,
		}); err != nil {
			return fmt.Errorf("failed to format diagnostics: %w", err)
		}
	}
	if showTimings {
		printStageTimings(os.Stdout, loadDur, loadNote(cfg.declFiles), result.Timings)
	}

	if result.Failed > 0 || result.Bag.HasErrors() {
		// Diagnostics already printed; suppress cobra's own reporting.
		cmd.SilenceUsage = true
		cmd.SilenceErrors = true
		return exitCodeError{code: 1}
	}
	return nil
}

// generateConfig is the effective run configuration after applying flag,
// manifest, and default precedence, in that order.
type generateConfig struct {
	declFiles     []string
	profileArg    string
	profileIsPath bool
	outDir        string
	jobs          int
	useCache      bool
}

func resolveGenerateConfig(startDir string, args []string, profileArg, outFlag string, jobs int, noCache bool) (generateConfig, error) {
	cfg := generateConfig{
		declFiles:  args,
		profileArg: profileArg,
		outDir:     outFlag,
		jobs:       jobs,
		useCache:   !noCache,
	}
	if len(args) > 0 {
		// Explicit files bypass the manifest entirely.
		if cfg.outDir == "" {
			cfg.outDir = "gen"
		}
		if cfg.profileArg == "" {
			cfg.profileArg = defaultProfileName
		}
		return cfg, nil
	}
	manifest, found, err := project.Load(startDir)
	if err != nil {
		return cfg, err
	}
	if !found {
		return cfg, errors.New(noManifestMessage)
	}
	if len(manifest.Decls) == 0 {
		return cfg, fmt.Errorf("%s: [inputs].decls is empty", manifest.Path)
	}
	cfg.declFiles = manifest.Decls
	if cfg.outDir == "" {
		cfg.outDir = manifest.Out
	}
	if cfg.jobs == 0 {
		cfg.jobs = manifest.Jobs
	}
	if !noCache {
		cfg.useCache = manifest.Cache
	}
	if cfg.profileArg == "" {
		switch {
		case manifest.ProfilePath != "":
			cfg.profileArg = manifest.ProfilePath
			cfg.profileIsPath = true
		case manifest.ProfileName != "":
			cfg.profileArg = manifest.ProfileName
		default:
			cfg.profileArg = defaultProfileName
		}
	}
	return cfg, nil
}

// resolveProfile turns the configured profile reference into a loaded rule
// set. Manifest [profile].path entries skip name resolution, so custom
// profile files do not need a .toml suffix.
func resolveProfile(cfg generateConfig) (*abi.Profile, error) {
	if cfg.profileIsPath {
		return abi.LoadFile(cfg.profileArg)
	}
	return abi.Resolve(cfg.profileArg)
}

func printGenerateSummary(out io.Writer, outDir string, total int, result *genpipeline.Result) {
	target := displayPath(outDir)
	if result.FromCache {
		fmt.Fprintf(out, "replayed %d types, %d funcs from cache into %s\n", result.Types, result.Funcs, target)
	} else {
		fmt.Fprintf(out, "generated %d types, %d funcs into %s\n", result.Types, result.Funcs, target)
	}
	if result.Failed > 0 {
		fmt.Fprintf(out, "%d of %d declarations failed\n", result.Failed, total)
	}
}

func loadNote(files []string) string {
	if len(files) == 1 {
		return "1 file"
	}
	return fmt.Sprintf("%d files", len(files))
}

// displayPath prefers a path relative to the working directory when the
// target sits under it.
func displayPath(path string) string {
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(wd, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}

func init() {
	generateCmd.Flags().String("profile", "", "ABI profile name or profile TOML path")
	generateCmd.Flags().String("out", "", "output directory (default gen)")
	generateCmd.Flags().Int("jobs", 0, "max parallel workers (0=auto)")
	generateCmd.Flags().Bool("no-cache", false, "bypass the output cache")
	generateCmd.Flags().String("trace", "", "write a JSONL stage trace to file (- for stderr)")
	generateCmd.Flags().String("ui", "auto", "progress user interface (auto|on|off)")
	generateCmd.Flags().String("format", "pretty", "diagnostics format (pretty|json)")
	generateCmd.Flags().Bool("with-notes", false, "include diagnostic notes in output")
}
