// Package genpipeline orchestrates a generation run: parallel
// per-declaration validation, layout resolution, and convention mapping over
// the shared read-only registry, followed by serial emission and atomic
// artefact writes. Per-declaration failures become diagnostics and never
// cancel sibling declarations.
package genpipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"bridgec/internal/abi"
	"bridgec/internal/callconv"
	"bridgec/internal/descriptor"
	"bridgec/internal/diag"
	"bridgec/internal/emit"
	"bridgec/internal/gencache"
	"bridgec/internal/layout"
	runtimeembed "bridgec/runtime"
)

const defaultMaxDiagnostics = 100

// Request configures one generation run.
type Request struct {
	Profile        *abi.Profile
	Registry       *descriptor.Registry
	Decls          []descriptor.Decl
	OutDir         string
	Jobs           int
	MaxDiagnostics int
	ToolVersion    string
	Progress       ProgressSink
	Cache          *gencache.Cache
}

// Result captures run artefacts, aggregated diagnostics, and timings.
type Result struct {
	SourcePath   string
	PreludePath  string
	ManifestPath string

	Bag       *diag.Bag
	Types     int
	Funcs     int
	Failed    int
	FromCache bool
	Timings   Timings
}

// declOutcome is one worker's result. Indices are unique per goroutine, so
// the outcome slice needs no mutex.
type declOutcome struct {
	bag      *diag.Bag
	typePlan *emit.TypePlan
	funcPlan *emit.FuncPlan
	validate time.Duration
	resolve  time.Duration
	mapped   time.Duration
}

// Generate runs the full pipeline for one declaration set. The returned
// error covers configuration problems and cancellation only; everything
// scoped to a declaration lands in Result.Bag.
func Generate(ctx context.Context, req *Request) (Result, error) {
	var result Result
	if ctx == nil {
		ctx = context.Background()
	}
	if req == nil {
		return result, fmt.Errorf("missing generation request")
	}
	if req.Profile == nil || req.Registry == nil {
		return result, fmt.Errorf("missing profile or registry")
	}
	if err := req.Profile.Validate(); err != nil {
		return result, err
	}
	reqCopy := *req
	req = &reqCopy

	if req.OutDir == "" {
		req.OutDir = "gen"
	}
	jobs := req.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	maxDiags := req.MaxDiagnostics
	if maxDiags <= 0 {
		maxDiags = defaultMaxDiagnostics
	}

	result.Bag = diag.NewBag(maxDiags)
	result.SourcePath = filepath.Join(req.OutDir, SourceFileName)
	result.PreludePath = filepath.Join(req.OutDir, runtimeembed.PreludeFileName)
	result.ManifestPath = filepath.Join(req.OutDir, ManifestFileName)

	key := gencache.Key(req.Profile, req.Registry, req.Decls, req.ToolVersion)
	if req.Cache != nil {
		var entry gencache.Entry
		if req.Cache.Get(key, &entry) {
			if err := replayOutputs(req, &result, &entry); err != nil {
				return result, err
			}
			return result, nil
		}
	}

	outcomes := make([]declOutcome, len(req.Decls))
	if len(req.Decls) > 0 {
		emitQueued(req.Progress, req.Decls)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(min(jobs, len(req.Decls)))
		for i := range req.Decls {
			g.Go(func(i int) func() error {
				return func() error {
					select {
					case <-gctx.Done():
						return gctx.Err()
					default:
					}
					outcomes[i] = planDecl(req, &req.Decls[i], maxDiags)
					return nil
				}
			}(i))
		}
		if err := g.Wait(); err != nil {
			return result, err
		}
	}

	var typePlans []emit.TypePlan
	var funcPlans []emit.FuncPlan
	for i := range outcomes {
		o := &outcomes[i]
		if o.bag != nil {
			if o.bag.HasErrors() {
				result.Failed++
			}
			result.Bag.Merge(o.bag)
		}
		if o.typePlan != nil {
			typePlans = append(typePlans, *o.typePlan)
		}
		if o.funcPlan != nil {
			funcPlans = append(funcPlans, *o.funcPlan)
		}
		if o.validate > 0 {
			result.Timings.Add(StageValidate, o.validate)
		}
		if o.resolve > 0 {
			result.Timings.Add(StageResolve, o.resolve)
		}
		if o.mapped > 0 {
			result.Timings.Add(StageMap, o.mapped)
		}
	}

	emitStart := time.Now()
	emitRun(req.Progress, StageEmit, StatusWorking, nil, 0)
	emitted, err := emit.EmitBridge(req.Profile, req.Registry, typePlans, funcPlans)
	if err != nil {
		emitRun(req.Progress, StageEmit, StatusError, err, 0)
		return result, err
	}
	for i := range emitted.Failures {
		f := &emitted.Failures[i]
		Classify(result.Bag, req.Registry, f.Decl, f.Err)
		result.Failed++
		emitDecl(req.Progress, f.Decl, StageEmit, StatusError, f.Err, 0)
	}
	result.Timings.Set(StageEmit, time.Since(emitStart))
	emitRun(req.Progress, StageEmit, StatusDone, nil, result.Timings.Duration(StageEmit))
	result.Types = len(emitted.Manifest.Types)
	result.Funcs = len(emitted.Manifest.Funcs)

	var manifestBuf bytes.Buffer
	if err := emitted.Manifest.EncodeJSON(&manifestBuf); err != nil {
		return result, fmt.Errorf("failed to encode manifest: %w", err)
	}
	prelude := runtimeembed.Prelude()

	writeStart := time.Now()
	emitRun(req.Progress, StageWrite, StatusWorking, nil, 0)
	if err := writeOutputs(req.OutDir, emitted.Source, prelude, manifestBuf.Bytes()); err != nil {
		emitRun(req.Progress, StageWrite, StatusError, err, 0)
		return result, err
	}
	result.Timings.Set(StageWrite, time.Since(writeStart))
	emitRun(req.Progress, StageWrite, StatusDone, nil, result.Timings.Duration(StageWrite))

	result.Bag.Sort()
	result.Bag.Dedup()

	if req.Cache != nil && result.Failed == 0 && !result.Bag.HasErrors() {
		// Best effort: a cache store failure must never fail the run.
		_ = req.Cache.Put(key, &gencache.Entry{
			Source:   emitted.Source,
			Prelude:  prelude,
			Manifest: manifestBuf.Bytes(),
			Types:    result.Types,
			Funcs:    result.Funcs,
		})
	}
	return result, nil
}

// replayOutputs writes a cached output set byte-for-byte.
func replayOutputs(req *Request, result *Result, entry *gencache.Entry) error {
	writeStart := time.Now()
	emitRun(req.Progress, StageWrite, StatusWorking, nil, 0)
	if err := writeOutputs(req.OutDir, entry.Source, entry.Prelude, entry.Manifest); err != nil {
		emitRun(req.Progress, StageWrite, StatusError, err, 0)
		return err
	}
	result.Timings.Set(StageWrite, time.Since(writeStart))
	emitRun(req.Progress, StageWrite, StatusDone, nil, result.Timings.Duration(StageWrite))
	result.Types = entry.Types
	result.Funcs = entry.Funcs
	result.FromCache = true
	return nil
}

// planDecl runs the per-declaration phases. Every failure is scoped to this
// declaration's bag.
func planDecl(req *Request, d *descriptor.Decl, maxDiags int) declOutcome {
	out := declOutcome{bag: diag.NewBag(maxDiags)}
	sink := req.Progress
	res := layout.NewResolver(req.Profile, req.Registry)

	start := time.Now()
	emitDecl(sink, d.Name, StageValidate, StatusWorking, nil, 0)
	var err error
	switch d.Kind {
	case descriptor.DeclType:
		err = descriptor.Validate(req.Registry, d.Type)
	case descriptor.DeclFunc:
		err = descriptor.ValidateSignature(req.Registry, d.Sig)
	default:
		err = fmt.Errorf("unknown declaration kind %d", d.Kind)
	}
	out.validate = time.Since(start)
	if err != nil {
		Classify(out.bag, req.Registry, d.Name, err)
		emitDecl(sink, d.Name, StageValidate, StatusError, err, out.validate)
		return out
	}
	emitDecl(sink, d.Name, StageValidate, StatusDone, nil, out.validate)

	start = time.Now()
	emitDecl(sink, d.Name, StageResolve, StatusWorking, nil, 0)
	switch d.Kind {
	case descriptor.DeclType:
		var info layout.Layout
		info, err = res.Of(d.Type)
		if err == nil {
			out.typePlan = &emit.TypePlan{Decl: *d, Info: info}
		}
	case descriptor.DeclFunc:
		err = resolveSignature(res, d.Sig)
	}
	out.resolve = time.Since(start)
	if err != nil {
		Classify(out.bag, req.Registry, d.Name, err)
		emitDecl(sink, d.Name, StageResolve, StatusError, err, out.resolve)
		return out
	}
	emitDecl(sink, d.Name, StageResolve, StatusDone, nil, out.resolve)

	if d.Kind != descriptor.DeclFunc {
		return out
	}

	start = time.Now()
	emitDecl(sink, d.Name, StageMap, StatusWorking, nil, 0)
	conv, err := callconv.Map(d.Sig, res)
	out.mapped = time.Since(start)
	if err != nil {
		Classify(out.bag, req.Registry, d.Name, err)
		emitDecl(sink, d.Name, StageMap, StatusError, err, out.mapped)
		return out
	}
	out.funcPlan = &emit.FuncPlan{Decl: *d, Conv: conv}
	emitDecl(sink, d.Name, StageMap, StatusDone, nil, out.mapped)
	return out
}

// resolveSignature warms the resolver over every signature type so mapping
// failures separate cleanly from layout failures.
func resolveSignature(res *layout.Resolver, sig *descriptor.Signature) error {
	for i := range sig.Params {
		if _, err := res.Of(sig.Params[i].Type); err != nil {
			return err
		}
	}
	if sig.Result != descriptor.NoTypeID {
		if _, err := res.Of(sig.Result); err != nil {
			return err
		}
	}
	return nil
}

// Classify folds a typed pipeline error into the bag under the code of the
// component that produced it. Wrapped causes win over the wrapper, so an
// emission failure rooted in a layout problem reports as a layout problem.
func Classify(bag *diag.Bag, reg *descriptor.Registry, decl string, err error) {
	var (
		unsupported *descriptor.UnsupportedError
		layoutErr   *layout.Error
		convErr     *callconv.Error
		emitErr     *emit.Error
	)
	switch {
	case errors.As(err, &unsupported):
		bag.Add(diag.NewError(diag.ValUnsupported, decl, unsupported.Error()))
	case errors.As(err, &layoutErr):
		bag.Add(diag.NewError(layoutCode(layoutErr.Kind), decl, layoutErr.Describe(reg)))
	case errors.As(err, &convErr):
		bag.Add(diag.NewError(diag.ConvAmbiguousOwnership, decl, convErr.Error()))
	case errors.As(err, &emitErr):
		msg := emitErr.Error()
		if emitErr.Err != nil {
			msg = emitErr.Err.Error()
		}
		bag.Add(diag.NewError(diag.EmitInternal, decl, msg))
	default:
		bag.Add(diag.NewError(diag.EmitInternal, decl, err.Error()))
	}
}

func layoutCode(kind layout.ErrorKind) diag.Code {
	switch kind {
	case layout.ErrCycle:
		return diag.LayCycle
	case layout.ErrUnrepresentable:
		return diag.LayUnrepresentable
	default:
		return diag.LayUnknownType
	}
}

func emitQueued(sink ProgressSink, decls []descriptor.Decl) {
	if sink == nil {
		return
	}
	for i := range decls {
		sink.OnEvent(Event{Decl: decls[i].Name, Stage: StageValidate, Status: StatusQueued})
	}
}

func emitDecl(sink ProgressSink, decl string, stage Stage, status Status, err error, elapsed time.Duration) {
	if sink == nil {
		return
	}
	sink.OnEvent(Event{Decl: decl, Stage: stage, Status: status, Err: err, Elapsed: elapsed})
}

func emitRun(sink ProgressSink, stage Stage, status Status, err error, elapsed time.Duration) {
	if sink == nil {
		return
	}
	sink.OnEvent(Event{Stage: stage, Status: status, Err: err, Elapsed: elapsed})
}
