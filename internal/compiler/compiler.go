// Package compiler orchestrates the contract compiler passes: source
// loading, method discovery, type extraction, dependency resolution, and
// artifact emission. A run is synchronous and batch: every invocation
// re-derives all artifacts from the scanned source, and nothing is written
// until every artifact rendered.
package compiler

import (
	"github.com/mm-zacharydavison/rpckit/internal/compiler/contract"
	"github.com/mm-zacharydavison/rpckit/internal/compiler/discovery"
	"github.com/mm-zacharydavison/rpckit/internal/compiler/emit"
	rpcerrors "github.com/mm-zacharydavison/rpckit/internal/compiler/errors"
	"github.com/mm-zacharydavison/rpckit/internal/compiler/extract"
	"github.com/mm-zacharydavison/rpckit/internal/compiler/resolve"
	"github.com/mm-zacharydavison/rpckit/internal/compiler/source"
)

// Options configure one compiler instance.
type Options struct {
	// BaseDir anchors relative root patterns; commands pass the directory
	// holding the workspace config.
	BaseDir string
	// Roots are the package-root patterns, each with at most one wildcard
	// segment.
	Roots []string
	// Output is the directory artifacts are written into.
	Output string
	// Package names the aggregate artifact's package.
	Package string
	// CacheSize bounds the parse cache. Zero disables caching, which is the
	// correct setting for one-shot runs; watch mode passes a positive size
	// so unchanged files skip re-parsing between regenerations.
	CacheSize int
}

// Result collects everything a run derived.
type Result struct {
	Project     *source.Project
	Contracts   *contract.ContractSet
	Index       *contract.Index
	Resolutions []*contract.Resolution
	Emission    *emit.Result // nil for analysis-only runs
	Diagnostics *rpcerrors.List
}

// Compiler runs the contract compiler. One instance may run repeatedly; the
// parse cache, when enabled, carries across runs of the same instance.
type Compiler struct {
	opts   Options
	loader *source.Loader
	diags  *rpcerrors.List
}

// New creates a compiler.
func New(opts Options) *Compiler {
	diags := &rpcerrors.List{}
	return &Compiler{
		opts:   opts,
		loader: source.NewLoader(opts.CacheSize, diags),
		diags:  diags,
	}
}

// Analyze runs the read-only passes: load, discover, extract, resolve.
// Nothing is written; inspect and reporting build on this.
func (c *Compiler) Analyze() (*Result, error) {
	c.diags.Reset()

	roots, err := source.ExpandRoots(c.opts.BaseDir, c.opts.Roots)
	if err != nil {
		return nil, err
	}
	project, err := c.loader.Load(roots)
	if err != nil {
		return nil, err
	}

	index := contract.NewIndex()
	versions := source.NewVersionResolver()
	set := discovery.New(project, index, versions, c.diags).Discover()
	extract.New(project, set, index, versions, c.diags).Extract()
	resolutions := resolve.New(set, index, c.diags).Resolve()

	return &Result{
		Project:     project,
		Contracts:   set,
		Index:       index,
		Resolutions: resolutions,
		Diagnostics: c.diags,
	}, nil
}

// Generate runs Analyze and then writes every artifact and the manifest
// update. A fatal error before emission leaves prior artifacts untouched.
func (c *Compiler) Generate() (*Result, error) {
	result, err := c.Analyze()
	if err != nil {
		return nil, err
	}

	emitter := emit.New(result.Contracts, result.Index, result.Resolutions,
		c.diags, c.opts.Output, c.opts.Package)
	emission, err := emitter.Emit()
	if err != nil {
		return nil, err
	}
	result.Emission = emission
	return result, nil
}

// Invalidate drops a file from the parse cache, forcing a re-parse on the
// next run. A no-op without a cache.
func (c *Compiler) Invalidate(path string) {
	c.loader.Invalidate(path)
}
