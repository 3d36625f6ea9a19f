package emit

import (
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/mod/modfile"

	"github.com/mm-zacharydavison/rpckit/internal/compiler/contract"
	rpcerrors "github.com/mm-zacharydavison/rpckit/internal/compiler/errors"
)

// placeholderVersion marks require entries whose real version only go mod
// tidy can decide.
const placeholderVersion = "v0.0.0-00010101000000-000000000000"

// runtimeModule is the module providing runtimeImport.
const runtimeModule = "github.com/mm-zacharydavison/rpckit"

// Result describes one emission: every artifact written and the manifest
// entries added for it.
type Result struct {
	Files         []string // written artifact paths, sorted
	Manifest      string   // the go.mod the artifacts belong to
	ImportBase    string   // import path of the output directory
	RequiresAdded []string // "module version" entries appended to the manifest
	TidyNeeded    bool     // a placeholder version was written
	ModuleCount   int
	ContractCount int
	TypeCount     int
	ExternalCount int
}

// Emitter renders and writes the declaration artifacts.
type Emitter struct {
	set         *contract.ContractSet
	index       *contract.Index
	resolutions []*contract.Resolution
	byModule    map[string]*contract.Resolution
	diags       *rpcerrors.List

	outDir     string
	pkg        string
	importBase string

	// reserved names the aggregate's own declarations; set by planAliases.
	reserved map[string]bool
}

// New creates an emitter writing into outDir. pkg names the aggregate
// package.
func New(set *contract.ContractSet, index *contract.Index, resolutions []*contract.Resolution, diags *rpcerrors.List, outDir, pkg string) *Emitter {
	byModule := make(map[string]*contract.Resolution, len(resolutions))
	for _, res := range resolutions {
		byModule[res.Module] = res
	}
	return &Emitter{
		set:         set,
		index:       index,
		resolutions: resolutions,
		byModule:    byModule,
		diags:       diags,
		outDir:      filepath.Clean(outDir),
		pkg:         pkg,
	}
}

// Emit renders every artifact, writes them, and updates the enclosing
// manifest. Rendering happens before anything touches disk, so a render
// failure leaves the output directory untouched.
func (e *Emitter) Emit() (*Result, error) {
	base, manifest, err := outputImportBase(e.outDir)
	if err != nil {
		return nil, err
	}
	e.importBase = base

	files := make(map[string][]byte, len(e.resolutions)+1)
	for _, res := range e.resolutions {
		rel := filepath.Join(res.Module, res.Module+".rpc.gen.go")
		files[rel] = e.moduleFile(res)
	}
	files["all.rpc.gen.go"] = e.aggregateFile()

	result := &Result{
		Manifest:      manifest,
		ImportBase:    base,
		ModuleCount:   len(e.resolutions),
		ContractCount: e.set.Len(),
		TypeCount:     len(e.index.Order),
		ExternalCount: len(e.index.External),
	}

	rels := make([]string, 0, len(files))
	for rel := range files {
		rels = append(rels, rel)
	}
	sort.Strings(rels)
	for _, rel := range rels {
		path := filepath.Join(e.outDir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, files[rel], 0o644); err != nil {
			return nil, err
		}
		result.Files = append(result.Files, path)
	}

	added, tidy, err := e.updateManifest(manifest)
	if err != nil {
		return nil, err
	}
	result.RequiresAdded = added
	result.TidyNeeded = tidy

	return result, nil
}

// outputImportBase computes the import path of the output directory from
// the nearest enclosing go.mod. Artifacts are Go packages; without a
// manifest above them they could never be imported, so none is fatal.
func outputImportBase(outDir string) (base, manifest string, err error) {
	abs, err := filepath.Abs(outDir)
	if err != nil {
		return "", "", err
	}

	dir := abs
	for {
		candidate := filepath.Join(dir, "go.mod")
		data, readErr := os.ReadFile(candidate)
		if readErr == nil {
			f, parseErr := modfile.ParseLax(candidate, data, nil)
			if parseErr != nil || f.Module == nil {
				return "", "", rpcerrors.Fatalf("emit", rpcerrors.CodeOutputManifest,
					"manifest %s enclosing the output directory is unreadable", candidate)
			}
			rel, relErr := filepath.Rel(dir, abs)
			if relErr != nil {
				return "", "", relErr
			}
			base = f.Module.Mod.Path
			if rel != "." {
				base += "/" + filepath.ToSlash(rel)
			}
			return base, candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", "", rpcerrors.Fatalf("emit", rpcerrors.CodeOutputManifest,
				"no go.mod found above output directory %s; artifacts would not be importable", outDir)
		}
		dir = parent
	}
}

// updateManifest appends require entries for every hosted module the
// artifacts import that the manifest does not already require. Entries with
// no resolved version get a placeholder; go mod tidy replaces it.
func (e *Emitter) updateManifest(manifest string) (added []string, tidy bool, err error) {
	needed := e.requiredModules()

	data, err := os.ReadFile(manifest)
	if err != nil {
		return nil, false, err
	}
	f, err := modfile.Parse(manifest, data, nil)
	if err != nil {
		return nil, false, rpcerrors.Fatalf("emit", rpcerrors.CodeOutputManifest,
			"cannot update %s: %v", manifest, err)
	}

	existing := make(map[string]bool, len(f.Require))
	for _, req := range f.Require {
		existing[req.Mod.Path] = true
	}
	if f.Module != nil {
		// The host module never requires itself.
		existing[f.Module.Mod.Path] = true
	}

	modules := make([]string, 0, len(needed))
	for module := range needed {
		modules = append(modules, module)
	}
	sort.Strings(modules)

	for _, module := range modules {
		if existing[module] {
			continue
		}
		version := needed[module]
		if version == "" {
			version = placeholderVersion
			tidy = true
			e.diags.Append(rpcerrors.Warningf("emit", rpcerrors.CodeVersionUnknown,
				rpcerrors.SourceLocation{File: manifest},
				"no version known for %s; wrote a placeholder, run go mod tidy", module))
		}
		if err := f.AddRequire(module, version); err != nil {
			return nil, false, err
		}
		added = append(added, module+" "+version)
	}

	if len(added) == 0 {
		return nil, tidy, nil
	}

	f.Cleanup()
	out, err := f.Format()
	if err != nil {
		return nil, false, err
	}
	if err := os.WriteFile(manifest, out, 0o644); err != nil {
		return nil, false, err
	}
	return added, tidy, nil
}

// requiredModules collects module path -> version for every hosted package
// the artifacts reference, plus the runtime module the aggregate imports.
func (e *Emitter) requiredModules() map[string]string {
	needed := map[string]string{runtimeModule: ""}

	names := make([]string, 0, len(e.index.External))
	for name := range e.index.External {
		names = append(names, name)
	}
	sort.Strings(names)

	referenced := make(map[string]bool)
	for _, res := range e.resolutions {
		for _, rec := range res.External {
			referenced[rec.TypeName] = true
		}
	}

	for _, name := range names {
		if !referenced[name] {
			continue
		}
		rec := e.index.External[name]
		if rec.Stdlib() {
			continue
		}
		module := rec.Module
		if module == "" {
			module = rec.Package
		}
		if current, ok := needed[module]; !ok || current == "" {
			needed[module] = rec.Version
		}
	}
	return needed
}
