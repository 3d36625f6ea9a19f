package source

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"

	rpcerrors "github.com/mm-zacharydavison/rpckit/internal/compiler/errors"
)

// ExpandRoots turns the configured root patterns into verified package
// roots. Patterns are resolved relative to baseDir (the directory holding
// the workspace config). A pattern may contain one wildcard segment; it is
// expanded against the filesystem and filtered to existing directories.
//
// Every surviving root must contain a go.mod: a root without one is a fatal
// configuration error naming the missing path.
func ExpandRoots(baseDir string, patterns []string) ([]*Root, error) {
	var dirs []string
	seen := make(map[string]bool)

	for _, pattern := range patterns {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(baseDir, pattern)
		}
		pattern = filepath.Clean(pattern)

		var matches []string
		if strings.Contains(pattern, "*") {
			expanded, err := filepath.Glob(pattern)
			if err != nil {
				return nil, rpcerrors.Fatalf("load", rpcerrors.CodeNoRoots,
					"invalid root pattern %q: %v", pattern, err)
			}
			sort.Strings(expanded)
			matches = expanded
		} else {
			matches = []string{pattern}
		}

		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil || !info.IsDir() {
				continue
			}
			if !seen[match] {
				seen[match] = true
				dirs = append(dirs, match)
			}
		}
	}

	if len(dirs) == 0 {
		return nil, rpcerrors.Fatalf("load", rpcerrors.CodeNoRoots,
			"no package roots matched %v", patterns)
	}

	roots := make([]*Root, 0, len(dirs))
	for _, dir := range dirs {
		modPath, err := moduleAt(dir)
		if err != nil {
			return nil, err
		}
		roots = append(roots, &Root{Dir: dir, ModulePath: modPath})
	}
	return roots, nil
}

// moduleAt reads the module path declared by <dir>/go.mod.
func moduleAt(dir string) (string, error) {
	manifest := filepath.Join(dir, "go.mod")
	data, err := os.ReadFile(manifest)
	if err != nil {
		return "", rpcerrors.Fatalf("load", rpcerrors.CodeMissingManifest,
			"package root %s has no module manifest: %s not found", dir, manifest)
	}

	f, err := modfile.ParseLax(manifest, data, nil)
	if err != nil || f.Module == nil {
		return "", rpcerrors.Fatalf("load", rpcerrors.CodeMissingManifest,
			"package root %s has an unreadable module manifest: %s", dir, manifest)
	}
	return f.Module.Mod.Path, nil
}

// ResolveVersion walks parent directories from fromDir to the nearest go.mod
// and looks the import path up in its require table. The longest matching
// module path wins so subpackage imports resolve to their module. Any
// failure degrades to two empty strings (module unknown); the run continues.
func ResolveVersion(fromDir, importPath string) (module, version string) {
	dir := fromDir
	for {
		manifest := filepath.Join(dir, "go.mod")
		if data, err := os.ReadFile(manifest); err == nil {
			f, err := modfile.ParseLax(manifest, data, nil)
			if err != nil {
				return "", ""
			}
			return requireEntry(f, importPath)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ""
		}
		dir = parent
	}
}

// VersionResolver memoizes ResolveVersion lookups. Attribution asks for the
// same (directory, import path) pair once per file that mentions the
// package, so caching keeps manifest reads proportional to the number of
// distinct externals instead of the number of references.
type VersionResolver struct {
	memo map[string]resolved
}

type resolved struct {
	module  string
	version string
}

// NewVersionResolver creates an empty resolver.
func NewVersionResolver() *VersionResolver {
	return &VersionResolver{memo: make(map[string]resolved)}
}

// Resolve returns the providing module and version of importPath as seen
// from fromDir.
func (v *VersionResolver) Resolve(fromDir, importPath string) (module, version string) {
	key := fromDir + "\x00" + importPath
	if r, ok := v.memo[key]; ok {
		return r.module, r.version
	}
	module, version = ResolveVersion(fromDir, importPath)
	v.memo[key] = resolved{module: module, version: version}
	return module, version
}

// requireEntry finds the require entry of the module providing importPath.
func requireEntry(f *modfile.File, importPath string) (module, version string) {
	for _, req := range f.Require {
		mod := req.Mod.Path
		if importPath != mod && !strings.HasPrefix(importPath, mod+"/") {
			continue
		}
		if len(mod) > len(module) {
			module = mod
			version = req.Mod.Version
		}
	}
	return module, version
}
