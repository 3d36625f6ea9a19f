// Package source loads the configured package roots into an analyzable
// project: it expands root patterns, verifies each root is a Go module,
// walks the declaration files beneath it, and parses them. The loader is the
// first compiler pass; everything downstream works on the Project it builds.
package source

import (
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mm-zacharydavison/rpckit/internal/compiler/cache"
	rpcerrors "github.com/mm-zacharydavison/rpckit/internal/compiler/errors"
)

// generatedRx matches the conventional generated-file header. Files carrying
// it are not declaration source and are never scanned.
var generatedRx = regexp.MustCompile(`^// Code generated .* DO NOT EDIT\.$`)

// Root is one expanded package root: a directory that contains a go.mod.
type Root struct {
	Dir        string // cleaned path
	ModulePath string // module path declared by <Dir>/go.mod
}

// File is one parsed declaration file.
type File struct {
	Path    string
	Dir     string
	Root    *Root
	AST     *ast.File
	Source  []byte
	Imports map[string]string // local name or alias -> import path
}

// Project holds every loaded file in deterministic walk order, plus the
// shared position set for diagnostics.
type Project struct {
	Roots []*Root
	Files []*File
	Fset  *token.FileSet
}

// IsLocal reports whether an import path belongs to one of the scanned
// roots' modules. Local packages are the ones whose qualifiers get stripped
// from extracted type text.
func (p *Project) IsLocal(importPath string) bool {
	for _, root := range p.Roots {
		if importPath == root.ModulePath || strings.HasPrefix(importPath, root.ModulePath+"/") {
			return true
		}
	}
	return false
}

// parsed pairs an AST with the source bytes it came from, for cache storage.
type parsed struct {
	file    *ast.File
	source  []byte
	imports map[string]string
}

// Loader walks and parses package roots. A Loader is not safe for concurrent
// use; watch mode serializes runs through a single instance so the parse
// cache carries across regenerations.
type Loader struct {
	fset  *token.FileSet
	cache *cache.Cache[parsed]
	diags *rpcerrors.List
}

// NewLoader creates a loader. cacheSize <= 0 disables parse caching, which is
// the correct setting for one-shot runs: every invocation must re-derive all
// artifacts from scratch.
func NewLoader(cacheSize int, diags *rpcerrors.List) *Loader {
	l := &Loader{
		fset:  token.NewFileSet(),
		diags: diags,
	}
	if cacheSize > 0 {
		l.cache = cache.New[parsed](cacheSize)
	}
	return l
}

// Fset returns the loader's shared position set.
func (l *Loader) Fset() *token.FileSet {
	return l.fset
}

// Invalidate drops a path from the parse cache. A no-op when caching is
// disabled.
func (l *Loader) Invalidate(path string) {
	if l.cache != nil {
		l.cache.Invalidate(path)
	}
}

// Load walks every root and parses the declaration files beneath it. Files
// that fail to read or parse are skipped with a warning; the run continues.
func (l *Loader) Load(roots []*Root) (*Project, error) {
	project := &Project{
		Roots: roots,
		Fset:  l.fset,
	}

	for _, root := range roots {
		err := filepath.WalkDir(root.Dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if d.IsDir() {
				if skipDir(d.Name(), path, root.Dir) {
					return filepath.SkipDir
				}
				return nil
			}

			if !isDeclarationFile(path) {
				return nil
			}

			file, ok := l.loadFile(path, root)
			if ok {
				project.Files = append(project.Files, file)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return project, nil
}

// loadFile reads and parses one file, consulting the parse cache when
// enabled. Returns false when the file was skipped.
func (l *Loader) loadFile(path string, root *Root) (*File, bool) {
	src, err := os.ReadFile(path)
	if err != nil {
		l.diags.Append(rpcerrors.Warningf("load", rpcerrors.CodeUnreadableFile,
			rpcerrors.SourceLocation{File: path},
			"cannot read %s: %v", path, err))
		return nil, false
	}

	hash := cache.Hash(src)
	if l.cache != nil {
		if p, ok := l.cache.Get(path, hash); ok {
			if p.file == nil {
				// Cached negative entry: generated or unparseable last time
				// with identical content, so it still is.
				return nil, false
			}
			return l.makeFile(path, root, p), true
		}
	}

	p, ok := l.parse(path, src)
	if l.cache != nil {
		l.cache.Add(path, hash, p)
	}
	if !ok {
		return nil, false
	}
	return l.makeFile(path, root, p), true
}

// parse parses source bytes. Generated files come back with ok=false and no
// diagnostic; parse failures come back with ok=false and a warning.
func (l *Loader) parse(path string, src []byte) (parsed, bool) {
	astFile, err := parser.ParseFile(l.fset, path, src, parser.ParseComments)
	if err != nil {
		l.diags.Append(rpcerrors.Warningf("load", rpcerrors.CodeParseFailure,
			rpcerrors.SourceLocation{File: path},
			"cannot parse %s: %v", path, err))
		return parsed{}, false
	}

	if isGenerated(astFile) {
		return parsed{}, false
	}

	return parsed{
		file:    astFile,
		source:  src,
		imports: importMap(astFile),
	}, true
}

func (l *Loader) makeFile(path string, root *Root, p parsed) *File {
	return &File{
		Path:    path,
		Dir:     filepath.Dir(path),
		Root:    root,
		AST:     p.file,
		Source:  p.source,
		Imports: p.imports,
	}
}

// skipDir filters directories the Go toolchain itself would not build:
// vendor trees, testdata, hidden and underscore-prefixed directories. The
// root itself is never skipped even when its base name matches.
func skipDir(name, path, rootDir string) bool {
	if path == rootDir {
		return false
	}
	if name == "vendor" || name == "testdata" {
		return true
	}
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
		return true
	}
	return false
}

// isDeclarationFile reports whether a path is scannable Go source.
func isDeclarationFile(path string) bool {
	if filepath.Ext(path) != ".go" {
		return false
	}
	return !strings.HasSuffix(path, "_test.go")
}

// isGenerated checks the file's leading comments for the conventional
// generated-code header.
func isGenerated(f *ast.File) bool {
	for _, group := range f.Comments {
		// Only headers above the package clause count.
		if group.Pos() > f.Package {
			break
		}
		for _, c := range group.List {
			if generatedRx.MatchString(c.Text) {
				return true
			}
		}
	}
	return false
}

// importMap builds the local-name-to-path table for a file. When an import
// has no alias the last path segment is used, with versioned module suffixes
// (/v2, /v3, ...) skipped over, matching the compiler's naming convention
// closely enough for lexical analysis.
func importMap(f *ast.File) map[string]string {
	imports := make(map[string]string, len(f.Imports))
	for _, spec := range f.Imports {
		path := strings.Trim(spec.Path.Value, `"`)

		var name string
		if spec.Name != nil {
			name = spec.Name.Name
			if name == "_" || name == "." {
				continue
			}
		} else {
			name = PackageName(path)
		}
		imports[name] = path
	}
	return imports
}

// PackageName guesses the package identifier for an import path. The same
// guess names the qualifier in rendered type text, so aliased imports and
// plain-path artifact imports agree on one name.
func PackageName(path string) string {
	segments := strings.Split(path, "/")
	name := segments[len(segments)-1]
	if len(segments) > 1 && len(name) > 1 && name[0] == 'v' {
		if isAllDigits(name[1:]) {
			name = segments[len(segments)-2]
		}
	}
	// Hyphenated repository names usually declare the last word as the
	// package name (go-isatty -> isatty).
	if i := strings.LastIndex(name, "-"); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
