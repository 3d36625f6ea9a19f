// Package extract implements the type extraction pass. It walks every
// declaration file and records exported type declarations as re-exportable
// definitions: interfaces, aliases, enums (a defined type plus its const
// blocks), and DTO structs. Extraction rewrites timestamp fields to their
// wire type, fills the codec tables, and attributes every externally
// imported reference to its package and version.
package extract

import (
	"go/ast"
	"go/token"
	"path/filepath"
	"strings"

	"github.com/mm-zacharydavison/rpckit/internal/compiler/contract"
	rpcerrors "github.com/mm-zacharydavison/rpckit/internal/compiler/errors"
	"github.com/mm-zacharydavison/rpckit/internal/compiler/source"
	"github.com/mm-zacharydavison/rpckit/internal/compiler/typetext"
)

// constBlock associates one const declaration with the defined type its
// first typed spec names.
type constBlock struct {
	typeName string
	decl     *ast.GenDecl
}

// pendingRef is a struct field whose type text mentions declared types. It
// becomes a nested codec entry once any candidate turns out codec-bearing.
type pendingRef struct {
	owner      string
	field      string
	candidates []string
}

// Extractor runs the extraction pass over a loaded project.
type Extractor struct {
	project  *source.Project
	set      *contract.ContractSet
	index    *contract.Index
	versions *source.VersionResolver
	diags    *rpcerrors.List

	consts  map[string][]constBlock // directory -> const blocks, file order
	pending []pendingRef
}

// New creates an extractor that fills index.
func New(project *source.Project, set *contract.ContractSet, index *contract.Index, versions *source.VersionResolver, diags *rpcerrors.List) *Extractor {
	return &Extractor{
		project:  project,
		set:      set,
		index:    index,
		versions: versions,
		diags:    diags,
		consts:   make(map[string][]constBlock),
	}
}

// Extract scans the project. Const blocks are indexed across the whole
// project first so an enum's values can live in a different file than the
// type, as long as both share a directory.
func (e *Extractor) Extract() {
	for _, file := range e.project.Files {
		e.indexConstBlocks(file)
	}
	for _, file := range e.project.Files {
		e.extractFile(file)
	}
	e.propagateNestedCodecs()
}

// indexConstBlocks records every const declaration whose first typed spec
// names an exported defined type.
func (e *Extractor) indexConstBlocks(file *source.File) {
	for _, decl := range file.AST.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.CONST {
			continue
		}
		name := constBlockType(gd)
		if name == "" {
			continue
		}
		e.consts[file.Dir] = append(e.consts[file.Dir], constBlock{typeName: name, decl: gd})
	}
}

// constBlockType returns the exported type name a const block belongs to.
func constBlockType(gd *ast.GenDecl) string {
	for _, spec := range gd.Specs {
		vs, ok := spec.(*ast.ValueSpec)
		if !ok || vs.Type == nil {
			continue
		}
		ident, ok := vs.Type.(*ast.Ident)
		if !ok || !ast.IsExported(ident.Name) {
			continue
		}
		return ident.Name
	}
	return ""
}

// extractFile records every extractable type declared in the file.
func (e *Extractor) extractFile(file *source.File) {
	r := e.renderer(file)
	module := e.moduleOf(file)

	for _, decl := range file.AST.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, spec := range gd.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok || !ast.IsExported(ts.Name.Name) {
				continue
			}

			doc := source.SpecDoc(ts, gd)
			if _, marked := source.Directive(doc, source.ControllerDirective); marked {
				// Controllers are service entry points, not wire data.
				continue
			}

			def := e.buildDefinition(file, r, ts)
			if def == nil {
				continue
			}
			def.Module = module
			def.Doc = source.DocText(doc)
			def.File = file.Path

			if conflict := e.index.AddType(def); conflict != nil {
				e.diags.Append(rpcerrors.Warningf("extract", rpcerrors.CodeNameConflict,
					e.location(ts.Pos()),
					"type %s conflicts with the definition in %s; the first definition wins",
					def.Name, conflict.File))
			}
		}
	}
}

// buildDefinition classifies and renders one type spec. Returns nil for
// declarations that are not part of the contract surface: structs without
// exported fields, for instance.
func (e *Extractor) buildDefinition(file *source.File, r *typetext.Renderer, ts *ast.TypeSpec) *contract.TypeDefinition {
	def := &contract.TypeDefinition{
		Name:       ts.Name.Name,
		TypeParams: toTypeParams(r.TypeParams(ts.TypeParams)),
	}

	if ts.Assign.IsValid() {
		def.Kind = contract.KindAlias
		def.Source = "type " + ts.Name.Name + typeParamsText(r, ts.TypeParams) + " = " + r.TypeText(ts.Type)
		return def
	}

	switch ts.Type.(type) {
	case *ast.StructType:
		src, exported := e.renderStruct(file, r, ts)
		if exported == 0 {
			return nil
		}
		def.Kind = contract.KindStruct
		def.Source = src

	case *ast.InterfaceType:
		def.Kind = contract.KindInterface
		def.Source = e.renderInterface(r, ts)

	default:
		if blocks := e.enumBlocks(file.Dir, ts.Name.Name); len(blocks) > 0 {
			def.Kind = contract.KindEnum
			def.Source = e.renderEnum(r, ts, blocks)
			def.ConstNames = exportedConstNames(blocks)
		} else {
			def.Kind = contract.KindAlias
			def.Source = "type " + ts.Name.Name + typeParamsText(r, ts.TypeParams) + " " + r.TypeText(ts.Type)
		}
	}
	return def
}

// enumBlocks returns the const blocks in dir belonging to the named type.
func (e *Extractor) enumBlocks(dir, name string) []constBlock {
	var blocks []constBlock
	for _, blk := range e.consts[dir] {
		if blk.typeName == name {
			blocks = append(blocks, blk)
		}
	}
	return blocks
}

// moduleOf attributes a file to a module by its directory, walking up to
// the root boundary when the directory itself was never mapped.
func (e *Extractor) moduleOf(file *source.File) string {
	dir := file.Dir
	for {
		if module, ok := e.set.DirModules[dir]; ok {
			return module
		}
		if dir == file.Root.Dir {
			return contract.ModuleUnknown
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return contract.ModuleUnknown
		}
		dir = parent
	}
}

// propagateNestedCodecs resolves pending field references until the codec
// tables stop changing. A field earns a nested entry when any of its
// candidate types is codec-bearing, including through other nested entries.
func (e *Extractor) propagateNestedCodecs() {
	for changed := true; changed; {
		changed = false
		for _, p := range e.pending {
			if fields := e.index.Codecs[p.owner]; fields != nil && fields[p.field] != "" {
				continue
			}
			for _, candidate := range p.candidates {
				if len(e.index.Codecs[candidate]) == 0 {
					continue
				}
				e.index.Codecs.Add(p.owner, p.field, "@"+candidate)
				changed = true
				break
			}
		}
	}
}

// pendField queues a nested codec check for one rendered field.
func (e *Extractor) pendField(owner, field, text string) {
	candidates := bareCandidates(text)
	if len(candidates) == 0 {
		return
	}
	e.pending = append(e.pending, pendingRef{owner: owner, field: field, candidates: candidates})
}

// bareCandidates extracts the unqualified type names mentioned in cleaned
// type text, deduplicated in order of appearance.
func bareCandidates(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, id := range typetext.Identifiers(text) {
		if strings.Contains(id, ".") || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// renderer builds a per-file renderer that attributes external references
// into the index.
func (e *Extractor) renderer(file *source.File) *typetext.Renderer {
	return typetext.NewRenderer(file, e.project, func(qualified, importPath string) {
		module, version := e.versions.Resolve(file.Dir, importPath)
		rec := contract.ExternalImportRecord{
			TypeName: qualified,
			Package:  importPath,
			Module:   module,
			Version:  version,
		}
		if prev, collided := e.index.AddExternal(rec); collided {
			e.diags.Append(rpcerrors.Warningf("extract", rpcerrors.CodeImportCollision,
				rpcerrors.SourceLocation{File: file.Path},
				"%s now attributed to %s (previously %s)",
				qualified, importPath, prev.Package))
		}
	})
}

func (e *Extractor) location(pos token.Pos) rpcerrors.SourceLocation {
	p := e.project.Fset.Position(pos)
	return rpcerrors.SourceLocation{File: p.Filename, Line: p.Line, Column: p.Column}
}

// toTypeParams converts rendered pairs into contract type parameters.
func toTypeParams(pairs []typetext.ParamPair) []contract.TypeParam {
	if len(pairs) == 0 {
		return nil
	}
	params := make([]contract.TypeParam, len(pairs))
	for i, pair := range pairs {
		params[i] = contract.TypeParam{Name: pair.Name, Constraint: pair.Constraint}
	}
	return params
}

// typeParamsText renders a declaration's type parameter clause.
func typeParamsText(r *typetext.Renderer, fields *ast.FieldList) string {
	pairs := r.TypeParams(fields)
	if len(pairs) == 0 {
		return ""
	}
	parts := make([]string, len(pairs))
	for i, pair := range pairs {
		parts[i] = pair.Name + " " + pair.Constraint
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
