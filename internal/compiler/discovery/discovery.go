// Package discovery implements the method discovery pass. It finds types
// carrying the rpc:controller directive, resolves each controller's module
// name, and registers a service method contract for every method carrying
// the rpc:method directive. Discovery also builds the directory-to-module
// attribution map the extractor uses to tag type-only files.
package discovery

import (
	"fmt"
	"go/ast"
	"go/token"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mm-zacharydavison/rpckit/internal/compiler/contract"
	rpcerrors "github.com/mm-zacharydavison/rpckit/internal/compiler/errors"
	"github.com/mm-zacharydavison/rpckit/internal/compiler/source"
	"github.com/mm-zacharydavison/rpckit/internal/compiler/typetext"
)

// moduleRx constrains resolved module names: patterns are dotted paths and
// the module half must read as one lowercase word.
var moduleRx = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// roleSuffixes are stripped from a controller type name before lowercasing,
// so OrderService, OrderApplication and OrderHandler all resolve to "order".
// Only the first matching suffix is removed.
var roleSuffixes = []string{"Service", "Application", "Handler", "Repository", "Controller"}

// controllerInfo is one registered controller type.
type controllerInfo struct {
	module     string // "" when the module name failed validation
	typeParams []contract.TypeParam
}

// Discoverer runs the discovery pass over a loaded project.
type Discoverer struct {
	project  *source.Project
	index    *contract.Index
	versions *source.VersionResolver
	diags    *rpcerrors.List

	controllers map[string]controllerInfo // dir + "\x00" + type name
}

// New creates a discoverer. External references found in method signatures
// are attributed into index as they are rendered.
func New(project *source.Project, index *contract.Index, versions *source.VersionResolver, diags *rpcerrors.List) *Discoverer {
	return &Discoverer{
		project:     project,
		index:       index,
		versions:    versions,
		diags:       diags,
		controllers: make(map[string]controllerInfo),
	}
}

// Discover scans the project and returns the contract set. Controllers are
// indexed across the whole project first so that a method file sorting
// before its controller's file still resolves.
func (d *Discoverer) Discover() *contract.ContractSet {
	set := contract.NewContractSet()

	for _, file := range d.project.Files {
		d.scanControllers(file, set)
	}
	for _, file := range d.project.Files {
		d.scanMethods(file, set)
	}

	return set
}

// scanControllers registers every controller-marked type declared in the
// file and records the file's directory attribution.
func (d *Discoverer) scanControllers(file *source.File, set *contract.ContractSet) {
	r := d.renderer(file)

	for _, decl := range file.AST.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, spec := range gd.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}

			arg, marked := source.Directive(source.SpecDoc(ts, gd), source.ControllerDirective)
			if !marked {
				continue
			}

			module := d.moduleFor(ts, arg)
			info := controllerInfo{module: module}
			for _, pair := range r.TypeParams(ts.TypeParams) {
				info.typeParams = append(info.typeParams, contract.TypeParam{
					Name:       pair.Name,
					Constraint: pair.Constraint,
				})
			}
			d.controllers[controllerKey(file.Dir, ts.Name.Name)] = info

			if module != "" {
				d.mapDirs(set, file, module)
			}
		}
	}
}

// moduleFor resolves a controller's module name: the explicit directive
// argument when present, otherwise the type name with one role suffix
// stripped, lowercased. Invalid names are warned about and yield "" so the
// controller's methods are skipped.
func (d *Discoverer) moduleFor(ts *ast.TypeSpec, arg string) string {
	module := arg
	if module == "" {
		base := ts.Name.Name
		for _, suffix := range roleSuffixes {
			if base != suffix && strings.HasSuffix(base, suffix) {
				base = strings.TrimSuffix(base, suffix)
				break
			}
		}
		module = strings.ToLower(base)
	}

	if !moduleRx.MatchString(module) {
		d.diags.Append(rpcerrors.Warningf("discover", rpcerrors.CodeBadPattern,
			d.location(ts.Pos()),
			"controller %s resolves to invalid module name %q; its methods will be skipped",
			ts.Name.Name, module))
		return ""
	}
	return module
}

// scanMethods registers a contract for every rpc:method function in the
// file whose receiver is a known controller.
func (d *Discoverer) scanMethods(file *source.File, set *contract.ContractSet) {
	r := d.renderer(file)

	for _, decl := range file.AST.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Recv == nil || len(fd.Recv.List) != 1 {
			continue
		}
		if _, marked := source.Directive(fd.Doc, source.MethodDirective); !marked {
			continue
		}

		recvName, bindings := receiverBase(fd.Recv.List[0].Type)
		info, known := d.controllers[controllerKey(file.Dir, recvName)]
		if !known {
			d.diags.Append(rpcerrors.Warningf("discover", rpcerrors.CodeOrphanMethod,
				d.location(fd.Pos()),
				"method %s carries the method directive but receiver type %s has no controller directive",
				fd.Name.Name, recvName))
			continue
		}
		if info.module == "" {
			// Controller already warned about; skip quietly.
			continue
		}

		c, ok := d.buildContract(file, r, fd, info, bindings)
		if !ok {
			continue
		}

		if replaced := set.Add(c); replaced != nil {
			d.diags.Append(rpcerrors.Warningf("discover", rpcerrors.CodeDuplicatePattern,
				d.location(fd.Pos()),
				"pattern %s already registered by %s; this definition replaces it",
				c.Pattern, replaced.File))
		}
		d.mapDirs(set, file, info.module)
	}
}

// buildContract renders one method into a contract. Returns false when the
// signature cannot be represented (more than one non-error result).
func (d *Discoverer) buildContract(file *source.File, r *typetext.Renderer, fd *ast.FuncDecl, info controllerInfo, bindings []string) (*contract.ServiceMethodContract, bool) {
	c := &contract.ServiceMethodContract{
		Module:     info.module,
		Method:     fd.Name.Name,
		Pattern:    info.module + "." + fd.Name.Name,
		TypeParams: bindTypeParams(info.typeParams, bindings),
		Doc:        source.DocText(fd.Doc),
		File:       file.Path,
	}

	argIndex := 0
	for i, field := range fd.Type.Params.List {
		if i == 0 && len(field.Names) <= 1 && isContextParam(file, field.Type) {
			c.HasContext = true
			continue
		}
		text := r.TypeText(field.Type)
		if len(field.Names) == 0 {
			c.Params = append(c.Params, contract.Param{Name: fmt.Sprintf("arg%d", argIndex), Type: text})
			argIndex++
			continue
		}
		for _, name := range field.Names {
			c.Params = append(c.Params, contract.Param{Name: name.Name, Type: text})
			argIndex++
		}
	}

	results := flattenResults(fd.Type.Results)
	if n := len(results); n > 0 {
		if isErrorType(results[n-1]) {
			c.HasError = true
			results = results[:n-1]
		}
	}
	switch len(results) {
	case 0:
	case 1:
		c.Result = r.TypeText(results[0])
	default:
		d.diags.Append(rpcerrors.Warningf("discover", rpcerrors.CodeBadSignature,
			d.location(fd.Pos()),
			"method %s returns %d non-error values; remote methods may return at most one",
			fd.Name.Name, len(results)))
		return nil, false
	}

	return c, true
}

// mapDirs records the directory attribution for a controller or method
// file. When the immediate parent is a conventional source root (the module
// root itself or an internal directory) the parent maps as well, so sibling
// type-only packages inherit the module.
func (d *Discoverer) mapDirs(set *contract.ContractSet, file *source.File, module string) {
	set.MapDir(file.Dir, module)

	parent := filepath.Dir(file.Dir)
	if parent == file.Root.Dir || filepath.Base(parent) == "internal" {
		set.MapDir(parent, module)
	}
}

// renderer builds a per-file renderer that attributes external references
// into the index as they appear in signatures.
func (d *Discoverer) renderer(file *source.File) *typetext.Renderer {
	return typetext.NewRenderer(file, d.project, func(qualified, importPath string) {
		module, version := d.versions.Resolve(file.Dir, importPath)
		rec := contract.ExternalImportRecord{
			TypeName: qualified,
			Package:  importPath,
			Module:   module,
			Version:  version,
		}
		if prev, collided := d.index.AddExternal(rec); collided {
			d.diags.Append(rpcerrors.Warningf("discover", rpcerrors.CodeImportCollision,
				rpcerrors.SourceLocation{File: file.Path},
				"%s now attributed to %s (previously %s)",
				qualified, importPath, prev.Package))
		}
	})
}

func (d *Discoverer) location(pos token.Pos) rpcerrors.SourceLocation {
	p := d.project.Fset.Position(pos)
	return rpcerrors.SourceLocation{File: p.Filename, Line: p.Line, Column: p.Column}
}

// receiverBase unwraps a receiver type expression to its base type name and
// any generic bindings declared on the receiver.
func receiverBase(expr ast.Expr) (string, []string) {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverBase(t.X)
	case *ast.ParenExpr:
		return receiverBase(t.X)
	case *ast.Ident:
		return t.Name, nil
	case *ast.IndexExpr:
		name, _ := receiverBase(t.X)
		return name, identNames(t.Index)
	case *ast.IndexListExpr:
		name, _ := receiverBase(t.X)
		return name, identNames(t.Indices...)
	}
	return "", nil
}

func identNames(exprs ...ast.Expr) []string {
	names := make([]string, 0, len(exprs))
	for _, expr := range exprs {
		if ident, ok := expr.(*ast.Ident); ok {
			names = append(names, ident.Name)
		}
	}
	return names
}

// bindTypeParams pairs the receiver's binding names with the constraints
// from the controller's declaration, positionally.
func bindTypeParams(declared []contract.TypeParam, bindings []string) []contract.TypeParam {
	if len(bindings) == 0 {
		return nil
	}
	params := make([]contract.TypeParam, len(bindings))
	for i, binding := range bindings {
		constraint := "any"
		if i < len(declared) {
			constraint = declared[i].Constraint
		}
		params[i] = contract.TypeParam{Name: binding, Constraint: constraint}
	}
	return params
}

// isContextParam reports whether the expression is context.Context according
// to the file's import table.
func isContextParam(file *source.File, expr ast.Expr) bool {
	sel, ok := expr.(*ast.SelectorExpr)
	if !ok {
		return false
	}
	pkg, ok := sel.X.(*ast.Ident)
	if !ok {
		return false
	}
	return file.Imports[pkg.Name] == "context" && sel.Sel.Name == "Context"
}

// isErrorType reports whether the expression is the predeclared error type.
func isErrorType(expr ast.Expr) bool {
	ident, ok := expr.(*ast.Ident)
	return ok && ident.Name == "error"
}

// flattenResults expands a result field list into one expression per value.
func flattenResults(fields *ast.FieldList) []ast.Expr {
	if fields == nil {
		return nil
	}
	var exprs []ast.Expr
	for _, field := range fields.List {
		n := len(field.Names)
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			exprs = append(exprs, field.Type)
		}
	}
	return exprs
}

func controllerKey(dir, typeName string) string {
	return dir + "\x00" + typeName
}
