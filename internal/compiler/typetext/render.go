// Package typetext renders Go type expressions into the cleaned textual form
// the contract compiler works with, and lexically scans that text for type
// references. Cleaning strips qualifiers that point into scanned roots (a
// local type is identified by bare name everywhere) and rewrites external
// qualifiers to each package's default name so artifacts can import them by
// path.
package typetext

import (
	"fmt"
	"go/ast"
	"strings"

	"github.com/mm-zacharydavison/rpckit/internal/compiler/source"
)

// ExternalFunc is called once per externally-qualified reference the
// renderer encounters, with the qualified name ("uuid.UUID") and the import
// path it resolves to.
type ExternalFunc func(qualified, importPath string)

// Renderer renders type expressions for one source file. The file's import
// table decides which qualifiers are local (stripped) and which are external
// (kept and reported).
type Renderer struct {
	file     *source.File
	project  *source.Project
	external ExternalFunc
}

// NewRenderer creates a renderer for a file. external may be nil.
func NewRenderer(file *source.File, project *source.Project, external ExternalFunc) *Renderer {
	return &Renderer{file: file, project: project, external: external}
}

// TypeText renders a type expression to cleaned text.
func (r *Renderer) TypeText(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name

	case *ast.SelectorExpr:
		return r.selector(t)

	case *ast.StarExpr:
		return "*" + r.TypeText(t.X)

	case *ast.ArrayType:
		if t.Len == nil {
			return "[]" + r.TypeText(t.Elt)
		}
		return "[" + r.TypeText(t.Len) + "]" + r.TypeText(t.Elt)

	case *ast.MapType:
		return "map[" + r.TypeText(t.Key) + "]" + r.TypeText(t.Value)

	case *ast.ChanType:
		switch t.Dir {
		case ast.RECV:
			return "<-chan " + r.TypeText(t.Value)
		case ast.SEND:
			return "chan<- " + r.TypeText(t.Value)
		default:
			return "chan " + r.TypeText(t.Value)
		}

	case *ast.FuncType:
		return "func" + r.funcSignature(t)

	case *ast.StructType:
		return r.inlineStruct(t)

	case *ast.InterfaceType:
		return r.inlineInterface(t)

	case *ast.IndexExpr:
		return r.TypeText(t.X) + "[" + r.TypeText(t.Index) + "]"

	case *ast.IndexListExpr:
		args := make([]string, 0, len(t.Indices))
		for _, index := range t.Indices {
			args = append(args, r.TypeText(index))
		}
		return r.TypeText(t.X) + "[" + strings.Join(args, ", ") + "]"

	case *ast.Ellipsis:
		return "..." + r.TypeText(t.Elt)

	case *ast.ParenExpr:
		return "(" + r.TypeText(t.X) + ")"

	case *ast.CallExpr:
		// Const expressions like Status(iota).
		args := make([]string, 0, len(t.Args))
		for _, arg := range t.Args {
			args = append(args, r.TypeText(arg))
		}
		return r.TypeText(t.Fun) + "(" + strings.Join(args, ", ") + ")"

	case *ast.BasicLit:
		return t.Value

	case *ast.BinaryExpr:
		// Array lengths and const exprs inside types.
		return r.TypeText(t.X) + " " + t.Op.String() + " " + r.TypeText(t.Y)

	case *ast.UnaryExpr:
		return t.Op.String() + r.TypeText(t.X)

	default:
		return fmt.Sprintf("%T", expr)
	}
}

// selector renders pkg.Sym, stripping the qualifier when pkg resolves to a
// scanned root and reporting it as external otherwise. External qualifiers
// are normalized to the package's default name: artifacts import external
// packages by bare path, so a source-file alias must not survive into the
// rendered text.
func (r *Renderer) selector(sel *ast.SelectorExpr) string {
	pkg, ok := sel.X.(*ast.Ident)
	if !ok {
		return r.TypeText(sel.X) + "." + sel.Sel.Name
	}

	path, known := r.file.Imports[pkg.Name]
	if !known {
		return pkg.Name + "." + sel.Sel.Name
	}
	if r.project.IsLocal(path) {
		return sel.Sel.Name
	}

	qualified := source.PackageName(path) + "." + sel.Sel.Name
	if r.external != nil {
		r.external(qualified, path)
	}
	return qualified
}

// Signature renders "(params) results" for an interface method or func
// value, without the leading func keyword.
func (r *Renderer) Signature(fn *ast.FuncType) string {
	return r.funcSignature(fn)
}

// funcSignature renders "(params) results" for func types and interface
// methods.
func (r *Renderer) funcSignature(fn *ast.FuncType) string {
	var b strings.Builder
	b.WriteString("(")
	b.WriteString(r.fieldListText(fn.Params))
	b.WriteString(")")

	if fn.Results == nil || len(fn.Results.List) == 0 {
		return b.String()
	}

	results := r.fieldListText(fn.Results)
	if len(fn.Results.List) == 1 && len(fn.Results.List[0].Names) == 0 {
		b.WriteString(" " + results)
	} else {
		b.WriteString(" (" + results + ")")
	}
	return b.String()
}

func (r *Renderer) fieldListText(fields *ast.FieldList) string {
	if fields == nil {
		return ""
	}
	parts := make([]string, 0, len(fields.List))
	for _, field := range fields.List {
		text := r.TypeText(field.Type)
		if len(field.Names) == 0 {
			parts = append(parts, text)
			continue
		}
		names := make([]string, 0, len(field.Names))
		for _, name := range field.Names {
			names = append(names, name.Name)
		}
		parts = append(parts, strings.Join(names, ", ")+" "+text)
	}
	return strings.Join(parts, ", ")
}

// inlineStruct renders an anonymous struct type on one line.
func (r *Renderer) inlineStruct(st *ast.StructType) string {
	if st.Fields == nil || len(st.Fields.List) == 0 {
		return "struct{}"
	}
	parts := make([]string, 0, len(st.Fields.List))
	for _, field := range st.Fields.List {
		text := r.TypeText(field.Type)
		if len(field.Names) == 0 {
			parts = append(parts, text)
			continue
		}
		names := make([]string, 0, len(field.Names))
		for _, name := range field.Names {
			names = append(names, name.Name)
		}
		entry := strings.Join(names, ", ") + " " + text
		if field.Tag != nil {
			entry += " " + field.Tag.Value
		}
		parts = append(parts, entry)
	}
	return "struct{ " + strings.Join(parts, "; ") + " }"
}

// inlineInterface renders an anonymous interface type on one line.
func (r *Renderer) inlineInterface(it *ast.InterfaceType) string {
	if it.Methods == nil || len(it.Methods.List) == 0 {
		return "interface{}"
	}
	parts := make([]string, 0, len(it.Methods.List))
	for _, method := range it.Methods.List {
		if len(method.Names) == 0 {
			parts = append(parts, r.TypeText(method.Type))
			continue
		}
		fn, ok := method.Type.(*ast.FuncType)
		if !ok {
			parts = append(parts, method.Names[0].Name)
			continue
		}
		parts = append(parts, method.Names[0].Name+r.funcSignature(fn))
	}
	return "interface{ " + strings.Join(parts, "; ") + " }"
}

// TypeParams renders a declaration's type parameter list into name and
// constraint texts.
func (r *Renderer) TypeParams(fields *ast.FieldList) []ParamPair {
	if fields == nil {
		return nil
	}
	var params []ParamPair
	for _, field := range fields.List {
		constraint := r.TypeText(field.Type)
		for _, name := range field.Names {
			params = append(params, ParamPair{Name: name.Name, Constraint: constraint})
		}
	}
	return params
}

// ParamPair is a rendered type parameter.
type ParamPair struct {
	Name       string
	Constraint string
}
