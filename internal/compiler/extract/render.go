package extract

import (
	"go/ast"
	"reflect"
	"strings"

	"github.com/mm-zacharydavison/rpckit/internal/compiler/contract"
	"github.com/mm-zacharydavison/rpckit/internal/compiler/source"
	"github.com/mm-zacharydavison/rpckit/internal/compiler/typetext"
)

// timeKind classifies a struct field's relationship to time.Time.
type timeKind int

const (
	timeNone timeKind = iota
	timeValue
	timePointer
)

// renderStruct renders a struct declaration to re-exportable source,
// rewriting timestamp fields to their wire type and queueing nested codec
// checks. The second return value counts exported fields.
func (e *Extractor) renderStruct(file *source.File, r *typetext.Renderer, ts *ast.TypeSpec) (string, int) {
	st := ts.Type.(*ast.StructType)

	var b strings.Builder
	b.WriteString("type " + ts.Name.Name + typeParamsText(r, ts.TypeParams) + " struct {")

	exported := 0
	for _, field := range st.Fields.List {
		lines, n := e.renderStructField(file, r, ts.Name.Name, field)
		for _, line := range lines {
			b.WriteString("\n" + line)
		}
		exported += n
	}

	b.WriteString("\n}")
	return b.String(), exported
}

// renderStructField renders one field entry, including its doc lines.
// Unexported fields are dropped: they are not wire data.
func (e *Extractor) renderStructField(file *source.File, r *typetext.Renderer, owner string, field *ast.Field) ([]string, int) {
	var lines []string
	appendEntry := func(entry string) {
		for _, doc := range docLines(field.Doc) {
			lines = append(lines, "\t// "+doc)
		}
		lines = append(lines, "\t"+entry+tagText(field)+trailingComment(field))
	}

	if len(field.Names) == 0 {
		text := r.TypeText(field.Type)
		base := embeddedName(text)
		if base == "" || !ast.IsExported(base) {
			return nil, 0
		}
		e.pendField(owner, base, text)
		appendEntry(text)
		return lines, 1
	}

	names := exportedNames(field.Names)
	if len(names) == 0 {
		return nil, 0
	}

	wireOf := func(name string) string {
		if len(names) == 1 {
			return jsonName(field.Tag, name)
		}
		return name
	}

	var text string
	shape := timeShape(file, field.Type)
	if shape != timeNone && wireOf(names[0]) != "-" {
		text = "string"
		if shape == timePointer {
			text = "*string"
		}
		for _, name := range names {
			e.index.Codecs.Add(owner, wireOf(name), contract.CodecTimestamp)
		}
	} else {
		text = r.TypeText(field.Type)
		for _, name := range names {
			if wire := wireOf(name); wire != "-" {
				e.pendField(owner, wire, text)
			}
		}
	}

	appendEntry(strings.Join(names, ", ") + " " + text)
	return lines, len(names)
}

// renderInterface renders an interface declaration with its method set.
func (e *Extractor) renderInterface(r *typetext.Renderer, ts *ast.TypeSpec) string {
	it := ts.Type.(*ast.InterfaceType)
	name := ts.Name.Name + typeParamsText(r, ts.TypeParams)

	if it.Methods == nil || len(it.Methods.List) == 0 {
		return "type " + name + " interface{}"
	}

	var b strings.Builder
	b.WriteString("type " + name + " interface {")
	for _, method := range it.Methods.List {
		for _, doc := range docLines(method.Doc) {
			b.WriteString("\n\t// " + doc)
		}
		if len(method.Names) == 0 {
			b.WriteString("\n\t" + r.TypeText(method.Type))
			continue
		}
		fn, ok := method.Type.(*ast.FuncType)
		if !ok {
			b.WriteString("\n\t" + method.Names[0].Name)
			continue
		}
		b.WriteString("\n\t" + method.Names[0].Name + r.Signature(fn))
	}
	b.WriteString("\n}")
	return b.String()
}

// renderEnum renders a defined type together with its const blocks.
func (e *Extractor) renderEnum(r *typetext.Renderer, ts *ast.TypeSpec, blocks []constBlock) string {
	var b strings.Builder
	b.WriteString("type " + ts.Name.Name + " " + r.TypeText(ts.Type))
	for _, blk := range blocks {
		b.WriteString("\n\n" + renderConstBlock(r, blk.decl))
	}
	return b.String()
}

// exportedConstNames collects the exported const names across an enum's
// blocks, in declaration order.
func exportedConstNames(blocks []constBlock) []string {
	var names []string
	for _, blk := range blocks {
		for _, spec := range blk.decl.Specs {
			vs, ok := spec.(*ast.ValueSpec)
			if !ok {
				continue
			}
			for _, name := range vs.Names {
				if ast.IsExported(name.Name) {
					names = append(names, name.Name)
				}
			}
		}
	}
	return names
}

// renderConstBlock renders a const declaration, preserving grouping.
func renderConstBlock(r *typetext.Renderer, gd *ast.GenDecl) string {
	if !gd.Lparen.IsValid() && len(gd.Specs) == 1 {
		if vs, ok := gd.Specs[0].(*ast.ValueSpec); ok {
			return "const " + renderValueSpec(r, vs)
		}
	}

	var b strings.Builder
	b.WriteString("const (")
	for _, spec := range gd.Specs {
		vs, ok := spec.(*ast.ValueSpec)
		if !ok {
			continue
		}
		for _, doc := range docLines(vs.Doc) {
			b.WriteString("\n\t// " + doc)
		}
		b.WriteString("\n\t" + renderValueSpec(r, vs))
	}
	b.WriteString("\n)")
	return b.String()
}

// renderValueSpec renders one const spec: names, optional type, optional
// values, optional trailing comment.
func renderValueSpec(r *typetext.Renderer, vs *ast.ValueSpec) string {
	names := make([]string, len(vs.Names))
	for i, name := range vs.Names {
		names[i] = name.Name
	}
	entry := strings.Join(names, ", ")

	if vs.Type != nil {
		entry += " " + r.TypeText(vs.Type)
	}
	if len(vs.Values) > 0 {
		values := make([]string, len(vs.Values))
		for i, value := range vs.Values {
			values[i] = r.TypeText(value)
		}
		entry += " = " + strings.Join(values, ", ")
	}
	if vs.Comment != nil && len(vs.Comment.List) > 0 {
		entry += " " + vs.Comment.List[0].Text
	}
	return entry
}

// timeShape reports whether an expression is exactly time.Time or
// *time.Time. Only these two shapes are codec-rewritten; slices and maps of
// timestamps keep their declared type.
func timeShape(file *source.File, expr ast.Expr) timeKind {
	if star, ok := expr.(*ast.StarExpr); ok {
		if isTimeTime(file, star.X) {
			return timePointer
		}
		return timeNone
	}
	if isTimeTime(file, expr) {
		return timeValue
	}
	return timeNone
}

func isTimeTime(file *source.File, expr ast.Expr) bool {
	sel, ok := expr.(*ast.SelectorExpr)
	if !ok {
		return false
	}
	pkg, ok := sel.X.(*ast.Ident)
	if !ok {
		return false
	}
	return file.Imports[pkg.Name] == "time" && sel.Sel.Name == "Time"
}

// jsonName returns the wire name a json tag assigns, the fallback when the
// tag names none, or "-" for fields excluded from serialization.
func jsonName(tag *ast.BasicLit, fallback string) string {
	if tag == nil {
		return fallback
	}
	value, ok := reflect.StructTag(strings.Trim(tag.Value, "`")).Lookup("json")
	if !ok {
		return fallback
	}
	name := strings.Split(value, ",")[0]
	if name == "" {
		return fallback
	}
	return name
}

// embeddedName returns the implicit field name of an embedded type text.
func embeddedName(text string) string {
	name := strings.TrimPrefix(text, "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "["); i >= 0 {
		name = name[:i]
	}
	return name
}

func exportedNames(idents []*ast.Ident) []string {
	var names []string
	for _, ident := range idents {
		if ast.IsExported(ident.Name) {
			names = append(names, ident.Name)
		}
	}
	return names
}

func docLines(doc *ast.CommentGroup) []string {
	text := source.DocText(doc)
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func tagText(field *ast.Field) string {
	if field.Tag == nil {
		return ""
	}
	return " " + field.Tag.Value
}

func trailingComment(field *ast.Field) string {
	if field.Comment == nil || len(field.Comment.List) == 0 {
		return ""
	}
	return " " + field.Comment.List[0].Text
}
