// Package emit renders and writes the declaration artifacts: one package
// per module, the aggregate package, and the manifest update that keeps the
// host module's go.mod in sync with what the artifacts import.
package emit

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// header marks every artifact as generated. It matches the conventional
// generated-file pattern, so later runs skip artifacts while scanning.
const header = "// Code generated by rpckit. DO NOT EDIT."

// generator accumulates one generated file.
type generator struct {
	buf     bytes.Buffer
	indent  int
	imports map[string]bool
}

func newGenerator() *generator {
	return &generator{imports: make(map[string]bool)}
}

// writeLine writes a formatted line with the current indentation. An empty
// format writes a blank line.
func (g *generator) writeLine(format string, args ...interface{}) {
	if format == "" {
		g.buf.WriteString("\n")
		return
	}

	for i := 0; i < g.indent; i++ {
		g.buf.WriteString("\t")
	}

	if len(args) > 0 {
		g.buf.WriteString(fmt.Sprintf(format, args...))
	} else {
		g.buf.WriteString(format)
	}
	g.buf.WriteString("\n")
}

// writeBlock writes multi-line text with the current indentation applied to
// every line. Lines that already begin with a tab keep their deeper level.
func (g *generator) writeBlock(text string) {
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			g.buf.WriteString("\n")
			continue
		}
		for i := 0; i < g.indent; i++ {
			g.buf.WriteString("\t")
		}
		g.buf.WriteString(line)
		g.buf.WriteString("\n")
	}
}

// writeDoc writes a doc comment above a declaration.
func (g *generator) writeDoc(doc string) {
	if doc == "" {
		return
	}
	for _, line := range strings.Split(doc, "\n") {
		if line == "" {
			g.writeLine("//")
			continue
		}
		g.writeLine("// %s", line)
	}
}

// addImport registers an import path for the file's import block.
func (g *generator) addImport(path string) {
	if path != "" {
		g.imports[path] = true
	}
}

// writeImports writes the import block: stdlib first, then external,
// both sorted.
func (g *generator) writeImports() {
	if len(g.imports) == 0 {
		return
	}

	var stdlib []string
	var external []string
	for imp := range g.imports {
		if isStdlibPath(imp) {
			stdlib = append(stdlib, imp)
		} else {
			external = append(external, imp)
		}
	}
	sort.Strings(stdlib)
	sort.Strings(external)

	if len(stdlib)+len(external) == 1 {
		for _, imp := range append(stdlib, external...) {
			g.writeLine("import %q", imp)
		}
		g.writeLine("")
		return
	}

	g.writeLine("import (")
	g.indent++
	for _, imp := range stdlib {
		g.writeLine("%q", imp)
	}
	if len(stdlib) > 0 && len(external) > 0 {
		g.writeLine("")
	}
	for _, imp := range external {
		g.writeLine("%q", imp)
	}
	g.indent--
	g.writeLine(")")
	g.writeLine("")
}

func (g *generator) bytes() []byte {
	return g.buf.Bytes()
}

// isStdlibPath mirrors the usual heuristic: standard library import paths
// have no dot in their first segment.
func isStdlibPath(path string) bool {
	first := path
	if i := strings.Index(first, "/"); i >= 0 {
		first = first[:i]
	}
	return !strings.Contains(first, ".")
}
