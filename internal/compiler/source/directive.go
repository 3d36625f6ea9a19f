package source

import (
	"go/ast"
	"strings"
)

// Directive names recognized in doc comments. They follow the toolchain
// convention: no space between // and the name, so the go/ast doc renderer
// strips them from user-facing text.
const (
	ControllerDirective = "rpc:controller"
	MethodDirective     = "rpc:method"
)

// Directive scans a doc comment for a //name directive line and returns its
// argument, trimmed.
func Directive(doc *ast.CommentGroup, name string) (string, bool) {
	if doc == nil {
		return "", false
	}
	prefix := "//" + name
	for _, c := range doc.List {
		if !strings.HasPrefix(c.Text, prefix) {
			continue
		}
		rest := c.Text[len(prefix):]
		if rest == "" {
			return "", true
		}
		if rest[0] == ' ' || rest[0] == '\t' {
			return strings.TrimSpace(rest), true
		}
	}
	return "", false
}

// DocText returns a doc comment's text with directive lines stripped.
func DocText(doc *ast.CommentGroup) string {
	if doc == nil {
		return ""
	}
	return strings.TrimSpace(doc.Text())
}

// SpecDoc picks the effective doc comment for a type spec: the spec's own
// doc, or the declaration's doc for ungrouped declarations.
func SpecDoc(ts *ast.TypeSpec, gd *ast.GenDecl) *ast.CommentGroup {
	if ts.Doc != nil {
		return ts.Doc
	}
	if len(gd.Specs) == 1 {
		return gd.Doc
	}
	return nil
}
