package typetext

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Identifiers returns the type references mentioned in cleaned type text, in
// order of appearance. Externally-qualified names ("uuid.UUID") are returned
// as single dotted units; otherwise only capitalized identifiers are
// returned, since local contract types are exported by construction. String
// literals, comments, and numbers are skipped.
func Identifiers(text string) []string {
	var refs []string
	eachToken(text, func(tok token) {
		if tok.qualified {
			refs = append(refs, tok.text)
			return
		}
		if isCapitalized(tok.text) {
			refs = append(refs, tok.text)
		}
	})
	return refs
}

// Mentions reports whether the text references name as a standalone
// identifier or as the member of a qualified unit.
func Mentions(text, name string) bool {
	found := false
	eachToken(text, func(tok token) {
		if found {
			return
		}
		if tok.text == name {
			found = true
			return
		}
		if tok.qualified && strings.HasSuffix(tok.text, "."+name) {
			found = true
		}
	})
	return found
}

// ReplaceIdents rewrites bare identifiers per repl, leaving qualified units
// and all other text untouched. Used to substitute type parameters in
// flattened signatures.
func ReplaceIdents(text string, repl map[string]string) string {
	if len(repl) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	eachToken(text, func(tok token) {
		if tok.qualified {
			return
		}
		replacement, ok := repl[tok.text]
		if !ok {
			return
		}
		b.WriteString(text[last:tok.start])
		b.WriteString(replacement)
		last = tok.end
	})
	b.WriteString(text[last:])
	return b.String()
}

type token struct {
	text      string
	start     int
	end       int
	qualified bool
}

// eachToken walks text and calls fn for every identifier token outside of
// string literals and comments. A lowercase identifier immediately followed
// by ".Capitalized" is merged into one qualified token.
func eachToken(text string, fn func(token)) {
	i := 0
	for i < len(text) {
		c := text[i]

		switch {
		case c == '"':
			i = skipString(text, i)
			continue
		case c == '`':
			i = skipRaw(text, i)
			continue
		case c == '\'':
			i = skipRune(text, i)
			continue
		case c == '/' && i+1 < len(text) && text[i+1] == '/':
			i = skipLineComment(text, i)
			continue
		case c == '/' && i+1 < len(text) && text[i+1] == '*':
			i = skipBlockComment(text, i)
			continue
		case isDigit(c):
			i = skipNumber(text, i)
			continue
		}

		if !isIdentStart(rune(c)) && c < utf8.RuneSelf {
			i++
			continue
		}

		start := i
		i = skipIdent(text, i)
		word := text[start:i]

		prevDot := start > 0 && text[start-1] == '.'

		// Merge "pkg.Sym" into one qualified unit when pkg is lowercase.
		if !prevDot && !isCapitalized(word) && i < len(text) && text[i] == '.' {
			j := skipIdent(text, i+1)
			if j > i+1 {
				member := text[i+1 : j]
				if isCapitalized(member) {
					fn(token{text: text[start:j], start: start, end: j, qualified: true})
					i = j
					continue
				}
			}
		}

		if prevDot {
			continue
		}
		fn(token{text: word, start: start, end: i})
	}
}

func skipIdent(text string, i int) int {
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !isIdentPart(r) {
			return i
		}
		i += size
	}
	return i
}

func skipString(text string, i int) int {
	i++
	for i < len(text) {
		switch text[i] {
		case '\\':
			i += 2
			continue
		case '"':
			return i + 1
		}
		i++
	}
	return i
}

func skipRaw(text string, i int) int {
	i++
	for i < len(text) {
		if text[i] == '`' {
			return i + 1
		}
		i++
	}
	return i
}

func skipRune(text string, i int) int {
	i++
	for i < len(text) {
		switch text[i] {
		case '\\':
			i += 2
			continue
		case '\'':
			return i + 1
		}
		i++
	}
	return i
}

func skipLineComment(text string, i int) int {
	for i < len(text) && text[i] != '\n' {
		i++
	}
	return i
}

func skipBlockComment(text string, i int) int {
	i += 2
	for i+1 < len(text) {
		if text[i] == '*' && text[i+1] == '/' {
			return i + 2
		}
		i++
	}
	return len(text)
}

func skipNumber(text string, i int) int {
	for i < len(text) {
		c := text[i]
		if isDigit(c) || c == '.' || c == '_' || c == 'x' || c == 'X' ||
			(c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') {
			i++
			continue
		}
		return i
	}
	return i
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isCapitalized(word string) bool {
	r, _ := utf8.DecodeRuneInString(word)
	return unicode.IsUpper(r)
}
