// Package errors defines the diagnostic types shared by the contract
// compiler passes. Warnings are collected and reported per occurrence without
// stopping a run; fatal diagnostics abort before any artifact is written.
package errors

import (
	"encoding/json"
	"fmt"
)

// Severity represents the severity level of a diagnostic.
type Severity int

const (
	Info Severity = iota
	Warning
	Error
	Fatal
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler for Severity.
func (s Severity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for Severity.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	switch str {
	case "info":
		*s = Info
	case "warning":
		*s = Warning
	case "error":
		*s = Error
	case "fatal":
		*s = Fatal
	default:
		*s = Error
	}
	return nil
}

// SourceLocation represents a location in scanned source code.
type SourceLocation struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// Diagnostic is one compiler finding: a skipped annotation, a name conflict,
// a manifest that could not be read, or a fatal configuration problem.
type Diagnostic struct {
	Phase    string         `json:"phase"` // "load", "discover", "extract", "resolve", "emit"
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Location SourceLocation `json:"location"`
	Severity Severity       `json:"severity"`
}

// Error implements the error interface.
func (d Diagnostic) Error() string {
	if d.Location.File == "" {
		return fmt.Sprintf("%s: %s", d.Code, d.Message)
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s",
		d.Location.File,
		d.Location.Line,
		d.Location.Column,
		d.Code,
		d.Message)
}

// IsFatal returns true if the diagnostic is at Fatal severity.
func (d Diagnostic) IsFatal() bool {
	return d.Severity == Fatal
}

// IsWarning returns true if the diagnostic is at Warning severity.
func (d Diagnostic) IsWarning() bool {
	return d.Severity == Warning
}

// New creates a diagnostic.
func New(phase, code, message string, loc SourceLocation, severity Severity) Diagnostic {
	return Diagnostic{
		Phase:    phase,
		Code:     code,
		Message:  message,
		Location: loc,
		Severity: severity,
	}
}

// Warningf creates a warning diagnostic with a formatted message.
func Warningf(phase, code string, loc SourceLocation, format string, args ...interface{}) Diagnostic {
	return New(phase, code, fmt.Sprintf(format, args...), loc, Warning)
}

// Fatalf creates a fatal diagnostic with a formatted message. Fatal
// diagnostics carry no source location: they describe configuration problems,
// not places in scanned code.
func Fatalf(phase, code string, format string, args ...interface{}) Diagnostic {
	return New(phase, code, fmt.Sprintf(format, args...), SourceLocation{}, Fatal)
}

// List collects diagnostics across passes.
type List struct {
	all []Diagnostic
}

// Append adds diagnostics to the list.
func (l *List) Append(diags ...Diagnostic) {
	l.all = append(l.all, diags...)
}

// Reset discards collected diagnostics. A list shared across watch
// regenerations starts each run clean.
func (l *List) Reset() {
	l.all = l.all[:0]
}

// All returns every collected diagnostic in order of occurrence.
func (l *List) All() []Diagnostic {
	return l.all
}

// Warnings returns only the warning-severity diagnostics.
func (l *List) Warnings() []Diagnostic {
	var warnings []Diagnostic
	for _, d := range l.all {
		if d.IsWarning() {
			warnings = append(warnings, d)
		}
	}
	return warnings
}

// Len returns the number of collected diagnostics.
func (l *List) Len() int {
	return len(l.all)
}
