// Package models defines the Cell/Operation domain types shared across
// the analyzer, compiler, engine and orchestrator packages.
package models

import (
	"errors"
	"fmt"
)

// Static and Compilation error categories.
var (
	// ErrCellParse covers any malformed cell body (markdown fence without
	// a recognized tag, unterminated front matter, etc).
	ErrCellParse = errors.New("cell parse error")
	// ErrUnsupportedLanguage is returned when a Code cell names a
	// language tag the analyzer/compiler does not recognize.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrAmbiguousName is returned when two cells expose the same
	// module-scope global.
	ErrAmbiguousName = errors.New("ambiguous name: exposed by more than one cell")
	// ErrMissingFunctionName is compilePrompt's error for a function
	// invocation without a function name. Cell.IsFunctionInvocation is
	// derived from that name being set, so the check does not fire.
	ErrMissingFunctionName = errors.New("missing function name")

	ErrTemplateSyntax  = errors.New("template syntax error")
	ErrFrontMatter     = errors.New("front matter error")
	ErrYaml            = errors.New("yaml error")
)

// CellParseError wraps ErrCellParse with source-location detail.
type CellParseError struct {
	Path   string
	Offset int
	Reason string
}

func (e *CellParseError) Error() string {
	msg := "cell parse"
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Offset > 0 {
		msg += fmt.Sprintf(" at byte %d", e.Offset)
	}
	return msg + ": " + e.Reason
}

func (e *CellParseError) Unwrap() error { return ErrCellParse }

// ValidationError represents a validation error with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors represents multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Error()
}
