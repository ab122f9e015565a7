package models

import (
	"errors"
	"testing"
)

func TestCellParseError(t *testing.T) {
	err := &CellParseError{Path: "notebook/a.md", Offset: 42, Reason: "unterminated fence"}

	want := "cell parse notebook/a.md at byte 42: unterminated fence"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrCellParse) {
		t.Error("errors.Is() should match ErrCellParse through Unwrap")
	}
}

func TestCellParseError_WithoutOffset(t *testing.T) {
	err := &CellParseError{Reason: "missing tag word"}
	want := "cell parse: missing tag word"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{Field: "name", Message: "name is required"}
	want := "name: name is required"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		errs     ValidationErrors
		expected string
	}{
		{"single", ValidationErrors{{Field: "name", Message: "required"}}, "name: required"},
		{"multiple returns first", ValidationErrors{
			{Field: "name", Message: "required"},
			{Field: "kind", Message: "invalid"},
		}, "name: required"},
		{"empty", ValidationErrors{}, "validation failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.errs.Error() != tt.expected {
				t.Errorf("Error() = %q, want %q", tt.errs.Error(), tt.expected)
			}
		})
	}
}

func TestSentinelErrors(t *testing.T) {
	for _, err := range []error{
		ErrCellParse,
		ErrUnsupportedLanguage,
		ErrAmbiguousName,
		ErrMissingFunctionName,
		ErrTemplateSyntax,
		ErrFrontMatter,
		ErrYaml,
	} {
		if err == nil || err.Error() == "" {
			t.Errorf("sentinel error %v is nil or empty", err)
		}
	}
}
