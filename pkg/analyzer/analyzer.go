// Package analyzer implements the Static Analyzer: for each
// supported source language, it scans module-scope source text and
// reports the names a cell exposes, the free names it depends on, and
// the functions it declares as triggerable.
package analyzer

import "github.com/smilemakc/mbflow/pkg/models"

// FunctionSignature describes one triggerable function.
type FunctionSignature struct {
	ArgNames     []string
	EmittedEvents []string
	TriggerOn    []string
}

// Report is the result of analyzing one cell's source text.
type Report struct {
	Exposed      []string
	Depended     []string
	Triggerable  map[string]FunctionSignature
}

// Analyzer extracts a Report from source text of one language.
type Analyzer interface {
	Analyze(source string) (Report, error)
}

// For looks up the Analyzer for a language tag.
func For(lang models.LanguageTag) (Analyzer, error) {
	switch lang {
	case models.LanguagePython:
		return PythonAnalyzer{}, nil
	case models.LanguageJavaScript:
		return JSAnalyzer{}, nil
	default:
		return nil, models.ErrUnsupportedLanguage
	}
}

func newReport() Report {
	return Report{
		Exposed:     []string{},
		Depended:    []string{},
		Triggerable: map[string]FunctionSignature{},
	}
}

func appendUnique(list []string, name string) []string {
	for _, existing := range list {
		if existing == name {
			return list
		}
	}
	return append(list, name)
}

func containsString(list []string, name string) bool {
	for _, existing := range list {
		if existing == name {
			return true
		}
	}
	return false
}
