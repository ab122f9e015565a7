package analyzer

import (
	"regexp"
	"strings"
)

// PythonAnalyzer implements Analyzer for Python source using a
// line/indentation scanner rather than a full AST (see DESIGN.md for why
// no third-party Python parser is used).
type PythonAnalyzer struct{}

var (
	pyDefRe       = regexp.MustCompile(`^def\s+([A-Za-z_]\w*)\s*\(([^)]*)\)`)
	pyClassRe     = regexp.MustCompile(`^class\s+([A-Za-z_]\w*)`)
	pyImportRe    = regexp.MustCompile(`^import\s+(.+)$`)
	pyFromImpRe   = regexp.MustCompile(`^from\s+\S+\s+import\s+(.+)$`)
	pyIdentRe     = regexp.MustCompile(`[A-Za-z_]\w*`)
	pyTriggerOnRe = regexp.MustCompile(`#\s*trigger_on:\s*(.+)$`)
	pyEmitsRe     = regexp.MustCompile(`#\s*emits:\s*(.+)$`)
)

// Analyze implements Analyzer.
func (PythonAnalyzer) Analyze(source string) (Report, error) {
	report := newReport()

	nestedScope := false
	scopeIndent := 0
	var pendingFn string // non-empty while nestedScope was opened by a def

	lines := strings.Split(source, "\n")
	for _, raw := range lines {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		indent := indentOf(raw)

		if nestedScope {
			if indent <= scopeIndent {
				nestedScope = false
				pendingFn = ""
			} else {
				// Still inside the nested def/class body: check for
				// decorator-style trigger annotations on its lines, but
				// never contribute free variables to the outer depended
				// set.
				if pendingFn != "" {
					sig := report.Triggerable[pendingFn]
					collectTriggerHints(trimmed, &sig)
					report.Triggerable[pendingFn] = sig
				}
				continue
			}
		}

		if strings.HasPrefix(trimmed, "#") {
			continue
		}

		if m := pyDefRe.FindStringSubmatch(trimmed); m != nil {
			name := m[1]
			report.Exposed = appendUnique(report.Exposed, name)
			report.Triggerable[name] = FunctionSignature{ArgNames: parsePyArgs(m[2])}
			pendingFn = name
			nestedScope = true
			scopeIndent = indent
			continue
		}

		if m := pyClassRe.FindStringSubmatch(trimmed); m != nil {
			report.Exposed = appendUnique(report.Exposed, m[1])
			nestedScope = true
			scopeIndent = indent
			pendingFn = ""
			continue
		}

		if m := pyImportRe.FindStringSubmatch(trimmed); m != nil && !strings.HasPrefix(trimmed, "from ") {
			for _, name := range parseImportSpec(m[1]) {
				report.Exposed = appendUnique(report.Exposed, name)
			}
			continue
		}

		if m := pyFromImpRe.FindStringSubmatch(trimmed); m != nil {
			for _, name := range parseImportSpec(m[1]) {
				report.Exposed = appendUnique(report.Exposed, name)
			}
			continue
		}

		if targets, rhs, ok := splitPyAssignment(trimmed); ok {
			for _, t := range targets {
				report.Exposed = appendUnique(report.Exposed, t)
			}
			addDependedFromExpr(&report, rhs, pythonBuiltins)
			continue
		}

		addDependedFromExpr(&report, trimmed, pythonBuiltins)
	}

	// Depended names that the cell itself exposes are locally bound, not
	// external references.
	report.Depended = subtractExposed(report.Depended, report.Exposed)
	return report, nil
}

func collectTriggerHints(line string, sig *FunctionSignature) {
	if m := pyTriggerOnRe.FindStringSubmatch(line); m != nil {
		for _, name := range strings.Split(m[1], ",") {
			sig.TriggerOn = appendUnique(sig.TriggerOn, strings.TrimSpace(name))
		}
	}
	if m := pyEmitsRe.FindStringSubmatch(line); m != nil {
		for _, name := range strings.Split(m[1], ",") {
			sig.EmittedEvents = appendUnique(sig.EmittedEvents, strings.TrimSpace(name))
		}
	}
}

func indentOf(line string) int {
	n := 0
	for _, r := range line {
		if r == ' ' {
			n++
		} else if r == '\t' {
			n += 8
		} else {
			break
		}
	}
	return n
}

func parsePyArgs(argList string) []string {
	if strings.TrimSpace(argList) == "" {
		return nil
	}
	parts := strings.Split(argList, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.TrimPrefix(p, "*")
		p = strings.TrimPrefix(p, "*")
		if idx := strings.IndexAny(p, ":="); idx >= 0 {
			p = p[:idx]
		}
		p = strings.TrimSpace(p)
		if p != "" && p != "self" && p != "cls" {
			out = append(out, p)
		}
	}
	return out
}

func parseImportSpec(spec string) []string {
	names := []string{}
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := strings.Index(part, " as "); idx >= 0 {
			names = append(names, strings.TrimSpace(part[idx+4:]))
			continue
		}
		// "import pkg.sub" binds the top-level package name "pkg".
		names = append(names, strings.SplitN(part, ".", 2)[0])
	}
	return names
}

// splitPyAssignment recognizes simple module-scope bindings, including
// tuple/list destructuring ("a, b = ...", "(a, b) = ...", "[a, b] = ..."),
// and excludes augmented assignment ("x += 1") and comparisons ("x == 1").
func splitPyAssignment(line string) (targets []string, rhs string, ok bool) {
	idx := findAssignOp(line)
	if idx < 0 {
		return nil, "", false
	}
	lhs := strings.TrimSpace(line[:idx])
	rhs = line[idx+1:]

	if strings.ContainsAny(lhs, ".[") {
		// Attribute or subscript assignment: not a simple module-scope
		// binding, so it contributes nothing to Exposed. The LHS is an
		// expression reference in its own right.
		return nil, lhs + " " + rhs, false
	}

	lhs = strings.Trim(lhs, "()[] ")
	for _, target := range strings.Split(lhs, ",") {
		target = strings.TrimSpace(target)
		target = strings.TrimPrefix(target, "*")
		if idx := strings.Index(target, ":"); idx >= 0 {
			target = strings.TrimSpace(target[:idx])
		}
		if pyIdentRe.MatchString(target) && target != "" {
			targets = append(targets, target)
		}
	}
	if len(targets) == 0 {
		return nil, "", false
	}
	return targets, rhs, true
}

// findAssignOp finds the index of a plain "=" assignment operator,
// skipping over "==", "!=", "<=", ">=", ":=", and augmented-assignment
// operators ("+=", "-=", etc), and over parenthesized/bracketed spans.
func findAssignOp(line string) int {
	depth := 0
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case '=':
			if depth > 0 {
				continue
			}
			if i+1 < len(runes) && runes[i+1] == '=' {
				i++
				continue
			}
			if i > 0 && strings.ContainsRune("=<>!+-*/%&|^@:", runes[i-1]) {
				continue
			}
			return i
		}
	}
	return -1
}

func addDependedFromExpr(report *Report, expr string, builtins map[string]bool) {
	addDependedFromExprKeywords(report, expr, builtins, pyKeywords)
}

func addDependedFromExprKeywords(report *Report, expr string, builtins, keywords map[string]bool) {
	for _, name := range pyIdentRe.FindAllString(expr, -1) {
		if builtins[name] || keywords[name] {
			continue
		}
		if !containsString(report.Depended, name) {
			report.Depended = append(report.Depended, name)
		}
	}
}

func subtractExposed(depended, exposed []string) []string {
	out := make([]string, 0, len(depended))
	for _, d := range depended {
		if !containsString(exposed, d) {
			out = append(out, d)
		}
	}
	return out
}

var pyKeywords = map[string]bool{
	"False": true, "None": true, "True": true, "and": true, "as": true,
	"assert": true, "async": true, "await": true, "break": true, "class": true,
	"continue": true, "def": true, "del": true, "elif": true, "else": true,
	"except": true, "finally": true, "for": true, "from": true, "global": true,
	"if": true, "import": true, "in": true, "is": true, "lambda": true,
	"nonlocal": true, "not": true, "or": true, "pass": true, "raise": true,
	"return": true, "try": true, "while": true, "with": true, "yield": true,
}

var pythonBuiltins = map[string]bool{
	"abs": true, "all": true, "any": true, "bool": true, "bytes": true,
	"dict": true, "enumerate": true, "filter": true, "float": true,
	"format": true, "frozenset": true, "getattr": true, "hasattr": true,
	"int": true, "isinstance": true, "iter": true, "len": true, "list": true,
	"map": true, "max": true, "min": true, "next": true, "object": true,
	"open": true, "print": true, "range": true, "repr": true, "reversed": true,
	"round": true, "set": true, "setattr": true, "slice": true, "sorted": true,
	"str": true, "sum": true, "tuple": true, "type": true, "zip": true,
}
