package analyzer

import (
	"regexp"
	"strings"
)

// JSAnalyzer implements Analyzer for JavaScript/TypeScript source using
// the same line-scanning strategy as PythonAnalyzer, tuned for
// const/let/var/function/class/export declarations.
type JSAnalyzer struct{}

var (
	jsFuncRe    = regexp.MustCompile(`^(?:export\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)\s*\(([^)]*)\)`)
	jsClassRe   = regexp.MustCompile(`^(?:export\s+)?class\s+([A-Za-z_$][\w$]*)`)
	jsDeclRe    = regexp.MustCompile(`^(?:export\s+)?(?:const|let|var)\s+(.+)$`)
	jsImportRe  = regexp.MustCompile(`^import\s+(.+?)\s+from\s+['"].+['"]`)
	jsIdentRe   = regexp.MustCompile(`[A-Za-z_$][\w$]*`)
	jsTriggerRe = regexp.MustCompile(`//\s*trigger_on:\s*(.+)$`)
	jsEmitsRe   = regexp.MustCompile(`//\s*emits:\s*(.+)$`)
)

// Analyze implements Analyzer.
func (JSAnalyzer) Analyze(source string) (Report, error) {
	report := newReport()

	nestedScope := false
	scopeIndent := 0
	var pendingFn string

	lines := strings.Split(source, "\n")
	for _, raw := range lines {
		trimmed := strings.TrimSpace(raw)
		trimmed = strings.TrimSuffix(trimmed, ";")
		if trimmed == "" {
			continue
		}
		indent := indentOf(raw)

		if nestedScope {
			if indent <= scopeIndent && (strings.HasPrefix(trimmed, "}") || indent < scopeIndent) {
				nestedScope = false
				pendingFn = ""
			} else {
				if pendingFn != "" {
					sig := report.Triggerable[pendingFn]
					collectJSTriggerHints(trimmed, &sig)
					report.Triggerable[pendingFn] = sig
				}
				continue
			}
		}

		if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "/*") {
			continue
		}

		if m := jsFuncRe.FindStringSubmatch(trimmed); m != nil {
			name := m[1]
			report.Exposed = appendUnique(report.Exposed, name)
			report.Triggerable[name] = FunctionSignature{ArgNames: parseJSArgs(m[2])}
			pendingFn = name
			nestedScope = true
			scopeIndent = indent
			continue
		}

		if m := jsClassRe.FindStringSubmatch(trimmed); m != nil {
			report.Exposed = appendUnique(report.Exposed, m[1])
			nestedScope = true
			scopeIndent = indent
			pendingFn = ""
			continue
		}

		if m := jsImportRe.FindStringSubmatch(trimmed); m != nil {
			for _, name := range parseJSImportSpec(m[1]) {
				report.Exposed = appendUnique(report.Exposed, name)
			}
			continue
		}

		if m := jsDeclRe.FindStringSubmatch(trimmed); m != nil {
			targets, rhs, arrowFn := parseJSDecl(m[1])
			for _, t := range targets {
				report.Exposed = appendUnique(report.Exposed, t)
			}
			if arrowFn != nil && len(targets) == 1 {
				report.Triggerable[targets[0]] = *arrowFn
			}
			addDependedFromExprKeywords(&report, rhs, jsBuiltins, jsKeywords)
			continue
		}

		addDependedFromExprKeywords(&report, trimmed, jsBuiltins, jsKeywords)
	}

	report.Depended = subtractExposed(report.Depended, report.Exposed)
	return report, nil
}

func collectJSTriggerHints(line string, sig *FunctionSignature) {
	if m := jsTriggerRe.FindStringSubmatch(line); m != nil {
		for _, name := range strings.Split(m[1], ",") {
			sig.TriggerOn = appendUnique(sig.TriggerOn, strings.TrimSpace(name))
		}
	}
	if m := jsEmitsRe.FindStringSubmatch(line); m != nil {
		for _, name := range strings.Split(m[1], ",") {
			sig.EmittedEvents = appendUnique(sig.EmittedEvents, strings.TrimSpace(name))
		}
	}
}

func parseJSArgs(argList string) []string {
	if strings.TrimSpace(argList) == "" {
		return nil
	}
	parts := strings.Split(argList, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.TrimPrefix(p, "...")
		if idx := strings.IndexAny(p, ":="); idx >= 0 {
			p = p[:idx]
		}
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

var arrowRe = regexp.MustCompile(`^\(([^)]*)\)\s*=>|^([A-Za-z_$][\w$]*)\s*=>`)

// parseJSDecl parses the right-hand side of a const/let/var declaration
// list, returning the bound names (supporting object/array destructuring)
// and, when the initializer is a single arrow function, its signature.
func parseJSDecl(decl string) (targets []string, rhs string, arrowFn *FunctionSignature) {
	idx := findAssignOp(decl)
	if idx < 0 {
		// Declaration without initializer, e.g. "let x".
		name := strings.TrimSpace(decl)
		if pyIdentRe.MatchString(name) {
			return []string{name}, "", nil
		}
		return nil, "", nil
	}
	lhs := strings.TrimSpace(decl[:idx])
	rhs = decl[idx+1:]

	targets = parseJSBindingTargets(lhs)

	trimmedRHS := strings.TrimSpace(rhs)
	if m := arrowRe.FindStringSubmatch(trimmedRHS); m != nil {
		argList := m[1]
		if argList == "" {
			argList = m[2]
		}
		sig := FunctionSignature{ArgNames: parseJSArgs(argList)}
		arrowFn = &sig
	}
	return targets, rhs, arrowFn
}

func parseJSBindingTargets(lhs string) []string {
	lhs = strings.Trim(lhs, "{}[] ")
	var out []string
	for _, part := range strings.Split(lhs, ",") {
		part = strings.TrimSpace(part)
		part = strings.TrimPrefix(part, "...")
		if idx := strings.Index(part, ":"); idx >= 0 {
			// Object destructuring rename: "{ a: renamed }" binds "renamed".
			part = part[idx+1:]
		}
		if idx := strings.Index(part, "="); idx >= 0 {
			// Default value: "{ a = 1 }" binds "a".
			part = part[:idx]
		}
		part = strings.TrimSpace(part)
		if part != "" && pyIdentRe.MatchString(part) {
			out = append(out, part)
		}
	}
	return out
}

func parseJSImportSpec(spec string) []string {
	spec = strings.TrimSpace(spec)
	if strings.HasPrefix(spec, "{") {
		return parseJSBindingTargets(spec)
	}
	if strings.HasPrefix(spec, "*") {
		if idx := strings.Index(spec, " as "); idx >= 0 {
			return []string{strings.TrimSpace(spec[idx+4:])}
		}
		return nil
	}
	// default import, possibly followed by ", { named }"
	parts := strings.SplitN(spec, ",", 2)
	names := []string{strings.TrimSpace(parts[0])}
	if len(parts) == 2 {
		names = append(names, parseJSBindingTargets(parts[1])...)
	}
	return names
}

var jsKeywords = map[string]bool{
	"break": true, "case": true, "catch": true, "class": true, "const": true,
	"continue": true, "debugger": true, "default": true, "delete": true,
	"do": true, "else": true, "export": true, "extends": true, "finally": true,
	"for": true, "function": true, "if": true, "import": true, "in": true,
	"instanceof": true, "new": true, "return": true, "super": true,
	"switch": true, "this": true, "throw": true, "try": true, "typeof": true,
	"var": true, "void": true, "while": true, "with": true, "yield": true,
	"let": true, "static": true, "await": true, "async": true,
	"true": true, "false": true, "null": true, "undefined": true,
}

var jsBuiltins = map[string]bool{
	"Array": true, "Boolean": true, "console": true, "Date": true,
	"JSON": true, "Map": true, "Math": true, "Number": true, "Object": true,
	"Promise": true, "Set": true, "String": true, "Symbol": true,
	"parseInt": true, "parseFloat": true, "isNaN": true, "require": true,
	"module": true, "exports": true, "process": true, "global": true,
	"undefined": true, "NaN": true, "Infinity": true,
}
