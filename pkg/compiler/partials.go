package compiler

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/smilemakc/mbflow/pkg/value"
)

// partialPattern matches {{name}}, {{name.path}} and {{name[0].path}}
// placeholders. This generalizes an env/input/resource namespaced
// placeholder scheme to one where the first segment is always a
// referenced partial's name.
var partialPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)((?:\.[a-zA-Z_][a-zA-Z0-9_]*|\[[0-9]+\])*)\s*\}\}`)

// referencedPartials returns the distinct partial names body's
// placeholders reference, in first-occurrence order (Template:
// "inputs = referenced partial names").
func referencedPartials(body string) []string {
	seen := map[string]bool{}
	var names []string
	for _, m := range partialPattern.FindAllStringSubmatch(body, -1) {
		name := m[1]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// renderPartials substitutes every placeholder in body against a JSON
// view of values ("renders the body against a JSON view of
// its inputs").
func renderPartials(body string, values map[string]value.Value) (string, error) {
	view := make(map[string]interface{}, len(values))
	for name, v := range values {
		j, err := value.ToJSON(v)
		if err != nil {
			return "", fmt.Errorf("partial %q: %w", name, err)
		}
		view[name] = j
	}

	var firstErr error
	out := partialPattern.ReplaceAllStringFunc(body, func(match string) string {
		sub := partialPattern.FindStringSubmatch(match)
		name, rawPath := sub[1], sub[2]
		root, ok := view[name]
		if !ok {
			if firstErr == nil {
				firstErr = fmt.Errorf("partial %q not bound", name)
			}
			return match
		}
		resolved, err := traversePath(root, splitPath(strings.TrimPrefix(rawPath, ".")))
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("partial %q: %w", name, err)
			}
			return match
		}
		return stringify(resolved)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// traversePath walks a nested JSON-shaped value by dotted field access
// and bracketed array indexing, e.g. ["items[0]", "name"].
func traversePath(v interface{}, parts []string) (interface{}, error) {
	current := v
	for _, part := range parts {
		openIdx := strings.IndexByte(part, '[')
		if openIdx >= 0 && strings.HasSuffix(part, "]") {
			field := part[:openIdx]
			if field != "" {
				current = fieldOf(current, field)
			}
			for _, n := range arrayIndices(part[openIdx:]) {
				next, err := indexOf(current, n)
				if err != nil {
					return nil, err
				}
				current = next
			}
			continue
		}
		current = fieldOf(current, part)
	}
	if current == nil && len(parts) > 0 {
		return nil, fmt.Errorf("path %q not found", strings.Join(parts, "."))
	}
	return current, nil
}

func fieldOf(v interface{}, field string) interface{} {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	return m[field]
}

func indexOf(v interface{}, i int) (interface{}, error) {
	arr, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("not an array")
	}
	if i < 0 || i >= len(arr) {
		return nil, fmt.Errorf("index %d out of bounds (len %d)", i, len(arr))
	}
	return arr[i], nil
}

// arrayIndices parses chained indices out of a string like "[0][1]".
func arrayIndices(expr string) []int {
	var out []int
	start := 0
	for {
		o := strings.Index(expr[start:], "[")
		if o == -1 {
			break
		}
		o += start
		c := strings.Index(expr[o:], "]")
		if c == -1 {
			break
		}
		c += o
		n, err := strconv.Atoi(strings.TrimSpace(expr[o+1 : c]))
		if err != nil {
			return nil
		}
		out = append(out, n)
		start = c + 1
	}
	return out
}

// splitPath splits a path into dotted-field/bracketed-index segments,
// e.g. "items[0].name" -> ["items[0]", "name"].
func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	var parts []string
	var current strings.Builder
	inBracket := false
	for _, ch := range path {
		switch ch {
		case '.':
			if !inBracket {
				if current.Len() > 0 {
					parts = append(parts, current.String())
					current.Reset()
				}
				continue
			}
			current.WriteRune(ch)
		case '[':
			inBracket = true
			current.WriteRune(ch)
		case ']':
			inBracket = false
			current.WriteRune(ch)
		default:
			current.WriteRune(ch)
		}
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
