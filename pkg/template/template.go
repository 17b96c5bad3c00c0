// Package template extracts and fills {{variable}} placeholders in prompt templates.
package template

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholder = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// ExtractVariables returns each placeholder name once, in order of first occurrence.
func ExtractVariables(tmpl string) []string {
	matches := placeholder.FindAllStringSubmatch(tmpl, -1)
	seen := make(map[string]bool, len(matches))
	names := make([]string, 0, len(matches))

	for _, match := range matches {
		name := match[1]
		if seen[name] {
			continue
		}

		seen[name] = true
		names = append(names, name)
	}

	return names
}

// Missing lists the variables of tmpl that have no value in vars.
func Missing(tmpl string, vars map[string]any) []string {
	var missing []string

	for _, name := range ExtractVariables(tmpl) {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}

	return missing
}

// Render substitutes known variables. Unknown placeholders are left intact
// so a preview shows what still needs a value.
func Render(tmpl string, vars map[string]any) string {
	return placeholder.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := placeholder.FindStringSubmatch(match)[1]

		value, ok := vars[name]
		if !ok {
			return match
		}

		return stringify(value)
	})
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// ParseAssignments turns "key=value" pairs into an input map.
func ParseAssignments(pairs []string) (map[string]any, error) {
	vars := make(map[string]any, len(pairs))

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid input %q, expected key=value", pair)
		}

		vars[strings.TrimSpace(key)] = value
	}

	return vars, nil
}
