package parser

import "strings"

// Fields parses "Key: value" listings as printed by "winget show",
// "scoop info" or "pip show". Indented lines continue the previous value;
// keys are matched case-insensitively by lowering them.
func Fields(lines []string) map[string]string {
	out := make(map[string]string)
	last := ""
	for _, raw := range lines {
		line := Clean(raw)
		if strings.TrimSpace(line) == "" {
			continue
		}
		if last != "" && strings.HasPrefix(line, " ") && !strings.Contains(strings.TrimSpace(line), ": ") {
			out[last] = strings.TrimSpace(out[last] + "\n" + strings.TrimSpace(line))
			continue
		}
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" || strings.Contains(key, "  ") {
			continue
		}
		out[key] = strings.TrimSpace(value)
		last = key
	}
	return out
}
