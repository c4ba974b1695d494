package host

import "strings"

// extractJSON pulls the first JSON array or object out of noisy command
// output. PowerShell in particular prefixes ConvertTo-Json output with
// progress lines and warnings; the JSON island is what we want.
// Arrays are preferred over objects because window enumerations are
// arrays. Returns "" when no island is found.
func extractJSON(output string) string {
	if island := boundedSlice(output, '[', ']'); island != "" {
		return island
	}
	return boundedSlice(output, '{', '}')
}

func boundedSlice(s string, open, shut byte) string {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return ""
	}
	end := strings.LastIndexByte(s, shut)
	if end <= start {
		return ""
	}
	return s[start : end+1]
}
