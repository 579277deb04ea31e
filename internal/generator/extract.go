package generator

import (
	"regexp"
	"strings"
)

var (
	pythonFence = regexp.MustCompile("(?s)```[ \\t]*(?i:python3?|py)[ \\t]*\\r?\\n(.*?)```")
	anyFence    = regexp.MustCompile("```[A-Za-z0-9_+-]*")
)

// ExtractScript returns the body of the first ```python (or ```py) block in
// text. Without one, it returns text with every fence marker stripped.
// The result is trimmed.
func ExtractScript(text string) string {
	if m := pythonFence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(anyFence.ReplaceAllString(text, ""))
}
