package render

import (
	"fmt"
	"regexp"
	"strings"
)

var codeBlockRe = regexp.MustCompile("(?s)```(\\w+)?\\n?(.*?)```")

// FormatCodeBlocks normalizes fenced code blocks for frontend rendering:
// the opening fence keeps its language tag on its own line, the code body
// loses surrounding blank lines and trailing per-line whitespace, and the
// closing fence lands on its own line. Text outside fences is untouched.
func FormatCodeBlocks(text string) string {
	return codeBlockRe.ReplaceAllStringFunc(text, func(block string) string {
		m := codeBlockRe.FindStringSubmatch(block)
		language := m[1]
		code := strings.TrimSpace(m[2])

		lines := strings.Split(code, "\n")
		for i, line := range lines {
			lines[i] = strings.TrimRight(line, " \t")
		}

		return fmt.Sprintf("```%s\n%s\n```", language, strings.Join(lines, "\n"))
	})
}
