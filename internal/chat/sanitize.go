package chat

import (
	"regexp"
	"strings"
)

// markupPattern matches anything shaped like a markup tag. Stripping is
// deliberately blunt; message bodies are plain text.
var markupPattern = regexp.MustCompile(`<[^>]*>`)

// Sanitize strips markup tags and surrounding whitespace from a message
// body. The result may be empty, which callers must reject.
func Sanitize(body string) string {
	return strings.TrimSpace(markupPattern.ReplaceAllString(body, ""))
}
