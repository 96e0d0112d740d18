package forge

import (
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)```[A-Za-z0-9_+.-]*[ \t]*\r?\n(.*?)```")

// stripFences returns the body of the first fenced block in s, or s with
// surrounding blank lines removed when there is none.
func stripFences(s string) string {
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	return strings.TrimRight(strings.TrimLeft(s, "\r\n"), " \t\r\n")
}
