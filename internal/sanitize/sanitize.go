package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

var illegalChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// Filename replaces characters that are invalid in file names with an underscore
// and trims trailing whitespace and dots.
func Filename(name string) string {
	// Replace illegal chars
	name = illegalChars.ReplaceAllString(name, "_")

	// Trim trailing spaces & dots, leading spaces
	name = strings.TrimRightFunc(name, func(r rune) bool {
		return unicode.IsSpace(r) || r == '.'
	})
	return strings.TrimLeftFunc(name, unicode.IsSpace)
}

// FilenameOr sanitizes name and falls back when nothing usable is left.
func FilenameOr(name, fallback string) string {
	if s := Filename(name); s != "" {
		return s
	}
	return Filename(fallback)
}
