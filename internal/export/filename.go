package export

import (
	"regexp"
	"strings"
)

const maxFilenameLength = 200

var (
	invalidFileRunes = regexp.MustCompile(`[<>"/\\|?*\x00-\x1F]`)
	multiSpace       = regexp.MustCompile(`\s+`)
)

// SanitizeFilename turns a script title into a portable file name stem.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, ":", "-")
	clean := invalidFileRunes.ReplaceAllString(name, " ")
	clean = strings.TrimSpace(clean)
	clean = multiSpace.ReplaceAllString(clean, " ")
	clean = strings.TrimRight(clean, ".")
	if clean == "" {
		return "untitled"
	}
	if runes := []rune(clean); len(runes) > maxFilenameLength {
		clean = string(runes[:maxFilenameLength])
	}
	return clean
}
