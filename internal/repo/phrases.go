package repo

import (
	"strings"
)

// MaxTextLength bounds how much of a script is split into phrases. Longer
// text is cut silently; Phrases.Truncated records that it happened.
const MaxTextLength = 25_000

// Phrases is the ordered phrase list derived from one script.
type Phrases struct {
	Items []string `json:"items"`
	// Length is the number of characters that were considered for splitting.
	Length    int  `json:"length"`
	Truncated bool `json:"truncated"`
}

// SplitPhrases takes at most limit characters of text and splits them on
// spaces and newlines, dropping blank segments. Tabs and carriage returns
// are not delimiters.
func SplitPhrases(text string, limit int) Phrases {
	runes := []rune(text)
	truncated := false
	if limit > 0 && len(runes) > limit {
		runes = runes[:limit]
		truncated = true
	}

	fields := strings.FieldsFunc(string(runes), func(r rune) bool {
		return r == ' ' || r == '\n'
	})
	items := fields[:0]
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			items = append(items, f)
		}
	}
	if items == nil {
		items = []string{}
	}
	return Phrases{Items: items, Length: len(runes), Truncated: truncated}
}
