package script

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultTitle is used when a script is created without a title.
	DefaultTitle = "Untitled"
	// SummaryLength is the number of characters kept by Summary.
	SummaryLength = 100
)

// Script is a user-authored text unit. It is replaced, never mutated in place.
type Script struct {
	ID        uuid.UUID
	Title     string
	Text      string
	CreatedAt time.Time
}

// New creates a script with a fresh identifier.
func New(title, text string) Script {
	return NewAt(title, text, time.Now())
}

// NewAt is New with an explicit creation time, truncated to milliseconds so
// that it survives a store round trip unchanged.
func NewAt(title, text string, createdAt time.Time) Script {
	if title == "" {
		title = DefaultTitle
	}
	return Script{
		ID:        uuid.New(),
		Title:     title,
		Text:      text,
		CreatedAt: time.UnixMilli(createdAt.UnixMilli()).UTC(),
	}
}

// Equal reports whether both scripts carry the same identifier.
func (s Script) Equal(other Script) bool {
	return s.ID == other.ID
}

// Summary returns the first SummaryLength characters of the text with
// newlines replaced by spaces.
func (s Script) Summary() string {
	runes := []rune(s.Text)
	if len(runes) > SummaryLength {
		runes = runes[:SummaryLength]
	}
	return strings.ReplaceAll(string(runes), "\n", " ")
}

// CreatedAtMillis is the creation time as epoch milliseconds.
func (s Script) CreatedAtMillis() int64 {
	return s.CreatedAt.UnixMilli()
}

func ParseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse script id %q: %w", raw, err)
	}
	return id, nil
}
