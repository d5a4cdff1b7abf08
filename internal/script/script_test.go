package script

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	s := New("", "body")
	require.Equal(t, DefaultTitle, s.Title)
	require.NotEqual(t, s.ID, New("", "body").ID)
	require.Equal(t, s.CreatedAt, time.UnixMilli(s.CreatedAtMillis()).UTC())
}

func TestNewAtTruncatesToMillis(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.UTC)
	s := NewAt("title", "text", at)
	require.Equal(t, 123*int(time.Millisecond), s.CreatedAt.Nanosecond())
}

func TestEqualByIdentity(t *testing.T) {
	a := New("a", "one")
	b := a
	b.Title = "changed"
	b.Text = "changed"
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(New("a", "one")))
}

func TestSummaryShortText(t *testing.T) {
	s := New("", "line one\nline two")
	require.Equal(t, "line one line two", s.Summary())
}

func TestSummaryLongText(t *testing.T) {
	text := strings.Repeat("ab\n", 50) // 150 characters
	s := New("", text)
	summary := s.Summary()
	require.Len(t, []rune(summary), SummaryLength)
	require.Equal(t, strings.ReplaceAll(text, "\n", " ")[:SummaryLength], summary)
}

func TestSummaryCountsCharactersNotBytes(t *testing.T) {
	text := strings.Repeat("é", 120)
	require.Len(t, []rune(New("", text).Summary()), SummaryLength)
}

func TestParseID(t *testing.T) {
	s := New("", "")
	id, err := ParseID(" " + s.ID.String() + " ")
	require.NoError(t, err)
	require.Equal(t, s.ID, id)

	_, err = ParseID("not-a-uuid")
	require.Error(t, err)
}
