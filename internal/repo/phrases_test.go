package repo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitPhrases(t *testing.T) {
	cases := []struct {
		name string
		text string
		want []string
	}{
		{name: "collapses blanks", text: "Hello   world\n\n\ntest   ", want: []string{"Hello", "world", "test"}},
		{name: "empty", text: "", want: []string{}},
		{name: "only delimiters", text: "  \n \n", want: []string{}},
		{name: "tab is not a delimiter", text: "a\tb c", want: []string{"a\tb", "c"}},
		{name: "carriage return is not a delimiter", text: "a\r\nb", want: []string{"a\r", "b"}},
		{name: "blank segment dropped", text: "a \t b", want: []string{"a", "b"}},
		{name: "unicode", text: "héllo wörld", want: []string{"héllo", "wörld"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SplitPhrases(tc.text, MaxTextLength)
			require.Equal(t, tc.want, got.Items)
			require.False(t, got.Truncated)
		})
	}
}

func TestSplitPhrasesTruncation(t *testing.T) {
	for _, extra := range []int{1, 10, 50_000} {
		text := strings.Repeat("x", MaxTextLength+extra)
		got := SplitPhrases(text, MaxTextLength)
		require.True(t, got.Truncated)
		require.Equal(t, MaxTextLength, got.Length)
		require.Len(t, got.Items, 1)
		require.Len(t, got.Items[0], MaxTextLength)
	}
}

func TestSplitPhrasesAtLimitIsNotTruncated(t *testing.T) {
	text := strings.Repeat("y", MaxTextLength)
	got := SplitPhrases(text, MaxTextLength)
	require.False(t, got.Truncated)
	require.Equal(t, MaxTextLength, got.Length)
}

func TestSplitPhrasesCountsCharacters(t *testing.T) {
	got := SplitPhrases("ééé ééé", 5)
	require.True(t, got.Truncated)
	require.Equal(t, []string{"ééé", "é"}, got.Items)
}
