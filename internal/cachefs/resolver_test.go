package cachefs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func newDir(t *testing.T) (*Dir, string) {
	t.Helper()
	root := t.TempDir()
	d, err := New(root)
	require.NoError(t, err)
	return d, root
}

func TestPCMCacheFileLayout(t *testing.T) {
	d, root := newDir(t)

	path, err := d.PCMCacheFile("test-voice", "hello world")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "voices", "test-voice", "hello world.pcm"), path)
	require.Equal(t, "hello world.pcm", filepath.Base(path))
}

func TestPCMCacheFileIsDeterministic(t *testing.T) {
	d, _ := newDir(t)

	first, err := d.PCMCacheFile("voice", "phrase")
	require.NoError(t, err)
	second, err := d.PCMCacheFile("voice", "phrase")
	require.NoError(t, err)
	require.Equal(t, first, second)

	info, err := os.Stat(filepath.Dir(first))
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestPCMCacheFileSeparatesVoices(t *testing.T) {
	d, _ := newDir(t)

	one, err := d.PCMCacheFile("voice1", "same phrase")
	require.NoError(t, err)
	two, err := d.PCMCacheFile("voice2", "same phrase")
	require.NoError(t, err)

	require.NotEqual(t, filepath.Dir(one), filepath.Dir(two))
	require.Equal(t, "voice1", filepath.Base(filepath.Dir(one)))
	require.Equal(t, "voice2", filepath.Base(filepath.Dir(two)))
	require.Equal(t, filepath.Base(one), filepath.Base(two))
}

func TestPCMCacheFileStaysInsideVoiceDir(t *testing.T) {
	d, _ := newDir(t)
	voiceDir, err := d.VoiceDir("voice")
	require.NoError(t, err)

	for _, phrase := range []string{"../../etc/passwd", "a/b", `c\d`, "..", ".", "100%"} {
		path, err := d.PCMCacheFile("voice", phrase)
		require.NoError(t, err)
		require.Equal(t, voiceDir, filepath.Dir(path), "phrase %q escaped", phrase)
	}
}

func TestEscapeName(t *testing.T) {
	require.Equal(t, "plain phrase,", EscapeName("plain phrase,"))
	require.Equal(t, "a%2Fb", EscapeName("a/b"))
	require.Equal(t, "50%25", EscapeName("50%"))
	require.Equal(t, "%2E%2E", EscapeName(".."))
	require.NotEqual(t, EscapeName("a/b"), EscapeName("a%2Fb"))
}

func TestLongPhrasesFitNameLimit(t *testing.T) {
	d, _ := newDir(t)
	voiceDir, err := d.VoiceDir("voice")
	require.NoError(t, err)

	long := strings.Repeat("a", 300)
	path, err := d.PCMCacheFile("voice", long)
	require.NoError(t, err)
	name := filepath.Base(path)
	require.LessOrEqual(t, len(name), MaxNameBytes)
	require.True(t, strings.HasPrefix(name, strings.Repeat("a", 200)))
	require.True(t, strings.HasSuffix(name, PCMSuffix))
	require.Equal(t, voiceDir, filepath.Dir(path))

	again, err := d.PCMCacheFile("voice", long)
	require.NoError(t, err)
	require.Equal(t, path, again)

	other, err := d.PCMCacheFile("voice", long+"b")
	require.NoError(t, err)
	require.NotEqual(t, path, other)

	require.NoError(t, os.WriteFile(path, []byte{1}, 0o644))
	ok, err := Exists(path)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestShortenCutsOnRuneBoundary(t *testing.T) {
	// 100 runes of 3 bytes each
	cjk := strings.Repeat("语", 100)
	name := FileName(cjk, PCMSuffix)
	require.LessOrEqual(t, len(name), MaxNameBytes)
	require.True(t, utf8.ValidString(name))
	require.Contains(t, name, "~")

	require.Equal(t, "short.pcm", FileName("short", PCMSuffix))
	exact := strings.Repeat("x", MaxNameBytes-len(PCMSuffix))
	require.Equal(t, exact+PCMSuffix, FileName(exact, PCMSuffix))
}

func TestCacheDirCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "missing", "cache")
	d, err := New(root)
	require.NoError(t, err)

	dir, err := d.CacheDir()
	require.NoError(t, err)
	require.DirExists(t, dir)
}

func TestExists(t *testing.T) {
	d, _ := newDir(t)
	path, err := d.PCMCacheFile("voice", "phrase")
	require.NoError(t, err)

	ok, err := Exists(path)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, os.WriteFile(path, []byte{0, 1}, 0o644))
	ok, err = Exists(path)
	require.NoError(t, err)
	require.True(t, ok)
}
