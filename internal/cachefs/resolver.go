// Package cachefs maps (voice, phrase) pairs to cached PCM files on disk.
//
// Layout: <root>/voices/<voiceID>/<phrase>.pcm
package cachefs

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	VoicesDirName = "voices"
	PCMSuffix     = ".pcm"

	// MaxNameBytes is the per-component file name limit (NAME_MAX).
	MaxNameBytes = 255
	digestChars  = 16
)

// Resolver locates cached audio. Directories are created before a path is returned.
type Resolver interface {
	CacheDir() (string, error)
	VoiceDir(voiceID string) (string, error)
	PCMCacheFile(voiceID, phrase string) (string, error)
}

// Dir is the filesystem Resolver rooted at a cache directory.
type Dir struct {
	root string
}

// New returns a resolver rooted at root. An empty root falls back to the
// user cache directory.
func New(root string) (*Dir, error) {
	if strings.TrimSpace(root) == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("resolve user cache dir: %w", err)
		}
		root = filepath.Join(base, "muse")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve cache root: %w", err)
	}
	return &Dir{root: abs}, nil
}

func (d *Dir) CacheDir() (string, error) {
	if err := os.MkdirAll(d.root, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	return d.root, nil
}

func (d *Dir) VoiceDir(voiceID string) (string, error) {
	dir := filepath.Join(d.root, VoicesDirName, FileName(voiceID, ""))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create voice dir: %w", err)
	}
	return dir, nil
}

func (d *Dir) PCMCacheFile(voiceID, phrase string) (string, error) {
	dir, err := d.VoiceDir(voiceID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName(phrase, PCMSuffix)), nil
}

// EscapeName percent-encodes the characters that would let a name leave its
// directory. Anything else passes through untouched.
func EscapeName(name string) string {
	switch name {
	case ".":
		return "%2E"
	case "..":
		return "%2E%2E"
	}
	if !strings.ContainsAny(name, "%/\\\x00") {
		return name
	}
	var b strings.Builder
	b.Grow(len(name) + 8)
	for i := 0; i < len(name); i++ {
		switch c := name[i]; c {
		case '%', '/', '\\', 0:
			fmt.Fprintf(&b, "%%%02X", c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// FileName escapes name and appends suffix, shortening the result to fit
// MaxNameBytes.
func FileName(name, suffix string) string {
	return Shorten(EscapeName(name), suffix)
}

// Shorten returns name+suffix unchanged when it fits MaxNameBytes. Longer names
// keep a prefix, cut on a rune boundary, followed by "~" and a digest of the
// full name.
func Shorten(name, suffix string) string {
	if len(name)+len(suffix) <= MaxNameBytes {
		return name + suffix
	}
	sum := sha256.Sum256([]byte(name))
	tail := "~" + hex.EncodeToString(sum[:])[:digestChars]
	keep := MaxNameBytes - len(suffix) - len(tail)
	for keep > 0 && !utf8.RuneStart(name[keep]) {
		keep--
	}
	return name[:keep] + tail + suffix
}

// Exists reports whether a regular file is present at path.
func Exists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err == nil {
		return info.Mode().IsRegular(), nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
