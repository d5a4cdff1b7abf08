package export

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"github.com/loqalabs/muse-core/internal/cachefs"
	"github.com/loqalabs/muse-core/internal/config"
	"github.com/loqalabs/muse-core/internal/repo"
	"github.com/loqalabs/muse-core/internal/script"
	"github.com/loqalabs/muse-core/internal/scriptstore"
	"github.com/loqalabs/muse-core/internal/tts"
	"github.com/stretchr/testify/require"
)

type countingSynth struct {
	inner tts.Synthesizer
	calls atomic.Int32
}

func (c *countingSynth) Synthesize(ctx context.Context, req tts.SynthRequest) (<-chan tts.SynthChunk, <-chan error) {
	c.calls.Add(1)
	return c.inner.Synthesize(ctx, req)
}

type failingSynth struct{ err error }

func (f failingSynth) Synthesize(context.Context, tts.SynthRequest) (<-chan tts.SynthChunk, <-chan error) {
	chunks := make(chan tts.SynthChunk)
	errs := make(chan error, 1)
	errs <- f.err
	close(chunks)
	close(errs)
	return chunks, errs
}

type fixture struct {
	repo     *repo.Repository
	cacheDir string
	export   config.ExportConfig
	tts      config.TTSConfig
	log      *slog.Logger
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cacheDir := t.TempDir()
	files, err := cachefs.New(cacheDir)
	require.NoError(t, err)
	return fixture{
		repo:     repo.New(scriptstore.NewMemory(), files),
		cacheDir: cacheDir,
		export:   config.ExportConfig{Dir: filepath.Join(t.TempDir(), "export")},
		tts:      config.TTSConfig{Mode: "mock", Voice: "default", SampleRate: 16000, Channels: 1},
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestExportComposesWavAndFillsCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sc := script.New("My: Script?", "hello world\nhello")
	require.NoError(t, f.repo.InsertScript(ctx, sc))

	synth := &countingSynth{inner: tts.NewMockSynth(f.tts.SampleRate, f.tts.Channels)}
	p := NewPipeline(f.repo, synth, f.tts, f.export, f.log)

	result, err := p.Export(ctx, Request{ScriptID: sc.ID, VoiceID: "rachel"})
	require.NoError(t, err)
	require.Equal(t, 3, result.Phrases)
	require.Equal(t, 2, result.Synthesized)
	require.Equal(t, 1, result.CacheHits)
	require.False(t, result.Truncated)
	require.Equal(t, filepath.Join(f.export.Dir, "My- Script-rachel.wav"), result.OutputPath)
	require.EqualValues(t, 2, synth.calls.Load())

	require.FileExists(t, filepath.Join(f.cacheDir, "voices", "rachel", "hello.pcm"))
	require.FileExists(t, filepath.Join(f.cacheDir, "voices", "rachel", "world.pcm"))

	file, err := os.Open(result.OutputPath)
	require.NoError(t, err)
	defer file.Close()
	dec := wav.NewDecoder(file)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	require.Equal(t, 16000, buf.Format.SampleRate)
	// "hello" twice and "world" once, 10ms per rune at 16kHz
	require.Len(t, buf.Data, 15*160)
}

func TestExportReusesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sc := script.New("Again", "one two three")
	require.NoError(t, f.repo.InsertScript(ctx, sc))

	synth := &countingSynth{inner: tts.NewMockSynth(f.tts.SampleRate, f.tts.Channels)}
	p := NewPipeline(f.repo, synth, f.tts, f.export, f.log)

	_, err := p.Export(ctx, Request{ScriptID: sc.ID})
	require.NoError(t, err)
	second, err := p.Export(ctx, Request{ScriptID: sc.ID, OutputPath: filepath.Join("again", "out.wav")})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(f.export.Dir, "again", "out.wav"), second.OutputPath)

	require.Equal(t, 3, second.CacheHits)
	require.Zero(t, second.Synthesized)
	require.EqualValues(t, 3, synth.calls.Load())
	require.FileExists(t, second.OutputPath)
}

func TestExportMissingScript(t *testing.T) {
	f := newFixture(t)
	p := NewPipeline(f.repo, tts.NewMockSynth(16000, 1), f.tts, f.export, f.log)

	_, err := p.Export(context.Background(), Request{ScriptID: uuid.New()})
	require.ErrorIs(t, err, ErrScriptNotFound)
}

func TestExportSynthFailureLeavesNoCacheFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sc := script.New("Broken", "phrase")
	require.NoError(t, f.repo.InsertScript(ctx, sc))

	boom := errors.New("engine offline")
	p := NewPipeline(f.repo, failingSynth{err: boom}, f.tts, f.export, f.log)

	_, err := p.Export(ctx, Request{ScriptID: sc.ID, VoiceID: "v"})
	require.ErrorIs(t, err, boom)
	require.NoFileExists(t, filepath.Join(f.cacheDir, "voices", "v", "phrase.pcm"))
}

func TestExportRejectsOutputOutsideExportDir(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sc := script.New("Escape", "hi")
	require.NoError(t, f.repo.InsertScript(ctx, sc))
	p := NewPipeline(f.repo, tts.NewMockSynth(16000, 1), f.tts, f.export, f.log)

	outside := filepath.Join(t.TempDir(), "victim.wav")
	for _, path := range []string{outside, filepath.Join("..", "victim.wav"), filepath.Join("a", "..", "..", "b.wav")} {
		_, err := p.Export(ctx, Request{ScriptID: sc.ID, OutputPath: path})
		require.ErrorIs(t, err, ErrInvalidOutputPath, path)
	}
	require.NoFileExists(t, outside)
}

func TestExportHandlesPhrasesLongerThanNameLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	long := strings.Repeat("a", 300)
	sc := script.New(strings.Repeat("题", 120), long+" ok")
	require.NoError(t, f.repo.InsertScript(ctx, sc))
	synth := &countingSynth{inner: tts.NewMockSynth(f.tts.SampleRate, f.tts.Channels)}
	p := NewPipeline(f.repo, synth, f.tts, f.export, f.log)

	result, err := p.Export(ctx, Request{ScriptID: sc.ID, VoiceID: "v"})
	require.NoError(t, err)
	require.Equal(t, 2, result.Synthesized)
	require.FileExists(t, result.OutputPath)
	require.LessOrEqual(t, len(filepath.Base(result.OutputPath)), cachefs.MaxNameBytes)

	entries, err := os.ReadDir(filepath.Join(f.cacheDir, "voices", "v"))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	again, err := p.Export(ctx, Request{ScriptID: sc.ID, VoiceID: "v"})
	require.NoError(t, err)
	require.Equal(t, 2, again.CacheHits)
}

func TestFailedWavEncodeKeepsPreviousOutput(t *testing.T) {
	f := newFixture(t)
	p := NewPipeline(f.repo, tts.NewMockSynth(16000, 1), f.tts, f.export, f.log)
	require.NoError(t, os.MkdirAll(f.export.Dir, 0o755))
	path := filepath.Join(f.export.Dir, "out.wav")
	require.NoError(t, os.WriteFile(path, []byte("previous"), 0o644))

	// odd byte count is not 16-bit PCM
	err := p.writeOutput(path, []byte{1, 2, 3})
	require.ErrorContains(t, err, "write export file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "previous", string(data))
	entries, err := os.ReadDir(f.export.Dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestSanitizeFilename(t *testing.T) {
	require.Equal(t, "untitled", SanitizeFilename(""))
	require.Equal(t, "untitled", SanitizeFilename(" ... "))
	require.Equal(t, "a-b c", SanitizeFilename("a:b/c"))
	require.Equal(t, "spaced out", SanitizeFilename("  spaced    out.  "))
}
