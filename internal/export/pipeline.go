package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/muse-core/internal/cachefs"
	"github.com/loqalabs/muse-core/internal/config"
	"github.com/loqalabs/muse-core/internal/repo"
	"github.com/loqalabs/muse-core/internal/tts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrScriptNotFound is returned when the requested script does not exist.
	ErrScriptNotFound = errors.New("script not found")
	// ErrInvalidOutputPath is returned for output paths that leave the export directory.
	ErrInvalidOutputPath = errors.New("output path must be relative to the export directory")
)

type Request struct {
	ScriptID uuid.UUID
	VoiceID  string
	// OutputPath overrides the default <title>-<voice>.wav. It is resolved
	// inside the export directory and may not leave it.
	OutputPath string
}

type Result struct {
	OutputPath  string `json:"output_path"`
	Phrases     int    `json:"phrases"`
	CacheHits   int    `json:"cache_hits"`
	Synthesized int    `json:"synthesized"`
	Truncated   bool   `json:"truncated"`
}

// Pipeline fills the phrase cache through a synthesizer and composes the
// cached audio of a script into one WAV file.
type Pipeline struct {
	repo   *repo.Repository
	synth  tts.Synthesizer
	tts    config.TTSConfig
	dir    string
	log    *slog.Logger
	tracer trace.Tracer
}

func NewPipeline(r *repo.Repository, synth tts.Synthesizer, ttsCfg config.TTSConfig, exportCfg config.ExportConfig, log *slog.Logger) *Pipeline {
	return &Pipeline{
		repo:   r,
		synth:  synth,
		tts:    ttsCfg,
		dir:    exportCfg.Dir,
		log:    log.With(slog.String("component", "export")),
		tracer: otel.Tracer("github.com/loqalabs/muse-core/export"),
	}
}

func (p *Pipeline) Export(ctx context.Context, req Request) (Result, error) {
	ctx, span := p.tracer.Start(ctx, "muse.export", trace.WithAttributes(attribute.String("script.id", req.ScriptID.String())))
	defer span.End()

	result, err := p.export(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	span.SetAttributes(
		attribute.Int("export.phrases", result.Phrases),
		attribute.Int("export.cache_hits", result.CacheHits),
		attribute.Int("export.synthesized", result.Synthesized),
	)
	return result, nil
}

func (p *Pipeline) export(ctx context.Context, req Request) (Result, error) {
	if req.OutputPath != "" && !filepath.IsLocal(req.OutputPath) {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidOutputPath, req.OutputPath)
	}
	sc, ok, err := p.repo.QueryScript(ctx, req.ScriptID)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrScriptNotFound, req.ScriptID)
	}
	phrases, ok, err := p.repo.QueryPhrases(ctx, req.ScriptID)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrScriptNotFound, req.ScriptID)
	}

	voice := req.VoiceID
	if voice == "" {
		voice = p.tts.Voice
	}
	output := filepath.Join(p.dir, cachefs.Shorten(SanitizeFilename(sc.Title)+"-"+cachefs.EscapeName(voice), ".wav"))
	if req.OutputPath != "" {
		output = filepath.Join(p.dir, req.OutputPath)
	}

	result := Result{OutputPath: output, Phrases: len(phrases.Items), Truncated: phrases.Truncated}
	var pcm []byte
	for _, phrase := range phrases.Items {
		data, hit, err := p.phraseAudio(ctx, voice, phrase)
		if err != nil {
			return Result{}, err
		}
		if hit {
			result.CacheHits++
		} else {
			result.Synthesized++
		}
		pcm = append(pcm, data...)
	}

	if err := p.writeOutput(output, pcm); err != nil {
		return Result{}, err
	}
	p.log.Info("script exported",
		slog.String("script_id", sc.ID.String()),
		slog.String("voice", voice),
		slog.String("path", output),
		slog.Int("phrases", result.Phrases),
		slog.Int("cache_hits", result.CacheHits),
		slog.Bool("truncated", result.Truncated))
	return result, nil
}

// phraseAudio returns cached PCM for the phrase, synthesizing and caching it
// on a miss. The bool reports a cache hit.
func (p *Pipeline) phraseAudio(ctx context.Context, voice, phrase string) ([]byte, bool, error) {
	path, err := p.repo.PCMCache(voice, phrase)
	if err != nil {
		return nil, false, err
	}
	exists, err := cachefs.Exists(path)
	if err != nil {
		return nil, false, fmt.Errorf("stat cache file: %w", err)
	}
	if exists {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, false, fmt.Errorf("read cache file: %w", err)
		}
		return data, true, nil
	}

	synthCtx := ctx
	if p.tts.TimeoutMS > 0 {
		var cancel context.CancelFunc
		synthCtx, cancel = context.WithTimeout(ctx, time.Duration(p.tts.TimeoutMS)*time.Millisecond)
		defer cancel()
	}
	data, err := tts.Collect(synthCtx, p.synth, tts.SynthRequest{Text: phrase, Voice: voice})
	if err != nil {
		return nil, false, fmt.Errorf("synthesize phrase: %w", err)
	}
	if err := writeAtomic(path, data); err != nil {
		return nil, false, err
	}
	return data, false, nil
}

// writeOutput replaces path only once the whole WAV has been encoded.
func (p *Pipeline) writeOutput(path string, pcm []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	return commitFile(path, "export file", func(f *os.File) error {
		return writeWav(f, pcm, p.tts.SampleRate, p.tts.Channels)
	})
}

// writeAtomic keeps concurrent readers from seeing a partially written cache file.
func writeAtomic(path string, data []byte) error {
	return commitFile(path, "cache file", func(f *os.File) error {
		_, err := f.Write(data)
		return err
	})
}

// commitFile writes through a temp file in the target directory and renames it
// into place, so a failed write leaves any previous file untouched.
func commitFile(path, what string, write func(*os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".partial-*")
	if err != nil {
		return fmt.Errorf("create %s: %w", what, err)
	}
	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", what, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", what, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("commit %s: %w", what, err)
	}
	return nil
}
