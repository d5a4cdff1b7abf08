package tts

import (
	"context"
	"fmt"

	"github.com/loqalabs/muse-core/internal/config"
)

// SynthRequest contains parameters to synthesize one phrase.
type SynthRequest struct {
	Text  string
	Voice string
}

// SynthChunk contains 16-bit little-endian PCM.
type SynthChunk struct {
	Sequence   int
	SampleRate int
	Channels   int
	PCM        []byte
	Final      bool
}

// Synthesizer is the contract for producing audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error)
}

// FromConfig builds the backend selected by cfg.Mode.
func FromConfig(cfg config.TTSConfig) (Synthesizer, error) {
	switch cfg.Mode {
	case "mock", "":
		return NewMockSynth(cfg.SampleRate, cfg.Channels), nil
	case "exec":
		return NewExecSynth(cfg.Command, cfg.SampleRate, cfg.Channels)
	default:
		return nil, fmt.Errorf("unknown tts mode %q", cfg.Mode)
	}
}

// Collect drains a synthesis stream into a single PCM payload.
func Collect(ctx context.Context, synth Synthesizer, req SynthRequest) ([]byte, error) {
	chunks, errs := synth.Synthesize(ctx, req)
	var pcm []byte
	for chunks != nil || errs != nil {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			pcm = append(pcm, chunk.PCM...)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return nil, err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return pcm, nil
}
