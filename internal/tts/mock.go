package tts

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"
	"unicode/utf8"
)

const (
	// mockMillisPerRune is how much audio the mock produces per character.
	mockMillisPerRune = 10
	mockAmplitude     = 0.1
)

// mockSynth renders a quiet sine tone, one chunk per character, pitched by voice
// so cached phrases of different voices are distinguishable.
type mockSynth struct {
	sampleRate int
	channels   int
}

func NewMockSynth(sampleRate, channels int) Synthesizer {
	return &mockSynth{sampleRate: sampleRate, channels: channels}
}

func (m *mockSynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	chunks := make(chan SynthChunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)

		runes := utf8.RuneCountInString(req.Text)
		framesPerRune := mockMillisPerRune * m.sampleRate / 1000
		freq := voicePitch(req.Voice)

		if runes == 0 {
			select {
			case chunks <- SynthChunk{SampleRate: m.sampleRate, Channels: m.channels, Final: true}:
			case <-ctx.Done():
				errs <- ctx.Err()
			}
			return
		}

		for seq := 0; seq < runes; seq++ {
			if err := ctx.Err(); err != nil {
				errs <- err
				return
			}
			chunk := SynthChunk{
				Sequence:   seq,
				SampleRate: m.sampleRate,
				Channels:   m.channels,
				PCM:        m.tone(freq, seq*framesPerRune, framesPerRune),
				Final:      seq == runes-1,
			}
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()
	return chunks, errs
}

// tone renders frames of little-endian 16-bit PCM starting at frame offset.
func (m *mockSynth) tone(freq float64, offset, frames int) []byte {
	pcm := make([]byte, frames*m.channels*2)
	for i := 0; i < frames; i++ {
		t := float64(offset+i) / float64(m.sampleRate)
		sample := int16(mockAmplitude * math.MaxInt16 * math.Sin(2*math.Pi*freq*t))
		for ch := 0; ch < m.channels; ch++ {
			binary.LittleEndian.PutUint16(pcm[(i*m.channels+ch)*2:], uint16(sample))
		}
	}
	return pcm
}

// voicePitch maps a voice id onto 200-600 Hz.
func voicePitch(voice string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(voice))
	return 200 + float64(h.Sum32()%400)
}
