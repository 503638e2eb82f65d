// Package otoplayer plays 16-bit little-endian PCM through the system audio
// device with oto.
//
// Input is either raw PCM at the backend's sample rate (the gateway's
// "pcm_<rate>" formats) or a RIFF/WAV file with matching parameters.
package otoplayer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/MrWong99/hallvoice/internal/playback"
)

// pollInterval is how often a playing element checks for the end of track.
const pollInterval = 10 * time.Millisecond

// ErrUnsupportedAudio is returned for compressed input such as MP3.
var ErrUnsupportedAudio = errors.New("otoplayer: unsupported audio encoding")

// Backend opens oto players on a shared context. oto allows a single
// context per process, so create one Backend and share it.
type Backend struct {
	ctx        *oto.Context
	sampleRate int
	channels   int
}

var _ playback.Backend = (*Backend)(nil)

// New initialises the audio device for mono PCM at sampleRate.
func New(sampleRate int) (*Backend, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("otoplayer: invalid sample rate %d", sampleRate)
	}
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("otoplayer: open device: %w", err)
	}
	<-ready
	return &Backend{ctx: ctx, sampleRate: sampleRate, channels: 1}, nil
}

// SampleRateOf parses the rate out of a "pcm_<rate>" output format.
func SampleRateOf(format string) (int, error) {
	rest, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("%w: format %q is not raw PCM", ErrUnsupportedAudio, format)
	}
	rate, err := strconv.Atoi(rest)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("otoplayer: bad sample rate in %q", format)
	}
	return rate, nil
}

// Open implements [playback.Backend].
func (b *Backend) Open(audio []byte) (playback.Element, error) {
	pcm, err := decodePCM(audio, b.sampleRate, b.channels)
	if err != nil {
		return nil, err
	}
	return &element{p: b.ctx.NewPlayer(bytes.NewReader(pcm)), stop: make(chan struct{})}, nil
}

// decodePCM returns the raw sample bytes of audio, stripping a WAV header
// when present.
func decodePCM(audio []byte, rate, channels int) ([]byte, error) {
	switch {
	case len(audio) >= 12 && string(audio[0:4]) == "RIFF" && string(audio[8:12]) == "WAVE":
		return extractWAV(audio, rate, channels)
	case len(audio) >= 3 && string(audio[0:3]) == "ID3",
		len(audio) >= 2 && audio[0] == 0xFF && audio[1]&0xE0 == 0xE0:
		return nil, fmt.Errorf("%w: mp3", ErrUnsupportedAudio)
	case len(audio)%2 != 0:
		return nil, errors.New("otoplayer: odd PCM length")
	}
	return audio, nil
}

// extractWAV walks the RIFF chunks, checks the fmt chunk against the device
// and returns the data chunk.
func extractWAV(wav []byte, rate, channels int) ([]byte, error) {
	pos := 12
	fmtSeen := false
	for pos+8 <= len(wav) {
		id := string(wav[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(wav[pos+4 : pos+8]))
		body := pos + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(wav) {
				return nil, errors.New("otoplayer: truncated fmt chunk")
			}
			ch := int(binary.LittleEndian.Uint16(wav[body+2:]))
			sr := int(binary.LittleEndian.Uint32(wav[body+4:]))
			bits := int(binary.LittleEndian.Uint16(wav[body+14:]))
			if ch != channels || sr != rate || bits != 16 {
				return nil, fmt.Errorf("%w: wav is %d Hz/%d ch/%d bit, device is %d Hz/%d ch/16 bit",
					ErrUnsupportedAudio, sr, ch, bits, rate, channels)
			}
			fmtSeen = true
		case "data":
			if !fmtSeen {
				return nil, errors.New("otoplayer: data chunk before fmt chunk")
			}
			end := min(body+size, len(wav))
			return wav[body:end], nil
		}

		pos = body + size
		// Chunks are word-aligned.
		if size%2 != 0 {
			pos++
		}
	}
	return nil, errors.New("otoplayer: data chunk not found in WAV")
}

// element is one oto player. Terminal events come from a watcher goroutine.
type element struct {
	p        *oto.Player
	stop     chan struct{}
	stopOnce sync.Once
}

func (e *element) Start(ev playback.Events) error {
	e.p.Play()
	go e.watch(ev)
	return nil
}

func (e *element) watch(ev playback.Events) {
	t := time.NewTicker(pollInterval)
	defer t.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-t.C:
			if e.p.IsPlaying() {
				continue
			}
			if err := e.p.Err(); err != nil {
				ev.Error(err)
			} else {
				ev.Ended()
			}
			return
		}
	}
}

func (e *element) Pause() {
	e.p.Pause()
}

func (e *element) Close() error {
	e.stopOnce.Do(func() { close(e.stop) })
	return e.p.Close()
}
