// Package portaudio implements the microphone and speaker on the host's
// default PortAudio devices. Requires cgo and the PortAudio C library.
package portaudio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/aria/pkg/audio"
)

// initMu serialises Initialize/Terminate, which PortAudio reference-counts.
var initMu sync.Mutex

func initialize() error {
	initMu.Lock()
	defer initMu.Unlock()
	return pa.Initialize()
}

func terminate() {
	initMu.Lock()
	defer initMu.Unlock()
	if err := pa.Terminate(); err != nil {
		slog.Warn("portaudio: terminate", "err", err)
	}
}

// Microphone captures from the default input device.
type Microphone struct {
	framesPerBuffer int

	mu   sync.Mutex
	busy bool
}

var _ audio.Microphone = (*Microphone)(nil)

// NewMicrophone returns a Microphone reading framesPerBuffer samples per
// device read.
func NewMicrophone(framesPerBuffer int) *Microphone {
	if framesPerBuffer <= 0 {
		framesPerBuffer = audio.DefaultFrameSamples
	}
	return &Microphone{framesPerBuffer: framesPerBuffer}
}

// Open implements [audio.Microphone]. The device is opened mono at want's
// sample rate.
func (m *Microphone) Open(_ context.Context, want audio.Format) (audio.InputStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return nil, audio.ErrDeviceBusy
	}
	if want.SampleRate <= 0 {
		want = audio.InputFormat
	}

	if err := initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	buf := make([]float32, m.framesPerBuffer)
	st, err := pa.OpenDefaultStream(1, 0, float64(want.SampleRate), len(buf), buf)
	if err != nil {
		terminate()
		return nil, fmt.Errorf("%w: %w", audio.ErrPermissionDenied, err)
	}
	if err := st.Start(); err != nil {
		_ = st.Close()
		terminate()
		return nil, fmt.Errorf("portaudio: start capture: %w", err)
	}
	m.busy = true
	slog.Debug("portaudio: capture started", "rate", want.SampleRate, "frames", len(buf))
	return &inputStream{
		mic:    m,
		st:     st,
		buf:    buf,
		format: audio.Format{SampleRate: want.SampleRate, Channels: 1},
	}, nil
}

type inputStream struct {
	mic    *Microphone
	st     *pa.Stream
	buf    []float32
	format audio.Format

	readMu sync.Mutex // held for the duration of a device read
	mu     sync.Mutex
	closed bool
}

func (s *inputStream) Format() audio.Format { return s.format }

func (s *inputStream) Read(out []float32) (int, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	if s.isClosed() {
		return 0, fmt.Errorf("portaudio: read on closed stream")
	}
	if err := s.st.Read(); err != nil {
		return 0, fmt.Errorf("portaudio: read: %w", err)
	}
	return copy(out, s.buf), nil
}

func (s *inputStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close waits for an in-progress device read (at most one buffer period)
// before releasing the stream.
func (s *inputStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.readMu.Lock()
	defer s.readMu.Unlock()
	err := s.st.Stop()
	if cerr := s.st.Close(); err == nil {
		err = cerr
	}
	terminate()

	s.mic.mu.Lock()
	s.mic.busy = false
	s.mic.mu.Unlock()
	if err != nil {
		return fmt.Errorf("portaudio: close capture: %w", err)
	}
	return nil
}

// Speaker is an output sink on the default output device.
type Speaker struct {
	mu  sync.Mutex
	st  *pa.Stream
	buf []float32
}

// OpenSpeaker opens the default output device mono at sampleRate, writing
// framesPerBuffer samples per device write.
func OpenSpeaker(sampleRate, framesPerBuffer int) (*Speaker, error) {
	if err := initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	buf := make([]float32, framesPerBuffer)
	st, err := pa.OpenDefaultStream(0, 1, float64(sampleRate), len(buf), buf)
	if err != nil {
		terminate()
		return nil, fmt.Errorf("portaudio: open output: %w", err)
	}
	if err := st.Start(); err != nil {
		_ = st.Close()
		terminate()
		return nil, fmt.Errorf("portaudio: start output: %w", err)
	}
	return &Speaker{st: st, buf: buf}, nil
}

// Write plays samples, blocking until the device accepts them. A trailing
// partial buffer is padded with silence.
func (s *Speaker) Write(samples []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == nil {
		return fmt.Errorf("portaudio: write on closed speaker")
	}
	for len(samples) > 0 {
		n := copy(s.buf, samples)
		clear(s.buf[n:])
		samples = samples[n:]
		if err := s.st.Write(); err != nil {
			return fmt.Errorf("portaudio: write: %w", err)
		}
	}
	return nil
}

// Close stops and releases the output device. Safe to call more than once.
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == nil {
		return nil
	}
	err := s.st.Stop()
	if cerr := s.st.Close(); err == nil {
		err = cerr
	}
	s.st = nil
	terminate()
	return err
}
