// Package pcmfile implements audio devices backed by raw little-endian PCM16
// files. The microphone replays a recording at real-time pace, which makes it
// useful for demos and for exercising a live session without hardware; the
// sink records rendered playback.
package pcmfile

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/aria/pkg/audio"
)

// Microphone is an [audio.Microphone] that reads mono PCM16 from a file.
type Microphone struct {
	path   string
	format audio.Format
	paced  bool

	mu   sync.Mutex
	busy bool
}

var _ audio.Microphone = (*Microphone)(nil)

// Option configures a [Microphone].
type Option func(*Microphone)

// WithSampleRate sets the rate the file was recorded at. Default 16 kHz.
func WithSampleRate(rate int) Option {
	return func(m *Microphone) {
		if rate > 0 {
			m.format.SampleRate = rate
		}
	}
}

// WithoutPacing makes Read return as fast as the file can be read.
func WithoutPacing() Option {
	return func(m *Microphone) {
		m.paced = false
	}
}

// NewMicrophone returns a file-backed microphone for path.
func NewMicrophone(path string, opts ...Option) *Microphone {
	m := &Microphone{
		path:   path,
		format: audio.InputFormat,
		paced:  true,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Open implements [audio.Microphone]. Only one stream may be open at a time.
func (m *Microphone) Open(_ context.Context, _ audio.Format) (audio.InputStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return nil, audio.ErrDeviceBusy
	}
	f, err := os.Open(m.path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %s", audio.ErrPermissionDenied, m.path)
		}
		return nil, fmt.Errorf("pcmfile: open %s: %w", m.path, err)
	}
	m.busy = true
	return &stream{
		mic:    m,
		f:      f,
		r:      bufio.NewReader(f),
		format: m.format,
		paced:  m.paced,
		start:  time.Now(),
		done:   make(chan struct{}),
	}, nil
}

func (m *Microphone) release() {
	m.mu.Lock()
	m.busy = false
	m.mu.Unlock()
}

type stream struct {
	mic    *Microphone
	f      *os.File
	r      *bufio.Reader
	format audio.Format
	paced  bool
	start  time.Time
	read   int64 // samples delivered
	raw    []byte

	done chan struct{}
	once sync.Once
}

func (s *stream) Format() audio.Format { return s.format }

func (s *stream) Read(buf []float32) (int, error) {
	select {
	case <-s.done:
		return 0, os.ErrClosed
	default:
	}

	if len(buf) == 0 {
		return 0, nil
	}
	if cap(s.raw) < 2*len(buf) {
		s.raw = make([]byte, 2*len(buf))
	}
	raw := s.raw[:2*len(buf)]
	m, err := io.ReadFull(s.r, raw)
	m -= m % 2 // a trailing odd byte is not a sample
	if m == 0 {
		if err == nil || errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		return 0, err
	}
	frame, err := audio.FrameFromBytes(raw[:m], s.format.SampleRate)
	if err != nil {
		return 0, err
	}
	for i, v := range frame.Samples {
		buf[i] = float32(v) / 32768
	}
	n := len(frame.Samples)
	s.read += int64(n)

	if s.paced {
		due := s.start.Add(time.Duration(s.read) * time.Second / time.Duration(s.format.SampleRate))
		if wait := time.Until(due); wait > 0 {
			t := time.NewTimer(wait)
			defer t.Stop()
			select {
			case <-t.C:
			case <-s.done:
				return 0, os.ErrClosed
			}
		}
	}
	return n, nil
}

func (s *stream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.f.Close()
		s.mic.release()
	})
	return err
}

// Sink writes rendered float blocks to w as PCM16.
type Sink struct {
	mu  sync.Mutex
	w   *bufio.Writer
	c   io.Closer
	buf []byte
}

// NewSink returns a Sink writing to w. If w is an io.Closer it is closed by
// [Sink.Close].
func NewSink(w io.Writer) *Sink {
	s := &Sink{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		s.c = c
	}
	return s
}

// CreateSink creates (or truncates) path and returns a Sink writing to it.
func CreateSink(path string) (*Sink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("pcmfile: create %s: %w", path, err)
	}
	return NewSink(f), nil
}

// Write converts samples to PCM16 and writes them.
func (s *Sink) Write(samples []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pcm := audio.FloatToPCM16(samples)
	s.buf = s.buf[:0]
	for _, v := range pcm {
		s.buf = binary.LittleEndian.AppendUint16(s.buf, uint16(v))
	}
	_, err := s.w.Write(s.buf)
	return err
}

// Close flushes buffered output and closes the underlying writer.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.w.Flush()
	if s.c != nil {
		err = errors.Join(err, s.c.Close())
	}
	return err
}
