package compositor

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/xob0t/musngr/pkg/media"
)

// SessionState is the lifecycle of an EncodingSession.
type SessionState int

const (
	StateInactive SessionState = iota
	StateRecording
	StateStopped
)

func (s SessionState) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// EncodingSession wraps one encoder run and accumulates its chunks in
// arrival order. Chunks are never reordered or dropped.
type EncodingSession struct {
	format media.Format
	enc    media.Encoder

	mu     sync.Mutex
	state  SessionState
	forced bool
	chunks [][]byte
	size   int

	done     chan struct{}
	doneOnce sync.Once
}

// NewEncodingSession wraps enc; the artifact will be typed with format.
func NewEncodingSession(format media.Format, enc media.Encoder) *EncodingSession {
	return &EncodingSession{
		format: format,
		enc:    enc,
		done:   make(chan struct{}),
	}
}

// Format is the negotiated container type.
func (s *EncodingSession) Format() media.Format { return s.format }

// State returns the current lifecycle state.
func (s *EncodingSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the session stops for any reason.
func (s *EncodingSession) Done() <-chan struct{} { return s.done }

// Chunks returns the number of chunks received so far.
func (s *EncodingSession) Chunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

func (s *EncodingSession) append(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunk)
	s.size += len(chunk)
}

// Start moves the session to recording.
func (s *EncodingSession) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInactive {
		return &EncodingError{Op: "start", Err: errors.New("session already started")}
	}
	if err := s.enc.Start(ctx, s.append); err != nil {
		s.state = StateStopped
		s.closeDone()
		return &EncodingError{Op: "start", Err: err}
	}
	s.state = StateRecording
	return nil
}

// WriteVideo forwards a frame to the encoder.
func (s *EncodingSession) WriteVideo(frame *image.RGBA, pts time.Duration) error {
	if err := s.enc.WriteVideo(frame, pts); err != nil {
		return s.writeErr("video", err)
	}
	return nil
}

// WriteAudio forwards PCM to the encoder.
func (s *EncodingSession) WriteAudio(samples []int16, pts time.Duration) error {
	if err := s.enc.WriteAudio(samples, pts); err != nil {
		return s.writeErr("audio", err)
	}
	return nil
}

func (s *EncodingSession) writeErr(op string, err error) error {
	s.mu.Lock()
	forced := s.forced
	s.mu.Unlock()
	if forced {
		return ErrSessionClosed
	}
	return &EncodingError{Op: op, Err: err}
}

// Stop finalizes the encoder and joins every chunk, in arrival order, into
// one artifact typed with the session format.
func (s *EncodingSession) Stop() (*media.Blob, error) {
	s.mu.Lock()
	if s.state != StateRecording {
		forced := s.forced
		s.mu.Unlock()
		if forced {
			return nil, ErrSessionClosed
		}
		return nil, &EncodingError{Op: "stop", Err: errors.New("session is not recording")}
	}
	s.state = StateStopped
	s.mu.Unlock()
	defer s.closeDone()

	if err := s.enc.Stop(); err != nil {
		return nil, &EncodingError{Op: "finalize", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	data := make([]byte, 0, s.size)
	for _, c := range s.chunks {
		data = append(data, c...)
	}
	return &media.Blob{
		Name: "video" + s.format.Extension(),
		Type: s.format.String(),
		Data: data,
	}, nil
}

// ForceStop aborts a recording session. It is a no-op in any other state and
// safe to call repeatedly or concurrently.
func (s *EncodingSession) ForceStop() {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	s.forced = true
	s.mu.Unlock()

	s.enc.Abort()
	s.closeDone()
}

// Forced reports whether the session ended through ForceStop.
func (s *EncodingSession) Forced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forced
}

func (s *EncodingSession) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}
