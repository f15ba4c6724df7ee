package ffmpeg

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/xob0t/musngr/pkg/media"
)

const (
	videoQueue = 4
	audioQueue = 64
	readSize   = 64 << 10
	stderrTail = 4 << 10
)

var errClosed = errors.New("ffmpeg: encoder is not running")

type encoderState int

const (
	stateIdle encoderState = iota
	stateRunning
	stateClosed
)

type encoder struct {
	path   string
	args   []string
	cfg    media.StreamConfig
	pacer  *media.FramePacer
	logger hclog.Logger

	mu     sync.Mutex
	state  encoderState
	cmd    *exec.Cmd
	cancel context.CancelFunc
	group  *errgroup.Group
	done   <-chan struct{}
	video  chan []byte
	audio  chan []byte
	stderr *tail
}

func (e *encoder) Start(ctx context.Context, sink media.ChunkFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateIdle {
		return fmt.Errorf("ffmpeg: encoder already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, e.path, e.args...)
	e.stderr = &tail{max: stderrTail}
	cmd.Stderr = e.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("ffmpeg: stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("ffmpeg: stdout: %w", err)
	}

	// PCM goes through fd 3 so video and audio never block each other.
	var audioR, audioW *os.File
	if e.cfg.HasAudio() {
		audioR, audioW, err = os.Pipe()
		if err != nil {
			cancel()
			return fmt.Errorf("ffmpeg: audio pipe: %w", err)
		}
		cmd.ExtraFiles = []*os.File{audioR}
	}

	if err := cmd.Start(); err != nil {
		cancel()
		if audioR != nil {
			audioR.Close()
			audioW.Close()
		}
		return fmt.Errorf("ffmpeg: start: %w", err)
	}
	if audioR != nil {
		audioR.Close()
	}
	e.logger.Debug("encoder started", "pid", cmd.Process.Pid, "args", strings.Join(e.args, " "))

	g, gctx := errgroup.WithContext(ctx)
	e.video = make(chan []byte, videoQueue)
	g.Go(func() error { return pump(gctx, e.video, stdin) })
	if audioW != nil {
		e.audio = make(chan []byte, audioQueue)
		g.Go(func() error { return pump(gctx, e.audio, audioW) })
	}
	g.Go(func() error {
		for {
			buf := make([]byte, readSize)
			n, err := stdout.Read(buf)
			if n > 0 {
				sink(buf[:n])
			}
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read output: %w", err)
			}
		}
	})

	e.cmd = cmd
	e.cancel = cancel
	e.group = g
	e.done = gctx.Done()
	e.state = stateRunning
	return nil
}

// pump copies queued buffers into w and closes it when the queue is closed.
func pump(ctx context.Context, queue <-chan []byte, w io.WriteCloser) error {
	defer w.Close()
	for {
		select {
		case buf, ok := <-queue:
			if !ok {
				return nil
			}
			if _, err := w.Write(buf); err != nil {
				return fmt.Errorf("write input: %w", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (e *encoder) running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == stateRunning
}

func (e *encoder) WriteVideo(frame *image.RGBA, pts time.Duration) error {
	e.mu.Lock()
	if e.state != stateRunning {
		e.mu.Unlock()
		return errClosed
	}
	n := e.pacer.Advance(pts)
	e.mu.Unlock()
	if n == 0 {
		return nil
	}

	buf := rawFrame(frame, e.cfg.Width, e.cfg.Height)
	for i := 0; i < n; i++ {
		select {
		case e.video <- buf:
		case <-e.done:
			return e.failure()
		}
	}
	return nil
}

func (e *encoder) WriteAudio(samples []int16, _ time.Duration) error {
	if !e.running() {
		return errClosed
	}
	if e.audio == nil || len(samples) == 0 {
		return nil
	}

	buf := make([]byte, 0, len(samples)*2)
	for _, s := range samples {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(s))
	}
	select {
	case e.audio <- buf:
		return nil
	case <-e.done:
		return e.failure()
	}
}

func (e *encoder) Stop() error {
	e.mu.Lock()
	if e.state != stateRunning {
		e.mu.Unlock()
		return errClosed
	}
	e.state = stateClosed
	e.mu.Unlock()

	close(e.video)
	if e.audio != nil {
		close(e.audio)
	}

	gerr := e.group.Wait()
	werr := e.cmd.Wait()
	e.cancel()

	if err := errors.Join(gerr, werr); err != nil {
		return fmt.Errorf("ffmpeg: %w%s", err, e.stderr.suffix())
	}
	e.logger.Debug("encoder finished", "frames", e.pacer.Emitted())
	return nil
}

func (e *encoder) Abort() {
	e.mu.Lock()
	wasRunning := e.state == stateRunning
	e.state = stateClosed
	e.mu.Unlock()

	if !wasRunning {
		return
	}
	e.cancel()
	e.group.Wait()
	e.cmd.Wait()
	e.logger.Debug("encoder aborted")
}

// failure explains why the pipeline stopped accepting input.
func (e *encoder) failure() error {
	if !e.running() {
		return errClosed
	}
	return fmt.Errorf("ffmpeg: encoder exited early%s", e.stderr.suffix())
}

// rawFrame returns the tightly packed RGBA bytes of the w×h frame.
func rawFrame(frame *image.RGBA, w, h int) []byte {
	row := w * 4
	buf := make([]byte, row*h)
	b := frame.Bounds()
	for y := 0; y < h && y < b.Dy(); y++ {
		off := frame.PixOffset(b.Min.X, b.Min.Y+y)
		copy(buf[y*row:(y+1)*row], frame.Pix[off:])
	}
	return buf
}

// tail keeps the last max bytes written to it.
type tail struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}

func (t *tail) suffix() string {
	if s := t.String(); s != "" {
		return ": " + s
	}
	return ""
}
