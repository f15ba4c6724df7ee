// Package jobs runs compose-and-upload requests one at a time in the
// background and tracks their status until they expire.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/xob0t/musngr/pkg/compositor"
	"github.com/xob0t/musngr/pkg/media"
	"github.com/xob0t/musngr/pkg/youtube"
)

var (
	ErrQueueFull      = errors.New("jobs: queue is full")
	ErrNotFound       = errors.New("jobs: no such job")
	ErrNotReady       = errors.New("jobs: video is not ready")
	ErrInvalidRequest = errors.New("jobs: audio and image are required")
)

// State is a job's lifecycle position.
type State string

const (
	StateQueued     State = "queued"
	StateProcessing State = "processing"
	StateUploading  State = "uploading"
	StateDone       State = "done"
	StateFailed     State = "failed"
	StateCanceled   State = "canceled"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCanceled
}

// Status is a snapshot of a job.
type Status struct {
	ID        string    `json:"id"`
	State     State     `json:"state"`
	Progress  float64   `json:"progress"`
	Error     string    `json:"error,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	VideoID   string    `json:"video_id,omitempty"`
	VideoURL  string    `json:"video_url,omitempty"`
	Format    string    `json:"format,omitempty"`
	Size      int       `json:"size,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Composer renders a video; *compositor.Compositor implements it.
type Composer interface {
	Compose(ctx context.Context, audio, img media.Blob, onProgress compositor.ProgressFunc) (*media.Blob, error)
}

// Upload asks for the finished video to be published.
type Upload struct {
	Metadata  youtube.Metadata
	Thumbnail *media.Blob
}

// Request is one unit of work.
type Request struct {
	Audio  media.Blob
	Image  media.Blob
	Upload *Upload // nil keeps the video local
}

// Notifier hears about every successful upload.
type Notifier interface {
	Notify(ctx context.Context, st Status) error
}

// LogNotifier logs uploads.
type LogNotifier struct{ Logger hclog.Logger }

func (n LogNotifier) Notify(_ context.Context, st Status) error {
	n.Logger.Info("video published", "job_id", st.ID, "url", st.VideoURL)
	return nil
}

// Options configure a Manager.
type Options struct {
	QueueSize int           // waiting jobs beyond the running one (default: 10)
	Retention time.Duration // how long finished jobs stay queryable (default: 15m)
	Uploader  youtube.Uploader
	Notifier  Notifier
	Logger    hclog.Logger
	Now       func() time.Time
}

type job struct {
	status   Status
	req      Request
	artifact *media.Blob
	cancel   context.CancelFunc
	subs     map[chan Status]struct{}
}

// Manager owns the queue. One worker drains it, so a Composer never sees
// two concurrent calls.
type Manager struct {
	composer Composer
	opts     Options
	logger   hclog.Logger
	queue    chan string

	mu   sync.Mutex
	jobs map[string]*job
}

// NewManager creates a Manager. Call Run to start processing.
func NewManager(c Composer, opts Options) *Manager {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 10
	}
	if opts.Retention <= 0 {
		opts.Retention = 15 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		composer: c,
		opts:     opts,
		logger:   opts.Logger,
		queue:    make(chan string, opts.QueueSize),
		jobs:     make(map[string]*job),
	}
}

// CanUpload reports whether an uploader is configured.
func (m *Manager) CanUpload() bool { return m.opts.Uploader != nil }

// Submit queues req and returns its id.
func (m *Manager) Submit(req Request) (string, error) {
	if len(req.Audio.Data) == 0 || len(req.Image.Data) == 0 {
		return "", ErrInvalidRequest
	}

	now := m.opts.Now()
	j := &job{
		status: Status{ID: uuid.NewString(), State: StateQueued, CreatedAt: now, UpdatedAt: now},
		req:    req,
		subs:   make(map[chan Status]struct{}),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case m.queue <- j.status.ID:
	default:
		return "", ErrQueueFull
	}
	m.jobs[j.status.ID] = j
	m.logger.Info("job queued", "job_id", j.status.ID, "audio", req.Audio.Name, "upload", req.Upload != nil)
	return j.status.ID, nil
}

// Get returns the current status of id.
func (m *Manager) Get(id string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return Status{}, ErrNotFound
	}
	return j.status, nil
}

// List returns every known job.
func (m *Manager) List() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Status, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j.status)
	}
	return out
}

// Artifact returns the rendered video once composing has finished.
func (m *Manager) Artifact(id string) (*media.Blob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if j.artifact == nil {
		return nil, ErrNotReady
	}
	return j.artifact, nil
}

// Subscribe streams status updates for id. The channel holds only the latest
// status, so a slow reader skips intermediate progress but always sees the
// terminal state, after which the channel is closed. Call the returned func
// to stop early.
func (m *Manager) Subscribe(id string) (<-chan Status, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, nil, ErrNotFound
	}

	ch := make(chan Status, 1)
	ch <- j.status
	if j.status.State.Terminal() {
		close(ch)
		return ch, func() {}, nil
	}

	j.subs[ch] = struct{}{}
	unsubscribe := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := j.subs[ch]; ok {
			delete(j.subs, ch)
			close(ch)
		}
	}
	return ch, unsubscribe, nil
}

// Cancel stops id and nothing else. A queued job never starts. A running
// compose or upload sees its context canceled. Canceling a finished job is a
// no-op.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	state := j.status.State
	cancel := j.cancel
	if state == StateQueued {
		m.setLocked(j, func(s *Status) { s.State = StateCanceled })
	}
	m.mu.Unlock()

	if (state == StateProcessing || state == StateUploading) && cancel != nil {
		cancel()
	}
	if !state.Terminal() {
		m.logger.Info("job canceled", "job_id", id, "was", state)
	}
	return nil
}

// Run processes the queue until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	sweep := time.NewTicker(m.opts.Retention / 4)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case id := <-m.queue:
			m.process(ctx, id)
		case <-sweep.C:
			m.Sweep()
		}
	}
}

// Sweep forgets finished jobs older than the retention period.
func (m *Manager) Sweep() int {
	cutoff := m.opts.Now().Add(-m.opts.Retention)
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, j := range m.jobs {
		if j.status.State.Terminal() && j.status.UpdatedAt.Before(cutoff) {
			delete(m.jobs, id)
			n++
		}
	}
	if n > 0 {
		m.logger.Debug("expired jobs removed", "count", n)
	}
	return n
}

func (m *Manager) process(parent context.Context, id string) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	m.mu.Lock()
	j, ok := m.jobs[id]
	if !ok || j.status.State != StateQueued {
		m.mu.Unlock()
		return
	}
	j.cancel = cancel
	m.setLocked(j, func(s *Status) { s.State = StateProcessing })
	req := j.req
	m.mu.Unlock()

	logger := m.logger.With("job_id", id)
	logger.Info("compose started")

	artifact, err := m.composer.Compose(ctx, req.Audio, req.Image, func(p float64) {
		m.set(j, func(s *Status) {
			if p > s.Progress {
				s.Progress = p
			}
		})
	})
	if err != nil {
		m.finish(ctx, j, err, logger)
		return
	}

	m.mu.Lock()
	j.artifact = artifact
	j.req = Request{Upload: req.Upload} // inputs are no longer needed
	m.setLocked(j, func(s *Status) {
		s.Progress = 1
		s.Format = artifact.Type
		s.Size = artifact.Size()
	})
	m.mu.Unlock()
	logger.Info("compose finished", "format", artifact.Type, "bytes", artifact.Size())

	if req.Upload == nil || m.opts.Uploader == nil {
		m.finish(ctx, j, nil, logger)
		return
	}

	m.set(j, func(s *Status) { s.State = StateUploading })
	res, err := m.opts.Uploader.Upload(ctx, *artifact, req.Upload.Metadata, req.Upload.Thumbnail)
	if err == nil {
		m.set(j, func(s *Status) {
			s.VideoID = res.VideoID
			s.VideoURL = res.URL
		})
	}
	m.finish(ctx, j, err, logger)
}

func (m *Manager) finish(ctx context.Context, j *job, err error, logger hclog.Logger) {
	var final Status
	m.mu.Lock()
	m.setLocked(j, func(s *Status) {
		switch {
		case err == nil:
			s.State = StateDone
		case ctx.Err() != nil || errors.Is(err, compositor.ErrSessionClosed):
			s.State = StateCanceled
		default:
			s.State = StateFailed
			s.Error = err.Error()
			s.ErrorKind = ErrorKind(err)
		}
	})
	j.cancel = nil
	final = j.status
	m.mu.Unlock()

	switch final.State {
	case StateFailed:
		logger.Error("job failed", "error", err)
	case StateCanceled:
		logger.Info("job canceled")
	case StateDone:
		logger.Info("job done", "video_id", final.VideoID)
		if final.VideoID != "" && m.opts.Notifier != nil {
			if nerr := m.opts.Notifier.Notify(context.WithoutCancel(ctx), final); nerr != nil {
				logger.Warn("notify failed", "error", nerr)
			}
		}
	}
}

func (m *Manager) set(j *job, fn func(*Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(j, fn)
}

// setLocked applies fn and fans the result out. Terminal states close every
// subscriber.
func (m *Manager) setLocked(j *job, fn func(*Status)) {
	if j.status.State.Terminal() {
		return
	}
	fn(&j.status)
	j.status.UpdatedAt = m.opts.Now()

	for ch := range j.subs {
		select {
		case ch <- j.status:
		default:
			// Replace the stale value nobody has read yet.
			select {
			case <-ch:
			default:
			}
			ch <- j.status
		}
		if j.status.State.Terminal() {
			delete(j.subs, ch)
			close(ch)
		}
	}
}

// ErrorKind classifies err for API clients.
func ErrorKind(err error) string {
	var (
		ue  *youtube.UploadError
		ide *compositor.ImageDecodeError
		ade *compositor.AudioDecodeError
		uce *compositor.UnsupportedCodecError
		ee  *compositor.EncodingError
	)
	switch {
	case errors.As(err, &ue):
		return ue.Kind()
	case errors.As(err, &ide):
		return "image_decode_error"
	case errors.As(err, &ade):
		return "audio_decode_error"
	case errors.As(err, &uce):
		return "unsupported_codec"
	case errors.As(err, &ee):
		return "encoding_error"
	default:
		return "internal_error"
	}
}
