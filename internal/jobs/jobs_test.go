package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xob0t/musngr/pkg/compositor"
	"github.com/xob0t/musngr/pkg/media"
	"github.com/xob0t/musngr/pkg/youtube"
)

type fakeComposer struct {
	mu      sync.Mutex
	calls   int
	err     error
	block   chan struct{} // when set, Compose waits for it or ctx
	started chan struct{} // receives once per Compose call
}

func (f *fakeComposer) Compose(ctx context.Context, audio, img media.Blob, onProgress compositor.ProgressFunc) (*media.Blob, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	onProgress(0.25)
	onProgress(0.1) // out of order, must not move progress backwards
	onProgress(0.5)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, compositor.ErrSessionClosed
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	out := media.NewBlob("video.webm", "video/webm", []byte("webm-bytes"))
	return &out, nil
}

type fakeUploader struct {
	mu      sync.Mutex
	got     youtube.Metadata
	video   media.Blob
	err     error
	started chan struct{} // when set, Upload signals it and waits for ctx
}

func (f *fakeUploader) Upload(ctx context.Context, video media.Blob, md youtube.Metadata, _ *media.Blob) (*youtube.Result, error) {
	if f.started != nil {
		close(f.started)
		<-ctx.Done()
		return nil, &youtube.UploadError{Err: ctx.Err()}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got, f.video = md, video
	if f.err != nil {
		return nil, f.err
	}
	return &youtube.Result{VideoID: "vid123", URL: youtube.WatchURL + "vid123"}, nil
}

type recordingNotifier struct {
	mu  sync.Mutex
	got []Status
}

func (n *recordingNotifier) Notify(_ context.Context, st Status) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, st)
	return nil
}

func request() Request {
	return Request{
		Audio: media.NewBlob("song.wav", "audio/wav", []byte("pcm")),
		Image: media.NewBlob("bg.png", "image/png", []byte("png")),
	}
}

func startManager(t *testing.T, c Composer, opts Options) *Manager {
	t.Helper()
	m := NewManager(c, opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return m
}

func waitTerminal(t *testing.T, m *Manager, id string) Status {
	t.Helper()
	var st Status
	require.Eventually(t, func() bool {
		var err error
		st, err = m.Get(id)
		return err == nil && st.State.Terminal()
	}, 2*time.Second, 5*time.Millisecond)
	return st
}

func TestManager_ComposeOnly(t *testing.T) {
	m := startManager(t, &fakeComposer{}, Options{})

	id, err := m.Submit(request())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	st := waitTerminal(t, m, id)
	assert.Equal(t, StateDone, st.State)
	assert.Equal(t, 1.0, st.Progress)
	assert.Equal(t, "video/webm", st.Format)
	assert.Equal(t, len("webm-bytes"), st.Size)
	assert.Empty(t, st.VideoID)

	blob, err := m.Artifact(id)
	require.NoError(t, err)
	assert.Equal(t, []byte("webm-bytes"), blob.Data)
}

func TestManager_Upload(t *testing.T) {
	up := &fakeUploader{}
	notes := &recordingNotifier{}
	m := startManager(t, &fakeComposer{}, Options{Uploader: up, Notifier: notes})
	assert.True(t, m.CanUpload())

	req := request()
	req.Upload = &Upload{Metadata: youtube.Metadata{Title: "Song"}}
	id, err := m.Submit(req)
	require.NoError(t, err)

	st := waitTerminal(t, m, id)
	assert.Equal(t, StateDone, st.State)
	assert.Equal(t, "vid123", st.VideoID)
	assert.Equal(t, "https://www.youtube.com/watch?v=vid123", st.VideoURL)
	assert.Equal(t, "Song", up.got.Title)
	assert.Equal(t, "video/webm", up.video.Type)

	notes.mu.Lock()
	defer notes.mu.Unlock()
	require.Len(t, notes.got, 1)
	assert.Equal(t, id, notes.got[0].ID)
}

func TestManager_UploadFailureKeepsArtifact(t *testing.T) {
	up := &fakeUploader{err: &youtube.UploadError{StatusCode: 403, Reason: "quotaExceeded", Message: "quota"}}
	m := startManager(t, &fakeComposer{}, Options{Uploader: up})

	req := request()
	req.Upload = &Upload{Metadata: youtube.Metadata{Title: "Song"}}
	id, err := m.Submit(req)
	require.NoError(t, err)

	st := waitTerminal(t, m, id)
	assert.Equal(t, StateFailed, st.State)
	assert.Equal(t, "quota_error", st.ErrorKind)

	_, err = m.Artifact(id)
	assert.NoError(t, err, "the rendered video stays downloadable")
}

func TestManager_ComposeFailure(t *testing.T) {
	c := &fakeComposer{err: &compositor.AudioDecodeError{Name: "song.wav", Err: errors.New("bad header")}}
	m := startManager(t, c, Options{})

	id, err := m.Submit(request())
	require.NoError(t, err)

	st := waitTerminal(t, m, id)
	assert.Equal(t, StateFailed, st.State)
	assert.Equal(t, "audio_decode_error", st.ErrorKind)
	assert.Contains(t, st.Error, "bad header")
	assert.Equal(t, 0.5, st.Progress)

	_, err = m.Artifact(id)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestManager_SubmitValidation(t *testing.T) {
	m := NewManager(&fakeComposer{}, Options{})
	_, err := m.Submit(Request{Audio: media.NewBlob("a.wav", "", []byte("x"))})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestManager_QueueFull(t *testing.T) {
	m := NewManager(&fakeComposer{}, Options{QueueSize: 2}) // not running
	for range 2 {
		_, err := m.Submit(request())
		require.NoError(t, err)
	}
	_, err := m.Submit(request())
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Len(t, m.List(), 2)
}

func TestManager_CancelQueued(t *testing.T) {
	c := &fakeComposer{}
	m := NewManager(c, Options{})
	id, err := m.Submit(request())
	require.NoError(t, err)

	require.NoError(t, m.Cancel(id))
	st, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StateCanceled, st.State)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = m.Run(ctx) }()
	defer cancel()

	time.Sleep(50 * time.Millisecond)
	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Zero(t, c.calls, "canceled jobs never start")
}

func TestManager_CancelProcessing(t *testing.T) {
	c := &fakeComposer{block: make(chan struct{}), started: make(chan struct{}, 1)}
	m := startManager(t, c, Options{})

	id, err := m.Submit(request())
	require.NoError(t, err)
	<-c.started

	require.Eventually(t, func() bool {
		st, _ := m.Get(id)
		return st.State == StateProcessing
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Cancel(id))
	st := waitTerminal(t, m, id)
	assert.Equal(t, StateCanceled, st.State)
	assert.Empty(t, st.Error)
}

func TestManager_CancelLeavesNextJobRunning(t *testing.T) {
	c := &fakeComposer{block: make(chan struct{}), started: make(chan struct{}, 2)}
	m := startManager(t, c, Options{})

	first, err := m.Submit(request())
	require.NoError(t, err)
	second, err := m.Submit(request())
	require.NoError(t, err)
	<-c.started

	require.NoError(t, m.Cancel(first))
	assert.Equal(t, StateCanceled, waitTerminal(t, m, first).State)

	<-c.started
	st, err := m.Get(second)
	require.NoError(t, err)
	assert.Equal(t, StateProcessing, st.State)

	close(c.block)
	assert.Equal(t, StateDone, waitTerminal(t, m, second).State)
	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, 2, c.calls)
}

func TestManager_CancelUploading(t *testing.T) {
	up := &fakeUploader{started: make(chan struct{})}
	notifier := &recordingNotifier{}
	m := startManager(t, &fakeComposer{}, Options{Uploader: up, Notifier: notifier})

	req := request()
	req.Upload = &Upload{Metadata: youtube.DefaultMetadata()}
	id, err := m.Submit(req)
	require.NoError(t, err)
	<-up.started

	st, err := m.Get(id)
	require.NoError(t, err)
	require.Equal(t, StateUploading, st.State)

	require.NoError(t, m.Cancel(id))
	st = waitTerminal(t, m, id)
	assert.Equal(t, StateCanceled, st.State)
	assert.Empty(t, st.ErrorKind)
	assert.Empty(t, st.VideoID)

	blob, err := m.Artifact(id)
	require.NoError(t, err, "the rendered video outlives a canceled upload")
	assert.Equal(t, []byte("webm-bytes"), blob.Data)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Empty(t, notifier.got)
}

func TestManager_CancelUnknown(t *testing.T) {
	m := NewManager(&fakeComposer{}, Options{})
	assert.ErrorIs(t, m.Cancel("nope"), ErrNotFound)
	_, err := m.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_Subscribe(t *testing.T) {
	c := &fakeComposer{block: make(chan struct{})}
	m := startManager(t, c, Options{})

	id, err := m.Submit(request())
	require.NoError(t, err)
	updates, stop, err := m.Subscribe(id)
	require.NoError(t, err)
	defer stop()

	close(c.block)

	var last Status
	prev := -1.0
	for st := range updates {
		assert.GreaterOrEqual(t, st.Progress, prev)
		prev = st.Progress
		last = st
	}
	assert.Equal(t, StateDone, last.State)

	// Subscribing after the fact yields the final status once.
	again, _, err := m.Subscribe(id)
	require.NoError(t, err)
	st, ok := <-again
	require.True(t, ok)
	assert.Equal(t, StateDone, st.State)
	_, ok = <-again
	assert.False(t, ok)
}

func TestManager_Sweep(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	m := NewManager(&fakeComposer{}, Options{Retention: time.Minute, Now: clock})
	done, err := m.Submit(request())
	require.NoError(t, err)
	pending, err := m.Submit(request())
	require.NoError(t, err)
	require.NoError(t, m.Cancel(done))

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	assert.Equal(t, 1, m.Sweep())
	_, err = m.Get(done)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Get(pending)
	assert.NoError(t, err, "unfinished jobs are never swept")
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "image_decode_error", ErrorKind(&compositor.ImageDecodeError{Err: errors.New("x")}))
	assert.Equal(t, "encoding_error", ErrorKind(&compositor.EncodingError{Err: errors.New("x")}))
	assert.Equal(t, "unsupported_codec", ErrorKind(&compositor.UnsupportedCodecError{}))
	assert.Equal(t, "auth_error", ErrorKind(&youtube.UploadError{StatusCode: 401}))
	assert.Equal(t, "internal_error", ErrorKind(errors.New("boom")))
}
