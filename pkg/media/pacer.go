package media

import "time"

// FramePacer maps wall-clock presentation timestamps onto a constant frame
// rate. Late frames are repeated to fill the gap and early frames are dropped,
// so the stream length tracks the wall clock.
type FramePacer struct {
	interval time.Duration
	emitted  int64
}

// NewFramePacer returns a pacer for fps frames per second.
func NewFramePacer(fps int) *FramePacer {
	if fps <= 0 {
		fps = 30
	}
	return &FramePacer{interval: time.Second / time.Duration(fps)}
}

// Advance returns how many copies of the frame captured at pts must be
// written. Zero means the frame is dropped.
func (p *FramePacer) Advance(pts time.Duration) int {
	if pts < 0 {
		pts = 0
	}
	target := int64(pts/p.interval) + 1
	n := target - p.emitted
	if n <= 0 {
		return 0
	}
	p.emitted = target
	return int(n)
}

// Emitted returns the number of frames written so far.
func (p *FramePacer) Emitted() int64 {
	return p.emitted
}

// Interval is the duration of one frame.
func (p *FramePacer) Interval() time.Duration {
	return p.interval
}

// Duration is the stream length covered by the emitted frames.
func (p *FramePacer) Duration() time.Duration {
	return time.Duration(p.emitted) * p.interval
}
