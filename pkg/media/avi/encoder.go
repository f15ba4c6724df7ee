package avi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"sync"
	"time"

	"github.com/xob0t/musngr/pkg/media"
)

const (
	flagHasIndex = 0x10 // AVIF_HASINDEX
	flagKeyframe = 0x10 // AVIIF_KEYFRAME

	// RIFF sizes are 32-bit; leave room for headers and the index.
	maxMoviBytes = 0xFFFFFFFF - 64<<20

	readChunk = 64 << 10
)

var errClosed = errors.New("avi: encoder is not running")

type indexEntry struct {
	id     string
	offset uint32
	size   uint32
}

// encoder spills the movi payload to a temp file while recording, since the
// RIFF header needs sizes that are only known at the end. Stop emits header,
// payload and index to the sink in that order.
type encoder struct {
	cfg  media.StreamConfig
	opts Options

	mu      sync.Mutex
	running bool
	closed  bool
	sink    media.ChunkFunc
	spill   *os.File
	w       *bufio.Writer
	pacer   *media.FramePacer
	jpegBuf bytes.Buffer
	pcmBuf  []byte

	index         []indexEntry
	moviBytes     uint32
	frames        uint32
	audioBytes    uint32
	maxVideoChunk uint32
	maxAudioChunk uint32
}

func newEncoder(cfg media.StreamConfig, opts Options) *encoder {
	return &encoder{
		cfg:   cfg,
		opts:  opts,
		pacer: media.NewFramePacer(cfg.FrameRate),
	}
}

func (e *encoder) Start(_ context.Context, sink media.ChunkFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running || e.closed {
		return fmt.Errorf("avi: encoder already started")
	}
	if e.cfg.Width <= 0 || e.cfg.Height <= 0 {
		return fmt.Errorf("avi: invalid frame size %dx%d", e.cfg.Width, e.cfg.Height)
	}

	f, err := os.CreateTemp(e.opts.TempDir, "musngr-*.movi")
	if err != nil {
		return fmt.Errorf("avi: create spill file: %w", err)
	}
	e.spill = f
	e.w = bufio.NewWriterSize(f, 1<<20)
	e.sink = sink
	e.running = true
	return nil
}

func (e *encoder) WriteVideo(frame *image.RGBA, pts time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return errClosed
	}
	n := e.pacer.Advance(pts)
	if n == 0 {
		return nil
	}

	e.jpegBuf.Reset()
	if err := jpeg.Encode(&e.jpegBuf, frame, &jpeg.Options{Quality: e.opts.Quality}); err != nil {
		return fmt.Errorf("avi: encode JPEG: %w", err)
	}
	data := e.jpegBuf.Bytes()

	for i := 0; i < n; i++ {
		if err := e.writeChunk("00dc", data); err != nil {
			return err
		}
		e.frames++
	}
	e.maxVideoChunk = max(e.maxVideoChunk, uint32(len(data)))
	return nil
}

func (e *encoder) WriteAudio(samples []int16, _ time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return errClosed
	}
	if !e.cfg.HasAudio() || len(samples) == 0 {
		return nil
	}

	e.pcmBuf = e.pcmBuf[:0]
	for _, s := range samples {
		e.pcmBuf = binary.LittleEndian.AppendUint16(e.pcmBuf, uint16(s))
	}
	if err := e.writeChunk("01wb", e.pcmBuf); err != nil {
		return err
	}
	e.audioBytes += uint32(len(e.pcmBuf))
	e.maxAudioChunk = max(e.maxAudioChunk, uint32(len(e.pcmBuf)))
	return nil
}

// writeChunk appends one movi sub-chunk. Offsets are relative to the 'movi'
// fourcc, so the first chunk sits at 4.
func (e *encoder) writeChunk(id string, data []byte) error {
	size := uint32(len(data))
	padded := size + size%2
	if uint64(e.moviBytes)+8+uint64(padded) > maxMoviBytes {
		return fmt.Errorf("avi: output exceeds the 4 GiB RIFF limit")
	}

	e.index = append(e.index, indexEntry{id: id, offset: 4 + e.moviBytes, size: size})

	var hdr [8]byte
	copy(hdr[:4], id)
	binary.LittleEndian.PutUint32(hdr[4:], size)
	if _, err := e.w.Write(hdr[:]); err != nil {
		return fmt.Errorf("avi: spill: %w", err)
	}
	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("avi: spill: %w", err)
	}
	if size%2 != 0 {
		if err := e.w.WriteByte(0); err != nil {
			return fmt.Errorf("avi: spill: %w", err)
		}
	}
	e.moviBytes += 8 + padded
	return nil
}

func (e *encoder) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return errClosed
	}
	e.running = false
	e.closed = true
	defer e.discardSpill()

	if err := e.w.Flush(); err != nil {
		return fmt.Errorf("avi: flush spill: %w", err)
	}

	e.sink(e.header())

	if _, err := e.spill.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("avi: rewind spill: %w", err)
	}
	for {
		buf := make([]byte, readChunk)
		n, err := e.spill.Read(buf)
		if n > 0 {
			e.sink(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("avi: read spill: %w", err)
		}
	}

	e.sink(e.indexChunk())
	return nil
}

func (e *encoder) Abort() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.running = false
	e.closed = true
	e.discardSpill()
}

func (e *encoder) discardSpill() {
	if e.spill == nil {
		return
	}
	name := e.spill.Name()
	e.spill.Close()
	os.Remove(name)
	e.spill = nil
}

func (e *encoder) streams() uint32 {
	if e.cfg.HasAudio() {
		return 2
	}
	return 1
}

func (e *encoder) blockAlign() uint32 {
	return uint32(e.cfg.Channels) * 2
}

// hdrlSize is the payload of the hdrl LIST: "hdrl" + avih (64) + video strl
// (124) + audio strl (102).
func (e *encoder) hdrlSize() uint32 {
	size := uint32(4 + 64 + 124)
	if e.cfg.HasAudio() {
		size += 102
	}
	return size
}

func (e *encoder) header() []byte {
	var buf bytes.Buffer

	writeFourCC := func(s string) {
		buf.WriteString(s)
	}
	writeUint32 := func(v uint32) {
		binary.Write(&buf, binary.LittleEndian, v)
	}
	writeUint16 := func(v uint16) {
		binary.Write(&buf, binary.LittleEndian, v)
	}

	fps := uint32(max(e.cfg.FrameRate, 1))
	width := uint32(e.cfg.Width)
	height := uint32(e.cfg.Height)
	moviSize := 4 + e.moviBytes
	idx1Size := 8 + uint32(len(e.index))*16
	fileSize := 4 + (8 + e.hdrlSize()) + (8 + moviSize) + idx1Size

	bytesPerSec := e.maxVideoChunk * fps
	if e.cfg.HasAudio() {
		bytesPerSec += uint32(e.cfg.SampleRate) * e.blockAlign()
	}

	// === RIFF Header ===
	writeFourCC("RIFF")
	writeUint32(fileSize)
	writeFourCC("AVI ")

	// === hdrl LIST ===
	writeFourCC("LIST")
	writeUint32(e.hdrlSize())
	writeFourCC("hdrl")

	// === avih (Main AVI Header) ===
	writeFourCC("avih")
	writeUint32(56)
	writeUint32(1000000 / fps) // microseconds per frame
	writeUint32(bytesPerSec)
	writeUint32(0) // padding granularity
	writeUint32(flagHasIndex)
	writeUint32(e.frames)
	writeUint32(0) // initial frames
	writeUint32(e.streams())
	writeUint32(max(e.maxVideoChunk, e.maxAudioChunk) + 8)
	writeUint32(width)
	writeUint32(height)
	writeUint32(0) // reserved
	writeUint32(0)
	writeUint32(0)
	writeUint32(0)

	// === video strl ===
	writeFourCC("LIST")
	writeUint32(116) // "strl" + strh(64) + strf(48)
	writeFourCC("strl")

	writeFourCC("strh")
	writeUint32(56)
	writeFourCC("vids")
	writeFourCC("MJPG")
	writeUint32(0) // flags
	writeUint16(0) // priority
	writeUint16(0) // language
	writeUint32(0) // initial frames
	writeUint32(1) // scale
	writeUint32(fps)
	writeUint32(0) // start
	writeUint32(e.frames)
	writeUint32(e.maxVideoChunk)
	writeUint32(0xFFFFFFFF) // quality: default
	writeUint32(0)          // sample size
	writeUint16(0)          // left
	writeUint16(0)          // top
	writeUint16(uint16(width))
	writeUint16(uint16(height))

	writeFourCC("strf") // BITMAPINFOHEADER
	writeUint32(40)
	writeUint32(40)
	writeUint32(width)
	writeUint32(height)
	writeUint16(1)  // planes
	writeUint16(24) // bit count
	writeFourCC("MJPG")
	writeUint32(width * height * 3)
	writeUint32(0) // x pels per meter
	writeUint32(0) // y pels per meter
	writeUint32(0) // colours used
	writeUint32(0) // colours important

	if e.cfg.HasAudio() {
		align := e.blockAlign()
		rate := uint32(e.cfg.SampleRate)

		// === audio strl ===
		writeFourCC("LIST")
		writeUint32(94) // "strl" + strh(64) + strf(26)
		writeFourCC("strl")

		writeFourCC("strh")
		writeUint32(56)
		writeFourCC("auds")
		writeUint32(0) // handler
		writeUint32(0) // flags
		writeUint16(0) // priority
		writeUint16(0) // language
		writeUint32(0) // initial frames
		writeUint32(align)
		writeUint32(rate * align)
		writeUint32(0) // start
		writeUint32(e.audioBytes / align)
		writeUint32(e.maxAudioChunk)
		writeUint32(0xFFFFFFFF)
		writeUint32(align) // sample size
		writeUint16(0)
		writeUint16(0)
		writeUint16(0)
		writeUint16(0)

		writeFourCC("strf") // WAVEFORMATEX
		writeUint32(18)
		writeUint16(1) // WAVE_FORMAT_PCM
		writeUint16(uint16(e.cfg.Channels))
		writeUint32(rate)
		writeUint32(rate * align)
		writeUint16(uint16(align))
		writeUint16(16) // bits per sample
		writeUint16(0)  // cbSize
	}

	// === movi LIST header; the payload follows from the spill file ===
	writeFourCC("LIST")
	writeUint32(moviSize)
	writeFourCC("movi")

	return buf.Bytes()
}

func (e *encoder) indexChunk() []byte {
	buf := make([]byte, 0, 8+len(e.index)*16)
	buf = append(buf, "idx1"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(e.index))*16)
	for _, ent := range e.index {
		buf = append(buf, ent.id...)
		buf = binary.LittleEndian.AppendUint32(buf, flagKeyframe)
		buf = binary.LittleEndian.AppendUint32(buf, ent.offset)
		buf = binary.LittleEndian.AppendUint32(buf, ent.size)
	}
	return buf
}
