package media_test

import (
	"context"
	"errors"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xob0t/musngr/pkg/media"
	"github.com/xob0t/musngr/pkg/media/mediatest"
)

func TestWAVDecoder(t *testing.T) {
	blob := mediatest.WAV(t, 500*time.Millisecond, 8000, 2)

	a, err := media.WAVDecoder{}.Decode(context.Background(), blob)
	require.NoError(t, err)

	assert.Equal(t, 8000, a.SampleRate)
	assert.Equal(t, 2, a.Channels)
	assert.Equal(t, 4000, a.Frames())
	assert.Equal(t, 500*time.Millisecond, a.Duration())
}

func TestWAVDecoder_RejectsOtherFormats(t *testing.T) {
	_, err := media.WAVDecoder{}.Decode(context.Background(), media.Blob{Name: "x.mp3", Data: []byte("ID3 not a wav")})
	assert.ErrorIs(t, err, media.ErrUnsupportedAudio)
}

func TestDecodedAudio_FrameAt(t *testing.T) {
	a := &media.DecodedAudio{SampleRate: 1000, Channels: 2, Samples: make([]int16, 2000)}

	assert.Equal(t, 0, a.FrameAt(-time.Second))
	assert.Equal(t, 250, a.FrameAt(250*time.Millisecond))
	assert.Equal(t, 1000, a.FrameAt(5*time.Second))
	assert.Len(t, a.Slice(10, 20), 20)
	assert.Equal(t, 10*time.Millisecond, a.TimeOf(10))
}

type stubDecoder struct {
	out *media.DecodedAudio
	err error
}

func (s stubDecoder) Decode(context.Context, media.Blob) (*media.DecodedAudio, error) {
	return s.out, s.err
}

func TestDecoderChain(t *testing.T) {
	want := &media.DecodedAudio{SampleRate: 48000, Channels: 2}
	chain := media.DecoderChain{
		stubDecoder{err: media.ErrUnsupportedAudio},
		stubDecoder{out: want},
	}

	got, err := chain.Decode(context.Background(), media.Blob{Name: "a.mp3"})
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestDecoderChain_ReportsRealFailures(t *testing.T) {
	chain := media.DecoderChain{
		stubDecoder{err: media.ErrUnsupportedAudio},
		stubDecoder{err: errors.New("ffmpeg: invalid data found")},
	}

	_, err := chain.Decode(context.Background(), media.Blob{Name: "a.mp3"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid data found")

	_, err = media.DecoderChain{stubDecoder{err: media.ErrUnsupportedAudio}}.Decode(context.Background(), media.Blob{Name: "a.bin"})
	assert.ErrorIs(t, err, media.ErrUnsupportedAudio)
}

func TestDecodeImage(t *testing.T) {
	img, format, err := media.DecodeImage(mediatest.PNG(t, 4, 3, color.White).Data)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 4, img.Bounds().Dx())

	_, _, err = media.DecodeImage([]byte("not an image"))
	assert.Error(t, err)

	_, _, err = media.DecodeImage(nil)
	assert.Error(t, err)
}

func TestFramePacer(t *testing.T) {
	p := media.NewFramePacer(10)

	assert.Equal(t, 1, p.Advance(0))
	assert.Equal(t, 0, p.Advance(50*time.Millisecond), "early frame is dropped")
	assert.Equal(t, 1, p.Advance(100*time.Millisecond))
	assert.Equal(t, 3, p.Advance(420*time.Millisecond), "late frame fills the gap")
	assert.EqualValues(t, 5, p.Emitted())
	assert.Equal(t, 500*time.Millisecond, p.Duration())
}

func TestTypeByName(t *testing.T) {
	assert.Equal(t, "audio/mpeg", media.TypeByName("song.MP3"))
	assert.Equal(t, "image/png", media.TypeByName("cover.png"))
	assert.Equal(t, "application/octet-stream", media.TypeByName("blob"))
}
