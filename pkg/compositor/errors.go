package compositor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xob0t/musngr/pkg/media"
)

var (
	// ErrBusy is returned when Compose is called while another Compose on the
	// same Compositor is in flight.
	ErrBusy = errors.New("compositor: a compose is already in progress")

	// ErrSessionClosed is returned by an in-flight Compose after Cleanup
	// force-stopped its session. No artifact is produced.
	ErrSessionClosed = errors.New("compositor: encoding session was closed")
)

// ImageDecodeError reports an image the decoder could not read.
type ImageDecodeError struct {
	Name string
	Err  error
}

func (e *ImageDecodeError) Error() string {
	return fmt.Sprintf("decode image %q: %v", e.Name, e.Err)
}

func (e *ImageDecodeError) Unwrap() error { return e.Err }

// AudioDecodeError reports audio the decoder could not read.
type AudioDecodeError struct {
	Name string
	Err  error
}

func (e *AudioDecodeError) Error() string {
	return fmt.Sprintf("decode audio %q: %v", e.Name, e.Err)
}

func (e *AudioDecodeError) Unwrap() error { return e.Err }

// EncodingError reports an encoder failure; Op names the failing step.
type EncodingError struct {
	Op  string
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding %s: %v", e.Op, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// UnsupportedCodecError is returned when every preference was rejected.
type UnsupportedCodecError struct {
	Tried []media.Format
}

func (e *UnsupportedCodecError) Error() string {
	tried := make([]string, len(e.Tried))
	for i, f := range e.Tried {
		if f.IsZero() {
			tried[i] = "<host default>"
		} else {
			tried[i] = f.String()
		}
	}
	return fmt.Sprintf("no supported video format among [%s]", strings.Join(tried, ", "))
}

func (e *UnsupportedCodecError) Unwrap() error { return media.ErrUnsupportedCodec }
