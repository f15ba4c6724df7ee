// Package media holds the artifact, format and encoder contracts shared by the
// compositor, the background generator and the encoder hosts.
package media

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

// Blob is an in-memory media artifact with a declared media type.
type Blob struct {
	Name string
	Type string
	Data []byte
}

// NewBlob builds a Blob, guessing the type from the file name when typ is empty.
func NewBlob(name, typ string, data []byte) Blob {
	if typ == "" {
		typ = TypeByName(name)
	}
	return Blob{Name: name, Type: typ, Data: data}
}

// Size returns the artifact length in bytes.
func (b Blob) Size() int {
	return len(b.Data)
}

// Kind returns the top-level media type ("audio", "image", "video").
func (b Blob) Kind() string {
	kind, _, _ := strings.Cut(b.Type, "/")
	return kind
}

func (b Blob) String() string {
	return fmt.Sprintf("%s (%s, %d bytes)", b.Name, b.Type, len(b.Data))
}

// TypeByName guesses a media type from a file extension.
func TypeByName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".flac":
		return "audio/flac"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	case ".webm":
		return "video/webm"
	case ".avi":
		return "video/avi"
	case ".mkv":
		return "video/x-matroska"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		t, _, _ = strings.Cut(t, ";")
		return t
	}
	return "application/octet-stream"
}
