package media

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedCodec is returned when no entry of a preference list is
// accepted by the host.
var ErrUnsupportedCodec = errors.New("no supported container/codec combination")

// Format is a container media type with an optional codec hint, written the
// way recorder MIME strings are: "video/webm;codecs=vp9,opus".
// The zero Format means "no hint, let the host decide".
type Format struct {
	Container string
	Codecs    []string
}

// DefaultPreferences is the ordered fallback list used when none is configured.
var DefaultPreferences = []Format{
	{Container: "video/webm", Codecs: []string{"vp9", "opus"}},
	{Container: "video/webm", Codecs: []string{"vp8", "opus"}},
	{Container: "video/webm"},
	{},
}

// ParseFormat parses "container[;codecs=a,b]". An empty string is the zero Format.
func ParseFormat(s string) (Format, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Format{}, nil
	}

	container, params, _ := strings.Cut(s, ";")
	container = strings.ToLower(strings.TrimSpace(container))
	if !strings.Contains(container, "/") {
		return Format{}, fmt.Errorf("invalid media type %q", s)
	}

	f := Format{Container: container}
	params = strings.TrimSpace(params)
	if params == "" {
		return f, nil
	}

	key, value, ok := strings.Cut(params, "=")
	if !ok || strings.ToLower(strings.TrimSpace(key)) != "codecs" {
		return Format{}, fmt.Errorf("invalid codecs parameter in %q", s)
	}
	value = strings.Trim(strings.TrimSpace(value), `"'`)
	for _, c := range strings.Split(value, ",") {
		if c = strings.TrimSpace(c); c != "" {
			f.Codecs = append(f.Codecs, c)
		}
	}
	return f, nil
}

// MustParseFormat is ParseFormat for literals.
func MustParseFormat(s string) Format {
	f, err := ParseFormat(s)
	if err != nil {
		panic(err)
	}
	return f
}

// ParseFormats parses a configured preference list in order.
func ParseFormats(list []string) ([]Format, error) {
	out := make([]Format, 0, len(list))
	for _, s := range list {
		f, err := ParseFormat(s)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func (f Format) String() string {
	if len(f.Codecs) == 0 {
		return f.Container
	}
	return f.Container + ";codecs=" + strings.Join(f.Codecs, ",")
}

// IsZero reports whether f carries no hint at all.
func (f Format) IsZero() bool {
	return f.Container == "" && len(f.Codecs) == 0
}

// Subtype returns the part after the slash, e.g. "webm".
func (f Format) Subtype() string {
	_, sub, _ := strings.Cut(f.Container, "/")
	return sub
}

// Extension returns the conventional file extension for the container.
func (f Format) Extension() string {
	switch f.Subtype() {
	case "webm":
		return ".webm"
	case "mp4":
		return ".mp4"
	case "x-matroska", "matroska":
		return ".mkv"
	case "avi", "x-msvideo":
		return ".avi"
	default:
		return ".bin"
	}
}

// CanonicalCodec reduces RFC 6381 style codec strings ("avc1.42E01E",
// "vp09.00.10.08", "mp4a.40.2") to the short names the hosts key on.
func CanonicalCodec(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	base, _, _ := strings.Cut(c, ".")
	switch base {
	case "vp09", "vp9":
		return "vp9"
	case "vp08", "vp8":
		return "vp8"
	case "av01", "av1":
		return "av1"
	case "avc1", "avc3", "h264":
		return "h264"
	case "hev1", "hvc1", "h265", "hevc":
		return "hevc"
	case "mp4a", "aac":
		return "aac"
	case "pcm", "pcm_s16le", "1":
		return "pcm"
	case "mjpeg", "mjpg":
		return "mjpeg"
	default:
		return base
	}
}

// CapabilityQuery is the part of a Host that answers "can you encode this".
type CapabilityQuery interface {
	IsTypeSupported(f Format) bool
	DefaultFormat() Format
}

// Negotiate walks prefs in order and returns the first format the host accepts.
// A zero entry resolves to the host default.
func Negotiate(host CapabilityQuery, prefs []Format) (Format, error) {
	for _, p := range prefs {
		if p.IsZero() {
			if d := host.DefaultFormat(); !d.IsZero() {
				return d, nil
			}
			continue
		}
		if host.IsTypeSupported(p) {
			return p, nil
		}
	}
	return Format{}, ErrUnsupportedCodec
}
