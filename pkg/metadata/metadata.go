// Package metadata reads audio tags and derives upload titles and
// descriptions from them.
package metadata

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dhowden/tag"

	"github.com/xob0t/musngr/pkg/media"
)

// DefaultWatermark opens every suggested description.
const DefaultWatermark = "Created with Musngr"

// Tags is what could be learned about a track. Empty fields are unknown.
type Tags struct {
	Title       string `json:"title,omitempty"`
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	AlbumArtist string `json:"album_artist,omitempty"`
	Genre       string `json:"genre,omitempty"`
	Year        int    `json:"year,omitempty"`
	Track       int    `json:"track,omitempty"`
	Format      string `json:"format,omitempty"` // tag format, e.g. ID3v2.3; empty when only the name was used

	picture *tag.Picture
}

// HasArtwork reports whether an embedded picture was found.
func (t Tags) HasArtwork() bool { return t.picture != nil && len(t.picture.Data) > 0 }

// Artwork returns the embedded picture.
func (t Tags) Artwork() (media.Blob, bool) {
	if !t.HasArtwork() {
		return media.Blob{}, false
	}
	mime := t.picture.MIMEType
	ext := t.picture.Ext
	if ext == "" {
		switch mime {
		case "image/png":
			ext = "png"
		case "image/gif":
			ext = "gif"
		default:
			ext = "jpg"
		}
	}
	if mime == "" {
		mime = media.TypeByName("x." + ext)
	}
	return media.NewBlob("artwork."+ext, mime, t.picture.Data), true
}

// Extract reads embedded tags from data and fills a missing title or artist
// from the "Artist - Title" file name convention. It never fails: unreadable
// tags leave only what the name provides.
func Extract(name string, data []byte) Tags {
	var t Tags
	if m, err := tag.ReadFrom(bytes.NewReader(data)); err == nil {
		t = Tags{
			Title:       clean(m.Title()),
			Artist:      clean(m.Artist()),
			Album:       clean(m.Album()),
			AlbumArtist: clean(m.AlbumArtist()),
			Genre:       clean(m.Genre()),
			Year:        m.Year(),
			Format:      string(m.Format()),
			picture:     m.Picture(),
		}
		t.Track, _ = m.Track()
	}

	if t.Title == "" || t.Artist == "" {
		fromName := FromFilename(name)
		if t.Title == "" {
			t.Title = fromName.Title
		}
		if t.Artist == "" {
			t.Artist = fromName.Artist
		}
	}
	return t
}

// FromFilename splits "Artist - Title.ext". Without a separator the whole
// base name is the title.
func FromFilename(name string) Tags {
	base := stem(name)
	artist, title, ok := strings.Cut(base, " - ")
	if !ok {
		return Tags{Title: base}
	}
	return Tags{Artist: strings.TrimSpace(artist), Title: strings.TrimSpace(title)}
}

// SuggestedTitle returns "Artist - Title" when both are known and degrades
// to whatever is.
func SuggestedTitle(name string, t Tags) string {
	switch {
	case t.Title != "" && t.Artist != "":
		return t.Artist + " - " + t.Title
	case t.Title != "":
		return t.Title
	case t.Artist != "":
		return t.Artist + " - " + stem(name)
	default:
		return stem(name)
	}
}

// SuggestedDescription lists the known tags under watermark and ends with
// hashtags. An empty watermark uses DefaultWatermark.
func SuggestedDescription(t Tags, watermark string) string {
	if watermark == "" {
		watermark = DefaultWatermark
	}

	var b strings.Builder
	b.WriteString(watermark)
	b.WriteString("\n\n")
	line := func(label, v string) {
		if v != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, v)
		}
	}
	line("Artist", t.Artist)
	line("Album", t.Album)
	if t.Year != 0 {
		line("Year", strconv.Itoa(t.Year))
	}
	line("Genre", t.Genre)

	b.WriteString("\n#music #audio #musngr")
	if tagged := hashtag(t.Genre); tagged != "" {
		b.WriteString(" #" + tagged)
	}
	return b.String()
}

func hashtag(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

func stem(name string) string {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func clean(s string) string {
	return strings.TrimSpace(strings.Trim(s, "\x00"))
}
