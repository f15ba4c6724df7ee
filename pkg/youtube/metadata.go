// Package youtube uploads finished videos through the YouTube Data API.
package youtube

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Privacy is a video's visibility.
type Privacy string

const (
	PrivacyPublic   Privacy = "public"
	PrivacyPrivate  Privacy = "private"
	PrivacyUnlisted Privacy = "unlisted"
)

// License values accepted by the API.
const (
	LicenseYouTube        = "youtube"
	LicenseCreativeCommon = "creativeCommon"
)

// MaxTags is the number of tags the API accepts.
const MaxTags = 500

// Categories maps category names to YouTube category ids.
var Categories = map[string]string{
	"music":         "10",
	"entertainment": "24",
	"education":     "27",
	"gaming":        "20",
	"howto":         "26",
	"news":          "25",
	"nonprofit":     "29",
	"people":        "22",
	"pets":          "15",
	"science":       "28",
	"sports":        "17",
	"travel":        "19",
	"autos":         "2",
}

// CategoryNames returns the category names sorted.
func CategoryNames() []string {
	names := make([]string, 0, len(Categories))
	for n := range Categories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CategoryID resolves a category name. Unknown names map to music.
func CategoryID(name string) string {
	if id, ok := Categories[strings.ToLower(name)]; ok {
		return id
	}
	return Categories["music"]
}

// Metadata is everything sent alongside the video.
type Metadata struct {
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	Tags                []string   `json:"tags"`
	Category            string     `json:"category"`
	Privacy             Privacy    `json:"privacy"`
	Language            string     `json:"language"`
	License             string     `json:"license"`
	MadeForKids         bool       `json:"made_for_kids"`
	NotifySubscribers   bool       `json:"notify_subscribers"`
	Embeddable          bool       `json:"embeddable"`
	PublicStatsViewable bool       `json:"public_stats_viewable"`
	RecordingDate       *time.Time `json:"recording_date,omitempty"`
	Location            string     `json:"location,omitempty"`
}

// DefaultMetadata is a public, embeddable music upload.
func DefaultMetadata() Metadata {
	return Metadata{
		Description:         "Created with Musngr",
		Tags:                []string{"music", "audio", "musngr"},
		Category:            "music",
		Privacy:             PrivacyPublic,
		Language:            "en",
		License:             LicenseYouTube,
		Embeddable:          true,
		PublicStatsViewable: true,
	}
}

// Normalize fills empty fields from DefaultMetadata and cleans the tags.
func (m Metadata) Normalize() Metadata {
	d := DefaultMetadata()
	if m.Description == "" {
		m.Description = d.Description
	}
	if m.Tags == nil {
		m.Tags = d.Tags
	}
	m.Tags = FormatTags(m.Tags)
	if m.Category == "" {
		m.Category = d.Category
	}
	if m.Privacy == "" {
		m.Privacy = d.Privacy
	}
	if m.Language == "" {
		m.Language = d.Language
	}
	if m.License == "" {
		m.License = d.License
	}
	return m
}

// Validate rejects metadata the API would refuse.
func (m Metadata) Validate() error {
	if strings.TrimSpace(m.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if len([]rune(m.Title)) > 100 {
		return fmt.Errorf("title exceeds 100 characters")
	}
	switch m.Privacy {
	case "", PrivacyPublic, PrivacyPrivate, PrivacyUnlisted:
	default:
		return fmt.Errorf("invalid privacy %q", m.Privacy)
	}
	switch m.License {
	case "", LicenseYouTube, LicenseCreativeCommon:
	default:
		return fmt.Errorf("invalid license %q", m.License)
	}
	if m.Category != "" {
		if _, ok := Categories[strings.ToLower(m.Category)]; !ok {
			return fmt.Errorf("unknown category %q", m.Category)
		}
	}
	return nil
}

// FormatTags trims tags, drops empty ones and keeps at most MaxTags.
func FormatTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
		if len(out) == MaxTags {
			break
		}
	}
	return out
}
