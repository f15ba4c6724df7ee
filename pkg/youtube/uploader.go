package youtube

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/xob0t/musngr/internal/retry"
	"github.com/xob0t/musngr/pkg/media"
)

// WatchURL is the public page of an uploaded video.
const WatchURL = "https://www.youtube.com/watch?v="

// Result identifies an uploaded video.
type Result struct {
	VideoID string `json:"video_id"`
	URL     string `json:"url"`
}

// Uploader publishes a video with its metadata. thumbnail may be nil.
type Uploader interface {
	Upload(ctx context.Context, video media.Blob, md Metadata, thumbnail *media.Blob) (*Result, error)
}

// Options configure an APIUploader. Credentials come from, in order:
// HTTPClient, AccessToken, or the ClientID/ClientSecret/RefreshToken triple.
type Options struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	AccessToken  string

	HTTPClient *http.Client
	Endpoint   string // API base URL override

	RequestsPerSecond float64 // 0 disables client-side pacing
	Retry             retry.Config
	Logger            hclog.Logger
}

// ErrNoCredentials is returned when Options carry no way to authenticate.
var ErrNoCredentials = errors.New("youtube: no credentials configured")

// APIUploader uploads through the YouTube Data API v3.
type APIUploader struct {
	svc     *yt.Service
	limiter *rate.Limiter
	retry   retry.Config
	logger  hclog.Logger
}

// NewAPIUploader builds the API client.
func NewAPIUploader(ctx context.Context, opts Options) (*APIUploader, error) {
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}

	var clientOpts []option.ClientOption
	switch {
	case opts.HTTPClient != nil:
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	case opts.AccessToken != "":
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.AccessToken})
		clientOpts = append(clientOpts, option.WithTokenSource(ts))
	case opts.RefreshToken != "" && opts.ClientID != "":
		conf := &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{yt.YoutubeUploadScope},
		}
		ts := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: opts.RefreshToken})
		clientOpts = append(clientOpts, option.WithTokenSource(ts))
	default:
		return nil, ErrNoCredentials
	}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}

	svc, err := yt.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	if opts.Retry == (retry.Config{}) {
		opts.Retry = retry.DefaultConfig()
	}

	return &APIUploader{
		svc:     svc,
		limiter: rate.NewLimiter(limit, 1),
		retry:   opts.Retry,
		logger:  opts.Logger,
	}, nil
}

// Upload inserts the video and, when given, sets its thumbnail. A failed
// thumbnail is logged and does not fail the upload.
func (u *APIUploader) Upload(ctx context.Context, video media.Blob, md Metadata, thumbnail *media.Blob) (*Result, error) {
	md = md.Normalize()
	if err := md.Validate(); err != nil {
		return nil, err
	}

	body := videoResource(md)
	contentType := video.Type
	if contentType == "" {
		contentType = media.TypeByName(video.Name)
	}

	var inserted *yt.Video
	err := retry.Do(ctx, u.retry, IsRetryable, func(ctx context.Context) error {
		if err := u.limiter.Wait(ctx); err != nil {
			return err
		}
		v, err := u.svc.Videos.Insert([]string{"snippet", "status", "recordingDetails"}, body).
			NotifySubscribers(md.NotifySubscribers).
			Media(bytes.NewReader(video.Data), googleapi.ContentType(contentType)).
			Context(ctx).
			Do()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			u.logger.Warn("video insert failed", "error", err)
			return wrapAPIError(err)
		}
		inserted = v
		return nil
	})
	if err != nil {
		return nil, unwrapExhausted(err)
	}

	u.logger.Info("video uploaded", "video_id", inserted.Id, "bytes", video.Size())

	if thumbnail != nil && len(thumbnail.Data) > 0 {
		if err := u.setThumbnail(ctx, inserted.Id, *thumbnail); err != nil {
			u.logger.Warn("thumbnail upload failed", "video_id", inserted.Id, "error", err)
		}
	}

	return &Result{VideoID: inserted.Id, URL: WatchURL + inserted.Id}, nil
}

func (u *APIUploader) setThumbnail(ctx context.Context, id string, thumb media.Blob) error {
	if err := u.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := u.svc.Thumbnails.Set(id).
		Media(bytes.NewReader(thumb.Data), googleapi.ContentType(thumb.Type)).
		Context(ctx).
		Do()
	if err != nil {
		return wrapAPIError(err)
	}
	return nil
}

// unwrapExhausted surfaces the last UploadError so callers see the status.
func unwrapExhausted(err error) error {
	var ue *UploadError
	if errors.As(err, &ue) {
		return ue
	}
	return err
}

func videoResource(md Metadata) *yt.Video {
	v := &yt.Video{
		Snippet: &yt.VideoSnippet{
			Title:                md.Title,
			Description:          md.Description,
			Tags:                 md.Tags,
			CategoryId:           CategoryID(md.Category),
			DefaultLanguage:      md.Language,
			DefaultAudioLanguage: md.Language,
		},
		Status: &yt.VideoStatus{
			PrivacyStatus:           strings.ToLower(string(md.Privacy)),
			License:                 md.License,
			SelfDeclaredMadeForKids: md.MadeForKids,
			Embeddable:              md.Embeddable,
			PublicStatsViewable:     md.PublicStatsViewable,
			ForceSendFields:         []string{"SelfDeclaredMadeForKids", "Embeddable", "PublicStatsViewable"},
		},
	}
	if md.RecordingDate != nil || md.Location != "" {
		v.RecordingDetails = &yt.VideoRecordingDetails{LocationDescription: md.Location}
		if md.RecordingDate != nil {
			v.RecordingDetails.RecordingDate = md.RecordingDate.UTC().Format(time.RFC3339)
		}
	}
	return v
}
