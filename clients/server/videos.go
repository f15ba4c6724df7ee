package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xob0t/musngr/internal/jobs"
	"github.com/xob0t/musngr/pkg/background"
	"github.com/xob0t/musngr/pkg/media"
	"github.com/xob0t/musngr/pkg/metadata"
	"github.com/xob0t/musngr/pkg/youtube"
)

// Background sources for a new video.
const (
	BackgroundNone   = "none"   // use the uploaded image
	BackgroundCreate = "create" // render the "background" spec
	BackgroundID3    = "id3"    // use embedded artwork, else render the suggested title
)

// handleCreateVideo accepts multipart fields:
//
//	audio            required audio file
//	image            background image (background_type none)
//	background       JSON spec (background_type create)
//	background_type  none | create | id3 (default: none with an image, else create)
//	metadata         JSON upload metadata; title and description are suggested when empty
//	thumbnail        optional custom thumbnail
//	upload           bool, publish after composing
func (s *Server) handleCreateVideo(c *gin.Context) {
	limits := s.app.Config.Limits
	total := limits.MaxAudioBytes + limits.MaxImageBytes + limits.MaxThumbnailBytes + 1<<20
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, total)

	audio, err := readPart(c, "audio", limits.MaxAudioBytes, "audio")
	if err != nil {
		failPart(c, err)
		return
	}
	if audio == nil {
		fail(c, http.StatusBadRequest, errors.New("audio file is required"))
		return
	}
	img, err := readPart(c, "image", limits.MaxImageBytes, "image")
	if err != nil {
		failPart(c, err)
		return
	}
	thumb, err := readPart(c, "thumbnail", limits.MaxThumbnailBytes, "image")
	if err != nil {
		failPart(c, err)
		return
	}

	upload := false
	if v := c.PostForm("upload"); v != "" {
		if upload, err = strconv.ParseBool(v); err != nil {
			fail(c, http.StatusBadRequest, fmt.Errorf("upload: %w", err))
			return
		}
	}
	if upload && !s.app.Jobs.CanUpload() {
		fail(c, http.StatusServiceUnavailable, errors.New("uploading is not configured"))
		return
	}

	tags := metadata.Extract(audio.Name, audio.Data)

	bgType := c.DefaultPostForm("background_type", "")
	if bgType == "" {
		bgType = BackgroundCreate
		if img != nil {
			bgType = BackgroundNone
		}
	}
	img, err = s.resolveBackground(bgType, c.PostForm("background"), img, audio.Name, tags)
	if err != nil {
		failPart(c, err)
		return
	}

	req := jobs.Request{Audio: *audio, Image: *img}
	if upload {
		md, err := s.uploadMetadata(c.PostForm("metadata"), audio.Name, tags)
		if err != nil {
			fail(c, http.StatusBadRequest, err)
			return
		}
		req.Upload = &jobs.Upload{Metadata: md, Thumbnail: thumb}
	}

	id, err := s.app.Jobs.Submit(req)
	switch {
	case errors.Is(err, jobs.ErrQueueFull):
		fail(c, http.StatusTooManyRequests, err)
		return
	case err != nil:
		fail(c, http.StatusBadRequest, err)
		return
	}

	s.logger.Info("video requested", "job_id", id, "audio", audio.Name, "background", bgType, "upload", upload)
	c.JSON(http.StatusAccepted, gin.H{"id": id, "status_url": "/api/videos/" + id})
}

func (s *Server) resolveBackground(bgType, specJSON string, img *media.Blob, audioName string, tags metadata.Tags) (*media.Blob, error) {
	spec := background.Defaults()
	if specJSON != "" {
		if err := json.Unmarshal([]byte(specJSON), &spec); err != nil {
			return nil, &partError{http.StatusBadRequest, fmt.Errorf("background: %w", err)}
		}
		if err := spec.Validate(); err != nil {
			return nil, &partError{http.StatusBadRequest, err}
		}
	}

	switch bgType {
	case BackgroundNone:
		if img == nil {
			return nil, &partError{http.StatusBadRequest, errors.New("image is required for background_type none")}
		}
		return img, nil
	case BackgroundID3:
		if art, ok := tags.Artwork(); ok {
			return &art, nil
		}
		if spec.Text == "" {
			spec.Text = metadata.SuggestedTitle(audioName, tags)
		}
	case BackgroundCreate:
	default:
		return nil, &partError{http.StatusBadRequest, fmt.Errorf("unknown background_type %q", bgType)}
	}

	blob, err := s.app.Generator.Render(spec)
	if err != nil {
		return nil, &partError{http.StatusBadRequest, err}
	}
	return blob, nil
}

func (s *Server) uploadMetadata(raw, audioName string, tags metadata.Tags) (youtube.Metadata, error) {
	md := youtube.DefaultMetadata()
	md.Description = ""
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &md); err != nil {
			return md, fmt.Errorf("metadata: %w", err)
		}
	}
	if md.Title == "" {
		md.Title = metadata.SuggestedTitle(audioName, tags)
	}
	if md.Description == "" {
		md.Description = metadata.SuggestedDescription(tags, s.app.Config.YouTube.DescriptionWatermark)
	}
	md = md.Normalize()
	return md, md.Validate()
}

func (s *Server) handleListVideos(c *gin.Context) {
	list := s.app.Jobs.List()
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleGetVideo(c *gin.Context) {
	st, err := s.app.Jobs.Get(c.Param("id"))
	if err != nil {
		fail(c, http.StatusNotFound, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// handleVideoEvents streams "status" server-sent events until the job
// reaches a terminal state or the client goes away.
func (s *Server) handleVideoEvents(c *gin.Context) {
	updates, stop, err := s.app.Jobs.Subscribe(c.Param("id"))
	if err != nil {
		fail(c, http.StatusNotFound, err)
		return
	}
	defer stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Stream(func(w io.Writer) bool {
		select {
		case st, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("status", st)
			return !st.State.Terminal()
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (s *Server) handleDownload(c *gin.Context) {
	id := c.Param("id")
	blob, err := s.app.Jobs.Artifact(id)
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		fail(c, http.StatusNotFound, err)
		return
	case errors.Is(err, jobs.ErrNotReady):
		fail(c, http.StatusConflict, err)
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, err)
		return
	}

	ext := ".bin"
	if f, err := media.ParseFormat(blob.Type); err == nil && f.Extension() != "" {
		ext = f.Extension()
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="musngr-%s%s"`, shortID(id), ext))
	c.Data(http.StatusOK, blob.Type, blob.Data)
}

func (s *Server) handleCancelVideo(c *gin.Context) {
	id := c.Param("id")
	if err := s.app.Jobs.Cancel(id); err != nil {
		fail(c, http.StatusNotFound, err)
		return
	}
	st, err := s.app.Jobs.Get(id)
	if err != nil {
		fail(c, http.StatusNotFound, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
