// Package server provides the musngr HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"golang.org/x/sync/errgroup"

	"github.com/xob0t/musngr/internal/app"
	"github.com/xob0t/musngr/pkg/background"
	"github.com/xob0t/musngr/pkg/media"
	"github.com/xob0t/musngr/pkg/metadata"
)

// Server routes API requests to the job manager, the background generator
// and the tag reader.
type Server struct {
	app    *app.App
	logger hclog.Logger
	engine *gin.Engine
	start  time.Time
}

// New builds the router. Call gin.SetMode before New to pick the mode.
func New(a *app.App) *Server {
	s := &Server{
		app:    a,
		logger: a.Logger.Named("server"),
		engine: gin.New(),
		start:  time.Now(),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	if a.Config.Server.EnableCORS {
		s.engine.Use(cors())
	}
	s.engine.MaxMultipartMemory = 32 << 20

	api := s.engine.Group("/api")
	api.GET("/health", s.handleHealth)
	api.POST("/background", s.handleBackground)
	api.POST("/background/preview", s.handleBackgroundPreview)
	api.POST("/metadata", s.handleMetadata)

	videos := api.Group("/videos")
	videos.GET("", s.handleListVideos)
	videos.POST("", s.handleCreateVideo)
	videos.GET("/:id", s.handleGetVideo)
	videos.GET("/:id/events", s.handleVideoEvents)
	videos.GET("/:id/download", s.handleDownload)
	videos.DELETE("/:id", s.handleCancelVideo)

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is canceled, then shuts down gracefully. The job
// worker runs alongside the listener. When open is set the default browser
// is pointed at the API health page.
func (s *Server) Run(ctx context.Context, open bool) error {
	cfg := s.app.Config.Server
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	url := "http://" + ln.Addr().String()
	s.logger.Info("listening", "url", url, "encoder", s.app.Host.Name(), "upload", s.app.Jobs.CanUpload())
	if open {
		go openBrowser(url + "/api/health")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.app.Jobs.Run(ctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.app.Compositor.Cleanup()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// ── Middleware ──

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// ── Health ──

func (s *Server) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()
	resp := gin.H{
		"status":  "ok",
		"encoder": s.app.Host.Name(),
		"ffmpeg":  s.app.FFmpeg.Available(),
		"upload":  s.app.Jobs.CanUpload(),
		"jobs":    len(s.app.Jobs.List()),
		"uptime":  time.Since(s.start).Round(time.Second).String(),
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		resp["memory"] = gin.H{
			"total":        vm.Total,
			"available":    vm.Available,
			"used_percent": vm.UsedPercent,
		}
	}
	// Zero interval compares against the previous call and never blocks.
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		resp["cpu_percent"] = pct[0]
	}
	c.JSON(http.StatusOK, resp)
}

// ── Background ──

func (s *Server) bindSpec(c *gin.Context) (background.Spec, bool) {
	spec := background.Defaults()
	if err := c.ShouldBindJSON(&spec); err != nil {
		fail(c, http.StatusBadRequest, fmt.Errorf("decode spec: %w", err))
		return spec, false
	}
	if err := spec.Validate(); err != nil {
		fail(c, http.StatusBadRequest, err)
		return spec, false
	}
	return spec, true
}

func (s *Server) handleBackground(c *gin.Context) {
	spec, ok := s.bindSpec(c)
	if !ok {
		return
	}
	blob, err := s.app.Generator.Render(spec)
	if err != nil {
		failRender(c, err)
		return
	}
	c.Data(http.StatusOK, blob.Type, blob.Data)
}

func (s *Server) handleBackgroundPreview(c *gin.Context) {
	spec, ok := s.bindSpec(c)
	if !ok {
		return
	}
	uri, err := s.app.Generator.Preview(spec)
	if err != nil {
		failRender(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data_uri": uri})
}

func failRender(c *gin.Context, err error) {
	var re *background.RenderError
	if errors.As(err, &re) && re.Op == "surface" {
		fail(c, http.StatusBadRequest, err)
		return
	}
	fail(c, http.StatusInternalServerError, err)
}

// ── Metadata ──

type metadataResponse struct {
	Tags                 metadata.Tags `json:"tags"`
	SuggestedTitle       string        `json:"suggested_title"`
	SuggestedDescription string        `json:"suggested_description"`
	HasArtwork           bool          `json:"has_artwork"`
}

func (s *Server) handleMetadata(c *gin.Context) {
	limits := s.app.Config.Limits
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limits.MaxAudioBytes+1<<20)

	audio, err := readPart(c, "audio", limits.MaxAudioBytes, "audio")
	if err != nil {
		failPart(c, err)
		return
	}
	if audio == nil {
		fail(c, http.StatusBadRequest, errors.New("audio file is required"))
		return
	}

	tags := metadata.Extract(audio.Name, audio.Data)
	c.JSON(http.StatusOK, metadataResponse{
		Tags:                 tags,
		SuggestedTitle:       metadata.SuggestedTitle(audio.Name, tags),
		SuggestedDescription: metadata.SuggestedDescription(tags, s.app.Config.YouTube.DescriptionWatermark),
		HasArtwork:           tags.HasArtwork(),
	})
}

// ── Helpers ──

func fail(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// partError carries the status a bad upload should produce.
type partError struct {
	status int
	err    error
}

func (e *partError) Error() string { return e.err.Error() }

func failPart(c *gin.Context, err error) {
	var pe *partError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &pe):
		fail(c, pe.status, pe.err)
	case errors.As(err, &tooLarge):
		fail(c, http.StatusRequestEntityTooLarge, errors.New("request body too large"))
	default:
		fail(c, http.StatusBadRequest, err)
	}
}

// readPart reads an optional multipart file field. A nil blob means the
// field was absent. kind, when set, is the required top-level media type.
func readPart(c *gin.Context, field string, limit int64, kind string) (*media.Blob, error) {
	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if fh.Size > limit {
		return nil, &partError{http.StatusRequestEntityTooLarge, fmt.Errorf("%s exceeds %d bytes", field, limit)}
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", field, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	if len(data) == 0 {
		return nil, &partError{http.StatusBadRequest, fmt.Errorf("%s is empty", field)}
	}

	typ := fh.Header.Get("Content-Type")
	if typ == "" || typ == "application/octet-stream" {
		typ = media.TypeByName(fh.Filename)
	}
	blob := media.NewBlob(fh.Filename, typ, data)
	if kind != "" && blob.Kind() != kind {
		return nil, &partError{http.StatusUnsupportedMediaType, fmt.Errorf("%s must be %s, got %q", field, kind, blob.Type)}
	}
	return &blob, nil
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	_ = cmd.Start()
}
