// Package config manages application configuration.
//
// Values are layered: DefaultConfig, then an optional YAML or JSON file, then
// MUSNGR_* environment variables, then Validate.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xob0t/musngr/internal/retry"
)

// Config holds the complete application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" json:"server"`
	Render  RenderConfig  `yaml:"render" json:"render"`
	FFmpeg  FFmpegConfig  `yaml:"ffmpeg" json:"ffmpeg"`
	Fonts   FontsConfig   `yaml:"fonts" json:"fonts"`
	Limits  LimitsConfig  `yaml:"limits" json:"limits"`
	YouTube YouTubeConfig `yaml:"youtube" json:"youtube"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `yaml:"host" json:"host" env:"MUSNGR_HOST"`
	Port         int           `yaml:"port" json:"port" env:"MUSNGR_PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" env:"MUSNGR_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" env:"MUSNGR_WRITE_TIMEOUT"`
	EnableCORS   bool          `yaml:"enable_cors" json:"enable_cors" env:"MUSNGR_ENABLE_CORS"`
}

// Addr is host:port.
func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// RenderConfig controls the compositor.
type RenderConfig struct {
	Width      int           `yaml:"width" json:"width" env:"MUSNGR_WIDTH"`
	Height     int           `yaml:"height" json:"height" env:"MUSNGR_HEIGHT"`
	FrameRate  int           `yaml:"frame_rate" json:"frame_rate" env:"MUSNGR_FRAME_RATE"`
	DrainDelay time.Duration `yaml:"drain_delay" json:"drain_delay" env:"MUSNGR_DRAIN_DELAY"`
	// Formats is the codec fallback order; empty uses the built-in list.
	Formats []string `yaml:"formats,omitempty" json:"formats,omitempty" env:"MUSNGR_FORMATS"`
	// Encoder selects the host: auto (ffmpeg when present, else avi), ffmpeg or avi.
	Encoder     string `yaml:"encoder" json:"encoder" env:"MUSNGR_ENCODER"`
	TempDir     string `yaml:"temp_dir" json:"temp_dir" env:"MUSNGR_TEMP_DIR"`
	JPEGQuality int    `yaml:"jpeg_quality" json:"jpeg_quality" env:"MUSNGR_JPEG_QUALITY"`
}

// FFmpegConfig locates and tunes the ffmpeg binary.
type FFmpegConfig struct {
	Path         string        `yaml:"path" json:"path" env:"MUSNGR_FFMPEG_PATH"`
	ProbeTimeout time.Duration `yaml:"probe_timeout" json:"probe_timeout" env:"MUSNGR_FFMPEG_PROBE_TIMEOUT"`
	VideoBitrate string        `yaml:"video_bitrate" json:"video_bitrate" env:"MUSNGR_VIDEO_BITRATE"`
	AudioBitrate string        `yaml:"audio_bitrate" json:"audio_bitrate" env:"MUSNGR_AUDIO_BITRATE"`
}

// FontsConfig lists directories searched for TTF files.
type FontsConfig struct {
	Dirs []string `yaml:"dirs,omitempty" json:"dirs,omitempty" env:"MUSNGR_FONT_DIRS"`
}

// LimitsConfig bounds uploads and the job queue.
type LimitsConfig struct {
	MaxAudioBytes     int64         `yaml:"max_audio_bytes" json:"max_audio_bytes" env:"MUSNGR_MAX_AUDIO_BYTES"`
	MaxImageBytes     int64         `yaml:"max_image_bytes" json:"max_image_bytes" env:"MUSNGR_MAX_IMAGE_BYTES"`
	MaxThumbnailBytes int64         `yaml:"max_thumbnail_bytes" json:"max_thumbnail_bytes" env:"MUSNGR_MAX_THUMBNAIL_BYTES"`
	MaxAudioDuration  time.Duration `yaml:"max_audio_duration" json:"max_audio_duration" env:"MUSNGR_MAX_AUDIO_DURATION"`
	QueueSize         int           `yaml:"queue_size" json:"queue_size" env:"MUSNGR_QUEUE_SIZE"`
	Retention         time.Duration `yaml:"retention" json:"retention" env:"MUSNGR_RETENTION"`
}

// YouTubeConfig holds upload credentials and pacing.
type YouTubeConfig struct {
	ClientID             string       `yaml:"client_id" json:"client_id" env:"MUSNGR_YOUTUBE_CLIENT_ID"`
	ClientSecret         string       `yaml:"client_secret" json:"client_secret" env:"MUSNGR_YOUTUBE_CLIENT_SECRET"`
	RefreshToken         string       `yaml:"refresh_token" json:"refresh_token" env:"MUSNGR_YOUTUBE_REFRESH_TOKEN"`
	RequestsPerSecond    float64      `yaml:"requests_per_second" json:"requests_per_second" env:"MUSNGR_YOUTUBE_RPS"`
	DescriptionWatermark string       `yaml:"description_watermark" json:"description_watermark" env:"MUSNGR_DESCRIPTION_WATERMARK"`
	Retry                retry.Config `yaml:"retry" json:"retry"`
}

// Configured reports whether uploads can authenticate.
func (y YouTubeConfig) Configured() bool {
	return y.ClientID != "" && y.RefreshToken != ""
}

// LoggingConfig selects log level and format.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level" env:"MUSNGR_LOG_LEVEL"`
	JSON  bool   `yaml:"json" json:"json" env:"MUSNGR_LOG_JSON"`
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 0, // SSE and downloads stream
		},
		Render: RenderConfig{
			Width:       1920,
			Height:      1080,
			FrameRate:   30,
			DrainDelay:  100 * time.Millisecond,
			Encoder:     "auto",
			JPEGQuality: 90,
		},
		FFmpeg: FFmpegConfig{
			Path:         "ffmpeg",
			ProbeTimeout: 10 * time.Second,
			VideoBitrate: "4M",
			AudioBitrate: "192k",
		},
		Limits: LimitsConfig{
			MaxAudioBytes:     25 << 20,
			MaxImageBytes:     25 << 20,
			MaxThumbnailBytes: 2 << 20,
			MaxAudioDuration:  time.Hour,
			QueueSize:         10,
			Retention:         15 * time.Minute,
		},
		YouTube: YouTubeConfig{
			RequestsPerSecond:    1.0,
			DescriptionWatermark: "Created with Musngr",
			Retry:                retry.DefaultConfig(),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path (when non-empty), applies environment overrides and
// validates. A missing file is an error only when path was given explicitly.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	case ".json":
		err = json.Unmarshal(data, c)
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Save writes c as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o600)
}

func loadStructFromEnv(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field); err != nil {
				return err
			}
			continue
		}

		name := fieldType.Tag.Get("env")
		if name == "" {
			continue
		}
		value, ok := os.LookupEnv(name)
		if !ok || value == "" {
			continue
		}
		if err := setFieldValue(field, value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %v", field.Type())
		}
		// Formats contain both ',' and ';', so lists split on '|'.
		var values []string
		for _, s := range strings.Split(value, "|") {
			if s = strings.TrimSpace(s); s != "" {
				values = append(values, s)
			}
		}
		field.Set(reflect.ValueOf(values))
	default:
		return fmt.Errorf("unsupported field type: %v", field.Kind())
	}
	return nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		return fmt.Errorf("render size must be positive, got %dx%d", c.Render.Width, c.Render.Height)
	}
	if c.Render.Width%2 != 0 || c.Render.Height%2 != 0 {
		return fmt.Errorf("render size must be even, got %dx%d", c.Render.Width, c.Render.Height)
	}
	if c.Render.FrameRate < 1 || c.Render.FrameRate > 120 {
		return fmt.Errorf("frame_rate must be within 1..120, got %d", c.Render.FrameRate)
	}
	switch c.Render.Encoder {
	case "auto", "ffmpeg", "avi":
	default:
		return fmt.Errorf("unknown encoder %q: expected auto, ffmpeg or avi", c.Render.Encoder)
	}
	if c.Render.JPEGQuality < 1 || c.Render.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be within 1..100")
	}
	if c.Limits.QueueSize < 1 {
		return fmt.Errorf("queue_size must be positive")
	}
	if c.Limits.MaxAudioBytes <= 0 || c.Limits.MaxImageBytes <= 0 {
		return fmt.Errorf("upload limits must be positive")
	}
	if c.Limits.Retention <= 0 {
		return fmt.Errorf("retention must be positive")
	}
	if c.YouTube.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must be non-negative")
	}
	if c.YouTube.Retry.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	if c.YouTube.Retry.MaxBackoff < c.YouTube.Retry.InitialBackoff {
		return fmt.Errorf("max_backoff must be >= initial_backoff")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error", "off":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	return nil
}

// Sample is the commented config written by `musngr init`.
const Sample = `# musngr configuration. Every value below is the default; environment
# variables (MUSNGR_PORT, MUSNGR_ENCODER, ...) override the file.
server:
  host: 127.0.0.1
  port: 8080
render:
  width: 1920
  height: 1080
  frame_rate: 30
  drain_delay: 100ms
  encoder: auto          # auto, ffmpeg or avi
  # formats:             # codec fallback order
  #   - video/webm;codecs=vp9,opus
  #   - video/webm;codecs=vp8,opus
  #   - video/webm
  #   - video/mp4
  jpeg_quality: 90       # avi encoder only
ffmpeg:
  path: ffmpeg
  video_bitrate: 4M
  audio_bitrate: 192k
fonts:
  dirs: []
limits:
  max_audio_bytes: 26214400
  max_image_bytes: 26214400
  max_thumbnail_bytes: 2097152
  max_audio_duration: 1h
  queue_size: 10
  retention: 15m
youtube:
  client_id: ""
  client_secret: ""
  refresh_token: ""
  requests_per_second: 1
  description_watermark: Created with Musngr
logging:
  level: info
  json: false
`
