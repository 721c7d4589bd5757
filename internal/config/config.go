package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/gwlsn/stitchray/internal/logger"
)

// Config holds the tool settings: where the external programs live and where
// run state goes. The job itself is described separately (see Job).
type Config struct {
	// FFmpegPath is the path to ffmpeg binary (default: "ffmpeg")
	FFmpegPath string `yaml:"ffmpeg_path"`

	// FFprobePath is the path to ffprobe binary (default: "ffprobe")
	FFprobePath string `yaml:"ffprobe_path"`

	// YtDlpPath is the path to the yt-dlp binary used for remote sources (default: "yt-dlp")
	YtDlpPath string `yaml:"ytdlp_path"`

	// DownloadFormat is the yt-dlp format selector for remote sources
	DownloadFormat string `yaml:"download_format"`

	// TempPath is the parent of the per-run working directory.
	// If empty, the system temp directory is used.
	TempPath string `yaml:"temp_path"`

	// LogLevel is one of debug, info, warn, error (default info)
	LogLevel string `yaml:"log_level"`

	// HistoryPath is the SQLite database recording past runs.
	// Empty disables run history.
	HistoryPath string `yaml:"history_path"`
}

// DefaultDownloadFormat prefers separate mp4/m4a streams and falls back to
// the best single file.
const DefaultDownloadFormat = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		FFmpegPath:     "ffmpeg",
		FFprobePath:    "ffprobe",
		YtDlpPath:      "yt-dlp",
		DownloadFormat: DefaultDownloadFormat,
		TempPath:       "", // system temp dir
		LogLevel:       "info",
		HistoryPath:    DefaultHistoryPath(),
	}
}

// DefaultHistoryPath returns the history database location under the user's
// config directory, or "" if that directory cannot be determined.
func DefaultHistoryPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "stitchray", "history.db")
}

// Load reads config from a YAML file, applying defaults for missing values.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.FFprobePath == "" {
		c.FFprobePath = "ffprobe"
	}
	if c.YtDlpPath == "" {
		c.YtDlpPath = "yt-dlp"
	}
	if c.DownloadFormat == "" {
		c.DownloadFormat = DefaultDownloadFormat
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// envOverrides maps environment variables onto config fields.
var envOverrides = []struct {
	key   string
	field func(c *Config) *string
}{
	{"FFMPEG_PATH", func(c *Config) *string { return &c.FFmpegPath }},
	{"FFPROBE_PATH", func(c *Config) *string { return &c.FFprobePath }},
	{"YTDLP_PATH", func(c *Config) *string { return &c.YtDlpPath }},
	{"DOWNLOAD_FORMAT", func(c *Config) *string { return &c.DownloadFormat }},
	{"TEMP_PATH", func(c *Config) *string { return &c.TempPath }},
	{"LOG_LEVEL", func(c *Config) *string { return &c.LogLevel }},
	{"HISTORY_PATH", func(c *Config) *string { return &c.HistoryPath }},
}

// ApplyEnv loads envFile (if it exists) into the process environment and then
// overrides config fields from the environment. Variables already set in the
// environment win over the file.
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !os.IsNotExist(err) {
				return err
			}
			logger.Debug("No env file found", "path", envFile)
		}
	}

	for _, o := range envOverrides {
		if v, ok := os.LookupEnv(o.key); ok {
			*o.field(c) = v
		}
	}
	c.applyDefaults()
	return nil
}

// Save writes the config to a YAML file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
