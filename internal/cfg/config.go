package cfg

import (
	"encoding/json"
	"log/slog"
	"os"
	"strconv"
	"time"

	cycling "github.com/lucasjlepore/cycling-analyzer"
	"github.com/lucasjlepore/cycling-analyzer/ingest"
)

type Config struct {
	HistoryDir string  `json:"history_dir"`
	CacheDir   string  `json:"cache_dir"`
	DBPath     string  `json:"db_path"`
	HTTPAddr   string  `json:"http_addr"`
	PollMs     int     `json:"poll_ms"`
	Watch      bool    `json:"watch"`
	FTPWatts   float64 `json:"ftp_w"`
	WindowDays int     `json:"window_days"`
	NumWeeks   int     `json:"num_weeks"`
	WindowMode string  `json:"window_mode"`
	TimeBasis  string  `json:"time_basis"`
	MaxGapS    int     `json:"max_gap_s"`
	Timezone   string  `json:"timezone"`
	RedisAddr  string  `json:"redis_addr"`
	LogLevel   string  `json:"log_level"`
	LogFormat  string  `json:"log_format"`
}

func Default() Config {
	return Config{
		HistoryDir: "./history",
		CacheDir:   "./data/cache",
		DBPath:     "./data/cycling.db",
		HTTPAddr:   "127.0.0.1:8766",
		PollMs:     0,
		Watch:      true,
		FTPWatts:   200,
		WindowDays: cycling.DefaultWindowDays,
		NumWeeks:   cycling.DefaultWeeks,
		WindowMode: "elapsed",
		TimeBasis:  "moving",
		MaxGapS:    int(cycling.DefaultMaxGapFill / time.Second),
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

// Load reads a JSON config, falling back to defaults when the file is missing
// or malformed, then applies CYCLING_* environment overrides.
func Load(path string) Config {
	c := Default()
	if f, err := os.Open(path); err != nil {
		slog.Info("config: using defaults", "path", path, "err", err)
	} else {
		defer f.Close()
		if err := json.NewDecoder(f).Decode(&c); err != nil {
			slog.Warn("config decode failed, using defaults", "path", path, "err", err)
			c = Default()
		}
	}
	c.applyEnv()
	return c
}

func (c *Config) applyEnv() {
	if v := os.Getenv("CYCLING_HISTORY_DIR"); v != "" {
		c.HistoryDir = v
	}
	if v := os.Getenv("CYCLING_HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv("CYCLING_REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("CYCLING_FTP"); v != "" {
		if ftp, err := strconv.ParseFloat(v, 64); err == nil {
			c.FTPWatts = ftp
		} else {
			slog.Warn("config: ignoring CYCLING_FTP", "value", v, "err", err)
		}
	}
}

// MetricOptions converts the window and time basis settings.
func (c Config) MetricOptions() cycling.Options {
	mode, ok := cycling.ParseWindowMode(c.WindowMode)
	if !ok {
		slog.Warn("config: unknown window_mode, using elapsed", "value", c.WindowMode)
	}
	basis, ok := cycling.ParseTimeBasis(c.TimeBasis)
	if !ok {
		slog.Warn("config: unknown time_basis, using moving", "value", c.TimeBasis)
	}
	return cycling.Options{
		WindowMode: mode,
		TimeBasis:  basis,
		MaxGapFill: time.Duration(c.MaxGapS) * time.Second,
	}
}

// IngestOptions resolves the configured timezone. An empty or unknown zone
// keeps timestamps as recorded.
func (c Config) IngestOptions() ingest.Options {
	if c.Timezone == "" {
		return ingest.Options{}
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		slog.Warn("config: unknown timezone", "value", c.Timezone, "err", err)
		return ingest.Options{}
	}
	return ingest.Options{Location: loc}
}

// Logger builds the process logger from log_level and log_format.
func (c Config) Logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
