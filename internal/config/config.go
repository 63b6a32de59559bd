package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.tgram/config.toml. Every field is a
// declarative value; nothing in here is ever executed to obtain settings.
type Config struct {
	Commands CommandsConfig `toml:"commands"`
	Cache    CacheConfig    `toml:"cache"`
	Sync     SyncConfig     `toml:"sync"`
	UI       UIConfig       `toml:"ui"`
}

// CommandsConfig holds external program templates. {file_path}, {title} and
// {msg} placeholders are substituted by the shell layer before invocation.
type CommandsConfig struct {
	Notify      string `toml:"notify"`
	FilePicker  string `toml:"file_picker"`
	Editor      string `toml:"editor"`
	ViewText    string `toml:"view_text"`
	VoiceRecord string `toml:"voice_record"`
	Open        string `toml:"open"`
}

// CacheConfig controls the media cache and transfer pool.
type CacheConfig struct {
	// KeepMediaDays is the retention window for unused cache entries.
	// Zero means entries are kept forever.
	KeepMediaDays int `toml:"keep_media_days"`
	// MaxAutoDownloadBytes caps the size of incoming attachments fetched
	// without an explicit download request.
	MaxAutoDownloadBytes int64 `toml:"max_auto_download_bytes"`
	DownloadWorkers      int   `toml:"download_workers"`
	UploadWorkers        int   `toml:"upload_workers"`
	RetryAttempts        int   `toml:"retry_attempts"`
	// TransfersPerSecond limits how fast queued transfers may start.
	TransfersPerSecond float64 `toml:"transfers_per_second"`
}

// SyncConfig holds engine tuning knobs.
type SyncConfig struct {
	RetryAttempts   int      `toml:"retry_attempts"`
	RetryBase       Duration `toml:"retry_base"`
	ReorderWindow   Duration `toml:"reorder_window"`
	ReorderMaxDepth int      `toml:"reorder_max_depth"`
	CallTimeout     Duration `toml:"call_timeout"`
}

// UIConfig holds presentation settings.
type UIConfig struct {
	// UserColorLow and UserColorHigh bound the inclusive range of terminal
	// color indexes used to colorize sender names.
	UserColorLow  int               `toml:"user_color_low"`
	UserColorHigh int               `toml:"user_color_high"`
	ChatFlags     map[string]string `toml:"chat_flags"`
	MsgFlags      map[string]string `toml:"msg_flags"`
}

// Duration wraps time.Duration for TOML text encoding ("500ms", "3s").
type Duration struct {
	time.Duration
}

// UnmarshalText implements toml text decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements toml text encoding.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Commands: CommandsConfig{
			Notify:      "notify-send {title} {msg}",
			FilePicker:  "ranger --choosefile={file_path}",
			Editor:      "vi {file_path}",
			ViewText:    "less {file_path}",
			VoiceRecord: "ffmpeg -f alsa -i hw:0 -c:a libopus -b:a 32k {file_path}",
			Open:        "xdg-open {file_path}",
		},
		Cache: CacheConfig{
			KeepMediaDays:        7,
			MaxAutoDownloadBytes: 10 << 20,
			DownloadWorkers:      4,
			UploadWorkers:        2,
			RetryAttempts:        5,
			TransfersPerSecond:   4,
		},
		Sync: SyncConfig{
			RetryAttempts:   5,
			RetryBase:       Duration{500 * time.Millisecond},
			ReorderWindow:   Duration{3 * time.Second},
			ReorderMaxDepth: 64,
			CallTimeout:     Duration{30 * time.Second},
		},
		UI: UIConfig{
			UserColorLow:  2,
			UserColorHigh: 15,
		},
	}
}

// Load reads config from the given path, applying defaults for anything the
// file does not set. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unrecognized config option %q", undecoded[0].String())
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

func (c *Config) validate() error {
	if c.Cache.KeepMediaDays < 0 {
		return fmt.Errorf("cache.keep_media_days must not be negative")
	}
	if c.Cache.DownloadWorkers < 1 || c.Cache.UploadWorkers < 1 {
		return fmt.Errorf("cache worker counts must be at least 1")
	}
	if c.Sync.RetryAttempts < 1 {
		return fmt.Errorf("sync.retry_attempts must be at least 1")
	}
	if c.UI.UserColorLow > c.UI.UserColorHigh {
		return fmt.Errorf("ui.user_color_low must not exceed ui.user_color_high")
	}
	return nil
}
