package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Paths contains directory configuration.
type Paths struct {
	DownloadDir string `json:"download_dir"`
	LogDir      string `json:"log_dir"`
}

// Feed contains configuration for the torrent RSS feed.
type Feed struct {
	URL             string `json:"url"`
	Limit           int    `json:"limit"`
	IntervalMinutes int    `json:"interval_minutes"`
	RequestTimeout  int    `json:"request_timeout"`
}

// Catalog contains configuration for the cross-catalog mapping service.
type Catalog struct {
	MappingBaseURL string `json:"mapping_base_url"`
	RequestTimeout int    `json:"request_timeout"`
}

// Metadata contains configuration for the episode metadata API.
type Metadata struct {
	BaseURL        string `json:"base_url"`
	APIKey         string `json:"api_key"`
	RequestTimeout int    `json:"request_timeout"`
}

// Platform contains configuration for the video platform.
type Platform struct {
	BaseURL          string `json:"base_url"`
	Username         string `json:"username"`
	Password         string `json:"password"`
	ChannelID        int    `json:"channel_id"`
	Privacy          int    `json:"privacy"`
	WaitReadyMinutes int    `json:"wait_ready_minutes"`
}

// ObjectStore contains configuration for the S3-compatible artifact bucket.
type ObjectStore struct {
	Endpoint     string `json:"endpoint"`
	Region       string `json:"region"`
	Bucket       string `json:"bucket"`
	AccessKey    string `json:"access_key"`
	SecretKey    string `json:"secret_key"`
	PublicDomain string `json:"public_domain"`
}

// Torrent contains configuration for the embedded BitTorrent client.
type Torrent struct {
	Port              int  `json:"port"`
	DownloadTimeout   int  `json:"download_timeout"`
	MaxSeeding        int  `json:"max_seeding"`
	SeedAfterDownload bool `json:"seed_after_download"`
}

// Extraction contains configuration for the external probers and encoders.
type Extraction struct {
	FFmpegBinary     string `json:"ffmpeg_binary"`
	FFprobeBinary    string `json:"ffprobe_binary"`
	MkvmergeBinary   string `json:"mkvmerge_binary"`
	MkvextractBinary string `json:"mkvextract_binary"`
	AudioBitrateKbps int    `json:"audio_bitrate_kbps"`
}

// Workflow contains pipeline policy knobs.
type Workflow struct {
	KeepMaster             bool `json:"keep_master"`
	WriteMetadataOnTimeout bool `json:"write_metadata_on_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Config encapsulates all configuration values for the daemon.
//
// Sections by subsystem:
//   - Paths: download and log directories
//   - Feed: torrent RSS feed endpoint and batch limits
//   - Catalog: cross-catalog mapping service
//   - Metadata: episode metadata API credentials
//   - Platform: video platform credentials and import policy
//   - ObjectStore: S3-compatible artifact bucket
//   - Torrent: embedded client port, timeouts, and seeding fleet size
//   - Extraction: external prober/encoder binaries
//   - Workflow: pipeline policy (keep-master, timeout metadata writes)
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `json:"paths"`
	Feed        Feed        `json:"feed"`
	Catalog     Catalog     `json:"catalog"`
	Metadata    Metadata    `json:"metadata"`
	Platform    Platform    `json:"platform"`
	ObjectStore ObjectStore `json:"object_store"`
	Torrent     Torrent     `json:"torrent"`
	Extraction  Extraction  `json:"extraction"`
	Workflow    Workflow    `json:"workflow"`
	Logging     Logging     `json:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location under the OS per-user config directory.
func DefaultConfigPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(base, "anitorrent", "config.json"), nil
}

// TokenPath returns the OAuth token cache location next to the config file.
func TokenPath(configPath string) string {
	if strings.TrimSpace(configPath) == "" {
		return "token.json"
	}
	return filepath.Join(filepath.Dir(configPath), "token.json")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := json.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// EnsureDirectories creates the download and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DownloadDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	info, statErr := os.Stat(defaultPath)
	if statErr == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	return filepath.Abs(trimmed)
}
