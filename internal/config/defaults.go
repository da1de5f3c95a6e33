package config

import (
	"os"
	"path/filepath"
)

const (
	defaultFeedLimit           = 25
	defaultFeedInterval        = 2
	defaultRequestTimeout      = 10
	defaultDownloadTimeout     = 600
	defaultMaxSeeding          = 10
	defaultWaitReadyMinutes    = 120
	defaultAudioBitrateKbps    = 192
	defaultObjectStoreRegion   = "us-east-1"
	defaultPlatformPrivacy     = 1
)

// Default returns the baseline configuration before any file overrides.
func Default() Config {
	return Config{
		Paths: Paths{
			DownloadDir: defaultDownloadDir(),
			LogDir:      "",
		},
		Feed: Feed{
			Limit:           defaultFeedLimit,
			IntervalMinutes: defaultFeedInterval,
			RequestTimeout:  defaultRequestTimeout,
		},
		Catalog: Catalog{
			RequestTimeout: defaultRequestTimeout,
		},
		Metadata: Metadata{
			RequestTimeout: defaultRequestTimeout,
		},
		Platform: Platform{
			Privacy:          defaultPlatformPrivacy,
			WaitReadyMinutes: defaultWaitReadyMinutes,
		},
		ObjectStore: ObjectStore{
			Region: defaultObjectStoreRegion,
		},
		Torrent: Torrent{
			DownloadTimeout:   defaultDownloadTimeout,
			MaxSeeding:        defaultMaxSeeding,
			SeedAfterDownload: false,
		},
		Extraction: Extraction{
			FFmpegBinary:     "ffmpeg",
			FFprobeBinary:    "ffprobe",
			MkvmergeBinary:   "mkvmerge",
			MkvextractBinary: "mkvextract",
			AudioBitrateKbps: defaultAudioBitrateKbps,
		},
		Workflow: Workflow{
			KeepMaster:             false,
			WriteMetadataOnTimeout: false,
		},
		Logging: Logging{
			Level:  "info",
			Format: "",
		},
	}
}

func defaultDownloadDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".anitorrent", "downloads")
	}
	return filepath.Join(os.TempDir(), "anitorrent-downloads")
}
