package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	if c.Paths.DownloadDir, err = expandPath(c.Paths.DownloadDir); err != nil {
		return fmt.Errorf("paths.download_dir: %w", err)
	}
	if c.Paths.DownloadDir == "" {
		c.Paths.DownloadDir = defaultDownloadDir()
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}

	c.Feed.URL = strings.TrimSpace(c.Feed.URL)
	c.Catalog.MappingBaseURL = strings.TrimRight(strings.TrimSpace(c.Catalog.MappingBaseURL), "/")
	c.Metadata.BaseURL = strings.TrimRight(strings.TrimSpace(c.Metadata.BaseURL), "/")
	c.Metadata.APIKey = strings.TrimSpace(c.Metadata.APIKey)
	c.Platform.BaseURL = strings.TrimRight(strings.TrimSpace(c.Platform.BaseURL), "/")
	c.Platform.Username = strings.TrimSpace(c.Platform.Username)
	c.ObjectStore.Endpoint = strings.TrimRight(strings.TrimSpace(c.ObjectStore.Endpoint), "/")
	c.ObjectStore.PublicDomain = strings.TrimRight(strings.TrimSpace(c.ObjectStore.PublicDomain), "/")

	if c.Feed.Limit <= 0 {
		c.Feed.Limit = defaultFeedLimit
	}
	if c.Feed.IntervalMinutes <= 0 {
		c.Feed.IntervalMinutes = defaultFeedInterval
	}
	for _, timeout := range []*int{&c.Feed.RequestTimeout, &c.Catalog.RequestTimeout, &c.Metadata.RequestTimeout} {
		if *timeout <= 0 {
			*timeout = defaultRequestTimeout
		}
	}
	if c.Torrent.DownloadTimeout <= 0 {
		c.Torrent.DownloadTimeout = defaultDownloadTimeout
	}
	if c.Torrent.MaxSeeding <= 0 {
		c.Torrent.MaxSeeding = defaultMaxSeeding
	}
	if c.Platform.WaitReadyMinutes < 0 {
		c.Platform.WaitReadyMinutes = defaultWaitReadyMinutes
	}
	if c.Extraction.AudioBitrateKbps <= 0 {
		c.Extraction.AudioBitrateKbps = defaultAudioBitrateKbps
	}
	if strings.TrimSpace(c.ObjectStore.Region) == "" {
		c.ObjectStore.Region = defaultObjectStoreRegion
	}
	return nil
}
