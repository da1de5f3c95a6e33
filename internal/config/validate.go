package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable. Validation failures are fatal
// at startup; they are never reached through retries.
func (c *Config) Validate() error {
	if err := c.validateFeed(); err != nil {
		return err
	}
	if err := c.validateCatalog(); err != nil {
		return err
	}
	if err := c.validateMetadata(); err != nil {
		return err
	}
	if err := c.validatePlatform(); err != nil {
		return err
	}
	if err := c.validateObjectStore(); err != nil {
		return err
	}
	return c.validateTorrent()
}

func (c *Config) validateFeed() error {
	if c.Feed.URL == "" {
		return errors.New("feed.url must be set")
	}
	return validateURL("feed.url", c.Feed.URL)
}

func (c *Config) validateCatalog() error {
	if c.Catalog.MappingBaseURL == "" {
		return errors.New("catalog.mapping_base_url must be set")
	}
	return validateURL("catalog.mapping_base_url", c.Catalog.MappingBaseURL)
}

func (c *Config) validateMetadata() error {
	if c.Metadata.BaseURL == "" {
		return errors.New("metadata.base_url must be set")
	}
	if err := validateURL("metadata.base_url", c.Metadata.BaseURL); err != nil {
		return err
	}
	if c.Metadata.APIKey == "" {
		return errors.New("metadata.api_key must be set")
	}
	return nil
}

func (c *Config) validatePlatform() error {
	if c.Platform.BaseURL == "" {
		return errors.New("platform.base_url must be set")
	}
	if err := validateURL("platform.base_url", c.Platform.BaseURL); err != nil {
		return err
	}
	if c.Platform.Username == "" || c.Platform.Password == "" {
		return errors.New("platform.username and platform.password must be set")
	}
	if c.Platform.ChannelID <= 0 {
		return errors.New("platform.channel_id must be positive")
	}
	return nil
}

func (c *Config) validateObjectStore() error {
	missing := make([]string, 0, 4)
	if c.ObjectStore.Endpoint == "" {
		missing = append(missing, "endpoint")
	}
	if c.ObjectStore.Bucket == "" {
		missing = append(missing, "bucket")
	}
	if c.ObjectStore.AccessKey == "" {
		missing = append(missing, "access_key")
	}
	if c.ObjectStore.SecretKey == "" {
		missing = append(missing, "secret_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("object_store.%s must be set", strings.Join(missing, ", object_store."))
	}
	if c.ObjectStore.PublicDomain == "" {
		return errors.New("object_store.public_domain must be set")
	}
	return nil
}

func (c *Config) validateTorrent() error {
	if c.Torrent.Port < 0 || c.Torrent.Port > 65535 {
		return errors.New("torrent.port must be between 0 and 65535")
	}
	if c.Torrent.MaxSeeding <= 0 {
		return errors.New("torrent.max_seeding must be positive")
	}
	return nil
}

func validateURL(field, value string) error {
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%s is not a valid URL: %q", field, value)
	}
	return nil
}
