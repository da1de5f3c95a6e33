package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"anitorrent/internal/catalog"
	"anitorrent/internal/config"
	"anitorrent/internal/deps"
	"anitorrent/internal/extract"
	"anitorrent/internal/feed"
	"anitorrent/internal/logging"
	"anitorrent/internal/media"
	"anitorrent/internal/metadata"
	"anitorrent/internal/monitor"
	"anitorrent/internal/objectstore"
	"anitorrent/internal/peertube"
	"anitorrent/internal/pipeline"
	"anitorrent/internal/queue"
	"anitorrent/internal/torrents"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var singleRun bool
	var logLevel string
	var intervalMinutes int
	var feedLimit int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the feed monitoring loop",
		Long:  "Fetches the torrent feed on the configured interval and walks each new episode through download, extraction, upload, and platform import. With --single-run one session is processed and the command exits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if intervalMinutes > 0 {
				cfg.Feed.IntervalMinutes = intervalMinutes
			}
			if feedLimit > 0 {
				cfg.Feed.Limit = feedLimit
			}

			level := logLevel
			if level == "" {
				level = cfg.Logging.Level
			}
			logger, err := logging.New(logging.Options{
				Level:  level,
				Format: cfg.Logging.Format,
				LogDir: cfg.Paths.LogDir,
			})
			if err != nil {
				return err
			}

			if err := deps.Verify(cfg); err != nil {
				return err
			}

			store, err := queue.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			engine, err := torrents.New(torrents.Config{
				DownloadDir:     cfg.Paths.DownloadDir,
				Port:            cfg.Torrent.Port,
				DownloadTimeout: time.Duration(cfg.Torrent.DownloadTimeout) * time.Second,
				MaxSeeding:      cfg.Torrent.MaxSeeding,
			}, logger)
			if err != nil {
				return err
			}
			defer engine.Close()

			objects, err := objectstore.New(objectstore.Config{
				Endpoint:     cfg.ObjectStore.Endpoint,
				Region:       cfg.ObjectStore.Region,
				Bucket:       cfg.ObjectStore.Bucket,
				AccessKey:    cfg.ObjectStore.AccessKey,
				SecretKey:    cfg.ObjectStore.SecretKey,
				PublicDomain: cfg.ObjectStore.PublicDomain,
			}, logger)
			if err != nil {
				return err
			}

			feedClient := feed.NewClient(cfg.Feed.URL, seconds(cfg.Feed.RequestTimeout), logger)
			resolver := catalog.NewResolver(cfg.Catalog.MappingBaseURL, seconds(cfg.Catalog.RequestTimeout), logger)
			meta := metadata.NewClient(cfg.Metadata.BaseURL, cfg.Metadata.APIKey, seconds(cfg.Metadata.RequestTimeout), logger)
			platform := peertube.NewClient(peertube.Config{
				BaseURL:   cfg.Platform.BaseURL,
				Username:  cfg.Platform.Username,
				Password:  cfg.Platform.Password,
				TokenPath: config.TokenPath(ctx.configPath),
			}, logger)
			extractor := extract.New(extract.Tools{
				FFmpeg:     cfg.Extraction.FFmpegBinary,
				Mkvextract: cfg.Extraction.MkvextractBinary,
			}, cfg.Extraction.AudioBitrateKbps, logger)
			probe := func(ctx context.Context, path string) (media.Report, error) {
				return media.Probe(ctx, media.Tools{
					Mkvmerge: cfg.Extraction.MkvmergeBinary,
					FFprobe:  cfg.Extraction.FFprobeBinary,
				}, path)
			}

			runner := pipeline.NewRunner(store, resolver, meta, engine, probe, extractor, objects, platform, cfg.Paths.DownloadDir, logger)
			mon, err := monitor.New(cfg, store, feedClient, runner, engine, pipeline.DefaultOptions(cfg), logger)
			if err != nil {
				return err
			}
			mon.OnSummary = func(summary string) {
				fmt.Fprintln(cmd.OutOrStdout(), summary)
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if singleRun {
				session, err := mon.RunOnce(signalCtx)
				if err != nil {
					return err
				}
				if session.Processed > 0 && session.Failed == session.Processed {
					return fmt.Errorf("all %d items failed", session.Processed)
				}
				return nil
			}
			return mon.Run(signalCtx)
		},
	}

	cmd.Flags().BoolVar(&singleRun, "single-run", false, "Process one session and exit")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().IntVar(&intervalMinutes, "interval", 0, "Override the feed poll interval in minutes")
	cmd.Flags().IntVar(&feedLimit, "limit", 0, "Override the per-session feed item limit")
	return cmd
}

func seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}
