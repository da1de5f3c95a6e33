package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"anitorrent/internal/catalog"
	"anitorrent/internal/dedupe"
	"anitorrent/internal/extract"
	"anitorrent/internal/feed"
	"anitorrent/internal/logging"
	"anitorrent/internal/media"
	"anitorrent/internal/metadata"
	"anitorrent/internal/objectstore"
	"anitorrent/internal/peertube"
	"anitorrent/internal/queue"
	"anitorrent/internal/services"
	"anitorrent/internal/torrents"
)

// Resolver maps feed items to canonical episode keys.
type Resolver interface {
	Resolve(ctx context.Context, item feed.Item) (catalog.Resolution, error)
}

// MetadataAPI is the slice of the metadata client the pipeline needs.
type MetadataAPI interface {
	EpisodeExists(ctx context.Context, key catalog.EpisodeKey) (bool, error)
	Series(ctx context.Context, seriesID int) (metadata.Series, error)
	UpsertEpisode(ctx context.Context, record metadata.EpisodeRecord) error
}

// Downloader fetches torrents onto disk.
type Downloader interface {
	Download(ctx context.Context, uri string, opts torrents.DownloadOptions) (*torrents.MediaFile, error)
}

// ProbeFunc lists the tracks of a media file.
type ProbeFunc func(ctx context.Context, path string) (media.Report, error)

// TrackExtractor demuxes planned tracks into artifact files.
type TrackExtractor interface {
	Run(ctx context.Context, inputPath string, jobs []extract.Job, outDir string) []extract.TrackResult
}

// ObjectStore uploads and deletes artifacts.
type ObjectStore interface {
	Put(ctx context.Context, localPath, remoteKey string, publicRead bool) (objectstore.Object, error)
	Delete(ctx context.Context, remoteKey string) error
	PublicURL(remoteKey string) string
}

// Platform imports staged masters and reports transcoding state.
type Platform interface {
	ImportByURL(ctx context.Context, targetURL string, opts peertube.ImportOptions) (peertube.Import, error)
	WaitReady(ctx context.Context, videoID int, maxWait time.Duration) (peertube.ReadyResult, error)
	EmbedURL(shortUUID string) string
	PreviewURL(previewPath string) string
}

// Runner drives items through the state machine.
type Runner struct {
	store     *queue.Store
	resolver  Resolver
	meta      MetadataAPI
	torrents  Downloader
	probe     ProbeFunc
	extractor TrackExtractor
	objects   ObjectStore
	platform  Platform
	logger    *slog.Logger

	downloadDir string
}

// NewRunner wires the pipeline collaborators together.
func NewRunner(
	store *queue.Store,
	resolver Resolver,
	meta MetadataAPI,
	downloader Downloader,
	probe ProbeFunc,
	extractor TrackExtractor,
	objects ObjectStore,
	platform Platform,
	downloadDir string,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		store:       store,
		resolver:    resolver,
		meta:        meta,
		torrents:    downloader,
		probe:       probe,
		extractor:   extractor,
		objects:     objects,
		platform:    platform,
		downloadDir: downloadDir,
		logger:      logging.NewComponentLogger(logger, "pipeline"),
	}
}

// Outcome is the terminal result of one item's run.
type Outcome struct {
	Status          queue.Status
	Err             error
	Skipped         bool
	SkipReason      string
	MetadataWritten bool
	VideoID         int
	ShortUUID       string
}

// Success reports a fully processed item.
func (o Outcome) Success() bool { return o.Err == nil && !o.Skipped }

// AbortsBatch reports whether the failure must stop the whole batch.
func (o Outcome) AbortsBatch() bool { return services.AbortsBatch(o.Err) }

// PrepareBatch journals the feed entries, resolves them, and filters
// duplicates. It returns the items that survived, in feed order. Invalid,
// unresolvable, and duplicate entries are journaled as terminal and not
// returned.
func (r *Runner) PrepareBatch(ctx context.Context, entries []feed.Item, sessionID string) ([]*queue.Item, error) {
	type resolved struct {
		item      *queue.Item
		candidate dedupe.Candidate
	}
	var batch []resolved
	candidates := make([]dedupe.Candidate, 0, len(entries))

	for _, entry := range entries {
		item, err := r.store.NewItem(ctx, entry, sessionID)
		if err != nil {
			return nil, err
		}
		itemLogger := r.itemLogger(services.WithItemID(ctx, item.ID), item)

		if !entry.Valid() {
			item.SetFailed("invalid feed item: missing torrent or catalog identity")
			_ = r.store.Update(ctx, item)
			itemLogger.Warn("item discarded", logging.String(logging.FieldErrorHint, item.ErrorMessage))
			continue
		}

		if err := r.store.Transition(ctx, item, queue.StatusResolving); err != nil {
			return nil, err
		}
		resolution, err := r.resolver.Resolve(ctx, entry)
		if err != nil {
			if services.IsCancellation(err) {
				return nil, err
			}
			item.SetFailed(fmt.Sprintf("unresolvable: %v", err))
			_ = r.store.Update(ctx, item)
			itemLogger.Info("item discarded: no catalog mapping")
			continue
		}

		item.SeriesID = resolution.Key.SeriesID
		item.EpisodeNumber = resolution.Key.EpisodeNumber
		item.SeriesTitle = resolution.SeriesTitle
		item.ThumbnailURL = resolution.ThumbnailURL
		item.Status = queue.StatusResolved
		if err := r.store.Update(ctx, item); err != nil {
			return nil, err
		}
		candidate := dedupe.Candidate{Item: entry, Resolution: resolution}
		candidates = append(candidates, candidate)
		batch = append(batch, resolved{item: item, candidate: candidate})
	}

	kept, rejected := dedupe.Filter(candidates)
	keptSet := make(map[dedupe.Candidate]bool, len(kept))
	for _, c := range kept {
		keptSet[c] = true
	}
	rejectedReason := make(map[dedupe.Candidate]dedupe.RejectReason, len(rejected))
	for _, rej := range rejected {
		rejectedReason[rej.Candidate] = rej.Reason
	}

	var unique []*queue.Item
	for _, entry := range batch {
		if keptSet[entry.candidate] {
			if err := r.store.Transition(ctx, entry.item, queue.StatusUnique); err != nil {
				return nil, err
			}
			unique = append(unique, entry.item)
			continue
		}
		reason := rejectedReason[entry.candidate]
		entry.item.SetFailed(fmt.Sprintf("dropped by duplicate filter: %s", reason))
		_ = r.store.Update(ctx, entry.item)
		r.itemLogger(services.WithItemID(ctx, entry.item.ID), entry.item).Info("item discarded",
			logging.String(logging.FieldErrorHint, string(reason)))
	}
	return unique, nil
}

// RunItem walks one unique item to its terminal state.
func (r *Runner) RunItem(ctx context.Context, item *queue.Item, opts Options) Outcome {
	ctx = services.WithItemID(ctx, item.ID)
	logger := r.itemLogger(ctx, item)
	if opts.SeriesIDOverride > 0 {
		item.SeriesID = opts.SeriesIDOverride
	}

	// Existence probe. An error is an unknown answer and the item proceeds
	// as if new.
	exists, err := r.meta.EpisodeExists(ctx, item.EpisodeKey())
	if err != nil {
		logger.Warn("existence probe inconclusive, proceeding", logging.Error(err))
	}
	if exists {
		item.Status = queue.StatusCleaned
		item.ErrorMessage = ""
		_ = r.store.Update(ctx, item)
		logger.Info("episode already published, skipping",
			logging.String(logging.FieldState, string(queue.StatusCleaned)))
		return Outcome{Status: queue.StatusCleaned, Skipped: true, SkipReason: "already published"}
	}
	if err := r.transition(ctx, item, queue.StatusNew, logger); err != nil {
		return r.fail(ctx, item, err, nil)
	}

	run := &itemRun{opts: opts}

	// Download.
	if err := r.transition(ctx, item, queue.StatusDownloading, logger); err != nil {
		return r.fail(ctx, item, err, run)
	}
	mediaFile, err := r.torrents.Download(ctx, item.TorrentURL, torrents.DownloadOptions{
		KeepSeeding:   opts.KeepSeeding,
		ExpectedBytes: item.TotalSize,
	})
	if err != nil {
		return r.fail(ctx, item, err, run)
	}
	run.localPath = mediaFile.Path
	run.retainedForSeeding = opts.KeepSeeding
	item.InfoHash = mediaFile.InfoHash
	item.FilePath = mediaFile.Path
	if err := r.transition(ctx, item, queue.StatusDownloaded, logger); err != nil {
		return r.fail(ctx, item, err, run)
	}

	// Probe.
	if err := r.transition(ctx, item, queue.StatusProbing, logger); err != nil {
		return r.fail(ctx, item, err, run)
	}
	report, err := r.probe(ctx, mediaFile.Path)
	if err != nil {
		return r.fail(ctx, item, err, run)
	}
	if err := r.transition(ctx, item, queue.StatusProbed, logger); err != nil {
		return r.fail(ctx, item, err, run)
	}

	// Stage the master. It must be public before the platform can pull it.
	if err := r.transition(ctx, item, queue.StatusStaging, logger); err != nil {
		return r.fail(ctx, item, err, run)
	}
	masterKey := objectstore.VideoKey(filepath.Base(mediaFile.Path))
	masterObject, err := r.objects.Put(ctx, mediaFile.Path, masterKey, true)
	if err != nil {
		return r.fail(ctx, item, err, run)
	}
	run.masterKey = masterKey
	if err := r.transition(ctx, item, queue.StatusStaged, logger); err != nil {
		return r.fail(ctx, item, err, run)
	}

	// Import. The response carries the short UUID that names every language
	// artifact, so extraction waits for it.
	if err := r.transition(ctx, item, queue.StatusImporting, logger); err != nil {
		return r.fail(ctx, item, err, run)
	}
	imported, err := r.platform.ImportByURL(ctx, masterObject.PublicURL, peertube.ImportOptions{
		ChannelID: opts.ChannelID,
		Name:      r.videoName(item, opts),
		Privacy:   opts.Privacy,
		Passwords: passwordList(opts.Password),
	})
	if err != nil {
		return r.fail(ctx, item, err, run)
	}
	item.VideoID = imported.Video.ID
	item.VideoUUID = imported.Video.UUID
	item.ShortUUID = imported.Video.ShortUUID
	if err := r.transition(ctx, item, queue.StatusImported, logger); err != nil {
		return r.fail(ctx, item, err, run)
	}

	// Extract and upload language artifacts while the platform transcodes.
	// Per-track failures are tolerated; uploaded language artifacts are
	// permanent on every path.
	if err := r.transition(ctx, item, queue.StatusExtracting, logger); err != nil {
		return r.fail(ctx, item, err, run)
	}
	r.extractAndUploadTracks(ctx, item, report, run, logger)
	if err := r.transition(ctx, item, queue.StatusExtracted, logger); err != nil {
		return r.fail(ctx, item, err, run)
	}

	// Wait for platform-side transcoding.
	if err := r.transition(ctx, item, queue.StatusWaiting, logger); err != nil {
		return r.fail(ctx, item, err, run)
	}
	ready, err := r.platform.WaitReady(ctx, item.VideoID, opts.MaxWait)
	if err != nil {
		return r.fail(ctx, item, err, run)
	}
	timedOut := !ready.Success
	if timedOut && !opts.WriteMetadataOnTimeout {
		return r.fail(ctx, item, services.Wrap(services.ErrTimeout, "pipeline", "wait ready",
			fmt.Sprintf("video %d not ready within %s", item.VideoID, opts.MaxWait), nil), run)
	}
	if !timedOut {
		if err := r.transition(ctx, item, queue.StatusReady, logger); err != nil {
			return r.fail(ctx, item, err, run)
		}
	}

	// Metadata write. A failure here is logged and the item still cleans up
	// as processed.
	metadataWritten := false
	if err := r.transition(ctx, item, queue.StatusWritingMetadata, logger); err != nil {
		return r.fail(ctx, item, err, run)
	}
	record := r.buildRecord(ctx, item, opts, ready.Video)
	if err := r.meta.UpsertEpisode(ctx, record); err != nil {
		logger.Error("metadata write failed", logging.Error(err))
	} else {
		metadataWritten = true
		if err := r.transition(ctx, item, queue.StatusMetadataWritten, logger); err != nil {
			return r.fail(ctx, item, err, run)
		}
	}

	// Cleanup. Detached so a shutdown arriving this late cannot leave the
	// journal short of its terminal state.
	endCtx := context.WithoutCancel(ctx)
	r.cleanup(endCtx, item, run, logger)
	item.ErrorMessage = ""
	if err := r.transition(endCtx, item, queue.StatusCleaned, logger); err != nil {
		return Outcome{Status: queue.StatusCleaned, Err: err}
	}
	return Outcome{
		Status:          queue.StatusCleaned,
		MetadataWritten: metadataWritten,
		VideoID:         item.VideoID,
		ShortUUID:       item.ShortUUID,
	}
}

// itemRun tracks the resources a run has acquired so far.
type itemRun struct {
	opts               Options
	localPath          string
	masterKey          string
	artifactDir        string
	retainedForSeeding bool
}

func (r *Runner) extractAndUploadTracks(ctx context.Context, item *queue.Item, report media.Report, run *itemRun, logger *slog.Logger) {
	planOpts := extract.PlanOptions{
		IgnoredAudio:        restrictIndices(len(report.Audio), run.opts.AudioTrackIndex, run.opts.IgnoredAudio),
		IgnoredSubtitles:    restrictIndices(len(report.Subtitle), run.opts.SubtitleTrackIndex, run.opts.IgnoredSubtitles),
		LatinoAudioIndex:    run.opts.LatinoAudioIndex,
		LatinoSubtitleIndex: run.opts.LatinoSubtitleIndex,
	}
	jobs := extract.Plan(item.ShortUUID, report, planOpts)
	if len(jobs) == 0 {
		return
	}

	run.artifactDir = filepath.Join(r.downloadDir, "artifacts", item.ShortUUID)
	if err := os.MkdirAll(run.artifactDir, 0o755); err != nil {
		logger.Warn("artifact dir unavailable, skipping track extraction", logging.Error(err))
		return
	}

	for _, result := range r.extractor.Run(ctx, run.localPath, jobs, run.artifactDir) {
		if result.Err != nil {
			continue
		}
		key := artifactKey(result.Job)
		if _, err := r.objects.Put(ctx, result.OutputPath, key, true); err != nil {
			logger.Warn("language artifact upload failed",
				logging.String("key", key), logging.Error(err))
		}
	}
}

func artifactKey(job extract.Job) string {
	if job.Track.Kind == media.KindAudio {
		return objectstore.AudioKey(job.OutputName)
	}
	return objectstore.SubtitleKey(job.OutputName)
}

// restrictIndices converts a single-track override into an ignore list for
// every other index of the kind.
func restrictIndices(trackCount, only int, ignored []int) []int {
	if only < 0 {
		return ignored
	}
	out := append([]int(nil), ignored...)
	for i := 0; i < trackCount; i++ {
		if i != only {
			out = append(out, i)
		}
	}
	return out
}

func (r *Runner) videoName(item *queue.Item, opts Options) string {
	name := opts.CustomName
	if name == "" {
		title := item.SeriesTitle
		if title == "" {
			title = item.Title
		}
		name = fmt.Sprintf("%s - Episode %d", title, item.EpisodeNumber)
	}
	if opts.AppendTimestamp {
		name = fmt.Sprintf("%s (%s)", name, time.Now().Format("2006-01-02 15:04"))
	}
	return name
}

// buildRecord assembles the normalized episode record. Thumbnail priority:
// the mapping catalog's episode image, else the platform preview.
func (r *Runner) buildRecord(ctx context.Context, item *queue.Item, opts Options, video *peertube.Video) metadata.EpisodeRecord {
	titles := metadata.LocalizedTitle{ES: item.SeriesTitle, EN: item.SeriesTitle, JA: item.SeriesTitle}
	if series, err := r.meta.Series(ctx, item.SeriesID); err == nil {
		if series.Title.English != "" {
			titles.EN = series.Title.English
		}
		if series.Title.Native != "" {
			titles.JA = series.Title.Native
		}
	}
	if opts.UseEpisodeTitle {
		suffix := fmt.Sprintf(" - Episode %d", item.EpisodeNumber)
		titles.ES += suffix
		titles.EN += suffix
		titles.JA += suffix
	}

	record := metadata.EpisodeRecord{
		IDAnilist:     item.SeriesID,
		EpisodeNumber: item.EpisodeNumber,
		PeertubeID:    item.VideoID,
		UUID:          item.VideoUUID,
		ShortUUID:     item.ShortUUID,
		Title:         titles,
		EmbedURL:      r.platform.EmbedURL(item.ShortUUID),
		ThumbnailURL:  item.ThumbnailURL,
	}
	if opts.Password != "" {
		password := opts.Password
		record.Password = &password
	}
	if video != nil {
		if record.ThumbnailURL == "" {
			record.ThumbnailURL = r.platform.PreviewURL(video.PreviewPath)
		}
		if video.Duration > 0 {
			duration := video.Duration
			record.Duration = &duration
		}
	}
	return record
}

// cleanup releases per-run resources: master object unless kept, local file
// unless retained for seeding, extracted local artifacts always. It runs on
// a detached context so a canceled run still deletes its staged master.
func (r *Runner) cleanup(ctx context.Context, item *queue.Item, run *itemRun, logger *slog.Logger) {
	if run == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if run.masterKey != "" && !run.opts.KeepMaster {
		if err := r.objects.Delete(ctx, run.masterKey); err != nil {
			logger.Warn("master artifact delete failed", logging.Error(err))
		}
	}
	if run.localPath != "" && !run.retainedForSeeding {
		if err := os.Remove(run.localPath); err != nil && !os.IsNotExist(err) {
			logger.Warn("local file delete failed", logging.Error(err))
		}
	}
	if run.artifactDir != "" {
		if err := os.RemoveAll(run.artifactDir); err != nil {
			logger.Warn("artifact dir delete failed", logging.Error(err))
		}
	}
}

func (r *Runner) fail(ctx context.Context, item *queue.Item, err error, run *itemRun) Outcome {
	// The terminal journal write has to land even when the failure is the
	// run's own context being canceled.
	ctx = context.WithoutCancel(ctx)
	logger := r.itemLogger(ctx, item)
	r.cleanup(ctx, item, run, logger)
	item.SetFailed(err.Error())
	_ = r.store.Update(ctx, item)
	logger.Error("item failed",
		logging.String(logging.FieldState, string(queue.StatusFailed)),
		logging.Error(err),
	)
	return Outcome{Status: queue.StatusFailed, Err: err}
}

func (r *Runner) transition(ctx context.Context, item *queue.Item, status queue.Status, logger *slog.Logger) error {
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrCanceled, "pipeline", "transition", string(status), err)
	}
	if err := r.store.Transition(ctx, item, status); err != nil {
		return err
	}
	logger.Info("state transition", logging.String(logging.FieldState, string(status)))
	return nil
}

// itemLogger derives the per-item logger. Item and session identifiers ride
// on the context, so downstream log lines stay correlated.
func (r *Runner) itemLogger(ctx context.Context, item *queue.Item) *slog.Logger {
	return logging.WithContext(ctx, r.logger).With(
		logging.String(logging.FieldEpisode, item.EpisodeKey().String()),
	)
}

func passwordList(password string) []string {
	if password == "" {
		return nil
	}
	return []string{password}
}
