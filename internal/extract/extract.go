package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"anitorrent/internal/logging"
	"anitorrent/internal/media"
	"anitorrent/internal/services"
)

// CommandRunner executes an external tool and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Tools names the extraction binaries.
type Tools struct {
	FFmpeg     string
	Mkvextract string
}

// Extractor demuxes and re-encodes tracks via external tools.
type Extractor struct {
	tools       Tools
	bitrateKbps int
	logger      *slog.Logger
	run         CommandRunner
}

// New builds an extractor. bitrateKbps applies to audio re-encoding.
func New(tools Tools, bitrateKbps int, logger *slog.Logger) *Extractor {
	if bitrateKbps <= 0 {
		bitrateKbps = 192
	}
	return &Extractor{
		tools:       tools,
		bitrateKbps: bitrateKbps,
		logger:      logging.NewComponentLogger(logger, "extract"),
		run:         runCommand,
	}
}

// SetRunner overrides the command runner (used in tests).
func (e *Extractor) SetRunner(run CommandRunner) {
	e.run = run
}

// TrackResult records the outcome of one extraction job.
type TrackResult struct {
	Job        Job
	OutputPath string
	Err        error
}

// Run executes every job, writing outputs into outDir. Per-track failures
// are recorded and do not stop the remaining jobs.
func (e *Extractor) Run(ctx context.Context, inputPath string, jobs []Job, outDir string) []TrackResult {
	results := make([]TrackResult, 0, len(jobs))
	for _, job := range jobs {
		outPath := filepath.Join(outDir, job.OutputName)
		var err error
		switch job.Track.Kind {
		case media.KindSubtitle:
			err = e.Subtitle(ctx, inputPath, job.Track, outPath)
		case media.KindAudio:
			err = e.Audio(ctx, inputPath, job.Track, outPath)
		default:
			err = services.Wrap(services.ErrValidation, "extract", "run",
				fmt.Sprintf("unknown track kind %q", job.Track.Kind), nil)
		}
		if err != nil {
			e.logger.Warn("track extraction failed",
				"output", job.OutputName,
				"kind", string(job.Track.Kind),
				"track_index", job.Track.Index,
				logging.FieldErrorHint, err.Error(),
			)
		} else {
			e.logger.Info("track extracted", "output", job.OutputName)
		}
		results = append(results, TrackResult{Job: job, OutputPath: outPath, Err: err})
	}
	return results
}

// Subtitle stream-copies a subtitle track to .ass, falling back to
// mkvextract when ffmpeg cannot copy the stream.
func (e *Extractor) Subtitle(ctx context.Context, inputPath string, track media.Track, outPath string) error {
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", inputPath,
		"-map", fmt.Sprintf("0:s:%d", track.Index),
		"-c:s", "ass",
		outPath,
	}
	output, err := e.run(ctx, e.tools.FFmpeg, args...)
	if err == nil {
		return nil
	}
	e.logger.Debug("ffmpeg subtitle copy failed, trying mkvextract",
		"track_index", track.Index, logging.FieldErrorHint, toolError(output, err))

	if e.tools.Mkvextract == "" {
		return services.Wrap(services.ErrExternalTool, "extract", "subtitle", toolError(output, err), err)
	}
	fallbackOut, fallbackErr := e.run(ctx, e.tools.Mkvextract,
		"tracks", inputPath, fmt.Sprintf("%d:%s", track.DemuxID, outPath))
	if fallbackErr != nil {
		return services.Wrap(services.ErrExternalTool, "extract", "subtitle", toolError(fallbackOut, fallbackErr), fallbackErr)
	}
	return nil
}

// Audio re-encodes an audio track to MP3 at the configured bitrate.
func (e *Extractor) Audio(ctx context.Context, inputPath string, track media.Track, outPath string) error {
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", inputPath,
		"-map", fmt.Sprintf("0:a:%d", track.Index),
		"-vn",
		"-c:a", "libmp3lame",
		"-b:a", fmt.Sprintf("%dk", e.bitrateKbps),
		outPath,
	}
	output, err := e.run(ctx, e.tools.FFmpeg, args...)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "extract", "audio", toolError(output, err), err)
	}
	return nil
}

func toolError(output []byte, err error) string {
	text := strings.TrimSpace(string(output))
	if text == "" {
		return err.Error()
	}
	if len(text) > 400 {
		text = text[:400]
	}
	return text
}
