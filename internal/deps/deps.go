// Package deps checks the external media tools the pipeline shells out to.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"anitorrent/internal/config"
	"anitorrent/internal/services"
)

// Requirement defines an external binary the pipeline relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the media tools for the configured binaries.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{Name: "FFmpeg", Command: cfg.Extraction.FFmpegBinary, Description: "Subtitle stream copy and audio re-encoding"},
		{Name: "FFprobe", Command: cfg.Extraction.FFprobeBinary, Description: "Fallback stream prober"},
		{Name: "mkvmerge", Command: cfg.Extraction.MkvmergeBinary, Description: "Matroska stream prober"},
		{Name: "mkvextract", Command: cfg.Extraction.MkvextractBinary, Description: "Fallback subtitle demuxer", Optional: true},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// Verify fails when any required binary is missing.
func Verify(cfg *config.Config) error {
	var missing []string
	for _, status := range CheckBinaries(Requirements(cfg)) {
		if !status.Available && !status.Optional {
			missing = append(missing, status.Command)
		}
	}
	if len(missing) > 0 {
		return services.Wrap(services.ErrConfiguration, "deps", "verify",
			fmt.Sprintf("missing required binaries: %s", strings.Join(missing, ", ")), nil)
	}
	return nil
}
