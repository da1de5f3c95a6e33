package monitor

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"anitorrent/internal/queue"
	"anitorrent/internal/torrents"
)

// RenderSummary formats one session plus the current seeding fleet as
// terminal tables.
func RenderSummary(session *queue.Session, slots []torrents.SlotStatus) string {
	if session == nil {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle("Session " + session.ID)
	tw.AppendHeader(table.Row{"Processed", "Succeeded", "Failed", "Skipped", "Elapsed"})
	tw.AppendRow(table.Row{
		session.Processed,
		session.Succeeded,
		session.Failed,
		session.Skipped,
		elapsed(session),
	})
	tw.SetColumnConfigs(numericColumns(5))
	out := tw.Render()

	if len(slots) > 0 {
		st := table.NewWriter()
		st.SetStyle(table.StyleRounded)
		st.SetTitle(fmt.Sprintf("Seeding (%d)", len(slots)))
		st.AppendHeader(table.Row{"Info Hash", "Uploaded", "Peers", "Age"})
		now := time.Now()
		for _, slot := range slots {
			st.AppendRow(table.Row{
				shortHash(slot.InfoHash),
				formatBytes(slot.UploadedBytes),
				slot.ActivePeers,
				now.Sub(slot.AddedAt).Round(time.Minute).String(),
			})
		}
		st.SetColumnConfigs([]table.ColumnConfig{
			{Number: 2, Align: text.AlignRight},
			{Number: 3, Align: text.AlignRight},
			{Number: 4, Align: text.AlignRight},
		})
		out += "\n" + st.Render()
	}
	return out
}

func numericColumns(count int) []table.ColumnConfig {
	configs := make([]table.ColumnConfig, 0, count)
	for i := 1; i <= count; i++ {
		configs = append(configs, table.ColumnConfig{Number: i, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	return configs
}

func elapsed(session *queue.Session) string {
	if session.FinishedAt.IsZero() {
		return "-"
	}
	return session.FinishedAt.Sub(session.StartedAt).Round(time.Second).String()
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10) + " B"
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
