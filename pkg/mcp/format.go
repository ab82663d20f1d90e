package mcp

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/pario-ai/costdesk/pkg/models"
)

func formatQuota(st models.QuotaState) string {
	return fmt.Sprintf("Query Quota\n"+
		"  Tier:      %s\n"+
		"  Used:      %d\n"+
		"  Limit:     %d\n"+
		"  Remaining: %d\n",
		st.Tier, st.Count, st.Limit, st.Remaining())
}

func formatObjects(objs []models.ObjectInfo, now time.Time) string {
	if len(objs) == 0 {
		return "No files found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-50s %10s  %s\n", "Key", "Size", "Modified")
	b.WriteString(strings.Repeat("-", 80) + "\n")
	for _, o := range objs {
		fmt.Fprintf(&b, "%-50s %10s  %s\n",
			o.Key, humanize.IBytes(uint64(o.Size)), humanize.RelTime(o.LastModified, now, "ago", "from now"))
	}
	return b.String()
}

func formatActivity(entries []models.ActivityEntry) string {
	if len(entries) == 0 {
		return "No activity found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-9s %-16s %5s %8s  %s\n",
		"Time", "Kind", "Outcome", "Rows", "Latency", "Subject")
	b.WriteString(strings.Repeat("-", 90) + "\n")
	for _, e := range entries {
		subject := e.Subject
		if len(subject) > 40 {
			subject = subject[:37] + "..."
		}
		fmt.Fprintf(&b, "%-20s %-9s %-16s %5d %6dms  %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Kind, e.Outcome, e.Rows, e.LatencyMs, subject)
	}
	return b.String()
}
