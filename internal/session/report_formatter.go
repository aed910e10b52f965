package session

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/foxseedlab/telesession/internal/repository"
)

const reportTimeLayout = "2006-01-02 15:04:05"

// buildComplianceReportText renders audit records as a timeline with offsets
// relative to the first record.
func buildComplianceReportText(sessionID string, records []repository.AuditRecord, timezone string, loc *time.Location) []byte {
	loc = safeLocation(loc)
	period := reportUnknownPeriodText
	var startedAt time.Time
	if len(records) > 0 {
		startedAt = records[0].OccurredAt
		endedAt := records[len(records)-1].OccurredAt
		period = fmt.Sprintf("%s ~ %s (%s)",
			startedAt.In(loc).Format(reportTimeLayout),
			endedAt.In(loc).Format(reportTimeLayout),
			timezone)
	}

	lines := []string{
		reportTitle,
		fmt.Sprintf("%s: %s", reportSessionLabel, sessionID),
		fmt.Sprintf("%s: %s", reportPeriodLabel, period),
		fmt.Sprintf("%s: %s", reportActorsLabel, strings.Join(canonicalActors(records), ", ")),
		fmt.Sprintf("%s: %d", reportEventCountLabel, len(records)),
		"",
	}
	if len(records) == 0 {
		lines = append(lines, reportEmptyTimeline)
	}
	for _, r := range records {
		elapsed := r.OccurredAt.Sub(startedAt)
		if elapsed < 0 {
			elapsed = 0
		}
		line := fmt.Sprintf("%s %s", formatElapsedHMS(elapsed), r.Kind)
		if r.Actor != "" {
			line += " by " + r.Actor
		}
		if r.Subject != "" && r.Subject != r.Actor {
			line += " on " + r.Subject
		}
		if detail := formatDetail(r.Detail); detail != "" {
			line += " " + detail
		}
		lines = append(lines, line)
	}
	return []byte(strings.Join(lines, "\n"))
}

// canonicalActors returns each non-empty actor once, sorted case-insensitively.
func canonicalActors(records []repository.AuditRecord) []string {
	seen := make(map[string]struct{}, len(records))
	list := make([]string, 0, len(records))
	for _, r := range records {
		actor := strings.TrimSpace(r.Actor)
		if actor == "" {
			continue
		}
		if _, ok := seen[actor]; ok {
			continue
		}
		seen[actor] = struct{}{}
		list = append(list, actor)
	}
	sort.Slice(list, func(i, j int) bool {
		in := strings.ToLower(list[i])
		jn := strings.ToLower(list[j])
		if in != jn {
			return in < jn
		}
		return list[i] < list[j]
	})
	return list
}

func formatDetail(detail map[string]string) string {
	keys := make([]string, 0, len(detail))
	for k, v := range detail {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, detail[k]))
	}
	return strings.Join(parts, " ")
}

func formatElapsedHMS(d time.Duration) string {
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func safeLocation(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
