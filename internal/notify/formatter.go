// Package notify renders and publishes the messages produced for each
// submission: the submitter acknowledgement, the admin summary, the
// suspicious-worker alert and the daily report.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/RubachokBoss/video-submission-checker/internal/models"
)

const stampLayout = "2006-01-02 15:04:05"

type Formatter struct {
	loc *time.Location
}

func NewFormatter(loc *time.Location) *Formatter {
	if loc == nil {
		loc = time.Local
	}
	return &Formatter{loc: loc}
}

func (f *Formatter) SubmitterAck() string {
	return "✅ Video received successfully!"
}

func (f *Formatter) Failure() string {
	return "❌ Something went wrong, please try again"
}

func anomalyList(labels []models.AnomalyLabel) string {
	names := make([]string, 0, len(labels))
	for _, l := range labels {
		names = append(names, l.DisplayName())
	}
	return strings.Join(names, ", ")
}

func (f *Formatter) AdminSummary(sub models.Submission, d *models.Decision) string {
	status := "🆕 New video"
	if d.Verdict.IsDuplicate {
		status = fmt.Sprintf("⚠️ Duplicate video (%s)", d.Verdict.DuplicateReason)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🎥 %s\n", status)
	fmt.Fprintf(&b, "👤 %s (ID: %s)\n", sub.DisplayName(), sub.WorkerID)
	fmt.Fprintf(&b, "⏱ %d s | %s\n", sub.Duration, humanize.IBytes(uint64(sub.SizeBytes)))
	fmt.Fprintf(&b, "📅 %s\n", sub.ReceivedAt.In(f.loc).Format(stampLayout))
	if sub.Forwarded {
		b.WriteString("↪️ Forwarded\n")
	}
	if len(d.Verdict.Anomalies) > 0 {
		fmt.Fprintf(&b, "\n🚨 Anomalies: %s", anomalyList(d.Verdict.Anomalies))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (f *Formatter) SuspiciousAlert(sub models.Submission, d *models.Decision) string {
	username := sub.Username
	if username == "" {
		username = "no_username"
	}
	return fmt.Sprintf("⚠️ *Suspicious worker!*\n👤 @%s (ID: %s)\n🚨 Anomalies: %s\n📅 %s",
		username, sub.WorkerID, anomalyList(d.Verdict.Anomalies), sub.ReceivedAt.In(f.loc).Format(stampLayout))
}

func (f *Formatter) DailySummary(s *models.DailySummary) string {
	return fmt.Sprintf("🌙 *Daily report*\n\n📅 Date: %s\n🎥 Videos: %d\n🔄 Duplicates: %d\n⚠️ Anomalies: %d",
		s.Date, s.Videos, s.Duplicates, s.Anomalous)
}

func (f *Formatter) Stats(s *models.LedgerStats) string {
	return fmt.Sprintf("📊 *Statistics*\n\n📅 Today: *%d* videos\n🔄 Duplicates: *%d*\n⚠️ Anomalies: *%d*\n📈 Total: *%d* videos",
		s.Today, s.Duplicates, s.Anomalous, s.Total)
}
