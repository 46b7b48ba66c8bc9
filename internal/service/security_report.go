package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sandeepkv93/security-monitoring-service/internal/domain"
	"github.com/sandeepkv93/security-monitoring-service/internal/repository"
)

type ReportPeriod string

const (
	ReportDaily   ReportPeriod = "daily"
	ReportWeekly  ReportPeriod = "weekly"
	ReportMonthly ReportPeriod = "monthly"
)

const (
	reportCriticalLimit = 10
	reportWarningLimit  = 20
	reportWarningShown  = 5
)

func ParseReportPeriod(raw string) (ReportPeriod, bool) {
	switch p := ReportPeriod(strings.ToLower(strings.TrimSpace(raw))); p {
	case ReportDaily, ReportWeekly, ReportMonthly:
		return p, true
	case "":
		return ReportDaily, true
	default:
		return "", false
	}
}

func (p ReportPeriod) Duration() time.Duration {
	switch p {
	case ReportWeekly:
		return 7 * 24 * time.Hour
	case ReportMonthly:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

type SecurityReport struct {
	Period          ReportPeriod           `json:"period"`
	GeneratedAt     time.Time              `json:"generated_at"`
	From            time.Time              `json:"from"`
	To              time.Time              `json:"to"`
	Metrics         SecurityMetrics        `json:"metrics"`
	CriticalTotal   int64                  `json:"critical_total"`
	CriticalEvents  []domain.SecurityEvent `json:"critical_events"`
	WarningTotal    int64                  `json:"warning_total"`
	WarningEvents   []domain.SecurityEvent `json:"warning_events"`
	Recommendations []string               `json:"recommendations"`
}

// GenerateReport is read-only.
func (s *SecurityEventStore) GenerateReport(ctx context.Context, period ReportPeriod) (*SecurityReport, error) {
	now := s.now()
	from := now.Add(-period.Duration())
	metrics, err := s.GetMetrics(ctx, period.Duration())
	if err != nil {
		return nil, err
	}
	critical, err := s.GetSecurityEvents(ctx, repository.SecurityEventFilter{
		Severity: domain.SeverityCritical, From: &from, To: &now, Limit: reportCriticalLimit,
	})
	if err != nil {
		return nil, err
	}
	warnings, err := s.GetSecurityEvents(ctx, repository.SecurityEventFilter{
		Severity: domain.SeverityWarning, From: &from, To: &now, Limit: reportWarningLimit,
	})
	if err != nil {
		return nil, err
	}
	return &SecurityReport{
		Period:          period,
		GeneratedAt:     now,
		From:            from,
		To:              now,
		Metrics:         metrics,
		CriticalTotal:   critical.Total,
		CriticalEvents:  critical.Events,
		WarningTotal:    warnings.Total,
		WarningEvents:   warnings.Events,
		Recommendations: recommendations(metrics, critical.Total, warnings.Total),
	}, nil
}

func recommendations(m SecurityMetrics, criticalTotal, warningTotal int64) []string {
	var out []string
	if m.FailedLogins > 100 {
		out = append(out, "Failed login volume is high; check for brute force activity.")
	}
	if m.BlockedIPs > 10 {
		out = append(out, "Many IP addresses are blocked; review the IP allow-list policy.")
	}
	if criticalTotal > 0 {
		out = append(out, "Critical security events occurred; handle them now and investigate the root cause.")
	}
	if warningTotal > 50 {
		out = append(out, "Warning volume is high; increase monitoring and log review.")
	}
	if m.ActiveAnomalies > 5 {
		out = append(out, "Active anomaly count is high; review user behaviour patterns.")
	}
	if len(out) == 0 {
		out = append(out, "Security posture is good; keep monitoring.")
	}
	return out
}

// Render formats the report as plain text for notifications and the CLI.
func (r *SecurityReport) Render() string {
	var b strings.Builder
	line := strings.Repeat("=", 40)
	fmt.Fprintf(&b, "%s\n%s security report\nGenerated: %s\nPeriod: %s - %s\n%s\n\n",
		line, strings.ToUpper(string(r.Period[:1]))+string(r.Period[1:]),
		r.GeneratedAt.Format(time.RFC3339), r.From.Format(time.RFC3339), r.To.Format(time.RFC3339), line)

	b.WriteString("## Metrics\n\n")
	fmt.Fprintf(&b, "- Failed logins: %d\n", r.Metrics.FailedLogins)
	fmt.Fprintf(&b, "- Blocked IPs: %d\n", r.Metrics.BlockedIPs)
	fmt.Fprintf(&b, "- Suspicious activities: %d\n", r.Metrics.SuspiciousEvents)
	fmt.Fprintf(&b, "- Active anomalies: %d\n", r.Metrics.ActiveAnomalies)
	last := "none"
	if r.Metrics.LastIncident != nil {
		last = r.Metrics.LastIncident.UTC().Format(time.RFC3339)
	}
	fmt.Fprintf(&b, "- Last critical incident: %s\n\n", last)

	fmt.Fprintf(&b, "## Critical events (%d)\n\n", r.CriticalTotal)
	for i, ev := range r.CriticalEvents {
		user, ip := "N/A", "N/A"
		if ev.UserID != nil {
			user = userKey(*ev.UserID)
		}
		if ev.IPAddress != nil {
			ip = *ev.IPAddress
		}
		fmt.Fprintf(&b, "%d. [%s] %s\n   Time: %s\n   User: %s\n   IP: %s\n   Message: %s\n",
			i+1, strings.ToUpper(string(ev.Severity)), ev.EventType, ev.CreatedAt.UTC().Format(time.RFC3339), user, ip, ev.Message)
	}

	fmt.Fprintf(&b, "\n## Warning events (%d)\n\n", r.WarningTotal)
	for i, ev := range r.WarningEvents {
		if i == reportWarningShown {
			break
		}
		fmt.Fprintf(&b, "%d. [%s] %s\n   Time: %s\n   Message: %s\n",
			i+1, strings.ToUpper(string(ev.Severity)), ev.EventType, ev.CreatedAt.UTC().Format(time.RFC3339), ev.Message)
	}
	if r.WarningTotal > reportWarningShown {
		fmt.Fprintf(&b, "\n... %d more warning events\n", r.WarningTotal-reportWarningShown)
	}

	b.WriteString("\n## Recommendations\n\n")
	for _, rec := range r.Recommendations {
		fmt.Fprintf(&b, "- %s\n", rec)
	}
	return b.String()
}
