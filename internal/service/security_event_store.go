package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sandeepkv93/security-monitoring-service/internal/domain"
	"github.com/sandeepkv93/security-monitoring-service/internal/observability"
	"github.com/sandeepkv93/security-monitoring-service/internal/repository"
)

const DefaultMetricsWindow = 24 * time.Hour

var activeAnomalyTypes = []string{
	string(domain.AnomalySuspiciousLogin),
	string(domain.AnomalyHighFrequency),
	string(domain.AnomalyPrivilegeEscalation),
}

type SecurityEventInput struct {
	EventType string
	Severity  domain.Severity
	UserID    *uint
	IPAddress *string
	Message   string
	Details   map[string]any
}

type SecurityMetrics struct {
	WindowMS         int64      `json:"window_ms"`
	FailedLogins     int64      `json:"failed_logins"`
	BlockedIPs       int64      `json:"blocked_ips"`
	SuspiciousEvents int64      `json:"suspicious_activities"`
	ActiveAnomalies  int64      `json:"active_anomalies"`
	LastIncident     *time.Time `json:"last_incident,omitempty"`
}

type SecurityEventPage struct {
	Events []domain.SecurityEvent `json:"events"`
	Total  int64                  `json:"total"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
	More   bool                   `json:"has_more"`
}

// SecurityEventStore persists security telemetry and serves the read side used by
// dashboards, exports and reports.
type SecurityEventStore struct {
	events          repository.SecurityEventRepository
	audit           repository.AuditLogRepository
	users           repository.UserRepository
	alerts          AlertPublisher
	adminRecipients []string
	logger          *slog.Logger
	now             func() time.Time
}

func NewSecurityEventStore(events repository.SecurityEventRepository, audit repository.AuditLogRepository, users repository.UserRepository, alerts AlertPublisher, adminRecipients []string, logger *slog.Logger) *SecurityEventStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SecurityEventStore{
		events:          events,
		audit:           audit,
		users:           users,
		alerts:          alerts,
		adminRecipients: adminRecipients,
		logger:          logger,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// LogSecurityEvent stores the event. Critical events additionally queue an administrator
// alert; queueing never waits on delivery and its failures are only logged.
func (s *SecurityEventStore) LogSecurityEvent(ctx context.Context, in SecurityEventInput) (*domain.SecurityEvent, error) {
	var problems []string
	if strings.TrimSpace(in.EventType) == "" {
		problems = append(problems, "event type is required")
	}
	severity, ok := domain.ParseSeverity(string(in.Severity))
	if !ok {
		problems = append(problems, fmt.Sprintf("unknown severity %q", in.Severity))
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Errors: problems}
	}
	message := in.Message
	if message == "" {
		message = in.EventType
	}
	ev := &domain.SecurityEvent{
		EventType: in.EventType,
		Severity:  severity,
		UserID:    in.UserID,
		IPAddress: in.IPAddress,
		Message:   message,
		Details:   domain.EncodeDetails(in.Details),
		CreatedAt: s.now(),
	}
	if err := s.events.Create(ctx, ev); err != nil {
		return nil, storageErr("security_event.create", err)
	}
	observability.RecordSecurityEvent(ctx, ev.EventType, string(ev.Severity))
	s.logger.InfoContext(ctx, "security event logged",
		"module", "security_event_store",
		"operation", "log_security_event",
		"event_id", ev.ID,
		"event_type", ev.EventType,
		"severity", string(ev.Severity),
	)
	if ev.Severity == domain.SeverityCritical {
		s.dispatchCriticalAlert(ctx, ev)
	}
	return ev, nil
}

func (s *SecurityEventStore) dispatchCriticalAlert(ctx context.Context, ev *domain.SecurityEvent) {
	recipients := s.recipients(ctx)
	metadata := map[string]any{
		"eventId":   ev.ID,
		"eventType": ev.EventType,
	}
	if ev.UserID != nil {
		metadata["userId"] = *ev.UserID
	}
	if ev.IPAddress != nil {
		metadata["ipAddress"] = *ev.IPAddress
	}
	note := Notification{
		ID:         uuid.NewString(),
		Kind:       "security_alert",
		Subject:    "Critical security event: " + ev.EventType,
		Body:       ev.Message,
		Severity:   domain.SeverityCritical,
		Recipients: recipients,
		Metadata:   metadata,
		CreatedAt:  ev.CreatedAt,
	}
	queued := false
	if s.alerts != nil {
		queued = s.alerts.Enqueue(ctx, note)
	}
	details := map[string]any{
		"eventId":        ev.ID,
		"eventType":      ev.EventType,
		"recipientCount": len(recipients),
		"queued":         queued,
		"notificationId": note.ID,
	}
	entry := auditEntry(domain.AuditActionSecurityAlertSent, nil, domain.AuditTargetSystem, "", "", details, s.now())
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "security alert audit write failed",
			"module", "security_event_store",
			"operation", "dispatch_critical_alert",
			"event_id", ev.ID,
			"error", err,
		)
	}
}

// recipients merges admin account emails with the configured static list.
func (s *SecurityEventStore) recipients(ctx context.Context) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(s.adminRecipients))
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v == "" {
			return
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	if s.users != nil {
		admins, err := s.users.ListByRole(ctx, domain.RoleAdmin)
		if err != nil {
			s.logger.WarnContext(ctx, "admin recipient lookup failed",
				"module", "security_event_store",
				"operation", "recipients",
				"error", err,
			)
		}
		for _, u := range admins {
			add(u.Email)
		}
	}
	for _, r := range s.adminRecipients {
		add(r)
	}
	return out
}

// GetMetrics aggregates counters over the trailing window. LastIncident is the newest
// critical event regardless of the window.
func (s *SecurityEventStore) GetMetrics(ctx context.Context, window time.Duration) (SecurityMetrics, error) {
	if window <= 0 {
		window = DefaultMetricsWindow
	}
	since := s.now().Add(-window)
	m := SecurityMetrics{WindowMS: window.Milliseconds()}
	var err error
	if m.FailedLogins, err = s.audit.CountByActionSince(ctx, domain.AuditActionLoginFailed, since); err != nil {
		return SecurityMetrics{}, storageErr("metrics.failed_logins", err)
	}
	if m.BlockedIPs, err = s.audit.CountDistinctIPsByActionSince(ctx, domain.AuditActionIPBlocked, since); err != nil {
		return SecurityMetrics{}, storageErr("metrics.blocked_ips", err)
	}
	if m.SuspiciousEvents, err = s.events.CountBySeveritySince(ctx, []domain.Severity{domain.SeverityWarning, domain.SeverityCritical}, since); err != nil {
		return SecurityMetrics{}, storageErr("metrics.suspicious_events", err)
	}
	types, err := s.events.DistinctTypesSince(ctx, activeAnomalyTypes, []domain.Severity{domain.SeverityHigh, domain.SeverityCritical}, since)
	if err != nil {
		return SecurityMetrics{}, storageErr("metrics.active_anomalies", err)
	}
	m.ActiveAnomalies = int64(len(types))
	if m.LastIncident, err = s.events.LatestCreatedAt(ctx, domain.SeverityCritical); err != nil {
		return SecurityMetrics{}, storageErr("metrics.last_incident", err)
	}
	return m, nil
}

// GetSecurityEvents returns one page of matching events newest first.
func (s *SecurityEventStore) GetSecurityEvents(ctx context.Context, filter repository.SecurityEventFilter) (SecurityEventPage, error) {
	w := repository.NormalizeWindow(filter.Limit, filter.Offset)
	filter.Limit, filter.Offset = w.Limit, w.Offset
	events, total, err := s.events.List(ctx, filter)
	if err != nil {
		return SecurityEventPage{}, storageErr("security_event.list", err)
	}
	if events == nil {
		events = []domain.SecurityEvent{}
	}
	return SecurityEventPage{Events: events, Total: total, Limit: w.Limit, Offset: w.Offset, More: w.HasMore(total)}, nil
}

func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > repository.MaxPageSize {
		return repository.MaxPageSize
	}
	return limit
}
