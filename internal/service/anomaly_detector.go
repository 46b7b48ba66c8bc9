package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sandeepkv93/security-monitoring-service/internal/domain"
	"github.com/sandeepkv93/security-monitoring-service/internal/observability"
	"github.com/sandeepkv93/security-monitoring-service/internal/repository"
)

type AnomalyPolicy struct {
	HighFrequencyThreshold   int
	HighFrequencyWindow      time.Duration
	PrivilegeChangeThreshold int
	PrivilegeWindow          time.Duration
	LoginHistoryWindow       time.Duration
	// PrivilegeFailClosed makes DetectPrivilegeAbuse return ErrDetectorFailed when its
	// history query fails, instead of reporting no anomaly.
	PrivilegeFailClosed bool
}

func DefaultAnomalyPolicy() AnomalyPolicy {
	return AnomalyPolicy{
		HighFrequencyThreshold:   50,
		HighFrequencyWindow:      time.Minute,
		PrivilegeChangeThreshold: 5,
		PrivilegeWindow:          time.Hour,
		LoginHistoryWindow:       30 * 24 * time.Hour,
	}
}

type AnomalyResponder interface {
	RespondToAnomaly(ctx context.Context, event domain.AnomalyEvent) (*domain.SecurityResponse, error)
}

// AnomalyDetector evaluates thresholds over audit history and per-user operation counters.
type AnomalyDetector struct {
	policy    AnomalyPolicy
	audit     repository.AuditLogRepository
	counter   OperationCounter
	events    SecurityEventLogger
	responder AnomalyResponder
	alerts    AlertPublisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewAnomalyDetector(policy AnomalyPolicy, audit repository.AuditLogRepository, counter OperationCounter, events SecurityEventLogger, responder AnomalyResponder, alerts AlertPublisher, logger *slog.Logger) *AnomalyDetector {
	defaults := DefaultAnomalyPolicy()
	if policy.HighFrequencyThreshold <= 0 {
		policy.HighFrequencyThreshold = defaults.HighFrequencyThreshold
	}
	if policy.HighFrequencyWindow <= 0 {
		policy.HighFrequencyWindow = defaults.HighFrequencyWindow
	}
	if policy.PrivilegeChangeThreshold <= 0 {
		policy.PrivilegeChangeThreshold = defaults.PrivilegeChangeThreshold
	}
	if policy.PrivilegeWindow <= 0 {
		policy.PrivilegeWindow = defaults.PrivilegeWindow
	}
	if policy.LoginHistoryWindow <= 0 {
		policy.LoginHistoryWindow = defaults.LoginHistoryWindow
	}
	if counter == nil {
		counter = NewInMemoryOperationCounter()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnomalyDetector{
		policy:    policy,
		audit:     audit,
		counter:   counter,
		events:    events,
		responder: responder,
		alerts:    alerts,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// DetectLoginAnomaly flags a login from an IP the user has not logged in from within the
// history window. A user with no history is flagged too. Call it before the current
// login is written to the audit log.
//
// A failed history query is logged and reported as no anomaly so that a degraded audit
// store does not block sign-in.
func (d *AnomalyDetector) DetectLoginAnomaly(ctx context.Context, userID uint, ip, userAgent string) *domain.AnomalyEvent {
	known, err := d.audit.DistinctIPsForActor(ctx, userID, domain.AuditActionLogin, d.now().Add(-d.policy.LoginHistoryWindow))
	if err != nil {
		d.detectorFailed(ctx, "detect_login_anomaly", userID, err)
		return nil
	}
	for _, k := range known {
		if k == ip {
			return nil
		}
	}
	return d.detected(ctx, domain.AnomalyEvent{
		Type:     domain.AnomalySuspiciousLogin,
		UserID:   userID,
		Severity: domain.SeverityMedium,
		Details: map[string]any{
			"ipAddress": ip,
			"userAgent": userAgent,
			"knownIPs":  len(known),
			"message":   "Login from new IP address",
		},
	})
}

// RecordOperation counts one operation in the user's current window.
func (d *AnomalyDetector) RecordOperation(ctx context.Context, userID uint) {
	if _, err := d.counter.Increment(ctx, userID, d.policy.HighFrequencyWindow); err != nil {
		d.detectorFailed(ctx, "record_operation", userID, err)
	}
}

// DetectHighFrequency flags users above the per-window operation threshold. Counter
// failures are logged and reported as no anomaly.
func (d *AnomalyDetector) DetectHighFrequency(ctx context.Context, userID uint) *domain.AnomalyEvent {
	count, err := d.counter.Count(ctx, userID)
	if err != nil {
		d.detectorFailed(ctx, "detect_high_frequency", userID, err)
		return nil
	}
	if count <= int64(d.policy.HighFrequencyThreshold) {
		return nil
	}
	return d.highFrequency(ctx, userID, count)
}

// TrackOperation records one operation and reports an anomaly only for the operation that
// crosses the threshold, so each window yields at most one event.
func (d *AnomalyDetector) TrackOperation(ctx context.Context, userID uint) *domain.AnomalyEvent {
	count, err := d.counter.Increment(ctx, userID, d.policy.HighFrequencyWindow)
	if err != nil {
		d.detectorFailed(ctx, "track_operation", userID, err)
		return nil
	}
	if count != int64(d.policy.HighFrequencyThreshold)+1 {
		return nil
	}
	return d.highFrequency(ctx, userID, count)
}

func (d *AnomalyDetector) highFrequency(ctx context.Context, userID uint, count int64) *domain.AnomalyEvent {
	window := d.policy.HighFrequencyWindow
	return d.detected(ctx, domain.AnomalyEvent{
		Type:     domain.AnomalyHighFrequency,
		UserID:   userID,
		Severity: domain.SeverityHigh,
		Details: map[string]any{
			"operationCount": count,
			"timeWindow":     int64(window / time.Second),
			"threshold":      d.policy.HighFrequencyThreshold,
			"message":        fmt.Sprintf("User performed %d operations in %s minutes", count, strconv.FormatFloat(window.Minutes(), 'f', -1, 64)),
		},
	})
}

// DetectPrivilegeAbuse flags users with more than the allowed privilege mutations in the
// window. On a query failure it reports no anomaly unless PrivilegeFailClosed is set.
func (d *AnomalyDetector) DetectPrivilegeAbuse(ctx context.Context, userID uint, action string) (*domain.AnomalyEvent, error) {
	recent, err := d.audit.CountByActorSince(ctx, userID, domain.PrivilegeAuditActions, d.now().Add(-d.policy.PrivilegeWindow))
	if err != nil {
		d.detectorFailed(ctx, "detect_privilege_abuse", userID, err)
		if d.policy.PrivilegeFailClosed {
			return nil, fmt.Errorf("%w: %w", ErrDetectorFailed, err)
		}
		return nil, nil
	}
	if recent <= int64(d.policy.PrivilegeChangeThreshold) {
		return nil, nil
	}
	return d.detected(ctx, domain.AnomalyEvent{
		Type:     domain.AnomalyPrivilegeEscalation,
		UserID:   userID,
		Severity: domain.SeverityCritical,
		Details: map[string]any{
			"action":        action,
			"recentChanges": recent,
			"message":       "Unusual number of privilege changes detected",
		},
	}), nil
}

// HandleAnomaly persists event and then hands it to the responder. Persistence happens
// whether or not a mitigation follows. Only mitigation failures are returned.
func (d *AnomalyDetector) HandleAnomaly(ctx context.Context, event domain.AnomalyEvent) (*domain.SecurityResponse, error) {
	if event.DetectedAt.IsZero() {
		event.DetectedAt = d.now()
	}
	if d.events != nil {
		_, err := d.events.LogSecurityEvent(ctx, SecurityEventInput{
			EventType: string(event.Type),
			Severity:  event.Severity,
			UserID:    uintRef(event.UserID),
			Message:   event.Message(),
			Details:   event.Details,
		})
		if err != nil {
			d.logger.WarnContext(ctx, "anomaly persistence failed",
				"module", "anomaly_detector",
				"operation", "handle_anomaly",
				"outcome", "error",
				"user_id", event.UserID,
				"anomaly_type", string(event.Type),
				"error", err,
			)
		}
	}
	if event.Severity == domain.SeverityHigh && d.alerts != nil {
		d.alerts.Enqueue(ctx, Notification{
			ID:       uuid.NewString(),
			Kind:     "anomaly",
			Subject:  "Security anomaly detected: " + string(event.Type),
			Body:     event.Message(),
			Severity: event.Severity,
			Metadata: map[string]any{
				"userId":  event.UserID,
				"type":    string(event.Type),
				"details": event.Details,
			},
			CreatedAt: event.DetectedAt,
		})
	}
	if d.responder == nil {
		return nil, nil
	}
	return d.responder.RespondToAnomaly(ctx, event)
}

func (d *AnomalyDetector) detected(ctx context.Context, event domain.AnomalyEvent) *domain.AnomalyEvent {
	event.DetectedAt = d.now()
	observability.RecordAnomalyDetected(ctx, string(event.Type), string(event.Severity))
	d.logger.InfoContext(ctx, "anomaly detected",
		"module", "anomaly_detector",
		"operation", "detect",
		"user_id", event.UserID,
		"anomaly_type", string(event.Type),
		"severity", string(event.Severity),
	)
	return &event
}

func (d *AnomalyDetector) detectorFailed(ctx context.Context, op string, userID uint, err error) {
	d.logger.WarnContext(ctx, "anomaly detector query failed",
		"module", "anomaly_detector",
		"operation", op,
		"outcome", "error",
		"user_id", userID,
		"error", err,
	)
}
