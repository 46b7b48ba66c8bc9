package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sandeepkv93/security-monitoring-service/internal/domain"
	"github.com/sandeepkv93/security-monitoring-service/internal/observability"
	"github.com/sandeepkv93/security-monitoring-service/internal/repository"
)

const (
	DefaultBruteForceThreshold = 5
	DefaultBruteForceWindow    = 15 * time.Minute
	DefaultIPBlockDuration     = time.Hour

	lockdownTarget = "system"
)

type ResponsePolicy struct {
	BruteForceThreshold int
	BruteForceWindow    time.Duration
	IPBlockDuration     time.Duration
}

func DefaultResponsePolicy() ResponsePolicy {
	return ResponsePolicy{
		BruteForceThreshold: DefaultBruteForceThreshold,
		BruteForceWindow:    DefaultBruteForceWindow,
		IPBlockDuration:     DefaultIPBlockDuration,
	}
}

type SessionRevoker interface {
	RevokeAll(ctx context.Context, userID uint) (int64, error)
}

type SecurityEventLogger interface {
	LogSecurityEvent(ctx context.Context, in SecurityEventInput) (*domain.SecurityEvent, error)
}

// SecurityResponseOrchestrator turns signals into mitigations. Every action mitigates
// first, then records the response, then queues an administrator notification. Only a
// failed mitigation is returned to the caller.
type SecurityResponseOrchestrator struct {
	policy    ResponsePolicy
	audit     repository.AuditLogRepository
	responses repository.SecurityResponseRepository
	flags     repository.AccountFlagsRepository
	ipBlocks  IPBlockStore
	sessions  SessionRevoker
	lockdown  LockdownStateStore
	events    SecurityEventLogger
	alerts    AlertPublisher
	attempts  AttemptResetter
	logger    *slog.Logger
	now       func() time.Time
}

type OrchestratorDeps struct {
	Audit     repository.AuditLogRepository
	Responses repository.SecurityResponseRepository
	Flags     repository.AccountFlagsRepository
	IPBlocks  IPBlockStore
	Sessions  SessionRevoker
	Lockdown  LockdownStateStore
	Events    SecurityEventLogger
	Alerts    AlertPublisher
	Attempts  AttemptResetter
}

func NewSecurityResponseOrchestrator(policy ResponsePolicy, deps OrchestratorDeps, logger *slog.Logger) *SecurityResponseOrchestrator {
	defaults := DefaultResponsePolicy()
	if policy.BruteForceThreshold <= 0 {
		policy.BruteForceThreshold = defaults.BruteForceThreshold
	}
	if policy.BruteForceWindow <= 0 {
		policy.BruteForceWindow = defaults.BruteForceWindow
	}
	if policy.IPBlockDuration <= 0 {
		policy.IPBlockDuration = defaults.IPBlockDuration
	}
	if deps.IPBlocks == nil {
		deps.IPBlocks = NewNoopIPBlockStore()
	}
	if deps.Lockdown == nil {
		deps.Lockdown = NewInMemoryLockdownState()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SecurityResponseOrchestrator{
		policy:    policy,
		audit:     deps.Audit,
		responses: deps.Responses,
		flags:     deps.Flags,
		ipBlocks:  deps.IPBlocks,
		sessions:  deps.Sessions,
		lockdown:  deps.Lockdown,
		events:    deps.Events,
		alerts:    deps.Alerts,
		attempts:  deps.Attempts,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// HandleBruteForceAttack blocks ip once it reaches the failure threshold. Below the
// threshold it returns nil with no error.
func (o *SecurityResponseOrchestrator) HandleBruteForceAttack(ctx context.Context, ip string) (*domain.SecurityResponse, error) {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return nil, nil
	}
	since := o.now().Add(-o.policy.BruteForceWindow)
	failures, err := o.audit.CountByActionForIPSince(ctx, domain.AuditActionLoginFailed, ip, since)
	if err != nil {
		return nil, storageErr("brute_force.count_failures", err)
	}
	if failures < int64(o.policy.BruteForceThreshold) {
		return nil, nil
	}
	reason := fmt.Sprintf("Brute force attack: %d failed login attempts", failures)
	return o.execute(ctx, BlockIP{Duration: o.policy.IPBlockDuration}, ip, reason, true)
}

func (o *SecurityResponseOrchestrator) HandleAccountCompromise(ctx context.Context, userID uint, reason string) (*domain.SecurityResponse, error) {
	return o.execute(ctx, LockAccount{UserID: userID}, userTarget(userID), reason, true)
}

func (o *SecurityResponseOrchestrator) RequireReauthentication(ctx context.Context, userID uint, reason string) (*domain.SecurityResponse, error) {
	return o.execute(ctx, RequireReauth{UserID: userID}, userTarget(userID), reason, true)
}

// RespondToAnomaly acts on critical anomalies only. Other severities and unmapped types
// return nil with no error.
func (o *SecurityResponseOrchestrator) RespondToAnomaly(ctx context.Context, event domain.AnomalyEvent) (*domain.SecurityResponse, error) {
	if event.Severity != domain.SeverityCritical {
		return nil, nil
	}
	switch event.Type {
	case domain.AnomalySuspiciousLogin:
		return o.RequireReauthentication(ctx, event.UserID, "Suspicious login pattern detected")
	case domain.AnomalyHighFrequency:
		return o.RequireReauthentication(ctx, event.UserID, "Abnormally high operation frequency detected")
	case domain.AnomalyPrivilegeEscalation:
		return o.HandleAccountCompromise(ctx, event.UserID, "Suspicious privilege escalation detected")
	default:
		return nil, nil
	}
}

// ActivateEmergencyLockdown returns nil with no error when lockdown is already active.
func (o *SecurityResponseOrchestrator) ActivateEmergencyLockdown(ctx context.Context, reason, activatedBy string) (*domain.SecurityResponse, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, &ValidationError{Errors: []string{"lockdown reason is required"}}
	}
	if activatedBy == "" {
		activatedBy = "system"
	}
	automated := activatedBy == "system"
	return o.execute(ctx, EmergencyLockdown{ActivatedBy: activatedBy}, lockdownTarget, reason, automated)
}

// DeactivateEmergencyLockdown reports whether this call lifted an active lockdown.
func (o *SecurityResponseOrchestrator) DeactivateEmergencyLockdown(ctx context.Context, adminID uint) (bool, error) {
	changed, err := o.lockdown.Deactivate(ctx)
	if err != nil {
		observability.RecordSecurityResponse(ctx, "EMERGENCY_LOCKDOWN_DEACTIVATE", "error")
		return false, storageErr("lockdown.deactivate", err)
	}
	if !changed {
		return false, nil
	}
	observability.RecordSecurityResponse(ctx, "EMERGENCY_LOCKDOWN_DEACTIVATE", "success")
	entry := auditEntry(domain.AuditActionLockdownDeactivated, uintRef(adminID), domain.AuditTargetSystem, lockdownTarget, "",
		map[string]any{"deactivatedBy": adminID}, o.now())
	if err := o.audit.Create(ctx, entry); err != nil {
		o.warnLogFailure(ctx, "EMERGENCY_LOCKDOWN_DEACTIVATE", "audit", err)
	}
	o.logger.InfoContext(ctx, "emergency lockdown deactivated",
		"module", "security_response",
		"operation", "deactivate_emergency_lockdown",
		"outcome", "success",
		"user_id", adminID,
	)
	o.notify(ctx, "Emergency lockdown lifted", fmt.Sprintf("Emergency lockdown deactivated by admin %d", adminID), "EMERGENCY_LOCKDOWN_DEACTIVATED", lockdownTarget)
	return true, nil
}

func (o *SecurityResponseOrchestrator) IsEmergencyLockdownActive(ctx context.Context) (bool, error) {
	state, err := o.lockdown.Load(ctx)
	if err != nil {
		return false, storageErr("lockdown.load", err)
	}
	return state.Active, nil
}

func (o *SecurityResponseOrchestrator) LockdownState(ctx context.Context) (domain.LockdownState, error) {
	state, err := o.lockdown.Load(ctx)
	if err != nil {
		return domain.LockdownState{}, storageErr("lockdown.load", err)
	}
	return state, nil
}

func (o *SecurityResponseOrchestrator) execute(ctx context.Context, action ResponseAction, target, reason string, automated bool) (*domain.SecurityResponse, error) {
	ctx, span := observability.StartSpan(ctx, "security.response."+strings.ToLower(action.Name()))
	defer span.End()

	if err := action.mitigate(ctx, o, target, reason); err != nil {
		if errors.Is(err, errNoChange) {
			observability.RecordSecurityResponse(ctx, action.Name(), "noop")
			return nil, nil
		}
		observability.RecordSecurityResponse(ctx, action.Name(), "error")
		o.logger.ErrorContext(ctx, "security response mitigation failed",
			"module", "security_response",
			"operation", strings.ToLower(action.Name()),
			"outcome", "error",
			"target", target,
			"error", err,
		)
		return nil, storageErr("response."+strings.ToLower(action.Name()), err)
	}
	resp := &domain.SecurityResponse{
		Action:    action.Name(),
		Target:    target,
		Reason:    reason,
		Timestamp: o.now(),
		Automated: automated,
	}
	observability.RecordSecurityResponse(ctx, action.Name(), "success")
	o.logResponse(ctx, action, resp)
	o.logger.InfoContext(ctx, "security response executed",
		"module", "security_response",
		"operation", strings.ToLower(action.Name()),
		"outcome", "success",
		"target", target,
		"reason", reason,
		"automated", automated,
	)
	o.notify(ctx, "Security response executed: "+action.Name(), reason, action.Name(), target)
	return resp, nil
}

// logResponse records resp once. Failures here are logged and never undo the mitigation.
func (o *SecurityResponseOrchestrator) logResponse(ctx context.Context, action ResponseAction, resp *domain.SecurityResponse) {
	if o.responses != nil {
		inserted, err := o.responses.Record(ctx, &domain.SecurityResponseRecord{
			Action:     resp.Action,
			Target:     resp.Target,
			ExecutedAt: resp.Timestamp,
			Reason:     resp.Reason,
			Automated:  resp.Automated,
			CreatedAt:  resp.Timestamp,
		})
		if err != nil {
			o.warnLogFailure(ctx, resp.Action, "response_record", err)
		} else if !inserted {
			return
		}
	}
	if err := o.audit.Create(ctx, action.mirror(resp.Target, resp.Reason, resp.Timestamp)); err != nil {
		o.warnLogFailure(ctx, resp.Action, "mirror_audit", err)
	}
	entry := auditEntry(domain.AuditActionSecurityResponse, nil, domain.AuditTargetSystem, resp.Target, "", map[string]any{
		"action":    resp.Action,
		"target":    resp.Target,
		"reason":    resp.Reason,
		"automated": resp.Automated,
	}, resp.Timestamp)
	if err := o.audit.Create(ctx, entry); err != nil {
		o.warnLogFailure(ctx, resp.Action, "response_audit", err)
	}
	if o.events != nil {
		_, err := o.events.LogSecurityEvent(ctx, SecurityEventInput{
			EventType: "security_response",
			Severity:  domain.SeverityWarning,
			Message:   fmt.Sprintf("Security response executed: %s on %s", resp.Action, resp.Target),
			Details: map[string]any{
				"action":    resp.Action,
				"target":    resp.Target,
				"reason":    resp.Reason,
				"automated": resp.Automated,
			},
		})
		if err != nil {
			o.warnLogFailure(ctx, resp.Action, "security_event", err)
		}
	}
}

func (o *SecurityResponseOrchestrator) notify(ctx context.Context, subject, body, kind, target string) {
	if o.alerts == nil {
		return
	}
	o.alerts.Enqueue(ctx, Notification{
		ID:        uuid.NewString(),
		Kind:      "security_response",
		Subject:   subject,
		Body:      body,
		Severity:  domain.SeverityWarning,
		Metadata:  map[string]any{"action": kind, "target": target},
		CreatedAt: o.now(),
	})
}

func (o *SecurityResponseOrchestrator) warnLogFailure(ctx context.Context, action, stage string, err error) {
	o.logger.WarnContext(ctx, "security response logging failed",
		"module", "security_response",
		"operation", strings.ToLower(action),
		"stage", stage,
		"outcome", "error",
		"error", err,
	)
}
