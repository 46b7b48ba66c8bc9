package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sandeepkv93/security-monitoring-service/internal/domain"
	"github.com/sandeepkv93/security-monitoring-service/internal/repository"
)

type failingFlagsRepo struct {
	repository.AccountFlagsRepository
	err error
}

func (r failingFlagsRepo) SetReauthRequired(context.Context, uint, bool) error { return r.err }

func (r failingFlagsRepo) SetLocked(context.Context, uint, string, time.Time) error { return r.err }

type failingCreateAuditRepo struct {
	repository.AuditLogRepository
}

func (failingCreateAuditRepo) Create(context.Context, *domain.AuditLog) error {
	return errors.New("audit table unavailable")
}

type failingResponseRepo struct{}

func (failingResponseRepo) Record(context.Context, *domain.SecurityResponseRecord) (bool, error) {
	return false, errors.New("responses table unavailable")
}

func (failingResponseRepo) ListRecent(context.Context, int) ([]domain.SecurityResponseRecord, error) {
	return nil, errors.New("responses table unavailable")
}

func TestHandleBruteForceAttack(t *testing.T) {
	f := newSecurityFixture(t)
	ctx := context.Background()
	now := f.clock.Now()
	ip := "9.9.9.9"

	f.addAudit(t, domain.AuditActionLoginFailed, nil, ip, now.Add(-20*time.Minute))
	for i := 0; i < 4; i++ {
		f.addAudit(t, domain.AuditActionLoginFailed, nil, ip, now.Add(-time.Duration(i+1)*time.Minute))
	}
	f.addAudit(t, domain.AuditActionLoginFailed, nil, "8.8.8.8", now.Add(-time.Minute))

	resp, err := f.orchestrator.HandleBruteForceAttack(ctx, ip)
	if err != nil {
		t.Fatalf("below threshold: %v", err)
	}
	if resp != nil {
		t.Fatalf("four recent failures must not block, got %+v", resp)
	}

	f.addAudit(t, domain.AuditActionLoginFailed, nil, ip, now.Add(-10*time.Second))
	resp, err = f.orchestrator.HandleBruteForceAttack(ctx, ip)
	if err != nil {
		t.Fatalf("at threshold: %v", err)
	}
	if resp == nil || resp.Action != ActionBlockIP || resp.Target != ip || !resp.Automated {
		t.Fatalf("expected automated ip block, got %+v", resp)
	}
	if resp.Reason != "Brute force attack: 5 failed login attempts" {
		t.Fatalf("unexpected reason %q", resp.Reason)
	}
	blocked, err := f.ipBlocks.IsBlocked(ctx, ip)
	if err != nil || !blocked {
		t.Fatalf("expected %s blocked, blocked=%v err=%v", ip, blocked, err)
	}
	if other, _ := f.ipBlocks.IsBlocked(ctx, "8.8.8.8"); other {
		t.Fatal("unrelated ip must not be blocked")
	}

	rows := f.auditRows(t, domain.AuditActionIPBlocked)
	if len(rows) != 1 || rows[0].IPAddress != ip {
		t.Fatalf("expected one IP_BLOCKED row for %s, got %+v", ip, rows)
	}
	if n := len(f.responseRows(t, ActionBlockIP)); n != 1 {
		t.Fatalf("expected one response record, got %d", n)
	}
	if n := len(f.eventsOfType(t, "security_response")); n != 1 {
		t.Fatalf("expected one response event, got %d", n)
	}
	if n := len(f.alerts.byKind("security_response")); n != 1 {
		t.Fatalf("expected one response notification, got %d", n)
	}

	f.clock.Advance(time.Hour + time.Second)
	if blocked, _ := f.ipBlocks.IsBlocked(ctx, ip); blocked {
		t.Fatal("expected block to lapse after its duration")
	}
}

func TestRespondToAnomaly(t *testing.T) {
	cases := []struct {
		name       string
		event      domain.AnomalyEvent
		wantAction string
	}{
		{
			name:       "critical privilege escalation locks the account",
			event:      domain.AnomalyEvent{Type: domain.AnomalyPrivilegeEscalation, Severity: domain.SeverityCritical},
			wantAction: ActionLockAccount,
		},
		{
			name:       "critical suspicious login requires reauth",
			event:      domain.AnomalyEvent{Type: domain.AnomalySuspiciousLogin, Severity: domain.SeverityCritical},
			wantAction: ActionRequireReauth,
		},
		{
			name:       "critical high frequency requires reauth",
			event:      domain.AnomalyEvent{Type: domain.AnomalyHighFrequency, Severity: domain.SeverityCritical},
			wantAction: ActionRequireReauth,
		},
		{
			name:  "high privilege escalation is ignored",
			event: domain.AnomalyEvent{Type: domain.AnomalyPrivilegeEscalation, Severity: domain.SeverityHigh},
		},
		{
			name:  "unmapped critical type is ignored",
			event: domain.AnomalyEvent{Type: domain.AnomalyBruteForce, Severity: domain.SeverityCritical},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newSecurityFixture(t)
			ctx := context.Background()
			user := f.mustRegister(t, "target", "Sup3rSecret", domain.RoleUser)
			tc.event.UserID = user.ID
			if _, err := f.registry.CreateSession(ctx, user.ID, "target-session", "10.0.0.1", ""); err != nil {
				t.Fatalf("create session: %v", err)
			}

			resp, err := f.orchestrator.RespondToAnomaly(ctx, tc.event)
			if err != nil {
				t.Fatalf("respond: %v", err)
			}
			if tc.wantAction == "" {
				if resp != nil {
					t.Fatalf("expected no response, got %+v", resp)
				}
				if n := f.countAudit(t, domain.AuditActionSecurityResponse); n != 0 {
					t.Fatalf("expected no response rows, got %d", n)
				}
				return
			}
			if resp == nil || resp.Action != tc.wantAction || !resp.Automated {
				t.Fatalf("expected automated %s, got %+v", tc.wantAction, resp)
			}

			records := f.responseRows(t, tc.wantAction)
			if len(records) != 1 || records[0].Target != userTarget(user.ID) || !records[0].Automated {
				t.Fatalf("expected one response record, got %+v", records)
			}
			audits := f.auditRows(t, domain.AuditActionSecurityResponse)
			if len(audits) != 1 {
				t.Fatalf("expected one SECURITY_RESPONSE row, got %d", len(audits))
			}
			var details map[string]any
			if err := json.Unmarshal([]byte(audits[0].Details), &details); err != nil {
				t.Fatalf("decode details: %v", err)
			}
			if details["action"] != tc.wantAction || details["automated"] != true {
				t.Fatalf("unexpected response details %v", details)
			}

			flags, err := f.flags.Get(ctx, user.ID)
			if err != nil {
				t.Fatalf("flags: %v", err)
			}
			live, err := f.registry.Validate(ctx, "target-session")
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			switch tc.wantAction {
			case ActionLockAccount:
				if !flags.Locked || live {
					t.Fatalf("expected locked account without sessions, flags=%+v live=%v", flags, live)
				}
				if n := f.countAudit(t, domain.AuditActionAccountLocked); n != 1 {
					t.Fatalf("expected one ACCOUNT_LOCKED row, got %d", n)
				}
			case ActionRequireReauth:
				if !flags.ReauthRequired || flags.Locked || !live {
					t.Fatalf("expected reauth flag only, flags=%+v live=%v", flags, live)
				}
				if n := f.countAudit(t, domain.AuditActionRequireReauth); n != 1 {
					t.Fatalf("expected one REQUIRE_REAUTH row, got %d", n)
				}
			}
		})
	}
}

func TestEmergencyLockdownLifecycle(t *testing.T) {
	f := newSecurityFixture(t)
	ctx := context.Background()

	_, err := f.orchestrator.ActivateEmergencyLockdown(ctx, "  ", "admin-1")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error for empty reason, got %v", err)
	}

	resp, err := f.orchestrator.ActivateEmergencyLockdown(ctx, "credential stuffing wave", "admin-1")
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if resp == nil || resp.Action != ActionEmergencyLockdown || resp.Automated {
		t.Fatalf("expected manual lockdown response, got %+v", resp)
	}
	again, err := f.orchestrator.ActivateEmergencyLockdown(ctx, "second reason", "system")
	if err != nil {
		t.Fatalf("activate again: %v", err)
	}
	if again != nil {
		t.Fatalf("expected no response when already active, got %+v", again)
	}

	state, err := f.orchestrator.LockdownState(ctx)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if !state.Active || state.Reason != "credential stuffing wave" || state.ActivatedBy != "admin-1" {
		t.Fatalf("unexpected lockdown state %+v", state)
	}
	if n := f.countAudit(t, domain.AuditActionEmergencyLockdown); n != 1 {
		t.Fatalf("expected one EMERGENCY_LOCKDOWN row, got %d", n)
	}

	lifted, err := f.orchestrator.DeactivateEmergencyLockdown(ctx, 1)
	if err != nil || !lifted {
		t.Fatalf("deactivate: lifted=%v err=%v", lifted, err)
	}
	lifted, err = f.orchestrator.DeactivateEmergencyLockdown(ctx, 1)
	if err != nil || lifted {
		t.Fatalf("second deactivate: lifted=%v err=%v", lifted, err)
	}
	rows := f.auditRows(t, domain.AuditActionLockdownDeactivated)
	if len(rows) != 1 || rows[0].ActorID == nil || *rows[0].ActorID != 1 {
		t.Fatalf("expected one deactivation row by admin 1, got %+v", rows)
	}
	if active, err := f.orchestrator.IsEmergencyLockdownActive(ctx); err != nil || active {
		t.Fatalf("expected inactive lockdown, active=%v err=%v", active, err)
	}
}

func TestAutomatedLockdownIsFlagged(t *testing.T) {
	f := newSecurityFixture(t)
	resp, err := f.orchestrator.ActivateEmergencyLockdown(context.Background(), "breach detected", "")
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if resp == nil || !resp.Automated {
		t.Fatalf("expected automated response, got %+v", resp)
	}
}

func TestFailedMitigationIsReturned(t *testing.T) {
	f := newSecurityFixture(t)
	o := NewSecurityResponseOrchestrator(DefaultResponsePolicy(), OrchestratorDeps{
		Audit:     f.audit,
		Responses: f.responses,
		Flags:     failingFlagsRepo{AccountFlagsRepository: f.flags, err: errors.New("flags table unavailable")},
		Sessions:  f.registry,
		Events:    f.events,
		Alerts:    f.alerts,
	}, discardLogger())

	resp, err := o.RequireReauthentication(context.Background(), 42, "manual review")
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if resp != nil {
		t.Fatalf("expected no response, got %+v", resp)
	}
	if n := f.countAudit(t, domain.AuditActionSecurityResponse); n != 0 {
		t.Fatalf("failed mitigation must not be logged as executed, got %d rows", n)
	}
	if n := len(f.alerts.byKind("security_response")); n != 0 {
		t.Fatalf("failed mitigation must not notify, got %d", n)
	}
}

func TestResponseLoggingFailureKeepsMitigation(t *testing.T) {
	f := newSecurityFixture(t)
	ctx := context.Background()
	o := NewSecurityResponseOrchestrator(DefaultResponsePolicy(), OrchestratorDeps{
		Audit:     failingCreateAuditRepo{AuditLogRepository: f.audit},
		Responses: failingResponseRepo{},
		Flags:     f.flags,
		IPBlocks:  f.ipBlocks,
		Sessions:  f.registry,
		Events:    f.events,
		Alerts:    f.alerts,
	}, discardLogger())
	o.now = f.clock.Now

	resp, err := o.HandleAccountCompromise(ctx, 8, "analyst confirmed takeover")
	if err != nil {
		t.Fatalf("expected logging failures to be swallowed, got %v", err)
	}
	if resp == nil || resp.Action != ActionLockAccount {
		t.Fatalf("expected lock response, got %+v", resp)
	}
	flags, err := f.flags.Get(ctx, 8)
	if err != nil {
		t.Fatalf("flags: %v", err)
	}
	if !flags.Locked {
		t.Fatal("expected mitigation to remain in place")
	}
	if n := len(f.alerts.byKind("security_response")); n != 1 {
		t.Fatalf("expected notification despite logging failure, got %d", n)
	}
}
