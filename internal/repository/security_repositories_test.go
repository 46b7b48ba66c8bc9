package repository

import (
	"context"
	"testing"
	"time"

	"github.com/sandeepkv93/security-monitoring-service/internal/domain"
)

func TestPasswordHistoryLastNNewestFirst(t *testing.T) {
	repo := NewPasswordHistoryRepository(newTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, hash := range []string{"h1", "h2", "h3", "h4"} {
		entry := &domain.PasswordHistory{UserID: 7, PasswordHash: hash, CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := repo.Append(ctx, entry); err != nil {
			t.Fatalf("append %s: %v", hash, err)
		}
	}
	if err := repo.Append(ctx, &domain.PasswordHistory{UserID: 8, PasswordHash: "other", CreatedAt: base.Add(10 * time.Hour)}); err != nil {
		t.Fatalf("append other: %v", err)
	}

	got, err := repo.LastN(ctx, 7, 3)
	if err != nil {
		t.Fatalf("last n: %v", err)
	}
	if len(got) != 3 || got[0].PasswordHash != "h4" || got[2].PasswordHash != "h2" {
		t.Fatalf("unexpected history: %+v", got)
	}
	empty, err := repo.LastN(ctx, 99, 3)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty history, got %d err=%v", len(empty), err)
	}
}

func TestSecurityEventRepositoryListFiltersAndTotals(t *testing.T) {
	repo := NewSecurityEventRepository(newTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	events := []domain.SecurityEvent{
		{EventType: "suspicious_login", Severity: domain.SeverityMedium, UserID: uintPtr(1), Message: "m1", CreatedAt: base},
		{EventType: "privilege_escalation", Severity: domain.SeverityCritical, UserID: uintPtr(1), Message: "m2", CreatedAt: base.Add(time.Minute)},
		{EventType: "high_frequency", Severity: domain.SeverityHigh, UserID: uintPtr(2), Message: "m3", CreatedAt: base.Add(2 * time.Minute)},
		{EventType: "brute_force", Severity: domain.SeverityWarning, IPAddress: strPtr("9.9.9.9"), Message: "m4", CreatedAt: base.Add(3 * time.Minute)},
	}
	for i := range events {
		if err := repo.Create(ctx, &events[i]); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	all, total, err := repo.List(ctx, SecurityEventFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 4 || len(all) != 4 || all[0].Message != "m4" {
		t.Fatalf("expected newest first with total 4, got total=%d first=%+v", total, all[0])
	}

	page, total, err := repo.List(ctx, SecurityEventFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if total != 4 || len(page) != 1 || page[0].Message != "m3" {
		t.Fatalf("unexpected page: total=%d page=%+v", total, page)
	}

	from := base.Add(30 * time.Second)
	byUser, total, err := repo.List(ctx, SecurityEventFilter{UserID: uintPtr(1), From: &from})
	if err != nil {
		t.Fatalf("list by user: %v", err)
	}
	if total != 1 || byUser[0].Message != "m2" {
		t.Fatalf("unexpected filtered events: total=%d %+v", total, byUser)
	}

	crit, err := repo.CountBySeveritySince(ctx, []domain.Severity{domain.SeverityWarning, domain.SeverityCritical}, base.Add(-time.Second))
	if err != nil || crit != 2 {
		t.Fatalf("count by severity: n=%d err=%v", crit, err)
	}

	types, err := repo.DistinctTypesSince(ctx,
		[]string{"suspicious_login", "high_frequency", "privilege_escalation"},
		[]domain.Severity{domain.SeverityHigh, domain.SeverityCritical},
		base.Add(-time.Second))
	if err != nil {
		t.Fatalf("distinct types: %v", err)
	}
	if len(types) != 2 || types[0] != "high_frequency" || types[1] != "privilege_escalation" {
		t.Fatalf("unexpected distinct types: %v", types)
	}

	latest, err := repo.LatestCreatedAt(ctx, domain.SeverityCritical)
	if err != nil || latest == nil || !latest.Equal(base.Add(time.Minute)) {
		t.Fatalf("unexpected latest critical: %v err=%v", latest, err)
	}
	none, err := repo.LatestCreatedAt(ctx, domain.SeverityLow)
	if err != nil || none != nil {
		t.Fatalf("expected nil latest low, got %v err=%v", none, err)
	}
}

func TestAuditLogRepositoryCounts(t *testing.T) {
	repo := NewAuditLogRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := []domain.AuditLog{
		{Action: domain.AuditActionLoginFailed, IPAddress: "9.9.9.9", CreatedAt: now.Add(-time.Minute)},
		{Action: domain.AuditActionLoginFailed, IPAddress: "9.9.9.9", CreatedAt: now.Add(-2 * time.Minute)},
		{Action: domain.AuditActionLoginFailed, IPAddress: "9.9.9.9", CreatedAt: now.Add(-time.Hour)},
		{Action: domain.AuditActionLoginFailed, IPAddress: "8.8.8.8", CreatedAt: now.Add(-time.Minute)},
		{ActorID: uintPtr(3), Action: domain.AuditActionLogin, IPAddress: "1.1.1.1", CreatedAt: now.Add(-24 * time.Hour)},
		{ActorID: uintPtr(3), Action: domain.AuditActionLogin, IPAddress: "1.1.1.1", CreatedAt: now.Add(-2 * time.Hour)},
		{ActorID: uintPtr(3), Action: domain.AuditActionLogin, IPAddress: "2.2.2.2", CreatedAt: now.Add(-time.Hour)},
		{ActorID: uintPtr(3), Action: domain.AuditActionGrantPermission, CreatedAt: now.Add(-10 * time.Minute)},
		{ActorID: uintPtr(3), Action: domain.AuditActionChangeRole, CreatedAt: now.Add(-5 * time.Minute)},
	}
	for i := range rows {
		if err := repo.Create(ctx, &rows[i]); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	n, err := repo.CountByActionForIPSince(ctx, domain.AuditActionLoginFailed, "9.9.9.9", now.Add(-15*time.Minute))
	if err != nil || n != 2 {
		t.Fatalf("failed for ip: n=%d err=%v", n, err)
	}
	n, err = repo.CountByActionSince(ctx, domain.AuditActionLoginFailed, now.Add(-15*time.Minute))
	if err != nil || n != 3 {
		t.Fatalf("failed total: n=%d err=%v", n, err)
	}
	n, err = repo.CountDistinctIPsByActionSince(ctx, domain.AuditActionLoginFailed, now.Add(-15*time.Minute))
	if err != nil || n != 2 {
		t.Fatalf("distinct ips: n=%d err=%v", n, err)
	}
	n, err = repo.CountByActorSince(ctx, 3, domain.PrivilegeAuditActions, now.Add(-time.Hour))
	if err != nil || n != 2 {
		t.Fatalf("privilege changes: n=%d err=%v", n, err)
	}
	ips, err := repo.DistinctIPsForActor(ctx, 3, domain.AuditActionLogin, now.Add(-30*24*time.Hour))
	if err != nil || len(ips) != 2 {
		t.Fatalf("known ips: %v err=%v", ips, err)
	}
	latest, err := repo.ListByAction(ctx, domain.AuditActionLoginFailed, 1)
	if err != nil || len(latest) != 1 || !latest[0].CreatedAt.Equal(now.Add(-time.Minute)) {
		t.Fatalf("list by action: %+v err=%v", latest, err)
	}
}

func TestSecurityResponseRepositoryRecordIsIdempotent(t *testing.T) {
	repo := NewSecurityResponseRepository(newTestDB(t))
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first, err := repo.Record(ctx, &domain.SecurityResponseRecord{Action: "BLOCK_IP", Target: "9.9.9.9", ExecutedAt: at, Reason: "r", Automated: true})
	if err != nil || !first {
		t.Fatalf("first record: inserted=%v err=%v", first, err)
	}
	second, err := repo.Record(ctx, &domain.SecurityResponseRecord{Action: "BLOCK_IP", Target: "9.9.9.9", ExecutedAt: at, Reason: "r", Automated: true})
	if err != nil || second {
		t.Fatalf("duplicate record: inserted=%v err=%v", second, err)
	}
	rows, err := repo.ListRecent(ctx, 10)
	if err != nil || len(rows) != 1 {
		t.Fatalf("list recent: %d err=%v", len(rows), err)
	}
}

func TestAccountFlagsRepositoryUpserts(t *testing.T) {
	repo := NewAccountFlagsRepository(newTestDB(t))
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	flags, err := repo.Get(ctx, 5)
	if err != nil || flags.Locked || flags.ReauthRequired {
		t.Fatalf("expected cleared flags, got %+v err=%v", flags, err)
	}
	if err := repo.SetLocked(ctx, 5, "compromised", at); err != nil {
		t.Fatalf("set locked: %v", err)
	}
	if err := repo.SetReauthRequired(ctx, 5, true); err != nil {
		t.Fatalf("set reauth: %v", err)
	}
	flags, err = repo.Get(ctx, 5)
	if err != nil || !flags.Locked || !flags.ReauthRequired || flags.LockReason != "compromised" {
		t.Fatalf("unexpected flags: %+v err=%v", flags, err)
	}
	if err := repo.SetReauthRequired(ctx, 5, false); err != nil {
		t.Fatalf("clear reauth: %v", err)
	}
	if err := repo.ClearLocked(ctx, 5); err != nil {
		t.Fatalf("clear locked: %v", err)
	}
	flags, err = repo.Get(ctx, 5)
	if err != nil || flags.Locked || flags.ReauthRequired {
		t.Fatalf("expected cleared flags, got %+v err=%v", flags, err)
	}
}

func TestLockdownRepositoryRoundTrip(t *testing.T) {
	repo := NewLockdownRepository(newTestDB(t))
	ctx := context.Background()

	state, err := repo.Load(ctx)
	if err != nil || state.Active {
		t.Fatalf("expected inactive default, got %+v err=%v", state, err)
	}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := repo.Save(ctx, domain.LockdownState{Active: true, Reason: "breach", ActivatedAt: &at, ActivatedBy: "system"}); err != nil {
		t.Fatalf("save active: %v", err)
	}
	state, err = repo.Load(ctx)
	if err != nil || !state.Active || state.Reason != "breach" || state.ActivatedBy != "system" {
		t.Fatalf("unexpected active state: %+v err=%v", state, err)
	}
	if err := repo.Save(ctx, domain.LockdownState{}); err != nil {
		t.Fatalf("save inactive: %v", err)
	}
	state, err = repo.Load(ctx)
	if err != nil || state.Active {
		t.Fatalf("expected inactive, got %+v err=%v", state, err)
	}
}

func TestUserRepository(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))
	ctx := context.Background()

	admin := &domain.User{Username: "root", Email: "root@example.com", PasswordHash: "x", Role: domain.RoleAdmin}
	user := &domain.User{Username: "alice", Email: "alice@example.com", PasswordHash: "y", Role: domain.RoleUser}
	for _, u := range []*domain.User{admin, user} {
		if err := repo.Create(ctx, u); err != nil {
			t.Fatalf("create %s: %v", u.Username, err)
		}
	}
	got, err := repo.FindByUsername(ctx, "alice")
	if err != nil || got.ID != user.ID {
		t.Fatalf("find by username: %+v err=%v", got, err)
	}
	if _, err := repo.FindByUsername(ctx, "missing"); err != ErrUserNotFound {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := repo.UpdatePasswordHash(ctx, user.ID, "z"); err != nil {
		t.Fatalf("update hash: %v", err)
	}
	got, err = repo.FindByID(ctx, user.ID)
	if err != nil || got.PasswordHash != "z" {
		t.Fatalf("expected updated hash, got %+v err=%v", got, err)
	}
	admins, err := repo.ListByRole(ctx, domain.RoleAdmin)
	if err != nil || len(admins) != 1 || admins[0].Username != "root" {
		t.Fatalf("list admins: %+v err=%v", admins, err)
	}
}
