package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sandeepkv93/security-monitoring-service/internal/domain"
	"github.com/sandeepkv93/security-monitoring-service/internal/repository"
	"github.com/sandeepkv93/security-monitoring-service/internal/security"

	"gorm.io/gorm"
)

type capturePublisher struct {
	mu    sync.Mutex
	notes []Notification
	full  bool
}

func (p *capturePublisher) Enqueue(_ context.Context, n Notification) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.full {
		return false
	}
	p.notes = append(p.notes, n)
	return true
}

func (p *capturePublisher) byKind(kind string) []Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Notification
	for _, n := range p.notes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// securityFixture wires the subsystem over one sqlite database and in-memory shared state.
type securityFixture struct {
	db           *gorm.DB
	clock        *testClock
	users        repository.UserRepository
	audit        repository.AuditLogRepository
	eventsRepo   repository.SecurityEventRepository
	responses    repository.SecurityResponseRepository
	flags        repository.AccountFlagsRepository
	alerts       *capturePublisher
	ipBlocks     *InMemoryIPBlockStore
	lockdown     *InMemoryLockdownState
	counter      *InMemoryOperationCounter
	guard        *CredentialPolicyGuard
	registry     *SessionRegistry
	events       *SecurityEventStore
	orchestrator *SecurityResponseOrchestrator
	detector     *AnomalyDetector
	gate         *AccessGate
	auth         *AuthService
}

func newSecurityFixture(t *testing.T) *securityFixture {
	t.Helper()
	db := newServiceTestDB(t)
	clock := newTestClock(time.Now().UTC().Truncate(time.Second))
	logger := discardLogger()
	f := &securityFixture{
		db:         db,
		clock:      clock,
		users:      repository.NewUserRepository(db),
		audit:      repository.NewAuditLogRepository(db),
		eventsRepo: repository.NewSecurityEventRepository(db),
		responses:  repository.NewSecurityResponseRepository(db),
		flags:      repository.NewAccountFlagsRepository(db),
		alerts:     &capturePublisher{},
		ipBlocks:   NewInMemoryIPBlockStore(),
		lockdown:   NewInMemoryLockdownState(),
		counter:    NewInMemoryOperationCounter(),
	}
	f.ipBlocks.now = clock.Now
	f.counter.now = clock.Now

	hasher := testHasher()
	f.guard = NewCredentialPolicyGuard(DefaultCredentialPolicy(), NewInMemoryLoginAttemptStore(), repository.NewPasswordHistoryRepository(db), hasher, logger)
	f.guard.now = clock.Now
	f.registry = NewSessionRegistry(repository.NewSessionRepository(db), 5, 7*24*time.Hour, logger)
	f.registry.now = clock.Now
	f.events = NewSecurityEventStore(f.eventsRepo, f.audit, f.users, f.alerts, []string{"oncall@example.com"}, logger)
	f.events.now = clock.Now
	f.orchestrator = NewSecurityResponseOrchestrator(DefaultResponsePolicy(), OrchestratorDeps{
		Audit:     f.audit,
		Responses: f.responses,
		Flags:     f.flags,
		IPBlocks:  f.ipBlocks,
		Sessions:  f.registry,
		Lockdown:  f.lockdown,
		Events:    f.events,
		Alerts:    f.alerts,
		Attempts:  f.guard,
	}, logger)
	f.orchestrator.now = clock.Now
	f.detector = NewAnomalyDetector(DefaultAnomalyPolicy(), f.audit, f.counter, f.events, f.orchestrator, f.alerts, logger)
	f.detector.now = clock.Now
	f.gate = NewAccessGate(f.lockdown, f.ipBlocks, f.flags, logger)

	jwtMgr := security.NewJWTManager("security-monitoring-service", "security-monitoring-clients", strings.Repeat("a", 32), strings.Repeat("r", 32))
	f.auth = NewAuthService(AuthDeps{
		Users:        f.users,
		Audit:        f.audit,
		Flags:        f.flags,
		Hasher:       hasher,
		Guard:        f.guard,
		Sessions:     f.registry,
		Detector:     f.detector,
		Orchestrator: f.orchestrator,
		Gate:         f.gate,
		Tokens:       NewTokenService(jwtMgr, 15*time.Minute, 7*24*time.Hour),
	}, logger)
	f.auth.now = clock.Now
	return f
}

func (f *securityFixture) addAudit(t *testing.T, action string, actorID *uint, ip string, at time.Time) {
	t.Helper()
	if err := f.audit.Create(context.Background(), auditEntry(action, actorID, domain.AuditTargetUser, "", ip, nil, at)); err != nil {
		t.Fatalf("create audit %s: %v", action, err)
	}
}

func (f *securityFixture) countAudit(t *testing.T, action string) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(&domain.AuditLog{}).Where("action = ?", action).Count(&n).Error; err != nil {
		t.Fatalf("count audit %s: %v", action, err)
	}
	return n
}

func (f *securityFixture) auditRows(t *testing.T, action string) []domain.AuditLog {
	t.Helper()
	var rows []domain.AuditLog
	if err := f.db.Where("action = ?", action).Order("id ASC").Find(&rows).Error; err != nil {
		t.Fatalf("list audit %s: %v", action, err)
	}
	return rows
}

func (f *securityFixture) responseRows(t *testing.T, action string) []domain.SecurityResponseRecord {
	t.Helper()
	var rows []domain.SecurityResponseRecord
	if err := f.db.Where("action = ?", action).Find(&rows).Error; err != nil {
		t.Fatalf("list responses %s: %v", action, err)
	}
	return rows
}

func (f *securityFixture) eventsOfType(t *testing.T, eventType string) []domain.SecurityEvent {
	t.Helper()
	var rows []domain.SecurityEvent
	if err := f.db.Where("event_type = ?", eventType).Order("id ASC").Find(&rows).Error; err != nil {
		t.Fatalf("list events %s: %v", eventType, err)
	}
	return rows
}

func (f *securityFixture) mustRegister(t *testing.T, username, password, role string) *domain.User {
	t.Helper()
	u, err := f.auth.RegisterUser(context.Background(), username, username+"@example.com", password, role)
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return u
}
