package service

import (
	"context"
	"log/slog"

	"github.com/sandeepkv93/security-monitoring-service/internal/domain"
	"github.com/sandeepkv93/security-monitoring-service/internal/repository"
)

type AccessSubject struct {
	UserID uint
	Role   string
	IP     string
}

// AccessGate is the capability check applied to authenticated requests. Failures to read
// security state deny access.
type AccessGate struct {
	lockdown LockdownStateStore
	ipBlocks IPBlockStore
	flags    repository.AccountFlagsRepository
	logger   *slog.Logger
}

func NewAccessGate(lockdown LockdownStateStore, ipBlocks IPBlockStore, flags repository.AccountFlagsRepository, logger *slog.Logger) *AccessGate {
	if ipBlocks == nil {
		ipBlocks = NewNoopIPBlockStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessGate{lockdown: lockdown, ipBlocks: ipBlocks, flags: flags, logger: logger}
}

// Check returns ErrEmergencyLockdown, ErrIPBlocked, ErrAccountLocked or ErrReauthRequired,
// in that order of precedence.
func (g *AccessGate) Check(ctx context.Context, sub AccessSubject) error {
	if err := g.CheckLockdown(ctx, sub.Role); err != nil {
		return err
	}
	if err := g.CheckIP(ctx, sub.IP); err != nil {
		return err
	}
	if sub.UserID == 0 || g.flags == nil {
		return nil
	}
	flags, err := g.flags.Get(ctx, sub.UserID)
	if err != nil {
		return storageErr("access_gate.flags", err)
	}
	if flags.Locked {
		return ErrAccountLocked
	}
	if flags.ReauthRequired {
		return ErrReauthRequired
	}
	return nil
}

// CheckLockdown admits administrators during an emergency lockdown.
func (g *AccessGate) CheckLockdown(ctx context.Context, role string) error {
	if g.lockdown == nil {
		return nil
	}
	state, err := g.lockdown.Load(ctx)
	if err != nil {
		return storageErr("access_gate.lockdown", err)
	}
	if state.Active && role != domain.RoleAdmin {
		return ErrEmergencyLockdown
	}
	return nil
}

func (g *AccessGate) CheckIP(ctx context.Context, ip string) error {
	if ip == "" {
		return nil
	}
	blocked, err := g.ipBlocks.IsBlocked(ctx, ip)
	if err != nil {
		return storageErr("access_gate.ip_block", err)
	}
	if blocked {
		return ErrIPBlocked
	}
	return nil
}
