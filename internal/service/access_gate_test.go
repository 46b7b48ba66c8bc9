package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sandeepkv93/security-monitoring-service/internal/domain"
)

func TestAccessGatePrecedence(t *testing.T) {
	cases := []struct {
		name     string
		lockdown bool
		blockIP  bool
		locked   bool
		reauth   bool
		role     string
		want     error
	}{
		{name: "clear", role: domain.RoleUser},
		{name: "lockdown first", lockdown: true, blockIP: true, locked: true, role: domain.RoleUser, want: ErrEmergencyLockdown},
		{name: "admin passes lockdown", lockdown: true, role: domain.RoleAdmin},
		{name: "admin still ip checked", lockdown: true, blockIP: true, role: domain.RoleAdmin, want: ErrIPBlocked},
		{name: "ip before account", blockIP: true, locked: true, role: domain.RoleUser, want: ErrIPBlocked},
		{name: "locked before reauth", locked: true, reauth: true, role: domain.RoleUser, want: ErrAccountLocked},
		{name: "reauth", reauth: true, role: domain.RoleUser, want: ErrReauthRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newSecurityFixture(t)
			ctx := context.Background()
			const uid = uint(21)
			if tc.lockdown {
				if _, err := f.lockdown.Activate(ctx, "incident", "admin", f.clock.Now()); err != nil {
					t.Fatalf("activate: %v", err)
				}
			}
			if tc.blockIP {
				if err := f.ipBlocks.Block(ctx, "10.9.9.9", "test", time.Hour); err != nil {
					t.Fatalf("block: %v", err)
				}
			}
			if tc.locked {
				if err := f.flags.SetLocked(ctx, uid, "test", f.clock.Now()); err != nil {
					t.Fatalf("lock: %v", err)
				}
			}
			if tc.reauth {
				if err := f.flags.SetReauthRequired(ctx, uid, true); err != nil {
					t.Fatalf("reauth: %v", err)
				}
			}
			err := f.gate.Check(ctx, AccessSubject{UserID: uid, Role: tc.role, IP: "10.9.9.9"})
			if tc.want == nil {
				if err != nil {
					t.Fatalf("expected access, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

type brokenLockdownState struct{}

func (brokenLockdownState) Load(context.Context) (domain.LockdownState, error) {
	return domain.LockdownState{}, errors.New("redis unavailable")
}

func (brokenLockdownState) Activate(context.Context, string, string, time.Time) (bool, error) {
	return false, errors.New("redis unavailable")
}

func (brokenLockdownState) Deactivate(context.Context) (bool, error) {
	return false, errors.New("redis unavailable")
}

func TestAccessGateDeniesOnStateFailure(t *testing.T) {
	gate := NewAccessGate(brokenLockdownState{}, nil, nil, discardLogger())
	if err := gate.Check(context.Background(), AccessSubject{UserID: 1, Role: domain.RoleAdmin}); !errors.Is(err, ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}
