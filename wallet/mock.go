package wallet

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/vaultmesh/recovery-backend/interfaces"
)

// MockStore is a testify mock of Store for manager and client tests.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) SaveManifest(ctx context.Context, manifest *Manifest) error {
	args := m.Called(ctx, manifest)
	return args.Error(0)
}

func (m *MockStore) LoadManifest(ctx context.Context, walletID string) (*Manifest, error) {
	args := m.Called(ctx, walletID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Manifest), args.Error(1)
}

func (m *MockStore) SaveShares(ctx context.Context, walletID string, shares []interfaces.GuardianShare) error {
	args := m.Called(ctx, walletID, shares)
	return args.Error(0)
}

func (m *MockStore) LoadShares(ctx context.Context, walletID string) ([]interfaces.GuardianShare, error) {
	args := m.Called(ctx, walletID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]interfaces.GuardianShare), args.Error(1)
}

func (m *MockStore) SaveAttempt(ctx context.Context, walletID string, attempt *interfaces.RecoveryAttempt) error {
	args := m.Called(ctx, walletID, attempt)
	return args.Error(0)
}

func (m *MockStore) LoadAttempts(ctx context.Context, walletID string) ([]interfaces.RecoveryAttempt, error) {
	args := m.Called(ctx, walletID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]interfaces.RecoveryAttempt), args.Error(1)
}

func (m *MockStore) SaveChain(ctx context.Context, chain *interfaces.AuditLogChain) error {
	args := m.Called(ctx, chain)
	return args.Error(0)
}

func (m *MockStore) LoadChain(ctx context.Context, walletID string) (*interfaces.AuditLogChain, error) {
	args := m.Called(ctx, walletID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.AuditLogChain), args.Error(1)
}

func (m *MockStore) ListWallets(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
