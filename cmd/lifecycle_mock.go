package cmd

import (
	"context"

	"github.com/anicoll/ostrom-integration/internal/pkg/config"
	"github.com/anicoll/ostrom-integration/internal/pkg/registry"
)

// MockLifecycleManager is a mock implementation of LifecycleManager for
// tests.
type MockLifecycleManager struct {
	SetupFunc          func(ctx context.Context, ocfg *config.OstromConfig) (*registry.Account, error)
	TeardownFunc       func(id string)
	RefreshAccountFunc func(ctx context.Context, id string) error
}

func (m *MockLifecycleManager) Setup(ctx context.Context, ocfg *config.OstromConfig) (*registry.Account, error) {
	if m.SetupFunc != nil {
		return m.SetupFunc(ctx, ocfg)
	}
	return &registry.Account{}, nil
}

func (m *MockLifecycleManager) Teardown(id string) {
	if m.TeardownFunc != nil {
		m.TeardownFunc(id)
	}
}

func (m *MockLifecycleManager) RefreshAccount(ctx context.Context, id string) error {
	if m.RefreshAccountFunc != nil {
		return m.RefreshAccountFunc(ctx, id)
	}
	return nil
}
