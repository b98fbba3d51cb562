package cmd

import (
	"context"

	"github.com/anicoll/ostrom-integration/internal/pkg/config"
	"github.com/anicoll/ostrom-integration/internal/pkg/registry"
)

// LifecycleManager is the interface cmd.run expects from the account
// lifecycle manager.
type LifecycleManager interface {
	Setup(ctx context.Context, ocfg *config.OstromConfig) (*registry.Account, error)
	Teardown(id string)
	RefreshAccount(ctx context.Context, id string) error
}
