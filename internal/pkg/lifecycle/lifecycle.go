package lifecycle

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/anicoll/ostrom-integration/internal/pkg/config"
	"github.com/anicoll/ostrom-integration/internal/pkg/coordinator"
	"github.com/anicoll/ostrom-integration/internal/pkg/model"
	"github.com/anicoll/ostrom-integration/internal/pkg/ostrom"
	"github.com/anicoll/ostrom-integration/internal/pkg/publisher"
	"github.com/anicoll/ostrom-integration/internal/pkg/registry"
	"github.com/anicoll/ostrom-integration/internal/pkg/sensor"
)

// ConsumptionTopic carries externally metered consumption readings in
// kWh into the cost-projection reader.
const ConsumptionTopic = "consumption/total"

// Manager creates and destroys the per-account coordinator stack. The
// registry is injected and shared read-only with the HTTP server.
type Manager struct {
	logger *zap.Logger
	reg    *registry.Registry
	pub    *publisher.Publisher
	broker *publisher.Broker
}

func NewManager(reg *registry.Registry, pub *publisher.Publisher, broker *publisher.Broker) *Manager {
	return &Manager{
		logger: zap.L(),
		reg:    reg,
		pub:    pub,
		broker: broker,
	}
}

// Setup constructs the client and coordinator for one account, runs the
// first refresh and registers the account's sensors. A failing first
// refresh aborts setup; on an auth failure the caller must send the
// user back through re-authentication rather than retry.
func (m *Manager) Setup(ctx context.Context, ocfg *config.OstromConfig) (*registry.Account, error) {
	client := ostrom.NewClient(ocfg)
	coord := coordinator.New(client)

	if err := coord.Refresh(ctx); err != nil {
		var authErr *ostrom.AuthError
		if errors.As(err, &authErr) {
			m.logger.Warn("authentication failed during setup, re-auth required", zap.Error(err))
		}
		return nil, err
	}

	device := &model.Device{
		ID:      ocfg.ClientID,
		Name:    "Ostrom " + ocfg.ZipCode,
		ZipCode: ocfg.ZipCode,
	}
	if err := m.pub.RegisterDevice(device); err != nil {
		return nil, err
	}

	costReader := sensor.NewCostProjectionReader(coord, m.broker, ConsumptionTopic)
	account := &registry.Account{
		Device:      device,
		Coordinator: coord,
		Readers: []sensor.Reader{
			sensor.NewCurrentPriceReader(coord),
			costReader,
		},
		Close: costReader.Close,
	}
	m.reg.Put(device.ID, account)
	m.logger.Info("account ready", zap.String("account", device.ID), zap.String("zip", device.ZipCode))

	if err := m.publishStates(ctx, account); err != nil {
		m.logger.Error("failed to publish initial states", zap.Error(err))
	}
	return account, nil
}

// Teardown removes the account and releases its subscriptions.
func (m *Manager) Teardown(id string) {
	account, ok := m.reg.Delete(id)
	if !ok {
		return
	}
	if account.Close != nil {
		account.Close()
	}
	m.logger.Info("account removed", zap.String("account", id))
}

// RefreshAccount runs one scheduled refresh cycle for the account and
// republishes its sensor states. A failed refresh keeps the previous
// series serving; an auth failure additionally flags the account for
// re-authentication.
func (m *Manager) RefreshAccount(ctx context.Context, id string) error {
	account, ok := m.reg.Get(id)
	if !ok {
		return errors.New("unknown account: " + id)
	}

	if err := account.Coordinator.Refresh(ctx); err != nil {
		var authErr *ostrom.AuthError
		if errors.As(err, &authErr) {
			m.logger.Warn("authentication failed, account needs re-auth",
				zap.String("account", id),
				zap.Error(err),
			)
		} else {
			m.logger.Error("refresh failed, serving stale prices",
				zap.String("account", id),
				zap.String("state", account.Coordinator.State().String()),
				zap.Error(err),
			)
		}
		// stale states are still worth republishing, the current hour
		// may have rolled over since the last tick.
		if pubErr := m.publishStates(ctx, account); pubErr != nil {
			m.logger.Error("failed to publish states", zap.Error(pubErr))
		}
		return err
	}

	return m.publishStates(ctx, account)
}

func (m *Manager) publishStates(ctx context.Context, account *registry.Account) error {
	states := make([]model.SensorState, 0, len(account.Readers))
	for _, reader := range account.Readers {
		states = append(states, reader.State())
	}
	return m.pub.PublishStates(ctx, account.Device, states)
}
