package publisher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/anicoll/ostrom-integration/internal/pkg/model"
)

var errAlreadyRegistered = errors.New("sink already registered")

// Sink receives sensor states for one device. MQTT and the log sink
// implement this.
type Sink interface {
	Write(ctx context.Context, device *model.Device, states []model.SensorState) error
	RegisterDevice(device *model.Device) error
}

// Publisher fans sensor states out to its registered sinks. It is
// handed around explicitly, there is no package-level registry.
type Publisher struct {
	logger *zap.Logger

	mu    sync.Mutex
	sinks map[string]Sink
	last  map[string]string
}

func New() *Publisher {
	return &Publisher{
		logger: zap.L(),
		sinks:  make(map[string]Sink),
		last:   make(map[string]string),
	}
}

func (p *Publisher) RegisterSink(name string, sink Sink) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.sinks[name]; ok {
		return errAlreadyRegistered
	}
	p.sinks[name] = sink
	return nil
}

func (p *Publisher) RegisterDevice(device *model.Device) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, sink := range p.sinks {
		if err := sink.RegisterDevice(device); err != nil {
			p.logger.Error("failed to register device",
				zap.Error(err),
				zap.String("sink", name),
				zap.String("device", device.ID),
			)
			continue
		}
		p.logger.Debug("registered device", zap.String("device", device.ID), zap.String("sink", name))
	}
	return nil
}

// PublishStates writes the given states to every sink, skipping values
// that have not changed since the last publish. A failing sink is
// logged and does not block the others.
func (p *Publisher) PublishStates(ctx context.Context, device *model.Device, states []model.SensorState) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	changed := make([]model.SensorState, 0, len(states))
	for _, state := range states {
		if !p.shouldUpdate(device.ID, state) {
			continue
		}
		changed = append(changed, state)
	}
	if len(changed) == 0 {
		return nil
	}

	for name, sink := range p.sinks {
		if err := sink.Write(ctx, device, changed); err != nil {
			p.logger.Error("failed to publish states", zap.Error(err), zap.String("sink", name))
			continue
		}
		p.logger.Debug("updated sensors", zap.Int("count", len(changed)), zap.String("sink", name))
	}
	return nil
}

func (p *Publisher) shouldUpdate(deviceID string, state model.SensorState) bool {
	key := fmt.Sprintf("%s_%s", deviceID, state.Slug)
	value := "unknown"
	if state.Value != nil {
		value = strconv.FormatFloat(*state.Value, 'f', -1, 64)
	}
	if old, exists := p.last[key]; exists && old == value {
		return false
	}
	p.last[key] = value
	return true
}
