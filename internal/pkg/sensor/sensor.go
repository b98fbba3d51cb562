package sensor

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/ostrom-integration/internal/pkg/model"
	"github.com/anicoll/ostrom-integration/internal/pkg/publisher"
)

// Coordinator is the slice of the refresh coordinator the readers need.
type Coordinator interface {
	CurrentPriceAt(t time.Time) (float64, bool)
	Snapshot() (*model.PriceSnapshot, bool)
}

// Reader turns coordinator state into one publishable sensor value.
// There are exactly two variants: the current-price reader and the
// cost-projection reader.
type Reader interface {
	State() model.SensorState
}

// CurrentPriceReader exposes the price for the current hour in
// EUR/kWh. When the series has no entry for the hour the value is nil,
// which downstream renders as unknown rather than zero.
type CurrentPriceReader struct {
	coord  Coordinator
	logger *zap.Logger
	now    func() time.Time
}

func NewCurrentPriceReader(coord Coordinator) *CurrentPriceReader {
	return &CurrentPriceReader{
		coord:  coord,
		logger: zap.L(),
		now:    time.Now,
	}
}

func (r *CurrentPriceReader) State() model.SensorState {
	state := model.SensorState{
		Name: "Current Price",
		Slug: "current_price",
		Unit: "EUR/kWh",
	}
	price, ok := r.coord.CurrentPriceAt(r.now())
	if !ok {
		r.logger.Warn("no spot price for current hour", zap.Time("now", r.now()))
		return state
	}
	state.Value = &price
	return state
}

// Attributes returns the full price map and fees alongside the state.
func (r *CurrentPriceReader) Attributes() (*model.PriceSnapshot, bool) {
	return r.coord.Snapshot()
}

// CostProjectionReader multiplies the current price by an externally
// supplied consumption reading. It only consumes readings; any
// aggregation or metering happens outside this process.
type CostProjectionReader struct {
	coord  Coordinator
	logger *zap.Logger
	now    func() time.Time
	cancel func()

	mu          sync.Mutex
	consumption float64
	seen        bool
}

// NewCostProjectionReader subscribes to consumption readings on topic
// and keeps the latest one. Close releases the subscription.
func NewCostProjectionReader(coord Coordinator, broker *publisher.Broker, topic string) *CostProjectionReader {
	readings, cancel := broker.Subscribe(topic)
	r := &CostProjectionReader{
		coord:  coord,
		logger: zap.L(),
		now:    time.Now,
		cancel: cancel,
	}
	go func() {
		for reading := range readings {
			r.mu.Lock()
			r.consumption = reading.Value
			r.seen = true
			r.mu.Unlock()
		}
	}()
	return r
}

func (r *CostProjectionReader) State() model.SensorState {
	state := model.SensorState{
		Name: "Hourly Cost",
		Slug: "hourly_cost",
		Unit: "EUR",
	}

	r.mu.Lock()
	consumption, seen := r.consumption, r.seen
	r.mu.Unlock()
	if !seen {
		return state
	}

	price, ok := r.coord.CurrentPriceAt(r.now())
	if !ok {
		return state
	}
	cost := model.Round(consumption*price, 2)
	state.Value = &cost
	return state
}

func (r *CostProjectionReader) Close() {
	r.cancel()
}
