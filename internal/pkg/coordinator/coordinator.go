package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/anicoll/ostrom-integration/internal/pkg/model"
	"github.com/anicoll/ostrom-integration/internal/pkg/ostrom"
)

// lookahead balances API load against how far ahead the presentation
// layer can show prices.
const lookahead = 48 * time.Hour

// State is where the coordinator ended up after its last refresh.
type State string

func (s State) String() string {
	return string(s)
}

const (
	// StateUninitialized means no refresh has succeeded yet.
	StateUninitialized State = "uninitialized"
	// StateReady means the last refresh succeeded.
	StateReady State = "ready"
	// StateStale means the last refresh failed but an older series is
	// still being served.
	StateStale State = "stale"
	// StateAuthError means the credentials were rejected; the account
	// needs re-authentication before refreshes can succeed again.
	StateAuthError State = "auth_error"
)

type fetcher interface {
	SpotPrices(ctx context.Context, start, end time.Time, resolution ostrom.Resolution) (*ostrom.SpotPricesResponse, error)
}

// Coordinator runs one fetch-normalize-publish cycle per Refresh call
// and answers point-in-time queries over the last published series.
// Refresh cycles are serialized here; the state mutex only protects
// readers against observing a half-swapped series.
type Coordinator struct {
	client fetcher
	logger *zap.Logger
	now    func() time.Time

	// refreshMu keeps at most one refresh in flight. The cron scheduler
	// already skips overlapping ticks, but the manual refresh endpoint
	// can still race a scheduled run onto the same client.
	refreshMu sync.Mutex

	mu     sync.RWMutex
	series *model.PriceSeries
	state  State
}

// New is pure construction, no I/O happens until the first Refresh.
func New(client fetcher) *Coordinator {
	return &Coordinator{
		client: client,
		logger: zap.L(),
		now:    time.Now,
		state:  StateUninitialized,
	}
}

// Refresh runs a single refresh cycle: fetch today plus the lookahead
// window at hourly resolution, normalize, and atomically publish the
// new series. On failure the previous series is retained unchanged and
// the typed cause is wrapped in a RefreshError; retry policy belongs to
// the caller.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	start := c.windowStart()
	end := start.Add(lookahead)

	resp, err := c.client.SpotPrices(ctx, start, end, ostrom.ResolutionHour)
	if err != nil {
		return c.fail(err)
	}
	if resp == nil || len(resp.Data) == 0 {
		return c.fail(ostrom.ErrEmptyResponse)
	}

	series := c.normalize(resp.Data)
	if len(series.Entries) == 0 {
		return c.fail(ostrom.ErrEmptyResponse)
	}

	c.mu.Lock()
	c.series = series
	c.state = StateReady
	c.mu.Unlock()

	c.logger.Info("published price series",
		zap.Int("entries", len(series.Entries)),
		zap.Time("window_start", start),
		zap.Time("window_end", end),
	)
	return nil
}

// windowStart is today at local midnight, truncated to the hour.
func (c *Coordinator) windowStart() time.Time {
	now := c.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func (c *Coordinator) fail(cause error) error {
	c.mu.Lock()
	switch {
	case isAuthError(cause):
		c.state = StateAuthError
	case c.series != nil:
		c.state = StateStale
	default:
		c.state = StateUninitialized
	}
	c.mu.Unlock()
	return &ostrom.RefreshError{Cause: cause}
}

func isAuthError(err error) bool {
	var authErr *ostrom.AuthError
	return errors.As(err, &authErr)
}

// normalize lifts the monthly fees off the first raw entry (they are
// identical across a batch) and maps each raw entry to a PriceEntry.
// Malformed entries are logged and skipped individually.
func (c *Coordinator) normalize(raw []ostrom.RawSpotPrice) *model.PriceSeries {
	series := &model.PriceSeries{
		Entries:   make(model.PriceEntries, 0, len(raw)),
		FetchedAt: c.now().UTC(),
	}

	if fee, err := ostrom.Number(raw[0].GrossMonthlyOstromBaseFee); err == nil {
		series.MonthlyBaseFee = fee
	}
	if fee, err := ostrom.Number(raw[0].GrossMonthlyGridFees); err == nil {
		series.MonthlyGridFee = fee
	}

	for _, entry := range raw {
		parsed, err := parseEntry(entry)
		if err != nil {
			c.logger.Warn("skipping malformed price entry",
				zap.String("date", entry.Date),
				zap.Error(err),
			)
			continue
		}
		series.Entries = append(series.Entries, parsed)
	}
	return series
}

func parseEntry(raw ostrom.RawSpotPrice) (model.PriceEntry, error) {
	start, err := time.Parse(time.RFC3339, raw.Date)
	if err != nil {
		return model.PriceEntry{}, err
	}
	spot, err := ostrom.Number(raw.GrossKwhPrice)
	if err != nil {
		return model.PriceEntry{}, err
	}
	taxes, err := ostrom.Number(raw.GrossKwhTaxAndLevies)
	if err != nil {
		return model.PriceEntry{}, err
	}
	return model.NewPriceEntry(start, spot, taxes), nil
}

// CurrentPriceAt returns the EUR/kWh price for the entry covering t's
// calendar hour. The second return is false when no series has been
// published or no entry matches; callers must treat that as unknown,
// not zero. Duplicate hours should not occur upstream; first match in
// fetch order wins.
func (c *Coordinator) CurrentPriceAt(t time.Time) (float64, bool) {
	c.mu.RLock()
	series := c.series
	c.mu.RUnlock()

	if series == nil {
		return 0, false
	}
	entry, found := lo.Find(series.Entries, func(e model.PriceEntry) bool {
		return e.Matches(t)
	})
	if !found {
		return 0, false
	}
	return entry.EuroPerKwh(), true
}

// Snapshot projects the held series into the attribute bag consumed by
// the presentation layer. It is recomputed on every call and never
// cached, so two calls without an intervening refresh are identical.
func (c *Coordinator) Snapshot() (*model.PriceSnapshot, bool) {
	c.mu.RLock()
	series := c.series
	c.mu.RUnlock()

	if series == nil {
		return nil, false
	}
	return &model.PriceSnapshot{
		AllPrices: lo.SliceToMap(series.Entries, func(e model.PriceEntry) (string, float64) {
			return e.StartTime.Format(time.RFC3339), e.EuroPerKwh()
		}),
		MonthlyBaseFee: series.MonthlyBaseFee,
		MonthlyGridFee: series.MonthlyGridFee,
		LastUpdate:     series.FetchedAt,
	}, true
}

// State reports where the last refresh left the coordinator.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}
