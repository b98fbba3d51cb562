package coordinator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anicoll/ostrom-integration/internal/pkg/config"
	"github.com/anicoll/ostrom-integration/internal/pkg/ostrom"
)

type fakeFetcher struct {
	calls     int
	lastStart time.Time
	lastEnd   time.Time

	resp *ostrom.SpotPricesResponse
	err  error
}

func (f *fakeFetcher) SpotPrices(_ context.Context, start, end time.Time, _ ostrom.Resolution) (*ostrom.SpotPricesResponse, error) {
	f.calls++
	f.lastStart = start
	f.lastEnd = end
	return f.resp, f.err
}

func num(v any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}

func rawPrice(date string, spot, taxes float64) ostrom.RawSpotPrice {
	return ostrom.RawSpotPrice{
		Date:                      date,
		GrossKwhPrice:             num(spot),
		GrossKwhTaxAndLevies:      num(taxes),
		GrossMonthlyOstromBaseFee: num(500),
		GrossMonthlyGridFees:      num(300),
	}
}

func respOf(prices ...ostrom.RawSpotPrice) *ostrom.SpotPricesResponse {
	return &ostrom.SpotPricesResponse{Data: prices}
}

func TestRefresh_WindowIsTodayPlusTwoDays(t *testing.T) {
	t.Parallel()
	fetcher := &fakeFetcher{resp: respOf(rawPrice("2024-03-01T13:00:00.000Z", 8.5, 12.5))}
	coord := New(fetcher)
	coord.now = func() time.Time {
		return time.Date(2024, 3, 1, 17, 42, 13, 0, time.UTC)
	}

	require.NoError(t, coord.Refresh(context.Background()))

	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), fetcher.lastStart)
	assert.Equal(t, time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC), fetcher.lastEnd)
	assert.Equal(t, StateReady, coord.State())
}

func TestRefresh_NormalizesTotalPrice(t *testing.T) {
	t.Parallel()
	fetcher := &fakeFetcher{resp: respOf(
		rawPrice("2024-03-01T13:00:00.000Z", 8.5, 12.5),
		rawPrice("2024-03-01T14:00:00.000Z", 10.123, 12.456),
	)}
	coord := New(fetcher)

	require.NoError(t, coord.Refresh(context.Background()))

	require.Len(t, coord.series.Entries, 2)
	assert.Equal(t, 21.0, coord.series.Entries[0].TotalPrice)
	assert.Equal(t, 22.58, coord.series.Entries[1].TotalPrice)
	assert.Equal(t, 500.0, coord.series.MonthlyBaseFee)
	assert.Equal(t, 300.0, coord.series.MonthlyGridFee)
}

func TestRefresh_SkipsMalformedEntriesIndividually(t *testing.T) {
	t.Parallel()
	prices := make([]ostrom.RawSpotPrice, 0, 10)
	for hour := range 10 {
		date := time.Date(2024, 3, 1, hour, 0, 0, 0, time.UTC).Format("2006-01-02T15:04:05.000Z")
		prices = append(prices, rawPrice(date, 8.5, 12.5))
	}
	prices[4].GrossKwhPrice = num("not-a-number")

	fetcher := &fakeFetcher{resp: respOf(prices...)}
	coord := New(fetcher)

	require.NoError(t, coord.Refresh(context.Background()))
	assert.Len(t, coord.series.Entries, 9, "one bad entry must not fail the batch")
}

func TestRefresh_SkipsUnparseableTimestamps(t *testing.T) {
	t.Parallel()
	fetcher := &fakeFetcher{resp: respOf(
		rawPrice("yesterday-ish", 8.5, 12.5),
		rawPrice("2024-03-01T13:00:00.000Z", 8.5, 12.5),
	)}
	coord := New(fetcher)

	require.NoError(t, coord.Refresh(context.Background()))
	assert.Len(t, coord.series.Entries, 1)
}

func TestRefresh_EmptyResponse(t *testing.T) {
	t.Parallel()
	fetcher := &fakeFetcher{resp: respOf()}
	coord := New(fetcher)

	err := coord.Refresh(context.Background())
	var refreshErr *ostrom.RefreshError
	require.ErrorAs(t, err, &refreshErr)
	assert.ErrorIs(t, err, ostrom.ErrEmptyResponse)
	assert.Equal(t, StateUninitialized, coord.State())
}

func TestRefresh_FailureRetainsPriorSeries(t *testing.T) {
	t.Parallel()
	fetcher := &fakeFetcher{resp: respOf(rawPrice("2024-03-01T13:00:00.000Z", 8.5, 12.5))}
	coord := New(fetcher)
	require.NoError(t, coord.Refresh(context.Background()))

	before, ok := coord.Snapshot()
	require.True(t, ok)

	fetcher.resp = nil
	fetcher.err = &ostrom.TransientError{Op: "fetch", Err: context.DeadlineExceeded}
	require.Error(t, coord.Refresh(context.Background()))
	assert.Equal(t, StateStale, coord.State())

	after, ok := coord.Snapshot()
	require.True(t, ok)
	assert.Equal(t, before, after, "a failed refresh must not erase prior data")

	price, found := coord.CurrentPriceAt(time.Date(2024, 3, 1, 13, 30, 0, 0, time.UTC))
	assert.True(t, found)
	assert.Equal(t, 0.21, price)
}

func TestRefresh_AuthFailure(t *testing.T) {
	t.Parallel()
	fetcher := &fakeFetcher{err: &ostrom.AuthError{StatusCode: 401}}
	coord := New(fetcher)

	err := coord.Refresh(context.Background())
	var authErr *ostrom.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, StateAuthError, coord.State())
}

func TestCurrentPriceAt(t *testing.T) {
	t.Parallel()
	fetcher := &fakeFetcher{resp: respOf(rawPrice("2024-03-01T13:00:00.000Z", 8.5, 12.5))}
	coord := New(fetcher)
	require.NoError(t, coord.Refresh(context.Background()))

	price, found := coord.CurrentPriceAt(time.Date(2024, 3, 1, 13, 30, 0, 0, time.UTC))
	require.True(t, found)
	assert.Equal(t, 0.21, price)

	// same hour-of-day on another date must not match
	_, found = coord.CurrentPriceAt(time.Date(2024, 3, 2, 13, 30, 0, 0, time.UTC))
	assert.False(t, found)

	// missing hour is unknown, not zero
	_, found = coord.CurrentPriceAt(time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC))
	assert.False(t, found)
}

func TestCurrentPriceAt_NoSeriesPublished(t *testing.T) {
	t.Parallel()
	coord := New(&fakeFetcher{})
	_, found := coord.CurrentPriceAt(time.Now())
	assert.False(t, found)
}

func TestCurrentPriceAt_DuplicateHourFirstMatchWins(t *testing.T) {
	t.Parallel()
	fetcher := &fakeFetcher{resp: respOf(
		rawPrice("2024-03-01T13:00:00.000Z", 8.5, 12.5),
		rawPrice("2024-03-01T13:00:00.000Z", 99.0, 1.0),
	)}
	coord := New(fetcher)
	require.NoError(t, coord.Refresh(context.Background()))

	price, found := coord.CurrentPriceAt(time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC))
	require.True(t, found)
	assert.Equal(t, 0.21, price)
}

func TestSnapshot_Idempotent(t *testing.T) {
	t.Parallel()
	fetcher := &fakeFetcher{resp: respOf(
		rawPrice("2024-03-01T13:00:00.000Z", 8.5, 12.5),
		rawPrice("2024-03-01T14:00:00.000Z", 10.0, 10.5),
	)}
	coord := New(fetcher)
	require.NoError(t, coord.Refresh(context.Background()))

	first, ok := coord.Snapshot()
	require.True(t, ok)
	second, ok := coord.Snapshot()
	require.True(t, ok)
	assert.Equal(t, first, second)

	assert.Equal(t, 0.21, first.AllPrices["2024-03-01T13:00:00Z"])
	assert.Equal(t, 0.205, first.AllPrices["2024-03-01T14:00:00Z"])
	assert.Equal(t, 500.0, first.MonthlyBaseFee)
	assert.Equal(t, 300.0, first.MonthlyGridFee)
}

type countingFetcher struct {
	resp *ostrom.SpotPricesResponse

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *countingFetcher) SpotPrices(_ context.Context, _, _ time.Time, _ ostrom.Resolution) (*ostrom.SpotPricesResponse, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxInFlight.Load()
		if n <= seen || f.maxInFlight.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return f.resp, nil
}

func TestRefresh_OverlappingCallsAreSerialized(t *testing.T) {
	t.Parallel()
	fetcher := &countingFetcher{resp: respOf(rawPrice("2024-03-01T13:00:00.000Z", 8.5, 12.5))}
	coord := New(fetcher)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, coord.Refresh(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fetcher.maxInFlight.Load(), "at most one refresh may be in flight")
	assert.Equal(t, StateReady, coord.State())
}

// A manual refresh racing a scheduled one must not trample the client's
// credential: serialized cycles reuse the one valid token.
func TestRefresh_ConcurrentRefreshesShareOneToken(t *testing.T) {
	t.Parallel()
	var authCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		authCalls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "t", "expires_in": 3600})
	})
	mux.HandleFunc("/spot-prices", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ostrom.SpotPricesResponse{
			Data: []ostrom.RawSpotPrice{rawPrice("2024-03-01T13:00:00.000Z", 8.5, 12.5)},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	coord := New(ostrom.NewClient(&config.OstromConfig{
		ClientID:     "id",
		ClientSecret: "secret",
		ZipCode:      "33378",
		AuthURL:      srv.URL + "/oauth2/token",
		APIURL:       srv.URL,
	}))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, coord.Refresh(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), authCalls.Load(), "a valid token must be reused across refreshes")
	assert.Equal(t, StateReady, coord.State())
}

func TestSnapshot_NoSeries(t *testing.T) {
	t.Parallel()
	coord := New(&fakeFetcher{})
	_, ok := coord.Snapshot()
	assert.False(t, ok)
}
