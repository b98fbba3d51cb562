package model

import (
	"math"
	"time"
)

// PriceEntry is one normalized hourly price point. Prices are gross
// ct/kWh as returned by the API; TotalPrice is derived once at
// normalization time and entries are never mutated afterwards.
type PriceEntry struct {
	StartTime      time.Time `json:"start_time"`
	SpotPrice      float64   `json:"spot_price"`
	TaxesAndLevies float64   `json:"taxes_and_levies"`
	TotalPrice     float64   `json:"total_price"`
}

type PriceEntries []PriceEntry

// PriceSeries is the result of one successful refresh. Entries keep
// fetch order, they are not guaranteed sorted by time. The monthly fees
// are identical across a batch and lifted from the first raw entry.
type PriceSeries struct {
	Entries        PriceEntries `json:"entries"`
	MonthlyBaseFee float64      `json:"monthly_base_fee"`
	MonthlyGridFee float64      `json:"monthly_grid_fee"`
	FetchedAt      time.Time    `json:"fetched_at"`
}

// PriceSnapshot is the projection handed to the presentation layer:
// ISO start time -> EUR/kWh for every entry, plus the monthly fees.
type PriceSnapshot struct {
	AllPrices      map[string]float64 `json:"all_prices"`
	MonthlyBaseFee float64            `json:"monthly_base_fee_eur"`
	MonthlyGridFee float64            `json:"monthly_grid_fee_eur"`
	LastUpdate     time.Time          `json:"last_update_utc"`
}

// NewPriceEntry derives the total gross price from its components,
// rounded to 2 decimal places.
func NewPriceEntry(start time.Time, spot, taxesAndLevies float64) PriceEntry {
	return PriceEntry{
		StartTime:      start,
		SpotPrice:      spot,
		TaxesAndLevies: taxesAndLevies,
		TotalPrice:     Round(spot+taxesAndLevies, 2),
	}
}

// EuroPerKwh converts the entry's ct/kWh total into EUR/kWh, rounded to
// 4 decimal places.
func (e PriceEntry) EuroPerKwh() float64 {
	return Round(e.TotalPrice/100, 4)
}

// Matches reports whether the entry covers the calendar hour of t. Both
// times are compared in the entry's location.
func (e PriceEntry) Matches(t time.Time) bool {
	t = t.In(e.StartTime.Location())
	ey, em, ed := e.StartTime.Date()
	ty, tm, td := t.Date()
	return e.StartTime.Hour() == t.Hour() && ey == ty && em == tm && ed == td
}

// Round rounds v to the given number of decimal places, half away from
// zero.
func Round(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}
