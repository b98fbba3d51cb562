package ostrom

import "encoding/json"

// Resolution is the requested granularity of returned price points.
type Resolution string

func (r Resolution) String() string {
	return string(r)
}

const (
	ResolutionHour Resolution = "HOUR"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// SpotPricesResponse is the raw payload of GET /spot-prices.
type SpotPricesResponse struct {
	Data []RawSpotPrice `json:"data"`
}

// RawSpotPrice is one upstream price point, untouched. Prices are gross
// ct/kWh, fees gross ct/month. The numeric fields stay json.RawMessage
// so a single non-numeric value poisons only its own entry, not the
// whole batch decode.
type RawSpotPrice struct {
	Date                      string          `json:"date"`
	GrossKwhPrice             json.RawMessage `json:"grossKwhPrice"`
	GrossKwhTaxAndLevies      json.RawMessage `json:"grossKwhTaxAndLevies"`
	GrossMonthlyOstromBaseFee json.RawMessage `json:"grossMonthlyOstromBaseFee"`
	GrossMonthlyGridFees      json.RawMessage `json:"grossMonthlyGridFees"`
}

// Number decodes a raw numeric field. The API emits plain JSON numbers;
// anything else is a malformed entry.
func Number(raw json.RawMessage) (float64, error) {
	var v float64
	err := json.Unmarshal(raw, &v)
	return v, err
}
