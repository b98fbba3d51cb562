package ostrom

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/anicoll/ostrom-integration/internal/pkg/config"
	"go.uber.org/zap"
)

const (
	// upstream wire format for startDate/endDate query params.
	dateFormat = "2006-01-02T15:04:05.000Z"

	// renew this long before the server-side expiry so an in-flight
	// fetch never races the token running out.
	expiryMargin = 60 * time.Second

	requestTimeout = 10 * time.Second
)

type credential struct {
	accessToken string
	expiresAt   time.Time
}

func (c credential) valid(now time.Time) bool {
	return c.accessToken != "" && now.Before(c.expiresAt)
}

// Client talks to the Ostrom API and hides the token lifecycle from
// callers. It is owned by exactly one coordinator, which serializes
// refresh cycles; the credential has no concurrent writers.
type Client struct {
	cfg    *config.OstromConfig
	client *http.Client
	logger *zap.Logger

	cred credential
	now  func() time.Time
}

func NewClient(cfg *config.OstromConfig) *Client {
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: requestTimeout},
		logger: zap.L(),
		now:    time.Now,
	}
}

// ensureValidToken renews the credential when none is held or the held
// one has passed its margin-adjusted expiry. Renewal replaces the
// credential wholesale; on auth failure nothing is stored.
func (c *Client) ensureValidToken(ctx context.Context) error {
	if c.cred.valid(c.now()) {
		return nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return &TransientError{Op: "auth", Err: err}
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return &TransientError{Op: "auth", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		// invalid_request or invalid_client, either way the
		// credentials are no good.
		return &AuthError{StatusCode: resp.StatusCode}
	default:
		return &TransientError{Op: "auth", Err: statusError(resp.StatusCode)}
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return &TransientError{Op: "auth", Err: err}
	}
	expiresIn := time.Duration(token.ExpiresIn) * time.Second
	if token.ExpiresIn == 0 {
		expiresIn = time.Hour
	}

	c.cred = credential{
		accessToken: token.AccessToken,
		expiresAt:   c.now().Add(expiresIn - expiryMargin),
	}
	c.logger.Debug("renewed access token", zap.Time("expires_at", c.cred.expiresAt))
	return nil
}

// SpotPrices fetches raw prices for [start, end) at the given
// resolution for the configured zip code, renewing the access token
// first if needed.
func (c *Client) SpotPrices(ctx context.Context, start, end time.Time, resolution Resolution) (*SpotPricesResponse, error) {
	if err := c.ensureValidToken(ctx); err != nil {
		return nil, err
	}

	u, err := url.Parse(c.cfg.APIURL + "/spot-prices")
	if err != nil {
		return nil, &TransientError{Op: "fetch", Err: err}
	}
	params := url.Values{}
	params.Set("startDate", start.UTC().Format(dateFormat))
	params.Set("endDate", end.UTC().Format(dateFormat))
	params.Set("resolution", resolution.String())
	params.Set("zip", c.cfg.ZipCode)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &TransientError{Op: "fetch", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.cred.accessToken)

	c.logger.Debug("fetching spot prices",
		zap.Time("start", start),
		zap.Time("end", end),
		zap.String("resolution", resolution.String()),
	)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransientError{Op: "fetch", Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &InvalidRequestError{Body: string(body)}
	default:
		// only the token endpoint decides auth failures; a fetch-side
		// 401 can be a server-side early invalidation and is retried.
		return nil, &TransientError{Op: "fetch", Err: statusError(resp.StatusCode)}
	}

	var prices SpotPricesResponse
	if err := json.NewDecoder(resp.Body).Decode(&prices); err != nil {
		return nil, &TransientError{Op: "fetch", Err: err}
	}
	return &prices, nil
}

type statusError int

func (s statusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", int(s), http.StatusText(int(s)))
}
