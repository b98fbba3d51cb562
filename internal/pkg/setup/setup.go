package setup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/ostrom-integration/internal/pkg/config"
	"github.com/anicoll/ostrom-integration/internal/pkg/ostrom"
)

// Validation errors are stable keys the frontend can translate.
var (
	ErrInvalidAuth   = errors.New("invalid_auth")
	ErrInvalidZip    = errors.New("invalid_zip")
	ErrCannotConnect = errors.New("cannot_connect")
	ErrUnknown       = errors.New("unknown")
)

// Validate checks user-supplied credentials and zip code by fetching a
// single hour of prices. It is used both for initial setup and for the
// re-auth flow after a steady-state auth failure.
func Validate(ctx context.Context, ocfg *config.OstromConfig) error {
	client := ostrom.NewClient(ocfg)

	start := time.Now().Truncate(time.Hour)
	_, err := client.SpotPrices(ctx, start, start.Add(time.Hour), ostrom.ResolutionHour)
	if err == nil {
		return nil
	}

	var (
		authErr      *ostrom.AuthError
		requestErr   *ostrom.InvalidRequestError
		transientErr *ostrom.TransientError
	)
	switch {
	case errors.As(err, &authErr):
		return fmt.Errorf("%w: %w", ErrInvalidAuth, err)
	case errors.As(err, &requestErr):
		return fmt.Errorf("%w: %w", ErrInvalidZip, err)
	case errors.As(err, &transientErr):
		return fmt.Errorf("%w: %w", ErrCannotConnect, err)
	default:
		zap.L().Error("unexpected error during validation", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrUnknown, err)
	}
}
