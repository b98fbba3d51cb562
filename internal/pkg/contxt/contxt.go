package contxt

import (
	"context"
	"os"
	"time"
)

// NewContext returns a context that expires after timeout, used to
// bound refresh cycles and publish calls. Set CONTEXT_TEST to get an
// unbounded context in tests.
func NewContext(timeout time.Duration) context.Context {
	if os.Getenv("CONTEXT_TEST") != "" {
		return context.Background()
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ctx
}
