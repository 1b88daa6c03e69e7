package storefront

import (
	"context"
	"time"
)

// Intervals the storefront widgets refresh at.
const (
	AdsRefreshInterval     = 30 * time.Second
	WeatherRefreshInterval = 30 * time.Minute
)

// Refresh calls fn immediately and then every interval until ctx is done.
// Each call gets ctx so an in-flight request is cancelled with it.
func Refresh(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	if ctx.Err() != nil {
		return
	}
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			fn(ctx)
		}
	}
}
