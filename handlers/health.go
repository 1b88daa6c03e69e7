package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"storefront-payment/models"
	"storefront-payment/utils"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context) error

func (fn PingerFunc) Ping(ctx context.Context) error { return fn(ctx) }

type HealthHandler struct {
	storefront Pinger
	redis      Pinger
	startTime  time.Time
}

// NewHealthHandler accepts a nil redis when the service runs without it.
func NewHealthHandler(storefront, redis Pinger) *HealthHandler {
	return &HealthHandler{storefront: storefront, redis: redis, startTime: time.Now()}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	health := models.HealthStatus{
		Status:     "ok",
		Time:       time.Now().Format(time.RFC3339),
		Storefront: "connected",
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		GoVersion:  runtime.Version(),
	}

	sfCtx, sfCancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer sfCancel()
	if err := h.storefront.Ping(sfCtx); err != nil {
		health.Status = "degraded"
		health.Storefront = "error"
	}

	if h.redis != nil {
		health.Redis = "connected"
		redisCtx, redisCancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer redisCancel()
		if err := h.redis.Ping(redisCtx); err != nil {
			health.Status = "degraded"
			health.Redis = "error"
		}
	}

	utils.SendSuccessResponse(w, models.APIResponse{Status: "success", Data: health})
}
