package user

import (
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	applog "github.com/digitalimmortality/backend/internal/platform/logging"
)

// rateLimit is an operation middleware applying the router's Limiter per
// client IP. Limiter failures let the request through.
func (rt *Router) rateLimit(api huma.API) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if rt.deps.Limiter == nil {
			next(ctx)
			return
		}

		decision, err := rt.deps.Limiter.Allow(ctx.Context(), clientKey(ctx.RemoteAddr()))
		if err != nil {
			applog.LogWarn(ctx.Context(), "rate limiter failed, allowing request", zap.Error(err))
			next(ctx)
			return
		}

		ctx.SetHeader("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		ctx.SetHeader("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if decision.Allowed {
			next(ctx)
			return
		}

		retryAfter := max(int(math.Ceil(decision.RetryAfter.Seconds())), 1)
		ctx.SetHeader("Retry-After", strconv.Itoa(retryAfter))
		rt.deps.Metrics.RateLimited(ctx.Operation().Path)
		applog.LogWarn(ctx.Context(), "rate limit exceeded",
			zap.String("operation", ctx.Operation().OperationID),
			zap.Int("retryAfter", retryAfter))
		_ = huma.WriteErr(api, ctx, http.StatusTooManyRequests, "rate limit exceeded")
	}
}

func clientKey(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
