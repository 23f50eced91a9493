package user

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	chatsvc "github.com/digitalimmortality/backend/internal/service/chat"
	personasvc "github.com/digitalimmortality/backend/internal/service/persona"
)

func mapServiceError(err error) error {
	var upstreamErr *chatsvc.UpstreamError
	if errors.As(err, &upstreamErr) {
		switch upstreamErr.Kind {
		case chatsvc.UpstreamErrorKindRateLimited:
			rateLimitErr := huma.Error429TooManyRequests("model provider rate limit exceeded")
			if upstreamErr.RetryAfter != "" {
				return huma.ErrorWithHeaders(rateLimitErr, http.Header{"Retry-After": {upstreamErr.RetryAfter}})
			}
			return rateLimitErr
		case chatsvc.UpstreamErrorKindUnavailable:
			return huma.Error503ServiceUnavailable("model provider unavailable")
		case chatsvc.UpstreamErrorKindTimeout:
			return huma.Error504GatewayTimeout("model provider timed out")
		default:
			return huma.Error502BadGateway("model provider error")
		}
	}

	switch {
	case errors.Is(err, personasvc.ErrNotFound):
		return huma.Error404NotFound("persona not found")
	case errors.Is(err, chatsvc.ErrRateLimited):
		return huma.Error429TooManyRequests("model provider rate limit exceeded")
	case errors.Is(err, chatsvc.ErrUnavailable):
		return huma.Error503ServiceUnavailable("model provider unavailable")
	case errors.Is(err, chatsvc.ErrUpstream):
		return huma.Error502BadGateway("model provider error")
	case errors.Is(err, chatsvc.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return huma.Error504GatewayTimeout("model provider timed out")
	default:
		return huma.Error500InternalServerError("internal server error")
	}
}

// errorEvent renders a service error as the terminal event of a stream.
func errorEvent(err error) ErrorEvent {
	mapped := mapServiceError(err)
	ev := ErrorEvent{Status: http.StatusInternalServerError, Detail: mapped.Error()}
	var se huma.StatusError
	if errors.As(mapped, &se) {
		ev.Status = se.GetStatus()
	}
	return ev
}

// outcome is the metrics and audit label for a chat result.
func outcome(err error) string {
	var upstreamErr *chatsvc.UpstreamError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, personasvc.ErrNotFound):
		return "not_found"
	case errors.As(err, &upstreamErr):
		return string(upstreamErr.Kind)
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, chatsvc.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal_error"
	}
}
