package user

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"go.uber.org/zap"

	applog "github.com/digitalimmortality/backend/internal/platform/logging"
	"github.com/digitalimmortality/backend/internal/platform/timeutil"
	chatsvc "github.com/digitalimmortality/backend/internal/service/chat"
)

const (
	modeSync   = "sync"
	modeStream = "stream"
)

func (rt *Router) registerChat(api huma.API) {
	limited := huma.Middlewares{rt.rateLimit(api)}

	huma.Register(api, huma.Operation{
		OperationID: "chat",
		Method:      http.MethodPost,
		Path:        BasePath + "/chat",
		Summary:     "Talk to a persona",
		Description: "Sends a message, with optional earlier turns, to a persona and returns its full reply. The server keeps no conversation state.",
		Tags:        []string{tagChat},
		Errors: []int{
			http.StatusNotFound,
			http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
		Middlewares: limited,
	}, func(ctx context.Context, input *ChatInput) (*ChatOutput, error) {
		req, err := rt.chatRequest(ctx, input.Body)
		if err != nil {
			rt.finish(ctx, input.Body.PersonaID, modeSync, "", err)
			return nil, mapServiceError(err)
		}

		reply, err := rt.deps.Chat.Complete(ctx, req)
		if err != nil {
			rt.finish(ctx, input.Body.PersonaID, modeSync, "", err)
			return nil, mapServiceError(err)
		}
		rt.finish(ctx, input.Body.PersonaID, modeSync, reply.Model, nil)

		return &ChatOutput{Body: ChatReply{
			PersonaID: input.Body.PersonaID,
			Reply:     reply.Text,
			Model:     reply.Model,
			CreatedAt: timeutil.Now(),
		}}, nil
	})

	sse.Register(api, huma.Operation{
		OperationID: "chat-stream",
		Method:      http.MethodPost,
		Path:        BasePath + "/chat/stream",
		Summary:     "Talk to a persona (streaming)",
		Description: "Like chat, but streams the reply as Server-Sent Events: `delta` events carry text fragments, " +
			"then a single `done` event, or an `error` event if the exchange fails after the stream opened.",
		Tags:        []string{tagChat},
		Errors:      []int{http.StatusTooManyRequests},
		Middlewares: limited,
	}, map[string]any{
		"delta": DeltaEvent{},
		"done":  DoneEvent{},
		"error": ErrorEvent{},
	}, func(ctx context.Context, input *ChatInput, send sse.Sender) {
		req, err := rt.chatRequest(ctx, input.Body)
		if err != nil {
			rt.finish(ctx, input.Body.PersonaID, modeStream, "", err)
			_ = send.Data(errorEvent(err))
			return
		}

		var sendErr error
		reply, err := rt.deps.Chat.Stream(ctx, req, func(d chatsvc.Delta) error {
			sendErr = send.Data(DeltaEvent{Text: d.Text})
			return sendErr
		})
		if err != nil {
			rt.finish(ctx, input.Body.PersonaID, modeStream, "", err)
			if sendErr == nil && ctx.Err() == nil {
				_ = send.Data(errorEvent(err))
			}
			return
		}
		rt.finish(ctx, input.Body.PersonaID, modeStream, reply.Model, nil)
		_ = send.Data(DoneEvent{Model: reply.Model, FinishReason: reply.FinishReason})
	})
}

// chatRequest resolves the persona and builds the service request.
func (rt *Router) chatRequest(ctx context.Context, body ChatRequest) (chatsvc.Request, error) {
	p, err := rt.deps.Personas.Get(ctx, body.PersonaID)
	if err != nil {
		return chatsvc.Request{}, err
	}
	history := make([]chatsvc.Message, len(body.History))
	for i, t := range body.History {
		history[i] = chatsvc.Message{Role: chatsvc.Role(t.Role), Content: t.Content}
	}
	return chatsvc.Request{
		SystemPrompt: p.SystemPrompt,
		History:      history,
		Message:      body.Message,
	}, nil
}

// finish records metrics and the audit trail for one exchange.
func (rt *Router) finish(ctx context.Context, personaID, mode, model string, err error) {
	result := outcome(err)
	label := personaID
	if result == "not_found" {
		label = "unknown"
	}
	rt.deps.Metrics.ChatCompleted(label, mode, result)

	details := map[string]any{"mode": mode}
	if model != "" {
		details["model"] = model
	}
	status := "success"
	if err != nil {
		status = "failure"
		details["error"] = result
		if !errors.Is(err, context.Canceled) {
			applog.LogWarn(ctx, "chat exchange failed", zap.String("persona", personaID), zap.Error(err))
		}
	}
	applog.LogAuditEvent(ctx, applog.AuditEvent{
		Action:       "chat",
		Actor:        "anonymous",
		ResourceType: "persona",
		ResourceID:   personaID,
		Result:       status,
		Details:      details,
	})
}
