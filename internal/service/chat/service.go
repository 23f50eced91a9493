package chat

import (
	"context"
	"errors"
	"fmt"
)

// Service errors
var (
	ErrUpstream    = errors.New("chat upstream error")
	ErrUnavailable = errors.New("chat upstream unavailable")
	ErrRateLimited = errors.New("chat upstream rate limited")
	ErrTimeout     = errors.New("chat upstream timed out")
)

// UpstreamErrorKind classifies model provider failures.
type UpstreamErrorKind string

const (
	UpstreamErrorKindUnavailable UpstreamErrorKind = "unavailable"
	UpstreamErrorKindRateLimited UpstreamErrorKind = "rate_limited"
	UpstreamErrorKindUpstream    UpstreamErrorKind = "upstream"
	UpstreamErrorKindTimeout     UpstreamErrorKind = "timeout"
)

// UpstreamError carries the provider response metadata needed for mapping
// to HTTP. Status is zero when no response was received.
type UpstreamError struct {
	Kind       UpstreamErrorKind
	Status     int
	RetryAfter string
	cause      error
}

func (e *UpstreamError) Error() string {
	if e == nil {
		return "chat upstream error"
	}
	if e.cause == nil {
		return fmt.Sprintf("chat upstream error (kind=%s status=%d)", e.Kind, e.Status)
	}
	return fmt.Sprintf("chat upstream error (kind=%s status=%d): %v", e.Kind, e.Status, e.cause)
}

// Unwrap enables errors.Is against the sentinel errors.
func (e *UpstreamError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a single exchange with a persona. History holds earlier turns
// kept by the client, oldest first.
type Request struct {
	SystemPrompt string
	History      []Message
	Message      string
}

// Messages assembles the provider message list: the persona prompt, the
// prior turns, then the new user message.
func (r Request) Messages() []Message {
	out := make([]Message, 0, len(r.History)+2)
	if r.SystemPrompt != "" {
		out = append(out, Message{Role: RoleSystem, Content: r.SystemPrompt})
	}
	out = append(out, r.History...)
	return append(out, Message{Role: RoleUser, Content: r.Message})
}

// Reply is a finished completion.
type Reply struct {
	Text         string
	Model        string
	FinishReason string
}

// Delta is one streamed fragment of a reply.
type Delta struct {
	Text string
}

// Service produces persona replies.
//
// Stream calls emit for each fragment in order and returns the assembled
// reply. An error returned by emit aborts the stream and is returned as is.
type Service interface {
	Complete(ctx context.Context, req Request) (*Reply, error)
	Stream(ctx context.Context, req Request, emit func(Delta) error) (*Reply, error)
}
