package chat

import (
	"context"
	"strings"
	"sync"
)

const mockModel = "mock"

// Mock implements Service without a model provider. It answers with a fixed
// reply, or with an echo of the message when Reply is empty, and streams it
// word by word.
type Mock struct {
	Reply string
	Err   error

	mu       sync.Mutex
	requests []Request
}

// NewMock creates a mock that echoes the user message.
func NewMock() *Mock {
	return &Mock{}
}

// Requests returns the requests received so far.
func (m *Mock) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

func (m *Mock) record(req Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
}

func (m *Mock) text(req Request) string {
	if m.Reply != "" {
		return m.Reply
	}
	return "Ach so! You asked: " + req.Message
}

func (m *Mock) Complete(ctx context.Context, req Request) (*Reply, error) {
	m.record(req)
	if m.Err != nil {
		return nil, m.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Reply{Text: m.text(req), Model: mockModel, FinishReason: "stop"}, nil
}

func (m *Mock) Stream(ctx context.Context, req Request, emit func(Delta) error) (*Reply, error) {
	m.record(req)
	if m.Err != nil {
		return nil, m.Err
	}
	text := m.text(req)
	words := strings.SplitAfter(text, " ")
	for _, w := range words {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := emit(Delta{Text: w}); err != nil {
			return nil, err
		}
	}
	return &Reply{Text: text, Model: mockModel, FinishReason: "stop"}, nil
}

var _ Service = (*Mock)(nil)
