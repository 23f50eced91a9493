package user

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	applog "github.com/digitalimmortality/backend/internal/platform/logging"
	appmiddleware "github.com/digitalimmortality/backend/internal/platform/middleware"
	"github.com/digitalimmortality/backend/internal/platform/ratelimit"
	"github.com/digitalimmortality/backend/internal/platform/respond"
	chatsvc "github.com/digitalimmortality/backend/internal/service/chat"
	personasvc "github.com/digitalimmortality/backend/internal/service/persona"
)

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis down")
}

func testCatalog(t *testing.T) *personasvc.Catalog {
	t.Helper()
	c, err := personasvc.NewCatalog([]personasvc.Persona{
		{ID: "einstein", Name: "Albert Einstein", Greeting: "Guten Tag!", SystemPrompt: "You are Einstein.", Tags: []string{"physics"}},
		{ID: "curie", Name: "Marie Curie", SystemPrompt: "You are Curie.", Tags: []string{"physics", "chemistry"}},
		{ID: "lovelace", Name: "Ada Lovelace", SystemPrompt: "You are Ada."},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

func newTestRouter(t *testing.T, deps Deps) chi.Router {
	t.Helper()
	if deps.Personas == nil {
		deps.Personas = testCatalog(t)
	}
	if deps.Chat == nil {
		deps.Chat = chatsvc.NewMock()
	}
	router := chi.NewRouter()
	router.Use(
		appmiddleware.RequestID(),
		chimiddleware.RealIP,
		applog.RequestLogger(),
		respond.Recoverer(),
	)
	api := humachi.New(router, huma.DefaultConfig("UserTest", "test"))
	New(deps).Register(api)
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestListPersonas(t *testing.T) {
	router := newTestRouter(t, Deps{})

	resp := doJSON(t, router, http.MethodGet, "/user/personas", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var data PersonasListData
	if err := json.Unmarshal(resp.Body.Bytes(), &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.Total != 3 || len(data.Personas) != 3 {
		t.Fatalf("unexpected list %+v", data)
	}
	if data.Personas[0].ID != "curie" {
		t.Fatalf("expected ID order, got %s first", data.Personas[0].ID)
	}
	if strings.Contains(resp.Body.String(), "You are") {
		t.Fatal("system prompts must not be exposed")
	}
	if navLink(resp, "next") != "" || navLink(resp, "prev") != "" {
		t.Fatalf("single page should have no navigation links, got %q", resp.Header().Values("Link"))
	}
}

func TestListPersonasPaging(t *testing.T) {
	router := newTestRouter(t, Deps{})

	resp := doJSON(t, router, http.MethodGet, "/user/personas?limit=2", nil)
	link := navLink(resp, "next")
	if link == "" {
		t.Fatalf("expected next link, got %q", resp.Header().Values("Link"))
	}
	next := link[strings.Index(link, "<")+1 : strings.Index(link, ">")]

	resp = doJSON(t, router, http.MethodGet, next, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var data PersonasListData
	_ = json.Unmarshal(resp.Body.Bytes(), &data)
	if len(data.Personas) != 1 || data.Personas[0].ID != "lovelace" {
		t.Fatalf("unexpected second page %+v", data.Personas)
	}
	if navLink(resp, "prev") == "" {
		t.Fatal("expected prev link on second page")
	}
}

// navLink returns the Link header value carrying rel, skipping the
// describedBy link added for the body schema.
func navLink(resp *httptest.ResponseRecorder, rel string) string {
	for _, v := range resp.Header().Values("Link") {
		for _, part := range strings.Split(v, ", ") {
			if strings.HasSuffix(part, `rel="`+rel+`"`) {
				return part
			}
		}
	}
	return ""
}

func TestListPersonasByTag(t *testing.T) {
	router := newTestRouter(t, Deps{})

	resp := doJSON(t, router, http.MethodGet, "/user/personas?tag=chemistry", nil)
	var data PersonasListData
	_ = json.Unmarshal(resp.Body.Bytes(), &data)
	if data.Total != 1 || data.Personas[0].ID != "curie" {
		t.Fatalf("unexpected filtered list %+v", data)
	}
}

func TestListPersonasInvalidCursor(t *testing.T) {
	router := newTestRouter(t, Deps{})

	resp := doJSON(t, router, http.MethodGet, "/user/personas?cursor=bogus!", nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestGetPersona(t *testing.T) {
	router := newTestRouter(t, Deps{})

	resp := doJSON(t, router, http.MethodGet, "/user/personas/einstein", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var p Persona
	_ = json.Unmarshal(resp.Body.Bytes(), &p)
	if p.Name != "Albert Einstein" || p.Greeting != "Guten Tag!" {
		t.Fatalf("unexpected persona %+v", p)
	}

	missing := doJSON(t, router, http.MethodGet, "/user/personas/newton", nil)
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.Code)
	}
	if ct := missing.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Fatalf("expected problem json, got %q", ct)
	}
}

func TestChat(t *testing.T) {
	mock := chatsvc.NewMock()
	router := newTestRouter(t, Deps{Chat: mock})

	resp := doJSON(t, router, http.MethodPost, "/user/chat", map[string]any{
		"personaId": "einstein",
		"message":   "What is time?",
		"history": []map[string]string{
			{"role": "user", "content": "Hello"},
			{"role": "assistant", "content": "Guten Tag!"},
		},
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var reply ChatReply
	if err := json.Unmarshal(resp.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reply.PersonaID != "einstein" || reply.Reply != "Ach so! You asked: What is time?" || reply.Model != "mock" {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if reply.CreatedAt.IsZero() {
		t.Fatal("expected createdAt")
	}

	reqs := mock.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 upstream request, got %d", len(reqs))
	}
	msgs := reqs[0].Messages()
	if len(msgs) != 4 || msgs[0].Content != "You are Einstein." || msgs[2].Role != chatsvc.RoleAssistant {
		t.Fatalf("unexpected message assembly %+v", msgs)
	}
}

func TestChatValidation(t *testing.T) {
	router := newTestRouter(t, Deps{})

	tests := map[string]map[string]any{
		"empty message":   {"personaId": "einstein", "message": ""},
		"blank message":   {"personaId": "einstein", "message": "   "},
		"too long":        {"personaId": "einstein", "message": strings.Repeat("a", 4001)},
		"missing persona": {"message": "hi"},
		"bad role":        {"personaId": "einstein", "message": "hi", "history": []map[string]string{{"role": "system", "content": "x"}}},
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			resp := doJSON(t, router, http.MethodPost, "/user/chat", body)
			if resp.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422, got %d: %s", resp.Code, resp.Body.String())
			}
		})
	}
}

func TestChatErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		persona    string
		err        error
		status     int
		retryAfter string
	}{
		{"unknown persona", "newton", nil, http.StatusNotFound, ""},
		{"provider rate limited", "einstein", &chatsvc.UpstreamError{Kind: chatsvc.UpstreamErrorKindRateLimited, Status: 429, RetryAfter: "12"}, http.StatusTooManyRequests, "12"},
		{"provider down", "einstein", &chatsvc.UpstreamError{Kind: chatsvc.UpstreamErrorKindUnavailable}, http.StatusServiceUnavailable, ""},
		{"provider error", "einstein", &chatsvc.UpstreamError{Kind: chatsvc.UpstreamErrorKindUpstream, Status: 400}, http.StatusBadGateway, ""},
		{"provider timeout", "einstein", &chatsvc.UpstreamError{Kind: chatsvc.UpstreamErrorKindTimeout}, http.StatusGatewayTimeout, ""},
		{"deadline", "einstein", context.DeadlineExceeded, http.StatusGatewayTimeout, ""},
		{"unexpected", "einstein", errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, Deps{Chat: &chatsvc.Mock{Err: tt.err}})
			resp := doJSON(t, router, http.MethodPost, "/user/chat", map[string]any{
				"personaId": tt.persona,
				"message":   "hi",
			})
			if resp.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, resp.Code, resp.Body.String())
			}
			if got := resp.Header().Get("Retry-After"); got != tt.retryAfter {
				t.Fatalf("expected Retry-After %q, got %q", tt.retryAfter, got)
			}
		})
	}
}

func TestChatUpstreamTimeout(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer upstream.Close()

	client := chatsvc.NewClient(&http.Client{Timeout: 50 * time.Millisecond},
		chatsvc.WithBaseURL(upstream.URL), chatsvc.WithAPIKey("sk-test"))
	router := newTestRouter(t, Deps{Chat: client})
	resp := doJSON(t, router, http.MethodPost, "/user/chat", map[string]any{
		"personaId": "einstein",
		"message":   "What is time?",
	})
	if resp.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{personasvc.ErrNotFound, "not_found"},
		{&chatsvc.UpstreamError{Kind: chatsvc.UpstreamErrorKindTimeout}, "timeout"},
		{&chatsvc.UpstreamError{Kind: chatsvc.UpstreamErrorKindUnavailable}, "unavailable"},
		{context.DeadlineExceeded, "timeout"},
		{context.Canceled, "canceled"},
		{errors.New("boom"), "internal_error"},
	}
	for _, tt := range tests {
		if got := outcome(tt.err); got != tt.want {
			t.Errorf("outcome(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestChatRateLimited(t *testing.T) {
	limiter, err := ratelimit.NewMemory(ratelimit.Config{Limit: 1, Window: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	router := newTestRouter(t, Deps{Limiter: limiter})
	body := map[string]any{"personaId": "einstein", "message": "hi"}

	first := doJSON(t, router, http.MethodPost, "/user/chat", body)
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", first.Code)
	}
	if first.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("expected remaining 0, got %q", first.Header().Get("X-RateLimit-Remaining"))
	}

	second := doJSON(t, router, http.MethodPost, "/user/chat", body)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}

	personas := doJSON(t, router, http.MethodGet, "/user/personas", nil)
	if personas.Code != http.StatusOK {
		t.Fatalf("persona reads must not be limited, got %d", personas.Code)
	}
}

func TestChatLimiterFailureFailsOpen(t *testing.T) {
	router := newTestRouter(t, Deps{Limiter: failingLimiter{}})

	resp := doJSON(t, router, http.MethodPost, "/user/chat", map[string]any{"personaId": "einstein", "message": "hi"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 when limiter fails, got %d", resp.Code)
	}
}

func TestChatStream(t *testing.T) {
	router := newTestRouter(t, Deps{Chat: &chatsvc.Mock{Reply: "Imagination is everything"}})

	resp := doJSON(t, router, http.MethodPost, "/user/chat/stream", map[string]any{"personaId": "einstein", "message": "hi"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %q", ct)
	}
	body := resp.Body.String()
	for _, want := range []string{
		"event: delta\ndata: {\"text\":\"Imagination \"}",
		"event: delta\ndata: {\"text\":\"everything\"}",
		"event: done\ndata: {\"model\":\"mock\",\"finishReason\":\"stop\"}",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("stream missing %q:\n%s", want, body)
		}
	}
	if strings.Index(body, "event: done") < strings.LastIndex(body, "event: delta") {
		t.Fatal("done must be the last event")
	}
}

func TestChatStreamUnknownPersona(t *testing.T) {
	router := newTestRouter(t, Deps{})

	resp := doJSON(t, router, http.MethodPost, "/user/chat/stream", map[string]any{"personaId": "newton", "message": "hi"})
	body := resp.Body.String()
	if !strings.Contains(body, "event: error") || !strings.Contains(body, `"status":404`) {
		t.Fatalf("expected error event with 404, got:\n%s", body)
	}
	if strings.Contains(body, "event: done") {
		t.Fatal("failed stream must not send done")
	}
}

func TestChatStreamValidationIsNotStreamed(t *testing.T) {
	router := newTestRouter(t, Deps{})

	resp := doJSON(t, router, http.MethodPost, "/user/chat/stream", map[string]any{"personaId": "einstein", "message": ""})
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.Code)
	}
}

func TestClientKey(t *testing.T) {
	if got := clientKey("203.0.113.7:5555"); got != "203.0.113.7" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := clientKey("203.0.113.7"); got != "203.0.113.7" {
		t.Fatalf("unexpected key %q", got)
	}
}
