package user

import (
	"github.com/digitalimmortality/backend/internal/platform/timeutil"
	personasvc "github.com/digitalimmortality/backend/internal/service/persona"
)

// Persona is the public view of a persona. The system prompt stays server side.
type Persona struct {
	ID       string   `json:"id"       doc:"Persona identifier"             example:"einstein"`
	Name     string   `json:"name"     doc:"Display name"                   example:"Albert Einstein"`
	Tagline  string   `json:"tagline"  doc:"One-line description"           example:"Theoretical physicist, father of relativity"`
	Greeting string   `json:"greeting" doc:"Opening line shown to the user" example:"Guten Tag!"`
	Tags     []string `json:"tags"     doc:"Topics the persona knows about"`
}

// Turn is one earlier message of the conversation, kept by the client.
type Turn struct {
	Role    string `json:"role"    enum:"user,assistant"           doc:"Author of the turn"  example:"user"`
	Content string `json:"content" minLength:"1" maxLength:"4000" doc:"Text of the turn"    example:"What is time?"`
}

// ChatRequest is the body shared by the chat and chat stream operations.
type ChatRequest struct {
	PersonaID string `json:"personaId"         minLength:"1" maxLength:"63"   doc:"Persona to talk to"              example:"einstein"`
	Message   string `json:"message"           minLength:"1" maxLength:"4000" doc:"New message from the user"       example:"Can you explain relativity simply?"`
	History   []Turn `json:"history,omitempty" maxItems:"20"                  doc:"Earlier turns, oldest first"`
}

// ChatReply is the answer to a non-streaming chat request.
type ChatReply struct {
	PersonaID string        `json:"personaId" doc:"Persona that answered"       example:"einstein"`
	Reply     string        `json:"reply"     doc:"Persona's answer"            example:"Ach so! Imagine riding a beam of light..."`
	Model     string        `json:"model"     doc:"Model that produced it"      example:"gpt-4o"`
	CreatedAt timeutil.Time `json:"createdAt" doc:"Completion time (RFC 3339)"  example:"2024-01-15T10:30:00.000Z"`
}

// DeltaEvent is sent for each streamed fragment.
type DeltaEvent struct {
	Text string `json:"text" doc:"Next fragment of the reply"`
}

// DoneEvent closes a successful stream.
type DoneEvent struct {
	Model        string `json:"model"        doc:"Model that produced the reply"`
	FinishReason string `json:"finishReason" doc:"Why generation stopped"`
}

// ErrorEvent closes a failed stream. Status is the HTTP status the same
// failure would have on the non-streaming endpoint.
type ErrorEvent struct {
	Status int    `json:"status" doc:"Equivalent HTTP status" example:"404"`
	Detail string `json:"detail" doc:"Error description"      example:"persona not found"`
}

func toHTTPPersona(p *personasvc.Persona) Persona {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return Persona{
		ID:       p.ID,
		Name:     p.Name,
		Tagline:  p.Tagline,
		Greeting: p.Greeting,
		Tags:     tags,
	}
}
