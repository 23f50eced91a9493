package user

import (
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/digitalimmortality/backend/internal/platform/pagination"
)

// PersonasListInput for GET /user/personas
type PersonasListInput struct {
	pagination.Params
	Tag string `query:"tag" maxLength:"50" doc:"Only personas carrying this tag" example:"physics"`
}

// PersonaGetInput for GET /user/personas/{personaId}
type PersonaGetInput struct {
	PersonaID string `path:"personaId" maxLength:"63" doc:"Persona identifier" example:"einstein"`
}

// ChatInput for POST /user/chat and POST /user/chat/stream
type ChatInput struct {
	Body ChatRequest
}

// Resolve rejects messages that are only whitespace, which minLength lets through.
func (i *ChatInput) Resolve(_ huma.Context) []error {
	if strings.TrimSpace(i.Body.Message) == "" {
		return []error{&huma.ErrorDetail{
			Location: "body.message",
			Message:  "message must not be blank",
			Value:    i.Body.Message,
		}}
	}
	return nil
}
