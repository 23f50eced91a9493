package user

import (
	"context"
	"net/http"
	"net/url"
	"slices"

	"github.com/danielgtaylor/huma/v2"

	"github.com/digitalimmortality/backend/internal/platform/pagination"
	personasvc "github.com/digitalimmortality/backend/internal/service/persona"
)

const cursorKind = "persona"

func (rt *Router) registerPersonas(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-personas",
		Method:      http.MethodGet,
		Path:        BasePath + "/personas",
		Summary:     "List personas",
		Description: "Returns the personas available for conversation, ordered by ID. Follow the Link header to page through the catalog.",
		Tags:        []string{tagPersonas},
	}, func(ctx context.Context, input *PersonasListInput) (*PersonasListOutput, error) {
		cursor, err := pagination.DecodeCursor(input.Cursor, cursorKind)
		if err != nil {
			return nil, huma.Error400BadRequest("invalid cursor")
		}

		all, err := rt.deps.Personas.List(ctx)
		if err != nil {
			return nil, mapServiceError(err)
		}
		query := url.Values{}
		if input.Tag != "" {
			all = slices.DeleteFunc(all, func(p personasvc.Persona) bool {
				return !slices.Contains(p.Tags, input.Tag)
			})
			query.Set("tag", input.Tag)
		}

		page := pagination.Paginate(all, pagination.Request{
			Cursor: cursor,
			Limit:  input.EffectiveLimit(),
			Path:   BasePath + "/personas",
			Query:  query,
		}, func(p personasvc.Persona) string { return p.ID })

		personas := make([]Persona, len(page.Items))
		for i := range page.Items {
			personas[i] = toHTTPPersona(&page.Items[i])
		}
		return &PersonasListOutput{
			Link: page.Link,
			Body: PersonasListData{Personas: personas, Total: page.Total},
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-persona",
		Method:      http.MethodGet,
		Path:        BasePath + "/personas/{personaId}",
		Summary:     "Get a persona",
		Description: "Returns one persona by ID.",
		Tags:        []string{tagPersonas},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *PersonaGetInput) (*PersonaGetOutput, error) {
		p, err := rt.deps.Personas.Get(ctx, input.PersonaID)
		if err != nil {
			return nil, mapServiceError(err)
		}
		return &PersonaGetOutput{Body: toHTTPPersona(p)}, nil
	})
}
