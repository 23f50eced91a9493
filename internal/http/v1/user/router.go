// Package user is the router mounted under /user: the persona catalog and
// stateless conversations with a persona.
package user

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/digitalimmortality/backend/internal/platform/metrics"
	"github.com/digitalimmortality/backend/internal/platform/ratelimit"
	chatsvc "github.com/digitalimmortality/backend/internal/service/chat"
	personasvc "github.com/digitalimmortality/backend/internal/service/persona"
)

// BasePath is where the router's operations are mounted.
const BasePath = "/user"

const (
	tagPersonas = "Personas"
	tagChat     = "Chat"
)

// Deps are the collaborators the router needs. Limiter and Metrics are
// optional; without a Limiter chat requests are not limited.
type Deps struct {
	Personas personasvc.Service
	Chat     chatsvc.Service
	Limiter  ratelimit.Limiter
	Metrics  *metrics.Recorder
}

// Router registers the user-facing operations.
type Router struct {
	deps Deps
}

// New creates the user router.
func New(deps Deps) *Router {
	return &Router{deps: deps}
}

// Register merges the router's operations into api under BasePath.
func (rt *Router) Register(api huma.API) {
	rt.registerPersonas(api)
	rt.registerChat(api)
}
