// Package app assembles the HTTP application: router, middleware, the Huma
// API and every mounted route.
package app

import (
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-multierror"

	"github.com/digitalimmortality/backend/internal/http/health"
	"github.com/digitalimmortality/backend/internal/http/root"
	"github.com/digitalimmortality/backend/internal/http/v1/user"
	"github.com/digitalimmortality/backend/internal/platform/logging"
	"github.com/digitalimmortality/backend/internal/platform/metrics"
	"github.com/digitalimmortality/backend/internal/platform/middleware"
	"github.com/digitalimmortality/backend/internal/platform/respond"
	"github.com/digitalimmortality/backend/internal/platform/ratelimit"
	chatsvc "github.com/digitalimmortality/backend/internal/service/chat"
	personasvc "github.com/digitalimmortality/backend/internal/service/persona"
)

// Title is the application title published in the OpenAPI document.
const Title = "Digital Immortality Backend"

const (
	docsPath   = "/api-docs"
	healthPath = "/health"
	metricsPth = "/metrics"
	maxBody    = 1 << 20
)

// Options are the collaborators of an App. Personas and Chat are required;
// a nil Metrics gets a fresh recorder.
type Options struct {
	Version     string
	CORSOrigins []string
	Personas    personasvc.Service
	Chat        chatsvc.Service
	Limiter     ratelimit.Limiter
	Metrics     *metrics.Recorder
	ReadyChecks map[string]health.Check
}

// App is the assembled application.
type App struct {
	Router  chi.Router
	API     huma.API
	Metrics *metrics.Recorder

	closers []closer
}

type closer struct {
	name  string
	close func() error
}

// New builds the router, installs the middleware stack and registers the
// root, health, metrics and user routes.
func New(opts Options) *App {
	respond.Install()

	rec := opts.Metrics
	if rec == nil {
		rec = metrics.NewRecorder()
	}

	router := chi.NewRouter()
	router.NotFound(respond.NotFoundHandler())
	router.MethodNotAllowed(respond.MethodNotAllowedHandler())

	router.Use(
		middleware.Security(docsPath),
		middleware.Vary(),
		middleware.CORS(opts.CORSOrigins...),
		middleware.RequestID(),
		// RealIP trusts X-Real-IP / X-Forwarded-For; deploy behind a proxy
		// that sets them, the rate limiter keys on the result.
		chimiddleware.RealIP,
		chimiddleware.RequestSize(maxBody),
		logging.RequestLogger(),
		logging.AccessLogger(healthPath, metricsPth),
		respond.Recoverer(),
		rec.Middleware,
	)

	version := opts.Version
	if version == "" {
		version = "dev"
	}
	cfg := huma.DefaultConfig(Title, version)
	cfg.DocsPath = docsPath
	api := humachi.New(router, cfg)
	api.OpenAPI().OnAddOperation = append(api.OpenAPI().OnAddOperation, addCBORContent)

	router.Get("/", root.Handler)
	router.Get(healthPath, health.Handler)
	router.Get(healthPath+"/ready", health.Ready(opts.ReadyChecks))
	router.Method(http.MethodGet, metricsPth, rec.Handler())
	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		respond.WriteRedirect(w, r, docsPath, http.StatusPermanentRedirect)
	})

	user.New(user.Deps{
		Personas: opts.Personas,
		Chat:     opts.Chat,
		Limiter:  opts.Limiter,
		Metrics:  rec,
	}).Register(api)

	return &App{Router: router, API: api, Metrics: rec}
}

// addCBORContent advertises application/cbor wherever JSON is accepted or
// returned.
func addCBORContent(_ *huma.OpenAPI, op *huma.Operation) {
	if op.RequestBody != nil && op.RequestBody.Content != nil {
		if jsonContent, ok := op.RequestBody.Content["application/json"]; ok {
			op.RequestBody.Content["application/cbor"] = jsonContent
		}
	}
	for _, resp := range op.Responses {
		if resp.Content == nil {
			continue
		}
		if jsonContent, ok := resp.Content["application/json"]; ok {
			resp.Content["application/cbor"] = jsonContent
		}
	}
}

// OnClose registers fn to run when the App is closed. Closers run in reverse
// registration order.
func (a *App) OnClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, close: fn})
}

// Close releases every registered resource and reports all failures.
func (a *App) Close() error {
	var result *multierror.Error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return result.ErrorOrNil()
}
