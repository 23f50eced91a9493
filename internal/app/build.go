package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/digitalimmortality/backend/internal/config"
	"github.com/digitalimmortality/backend/internal/http/health"
	"github.com/digitalimmortality/backend/internal/platform/firebase"
	"github.com/digitalimmortality/backend/internal/platform/logging"
	"github.com/digitalimmortality/backend/internal/platform/ratelimit"
	chatsvc "github.com/digitalimmortality/backend/internal/service/chat"
	personasvc "github.com/digitalimmortality/backend/internal/service/persona"
)

const envDevelopment = "development"

// Build wires the application from configuration: the persona source, the
// chat upstream, the rate limiter backend and readiness checks. The caller
// owns the returned App and must Close it.
func Build(ctx context.Context, cfg *config.Config, version string) (*App, error) {
	if cfg.Firebase.ProjectID != "" {
		logging.SetProjectID(cfg.Firebase.ProjectID)
	}

	var closers []closer
	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].close()
		}
	}

	personas, closePersonas, err := buildPersonas(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if closePersonas != nil {
		closers = append(closers, closer{name: "firestore", close: closePersonas})
	}

	checks := map[string]health.Check{
		"personas": func(ctx context.Context) error {
			_, err := personas.List(ctx)
			return err
		},
	}

	limiter, rdb, err := buildLimiter(ctx, cfg)
	if err != nil {
		release()
		return nil, err
	}
	if rdb != nil {
		closers = append(closers, closer{name: "redis", close: rdb.Close})
		checks["redis"] = func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}
	}

	a := New(Options{
		Version:     version,
		CORSOrigins: cfg.CORSOrigins,
		Personas:    personas,
		Chat:        buildChat(ctx, cfg),
		Limiter:     limiter,
		ReadyChecks: checks,
	})
	a.closers = append(a.closers, closers...)
	return a, nil
}

func buildPersonas(ctx context.Context, cfg *config.Config) (personasvc.Service, func() error, error) {
	switch cfg.Personas.Source {
	case config.PersonaSourceFile:
		catalog, err := personasvc.LoadCatalogFile(cfg.Personas.File)
		if err != nil {
			return nil, nil, err
		}
		logging.LogInfo(ctx, "persona catalog loaded",
			zap.String("file", cfg.Personas.File), zap.Int("count", len(catalog.Personas())))
		return catalog, nil, nil
	case config.PersonaSourceFirestore:
		clients, err := firebase.NewClients(ctx, firebase.Config{
			ProjectID:       cfg.Firebase.ProjectID,
			CredentialsFile: cfg.Firebase.CredentialsFile,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init firestore: %w", err)
		}
		return personasvc.NewFirestoreStore(clients.Firestore), clients.Close, nil
	default:
		return personasvc.DefaultCatalog(), nil, nil
	}
}

// buildChat falls back to the echoing mock only for keyless development
// runs; elsewhere a missing key surfaces as 503 from the client.
func buildChat(ctx context.Context, cfg *config.Config) chatsvc.Service {
	if cfg.Chat.APIKey == "" && cfg.Env == envDevelopment {
		logging.LogWarn(ctx, "OPENAI_API_KEY not set, using mock chat replies")
		return chatsvc.NewMock()
	}
	return chatsvc.NewClient(
		&http.Client{Timeout: cfg.Chat.Timeout},
		chatsvc.WithBaseURL(cfg.Chat.BaseURL),
		chatsvc.WithAPIKey(cfg.Chat.APIKey),
		chatsvc.WithModel(cfg.Chat.Model),
	)
}

func buildLimiter(ctx context.Context, cfg *config.Config) (ratelimit.Limiter, *redis.Client, error) {
	limits := ratelimit.Config{Limit: cfg.Limit.Limit, Window: cfg.Limit.Window}
	if !cfg.Redis.Enabled() {
		m, err := ratelimit.NewMemory(limits)
		return m, nil, err
	}
	rdb, err := ratelimit.Connect(ctx, ratelimit.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, nil)
	if err != nil {
		return nil, nil, err
	}
	limiter, err := ratelimit.NewRedis(rdb, limits)
	if err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	return limiter, rdb, nil
}
