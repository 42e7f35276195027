package bootstrap

import (
	"context"
	"net/http"
	"time"

	"github.com/baechuer/caseflow/services/mailauth-service/internal/application/mailauth"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/config"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/flow"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/infrastructure/mail"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/infrastructure/memory"
	rabbitmq_pub "github.com/baechuer/caseflow/services/mailauth-service/internal/infrastructure/messaging/rabbitmq"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/infrastructure/oauth"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/infrastructure/redis"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/infrastructure/security"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/logger"
	http_handlers "github.com/baechuer/caseflow/services/mailauth-service/internal/transport/http/handlers"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/transport/http/middleware"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/transport/http/response"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/transport/http/router"
)

/*
========================
 Public entry (prod)
========================
*/

func NewServer() (*http.Server, func(), error) {
	return newServer(defaultDeps())
}

// NewServerWithDeps allows injecting dependencies for testing
func NewServerWithDeps(deps Deps) (*http.Server, func(), error) {
	return newServer(deps)
}

/*
========================
 Dependency injection
========================
*/

type Deps struct {
	LoadConfig func() (*config.Config, error)

	NewRedis func(addr, password string, db int) RedisClient

	NewPublisher func(rabbitURL string) (mailauth.EventPublisher, error)

	NewRouter func(router.Deps) (http.Handler, error)
}

type RedisClient interface {
	Ping(ctx context.Context) error
	Close() error
}

/*
========================
 Core bootstrap logic
========================
*/

func newServer(deps Deps) (*http.Server, func(), error) {
	// 0) config
	cfg, err := deps.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	var cleanupFns []func()

	// 1) redis (best-effort; in-memory stores otherwise)
	var redisCli RedisClient
	if deps.NewRedis != nil && cfg.RedisAddr != "" {
		c := deps.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := c.Ping(ctx); err != nil {
			logger.Logger.Warn().Err(err).Msg("redis unavailable; using in-memory stores")
			_ = c.Close()
		} else {
			logger.Logger.Info().Msg("redis connected")
			redisCli = c
			cleanupFns = append(cleanupFns, func() { _ = c.Close() })
		}
	}

	// 2) stores
	var tokenStore mailauth.TokenStore
	var attemptStore mailauth.AttemptStore
	var healthPinger http_handlers.Pinger

	if rc, ok := redisCli.(*redis.Client); ok {
		tokenStore = redis.NewTokenStore(rc)
		attemptStore = redis.NewAttemptStore(rc, cfg.AttemptTTL)
		healthPinger = rc
	} else {
		// Injected clients that are not the real backend (tests) still serve
		// readiness pings; the stores fall back to memory.
		if redisCli != nil {
			healthPinger = redisCli
		}
		tokenStore = memory.NewTokenStore()
		attemptStore = memory.NewAttemptStore(cfg.AttemptTTL)
	}

	// 3) publisher (best-effort)
	var pub mailauth.EventPublisher
	if cfg.RabbitURL != "" {
		p, err := deps.NewPublisher(cfg.RabbitURL)
		if err != nil {
			logger.Logger.Warn().Err(err).Msg("rabbitmq unavailable; using noop publisher")
			pub = memory.NewNoopPublisher(logger.Logger)
		} else {
			pub = p
			if c, ok := p.(interface{ Close() error }); ok {
				cleanupFns = append(cleanupFns, func() { _ = c.Close() })
			}
		}
	}

	// 4) oauth providers + flow machinery
	providers := oauth.NewRegistry(
		oauth.NewGoogleProvider(cfg.GoogleClientID, cfg.RedirectURI),
		oauth.NewMicrosoftProvider(cfg.MicrosoftClientID, cfg.RedirectURI),
	)
	controller := flow.NewController(cfg.FlowTimeout, cfg.ClosePollEvery, logger.Logger)
	exchanger := oauth.NewExchangeClient(logger.Logger)
	dispatcher := mail.NewDispatcher(logger.Logger)

	// 5) security
	verifier := security.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer)

	// 6) service
	svc := mailauth.NewService(
		providers,
		oauth.NewPKCEGenerator(),
		attemptStore,
		controller,
		exchanger,
		tokenStore,
		dispatcher,
		pub,
		mailauth.Config{RefreshSoonSkew: cfg.RefreshSoonSkew},
		logger.Logger,
	)

	// 7) handlers + middleware
	mailH := http_handlers.NewMailHandler(svc)
	callbackH := http_handlers.NewCallbackHandler(svc, cfg.FrontendOrigin)
	healthH := http_handlers.NewHealthHandler(healthPinger)

	authMW := middleware.Auth(verifier, response.WriteError)

	// 8) router
	mux, err := deps.NewRouter(router.Deps{
		Health:   healthH,
		Mail:     mailH,
		Callback: callbackH,
		AuthMW:   authMW,
	})
	if err != nil {
		runCleanup(cleanupFns)
		return nil, nil, err
	}

	// 9) server
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	cleanup := func() {
		runCleanup(cleanupFns)
	}

	return srv, cleanup, nil
}

/*
========================
 Default deps (prod)
========================
*/

func defaultDeps() Deps {
	return Deps{
		LoadConfig: config.Load,
		NewRedis: func(addr, password string, db int) RedisClient {
			return redis.New(addr, password, db)
		},
		NewPublisher: func(url string) (mailauth.EventPublisher, error) {
			return rabbitmq_pub.NewPublisher(url)
		},
		NewRouter: func(d router.Deps) (http.Handler, error) {
			return router.New(d)
		},
	}
}

/*
========================
 helpers
========================
*/

func runCleanup(fns []func()) {
	// reverse order, like defer
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}
