package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/resolve-gateway/internal/auth"
	"github.com/noah-isme/resolve-gateway/internal/common"
	"github.com/noah-isme/resolve-gateway/internal/config"
	"github.com/noah-isme/resolve-gateway/internal/events"
	"github.com/noah-isme/resolve-gateway/internal/health"
	"github.com/noah-isme/resolve-gateway/internal/lock"
	"github.com/noah-isme/resolve-gateway/internal/obs"
	"github.com/noah-isme/resolve-gateway/internal/payment"
	"github.com/noah-isme/resolve-gateway/internal/ratelimit"
	"github.com/noah-isme/resolve-gateway/internal/resilience"
	"github.com/noah-isme/resolve-gateway/internal/resolve"
	"github.com/noah-isme/resolve-gateway/internal/security"
	"github.com/noah-isme/resolve-gateway/internal/settings"
	"github.com/noah-isme/resolve-gateway/internal/store"
)

const serviceName = "resolve-gateway"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "resolve")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName: serviceName,
			Endpoint:    cfg.OTLPEndpoint,
			Exporter:    envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			Environment: cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = serviceName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	if err := runMigrations(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	st := store.New(pool)

	gatewaySettings := settings.New(st, logger)
	if err := gatewaySettings.Load(ctx); err != nil {
		logger.Fatal().Err(err).Msg("load gateway settings")
	}

	bus := &events.Bus{
		Store:     st,
		Notifiers: []events.Notifier{logNotifier{logger: logger}},
	}

	locker := lock.Locker{R: redisClient}

	breaker := resilience.NewBreaker(5, 0.5, 30*time.Second).
		WithTarget("resolve").
		WithLogger(logger)
	outbound := resilience.HTTPClient{
		Client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Breaker: breaker,
		Timeout: cfg.ProviderTimeout,
	}
	resolveClient := &resolve.Client{HTTP: outbound, BaseURL: cfg.ProviderBaseURL}

	coordinator := &payment.Coordinator{
		Store:    st,
		Settings: gatewaySettings,
		Client:   resolveClient,
		Locker:   locker,
		Events:   bus,
		Log:      logger,
		LockTTL:  cfg.CaptureLockTTL,
	}
	processor := &payment.Processor{
		Store:    st,
		Settings: gatewaySettings,
		Capture:  coordinator,
		Events:   bus,
		Log:      logger,
	}
	builder := &payment.Builder{
		Store:          st,
		Settings:       gatewaySettings,
		Events:         bus,
		PublicBaseURL:  cfg.PublicBaseURL,
		GatewayVersion: envOrDefault("GATEWAY_VERSION", "dev"),
		Log:            logger,
	}
	handlers := payment.Handlers{
		Builder:       builder,
		Processor:     processor,
		Capture:       coordinator,
		Store:         st,
		SettingsStore: st,
		Settings:      gatewaySettings,
		Validate:      validator.New(),
		Log:           logger,
	}

	adminAuth := auth.Middleware{Service: &auth.Service{
		Secret: []byte(cfg.AdminJWTSecret),
		Validator: auth.TokenValidator{
			Issuer:    cfg.AdminJWTIssuer,
			Audience:  cfg.AdminJWTAudience,
			ClockSkew: time.Minute,
			Algorithm: jwa.HS256,
		},
	}}
	csrf := security.CSRF{}
	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	returnLimiter, err := ratelimit.New(redisClient, ratelimit.Config{
		Window: cfg.ReturnRateWindow,
		Max:    cfg.ReturnRateLimit,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}
	returnLimiter.OnError = func(err error) {
		logger.Warn().Err(err).Msg("rate limiter unavailable, failing open")
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(cfg.MetricsBucketsCSV)
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: cfg.SecurityHeaders, EnableHSTS: true}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{
		Checker:      store.Checker{Pool: pool, Redis: redisClient},
		DBTimeout:    500 * time.Millisecond,
		RedisTimeout: 300 * time.Millisecond,
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.With(csrf.Middleware).Post("/checkout/data", handlers.CheckoutData)
		v.With(returnLimiter.Middleware).Get("/payments/resolve/return", handlers.Return)

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(adminAuth.RequireAdmin)
			admin.Use(csrf.Middleware)
			admin.With(idem.Middleware).Post("/orders/{orderId}/capture", handlers.AdminCapture)
			admin.Post("/settings", handlers.UpdateSettings)
			admin.Post("/settings/reload", handlers.ReloadSettings)
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	<-shutdownCtx.Done()
	logger.Info().Msg("shutdown signal received, draining")
	health.SetReady(false)

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelDrain()
	if err := srv.Shutdown(drainCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func runMigrations(databaseURL string) error {
	m, err := migrate.New("file://db/migrations", databaseURL)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

// logNotifier surfaces emitted domain events in the service logs. External
// integrations register their own notifiers here.
type logNotifier struct {
	logger zerolog.Logger
}

func (n logNotifier) Notify(_ context.Context, ev events.Event) error {
	n.logger.Debug().
		Str("topic", ev.Topic).
		Str("aggregate_id", ev.AggregateID.String()).
		Msg("domain_event")
	return nil
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}
