package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	mwstdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-billing/internal/app"
	"github.com/noah-isme/backend-billing/internal/audit"
	"github.com/noah-isme/backend-billing/internal/billing"
	"github.com/noah-isme/backend-billing/internal/catalog"
	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/config"
	"github.com/noah-isme/backend-billing/internal/customer"
	"github.com/noah-isme/backend-billing/internal/db"
	"github.com/noah-isme/backend-billing/internal/events"
	"github.com/noah-isme/backend-billing/internal/health"
	"github.com/noah-isme/backend-billing/internal/identity"
	"github.com/noah-isme/backend-billing/internal/ledger"
	"github.com/noah-isme/backend-billing/internal/notify"
	"github.com/noah-isme/backend-billing/internal/obs"
	"github.com/noah-isme/backend-billing/internal/queue"
	"github.com/noah-isme/backend-billing/internal/ratelimit"
	"github.com/noah-isme/backend-billing/internal/resilience"
	"github.com/noah-isme/backend-billing/internal/security"
	"github.com/noah-isme/backend-billing/internal/sequence"
	"github.com/noah-isme/backend-billing/internal/staff"
	"github.com/noah-isme/backend-billing/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "billing")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "billing-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if envBool("DB_AUTO_MIGRATE", false) {
		m, err := app.NewMigrator(migrations.FS, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("prepare migrations")
		}
		if err := app.RunMigrations(m); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
		logger.Info().Msg("schema migrations applied")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "billing-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	queries := db.New(pool)

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

	validate := common.NewValidator()

	queuePrefix := envOrDefault("QUEUE_PREFIX", "billing:queue")
	webhookMaxAttempts := envInt("WEBHOOK_MAX_ATTEMPTS", 5)
	enqueuer := queue.Enqueuer{
		R:           redisClient,
		Prefix:      queuePrefix,
		DedupTTL:    envDurationMillis("QUEUE_DEDUP_TTL_MS", 6*60*60*1000),
		MaxAttempts: webhookMaxAttempts,
	}

	notifyStore := notify.NewStore(queries)
	webhookTimeout := envDurationMillis("WEBHOOK_TIMEOUT_MS", 10_000)
	dispatcher := &notify.Dispatcher{
		Store: notifyStore,
		HTTP: &resilience.HTTPClient{
			Client:      notify.HttpClient(int(webhookTimeout/time.Millisecond), envBool("WEBHOOK_ALLOW_INSECURE_TLS", false)),
			Breaker:     resilience.NewBreaker(envInt("WEBHOOK_BREAKER_MIN_REQUESTS", 10), envFloat("WEBHOOK_BREAKER_FAILURE_RATIO", 0.5), envDurationMillis("WEBHOOK_BREAKER_OPEN_MS", 30_000)),
			BaseBackoff: 200 * time.Millisecond,
			MaxAttempts: 2,
			Timeout:     webhookTimeout,
			Target:      "webhook-delivery",
			Logger:      logger,
		},
		Queue:              enqueuer,
		BackoffBaseSec:     envInt("WEBHOOK_BACKOFF_BASE_SEC", 5),
		DefaultMaxAttempts: webhookMaxAttempts,
		Enabled:            envBool("WEBHOOK_DELIVERY_ENABLED", true),
		Replay:             notify.RedisReplayProtector{Client: redisClient},
		ReplayTTL:          envDurationMillis("WEBHOOK_REPLAY_TTL_MS", 24*60*60*1000),
	}
	emailNotifier := notify.EmailNotifier{
		Mail:    common.NopEmailSender{},
		Enabled: envBool("NOTIFY_EMAIL_ENABLED", false),
		From:    envOrDefault("NOTIFY_EMAIL_FROM", ""),
	}
	bus := &events.Bus{
		Store:     queries,
		Scheduler: dispatcher,
		Notifiers: []events.Notifier{emailNotifier},
	}

	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Queries:            queries,
		Tx:                 catalog.PoolRunner{Pool: pool, Q: queries},
		Cache:              catalog.NewCache(redisClient, envDurationMillis("CATALOG_CACHE_TTL_MS", 60_000)),
		Bus:                bus,
		Logger:             logger,
		DefaultLimit:       envInt("CATALOG_DEFAULT_LIMIT", 20),
		MaxLimit:           envInt("CATALOG_MAX_LIMIT", 100),
		DefaultDiscountBps: int32(cfg.DefaultDiscountBps),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: catalogService, Validate: validate})

	billingSvc := &billing.Service{
		Q:  queries,
		Tx: billing.PoolTxer{Pool: pool, Q: queries},
		Seq: sequence.Sequencer{
			Prefix:          cfg.InvoicePrefix,
			FiscalYearStart: time.Month(cfg.FiscalYearStartMonth),
			Logger:          logger,
		},
		Bus:             bus,
		SellerName:      cfg.SellerName,
		SellerGSTIN:     cfg.SellerGSTIN,
		SellerStateCode: cfg.SellerStateCode,
		TaxRateBps:      int32(cfg.TaxRateBps),
		Logger:          logger,
	}
	billingHandler := &billing.Handler{Svc: billingSvc, Validate: validate}

	ledgerHandler := &ledger.Handler{Svc: &ledger.Service{Q: queries}}
	customerHandler := &customer.Handler{Svc: &customer.Service{Q: queries}}
	staffHandler := &staff.Handler{Svc: &staff.Service{Q: queries}}

	verifier, err := identity.NewVerifier(identity.VerifierConfig{
		Secret:    []byte(cfg.JWTSecret),
		Issuer:    envOrDefault("JWT_ISSUER", "billing"),
		Audience:  envOrDefault("JWT_AUDIENCE", "counter"),
		ClockSkew: time.Minute,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise token verifier")
	}
	authMW := identity.Middleware{Verifier: verifier}

	idem := common.Idem{R: redisClient, TTL: envDurationMillis("IDEMPOTENCY_TTL_MS", 24*60*60*1000)}

	auditSvc := &audit.Service{
		Store:        queries,
		Enabled:      envBool("AUDIT_ENABLED", true),
		SamplingRate: envFloat("AUDIT_SAMPLING_RATE", 1.0),
	}
	recorder := audit.HTTPRecorder{
		Service: auditSvc,
		OnError: func(err error) { logger.Error().Err(err).Msg("record audit entry") },
	}
	auditHandler := audit.Handler{Store: queries}

	queueStore := queue.NewStore(pool)
	queueAdmin := &queue.AdminHandler{
		Store:             queueStore,
		Queue:             enqueuer,
		PageSize:          envInt("QUEUE_ADMIN_PAGE_SIZE", 50),
		Logger:            logger,
		VisibilityTimeout: envDurationMillis("QUEUE_VISIBILITY_TIMEOUT_MS", 30_000),
	}
	notifyAdmin := &notify.AdminHandler{Store: notifyStore, Disp: dispatcher}

	commitLimiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "billing:rl:commit"},
		Config: ratelimit.Config{
			Key:    func(r *http.Request) string { return common.ClientIP(r) },
			Window: time.Minute,
			Max:    envInt("RATE_LIMIT_COMMIT_PER_MIN", 120),
		},
		OnError: func(err error) { logger.Error().Err(err).Msg("rate limit check") },
	}

	ipLimiter, err := app.NewIPLimiter(redisClient, envOrDefault("RATE_LIMIT_GLOBAL", "600-M"))
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise global rate limiter")
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
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
	r.Use(security.Headers{
		Enable:                true,
		EnableHSTS:            cfg.AppEnv == "production",
		HSTSMaxAge:            31536000,
		HSTSIncludeSubdomains: true,
	}.Middleware)
	r.Use(security.BodyLimit{Max: int64(envInt("HTTP_BODY_LIMIT_BYTES", 1<<20))}.Middleware)
	r.Use(mwstdlib.NewMiddleware(ipLimiter).Handler)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link", "X-Total-Count"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	pprofEnabled := envBool("OBS_ENABLE_PPROF", true)
	if pprofEnabled {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: pool, redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(authMW.Authenticate)

		v.Get("/products", catalogHandler.Products)
		v.Get("/products/{productID}", catalogHandler.Product)
		v.Get("/products/{productID}/movements", ledgerHandler.Movements)

		v.Group(func(counter chi.Router) {
			counter.Use(authMW.RequireAuth)

			counter.Post("/carts/price", billingHandler.PriceLine)
			counter.Post("/invoices/preview", billingHandler.Preview)
			counter.With(idem.Middleware, commitLimiter.Middleware,
				recorder.Middleware(audit.HTTPConfig{TargetKind: "invoice"})).
				Post("/invoices", billingHandler.Commit)
			counter.Get("/invoices", billingHandler.List)
			counter.Get("/invoices/lookup", billingHandler.Lookup)
			counter.Get("/invoices/{invoiceID}", billingHandler.Get)

			counter.Get("/customers", customerHandler.List)
			counter.Get("/customers/lookup", customerHandler.Lookup)
			counter.Get("/customers/{customerID}", customerHandler.Get)

			counter.Get("/salespeople", staffHandler.List)
		})

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(authMW.RequireAuth)
			adminAudit := recorder.Middleware(audit.HTTPConfig{})

			admin.With(adminAudit).Post("/products", catalogHandler.CreateProduct)
			admin.With(adminAudit).Put("/products/{productID}", catalogHandler.UpdateProduct)
			admin.Get("/products/low-stock", catalogHandler.LowStock)
			admin.With(adminAudit).Post("/products/{productID}/stock", catalogHandler.AdjustStock)

			admin.With(adminAudit).Post("/salespeople", staffHandler.Create)
			admin.With(adminAudit).Delete("/salespeople/{salespersonID}", staffHandler.Deactivate)

			admin.With(adminAudit).Post("/webhooks", notifyAdmin.CreateEndpoint)
			admin.With(adminAudit).Put("/webhooks/{id}", notifyAdmin.UpdateEndpoint)
			admin.Get("/webhooks", notifyAdmin.ListEndpoints)
			admin.With(adminAudit).Delete("/webhooks/{id}", notifyAdmin.DeleteEndpoint)
			admin.Get("/webhook-deliveries", notifyAdmin.ListDeliveries)
			admin.With(adminAudit).Post("/webhook-deliveries/{id}/replay", notifyAdmin.ReplayDelivery)

			admin.Get("/queue/dlq", queueAdmin.ListDLQ)
			admin.With(adminAudit).Post("/queue/dlq/replay", queueAdmin.ReplayDLQ)
			admin.Get("/queue/stats", queueAdmin.Stats)

			admin.Get("/audit-logs", auditHandler.List)
		})
	})

	// Polling fallback keeps deliveries moving if the worker is down.
	if envBool("WEBHOOK_DELIVERY_ENABLED", true) && envBool("WEBHOOK_POLLING_FALLBACK", true) {
		go func() {
			ticker := time.NewTicker(envDurationMillis("WEBHOOK_POLL_INTERVAL_MS", 5_000))
			defer ticker.Stop()
			for range ticker.C {
				if err := dispatcher.WorkOnce(context.Background(), 50); err != nil {
					logger.Error().Err(err).Msg("dispatch webhook")
				}
			}
		}()
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	go func() {
		sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		<-sigCtx.Done()

		// Fail the readiness probe first so the load balancer drains us
		// before in-flight invoices are cut off.
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), envDurationMillis("HTTP_SHUTDOWN_TIMEOUT_MS", 10_000))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown http server")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
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

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/block", pprof.Handler("block"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	mux.Handle("/threadcreate", pprof.Handler("threadcreate"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
