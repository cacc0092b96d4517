package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"floraGuardAPI/handlers"
	"floraGuardAPI/internal/config"
	"floraGuardAPI/internal/gamification"
	"floraGuardAPI/internal/migrations"
	"floraGuardAPI/internal/notification"
	"floraGuardAPI/internal/observability"
	"floraGuardAPI/internal/pkg/caching"
	"floraGuardAPI/internal/pkg/logger"
	"floraGuardAPI/internal/workers"
	"floraGuardAPI/middleware"
	"floraGuardAPI/services"
)

func commandServer(cfg *config.Config, appLog *logger.Logger) *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "start the web server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Value: "0.0.0.0:" + cfg.Port,
				Usage: "serve address",
			},
			&cli.BoolFlag{
				Name:  "migrate",
				Value: true,
				Usage: "apply pending migrations on start",
			},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, appLog, c.String("addr"), c.Bool("migrate"))
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config, appLog *logger.Logger, addr string, migrate bool) error {
	initClerk(cfg, appLog)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)
	httpMetrics := middleware.NewHTTPMetrics(reg)

	var (
		pool  *pgxpool.Pool
		store services.Store
	)
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		var err error
		pool, err = openPool(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			appLog.Info("closing database connection pool")
			pool.Close()
		}()
		if migrate {
			applied, err := migrations.Apply(ctx, pool)
			if err != nil {
				return err
			}
			appLog.Info("migrations applied", "versions", applied)
		}
		store = services.NewPostgresStore(pool)
	default:
		appLog.Warn("using in-memory store, progress is lost on restart")
		store = services.NewMemoryStore()
	}

	rdb, err := openRedis(cfg)
	if err != nil {
		return err
	}
	var (
		cache caching.Cache
		bus   services.NotificationBus
	)
	if rdb != nil {
		defer rdb.Close()
		cache = caching.NewCacheRedis(rdb, true)
		bus = services.NewRedisBus(rdb, cfg.RedisChannelPrefix, appLog)
	} else {
		appLog.Info("REDIS_URL not set, using process-local cache and notification bus")
		cache = caching.NewLocal()
		bus = services.NewLocalBus()
	}

	dispatcher := services.NewNotificationDispatcher(bus, store, 5, metrics, appLog)
	defer dispatcher.Stop()

	fcmService, err := notification.NewFCMService(ctx, cfg.FCMCredentialsFile, appLog)
	if err != nil {
		appLog.Warn("could not initialize FCM, push disabled", "error", err)
	} else {
		dispatcher.SetPushProvider(fcmService)
		appLog.Info("FCM push provider initialized")
	}

	catalog := services.NewCatalogService(store, cache, cfg.CatalogCacheTTL, appLog)
	gamificationService := services.NewGamificationService(services.GamificationDeps{
		Store:    store,
		Catalog:  catalog,
		Engine:   gamification.NewEngine(nil),
		Notifier: dispatcher,
		Retrier:  services.NewRetrier(cfg.PersistMaxAttempts, services.DefaultBackoff(), appLog, metrics),
		Metrics:  metrics,
		Location: cfg.Location,
		Logger:   appLog,
	})
	notificationService := services.NewNotificationService(store, bus, appLog)

	reminder := workers.NewStreakReminder(store, dispatcher, cfg.Location, appLog)
	if err := reminder.Start(cfg.StreakReminderCron); err != nil {
		return err
	}
	defer reminder.Stop()

	limiter := middleware.NewRateLimiter(5, 30)
	router := newRouter(routerDeps{
		gamification:  handlers.NewGamificationHandler(gamificationService, appLog),
		notifications: handlers.NewNotificationHandler(notificationService, appLog),
		webhooks:      handlers.NewWebhookHandler(gamificationService, cfg.ClerkWebhookSecret, appLog),
		auth:          middleware.ClerkAuthMiddleware(middleware.ClerkVerifier, appLog),
		limiter:       limiter,
		httpMetrics:   httpMetrics,
		metrics:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		metricsAuth:   middleware.BasicAuthMiddleware(cfg.MetricsUser, cfg.MetricsPass),
		pool:          pool,
	})

	srv := &http.Server{
		Addr: addr,
		Handler: gorillaHandlers.CORS(
			gorillaHandlers.AllowedOrigins([]string{"*"}),
			gorillaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			gorillaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		)(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errWg, errCtx := errgroup.WithContext(ctx)

	errWg.Go(func() error {
		appLog.Info("server starting", "addr", addr, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	errWg.Go(func() error {
		limiter.CleanupVisitors(errCtx)
		return nil
	})

	if pool != nil {
		listener := services.NewChangeFeedListener(pool, gamificationService, appLog)
		errWg.Go(func() error {
			return listener.Run(errCtx)
		})
	}

	errWg.Go(func() error {
		<-errCtx.Done()
		appLog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return errWg.Wait()
}

type routerDeps struct {
	gamification  *handlers.GamificationHandler
	notifications *handlers.NotificationHandler
	webhooks      *handlers.WebhookHandler
	auth          func(http.Handler) http.Handler
	limiter       *middleware.RateLimiter
	httpMetrics   *middleware.HTTPMetrics
	metrics       http.Handler
	metricsAuth   func(http.Handler) http.Handler
	pool          *pgxpool.Pool
}

func newRouter(d routerDeps) *mux.Router {
	r := mux.NewRouter()
	r.Use(d.httpMetrics.Middleware)

	r.Handle("/metrics", d.metricsAuth(d.metrics)).Methods("GET")
	r.HandleFunc("/health", healthHandler(d.pool)).Methods("GET")
	r.HandleFunc("/webhooks/clerk", d.webhooks.HandleClerkWebhook).Methods("POST")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(d.limiter.Middleware)
	api.Use(d.auth)

	g := api.PathPrefix("/gamification").Subrouter()
	g.HandleFunc("/stats", d.gamification.GetStats).Methods("GET")
	g.HandleFunc("/achievements", d.gamification.GetAchievements).Methods("GET")
	g.HandleFunc("/achievements/catalog", d.gamification.GetCatalog).Methods("GET")
	g.HandleFunc("/achievements/{achievementID}/check", d.gamification.CheckAchievement).Methods("POST")
	g.HandleFunc("/leaderboard", d.gamification.GetLeaderboard).Methods("GET")
	g.HandleFunc("/tasks/{taskID}/complete", d.gamification.CompleteTask).Methods("POST")
	g.HandleFunc("/plants", d.gamification.PlantAdded).Methods("POST")
	g.HandleFunc("/milestones", d.gamification.MilestoneAdded).Methods("POST")
	g.HandleFunc("/diseases/treated", d.gamification.DiseaseTreated).Methods("POST")
	g.HandleFunc("/perfect-weeks", d.gamification.PerfectWeek).Methods("POST")

	api.HandleFunc("/notifications/devices", d.notifications.RegisterDevice).Methods("POST")
	api.HandleFunc("/notifications/stream", d.notifications.Stream).Methods("GET")

	return r
}

func healthHandler(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if pool != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := pool.Ping(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	}
}
