package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/fittrack/internal/auth"
	"github.com/2beens/fittrack/internal/config"
	"github.com/2beens/fittrack/internal/db"
	"github.com/2beens/fittrack/internal/exercises"
	"github.com/2beens/fittrack/internal/middleware"
	"github.com/2beens/fittrack/internal/plans"
	"github.com/2beens/fittrack/internal/stats"
	"github.com/2beens/fittrack/internal/telemetry/metrics"
	"github.com/2beens/fittrack/internal/telemetry/tracing"
	"github.com/2beens/fittrack/internal/users"
	"github.com/2beens/fittrack/internal/web"
	"github.com/2beens/fittrack/pkg"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config *config.Config
	dbPool *pgxpool.Pool

	redisClient  *redis.Client
	sessionStore *auth.SessionStore
	tokenService *auth.TokenService

	// telemetry
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config                  *config.Config
	JWTSecret               string
	AdminPassword           string
	RedisPassword           string
	VersionInfo             string
	HoneycombTracingEnabled bool
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	if params.JWTSecret == "" {
		return nil, errors.New("jwt secret not set")
	}

	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost:         params.Config.PostgresHost,
		DBPort:         params.Config.PostgresPort,
		DBName:         params.Config.PostgresDBName,
		TracingEnabled: params.HoneycombTracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("new db pool: %w", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Warnf("failed to ping db: %s", err)
	}

	if err := db.Bootstrap(ctx, dbPool); err != nil {
		return nil, fmt.Errorf("bootstrap db: %w", err)
	}

	pgxpoolCollector := pgxpoolprometheus.NewCollector(
		dbPool,
		map[string]string{"db_name": params.Config.PostgresDBName},
	)
	promRegistry := metrics.SetupPrometheus(pgxpoolCollector)
	metricsManager := metrics.NewManager("fittrack", "main", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(params.Config.RedisHost, params.Config.RedisPort),
		Password: params.RedisPassword,
		DB:       0, // use default DB
	})

	rdbStatus := rdb.Ping(ctx)
	if err := rdbStatus.Err(); err != nil {
		log.Errorf("--> failed to ping redis: %s", err)
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
	}

	sessionStore := auth.NewSessionStore(auth.DefaultSessionTTL, rdb)
	go func() {
		for range time.Tick(time.Hour * 8) {
			sessionStore.ScanAndClean(ctx)
		}
	}()

	tokenService := auth.NewTokenService(
		[]byte(params.JWTSecret),
		time.Duration(params.Config.AccessTokenTTLMinutes)*time.Minute,
	)

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, "fittrack-backend", rdb)
	if err != nil {
		return nil, err
	}

	if err := users.EnsureDefaultAdmin(ctx, users.NewRepo(dbPool), params.AdminPassword); err != nil {
		return nil, fmt.Errorf("ensure default admin: %w", err)
	}

	return &Server{
		config:      params.Config,
		versionInfo: params.VersionInfo,
		dbPool:      dbPool,

		redisClient:  rdb,
		sessionStore: sessionStore,
		tokenService: tokenService,

		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}, nil
}

func (s *Server) routerSetup() (*mux.Router, error) {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("main-router"))

	usersRepo := users.NewRepo(s.dbPool)
	plansRepo := plans.NewRepo(s.dbPool)
	exercisesRepo := exercises.NewRepo(s.dbPool)
	statsRepo := stats.NewRepo(s.dbPool)

	plansHandler := plans.NewHandler(plansRepo, s.metricsManager)
	usersHandler := users.NewHandler(usersRepo, s.tokenService, plansHandler, s.metricsManager)
	exercisesHandler := exercises.NewHandler(exercisesRepo, plansRepo, s.metricsManager)
	statsHandler := stats.NewHandler(statsRepo)

	// server rendered pages, session cookie based
	templates, err := web.LoadTemplates()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	webHandler := web.NewHandler(
		templates,
		usersRepo,
		plansRepo,
		exercisesRepo,
		statsRepo,
		s.sessionStore,
		s.tokenService,
	)
	r.HandleFunc("/", webHandler.HandleIndex).Methods("GET").Name("index")
	r.HandleFunc("/login", webHandler.HandleLoginPage).Methods("GET").Name("login-page")
	r.HandleFunc("/login", webHandler.HandleLoginSubmit).Methods("POST").Name("login-submit")
	r.HandleFunc("/register", webHandler.HandleRegisterPage).Methods("GET").Name("register-page")
	r.HandleFunc("/register", webHandler.HandleRegisterSubmit).Methods("POST").Name("register-submit")
	r.HandleFunc("/dashboard", webHandler.HandleDashboard).Methods("GET").Name("dashboard")
	r.HandleFunc("/admin", webHandler.HandleAdminPage).Methods("GET").Name("admin-page")
	r.HandleFunc("/plan/{id}", webHandler.HandlePlanPage).Methods("GET").Name("plan-page")
	r.HandleFunc("/logout", webHandler.HandleLogout).Methods("GET", "POST").Name("logout")

	// JSON API, bearer token based
	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, []byte(`{"status":"ok","service":"fittrack"}`))
	}).Methods("GET", "OPTIONS").Name("health")
	apiRouter.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		pkg.WriteTextResponseOK(w, s.versionInfo)
	}).Methods("GET", "OPTIONS").Name("version")

	reqRateLimiter := redis_rate.NewLimiter(s.redisClient)
	loginRateLimit := middleware.RateLimit(
		reqRateLimiter,
		"login",
		s.config.LoginRateLimitAllowedPerMin,
		s.metricsManager,
	)
	apiRouter.Handle(
		"/auth/login",
		loginRateLimit(http.HandlerFunc(usersHandler.HandleLogin)),
	).Methods("POST", "OPTIONS").Name("login")
	apiRouter.HandleFunc("/auth/register", usersHandler.HandleRegister).Methods("POST", "OPTIONS").Name("register")

	apiRouter.HandleFunc("/public/workout-plans", plansHandler.HandlePublicList).Methods("GET", "OPTIONS").Name("public-plans")

	apiRouter.HandleFunc("/users/me", usersHandler.HandleGetMe).Methods("GET", "OPTIONS").Name("get-me")
	apiRouter.HandleFunc("/users/me", usersHandler.HandleUpdateMe).Methods("PUT", "OPTIONS").Name("update-me")

	apiRouter.HandleFunc("/workout-plans", plansHandler.HandleCreate).Methods("POST", "OPTIONS").Name("new-plan")
	apiRouter.HandleFunc("/workout-plans", plansHandler.HandleList).Methods("GET", "OPTIONS").Name("list-plans")
	apiRouter.HandleFunc("/workout-plans/{id}", plansHandler.HandleGet).Methods("GET", "OPTIONS").Name("get-plan")
	apiRouter.HandleFunc("/workout-plans/{id}", plansHandler.HandleUpdate).Methods("PUT", "OPTIONS").Name("update-plan")
	apiRouter.HandleFunc("/workout-plans/{id}", plansHandler.HandleDelete).Methods("DELETE", "OPTIONS").Name("delete-plan")

	apiRouter.HandleFunc("/exercises", exercisesHandler.HandleCreate).Methods("POST", "OPTIONS").Name("new-exercise")
	apiRouter.HandleFunc("/exercises/plan/{planID}", exercisesHandler.HandleListForPlan).Methods("GET", "OPTIONS").Name("list-exercises")
	apiRouter.HandleFunc("/exercises/{id}", exercisesHandler.HandleUpdate).Methods("PUT", "OPTIONS").Name("update-exercise")
	apiRouter.HandleFunc("/exercises/{id}", exercisesHandler.HandleDelete).Methods("DELETE", "OPTIONS").Name("delete-exercise")

	apiRouter.HandleFunc("/stats", statsHandler.HandleStats).Methods("GET", "OPTIONS").Name("stats")

	adminRouter := apiRouter.PathPrefix("/admin").Subrouter()
	adminRouter.Use(middleware.RequireAdmin())
	adminRouter.HandleFunc("/users", usersHandler.HandleAdminList).Methods("GET", "OPTIONS").Name("admin-list-users")
	adminRouter.HandleFunc("/users/{id}/role", usersHandler.HandleAdminChangeRole).Methods("PUT", "OPTIONS").Name("admin-change-role")
	adminRouter.HandleFunc("/users/{id}", usersHandler.HandleAdminDelete).Methods("DELETE", "OPTIONS").Name("admin-delete-user")
	adminRouter.HandleFunc("/workout-plans", plansHandler.HandleAdminList).Methods("GET", "OPTIONS").Name("admin-list-plans")
	adminRouter.HandleFunc("/workout-plans/{id}", plansHandler.HandleAdminDelete).Methods("DELETE", "OPTIONS").Name("admin-delete-plan")
	adminRouter.HandleFunc("/stats", statsHandler.HandleAdminStats).Methods("GET", "OPTIONS").Name("admin-stats")

	authMiddleware := middleware.NewAuthMiddlewareHandler(s.tokenService)
	apiRouter.Use(authMiddleware.AuthCheck())

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors())
	r.Use(middleware.DrainAndCloseRequest())

	return r, nil
}

func (s *Server) Serve(ctx context.Context, host string, port int) {
	router, err := s.routerSetup()
	if err != nil {
		log.Fatalf("failed to setup router: %s", err)
	}

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(
		s.promRegistry,
		promhttp.HandlerOpts{},
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}

	if s.dbPool != nil {
		log.Debugln("closing db pool ...")
		s.dbPool.Close() // blocking operation
		log.Debugln("db pool closed")
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown http server")
	}
	log.Warnln("server shut down")

	if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
		log.Error(" >>> failed to gracefully shutdown metrics http server")
	}
	log.Warnln("metrics server shut down")
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
