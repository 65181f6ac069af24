package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"devicelab/internal/audit"
	"devicelab/internal/auth"
	benchapp "devicelab/internal/benchtest/application"
	benchevents "devicelab/internal/benchtest/application/events"
	benchtest "devicelab/internal/benchtest/domain"
	benchmemory "devicelab/internal/benchtest/infrastructure/memory"
	benchpostgres "devicelab/internal/benchtest/infrastructure/postgres"
	benchhttp "devicelab/internal/benchtest/interfaces/http"
	benchmqtt "devicelab/internal/benchtest/interfaces/mqtt"
	"devicelab/internal/config"
	"devicelab/internal/eventbus"
	"devicelab/internal/lots/adapters/devicemaster"
	lotapp "devicelab/internal/lots/application"
	lotevents "devicelab/internal/lots/application/events"
	lots "devicelab/internal/lots/domain"
	lotmemory "devicelab/internal/lots/infrastructure/memory"
	lotpostgres "devicelab/internal/lots/infrastructure/postgres"
	lothttp "devicelab/internal/lots/interfaces/http"
	"devicelab/internal/observability/metrics"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("env file error: %v", err)
	}
	env := loadEnv()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	var db *sql.DB
	if env.DatabaseURL != "" {
		db, err = sql.Open("pgx", env.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
	} else {
		logger.Printf("DATABASE_URL not set, using in-memory stores")
	}

	metrics.Init(db, logger)
	repos := buildStores(db, cfg, logger)

	bus := eventbus.New()
	benchOpts := []benchapp.Option{
		benchapp.WithLogger(logger),
		benchapp.WithPublisher(bus),
		benchapp.WithPollInterval(cfg.Poller.Interval),
	}
	machine, err := benchapp.NewMachine(repos.boards, benchOpts...)
	if err != nil {
		logger.Fatalf("board machine error: %v", err)
	}
	poller, err := benchapp.NewPoller(repos.boards, machine, benchOpts...)
	if err != nil {
		logger.Fatalf("poller error: %v", err)
	}
	service, err := benchapp.NewService(repos.boards, machine, poller, benchOpts...)
	if err != nil {
		logger.Fatalf("benchtest service error: %v", err)
	}
	engine, err := lotapp.NewEngine(repos.lots, repos.master, repos.settings,
		lotapp.WithLogger(logger),
		lotapp.WithPublisher(bus),
		lotapp.WithDefaultRequiredPercentage(cfg.Verify.RequiredPercentage),
		lotapp.WithVerifyConcurrency(cfg.Verify.Concurrency),
	)
	if err != nil {
		logger.Fatalf("verification engine error: %v", err)
	}
	recorder, err := audit.NewRecorder(repos.audit, logger)
	if err != nil {
		logger.Fatalf("audit recorder error: %v", err)
	}

	broker := benchhttp.NewBroker()
	eventbus.On(bus, poller.HandleBoardUpdated)
	eventbus.On(bus, broker.HandleBoardUpdated)
	eventbus.On(bus, broker.HandleBoardCleared)
	eventbus.On(bus, broker.HandleDeviceStatusChanged)
	eventbus.On(bus, engine.HandleDeviceStatusChanged)
	eventbus.On(bus, recorder.HandleBoardUpdated)
	eventbus.On(bus, recorder.HandleBoardCleared)
	eventbus.On(bus, recorder.HandleLotVerified)
	eventbus.On(bus, recorder.HandleRequiredPercentageChanged)
	eventbus.On(bus, func(_ context.Context, evt benchevents.BoardUpdated) error {
		logger.Printf("board %d %s: %s -> %s by %s", evt.BoardID, evt.Transition, evt.PreviousStatus, evt.Status, evt.Actor)
		return nil
	})
	eventbus.On(bus, func(_ context.Context, evt lotevents.LotVerified) error {
		logger.Printf("lot %d verified: ok=%d failed=%d complete=%t by %s",
			evt.LotSeqID, evt.SuccessfulUpdates, evt.FailedUpdates, evt.LotMarkedComplete, evt.Actor)
		return nil
	})

	boardHandler, err := benchhttp.NewHandler(service, logger)
	if err != nil {
		logger.Fatalf("benchtest handler error: %v", err)
	}
	lotHandler, err := lothttp.NewHandler(engine, logger)
	if err != nil {
		logger.Fatalf("lots handler error: %v", err)
	}

	router := mux.NewRouter()
	router.Use(audit.Middleware)
	router.Handle("/BenchTest/Stream", benchhttp.NewStreamHandler(broker)).Methods(http.MethodGet)
	router.Handle("/BenchTest/ws", benchhttp.NewWSHandler(broker, logger, originChecker(env.AllowedOrigins))).Methods(http.MethodGet)
	boardHandler.Register(router)
	lotHandler.Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("db unavailable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	var handler http.Handler = router
	if env.JWTSecret != "" {
		policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
		handler = auth.NewMiddleware([]byte(env.JWTSecret), policy).Wrap(handler)
	} else {
		logger.Printf("AUTH_JWT_SECRET not set, authentication disabled")
	}
	server := &http.Server{
		Addr:              env.HTTPAddr,
		Handler:           loggingMiddleware(handler, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resumed, err := poller.Resume(ctx)
	if err != nil {
		logger.Printf("poller resume error: %v", err)
	} else if resumed > 0 {
		logger.Printf("resumed polling for %d running boards", resumed)
	}

	var consumer *benchmqtt.StatusConsumer
	if cfg.MQTT.Broker != "" {
		consumer, err = benchmqtt.NewStatusConsumer(cfg.MQTT, service, logger)
		if err != nil {
			logger.Fatalf("mqtt consumer error: %v", err)
		}
		if err := consumer.Start(ctx); err != nil {
			logger.Fatalf("mqtt connect error: %v", err)
		}
		logger.Printf("mqtt consumer subscribed to %s on %s", cfg.MQTT.Topic, cfg.MQTT.Broker)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Printf("http server listening on %s", env.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		if consumer != nil {
			consumer.Stop()
		}
		poller.Shutdown()
		return err
	})
	if err := group.Wait(); err != nil {
		logger.Fatalf("server error: %v", err)
	}
	logger.Printf("shutdown complete")
}

type stores struct {
	boards   benchtest.BoardRepository
	lots     lots.LotRepository
	master   lots.DeviceMaster
	settings lots.SettingsRepository
	audit    audit.Logger
}

// buildStores uses Postgres when a database is configured and in-memory
// stores otherwise. A configured device master URL always wins over the
// devices table.
func buildStores(db *sql.DB, cfg config.Config, logger *log.Logger) stores {
	var s stores
	if db != nil {
		s = stores{
			boards:   benchpostgres.NewBoardRepository(db),
			lots:     lotpostgres.NewLotRepository(db),
			master:   lotpostgres.NewDeviceMasterRepository(db),
			settings: lotpostgres.NewSettingsRepository(db),
			audit:    audit.NewRepository(db),
		}
	} else {
		lotStore := lotmemory.NewStore()
		s = stores{
			boards:   benchmemory.NewBoardRepository(),
			lots:     lotStore,
			master:   lotStore,
			settings: lotStore.Settings(),
			audit:    audit.NewMemoryLog(),
		}
	}
	if cfg.DeviceMaster.BaseURL != "" {
		client, err := devicemaster.NewClient(cfg.DeviceMaster.BaseURL, cfg.DeviceMaster.Token, cfg.DeviceMaster.Timeout)
		if err != nil {
			logger.Fatalf("device master client error: %v", err)
		}
		s.master = client
		logger.Printf("device master writes go to %s", cfg.DeviceMaster.BaseURL)
	}
	return s
}

type envConfig struct {
	DatabaseURL    string
	HTTPAddr       string
	JWTSecret      string
	AllowedOrigins []string
}

func loadEnv() envConfig {
	return envConfig{
		DatabaseURL:    getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:       getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:      getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		AllowedOrigins: splitList(os.Getenv("WS_ALLOWED_ORIGINS")),
	}
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// originChecker accepts any origin when none are configured.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, candidate := range allowed {
			if strings.EqualFold(candidate, origin) {
				return true
			}
		}
		return false
	}
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush lets the event stream flush through the logging wrapper.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack lets the websocket upgrade take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

// Unwrap exposes the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
