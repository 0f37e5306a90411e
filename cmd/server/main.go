// Command server is the composition root for the booking core: it wires
// configuration, the durable store, the fast reservation store, the saga
// orchestrator, the cache coordinator, metrics/health, and every HTTP
// handler, then serves the API until an interrupt signal arrives. The
// teacher repo (speatre-ticket-booking) ships no cmd/ of its own; this
// file follows the bootstrapping shape used by the other pack repos
// (config load -> logger -> stores -> DI -> router -> graceful serve),
// e.g. nat-prohmpiriya-booking-rush-10k-rps's apps/*/main.go.
package main

import (
	"context"
	"flag"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"eventbooking/internal/auth"
	"eventbooking/internal/booking"
	"eventbooking/internal/cache"
	"eventbooking/internal/dbsession"
	"eventbooking/internal/event"
	"eventbooking/internal/metrics"
	"eventbooking/internal/reservation"
	"eventbooking/internal/router"
	"eventbooking/internal/saga"
	"eventbooking/internal/user"
	pkgcache "eventbooking/pkg/cache"
	"eventbooking/pkg/config"
	"eventbooking/pkg/httpserver"
	"eventbooking/pkg/logger"
	"eventbooking/pkg/mq"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigFile, "path to the app config file")
	flag.Parse()

	cfg := config.MustLoadWithDefaults(*configPath)

	appLog := logger.New(cfg.App.Name, cfg.App.Env, cfg.Logging.Dir)
	defer appLog.Sync()
	accessLog := logger.NewAccessLogger(cfg.Logging.Dir)
	defer accessLog.Sync()
	metricsLog := logger.NewMetricsLogger(cfg.Logging.Dir)
	defer metricsLog.Sync()

	appLog.Info("starting booking core", zap.String("env", cfg.App.Env))

	db, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{})
	if err != nil {
		appLog.Fatal("open postgres", zap.Error(err))
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(cfg.DBPool.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.DBPool.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.DBPool.ConnMaxLifetime)
		sqlDB.SetConnMaxIdleTime(cfg.DBPool.ConnMaxIdleTime)
	}
	session := dbsession.New(db, dbsession.DialectPostgres, appLog)

	redisConn := pkgcache.MustOpen(cfg.Redis.Addr, cfg.Redis.DB)
	defer redisConn.Close()
	rdb := redisConn.Client()

	breaker := reservation.NewCircuitBreaker(
		cfg.Reservation.CircuitFailureThreshold,
		time.Duration(cfg.Reservation.CircuitRecoverySeconds)*time.Second,
		cfg.Reservation.CircuitHalfOpenMaxCalls,
	)
	resv := reservation.New(rdb, breaker, appLog)
	cacheCoord := cache.New(rdb, appLog)

	amqpConn := mq.MustDial(cfg.RabbitMQ.URL)
	defer amqpConn.Close()
	amqpCh, err := amqpConn.Channel()
	if err != nil {
		appLog.Fatal("open amqp channel", zap.Error(err))
	}
	publisher := mq.NewPublisher(amqpCh, "booking")

	userRepo := user.NewRepository(db)
	userSvc := user.NewService(userRepo, appLog)
	userHandler := user.NewHandler(userSvc, &cfg.Security, appLog)

	eventRepo := event.NewRepository(session)
	if err := eventRepo.AutoMigrate(); err != nil {
		appLog.Fatal("migrate events", zap.Error(err))
	}
	if err := eventRepo.EnsureCapacityGuard(context.Background()); err != nil {
		appLog.Fatal("install seat capacity guard", zap.Error(err))
	}

	bookingRepo := booking.NewRepository(session)
	if err := bookingRepo.AutoMigrate(); err != nil {
		appLog.Fatal("migrate bookings", zap.Error(err))
	}

	eventSvc := event.NewService(eventRepo, cacheCoord, bookingRepo, appLog)
	eventHandler := event.NewHandler(eventSvc, appLog)

	stateRepo := saga.NewStateRepository(session)
	if err := stateRepo.AutoMigrate(); err != nil {
		appLog.Fatal("migrate saga state", zap.Error(err))
	}
	orch := saga.NewOrchestrator(stateRepo, appLog)

	reg := prometheus.NewRegistry()
	collector := metrics.New(reg, metricsLog)
	metricsSrv := metrics.StartServer(cfg.Server.MetricsAddr, collector, reg, metricsLog, time.Duration(cfg.Observability.MetricsUpdateSeconds)*time.Second)
	defer metricsSrv.Shutdown(context.Background())

	bookingCfg := booking.Config{
		MaxSeatsPerBooking:       cfg.Booking.MaxSeatsPerBooking,
		BookingsPerUserPerMinute: cfg.Booking.BookingsPerUserPerMinute,
		BookingExpiration:        time.Duration(cfg.Booking.ExpirationMinutes) * time.Minute,
		SeatLockTTL:              time.Duration(cfg.Reservation.SeatLockTTLSeconds) * time.Second,
		CancellationWindow:       time.Duration(cfg.Booking.CancellationWindowHours) * time.Hour,
		CircuitRecoverySeconds:   cfg.Reservation.CircuitRecoverySeconds,
	}
	bookingSvc := booking.NewService(bookingRepo, eventRepo, session, orch, resv, cacheCoord, publisher, collector, appLog, bookingCfg)
	bookingHandler := booking.NewHandler(bookingSvc, appLog)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	recovered, err := orch.RecoverIncompleteSagas(ctx)
	cancel()
	if err != nil {
		appLog.Error("recover incomplete sagas", zap.Error(err))
	} else if recovered > 0 {
		appLog.Warn("marked incomplete sagas failed on startup", zap.Int("count", recovered))
	}

	sweepStop := startSagaSweep(orch, appLog)
	defer close(sweepStop)

	health := metrics.NewHealthChecker(config.DefaultHealthCheckTimeout)
	health.Register("database", func(ctx context.Context) (metrics.DependencyStatus, string) {
		start := time.Now()
		if err := session.Ping(ctx); err != nil {
			return metrics.DependencyDown, err.Error()
		}
		if time.Since(start) > time.Second {
			return metrics.DependencyDegraded, "slow response"
		}
		return metrics.DependencyHealthy, ""
	})
	health.Register("reservation_store", func(ctx context.Context) (metrics.DependencyStatus, string) {
		if resv.CircuitState() == reservation.StateOpen {
			return metrics.DependencyDegraded, "circuit breaker open"
		}
		if err := resv.Ping(ctx); err != nil {
			return metrics.DependencyDown, err.Error()
		}
		return metrics.DependencyHealthy, ""
	})
	health.Register("message_broker", func(ctx context.Context) (metrics.DependencyStatus, string) {
		if amqpConn.IsClosed() {
			return metrics.DependencyDown, "connection closed"
		}
		return metrics.DependencyHealthy, ""
	})

	authMiddleware := auth.NewMiddleware(appLog, accessLog, &cfg.Security, resv)

	engine := router.New(router.Deps{
		UserH:    userHandler,
		EventH:   eventHandler,
		BookingH: bookingHandler,
		Cfg:      &cfg.Security,
		AuthM:    authMiddleware,
	})
	engine.GET("/health", gin.WrapF(health.Handler()))
	engine.GET("/health/database", gin.WrapF(health.ComponentHandler("database")))
	engine.GET("/health/redis", gin.WrapF(health.ComponentHandler("reservation_store")))

	httpserver.ServeGraceful(cfg.Server.HTTPAddr, engine)
}

// startSagaSweep runs Orchestrator.Sweep on a fixed interval to reconcile
// the in-memory saga registry against its cleanup map (spec §4.3's
// periodic-sweep memory discipline). Returns a channel that stops the
// loop when closed.
func startSagaSweep(orch *saga.Orchestrator, log *zap.Logger) chan struct{} {
	stop := make(chan struct{})
	ticker := time.NewTicker(5 * time.Minute)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := orch.Sweep(30 * time.Minute); n > 0 {
					log.Warn("saga sweep reclaimed stale entries", zap.Int("count", n))
				}
			case <-stop:
				return
			}
		}
	}()
	return stop
}
