package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-booking/internal/analytics"
	"ms-booking/internal/analytics/analytics_api"
	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	"ms-booking/internal/booking/booking_api"
	bookingdb "ms-booking/internal/booking/db"
	bookingredis "ms-booking/internal/booking/redis"
	"ms-booking/internal/config"
	"ms-booking/internal/event"
	eventdb "ms-booking/internal/event/db"
	"ms-booking/internal/event/event_api"
	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
	"ms-booking/internal/sse"
	"ms-booking/internal/tickets/qr"
	"ms-booking/internal/user"
	userdb "ms-booking/internal/user/db"
	"ms-booking/internal/user/user_api"
	"ms-booking/internal/utils"
)

func connectPostgres(cfg config.DatabaseConfig, log *logger.Logger) (*sql.DB, error) {
	var (
		sqldb *sql.DB
		err   error
	)
	for i := 0; i < cfg.ConnRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, cfg.ConnRetries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = sqldb.PingContext(ctx)
			cancel()
			if err == nil {
				break
			}
			sqldb.Close()
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < cfg.ConnRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to PostgreSQL after %d attempts: %w", cfg.ConnRetries, err)
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)
	log.Info("DATABASE", "PostgreSQL connection successful")
	return sqldb, nil
}

// connectRedis returns nil when Redis is disabled or unreachable; the
// admission lock and token revocation are then skipped.
func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	if !cfg.Enabled {
		log.Info("REDIS", "Redis disabled")
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("REDIS", fmt.Sprintf("Redis at %s unreachable, continuing without it: %v", cfg.Addr, err))
		client.Close()
		return nil
	}
	log.Info("REDIS", fmt.Sprintf("Redis connection successful to %s (DB: %d)", cfg.Addr, cfg.DB))
	return client
}

// requestLogger records method, path, status and latency of every request.
func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, ww.Status(), time.Since(start))
		})
	}
}

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	log, err := logger.NewLogger(logger.ParseLevel(cfg.LogLevel))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	if envErr != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(cfg, log, os.Args[2:]); err != nil {
			log.Fatal("MIGRATE", err.Error())
		}
		return
	}

	log.Info("APP", "Starting Booking Service initialization")
	ctx, stopConsumers := context.WithCancel(context.Background())
	defer stopConsumers()

	sqldb, err := connectPostgres(cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()

	if cfg.Migrations.AutoMigrate {
		if err := migrateOnStartup(cfg, sqldb, log); err != nil {
			log.Fatal("MIGRATE", err.Error())
		}
	}

	redisClient := connectRedis(ctx, cfg.Redis, log)
	if redisClient != nil {
		defer redisClient.Close()
	}

	issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatal("CONFIG", fmt.Sprintf("JWT_SECRET: %v", err))
	}
	qrSecret := cfg.Tickets.QRSecret
	if qrSecret == "" {
		qrSecret = cfg.Auth.JWTSecret
	}
	tickets, err := qr.NewGenerator(qrSecret)
	if err != nil {
		log.Fatal("CONFIG", fmt.Sprintf("TICKET_QR_SECRET: %v", err))
	}

	users := &userdb.DB{Bun: bunDB}
	bookings := &bookingdb.DB{Bun: bunDB}
	emitter := sse.NewBookingEmitter()

	userService := user.NewService(users, issuer, log, cfg.Auth.AllowAdminSignup)
	var revoked auth.RevocationList
	if redisClient != nil {
		list := auth.NewRedisRevocationList(redisClient)
		userService.Revoked = list
		revoked = list
	}

	bookingService := booking.NewService(bookings, users, log, booking.Config{
		MaxAttempts:  cfg.Admission.MaxAttempts,
		Timeout:      cfg.Admission.Timeout,
		CreatedTopic: cfg.Kafka.Topics.BookingCreated,
	})
	if redisClient != nil && cfg.Admission.LockEnabled {
		bookingService.Lock = bookingredis.NewRedis(redisClient, log, cfg.Admission.LockTTL, cfg.Admission.LockWait)
	}

	eventService := event.NewService(&eventdb.DB{Bun: bunDB}, log)
	analyticsService := analytics.NewService(&analytics.DB{Bun: bunDB}, log)

	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()
		log.Info("KAFKA", fmt.Sprintf("Kafka producer initialized for %v", cfg.Kafka.Brokers))

		topicCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := kafka.EnsureTopicsExist(topicCtx, cfg.Kafka.Brokers, cfg.Kafka.Topics.All()); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		cancel()

		bookingService.Kafka = producer
		eventService.Kafka = producer
		eventService.Topics = event.Topics{
			Created: cfg.Kafka.Topics.EventCreated,
			Updated: cfg.Kafka.Topics.EventUpdated,
			Deleted: cfg.Kafka.Topics.EventDeleted,
		}

		// every instance reads every booking so its SSE clients see them all
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.BookingCreated, cfg.Kafka.StreamGroupID(), log)
		defer consumer.Close()
		go consumer.Start(ctx, emitter.HandleKafkaMessage)
	} else {
		bookingService.Notifier = emitter
		log.Info("KAFKA", "Kafka disabled, booking streams are local to this instance")
	}

	userHandler := &user_api.Handler{UserService: userService, Logger: log}
	eventHandler := &event_api.Handler{EventService: eventService, Logger: log}
	analyticsHandler := &analytics_api.Handler{Service: analyticsService, Logger: log}
	bookingHandler := &booking_api.Handler{
		BookingService: bookingService,
		Events:         bookings,
		Tickets:        tickets,
		Stream:         booking_api.NewSSEHandler(log, emitter, bookings),
		Logger:         log,
	}

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", map[string]string{"service": "booking"}))
	})

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.Server.RequestTimeout))
			userHandler.RegisterPublicRoutes(r)
			eventHandler.RegisterPublicRoutes(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(issuer, revoked, log))

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(cfg.Server.RequestTimeout))
				userHandler.RegisterRoutes(r)
				eventHandler.RegisterRoutes(r)
				bookingHandler.RegisterRoutes(r)
				analyticsHandler.RegisterRoutes(r)
			})
			bookingHandler.RegisterStreamRoutes(r)
		})
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		// cancelled on shutdown so open booking streams end
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Booking Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	stopConsumers()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	} else {
		log.Info("HTTP", "Booking Service shutdown complete")
	}
}
