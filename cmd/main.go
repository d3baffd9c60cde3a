/**
 * @description
 * This is the main entry point for the booking-service. It is responsible for
 * initializing all components of the service, including configuration,
 * database connection, external API clients, message brokers, repositories,
 * the core application service, and the HTTP server. It wires everything
 * together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: For the event listing cache.
 * - internal/api, internal/app, internal/config, internal/notifier, internal/store: Internal packages.
 * - pkg/cashfree, pkg/gcalendar, pkg/mailer, pkg/rabbitmq: External service clients.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/soulsadhna/booking-service/internal/api"
	"github.com/soulsadhna/booking-service/internal/app"
	"github.com/soulsadhna/booking-service/internal/config"
	"github.com/soulsadhna/booking-service/internal/notifier"
	"github.com/soulsadhna/booking-service/internal/store"
	"github.com/soulsadhna/booking-service/pkg/cashfree"
	"github.com/soulsadhna/booking-service/pkg/gcalendar"
	"github.com/soulsadhna/booking-service/pkg/mailer"
	rmrabbit "github.com/soulsadhna/booking-service/pkg/rabbitmq"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"jwt secret must be configured\" env=JWT_SECRET")
	}
	if strings.TrimSpace(cfg.CashfreeClientSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"cashfree credentials must be configured\" env=CASHFREE_CLIENT_SECRET")
	}

	log.Printf("level=info component=bootstrap msg=\"starting booking-service\" port=%s require_payment=%t", cfg.ServerPort, cfg.RequirePaymentForBooking)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer for payment lifecycle events. Email
	// fan-out degrades to the fallback when the broker is down; bookings
	// must keep working.
	var producer rmrabbit.Publisher
	if eventProducer, prodErr := rmrabbit.NewEventProducer(cfg.RabbitMQURL); prodErr != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", prodErr)
		producer = &rmrabbit.EventProducerFallback{}
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the external service clients.
	cashfreeClient := cashfree.NewClient(cfg.CashfreeBaseURL, cfg.CashfreeClientID, cfg.CashfreeClientSecret)
	calendarClient := gcalendar.NewClient(cfg.CalendarBaseURL, cfg.CalendarID, cfg.CalendarAccessToken)

	// Redis backs the public event listing cache. A missing or unreachable
	// Redis disables caching, nothing else.
	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; event cache disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; event cache disabled\" err=%v", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; event cache disabled\" err=%v", pingErr)
				redisClient.Close()
				redisClient = nil
			} else {
				defer redisClient.Close()
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application service with its dependencies.
	notifyURL := strings.TrimRight(cfg.BackendURL, "/") + "/payments/webhook"
	returnURL := strings.TrimRight(cfg.FrontendURL, "/") + "/booking/status?order_id={order_id}"
	bookingService := app.NewService(
		repository,
		cashfreeClient,
		calendarClient,
		producer,
		cfg.BookingEventExchange,
		returnURL,
		notifyURL,
		cfg.RequirePaymentForBooking,
	)
	bookingService.ConfigureReconciliation(
		time.Duration(cfg.ReconcilePendingAgeSeconds)*time.Second,
		cfg.ReconcileBatchLimit,
	)

	// Initialize the API handlers.
	responseCache := api.NewResponseCache(redisClient, time.Duration(cfg.EventCacheTTLSeconds)*time.Second)
	bookingHandlers := api.NewBookingHandlers(bookingService, responseCache)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/", api.BookingRoutes(bookingHandlers, cfg.JWTSecret))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	// Wire up the email notifier: a RabbitMQ consumer bound to the terminal
	// payment routing keys, feeding the SMTP mailer.
	smtpMailer := mailer.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPSender, cfg.PlatformName)
	if rabbitConsumer, consErr := rmrabbit.NewConsumer(cfg.RabbitMQURL); consErr != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq consumer unavailable; email notifications disabled\" err=%v", consErr)
	} else {
		defer rabbitConsumer.Close()
		emailNotifier := notifier.New(smtpMailer)
		if err := emailNotifier.Start(rabbitConsumer, cfg.BookingEventExchange, cfg.BookingEmailQueue); err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"email consumer start failed\" err=%v", err)
		}
		log.Println("level=info component=bootstrap msg=\"email notifier started\"")
	}

	// Start the background reconciliation loop for stuck PENDING payments.
	reconcileCtx, cancelReconcile := context.WithCancel(context.Background())
	defer cancelReconcile()
	go bookingService.RunReconcileLoop(reconcileCtx, time.Duration(cfg.ReconcileIntervalSeconds)*time.Second)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	cancelReconcile()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
