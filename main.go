package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-boxoffice/internal/auth"
	"ms-boxoffice/internal/checkin"
	"ms-boxoffice/internal/checkin/checkin_api"
	"ms-boxoffice/internal/config"
	"ms-boxoffice/internal/database/migrations"
	"ms-boxoffice/internal/issuance"
	"ms-boxoffice/internal/issuance/issuance_api"
	"ms-boxoffice/internal/kafka"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/notify"
	"ms-boxoffice/internal/payment"
	"ms-boxoffice/internal/pdfgen"
	"ms-boxoffice/internal/qr"
	"ms-boxoffice/internal/recovery"
	"ms-boxoffice/internal/tickets"
	ticket_db "ms-boxoffice/internal/tickets/db"
	"ms-boxoffice/internal/tickets/ticket_api"
)

func verifyConnections(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bun.DB, *redis.Client) {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	log.Info("DATABASE", "PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("Redis connection successful to %s", cfg.Redis.Addr))

	return bunDB, redisClient
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting box office service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	if cfg.QRSecret == "" {
		log.Fatal("CONFIG", "QR_SECRET_KEY not set")
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}
	ctx := context.Background()

	log.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, log)
	defer bunDB.Close()
	defer redisClient.Close()

	migrator := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := migrator.MigrateUp(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migration failed: %v", err))
	}
	log.Info("DATABASE", "Schema migrations applied")

	var publisher notify.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()
		publisher = producer

		requiredTopics := []string{
			cfg.Kafka.Topics.TicketsIssued,
			cfg.Kafka.Topics.TicketReady,
			cfg.Kafka.Topics.CheckinEvents,
			cfg.Kafka.Topics.RecoveryInvites,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
	} else {
		log.Warn("KAFKA", "Kafka disabled, lifecycle events will not be published")
	}

	notifier := notify.NewNotifier(publisher, log, cfg.Kafka.Topics)

	store := &ticket_db.DB{Bun: bunDB}
	qrGenerator := qr.NewGenerator(cfg.QRSecret)
	pdfGenerator := pdfgen.NewTicketPDFGenerator(os.Getenv("TICKET_FONT_PATH"))

	keycloakCache := auth.NewRedisTokenCache(redisClient, "m2m:keycloak")
	identityProvider := auth.NewKeycloakProvider(cfg.Auth.Keycloak, httpClient, keycloakCache)

	paypalCache := auth.NewRedisTokenCache(redisClient, "m2m:paypal")
	paypalClient := payment.NewPayPalClient(cfg.PayPal.BaseURL, cfg.PayPal.ClientID, cfg.PayPal.ClientSecret, httpClient, paypalCache)

	recoveryService := recovery.NewService(store, log)
	issuanceService := issuance.NewService(store, identityProvider, paypalClient, notifier, log)
	ticketService := tickets.NewService(store, qrGenerator, pdfGenerator, notifier, recoveryService, log)

	ticketLock := checkin.NewTicketLock(redisClient, cfg.Checkin.LockTTL)
	checkinService := checkin.NewService(store, ticketLock, notifier, log, cfg.Checkin.UndoWindow)

	checkinHandler := checkin_api.NewHandler(checkinService, qrGenerator)
	issuanceHandler := issuance_api.NewHandler(issuanceService)
	ticketHandler := ticket_api.NewHandler(ticketService)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	// --- Public routes ---
	r.Route("/api/public", func(r chi.Router) {
		r.Post("/purchases/capture", issuanceHandler.CompletePurchase)
		r.Get("/tickets/{qrID}/status", checkinHandler.PublicStatus)
		r.Post("/preregistrations", ticketHandler.Preregister)
	})
	log.Info("ROUTER", "Public routes registered under /api/public")

	// --- Protected routes ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth.OIDCIssuer))
		log.Info("AUTH", "OIDC middleware applied to protected API routes")

		r.Route("/api", func(r chi.Router) {
			r.Get("/tickets", ticketHandler.MyTickets)
			r.Put("/tickets/{ticketID}/attendee", ticketHandler.ConfigureAttendee)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRoles(models.RoleAdmin, models.RoleGestor, models.RoleComprobador))
				r.Post("/checkin", checkinHandler.Scan)
			})

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRoles(models.RoleAdmin, models.RoleGestor))
				r.Post("/courtesy", issuanceHandler.IssueCourtesy)
				r.Get("/courtesy", issuanceHandler.ListCourtesy)
				r.Get("/users/{userID}/tickets", ticketHandler.UserTickets)
				r.Get("/tickets/{ticketID}/logs", ticketHandler.TicketLogs)
				r.Get("/events/{eventID}/preregistrations", ticketHandler.ListPreregistrations)
			})
		})
	})
	log.Info("ROUTER", "Protected routes registered under /api")

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Box office service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	} else {
		log.Info("HTTP", "Box office service shutdown complete")
	}
}
