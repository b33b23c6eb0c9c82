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
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-verify/internal/audit"
	"ms-verify/internal/auth"
	"ms-verify/internal/config"
	"ms-verify/internal/database/migrations"
	"ms-verify/internal/kafka"
	"ms-verify/internal/logger"
	"ms-verify/internal/signature"
	"ms-verify/internal/stats"
	"ms-verify/internal/tickets"
	ticketdb "ms-verify/internal/tickets/db"
	"ms-verify/internal/tickets/ticket_api"
	"ms-verify/internal/utils"
	"ms-verify/internal/verify"
	verifyapi "ms-verify/internal/verify/api"
)

func openDatabase(ctx context.Context, cfg *config.Config, log *logger.Logger) *bun.DB {
	sqldb, err := sql.Open("sqlite", cfg.Database.DSN)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("failed to open database: %v", err))
	}
	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("failed to connect: %v", err))
	}

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	if err := migrations.Run(ctx, bunDB); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("migrations failed: %v", err))
	}
	log.Info("DATABASE", "connected and migrated")
	return bunDB
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.NewLogger()
	defer log.Close()

	ctx := context.Background()
	bunDB := openDatabase(ctx, cfg, log)
	defer bunDB.Close()

	signer := signature.NewSigner(cfg.QR.SecretKey)
	verifier := signature.NewVerifier(signer)

	ticketStore := &ticketdb.DB{Bun: bunDB}
	auditLog := audit.NewRecorder(bunDB)

	verifySvc := verify.NewService(ticketStore, auditLog, verifier, log, cfg.QR.ExpiryHours)

	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{cfg.Kafka.ScanEventTopic}); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("topic bootstrap failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.ScanEventTopic)
		defer producer.Close()
		verifySvc.Events = producer
		log.Info("KAFKA", fmt.Sprintf("scan events streaming to %s", cfg.Kafka.ScanEventTopic))
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("REDIS", fmt.Sprintf("unreachable, stats cache disabled: %v", err))
			redisClient = nil
		}
	}

	ticketSvc := tickets.NewTicketService(ticketStore, signer)
	statsSvc := stats.NewService(ticketStore, redisClient, cfg.Redis.StatsTTL, log)

	verifyHandler := &verifyapi.Handler{Service: verifySvc, Logger: log}
	ticketHandler := &ticket_api.Handler{TicketService: ticketSvc, Logger: log}
	statsHandler := &stats.Handler{Service: statsSvc}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "ms-verify"})
	})

	r.Route("/api", func(r chi.Router) {
		r.With(auth.Middleware(cfg.Auth.ScannerJWTSecret)).Post("/verify", verifyHandler.VerifyTicket)

		r.Route("/tickets", func(r chi.Router) {
			r.Get("/", ticketHandler.ListTickets)
			r.Get("/token/{token}", ticketHandler.ViewTicketByToken)
			r.Get("/{orderID}", ticketHandler.ViewTicket)
			r.Get("/{orderID}/qr", ticketHandler.TicketQR)
			r.Patch("/{orderID}/cancel", ticketHandler.CancelTicket)
		})

		r.Get("/stats", statsHandler.GetStats)
		r.Get("/history", statsHandler.GetHistory)
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("SERVER", fmt.Sprintf("verify service on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", fmt.Sprintf("HTTP error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctxShutdown)
	log.Info("SERVER", "shutdown complete")
}
