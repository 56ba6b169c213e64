package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/avaclinic/booking-assistant/internal/api/router"
	"github.com/avaclinic/booking-assistant/internal/appointments"
	"github.com/avaclinic/booking-assistant/internal/clinic"
	appconfig "github.com/avaclinic/booking-assistant/internal/config"
	"github.com/avaclinic/booking-assistant/internal/conversation"
	"github.com/avaclinic/booking-assistant/internal/db"
	"github.com/avaclinic/booking-assistant/internal/http/handlers"
	"github.com/avaclinic/booking-assistant/internal/notify"
	"github.com/avaclinic/booking-assistant/internal/observability/metrics"
	"github.com/avaclinic/booking-assistant/pkg/logging"
)

func main() {
	// Load .env if present; real deployments set env vars directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking-assistant API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	bookingMetrics := metrics.NewBookingMetrics(registry)

	// Clinic configuration: Redis-backed when available, built-in defaults otherwise.
	var clinics clinic.ConfigSource
	if cfg.RedisAddr != "" {
		redisOpts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient := redis.NewClient(redisOpts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("redis unreachable", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		clinics = clinic.NewStore(redisClient)
		logger.Info("clinic config backed by redis", "addr", cfg.RedisAddr)
	} else {
		clinics = clinic.NewStaticSource(nil)
		logger.Info("clinic config using built-in defaults")
	}

	// Appointment storage: Postgres when configured, in-memory otherwise.
	var repo appointments.Repository
	if cfg.DatabaseURL != "" {
		pool, err := db.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		repo = appointments.NewPgRepository(pool)
		logger.Info("appointments backed by postgres")
	} else {
		repo = appointments.NewInMemoryRepository()
		logger.Warn("DATABASE_URL not set, appointments held in memory")
	}

	emailSender := buildEmailSender(ctx, cfg, logger)
	notifier := notify.NewService(emailSender, cfg.PublicBaseURL, logger)

	bookingService := appointments.NewService(repo, clinics, cfg.ClinicOrgID,
		appointments.WithNotifier(notifier),
		appointments.WithLogger(logger),
		appointments.WithMetrics(bookingMetrics),
	)
	confirmations := appointments.NewConfirmationService(repo, logger, bookingMetrics)

	llm := buildLLMClient(ctx, cfg, logger, bookingMetrics)

	dispatcher := conversation.NewDispatcher(bookingService, clinics, cfg.ClinicOrgID, logger, bookingMetrics)
	orchestrator := conversation.NewOrchestrator(llm, dispatcher, clinics, cfg.ClinicOrgID, cfg.OpenAIModel,
		conversation.WithCallTimeout(cfg.CompletionTimeout),
		conversation.WithMaxTokens(int32(cfg.CompletionMaxTokens)),
		conversation.WithOrchestratorLogger(logger),
		conversation.WithOrchestratorMetrics(bookingMetrics),
	)

	chatHandler := conversation.NewHandler(orchestrator, logger)
	confirmHandler := handlers.NewConfirmHandler(confirmations, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		ChatHandler:        chatHandler,
		ConfirmHandler:     confirmHandler,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		ChatRateLimit:      cfg.ChatRateLimit,
		ChatRateBurst:      cfg.ChatRateBurst,
		ConfirmRateLimit:   cfg.ConfirmRateLimit,
		ConfirmRateBurst:   cfg.ConfirmRateBurst,
	})

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// Streaming chat responses outlive a short write timeout; the
		// orchestrator enforces its own per-call budget instead.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// buildEmailSender picks the configured email backend, falling back to the
// log-only stub so booking links always show up somewhere in development.
func buildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "sendgrid":
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
		if sender != nil {
			logger.Info("email via sendgrid", "from", cfg.SendGridFromEmail)
			return sender
		}
		logger.Warn("EMAIL_PROVIDER=sendgrid but SENDGRID_API_KEY missing, using stub sender")
	case "ses":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			logger.Error("failed to load AWS config for SES", "error", err)
			os.Exit(1)
		}
		sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger)
		if sender != nil {
			logger.Info("email via ses", "from", cfg.SESFromEmail)
			return sender
		}
	}
	return notify.NewStubEmailSender(logger)
}

// buildLLMClient wires the OpenAI-compatible backend, with an optional
// Bedrock fallback for plain-text turns.
func buildLLMClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, m *metrics.BookingMetrics) conversation.StreamingLLMClient {
	if cfg.OpenAIAPIKey == "" {
		logger.Error("OPENAI_API_KEY is required")
		os.Exit(1)
	}
	primary := conversation.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, logger)

	if cfg.BedrockModelID == "" {
		return primary
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		logger.Error("failed to load AWS config for bedrock", "error", err)
		os.Exit(1)
	}
	fallback := conversation.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID)
	logger.Info("bedrock fallback enabled", "model", cfg.BedrockModelID)
	return conversation.NewFallbackClient(primary, fallback, logger, m)
}
