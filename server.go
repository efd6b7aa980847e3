package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TheThommo/PerformanceAICoach-sub000/api"
	"github.com/TheThommo/PerformanceAICoach-sub000/assessment"
	"github.com/TheThommo/PerformanceAICoach-sub000/auth"
	"github.com/TheThommo/PerformanceAICoach-sub000/coaching"
	"github.com/TheThommo/PerformanceAICoach-sub000/config"
	"github.com/TheThommo/PerformanceAICoach-sub000/database/postgres"
	"github.com/TheThommo/PerformanceAICoach-sub000/logger"
	"github.com/TheThommo/PerformanceAICoach-sub000/modelapi"
	"github.com/TheThommo/PerformanceAICoach-sub000/modelapi/geminiapi"
	"github.com/TheThommo/PerformanceAICoach-sub000/modelapi/groqapi"
	"github.com/TheThommo/PerformanceAICoach-sub000/modelapi/openaiapi"
	"github.com/TheThommo/PerformanceAICoach-sub000/recommendation"
	"github.com/TheThommo/PerformanceAICoach-sub000/session"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/hyperdxio/opentelemetry-logs-go/exporters/otlp/otlplogs"
	sdk "github.com/hyperdxio/opentelemetry-logs-go/sdk/logs"
	"github.com/hyperdxio/otel-config-go/otelconfig"
)

func main() {
	godotenv.Load()
	cfg := config.Load()

	otelShutdown, err := otelconfig.ConfigureOpenTelemetry()
	if err != nil {
		log.Fatalf("Error setting up OTel SDK - %e", err)
	}
	defer otelShutdown()
	ctx := context.Background()

	logExporter, _ := otlplogs.NewExporter(ctx)
	loggerProvider := sdk.NewLoggerProvider(sdk.WithBatcher(logExporter))
	defer loggerProvider.Shutdown(ctx)

	LogMiddleware := logger.Connect(logger.LoggerConnectProps{Production: cfg.Production, LoggerProvider: loggerProvider})
	defer LogMiddleware.Sync()
	Logger := LogMiddleware.Logger(ctx)

	db := postgres.Connect(ctx, postgres.DatabaseConnectProps{Logger: LogMiddleware})

	var provider modelapi.Provider
	switch cfg.ModelProvider {
	case "groq":
		provider = groqapi.Connect(ctx, groqapi.GroqConnectProps{Logger: LogMiddleware})
	case "openai":
		provider = openaiapi.Connect(ctx, openaiapi.OpenAIConnectProps{Logger: LogMiddleware})
	default:
		provider = geminiapi.Connect(ctx, geminiapi.GeminiConnectProps{Logger: LogMiddleware})
	}
	Logger.Info("[Server] Model provider selected", zap.String("provider", cfg.ModelProvider))

	coach := coaching.Connect(ctx, coaching.CoachingConnectProps{Logger: LogMiddleware, Provider: provider})
	authService := auth.Connect(ctx, auth.AuthConnectProps{Logger: LogMiddleware, Store: db, JwtSecret: cfg.JWTSecret})
	sessionService := session.Connect(ctx, session.SessionConnectProps{Logger: LogMiddleware, Store: db, Coach: coach})
	assessmentService := assessment.Connect(ctx, assessment.AssessmentConnectProps{Logger: LogMiddleware, Store: db, Coach: coach})
	engine := recommendation.Connect(ctx, recommendation.EngineConnectProps{Logger: LogMiddleware, Store: db})

	apiService := api.Connect(ctx, api.ApiConnectProps{
		Logger:             LogMiddleware,
		Auth:               authService,
		Session:            sessionService,
		Assessment:         assessmentService,
		Recommendations:    engine,
		Catalog:            db,
		MaxHistoryMessages: cfg.MaxHistoryMessages,
	})

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: otelhttp.NewHandler(apiService.Router(), "server"),
	}

	go func() {
		if cfg.Production == false {
			Logger.Info("[Server] Starting in development mode", zap.String("port", cfg.Port))
		} else {
			Logger.Info("[Server] Starting in production mode", zap.String("port", cfg.Port))
		}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			Logger.Error("[Server] Listener stopped", zap.Error(err))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	Logger.Info("[Server] Shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		Logger.Error("[Server] Shutdown error", zap.Error(err))
	}
}
