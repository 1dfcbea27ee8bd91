package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"trade-journal-bot/internal/bot"
	"trade-journal-bot/internal/cache"
	"trade-journal-bot/internal/config"
	"trade-journal-bot/internal/conversation"
	"trade-journal-bot/internal/db"
	"trade-journal-bot/internal/handler"
	"trade-journal-bot/internal/job"
	"trade-journal-bot/internal/provider"
	"trade-journal-bot/internal/repository"
	"trade-journal-bot/internal/service"
	"trade-journal-bot/internal/suggest"
	"trade-journal-bot/pkg/tracing"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	initPostgresFunc       = db.InitPostgres
	initRedisFunc          = cache.InitRedis
	initTracerFunc         = tracing.InitTracer
	newTradeRepoFunc       = repository.NewTradeRepository
	newPendingRepoFunc     = repository.NewPendingRepository
	newTelegramBotFunc     = bot.NewTelegramBot
	startTelegramBotFunc   = bot.StartTelegramBot
	newRouterFunc          = gin.Default
	setupSignalNotify      = ossignal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init Postgres and Redis
	initPostgresFunc(ctx, cfg.DatabaseURL)
	initRedisFunc(ctx, cfg.RedisURL)

	// Init tracing
	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	// Create repositories and run migrations. A missing DATABASE_URL leaves
	// the pool interface nil so repository calls fail with ErrNotConnected
	// instead of dereferencing a typed-nil pool.
	var pool repository.PgxPool
	if db.Pool != nil {
		pool = db.Pool
	}
	tradeRepo := newTradeRepoFunc(pool, tracer)
	if pool != nil {
		if err := tradeRepo.RunMigrations(ctx); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
	}
	pendingRepo := newPendingRepoFunc(cache.Client, tracer)

	// Option schema, history scoring, suggestion cache
	schemaProvider := provider.NewNotionSchemaProvider(tracer, cfg.NotionAPIToken, cfg.NotionDatabaseID, cfg.NotionTimeout)
	optionSource := suggest.NewOptionSource(schemaProvider)
	history := suggest.NewHistoryAggregator(tradeRepo)
	suggestionCache := suggest.NewCache(optionSource, history, cache.Client, schemaProvider.SchemaID(), cfg.SchemaCacheTTL, cfg.SuggestionCacheTTL)

	journalService := service.NewJournalService(tracer, tradeRepo, suggestionCache)

	// Telegram transport: the bot must exist before the engine so the
	// presenter can render through it.
	b := newTelegramBotFunc(cfg.TelegramBotToken)
	presenter := bot.NewPresenter(b, cfg.SuggestionTopN)
	engine := conversation.NewEngine(suggestionCache, journalService, pendingRepo, presenter, cfg.SessionIdleThreshold, cfg.MaxInputErrors)
	startTelegramBotFunc(b, engine)

	// Background session sweep (stopped by ctx cancel)
	sweeper := job.NewSessionSweeper(engine, cfg.SessionSweepInterval)
	go sweeper.Start(ctx)

	// HTTP read surface
	h := handler.New(tracer, journalService)

	r := newRouterFunc()
	r.Use(otelgin.Middleware("trade-journal-bot"))
	r.Use(cors.Default())
	h.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
