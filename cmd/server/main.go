package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/cache"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/gate"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/malpractice"
	"github.com/stemsi/exstem-proctor/internal/messaging"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/retry"
	"github.com/stemsi/exstem-proctor/internal/router"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/upstream"
	"github.com/stemsi/exstem-proctor/internal/validator"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
	"github.com/stemsi/exstem-proctor/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExStem Proctor")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	loc, err := time.LoadLocation(cfg.ExamTimezone)
	if err != nil {
		log.Fatal().Err(err).Str("timezone", cfg.ExamTimezone).Msg("Unknown exam timezone")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Connect to RabbitMQ (optional) ────────────────────────────────
	publisher, err := messaging.Connect(cfg.AMQPURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	defer publisher.Close()

	// ─── Upstream Collaborators ────────────────────────────────────────
	upstreamClient := upstream.NewClient(cfg.UpstreamBaseURL, cfg.HTTPTimeout, log)
	clock := upstream.NewTimeAuthority(cfg.TimeAuthorityURL, loc, cfg.HTTPTimeout, log)
	examGate := gate.New(clock, loc, cfg.ExamWindow)

	// ─── Initialize Repositories ───────────────────────────────────────
	attemptRepo := repository.NewAttemptRepository(pool)
	malpracticeRepo := repository.NewMalpracticeRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg.JWTSecret)
	board := service.NewStatusBoard(rdb, cfg.AnswerCacheTTL)
	answerCache := cache.New(cache.NewRedisStore(rdb), cfg.AnswerCacheTTL, log)
	malpracticeQueue := worker.NewMalpracticeQueue(rdb, log)
	hub := ws.NewHub()

	catalogRetrier := retry.New(cfg.RetryMaxAttempts, cfg.RetryBaseDelay, log)
	catalogRetrier.Observe = metrics.ObserveRetry
	courseService := service.NewCourseService(upstreamClient, attemptRepo, examGate, board, catalogRetrier, log)

	sessionService := service.NewExamSessionService(service.ExamSessionDeps{
		Courses:   courseService,
		Gate:      examGate,
		Backend:   upstreamClient,
		Cache:     answerCache,
		Attempts:  attemptRepo,
		Reporter:  malpracticeQueue,
		Publisher: publisher,
		Board:     board,
		Events:    hub,
	}, service.SessionOptions{
		Policy: malpractice.Policy{
			WarnLimit:  cfg.MalpracticeWarnLimit,
			TotalLimit: cfg.MalpracticeTotalLimit,
		},
		Duration:         cfg.ExamDuration,
		Tick:             time.Second,
		Debounce:         cfg.SignalDebounce,
		RetryMaxAttempts: cfg.RetryMaxAttempts,
		RetryBaseDelay:   cfg.RetryBaseDelay,
	}, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Course:  handler.NewCourseHandler(courseService, sessionService),
		Session: handler.NewSessionHandler(sessionService),
		WS:      handler.NewWSHandler(sessionService, hub, log, cfg.AllowedOrigins),
		System:  handler.NewSystemHandler(pool, rdb, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	malpracticeWorker := worker.NewMalpracticeWorker(malpracticeQueue, malpracticeRepo, upstreamClient, publisher, log)
	pendingWorker := worker.NewPendingWorker(sessionService, cfg.PendingRetryInterval, log)

	workersDone := make(chan struct{}, 2)
	go func() { malpracticeWorker.Start(workerCtx); workersDone <- struct{}{} }()
	go func() { pendingWorker.Start(workerCtx); workersDone <- struct{}{} }()

	// ─── Recover Undelivered Submissions ──────────────────────────────
	// Attempts left pending by a previous process are redelivered before
	// traffic arrives.
	if n := sessionService.RecoverUndelivered(ctx); n > 0 {
		log.Info().Int("pending", n).Msg("Undelivered submissions still pending after recovery")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, authService, handlers, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop session timers; cached answers survive for the next process.
	sessionService.Shutdown()

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	drainDeadline := time.After(15 * time.Second)
drain:
	for stopped := 0; stopped < 2; stopped++ {
		select {
		case <-workersDone:
		case <-drainDeadline:
			log.Warn().Int("stopped", stopped).Msg("Worker drain timed out")
			break drain
		}
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
