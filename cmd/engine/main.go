package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/shalom-dev-bot/astremina/internal/config"
	"github.com/shalom-dev-bot/astremina/internal/httpapi"
	"github.com/shalom-dev-bot/astremina/internal/logger"
	"github.com/shalom-dev-bot/astremina/internal/poll"
	"github.com/shalom-dev-bot/astremina/internal/scheduler"
	"github.com/shalom-dev-bot/astremina/internal/secrets"
)

func main() {
	dataDir := os.Getenv("ASTREMINA_DATA_DIR")
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Fatal(err)
	}

	// One engine per data dir: the run ledger assumes a single writer.
	lock := flock.New(filepath.Join(dataDir, "engine.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		log.Fatalf("lock data dir: %v", err)
	}
	if !locked {
		log.Fatalf("another engine is already running on %s", dataDir)
	}
	defer func() { _ = lock.Unlock() }()

	userCfgPath, err := config.EnsureUserConfig(dataDir, filepath.Join("config", "config.yml"))
	if err != nil {
		log.Fatalf("config bootstrap failed: %v", err)
	}
	if _, err := config.EnsureUserSources(dataDir, filepath.Join("config", "sources.yml")); err != nil {
		log.Fatalf("sources bootstrap failed: %v", err)
	}
	cfg, err := config.Load(userCfgPath, dataDir)
	if err != nil {
		log.Fatalf("config load failed (%s): %v", userCfgPath, err)
	}
	if cfg.App.DataDir == "" {
		cfg.App.DataDir = dataDir
	}

	if err := logger.Initialize(logger.Config{
		Debug:     cfg.Debug,
		SentryDSN: cfg.SentryDSN,
		Tags:      map[string]string{"component": "engine"},
	}); err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Flush(2 * time.Second)

	if err := run(*cfg, dataDir); err != nil {
		logger.Error(err, zap.String("phase", "run"))
		logger.Flush(2 * time.Second)
		os.Exit(1)
	}
}

func run(cfg config.Config, dataDir string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := buildEngine(ctx, cfg, dataDir)
	if err != nil {
		return err
	}
	defer e.close()

	poller := poll.New(e.db.Pool, e.ingest, e.clock, cfg.Scheduler.DefaultSourceInterval)
	poller.Start(ctx, cfg.Scheduler.Tick)

	go scheduler.Run(ctx, e.jobs(cfg)...)

	token, err := httpapi.RandomToken(32)
	if err != nil {
		return err
	}
	// The desktop shell reads the token from here to stop the engine.
	tokenPath := filepath.Join(dataDir, "shutdown.token")
	if err := os.WriteFile(tokenPath, []byte(token), 0o600); err != nil {
		return err
	}
	defer os.Remove(tokenPath)

	router := httpapi.NewRouter(httpapi.Deps{
		DB:            e.db.Pool,
		Hub:           e.hub,
		Runner:        e.ingest,
		Clock:         e.clock,
		Config:        cfg,
		SourcesPath:   config.SourcesPath(dataDir),
		PollStatus:    poller.Status,
		Queues:        e.queueStats(),
		SetPassword:   secrets.SetIMAPPassword,
		ShutdownToken: token,
		Shutdown:      stop,
	})

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.App.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		// event streams end with the process context
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("[engine] listening", zap.String("addr", "http://"+addr), zap.String("data_dir", dataDir))
		serveErr <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	logger.Info("[engine] shutting down")
	e.ingest.CancelAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("[engine] http shutdown", zap.Error(err))
	}
	e.stopQueues(shutdownCtx)
	return nil
}
