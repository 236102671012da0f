package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/redis/go-redis/v9"
	"github.com/rpggio/admission/internal/admission"
	"github.com/rpggio/admission/internal/config"
	"github.com/rpggio/admission/internal/domain/audit"
	"github.com/rpggio/admission/internal/domain/member"
	"github.com/rpggio/admission/internal/domain/queue"
	"github.com/rpggio/admission/internal/domain/report"
	"github.com/rpggio/admission/internal/lock/redislock"
	"github.com/rpggio/admission/internal/mcp"
	"github.com/rpggio/admission/internal/metrics"
	"github.com/rpggio/admission/internal/notify"
	"github.com/rpggio/admission/internal/notify/pubnub"
	"github.com/rpggio/admission/internal/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// Use stderr for logs in stdio mode to keep stdout clean for JSON-RPC.
	logWriter := io.Writer(os.Stdout)
	if cfg.Transport.Mode == "stdio" {
		logWriter = os.Stderr
	}
	if cfg.Log.Path != "" {
		fileWriter, file, err := newLogFileWriter(cfg.Log.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file error: %v\n", err)
		} else {
			defer file.Close()
			logWriter = fileWriter
		}
	}
	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	if err := ensureDBDir(cfg.DB.Path); err != nil {
		logger.Error("failed to prepare database path", "error", err)
		os.Exit(1)
	}

	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	tiers, err := buildTierTable(cfg.Queue)
	if err != nil {
		logger.Error("invalid tier configuration", "error", err)
		os.Exit(1)
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.New(cfg.Metrics.Namespace)
	}

	queueOpts := queue.Options{MaxActive: cfg.Queue.MaxActive}
	if collector != nil {
		queueOpts.Observer = collector
	}
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Error("failed to reach redis", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		queueOpts.Locker = redislock.New(rdb, redislock.Options{
			Key:      cfg.Redis.LockKey,
			TTL:      cfg.Redis.LockTTL,
			Attempts: cfg.Redis.LockAttempts,
		}, logger)
		logger.Info("distributed queue lock enabled", "addr", cfg.Redis.Addr)
	}

	var channel notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.PubNub.Enabled {
		channel = pubnub.New(pubnub.Config{
			PublishKey:    cfg.PubNub.PublishKey,
			SubscribeKey:  cfg.PubNub.SubscribeKey,
			UserID:        cfg.PubNub.UserID,
			ChannelPrefix: cfg.PubNub.ChannelPrefix,
		})
		logger.Info("pubnub notifications enabled")
	}
	dispatcher := notify.NewDispatcher(channel, notify.Options{}, logger)

	memberRepo := sqlite.NewMemberRepository(db)
	ticketRepo := sqlite.NewTicketRepository(db)
	auditRepo := sqlite.NewAuditRepository(db)

	memberSvc := member.NewService(memberRepo, tiers, logger)
	auditSvc := audit.NewService(auditRepo, logger)
	queueSvc := queue.NewService(ticketRepo, memberSvc, tiers, auditSvc, queueOpts, logger)
	reportSvc := report.NewService(queueSvc, memberSvc, logger)

	var broadcasts admission.BroadcastObserver
	if collector != nil {
		broadcasts = collector
	}
	admissionSvc := admission.NewService(memberSvc, queueSvc, auditSvc, dispatcher, broadcasts, logger)

	mcpServer := mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Admission: admissionSvc,
			Reports:   reportSvc,
			Members:   memberSvc,
			Audits:    auditSvc,
			History:   queueSvc,
		},
		Resolver:        sqlite.NewOperatorKeyRepository(db),
		AuthEnabled:     cfg.Auth.Enabled,
		TransportMode:   cfg.Transport.Mode,
		ConsoleOperator: cfg.Console.Operator,
		Logger:          logger,
	})

	// Branch based on transport mode
	if cfg.Transport.Mode == "stdio" {
		runStdioMode(logger, mcpServer)
	} else {
		var metricsHandler http.Handler
		if collector != nil {
			metricsHandler = collector.Handler()
		}
		runHTTPMode(logger, mcpServer, cfg, metricsHandler)
	}
}

func buildTierTable(qc config.QueueConfig) (*member.TierTable, error) {
	reasons := make([]member.Reason, 0, len(qc.Reasons))
	for _, r := range qc.Reasons {
		reasons = append(reasons, member.Reason{Code: r.Code, Label: r.Label, Tier: r.Tier})
	}
	return member.NewTierTable(reasons, qc.FallbackTier, qc.MinTier, qc.MaxTier)
}

func runStdioMode(logger *slog.Logger, mcpServer *sdkmcp.Server) {
	logger.Info("starting stdio transport", "auth", "console")

	// Create stdio transport
	transport := &sdkmcp.StdioTransport{}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	// Run blocks until stdin closes or context is canceled
	if err := mcpServer.Run(ctx, transport); err != nil {
		logger.Error("stdio server error", "error", err)
		os.Exit(1)
	}
}

func runHTTPMode(logger *slog.Logger, mcpServer *sdkmcp.Server, cfg config.Config, metricsHandler http.Handler) {
	// Create HTTP handler using SDK
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(r *http.Request) *sdkmcp.Server { return mcpServer },
		&sdkmcp.StreamableHTTPOptions{
			Stateless:      false,
			SessionTimeout: 30 * time.Minute,
		},
	)

	// Create router with MCP and health endpoints
	router := http.NewServeMux()
	router.Handle("/mcp", mcpHandler)
	router.Handle("/mcp/", mcpHandler)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if metricsHandler != nil {
		router.Handle(cfg.Metrics.Path, metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	waitForShutdown(logger, httpServer)
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func waitForShutdown(logger *slog.Logger, server *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("shutting down")
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const (
	maxLogSizeBytes  = 6 * 1024 * 1024
	keepLogSizeBytes = 5 * 1024 * 1024
)

type logFileWriter struct {
	path string
	file *os.File
	mu   sync.Mutex
}

func newLogFileWriter(path string) (*logFileWriter, *os.File, error) {
	if err := ensureLogDir(path); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	writer := &logFileWriter{path: path, file: file}
	if err := writer.truncateIfNeeded(); err != nil {
		return nil, nil, err
	}
	return writer, file, nil
}

func ensureLogDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (w *logFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.file.Write(p)
	if err != nil {
		return n, err
	}
	if err := w.truncateIfNeeded(); err != nil {
		return n, err
	}
	return n, nil
}

func (w *logFileWriter) truncateIfNeeded() error {
	info, err := w.file.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size <= maxLogSizeBytes {
		return nil
	}
	if size <= keepLogSizeBytes {
		return nil
	}

	buf := make([]byte, keepLogSizeBytes)
	if _, err := w.file.Seek(size-keepLogSizeBytes, io.SeekStart); err != nil {
		return err
	}
	n, err := w.file.Read(buf)
	if err != nil && err != io.EOF {
		return err
	}
	buf = buf[:n]

	if err := w.file.Truncate(0); err != nil {
		return err
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.file.Write(buf); err != nil {
		return err
	}
	_, err = w.file.Seek(0, io.SeekEnd)
	return err
}
