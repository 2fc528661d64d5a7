package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/xiaot623/mockinterview/internal/adapter/classifier"
	"github.com/xiaot623/mockinterview/internal/adapter/llm"
	"github.com/xiaot623/mockinterview/internal/adapter/questionbank"
	"github.com/xiaot623/mockinterview/internal/config"
	"github.com/xiaot623/mockinterview/internal/observability"
	store "github.com/xiaot623/mockinterview/internal/repository"
	"github.com/xiaot623/mockinterview/internal/sequencer"
	"github.com/xiaot623/mockinterview/internal/service"
	handler "github.com/xiaot623/mockinterview/internal/transport/http"
	"github.com/xiaot623/mockinterview/internal/transport/ws"
	"github.com/xiaot623/mockinterview/policy"
)

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the interview HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	log, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return err
	}

	log.Info("Starting interview server...")
	log.WithFields(logrus.Fields{
		"http_port": cfg.HTTPPort,
		"database":  cfg.DatabaseURL,
		"generator": cfg.GeneratorKind,
	}).Info("configuration loaded")

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer db.Close()

	gen, err := newGenerator(cfg, log)
	if err != nil {
		return err
	}

	// Initialize policy engine
	policyContent := policy.DefaultPolicy
	if cfg.PolicyPath != "" {
		data, err := os.ReadFile(cfg.PolicyPath)
		if err != nil {
			return fmt.Errorf("failed to read policy: %w", err)
		}
		policyContent = string(data)
	}
	policyEngine, err := policy.NewEngine(ctx, policyContent)
	if err != nil {
		return fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	cls := classifier.NewHTTPClient(cfg.ClassifierURL, cfg.ClassifierTimeout)

	var (
		metrics  *observability.Metrics
		gatherer prometheus.Gatherer
	)
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.MustNewMetrics(reg)
		gatherer = reg
	}

	hub := ws.NewHub(log)
	devices := ws.NewRegistry(hub, cfg.WSFrameRate, cfg.WSFrameBurst, log)

	svc, err := service.New(db, gen, cls, devices, cfg, policyEngine, service.Options{
		Broadcaster: hub,
		Metrics:     metrics,
		Log:         log,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}

	wsServer := ws.NewServer(ws.Config{
		ReadTimeout:    cfg.WSReadTimeout,
		PingInterval:   cfg.WSPingInterval,
		MaxMessageSize: cfg.WSMaxMessageSize,
	}, hub, devices, log)
	server := handler.NewServer(svc, wsServer, gatherer)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go hub.Run(runCtx)
	go svc.RunIdleReaper(runCtx)

	serveErr := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	log.WithField("port", cfg.HTTPPort).Info("HTTP server started")

	select {
	case <-runCtx.Done():
	case err := <-serveErr:
		return fmt.Errorf("failed to start server: %w", err)
	}

	log.Info("Shutting down interview server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("failed to shutdown HTTP server gracefully")
	}
	svc.Shutdown()

	log.Info("Interview server stopped")
	return nil
}

// newGenerator builds the question generator selected by the config.
func newGenerator(cfg *config.Config, log logrus.FieldLogger) (sequencer.Generator, error) {
	switch cfg.GeneratorKind {
	case config.GeneratorBank:
		bank, err := questionbank.Load(cfg.QuestionBankPath, cfg.QuestionBankSeed)
		if err != nil {
			return nil, fmt.Errorf("failed to load question bank: %w", err)
		}
		log.WithField("questions", bank.Len()).Info("using question bank")
		return bank, nil
	default:
		client := llm.NewLLMClient(cfg.LLMMode, cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMTimeout, cfg.LLMMaxRetries, log)
		return llm.NewQuestionGenerator(client, cfg.LLMModel, 0.7, log), nil
	}
}
