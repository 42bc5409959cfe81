package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ValenteCreativo/carepilot/internal/actions"
	"github.com/ValenteCreativo/carepilot/internal/api"
	"github.com/ValenteCreativo/carepilot/internal/config"
	"github.com/ValenteCreativo/carepilot/internal/convo"
	"github.com/ValenteCreativo/carepilot/internal/llm"
	"github.com/ValenteCreativo/carepilot/internal/notify"
	"github.com/ValenteCreativo/carepilot/internal/pipeline"
	"github.com/ValenteCreativo/carepilot/internal/storage"
	"github.com/ValenteCreativo/carepilot/internal/trace"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the carepilot server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	gateway, err := llm.NewGateway(cfg.LLM)
	if err != nil {
		return fmt.Errorf("configuring llm gateway: %w", err)
	}
	slog.Info("llm gateway ready", "provider", gateway.ProviderName())

	tracer := trace.New(cfg.Trace.Project, cfg.Trace.Endpoint)
	orchestrator := pipeline.NewOrchestrator(store, gateway, tracer)
	generator := actions.NewGenerator(store)

	var sender actions.Sender
	if cfg.Twilio.AccountSID != "" {
		sender = notify.NewClient(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.From)
	} else {
		slog.Warn("twilio not configured, outbound messages will be logged and dropped")
		sender = logSender{}
	}
	executor := actions.NewExecutor(store, sender)

	handler := api.NewAppHandler(api.AppDeps{
		Store:           store,
		Orchestrator:    orchestrator,
		Generator:       generator,
		Executor:        executor,
		Convo:           convo.NewHandler(store, orchestrator, generator, executor),
		SessionSecret:   []byte(cfg.Server.SessionSecret),
		CronToken:       cfg.Server.CronToken,
		TwilioAuthToken: cfg.Twilio.AuthToken,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("carepilot listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	// Let in-flight background evals land before closing the store.
	orchestrator.Wait()
	return nil
}

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// logSender stands in for the messaging provider in local development.
type logSender struct{}

func (logSender) Send(ctx context.Context, to, body string) (string, error) {
	slog.Info("dropping outbound message", "to", to, "body", body)
	return "local-" + fmt.Sprint(time.Now().UnixNano()), nil
}
