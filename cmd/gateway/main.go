package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ashwinchembu/wokring-novasonic-demo/internal/dotenv"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/conversation"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/gateway/config"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/gateway/metrics"
	gatewayserver "github.com/ashwinchembu/wokring-novasonic-demo/pkg/gateway/server"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/gateway/tools"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/guardrails"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/guardrails/audit"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/guardrails/rules"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/sonic/protocol"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/sonic/session"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/sonic/sessions"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/sonic/transport"
	"github.com/ashwinchembu/wokring-novasonic-demo/pkg/warehouse"
)

type gatewayDeps struct {
	loadConfig   func() (config.Config, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultGatewayDeps() gatewayDeps {
	return gatewayDeps{
		loadConfig: config.LoadFromEnv,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// sessionConfig maps the provider settings onto one session's wire
// parameters.
func sessionConfig(cfg config.Config) session.Config {
	return session.Config{
		ModelID: cfg.ProviderModelID,
		Inference: protocol.InferenceConfig{
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
		},
		InputFormat: protocol.AudioFormat{
			SampleRateHz:   cfg.InputSampleRateHz,
			SampleSizeBits: cfg.SampleSizeBits,
			ChannelCount:   cfg.ChannelCount,
		},
		OutputFormat: protocol.AudioFormat{
			SampleRateHz:   cfg.OutputSampleRateHz,
			SampleSizeBits: cfg.SampleSizeBits,
			ChannelCount:   cfg.ChannelCount,
			VoiceID:        cfg.VoiceID,
		},
		ConnectTimeout: cfg.ProviderConnectTimeout,
		SystemPrompt:   conversation.DefaultSystemPrompt,
	}
}

func runGateway(ctx context.Context, logger *slog.Logger, deps gatewayDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Guardrails: bootstrap the default workbook on first run, then
	// load and optionally watch the rule file.
	if _, statErr := os.Stat(cfg.RulesPath); errors.Is(statErr, os.ErrNotExist) {
		if err := rules.WriteDefaultWorkbook(cfg.RulesPath); err != nil {
			return fmt.Errorf("bootstrap rules workbook: %w", err)
		}
		logger.Info("wrote default guardrail workbook", "path", cfg.RulesPath)
	}
	ruleStore := rules.NewStore(cfg.RulesPath, logger)
	if _, err := ruleStore.Cached(); err != nil {
		return fmt.Errorf("load guardrail rules: %w", err)
	}
	engine := guardrails.NewEngine(ruleStore, logger)
	auditLog := audit.NewLog(cfg.AuditDir, cfg.AuditLocalDir, logger)

	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	if cfg.RulesWatch {
		go func() {
			if err := ruleStore.Watch(watchCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("rule watcher stopped", "error", err)
			}
		}()
	}

	m := metrics.New()
	convStore := conversation.NewStore()

	// The warehouse is optional: without a DSN the HCP lookup falls
	// back to the static directory and call saves report an error.
	var hcpDir tools.HCPDirectory
	var callSink tools.CallSink
	if cfg.WarehouseDSN != "" {
		if cfg.RunMigrations {
			if err := warehouse.RunMigrations(ctx, cfg.WarehouseDSN); err != nil {
				return fmt.Errorf("run warehouse migrations: %w", err)
			}
		}
		wh, err := warehouse.Open(ctx, cfg.WarehouseDSN)
		if err != nil {
			return fmt.Errorf("open warehouse: %w", err)
		}
		defer wh.Close()
		hcpDir = wh
		callSink = wh
	} else {
		logger.Warn("warehouse not configured, using static HCP directory")
	}

	emitter := tools.NewEmitter(cfg.WebhookURL, cfg.WebhookSecret, cfg.WebhookTimeout, logger)

	dispatcher := tools.NewDispatcher(logger, m,
		&tools.LookupHCPTool{Directory: hcpDir, Conv: convStore, Logger: logger},
		&tools.GetDateTool{},
		&tools.InsertCallTool{Sink: callSink, Conv: convStore},
		&tools.CreateFollowUpTaskTool{Emitter: emitter, Conv: convStore},
		&tools.EmitEventTool{Emitter: emitter},
	)

	dialer := &transport.WSDialer{
		URL:          cfg.ProviderURL,
		AuthToken:    cfg.ProviderAuthToken,
		WriteTimeout: cfg.WSWriteTimeout,
	}

	manager := sessions.NewManager(sessions.Options{
		SessionConfig: sessionConfig(cfg),
		Dialer:        dialer,
		Dispatcher:    dispatcher,
		Ceiling:       cfg.MaxConcurrentSessions,
		IdleTimeout:   cfg.SessionIdleTimeout,
		SweepInterval: cfg.IdleSweepInterval,
		Logger:        logger,
		Metrics:       m,
	})

	gw := gatewayserver.New(gatewayserver.Deps{
		Config:  cfg,
		Logger:  logger,
		Manager: manager,
		Engine:  engine,
		Audit:   auditLog,
		Metrics: m,
		Conv:    convStore,
	})
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting gateway",
		"addr", cfg.Addr,
		"model", cfg.ProviderModelID,
		"rules_path", cfg.RulesPath,
		"audit_dir", auditLog.Dir(),
	)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Warn("session shutdown did not finish in time", "error", err)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps gatewayDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(stderr, nil))

	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(stderr, "gateway: %v\n", err)
		return 1
	}

	if err := runGateway(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "gateway: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultGatewayDeps()))
}
