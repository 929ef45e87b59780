package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"

	"ludolens/internal/api"
	"ludolens/internal/app"
	"ludolens/internal/assistant"
	"ludolens/internal/config"
	"ludolens/internal/logging"
	"ludolens/internal/manuals"
	"ludolens/internal/pipeline"
	"ludolens/internal/telemetry"
	"ludolens/internal/workflows"
)

func main() {
	_ = godotenv.Load(".env")
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := run(cfg, log); err != nil {
		log.Error("api stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.Options{
		ServiceName: cfg.ServiceName,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	if cfg.AutoMigrate {
		if err := a.Migrate(ctx); err != nil {
			return err
		}
	}

	var (
		launcher manuals.Launcher
		progress manuals.ProgressReporter
		runner   *pipeline.Runner
	)
	switch cfg.Processor {
	case config.ProcessorTemporal:
		tc, err := client.Dial(client.Options{
			HostPort: cfg.TemporalAddress,
			Logger:   tlog.NewStructuredLogger(log),
		})
		if err != nil {
			return fmt.Errorf("dial temporal: %w", err)
		}
		defer tc.Close()
		l := workflows.NewLauncher(tc, cfg.TemporalTaskQueue, cfg.ProcessMaxAttempts)
		launcher, progress = l, l
	default:
		runner = pipeline.NewRunner(a.Processor, log)
		launcher, progress = runner, runner
	}

	svc := manuals.NewService(a.Manuals, a.Blobs, a.Index, launcher, progress, log)
	asst := assistant.New(a.Index, a.Providers, a.Audit, assistant.Options{
		TopK:     cfg.RetrievalTopK,
		Language: cfg.AnswerLanguage,
	}, log)

	gin.SetMode(gin.ReleaseMode)
	srv := api.NewServer(svc, asst, a.Index, a.DB, api.Options{
		MaxUploadBytes: int64(cfg.MaxUploadBytes),
		CORSOrigins:    cfg.Origins(),
		ServiceName:    cfg.ServiceName,
	}, log)
	httpSrv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("ludolens api listening",
			"addr", cfg.APIAddr,
			"processor", cfg.Processor,
			"llm_providers", cfg.LLMProviders,
			"embed_providers", cfg.EmbedProviders,
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSecs)*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	if runner != nil {
		if err := runner.Wait(shutdownCtx); err != nil {
			log.Warn("processing jobs still running at shutdown", "error", err)
		}
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Warn("flush traces", "error", err)
	}
	return nil
}
