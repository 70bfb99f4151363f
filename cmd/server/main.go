package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashtonliu88/diff-digest/common/id"
	"github.com/ashtonliu88/diff-digest/common/llm"
	"github.com/ashtonliu88/diff-digest/common/logger"
	"github.com/ashtonliu88/diff-digest/common/otel"
	"github.com/ashtonliu88/diff-digest/core/config"
	"github.com/ashtonliu88/diff-digest/internal/http/middleware"
	httprouter "github.com/ashtonliu88/diff-digest/internal/http/router"
	"github.com/ashtonliu88/diff-digest/internal/notes"
	"github.com/ashtonliu88/diff-digest/internal/service"
	"github.com/ashtonliu88/diff-digest/internal/service/diffsource"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "diff digest starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	completions, err := llm.New(llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create llm client", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "llm client ready", "provider", cfg.LLM.Provider, "model", completions.Model())

	diffs, err := diffsource.NewGitLabDiffSource(cfg.GitLab.BaseURL, cfg.GitLab.Token)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create gitlab client", "error", err)
		os.Exit(1)
	}
	if !cfg.GitLab.Enabled() {
		slog.InfoContext(ctx, "GITLAB_TOKEN not set, sample diffs limited to public projects")
	}

	services := service.NewServices(service.ServicesConfig{
		LLM: completions,
		Composer: notes.NewComposer(notes.ComposerConfig{
			MaxTokens:            cfg.Notes.MaxTokens,
			TechnicalTemperature: cfg.Notes.TechnicalTemperature,
			UserTemperature:      cfg.Notes.UserTemperature,
		}),
		DiffSource: diffs,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, services)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No write timeout: notes stream for as long as the model writes.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, services *service.Services) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, services)

	return router
}

const banner = `
 ____  _  __  __   ____  _                 _
|  _ \(_)/ _|/ _| |  _ \(_) __ _  ___  ___| |_
| | | | | |_| |_  | | | | |/ _' |/ _ \/ __| __|
| |_| | |  _|  _| | |_| | | (_| |  __/\__ \ |_
|____/|_|_| |_|   |____/|_|\__, |\___||___/\__|
                           |___/
`
