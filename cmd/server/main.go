package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/agenthands/docgraph/internal/app"
	"github.com/agenthands/docgraph/internal/config"
	"github.com/agenthands/docgraph/internal/logger"
	"github.com/agenthands/docgraph/internal/server"
)

func main() {
	envErr := godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.toml"
	}
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		panic(err)
	}
	cfg.ApplyEnv()

	flush, err := app.SetupLogging(cfg.Log, "docgraph")
	if err != nil {
		panic(err)
	}
	defer flush()

	if envErr != nil {
		logger.Debug("No .env file found, using environment")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", "path", cfgPath, "error", err)
	}
	if !cfg.Log.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to start", "error", err)
	}

	srv := server.NewServer(a.Service, a.Store, cfg.Server.MaxUploadBytes)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting server", "port", cfg.Server.Port, "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	if err := a.Close(shutdownCtx); err != nil {
		logger.Error("Shutdown incomplete", "error", err)
	}
}
