package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pagebuilder/api-server/internal/config"
	"github.com/pagebuilder/api-server/internal/logger"
	"github.com/pagebuilder/api-server/internal/server"
	"github.com/pagebuilder/api-server/internal/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the page builder API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "server host")
	serveCmd.Flags().Int("port", 8090, "server port")
	serveCmd.Flags().String("mode", "release", "server mode (debug/release/test)")

	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.mode", serveCmd.Flags().Lookup("mode"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadOrCreate()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		log.Error("Failed to create data directory", zap.Error(err))
		return err
	}

	db, err := store.Connect(cfg)
	if err != nil {
		log.Error("Failed to connect to database", zap.Error(err))
		return err
	}

	log.Info("Starting page builder API",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("rate_limit_backend", cfg.RateLimit.Backend),
		zap.Int("rate_limit_per_hour", cfg.RateLimit.RequestsPerHour),
	)

	if cfg.Webhook.URL != "" {
		log.Info("Webhook notifications enabled", zap.String("url", cfg.Webhook.URL))
	} else {
		log.Info("No webhook URL configured, notifications disabled")
	}

	srv, err := server.New(cfg, log, db)
	if err != nil {
		log.Error("Failed to create server", zap.Error(err))
		return err
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("Server started", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-stop
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	log.Info("Server stopped gracefully")
	return nil
}
