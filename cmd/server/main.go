package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bridge-backend/internal/app"
	"bridge-backend/internal/config"
	"bridge-backend/internal/handlers"
	"bridge-backend/internal/metrics"
	"bridge-backend/internal/router"

	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logrus.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logrus.SetLevel(level)
	}

	if err := config.LoadConfig(*configPath); err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}

	container, err := app.Initialize()
	if err != nil {
		logrus.WithError(err).Fatal("failed to initialize service")
	}
	defer container.Close()

	if err := container.Consumer.Start(); err != nil {
		logrus.WithError(err).Fatal("failed to start event consumer")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go runExpirySweep(ctx, container)

	conversionHandler := handlers.NewConversionHandler(
		container.Orchestrator, container.ConversionRepo,
		container.TransactionRepo, container.TokenPairRepo,
	)
	adminHandler := handlers.NewAdminHandler(container.Orchestrator)
	wsHandler := handlers.NewWebSocketHandler(container.Hub)

	engine := router.Setup(conversionHandler, adminHandler, wsHandler)
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.AppConfig.Server.Host, config.AppConfig.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logrus.WithField("addr", server.Addr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("http server failed")
		}
	}()

	<-ctx.Done()
	logrus.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("http shutdown incomplete")
	}
}

// runExpirySweep expires stale conversions on a fixed cadence. The sweep is
// idempotent, so the cron CLI can run alongside it.
func runExpirySweep(ctx context.Context, container *app.Container) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := container.Orchestrator.ExpireConversions(ctx)
			if err != nil {
				logrus.WithError(err).Error("expiry sweep failed")
				continue
			}
			metrics.ConversionsExpired.Add(float64(expired))
		}
	}
}
