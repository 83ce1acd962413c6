package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/Hata214/BackEnd/internal/config"
	"github.com/Hata214/BackEnd/internal/server"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	loadLocalEnv(log)

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	log.SetLevel(cfg.LogLevel)

	ctx := context.Background()
	store, err := server.OpenStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("init database")
	}
	defer store.Close()

	if err := server.SeedDefaults(ctx, cfg, store, log); err != nil {
		log.WithError(err).Fatal("seed default accounts")
	}

	srv := server.New(cfg, store, log)

	go func() {
		log.WithField("addr", cfg.HTTPAddress()).Info("backend listening")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.WithError(err).Warn("graceful shutdown error")
	}
}

func loadLocalEnv(log logrus.FieldLogger) {
	if err := godotenv.Load(); err != nil {
		log.Info("no .env file found; relying on existing environment")
	}
}
