// Command silent runs the sign-language translation client: it owns the
// camera, normalizes frames and uploads, forwards them to the inference
// backend, and serves the local UI API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/silentapp/silent/internal/app"
	"github.com/silentapp/silent/internal/config"
	"github.com/silentapp/silent/internal/logger"
	"github.com/silentapp/silent/internal/server"
)

func main() {
	log := logger.New()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	application := app.New(app.Options{Config: cfg, Log: log})
	srv := server.New(cfg, application, log)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	probeCtx, probeCancel := context.WithTimeout(context.Background(), cfg.ProbeTimeout)
	if application.Gateway().IsAvailable(probeCtx) {
		log.Info("inference backend reachable")
	} else {
		log.Warn("inference backend unreachable, predictions will fail until it recovers")
	}
	probeCancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.WithError(err).Fatal("http server failed")
	case sig := <-stop:
		log.WithField("signal", sig.String()).Info("shutting down")
	}

	application.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("shutdown incomplete")
	}
}
