// Command sessiond serves the session-capped authentication API over HTTP.
//
// Configuration comes from the environment and an optional .env file; see
// internal/config. With SESSION_BACKEND=memory and no REDIS_ADDR the server
// needs no external services.
//
//	POST /auth/signup      {"email","password","name","roles"}
//	POST /auth/login       {"email","password"}; sets the refreshToken cookie
//	POST /auth/refresh     refreshToken cookie; returns a new access token
//	POST /auth/logout      refreshToken cookie
//	POST /auth/logout-all  bearer access token
//	GET  /auth/sessions    bearer access token
//	POST /posts            bearer access token, CREATOR or ADMIN
//	GET  /posts/{id}       bearer access token, author only
//	GET  /metrics          Prometheus exposition
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

	"github.com/MrEthical07/sessioncap/internal/config"
	"github.com/MrEthical07/sessioncap/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("sessiond stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	go a.runJanitor(ctx, cfg.JanitorEvery())

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.handler(cfg.CORSOriginList()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.HTTPAddr, "session_backend", a.engine.SecurityReport().SessionBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
