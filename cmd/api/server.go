package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"notification-backend/internal/config"
	"notification-backend/pkg/container"
)

const shutdownTimeout = 15 * time.Second

type server struct {
	http *http.Server
	c    *container.Container
}

func newServer(cfg *config.Config, c *container.Container) *server {
	return &server{
		http: &http.Server{
			Addr:              ":" + cfg.App.Port,
			Handler:           newRouter(cfg, c),
			ReadHeaderTimeout: 10 * time.Second,
		},
		c: c,
	}
}

// run serves until SIGINT/SIGTERM, then drains connections.
func (s *server) run() error {
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	go s.c.Hub.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.http.Addr).Msg("[API] Listening")
		if err := s.http.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("[API] Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}
