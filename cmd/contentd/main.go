// contentd serves a packed level bundle over HTTP for game clients.
package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fulldump/goconfig"

	"github.com/wordrealms/catalog/internal/httpapi"
	"github.com/wordrealms/catalog/internal/logx"
)

type config struct {
	Addr       string `usage:"listen address"`
	Bundle     string `usage:"level bundle directory (manifest.json + chunks)"`
	Collection string `usage:"collection name to serve"`
}

func main() {
	c := config{
		Addr:       ":8007",
		Bundle:     "./data/levels",
		Collection: "levels",
	}
	goconfig.Read(&c)

	logger := logx.NewLogger()

	h, err := httpapi.NewHandler(c.Bundle, c.Collection, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("bundle", c.Bundle).Msg("load bundle")
	}

	srv := &http.Server{
		Addr:              c.Addr,
		Handler:           httpapi.NewRouter(logger, h),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", c.Addr).Str("bundle", c.Bundle).Msg("contentd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("serve")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}
}
