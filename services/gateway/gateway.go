package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/agrigate/core/api"
	"github.com/relabs-tech/agrigate/core/config"
	"github.com/relabs-tech/agrigate/core/gateway"
	"github.com/relabs-tech/agrigate/core/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger.InitLogger(logger.ParseLevel(cfg.LogLevel))
	rlog := logger.Default()
	rlog.Infof("starting gateway %s with %s", api.Version, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, err := gateway.Open(ctx, cfg)
	if err != nil {
		rlog.WithError(err).Fatalln("cannot open gateway")
	}
	defer g.Close()

	handler, err := g.Handler()
	if err != nil {
		rlog.WithError(err).Fatalln("cannot build handler")
	}

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		rlog.Infoln("listen on", cfg.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rlog.WithError(err).Errorln("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	rlog.Infoln("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		rlog.WithError(err).Errorln("shutdown error")
	}
}
