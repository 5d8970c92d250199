package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matiasleandrokruk/camvision/internal/api"
	"github.com/matiasleandrokruk/camvision/internal/infra/config"
	"github.com/matiasleandrokruk/camvision/internal/infra/emitter"
	"github.com/matiasleandrokruk/camvision/internal/infra/llm"
	"github.com/matiasleandrokruk/camvision/internal/server"
)

const shutdownTimeout = 15 * time.Second

func runServe(ctx context.Context, cfg config.Config, logger *zap.Logger, args []string, out io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	host := fs.String("host", cfg.HTTP.Host, "Listen host")
	port := fs.Int("port", cfg.HTTP.Port, "Listen port")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(out, "serve: %v\n", err) //nolint:errcheck
		return 2
	}

	a, err := newApp(cfg, logger, true)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return 1
	}
	if err := serve(ctx, a, *host, *port); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		return 1
	}
	logger.Info("all services gracefully closed")
	return 0
}

// serve runs the API and the optional MQTT emitter until ctx is cancelled.
func serve(ctx context.Context, a *app, host string, port int) error {
	g, gctx := errgroup.WithContext(ctx)

	handler := api.NewRouter(api.Deps{
		Base:       gctx,
		Controller: a.controller,
		Dispatcher: a.dispatcher,
		Source:     a.source,
		History:    a.history,
		DB:         a.db,
		Providers:  a.providers,
		Transport:  a.transport,
		Bus:        a.bus,
		Stream:     a.cfg.Stream,
		Timeout:    a.cfg.RequestTimeout,
		Logger:     a.logger.Named("http"),
	})
	srvCfg := server.DefaultConfig()
	srvCfg.Host, srvCfg.Port = host, port
	srv := server.NewServer(handler, a.db, srvCfg, a.logger)

	if a.cfg.Gemini.ListModelsAtStart {
		logModels(gctx, a, "gemini")
	}

	if a.cfg.MQTT.Broker != "" {
		em := emitter.NewMQTTEmitter(a.cfg.MQTT, a.logger.Named("mqtt"))
		if err := em.Connect(gctx); err != nil {
			a.close()
			return err
		}
		g.Go(func() error {
			defer em.Disconnect()
			return em.Run(gctx, a.bus)
		})
	}

	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.controller.StopContinuous()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func logModels(ctx context.Context, a *app, name string) {
	provider, err := a.providers.Route(name)
	if err != nil {
		a.logger.Warn("list models skipped", zap.Error(err))
		return
	}
	body, err := llm.ListModels(ctx, provider, a.transport, a.cfg.RequestTimeout)
	if err != nil {
		a.logger.Warn("list models failed", zap.String("provider", name), zap.Error(err))
		return
	}
	a.logger.Info("available models", zap.String("provider", name), zap.String("models", body))
}
