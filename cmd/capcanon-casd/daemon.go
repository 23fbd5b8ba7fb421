package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"xdao.co/capcanon/internal/observability"
	"xdao.co/capcanon/storage"
	"xdao.co/capcanon/storage/grpccas"
	"xdao.co/capcanon/wire"
)

// daemon serves one CAS over gRPC and, optionally, an admin HTTP listener
// with /metrics and /health.
type daemon struct {
	logger           *zap.Logger
	cas              storage.CAS
	backend          string
	requireCanonical bool
	readerOptions    []wire.Option
	started          time.Time
}

func (d *daemon) grpcServer() *grpc.Server {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(
		observability.RequestLogger(d.logger.Named("grpc")),
		observability.RequestMetrics(),
	))
	grpccas.RegisterCASServer(s, &grpccas.Server{
		CAS:              d.cas,
		RequireCanonical: d.requireCanonical,
		ReaderOptions:    d.readerOptions,
		OnCheck:          observability.RecordCanonicalCheck,
	})
	return s
}

func (d *daemon) adminRouter() http.Handler {
	observability.RegisterMetrics()
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":            "ok",
			"uptime":            time.Since(d.started).String(),
			"backend":           d.backend,
			"require_canonical": d.requireCanonical,
		})
	})
	return r
}

// serve blocks until ctx is done or a listener fails. admin may be nil.
func (d *daemon) serve(ctx context.Context, lis net.Listener, admin net.Listener) error {
	gs := d.grpcServer()
	errc := make(chan error, 2)
	go func() {
		errc <- gs.Serve(lis)
	}()

	var hs *http.Server
	if admin != nil {
		hs = &http.Server{
			Handler:           d.adminRouter(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := hs.Serve(admin); !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}()
	}

	d.logger.Info("listening",
		zap.String("grpc", lis.Addr().String()),
		zap.String("backend", d.backend),
		zap.Bool("require_canonical", d.requireCanonical),
	)

	var err error
	select {
	case <-ctx.Done():
	case err = <-errc:
	}

	d.logger.Info("shutting down")
	if hs != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = hs.Shutdown(sctx)
		cancel()
	}
	gs.GracefulStop()
	return err
}
