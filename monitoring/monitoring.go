// Package monitoring serves Prometheus metrics and net/pprof over HTTP.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xaionaro-go/hwscaler/logger"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/xcontext"
)

const shutdownTimeout = 5 * time.Second

type Config struct {
	MetricsAddr string
	PprofAddr   string
}

type Server struct {
	Addr     string
	Listener net.Listener
	server   *http.Server
}

// NewHandler builds the mux: "/metrics" exposes gatherer when it is not nil
// and "/debug/pprof/" is mounted when withPprof is set.
func NewHandler(gatherer prometheus.Gatherer, withPprof bool) http.Handler {
	h := http.NewServeMux()
	if withPprof {
		h.HandleFunc("/debug/pprof/", pprof.Index)
		h.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		h.HandleFunc("/debug/pprof/profile", pprof.Profile)
		h.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		h.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	if gatherer != nil {
		h.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return h
}

// Listen binds addr and serves handler until ctx is cancelled.
func Listen(
	ctx context.Context,
	addr string,
	handler http.Handler,
) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("unable to listen on '%s': %w", addr, err)
	}

	s := &Server{
		Addr:     listener.Addr().String(),
		Listener: listener,
		server:   &http.Server{Handler: handler},
	}
	logger.Infof(ctx, "monitoring server is listening at %s", s.Addr)

	observability.Go(ctx, func(ctx context.Context) {
		err := s.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf(ctx, "monitoring server at %s failed: %v", s.Addr, err)
		}
	})
	observability.Go(ctx, func(ctx context.Context) {
		<-ctx.Done()
		if err := s.Shutdown(xcontext.DetachDone(ctx)); err != nil {
			logger.Warnf(ctx, "unable to shut down the monitoring server at %s: %v", s.Addr, err)
		}
	})
	return s, nil
}

func (s *Server) String() string {
	return fmt.Sprintf("monitoring::%s", s.Addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancelFn := context.WithTimeout(ctx, shutdownTimeout)
	defer cancelFn()
	return s.server.Shutdown(ctx)
}

// Start launches one server per configured address; a shared address gets
// both handlers.
func Start(
	ctx context.Context,
	cfg Config,
	gatherer prometheus.Gatherer,
) ([]*Server, error) {
	var result []*Server
	if cfg.MetricsAddr != "" && cfg.MetricsAddr == cfg.PprofAddr {
		s, err := Listen(ctx, cfg.MetricsAddr, NewHandler(gatherer, true))
		if err != nil {
			return nil, err
		}
		return append(result, s), nil
	}

	if cfg.MetricsAddr != "" {
		s, err := Listen(ctx, cfg.MetricsAddr, NewHandler(gatherer, false))
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if cfg.PprofAddr != "" {
		s, err := Listen(ctx, cfg.PprofAddr, NewHandler(nil, true))
		if err != nil {
			for _, prev := range result {
				_ = prev.Shutdown(ctx)
			}
			return nil, err
		}
		result = append(result, s)
	}
	return result, nil
}
