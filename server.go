package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"
)

// staticServer serves the mirror working tree as static files with
// directory listing for paths without an index document. It is a pure
// pass-through file server, sync failures only show up as staleness.
type staticServer struct {
	addr     string
	maxConns int
	srv      *http.Server
	log      *slog.Logger
}

func newStaticServer(conf WebConfig, root string, log *slog.Logger) *staticServer {
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(root)))

	return &staticServer{
		addr:     net.JoinHostPort(conf.Address, strconv.Itoa(conf.Port)),
		maxConns: conf.MaxConnections,
		srv:      &http.Server{Handler: logRequests(log, mux)},
		log:      log,
	}
}

// listen binds the configured address, capping concurrently served
// connections at maxConns
func (s *staticServer) listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("unable to bind %s err:%w", s.addr, err)
	}
	return netutil.LimitListener(ln, s.maxConns), nil
}

// serve blocks until shutdown or a listener error.
// a clean shutdown is reported as nil
func (s *staticServer) serve(ln net.Listener) error {
	s.log.Info("serving mirror tree", "address", ln.Addr().String(), "max-connections", s.maxConns)

	err := s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *staticServer) start() error {
	ln, err := s.listen()
	if err != nil {
		return err
	}
	return s.serve(ln)
}

// shutdown stops accepting new connections and waits for in-flight
// requests up to the ctx deadline
func (s *staticServer) shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func logRequests(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Debug("request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

// startMetricsServer exposes the prometheus registry on its own listener
// so the file server keeps serving the mirror tree only
func startMetricsServer(bind string, log *slog.Logger) error {
	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("unable to bind metrics endpoint %s err:%w", bind, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.Serve(ln, mux); err != nil {
			log.Error("metrics endpoint terminated", "err", err)
		}
	}()

	return nil
}
