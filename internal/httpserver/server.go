// Package httpserver wraps net/http server lifecycle with the configured
// timeouts.
package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/agora-social/agora/internal/config"
	"github.com/agora-social/agora/pkg/logger"
)

// Server owns the http.Server lifecycle.
type Server struct {
	srv *http.Server
	log *logger.Logger
}

// New builds a server for the given handler.
func New(cfg config.ServerConfig, log *logger.Logger, handler http.Handler) *Server {
	if log == nil {
		log = logger.NewDefault("httpserver")
	}

	return &Server{
		log: log,
		srv: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
	}
}

// Start blocks serving requests until Shutdown is called or the listener
// fails.
func (s *Server) Start() error {
	s.log.Infof("listening on %s", s.srv.Addr)
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
