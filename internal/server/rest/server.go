// Package rest exposes the account and credential services over a JSON HTTP
// API mounted at /api/v1.
package rest

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/pwkeeper/internal/logging"
	"github.com/dmitrijs2005/pwkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/pwkeeper/internal/server/services"
)

const shutdownTimeout = 10 * time.Second

type Options struct {
	Address        string
	AllowedOrigins []string
	// Metrics is optional; without it /metrics is not served.
	Metrics *metrics.Metrics
}

type HTTPServer struct {
	address string
	origins []string
	metrics *metrics.Metrics
	users   *services.UserService
	auth    *services.AuthService
	creds   *services.CredentialService
	logger  logging.Logger
}

func NewHTTPServer(opts Options, l logging.Logger, us *services.UserService, as *services.AuthService, cs *services.CredentialService) *HTTPServer {
	return &HTTPServer{
		address: opts.Address,
		origins: opts.AllowedOrigins,
		metrics: opts.Metrics,
		users:   us,
		auth:    as,
		creds:   cs,
		logger:  l.With("module", "http_server"),
	}
}

// Run serves until ctx is canceled, then drains in-flight requests.
func (s *HTTPServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done
	return nil
}
