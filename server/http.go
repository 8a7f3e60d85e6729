// Package server contém os listeners do draftmail: HTTP, entrada SMTP e a caixa Drafts via IMAP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/carloslauriano/draftmail/config"
	"go.uber.org/zap"
)

// ShutdownTimeout limita o encerramento gracioso de cada listener
const ShutdownTimeout = 5 * time.Second

// NewHTTPServer configura o servidor HTTP da API
func NewHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// StartHTTPServer inicia o servidor HTTP e o encerra quando ctx é cancelado
func StartHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler, logger *zap.Logger) error {
	s := NewHTTPServer(cfg, handler)

	logger.Info("starting HTTP server", zap.String("addr", s.Addr))
	return serveUntilDone(ctx, s.ListenAndServe, s.Shutdown)
}

// serveUntilDone roda serve até falhar ou até ctx ser cancelado, quando chama shutdown.
// O erro de "servidor fechado" devolvido após o shutdown é descartado.
func serveUntilDone(ctx context.Context, serve func() error, shutdown func(context.Context) error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- serve()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := shutdown(sctx); err != nil {
		return err
	}
	select {
	case <-errCh:
	case <-sctx.Done():
	}
	return nil
}
