// Package httptransport builds the HTTP server the API is served from.
package httptransport

import (
	"context"
	"net/http"
	"time"

	"cdr.dev/slog/v3"
)

// ServerConfig contains tunables for the HTTP server. Zero timeouts fall back
// to the defaults below.
type ServerConfig struct {
	Address           string
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	// Logger receives errors the server itself reports, such as TLS
	// handshake failures and panics that escape the handler.
	Logger slog.Logger
}

const (
	defaultReadHeaderTimeout = 2 * time.Second
	defaultReadTimeout       = 5 * time.Second
	defaultWriteTimeout      = 10 * time.Second
	defaultIdleTimeout       = 60 * time.Second
	maxHeaderBytes           = 64 << 10
)

// NewServer creates an *http.Server serving handler.
func NewServer(cfg ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Address,
		Handler:           handler,
		ReadHeaderTimeout: orDefault(cfg.ReadHeaderTimeout, defaultReadHeaderTimeout),
		ReadTimeout:       orDefault(cfg.ReadTimeout, defaultReadTimeout),
		WriteTimeout:      orDefault(cfg.WriteTimeout, defaultWriteTimeout),
		IdleTimeout:       orDefault(cfg.IdleTimeout, defaultIdleTimeout),
		MaxHeaderBytes:    maxHeaderBytes,
		ErrorLog:          slog.Stdlib(context.Background(), cfg.Logger, slog.LevelWarn),
	}
}

func orDefault(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}
