package httpserver

import (
	"net/http"
	"time"
)

// Option adjusts the server built by New.
type Option func(*http.Server)

// WithUploadWindow widens read and write timeouts to d for routes that accept
// document uploads on slow links. Values below the defaults are ignored.
func WithUploadWindow(d time.Duration) Option {
	return func(s *http.Server) {
		if d > s.ReadTimeout {
			s.ReadTimeout = d
		}
		if d+30*time.Second > s.WriteTimeout {
			s.WriteTimeout = d + 30*time.Second
		}
	}
}

// New builds an HTTP server with the project's timeout defaults.
func New(addr string, handler http.Handler, opts ...Option) *http.Server {
	s := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
