package api

import (
	"github.com/okian/dashboard-api/pkg/logger"
)

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithMaxBodyBytes bounds request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithMaxRecentSignupsLimit caps the limit query parameter of recent-signups.
func WithMaxRecentSignupsLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxRecentLimit = n
		}
	}
}

// WithCORSOrigins sets the allowed CORS origins. "*" reflects any origin.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// WithMount attaches extra routes to the router.
func WithMount(m Mounter) Option {
	return func(s *Server) {
		if m != nil {
			s.mounts = append(s.mounts, m)
		}
	}
}

// WithLogger sets a custom logger for the server.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}
