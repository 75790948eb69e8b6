package api

import (
	"fmt"
	"net/http"
	"time"
)

// ServerTimeouts bounds how long a client may hold a connection. Zero values
// fall back to the defaults below.
type ServerTimeouts struct {
	Read       time.Duration `env:"APP_READ_TIMEOUT" default:"15s" toml:"read"`
	ReadHeader time.Duration `env:"APP_READ_HEADER_TIMEOUT" default:"5s" toml:"read_header"`
	Write      time.Duration `env:"APP_WRITE_TIMEOUT" default:"15s" toml:"write"`
	Idle       time.Duration `env:"APP_IDLE_TIMEOUT" default:"60s" toml:"idle"`
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}

	return d
}

// NewServer wraps handler in an *http.Server listening on port.
func NewServer(port uint16, handler http.Handler, timeouts ServerTimeouts) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadTimeout:       orDefault(timeouts.Read, 15*time.Second),
		ReadHeaderTimeout: orDefault(timeouts.ReadHeader, 5*time.Second),
		WriteTimeout:      orDefault(timeouts.Write, 15*time.Second),
		IdleTimeout:       orDefault(timeouts.Idle, 60*time.Second),
	}
}
