package server

import (
	"net"

	"github.com/pkg/errors"
)

// Config configures a Server.
type Config struct {
	// ListenAddr is the loopback address the inspector HTTP server binds
	// to, e.g. "127.0.0.1:5000". Non-loopback hosts are rejected.
	ListenAddr string

	// RendezvousTimeout bounds how long a paused call's rendezvous may
	// exist without an operator-delivered action before it is garbage
	// collected (not part of the wire protocol; a server-side safety
	// valve so an abandoned pause doesn't leak memory forever).
	RendezvousTimeout int // seconds, 0 disables the GC sweep
}

// DefaultConfig returns the default bind address, matching the client's
// default CIDELDILL_SERVER_URL.
func DefaultConfig() Config {
	return Config{ListenAddr: "127.0.0.1:5000", RendezvousTimeout: 300}
}

// Validate confirms the configuration is usable. The inspector only ever
// binds to loopback; anything else is rejected.
func (cfg *Config) Validate() error {
	if cfg.ListenAddr == "" {
		return errors.New("server: ListenAddr is required")
	}
	host, _, err := net.SplitHostPort(cfg.ListenAddr)
	if err != nil {
		return errors.Wrapf(err, "server: invalid ListenAddr %q", cfg.ListenAddr)
	}
	if !isLoopbackHost(host) {
		return errors.Errorf("server: ListenAddr %q is not a loopback address", cfg.ListenAddr)
	}
	return nil
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
