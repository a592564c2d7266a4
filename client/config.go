package client

import (
	"net"
	"net/url"
	"os"

	"github.com/pkg/errors"
)

// defaultServerURL is where the inspector listens unless overridden.
const defaultServerURL = "http://127.0.0.1:5000"

// serverURLEnvVar overrides the inspector base URL.
const serverURLEnvVar = "CIDELDILL_SERVER_URL"

// Config configures the client side of the inspection protocol.
type Config struct {
	// ServerURL is the inspector's base URL. Defaults from
	// CIDELDILL_SERVER_URL, else defaultServerURL.
	ServerURL string
}

// DefaultConfig reads CIDELDILL_SERVER_URL, falling back to the documented
// default.
func DefaultConfig() Config {
	if v := os.Getenv(serverURLEnvVar); v != "" {
		return Config{ServerURL: v}
	}
	return Config{ServerURL: defaultServerURL}
}

// Validate confirms ServerURL is set and loopback-only; non-loopback
// hosts are rejected.
func (cfg *Config) Validate() error {
	if cfg.ServerURL == "" {
		return errors.New("client: ServerURL is required")
	}
	u, err := url.Parse(cfg.ServerURL)
	if err != nil {
		return errors.Wrapf(err, "client: invalid ServerURL %q", cfg.ServerURL)
	}
	host := u.Hostname()
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return errors.Errorf("client: ServerURL %q is not loopback-only", cfg.ServerURL)
	}
	return nil
}
