package client_test

import (
	"os"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/fission-codes/cideldill/client"
)

func TestDefaultConfigUsesEnvVar(t *testing.T) {
	t.Setenv("CIDELDILL_SERVER_URL", "http://127.0.0.1:9999")
	cfg := client.DefaultConfig()
	assert.Equal(t, cfg.ServerURL, "http://127.0.0.1:9999")
}

func TestDefaultConfigFallsBackWithoutEnvVar(t *testing.T) {
	assert.NilError(t, os.Unsetenv("CIDELDILL_SERVER_URL"))
	cfg := client.DefaultConfig()
	assert.Equal(t, cfg.ServerURL, "http://127.0.0.1:5000")
}

func TestConfigValidateRejectsNonLoopback(t *testing.T) {
	cfg := client.Config{ServerURL: "http://example.com:5000"}
	err := cfg.Validate()
	assert.ErrorContains(t, err, "not loopback-only")
}

func TestConfigValidateAcceptsLocalhost(t *testing.T) {
	cfg := client.Config{ServerURL: "http://localhost:5000"}
	assert.NilError(t, cfg.Validate())
}

func TestConfigValidateRejectsEmpty(t *testing.T) {
	cfg := client.Config{}
	err := cfg.Validate()
	assert.ErrorContains(t, err, "required")
}
