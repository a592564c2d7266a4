package server_test

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/fission-codes/cideldill/server"
)

func TestConfigValidateAcceptsLoopback(t *testing.T) {
	cfg := server.Config{ListenAddr: "127.0.0.1:5000"}
	assert.NilError(t, cfg.Validate())

	cfg = server.Config{ListenAddr: "localhost:5000"}
	assert.NilError(t, cfg.Validate())
}

func TestConfigValidateRejectsNonLoopback(t *testing.T) {
	cfg := server.Config{ListenAddr: "0.0.0.0:5000"}
	assert.ErrorContains(t, cfg.Validate(), "not a loopback")
}

func TestConfigValidateRejectsEmpty(t *testing.T) {
	cfg := server.Config{}
	assert.ErrorContains(t, cfg.Validate(), "required")
}

func TestDefaultConfigIsLoopback(t *testing.T) {
	cfg := server.DefaultConfig()
	assert.NilError(t, cfg.Validate())
	assert.Equal(t, cfg.ListenAddr, "127.0.0.1:5000")
}
