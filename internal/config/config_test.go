package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	c := Load()
	c.RPCUrl = "https://api.mainnet-beta.solana.com"
	return c
}

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateRejectsBadPort(t *testing.T) {
	c := validConfig()
	c.Port = 70000
	assert.Error(t, c.Validate())
}

func TestValidateRejectsUnknownStreamProvider(t *testing.T) {
	c := validConfig()
	c.StreamProvider = "carrier-pigeon"
	assert.Error(t, c.Validate())
}

func TestValidateRejectsUnknownCommitment(t *testing.T) {
	c := validConfig()
	c.Commitment = "maybe"
	assert.Error(t, c.Validate())
}

func TestCacheCeilingBytesConvertsMB(t *testing.T) {
	c := validConfig()
	c.CacheMaxMB = 1
	assert.EqualValues(t, 1024*1024, c.CacheCeilingBytes())
}
