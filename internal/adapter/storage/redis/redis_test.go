package redis

import (
	"testing"
	"time"

	"marketplace-wallet/config"

	"github.com/stretchr/testify/assert"
)

func TestOptions(t *testing.T) {
	cfg := config.RedisConfig{
		Host:     "redis.example.com",
		Port:     6380,
		Password: "secret",
		DB:       2,
		Timeout:  500 * time.Millisecond,
	}

	opts := options(cfg)
	assert.Equal(t, "redis.example.com:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, "marketplace-wallet", opts.ClientName)
	assert.Equal(t, 500*time.Millisecond, opts.DialTimeout)
	assert.Equal(t, 500*time.Millisecond, opts.ReadTimeout)
	assert.Equal(t, 500*time.Millisecond, opts.WriteTimeout)
}

func TestOptions_ZeroTimeoutKeepsDefaults(t *testing.T) {
	opts := options(config.RedisConfig{Host: "localhost", Port: 6379})
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Zero(t, opts.ReadTimeout)
	assert.Empty(t, opts.Password)
}
