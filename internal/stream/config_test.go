package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/fifostream/internal/errors"
)

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{DataShift: 0}.withDefaults()
	assert.Equal(t, DefaultQueueDepth, cfg.TxQueueDepth)
	assert.Equal(t, DefaultQueueDepth, cfg.RxQueueDepth)
	assert.Equal(t, DefaultTxEnqueueTimeout, cfg.TxEnqueueTimeout)
	assert.Equal(t, DefaultVacancyTimeout, cfg.VacancyTimeout)
	assert.Equal(t, TxFullRetry, cfg.TxFullPolicy)
	assert.Equal(t, DefaultLogInterval, cfg.LogInterval)
	assert.Zero(t, cfg.DataShift, "zero shift is a valid layout")
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"default", func(*Config) {}, true},
		{"drop policy", func(c *Config) { c.TxFullPolicy = TxFullDrop }, true},
		{"unknown policy", func(c *Config) { c.TxFullPolicy = "block" }, false},
		{"negative depth", func(c *Config) { c.RxQueueDepth = -1 }, false},
		{"negative timeout", func(c *Config) { c.VacancyTimeout = -time.Millisecond }, false},
		{"shift too wide", func(c *Config) { c.DataShift = 32 }, false},
		{"widest shift", func(c *Config) { c.DataShift = 31 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryStreamInit))
		})
	}
}
