package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestMergeWithDefaults is a function.
func TestMergeWithDefaults(t *testing.T) {
	type scenario struct {
		content string
		test    func(t *testing.T, config *UserConfig, err error)
	}

	scenarios := []scenario{
		{
			"",
			func(t *testing.T, config *UserConfig, err error) {
				assert.NoError(t, err)
				assert.Equal(t, 3002, config.Port)
				assert.Equal(t, 1000, config.LogBufferSize)
				assert.Equal(t, 1, config.StatsIntervalSeconds)
			},
		},
		{
			"port: 9001\nkey: hunter2\n",
			func(t *testing.T, config *UserConfig, err error) {
				assert.NoError(t, err)
				assert.Equal(t, 9001, config.Port)
				assert.Equal(t, "hunter2", config.Key)
				assert.Equal(t, 1000, config.LogBufferSize)
			},
		},
		{
			"\xef\xbb\xbfkey: with-bom\n",
			func(t *testing.T, config *UserConfig, err error) {
				assert.NoError(t, err)
				assert.Equal(t, "with-bom", config.Key)
			},
		},
		{
			"port: [not an int]\n",
			func(t *testing.T, config *UserConfig, err error) {
				assert.Error(t, err)
			},
		},
	}

	for _, s := range scenarios {
		config, err := mergeWithDefaults([]byte(s.content))
		s.test(t, config, err)
	}
}
