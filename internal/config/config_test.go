// File: internal/config/config_test.go
package config

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "console", cfg.Logger().Format)
	assert.Equal(t, "bridge-cli", cfg.Logger().ServiceName)
	assert.Equal(t, 500*time.Millisecond, cfg.Bridge().PollInterval)
	assert.Equal(t, 50*time.Millisecond, cfg.Bridge().Debounce)
	assert.Equal(t, 3, cfg.Bridge().WriteRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.Bridge().RetryDelay)
	assert.True(t, cfg.Bridge().Watch)
	assert.Equal(t, "translators-bridge", cfg.Bridge().Project)
}

func TestNewConfigFromViperResolvesHomeDirectory(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	// Empty dir resolves to <home>/.translators.
	assert.Equal(t, BridgeDirName, filepath.Base(cfg.Bridge().Dir))
	assert.True(t, filepath.IsAbs(cfg.Bridge().Dir))
}

func TestNewConfigFromViperKeepsExplicitDir(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("bridge.dir", "/tmp/bridge-exchange")

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/bridge-exchange", cfg.Bridge().Dir)
}

func TestConfigFromYAML(t *testing.T) {
	yaml := []byte(`
logger:
  level: debug
  format: json
bridge:
  dir: /var/lib/translators
  poll_interval: 250ms
  debounce: 20ms
  watch: false
  project: custom-consumer
`)
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewReader(yaml)))

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger().Level)
	assert.Equal(t, "json", cfg.Logger().Format)
	assert.Equal(t, "/var/lib/translators", cfg.Bridge().Dir)
	assert.Equal(t, 250*time.Millisecond, cfg.Bridge().PollInterval)
	assert.Equal(t, 20*time.Millisecond, cfg.Bridge().Debounce)
	assert.False(t, cfg.Bridge().Watch)
	assert.Equal(t, "custom-consumer", cfg.Bridge().Project)
}

// -- Validation Logic Tests --

func TestBridgeValidation(t *testing.T) {
	valid := BridgeConfig{
		Dir:          "/tmp/x",
		PollInterval: 500 * time.Millisecond,
		Debounce:     50 * time.Millisecond,
		WriteRetries: 3,
		RetryDelay:   100 * time.Millisecond,
		Project:      "translators-bridge",
	}
	assert.NoError(t, valid.Validate())

	negPoll := valid
	negPoll.PollInterval = -time.Second
	err := negPoll.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll_interval")

	negDebounce := valid
	negDebounce.Debounce = -time.Millisecond
	err = negDebounce.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "debounce")

	negRetries := valid
	negRetries.WriteRetries = -1
	err = negRetries.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write_retries")

	noProject := valid
	noProject.Project = ""
	err = noProject.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project")
}

// -- Setter Tests --

func TestFlagSetters(t *testing.T) {
	cfg := NewDefaultConfig()

	cfg.SetBridgeDir("/opt/bridge")
	cfg.SetBridgeWatch(false)
	cfg.SetBridgeProject("override")

	assert.Equal(t, "/opt/bridge", cfg.Bridge().Dir)
	assert.False(t, cfg.Bridge().Watch)
	assert.Equal(t, "override", cfg.Bridge().Project)
}
