package config

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.NodePortNode)
	assert.Equal(t, 0, cfg.NodePortPub)
	assert.False(t, cfg.AllowLocal)
	assert.Equal(t, "239.255.77.77:4243", cfg.DiscoveryGroupAddr)
	assert.Equal(t, 2, cfg.UmundoLogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadHonorsEnvironmentOverrides(t *testing.T) {
	t.Setenv("NODE_PORT_NODE", "5000")
	t.Setenv("NODE_ALLOW_LOCAL", "true")
	t.Setenv("UMUNDO_LOGLEVEL", "4")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.NodePortNode)
	assert.True(t, cfg.AllowLocal)
	assert.Equal(t, 4, cfg.UmundoLogLevel)
}

func TestValidateRejectsOutOfRangeValues(t *testing.T) {
	cfg := &Config{
		NodePortNode:   70000,
		UmundoLogLevel: 2,
		LogFormat:      "json",
		SessionPeerRate: 1.0,
		CommandRate:     1.0,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NODE_PORT_NODE")
}

func TestValidateRejectsUnknownLogFormat(t *testing.T) {
	cfg := &Config{
		LogFormat:       "xml",
		UmundoLogLevel:  2,
		SessionPeerRate: 1.0,
		CommandRate:     1.0,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOG_FORMAT")
}

func TestZerologLevelMapping(t *testing.T) {
	cases := []struct {
		level int
		want  zerolog.Level
	}{
		{0, zerolog.ErrorLevel},
		{1, zerolog.WarnLevel},
		{2, zerolog.InfoLevel},
		{3, zerolog.DebugLevel},
		{4, zerolog.TraceLevel},
	}
	for _, tc := range cases {
		cfg := &Config{UmundoLogLevel: tc.level}
		assert.Equal(t, tc.want, cfg.ZerologLevel())
	}
}
