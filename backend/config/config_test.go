package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const clientYAML = `
log_level: info
relay:
  official_hosts: ["0xhost"]
  ping_interval: 3s
client:
  identity: "0xabc"
  room_id: official
  relay_url: ws://relay.internal:8888
  room:
    enable_mic_request: false
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sancia.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestParseClientFromFile(t *testing.T) {
	cfg, err := ParseClient([]string{"--config", writeConfig(t, clientYAML)})
	require.NoError(t, err)

	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "0xabc", cfg.Client.Identity)
	require.Equal(t, "official", cfg.Client.RoomID)
	require.Equal(t, "ws://relay.internal:8888", cfg.Client.RelayURL)
	require.False(t, cfg.Client.Room.EnableMicRequest)
	require.True(t, cfg.Client.Room.AdaptiveQuality, "unset keys keep their defaults")
	require.Equal(t, 3*time.Second, cfg.Relay.PingInterval)
	require.Equal(t, 5, cfg.Client.MaxReconnectAttempts)
}

func TestFlagsOverrideFile(t *testing.T) {
	cfg, err := ParseClient([]string{
		"-c", writeConfig(t, clientYAML),
		"--room", "user-1700000000000",
		"--mic-request",
		"-l", "warn",
	})
	require.NoError(t, err)
	require.Equal(t, "user-1700000000000", cfg.Client.RoomID)
	require.True(t, cfg.Client.Room.EnableMicRequest)
	require.Equal(t, "warn", cfg.LogLevel)
	require.Equal(t, "0xabc", cfg.Client.Identity)
}

func TestParseClientValidation(t *testing.T) {
	_, err := ParseClient(nil)
	require.ErrorIs(t, err, ErrMissingIdentity)

	_, err = ParseClient([]string{"-i", "0xabc"})
	require.ErrorIs(t, err, ErrMissingRoom)

	cfg, err := ParseClient([]string{"-i", "0xabc", "--create", "--room-name", "after hours"})
	require.NoError(t, err)
	require.True(t, cfg.Client.Create)

	_, err = ParseClient([]string{"-i", "0xabc", "-r", "official", "--relay-url", ""})
	require.ErrorIs(t, err, ErrMissingRelayURL)
}

func TestParseRelay(t *testing.T) {
	cfg, err := ParseRelay([]string{"--official-host", "0xa", "--official-host", "0xb", "--max-participants", "10"})
	require.NoError(t, err)
	require.Equal(t, []string{"0xa", "0xb"}, cfg.Relay.OfficialHosts)
	require.Equal(t, 10, cfg.Relay.MaxParticipants)
	require.Equal(t, ":8080", cfg.Relay.APIListenAddr)
	require.Equal(t, "official", cfg.Relay.OfficialRoomID)
}

func TestConfigFileErrors(t *testing.T) {
	_, err := ParseRelay([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	require.ErrorIs(t, err, fs.ErrNotExist)

	_, err = ParseRelay([]string{"--config", writeConfig(t, "relay: [")})
	require.Error(t, err)

	_, err = ParseRelay([]string{"--no-such-flag"})
	require.Error(t, err)
}
