package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateInterfaceName(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantError bool
		errorMsg  string
	}{
		// Valid interface names
		{"valid basic interface", "eth0", false, ""},
		{"valid wireless interface", "wlan0", false, ""},
		{"valid interface with dash", "en0-1", false, ""},
		{"valid interface with underscore", "eth_0", false, ""},
		{"valid vlan interface", "eth0.100", false, ""},
		{"valid ipv4 address", "192.168.1.10", false, ""},

		// Invalid interface names
		{"empty string", "", true, "interface name cannot be empty"},
		{"command injection semicolon", "eth0; rm -rf /", true, "interface name contains invalid characters"},
		{"path traversal", "../../../etc/passwd", true, "interface name contains invalid characters"},
		{"forward slash", "eth0/test", true, "interface name contains invalid characters"},
		{"space", "eth0 test", true, "interface name contains invalid characters"},
		{"newline", "eth0\ntest", true, "interface name contains invalid characters"},
		{"ipv6 address", "fe80::1", true, "interface name contains invalid characters"},
		{"dot dot", "..", true, "interface name contains invalid characters"},
		{"too long", strings.Repeat("a", 256), true, "interface name too long: 256 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateInterfaceName(tt.input)
			if tt.wantError {
				if err == nil {
					t.Errorf("validateInterfaceName(%q) expected error but got nil", tt.input)
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("validateInterfaceName(%q) error = %v, expected to contain %q", tt.input, err, tt.errorMsg)
				}
			} else if err != nil {
				t.Errorf("validateInterfaceName(%q) unexpected error = %v", tt.input, err)
			}
		})
	}
}

func TestConfig_ValidateAndSetDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.ValidateAndSetDefaults()

	assert.Equal(t, "rec", cfg.Capture.Prefix)
	assert.Equal(t, 60, cfg.Capture.BlockMinutes)
	assert.Equal(t, time.Hour, cfg.BlockPeriod())
	assert.Equal(t, 8192, cfg.Capture.MaxDatagramBytes)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "asterix", cfg.Archive.Bucket)
	assert.Equal(t, 4, cfg.Archive.QueueSize)
	assert.Equal(t, "asterix.segments", cfg.Notify.Topic)
	assert.False(t, cfg.ArchiveEnabled())
	assert.False(t, cfg.NotifyEnabled())
}

func validConfig() *Config {
	cfg := Default()
	cfg.Capture.Group = "239.64.64.1"
	cfg.Capture.Port = 7150
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"valid with interface", func(c *Config) { c.Capture.Interface = "eth0" }, ""},
		{"missing group", func(c *Config) { c.Capture.Group = "" }, "multicast group address and udp port number are required"},
		{"missing port", func(c *Config) { c.Capture.Port = 0 }, "multicast group address and udp port number are required"},
		{"port out of range", func(c *Config) { c.Capture.Port = 70000 }, "out of range"},
		{"unicast group", func(c *Config) { c.Capture.Group = "10.0.0.1" }, "not an IPv4 multicast group address"},
		{"unparsable group", func(c *Config) { c.Capture.Group = "group" }, "not an IPv4 multicast group address"},
		{"bad interface", func(c *Config) { c.Capture.Interface = "eth0;reboot" }, "invalid interface"},
		{"zero block time", func(c *Config) { c.Capture.BlockMinutes = -1 }, "block time must be greater than 0"},
		{"block time of one leap year", func(c *Config) { c.Capture.BlockMinutes = MaxBlockMinutes }, ""},
		{"block time too long", func(c *Config) { c.Capture.BlockMinutes = MaxBlockMinutes + 1 }, "must not exceed"},
		{"block time overflowing duration", func(c *Config) { c.Capture.BlockMinutes = 153722868 }, "must not exceed"},
		{"verbosity too high", func(c *Config) { c.Capture.Verbosity = 3 }, "verbosity"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "unknown log level"},
		{"missing recording dir", func(c *Config) { c.Capture.Prefix = "/nonexistent-astrec-dir/rec" }, "does not exist"},
		{"archive without credentials", func(c *Config) { c.Archive.Endpoint = "minio:9000" }, "access_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfiguration)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	data := `{
  "capture": {"group": "239.65.0.254", "port": 51040, "prefix": "test", "block_minutes": 10, "verbosity": 1},
  "logging": {"level": "debug"},
  "notify": {"brokers": ["kafka:9092"]}
}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "239.65.0.254", cfg.Capture.Group)
	assert.Equal(t, 51040, cfg.Capture.Port)
	assert.Equal(t, "test", cfg.Capture.Prefix)
	assert.Equal(t, 10*time.Minute, cfg.BlockPeriod())
	assert.Equal(t, Verbose, cfg.Capture.Verbosity)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.NotifyEnabled())
	assert.Equal(t, "asterix.segments", cfg.Notify.Topic)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "failed to read config file")

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))
	_, err = LoadConfig(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestLoadConfig_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.ErrorIs(t, cfg.Validate(), ErrConfiguration)
}

func TestPrintSettings(t *testing.T) {
	var buf bytes.Buffer
	validConfig().PrintSettings(&buf)
	out := buf.String()
	assert.Contains(t, out, "- interface        = (default)")
	assert.Contains(t, out, "- multicast group  = 239.64.64.1")
	assert.Contains(t, out, "- multicast port   = 7150")
	assert.Contains(t, out, "- block time (min) = 60")
}

func TestLoadConfig_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "astrec.yaml")
	data := `capture:
  group: 239.65.0.254
  port: 51040
  block_minutes: 15
archive:
  endpoint: minio:9000
  bucket: radar
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "239.65.0.254", cfg.Capture.Group)
	assert.Equal(t, 51040, cfg.Capture.Port)
	assert.Equal(t, 15*time.Minute, cfg.BlockPeriod())
	assert.Equal(t, "radar", cfg.Archive.Bucket)
	assert.Equal(t, "rec", cfg.Capture.Prefix)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvArchiveEndpoint, "s3.local:9000")
	t.Setenv(EnvArchiveAccessKey, "ak")
	t.Setenv(EnvArchiveSecretKey, "sk")
	t.Setenv(EnvNotifyBrokers, "k1:9092, k2:9092,")

	cfg := validConfig()
	cfg.ApplyEnv()
	assert.Equal(t, "s3.local:9000", cfg.Archive.Endpoint)
	assert.Equal(t, "ak", cfg.Archive.AccessKey)
	assert.Equal(t, "sk", cfg.Archive.SecretKey)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notify.Brokers)
	require.NoError(t, cfg.Validate())
}

func TestLoadEnvFile(t *testing.T) {
	require.NoError(t, LoadEnvFile(""))
	require.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ASTREC_ARCHIVE_ACCESS_KEY=from-file\n"), 0600))
	t.Setenv(EnvArchiveAccessKey, "")
	os.Unsetenv(EnvArchiveAccessKey)

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "from-file", os.Getenv(EnvArchiveAccessKey))
}
