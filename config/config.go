package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"Kakofonix/astrec/internal/logger"
)

// ErrConfiguration marks settings that prevent capture from starting.
var ErrConfiguration = errors.New("configuration error")

const maxInterfaceNameLength = 255

// MaxBlockMinutes caps the rotation period at one leap year.
const MaxBlockMinutes = 366 * 24 * 60

// Verbosity levels for per-datagram diagnostics.
const (
	Quiet       = 0
	Verbose     = 1
	VeryVerbose = 2
)

// Config represents the application configuration
type Config struct {
	// Capture configuration
	Capture struct {
		// Interface is the interface name or IPv4 address to join on. Empty uses the default route
		Interface string `json:"interface" yaml:"interface"`
		// Group is the multicast group address
		Group string `json:"group" yaml:"group"`
		// Port is the UDP port of the feed
		Port int `json:"port" yaml:"port"`
		// Prefix is the recording file prefix, the active file is <prefix>.ast
		Prefix string `json:"prefix" yaml:"prefix"`
		// BlockMinutes is the rotation period
		BlockMinutes int `json:"block_minutes" yaml:"block_minutes"`
		// Verbosity controls per-datagram diagnostics (0, 1 or 2)
		Verbosity int `json:"verbosity" yaml:"verbosity"`
		// MaxDatagramBytes is the receive buffer size for a single datagram
		MaxDatagramBytes int `json:"max_datagram_bytes" yaml:"max_datagram_bytes"`
		// ReadBufferBytes sets SO_RCVBUF when non-zero
		ReadBufferBytes int `json:"read_buffer_bytes" yaml:"read_buffer_bytes"`
		// Manifest writes a JSON sidecar next to every finalized recording
		Manifest bool `json:"manifest" yaml:"manifest"`
	} `json:"capture" yaml:"capture"`

	// Logging configuration
	Logging struct {
		// Level is the minimum log level to output (debug, info, warn, error)
		Level string `json:"level" yaml:"level"`
		// File is the path to the log file. If empty, logs to stdout only
		File string `json:"file" yaml:"file"`
		// MaxSizeMB is the maximum size of log file before rotation
		MaxSizeMB int `json:"max_size_mb" yaml:"max_size_mb"`
		// MaxBackups is the number of rotated log files to keep
		MaxBackups int `json:"max_backups" yaml:"max_backups"`
		// LogRetentionDays is how long rotated log files are kept
		LogRetentionDays int `json:"log_retention_days" yaml:"log_retention_days"`
	} `json:"logging" yaml:"logging"`

	Metrics struct {
		// Listen is the HTTP address serving /metrics. Disabled when empty
		Listen string `json:"listen" yaml:"listen"`
	} `json:"metrics" yaml:"metrics"`

	Health struct {
		// Listen is the gRPC health service address. Disabled when empty
		Listen string `json:"listen" yaml:"listen"`
	} `json:"health" yaml:"health"`

	// Archive uploads finalized recordings to S3 compatible storage
	Archive struct {
		Endpoint          string `json:"endpoint" yaml:"endpoint"`
		AccessKey         string `json:"access_key" yaml:"access_key"`
		SecretKey         string `json:"secret_key" yaml:"secret_key"`
		Bucket            string `json:"bucket" yaml:"bucket"`
		UseTLS            bool   `json:"use_tls" yaml:"use_tls"`
		QueueSize         int    `json:"queue_size" yaml:"queue_size"`
		RemoveAfterUpload bool   `json:"remove_after_upload" yaml:"remove_after_upload"`
	} `json:"archive" yaml:"archive"`

	// Notify publishes one Kafka event per finalized recording
	Notify struct {
		Brokers []string `json:"brokers" yaml:"brokers"`
		Topic   string   `json:"topic" yaml:"topic"`
	} `json:"notify" yaml:"notify"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ValidateAndSetDefaults()
	return cfg
}

// LoadConfig loads configuration from a JSON or YAML file. An empty path returns the defaults.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %v", err)
	}

	config.ValidateAndSetDefaults()
	return &config, nil
}

// ValidateAndSetDefaults fills in every unset value.
func (c *Config) ValidateAndSetDefaults() {
	if c.Capture.Prefix == "" {
		c.Capture.Prefix = "rec"
	}
	if c.Capture.BlockMinutes == 0 {
		c.Capture.BlockMinutes = 60 // new recording every hour on the hour
	}
	if c.Capture.MaxDatagramBytes == 0 {
		c.Capture.MaxDatagramBytes = 8192
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 100
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 3
	}
	if c.Logging.LogRetentionDays == 0 {
		c.Logging.LogRetentionDays = 7
	}
	if c.Archive.Bucket == "" {
		c.Archive.Bucket = "asterix"
	}
	if c.Archive.QueueSize == 0 {
		c.Archive.QueueSize = 4
	}
	if c.Notify.Topic == "" {
		c.Notify.Topic = "asterix.segments"
	}
}

// Validate checks the invariants capture depends on. Every error wraps ErrConfiguration.
func (c *Config) Validate() error {
	if c.Capture.Group == "" || c.Capture.Port == 0 {
		return fmt.Errorf("%w: multicast group address and udp port number are required", ErrConfiguration)
	}
	if c.Capture.Port < 0 || c.Capture.Port > 65535 {
		return fmt.Errorf("%w: udp port %d out of range", ErrConfiguration, c.Capture.Port)
	}
	ip := net.ParseIP(c.Capture.Group)
	if ip == nil || ip.To4() == nil || !ip.IsMulticast() {
		return fmt.Errorf("%w: %q is not an IPv4 multicast group address", ErrConfiguration, c.Capture.Group)
	}
	if c.Capture.Interface != "" {
		if err := validateInterfaceName(c.Capture.Interface); err != nil {
			return fmt.Errorf("%w: invalid interface '%s': %v", ErrConfiguration, c.Capture.Interface, err)
		}
	}
	if c.Capture.BlockMinutes <= 0 {
		return fmt.Errorf("%w: block time must be greater than 0 minutes, got %d", ErrConfiguration, c.Capture.BlockMinutes)
	}
	if c.Capture.BlockMinutes > MaxBlockMinutes {
		return fmt.Errorf("%w: block time must not exceed %d minutes, got %d", ErrConfiguration, MaxBlockMinutes, c.Capture.BlockMinutes)
	}
	if c.Capture.Verbosity < Quiet || c.Capture.Verbosity > VeryVerbose {
		return fmt.Errorf("%w: verbosity must be between 0 and 2, got %d", ErrConfiguration, c.Capture.Verbosity)
	}
	if c.Capture.MaxDatagramBytes < 1 || c.Capture.MaxDatagramBytes > 65535 {
		return fmt.Errorf("%w: max datagram size %d out of range", ErrConfiguration, c.Capture.MaxDatagramBytes)
	}
	if dir := filepath.Dir(c.Capture.Prefix); dir != "." {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("%w: recording directory %s does not exist", ErrConfiguration, dir)
		}
	}
	if _, err := logger.ParseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if c.Archive.Endpoint != "" && (c.Archive.AccessKey == "" || c.Archive.SecretKey == "") {
		return fmt.Errorf("%w: archive.access_key and archive.secret_key must be set when archive.endpoint is", ErrConfiguration)
	}
	if c.Archive.QueueSize < 1 {
		return fmt.Errorf("%w: archive queue size must be positive", ErrConfiguration)
	}
	return nil
}

// Environment variables that override the file. They keep object storage
// credentials out of config files.
const (
	EnvArchiveEndpoint  = "ASTREC_ARCHIVE_ENDPOINT"
	EnvArchiveAccessKey = "ASTREC_ARCHIVE_ACCESS_KEY"
	EnvArchiveSecretKey = "ASTREC_ARCHIVE_SECRET_KEY"
	EnvNotifyBrokers    = "ASTREC_NOTIFY_BROKERS"
)

// LoadEnvFile adds the variables of a dotenv file to the environment.
// Variables that are already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %v", path, err)
	}
	return nil
}

// ApplyEnv overrides archive and notify settings from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvArchiveEndpoint); v != "" {
		c.Archive.Endpoint = v
	}
	if v := os.Getenv(EnvArchiveAccessKey); v != "" {
		c.Archive.AccessKey = v
	}
	if v := os.Getenv(EnvArchiveSecretKey); v != "" {
		c.Archive.SecretKey = v
	}
	if v := os.Getenv(EnvNotifyBrokers); v != "" {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		c.Notify.Brokers = brokers
	}
}

// BlockPeriod returns the rotation period.
func (c *Config) BlockPeriod() time.Duration {
	return time.Duration(c.Capture.BlockMinutes) * time.Minute
}

// ArchiveEnabled reports whether finalized recordings are uploaded.
func (c *Config) ArchiveEnabled() bool {
	return c.Archive.Endpoint != ""
}

// NotifyEnabled reports whether segment events are published.
func (c *Config) NotifyEnabled() bool {
	return len(c.Notify.Brokers) > 0
}

// PrintSettings writes the resolved settings in the operator-facing format.
func (c *Config) PrintSettings(w io.Writer) {
	iface := c.Capture.Interface
	if iface == "" {
		iface = "(default)"
	}
	fmt.Fprintln(w, "Settings used:")
	fmt.Fprintf(w, "- interface        = %s\n", iface)
	fmt.Fprintf(w, "- file prefix      = %s\n", c.Capture.Prefix)
	fmt.Fprintf(w, "- block time (min) = %d\n", c.Capture.BlockMinutes)
	fmt.Fprintf(w, "- multicast group  = %s\n", c.Capture.Group)
	fmt.Fprintf(w, "- multicast port   = %d\n", c.Capture.Port)
}

// InitializeLogging sets up logging based on config
func (c *Config) InitializeLogging() error {
	level, err := logger.ParseLogLevel(c.Logging.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %v", err)
	}

	logConfig := logger.Config{
		LogLevel:   level,
		LogFile:    c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.LogRetentionDays,
	}

	if err := logger.Initialize(logConfig); err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}

	return nil
}

// validateInterfaceName accepts interface names and IPv4 addresses only.
func validateInterfaceName(name string) error {
	if name == "" {
		return errors.New("interface name cannot be empty")
	}
	if len(name) > maxInterfaceNameLength {
		return fmt.Errorf("interface name too long: %d characters", len(name))
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return errors.New("interface name contains invalid characters")
		}
	}
	if name == "." || name == ".." {
		return errors.New("interface name contains invalid characters")
	}
	return nil
}
