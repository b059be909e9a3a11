package config

import (
	"errors"
	"net"
	"strconv"
	"time"
)

// Config holds server configuration values.
type Config struct {
	Port              int           `mapstructure:"port" yaml:"port"`
	Hostname          string        `mapstructure:"hostname" yaml:"hostname"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// Lobby behaviour.
	UseSingleLobby           bool          `mapstructure:"use_single_lobby" yaml:"use_single_lobby"`
	CreateLobbyOnFirstClient bool          `mapstructure:"create_lobby_on_first_client" yaml:"create_lobby_on_first_client"`
	RuntimeInterval          time.Duration `mapstructure:"runtime_interval" yaml:"runtime_interval"`
	LobbyManageInterval      time.Duration `mapstructure:"lobby_manage_interval" yaml:"lobby_manage_interval"`
	ExposeLobbiesInMetadata  bool          `mapstructure:"expose_lobbies_in_metadata" yaml:"expose_lobbies_in_metadata"`
	LobbyRemoveMessage       string        `mapstructure:"lobby_remove_message" yaml:"lobby_remove_message"`

	// Connection handling.
	AcceptAllConnections           bool          `mapstructure:"accept_all_connections" yaml:"accept_all_connections"`
	RejectionSocketCloseTimeout    time.Duration `mapstructure:"rejection_socket_close_timeout" yaml:"rejection_socket_close_timeout"`
	ClientRemoveSocketCloseTimeout time.Duration `mapstructure:"client_remove_socket_close_timeout" yaml:"client_remove_socket_close_timeout"`
	MaxMessageBytes                int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	MaxMessagesPerMinute           int           `mapstructure:"max_messages_per_minute" yaml:"max_messages_per_minute"`

	AdminTokenSecret string `mapstructure:"admin_token_secret" yaml:"admin_token_secret"`

	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Admission AdmissionConfig `mapstructure:"admission" yaml:"admission"`
	NATS      NATSConfig      `mapstructure:"nats" yaml:"nats"`
	Journal   JournalConfig   `mapstructure:"journal" yaml:"journal"`
}

// LogConfig controls logger output.
type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"` // console or json
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// AdmissionConfig configures the token based admission hook used when
// accept_all_connections is off.
type AdmissionConfig struct {
	Secret string        `mapstructure:"secret" yaml:"secret"`
	Issuer string        `mapstructure:"issuer" yaml:"issuer"`
	TTL    time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// NATSConfig enables publishing lifecycle notices to NATS when URL is set.
type NATSConfig struct {
	URL           string `mapstructure:"url" yaml:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix" yaml:"subject_prefix"`
}

// JournalConfig enables the sqlite notice journal when Path is set.
type JournalConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Port:              8080,
		Hostname:          "0.0.0.0",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,

		UseSingleLobby:           true,
		CreateLobbyOnFirstClient: false,
		RuntimeInterval:          100 * time.Millisecond,
		LobbyManageInterval:      100 * time.Millisecond,
		ExposeLobbiesInMetadata:  true,
		LobbyRemoveMessage:       "Lobby removed",

		AcceptAllConnections:           true,
		RejectionSocketCloseTimeout:    120 * time.Millisecond,
		ClientRemoveSocketCloseTimeout: 120 * time.Millisecond,
		MaxMessageBytes:                1 << 16,
		MaxMessagesPerMinute:           600,

		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Admission: AdmissionConfig{
			Issuer: "wirelobby",
			TTL:    time.Hour,
		},
		NATS: NATSConfig{
			SubjectPrefix: "wirelobby.notices",
		},
	}
}

// Addr is the listen address built from hostname and port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Hostname, strconv.Itoa(c.Port))
}

// Validate reports values the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, errors.New("port out of range"))
	}
	if c.RuntimeInterval <= 0 {
		errs = append(errs, errors.New("runtime_interval must be positive"))
	}
	if c.LobbyManageInterval < 0 {
		errs = append(errs, errors.New("lobby_manage_interval must not be negative"))
	}
	if c.RejectionSocketCloseTimeout < 0 || c.ClientRemoveSocketCloseTimeout < 0 {
		errs = append(errs, errors.New("socket close timeouts must not be negative"))
	}
	if !c.AcceptAllConnections && c.Admission.Secret == "" {
		errs = append(errs, errors.New("admission.secret is required when accept_all_connections is off"))
	}
	return errors.Join(errs...)
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Only the listener settings are considered; they are the ones exposed as flags.
func (c *Config) UpdateFrom(other Config) {
	if other.Port != 0 {
		c.Port = other.Port
	}
	if other.Hostname != "" {
		c.Hostname = other.Hostname
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
}
