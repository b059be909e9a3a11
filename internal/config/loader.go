package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envConfigDefaultPath = "WIRELOBBY_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix("WIRELOBBY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			// try reading again in case it was just written
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, configPath, nil
}

// setDefaults registers every key so AutomaticEnv can override nested values.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("port", cfg.Port)
	v.SetDefault("hostname", cfg.Hostname)
	v.SetDefault("read_header_timeout", cfg.ReadHeaderTimeout)
	v.SetDefault("shutdown_timeout", cfg.ShutdownTimeout)

	v.SetDefault("use_single_lobby", cfg.UseSingleLobby)
	v.SetDefault("create_lobby_on_first_client", cfg.CreateLobbyOnFirstClient)
	v.SetDefault("runtime_interval", cfg.RuntimeInterval)
	v.SetDefault("lobby_manage_interval", cfg.LobbyManageInterval)
	v.SetDefault("expose_lobbies_in_metadata", cfg.ExposeLobbiesInMetadata)
	v.SetDefault("lobby_remove_message", cfg.LobbyRemoveMessage)

	v.SetDefault("accept_all_connections", cfg.AcceptAllConnections)
	v.SetDefault("rejection_socket_close_timeout", cfg.RejectionSocketCloseTimeout)
	v.SetDefault("client_remove_socket_close_timeout", cfg.ClientRemoveSocketCloseTimeout)
	v.SetDefault("max_message_bytes", cfg.MaxMessageBytes)
	v.SetDefault("max_messages_per_minute", cfg.MaxMessagesPerMinute)
	v.SetDefault("admin_token_secret", cfg.AdminTokenSecret)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.max_size_mb", cfg.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", cfg.Log.MaxBackups)
	v.SetDefault("log.max_age_days", cfg.Log.MaxAgeDays)
	v.SetDefault("log.compress", cfg.Log.Compress)

	v.SetDefault("admission.secret", cfg.Admission.Secret)
	v.SetDefault("admission.issuer", cfg.Admission.Issuer)
	v.SetDefault("admission.ttl", cfg.Admission.TTL)

	v.SetDefault("nats.url", cfg.NATS.URL)
	v.SetDefault("nats.subject_prefix", cfg.NATS.SubjectPrefix)

	v.SetDefault("journal.path", cfg.Journal.Path)
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
