package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robalyx/spamguard/internal/guard"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
	ErrMissingToken          = errors.New("discord token is not set")
)

// RepositoryVersion is the repository version tag for config file references.
const RepositoryVersion = "v1.0.0"

// Current version of the config file.
const (
	CurrentCommonVersion = 1
	CurrentBotVersion    = 1
)

// Config represents the entire application configuration.
type Config struct {
	Common CommonConfig
	Bot    BotConfig
}

// CommonConfig contains configuration shared by every command.
type CommonConfig struct {
	// Version of the common config.
	Version   int       `koanf:"version"`
	Debug     Debug     `koanf:"debug"`
	Journal   Journal   `koanf:"journal"`
	Telemetry Telemetry `koanf:"telemetry"`
}

// BotConfig contains Discord bot specific configuration.
type BotConfig struct {
	// Version of the bot config.
	Version int `koanf:"version"`
	// Discord configuration.
	Discord Discord `koanf:"discord"`
	// Spam guard thresholds.
	Guard Guard `koanf:"guard"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Maximum log files to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
	// Maximum lines per log file.
	MaxLogLines int `koanf:"max_log_lines"`
	// Enable the pprof and metrics server.
	EnableDebugServer bool `koanf:"enable_debug_server"`
	// Debug server port.
	DebugPort int `koanf:"debug_port"`
}

// Journal contains incident journal configuration.
type Journal struct {
	// Record enforcement incidents.
	Enabled bool `koanf:"enabled"`
	// Path of the SQLite database file.
	Path string `koanf:"path"`
}

// Telemetry contains trace export configuration.
type Telemetry struct {
	// Uptrace DSN for exporting spans (empty disables export).
	UptraceDSN string `koanf:"uptrace_dsn"`
	// Deployment environment attached to spans.
	Environment string `koanf:"environment"`
}

// Discord contains Discord bot configuration.
type Discord struct {
	// Discord bot token for authentication.
	Token string `koanf:"token"`
	// Request timeout in milliseconds.
	RequestTimeout int `koanf:"request_timeout"`
}

// Guard contains the spam detection thresholds.
type Guard struct {
	// Minimum characters for a message without a link to be tracked.
	MinLength int `koanf:"min_length"`
	// Score at which a warning is sent (0 disables warnings).
	WarnLimit *int `koanf:"warn_limit"`
	// Score at which the author is banned.
	BanLimit int `koanf:"ban_limit"`
	// Seconds a bucket stays tracked after its first message.
	RetentionSeconds int `koanf:"retention_seconds"`
	// Distinct message contents tracked per user.
	MaxGroups int `koanf:"max_groups"`
	// Count invite links separately from content.
	TrackLinks *bool `koanf:"track_links"`
	// Channel receiving ban logs (0 disables).
	ModerationChannelID uint64 `koanf:"moderation_channel_id"`
	// Seconds of message history Discord deletes on ban.
	DeleteMessageSeconds int `koanf:"delete_message_seconds"`
	// Seconds between background sweeps (0 disables).
	SweepIntervalSeconds int `koanf:"sweep_interval_seconds"`
	// Audit log reason for bans.
	BanReason string `koanf:"ban_reason"`
	// Channels cleaned up at once after a ban.
	CleanupConcurrency int `koanf:"cleanup_concurrency"`
}

// Validate checks the settings needed to connect to Discord.
func (d *Discord) Validate() error {
	if d.Token == "" {
		return ErrMissingToken
	}

	return nil
}

// RequestTimeoutDuration returns the REST request timeout.
func (d *Discord) RequestTimeoutDuration() time.Duration {
	return time.Duration(d.RequestTimeout) * time.Millisecond
}

// SweepInterval returns the background sweep interval.
func (g *Guard) SweepInterval() time.Duration {
	return time.Duration(g.SweepIntervalSeconds) * time.Second
}

// ToGuardConfig converts the file settings into a validated guard configuration.
// Unset fields fall back to guard.DefaultConfig. WarnLimit and TrackLinks are
// pointers since their zero values are valid settings.
func (g *Guard) ToGuardConfig() (*guard.Config, error) {
	cfg := guard.DefaultConfig()

	if g.MinLength > 0 {
		cfg.MinLength = g.MinLength
	}

	if g.BanLimit > 0 {
		cfg.BanLimit = g.BanLimit
	}

	if g.RetentionSeconds > 0 {
		cfg.Retention = time.Duration(g.RetentionSeconds) * time.Second
	}

	if g.MaxGroups > 0 {
		cfg.MaxGroups = g.MaxGroups
	}

	if g.BanReason != "" {
		cfg.BanReason = g.BanReason
	}

	if g.CleanupConcurrency > 0 {
		cfg.CleanupConcurrency = g.CleanupConcurrency
	}

	if g.WarnLimit != nil {
		cfg.WarnLimit = *g.WarnLimit
	}

	if g.TrackLinks != nil {
		cfg.TrackLinks = *g.TrackLinks
	}

	cfg.ModerationChannelID = snowflake.ID(g.ModerationChannelID)
	cfg.DeleteMessageWindow = time.Duration(g.DeleteMessageSeconds) * time.Second

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid guard config: %w", err)
	}

	return cfg, nil
}

// LoadConfig loads the configuration from the first config path holding each file.
// Returns the config along with the used config directory.
func LoadConfig() (*Config, string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return LoadConfigFrom([]string{
		".spamguard",
		homeDir + "/.spamguard/config",
		"/etc/spamguard/config",
		"/app/config",
		"config",
		".",
	})
}

// LoadConfigFrom loads the configuration from the given search paths.
// Every file gets its own koanf instance since each carries a root version key.
func LoadConfigFrom(configPaths []string) (*Config, string, error) {
	var (
		config         Config
		usedConfigPath string
	)

	configFiles := []struct {
		name   string
		target any
	}{
		{name: "common", target: &config.Common},
		{name: "bot", target: &config.Bot},
	}

	for _, configFile := range configFiles {
		k := koanf.New(".")
		configLoaded := false

		for _, path := range configPaths {
			configPath := fmt.Sprintf("%s/%s.toml", path, configFile.name)
			if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
				configLoaded = true

				if usedConfigPath == "" {
					usedConfigPath = path
				}

				break
			}
		}

		if !configLoaded {
			return nil, "", fmt.Errorf("%w: %s.toml", ErrConfigFileNotFound, configFile.name)
		}

		if err := k.Unmarshal("", configFile.target); err != nil {
			return nil, "", fmt.Errorf("error unmarshaling %s config: %w", configFile.name, err)
		}
	}

	if err := checkConfigVersion("common", config.Common.Version, CurrentCommonVersion); err != nil {
		return nil, "", err
	}

	if err := checkConfigVersion("bot", config.Bot.Version, CurrentBotVersion); err != nil {
		return nil, "", err
	}

	return &config, usedConfigPath, nil
}

// checkConfigVersion checks if the config file version is correct.
func checkConfigVersion(name string, current, expected int) error {
	if current == 0 {
		return fmt.Errorf("%w: %s.toml", ErrConfigVersionMissing, name)
	}

	if current != expected {
		return fmt.Errorf(
			"%w: %s.toml (got: %d, expected: %d)\n"+
				"Please update your config file from: https://github.com/robalyx/spamguard/tree/%s/config/%s.toml",
			ErrConfigVersionMismatch,
			name,
			current,
			expected,
			RepositoryVersion,
			name,
		)
	}

	return nil
}
