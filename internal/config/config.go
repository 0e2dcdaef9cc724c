// Package config loads and validates the drive-migrate TOML configuration.
package config

// Default values for configuration options. These work out of the box for
// everything except the OAuth client credentials, which the operator must
// supply (there is no sensible default for a client secret).
const (
	defaultLogLevel     = "info"
	defaultCSVPath      = "files_to_migrate.csv"
	defaultBackupFolder = "bak"
)

// Config is the root of the TOML configuration file.
type Config struct {
	LogLevel string        `toml:"log_level"`
	Auth     AuthConfig    `toml:"auth"`
	Migrate  MigrateConfig `toml:"migrate"`
}

// AuthConfig holds the OAuth2 client credentials and token location.
type AuthConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	TokenPath    string `toml:"token_path"`
}

// MigrateConfig holds the migration run settings.
type MigrateConfig struct {
	CSVPath      string `toml:"csv_path"`
	BackupFolder string `toml:"backup_folder"`
	JournalPath  string `toml:"journal_path"`
}

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: defaultLogLevel,
		Auth: AuthConfig{
			TokenPath: DefaultTokenPath(),
		},
		Migrate: MigrateConfig{
			CSVPath:      defaultCSVPath,
			BackupFolder: defaultBackupFolder,
			JournalPath:  DefaultJournalPath(),
		},
	}
}
