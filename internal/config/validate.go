package config

import (
	"errors"
	"fmt"
)

// validLogLevels are the accepted log_level values.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level: %q is not one of debug, info, warn, error", cfg.LogLevel))
	}

	if cfg.Migrate.CSVPath == "" {
		errs = append(errs, errors.New("migrate.csv_path: must not be empty"))
	}

	if cfg.Migrate.BackupFolder == "" {
		errs = append(errs, errors.New("migrate.backup_folder: must not be empty"))
	}

	if cfg.Migrate.JournalPath == "" {
		errs = append(errs, errors.New("migrate.journal_path: must not be empty"))
	}

	if cfg.Auth.TokenPath == "" {
		errs = append(errs, errors.New("auth.token_path: must not be empty"))
	}

	return errors.Join(errs...)
}

// ValidateAuth checks that the OAuth client credentials are present. Called
// only by commands that talk to the API, so status and logout work without
// a configured client.
func ValidateAuth(cfg *Config) error {
	var errs []error

	if cfg.Auth.ClientID == "" {
		errs = append(errs, errors.New("auth.client_id: required (create an OAuth client in the Google Cloud console)"))
	}

	if cfg.Auth.ClientSecret == "" {
		errs = append(errs, errors.New("auth.client_secret: required"))
	}

	return errors.Join(errs...)
}
