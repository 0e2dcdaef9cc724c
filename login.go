package main

import (
	"fmt"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/drive-migrate/internal/config"
	"github.com/tonimelisma/drive-migrate/internal/drive"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authorize access to Google Drive in your browser",
		RunE:  runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved authorization token",
		RunE:  runLogout,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := config.ValidateAuth(cfg); err != nil {
		return err
	}

	logger := buildLogger(cfg)

	_, err = drive.Login(cmd.Context(), cfg.Auth.TokenPath,
		cfg.Auth.ClientID, cfg.Auth.ClientSecret, openBrowser, logger)
	if err != nil {
		return err
	}

	statusf("Login successful.\n")

	return nil
}

func runLogout(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := buildLogger(cfg)

	if err := drive.Logout(cfg.Auth.TokenPath, logger); err != nil {
		return err
	}

	statusf("Logged out.\n")

	return nil
}

// openBrowser launches the platform's default browser at the given URL.
func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "linux":
		return exec.Command("xdg-open", url).Start()
	default:
		return fmt.Errorf("no browser launcher for %s", runtime.GOOS)
	}
}
