package config

import (
	"github.com/charmbracelet/huh"
)

// Prompt asks for the server settings interactively, starting from the
// values already in cfg.
func Prompt(cfg *Config) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Server URL").
				Description("Base URL of the pacelog server").
				Value(&cfg.ServerURL).
				Validate(ValidateServerURL),
			huh.NewInput().
				Title("API token").
				Description("Leave empty to sync without authentication").
				EchoMode(huh.EchoModePassword).
				Value(&cfg.Token),
			huh.NewSelect[string]().
				Title("Log level").
				Options(huh.NewOptions("debug", "info", "warn", "error")...).
				Value(&cfg.Log.Level),
		),
	)
	return form.Run()
}
