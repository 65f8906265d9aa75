package httpapi

import (
	"net/http"

	"github.com/shalom-dev-bot/astremina/internal/config"
)

type ConfigHandler struct {
	Cfg config.Config
}

const redacted = "********"

func redact(cfg config.Config) config.Config {
	if cfg.Notify.SecretAccessKey != "" {
		cfg.Notify.SecretAccessKey = redacted
	}
	if cfg.Redis.Password != "" {
		cfg.Redis.Password = redacted
	}
	if cfg.SentryDSN != "" {
		cfg.SentryDSN = redacted
	}
	return cfg
}

// Get serves the effective configuration with secrets masked.
func (h ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, redact(h.Cfg))
}

// Validate reports warnings for the effective configuration.
func (h ConfigHandler) Validate(w http.ResponseWriter, r *http.Request) {
	_, vr := config.NormalizeAndValidate(h.Cfg)
	WriteJSON(w, http.StatusOK, vr)
}
