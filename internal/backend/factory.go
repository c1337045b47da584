package backend

import (
	"fmt"

	"github.com/h51assets/h51/internal/domain"
	"github.com/h51assets/h51/pkg/config"
)

// Resolve builds the Backend an account's given security class should use:
// the account's own settings if configured, else the service-wide default
// from cfg.Backend. Returns an error the API layer surfaces as
// invalid_request (with hint) and the worker surfaces as task_error, per
// §7's "backend misconfiguration" handling.
func Resolve(settings domain.BackendSettings, cfg config.BackendConfig) (Backend, error) {
	if !settings.IsSet() {
		if cfg.LocalFilesPath == "" {
			return nil, fmt.Errorf("no backend configured and no service default is set")
		}
		return NewLocal(cfg.LocalFilesPath)
	}

	switch settings.Kind {
	case domain.BackendKindLocal:
		path := settings.LocalPath
		if path == "" {
			path = cfg.LocalFilesPath
		}
		return NewLocal(path)
	case domain.BackendKindObjectStore:
		accountURL := settings.AccountURL
		if accountURL == "" {
			accountURL = cfg.AzureAccountURL
		}
		container := settings.Container
		if container == "" {
			container = cfg.AzureContainer
		}
		return NewAzureBlob(accountURL, container, settings.AccessKey, settings.SecretKey)
	default:
		return nil, fmt.Errorf("unknown backend kind %q", settings.Kind)
	}
}
