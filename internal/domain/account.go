package domain

import "time"

// BackendKind identifies which blob store implementation a BackendSettings
// value configures.
type BackendKind string

const (
	BackendKindLocal      BackendKind = "local"
	BackendKindObjectStore BackendKind = "object_store"
)

// BackendSettings is a tagged configuration for one of an account's two
// backend slots (public, secure). Unset (Kind == "") means "use the
// service-wide default backend".
type BackendSettings struct {
	Kind BackendKind `json:"kind,omitempty" db:"kind"`

	// Local backend.
	LocalPath string `json:"local_path,omitempty" db:"local_path"`

	// Object-store backend (Azure Blob Storage account/container, standing
	// in for the original's S3 bucket/region per SPEC_FULL §11).
	AccountURL string `json:"account_url,omitempty" db:"account_url"`
	Container  string `json:"container,omitempty" db:"container"`
	AccessKey  string `json:"access_key,omitempty" db:"access_key"`
	SecretKey  string `json:"-" db:"secret_key"`
}

// IsSet reports whether the account has configured this backend slot
// rather than deferring to the service-wide default.
func (b BackendSettings) IsSet() bool { return b.Kind != "" }

// Account is the identity and configuration unit every asset, task, and
// rate-limit counter is scoped to.
type Account struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	APIKey    string    `json:"-" db:"api_key"`
	AllowedIPs []string `json:"allowed_ips,omitempty" db:"-"`
	// RequestsPerSecond is the account's per-second rate limit override.
	// Nil means "use the service default".
	RequestsPerSecond *int `json:"requests_per_second,omitempty" db:"requests_per_second"`

	PublicBackend BackendSettings `json:"public_backend" db:"-"`
	SecureBackend BackendSettings `json:"secure_backend" db:"-"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Backend returns the BackendSettings for the given secure flag.
func (a *Account) Backend(secure bool) BackendSettings {
	if secure {
		return a.SecureBackend
	}
	return a.PublicBackend
}

// AllowsIP reports whether the account's allow-list permits ip. An empty
// allow-list permits any source.
func (a *Account) AllowsIP(ip string) bool {
	if len(a.AllowedIPs) == 0 {
		return true
	}
	for _, allowed := range a.AllowedIPs {
		if allowed == ip {
			return true
		}
	}
	return false
}
