package domain

import "testing"

func TestAccountAllowsIP(t *testing.T) {
	a := &Account{}
	if !a.AllowsIP("1.2.3.4") {
		t.Error("empty allow-list should permit any ip")
	}

	a.AllowedIPs = []string{"10.0.0.1", "10.0.0.2"}
	if !a.AllowsIP("10.0.0.1") {
		t.Error("expected 10.0.0.1 to be allowed")
	}
	if a.AllowsIP("10.0.0.3") {
		t.Error("expected 10.0.0.3 to be rejected")
	}
}

func TestAccountBackend(t *testing.T) {
	a := &Account{
		PublicBackend: BackendSettings{Kind: BackendKindLocal, LocalPath: "/public"},
		SecureBackend: BackendSettings{Kind: BackendKindObjectStore, Container: "secure"},
	}
	if got := a.Backend(false); got.Kind != BackendKindLocal {
		t.Errorf("expected public backend, got %+v", got)
	}
	if got := a.Backend(true); got.Kind != BackendKindObjectStore {
		t.Errorf("expected secure backend, got %+v", got)
	}
}

func TestBackendSettingsIsSet(t *testing.T) {
	var b BackendSettings
	if b.IsSet() {
		t.Error("zero-value BackendSettings should not be set")
	}
	b.Kind = BackendKindLocal
	if !b.IsSet() {
		t.Error("expected BackendSettings with a kind to be set")
	}
}
