package internal

import (
	"strings"
	"testing"
)

func TestAuthConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     AuthConfig
		wantErr bool
		errHas  string
		enabled bool
	}{
		{name: "disabled mode", cfg: AuthConfig{Mode: "disabled"}},
		{name: "empty mode", cfg: AuthConfig{}},
		{name: "token mode with token", cfg: AuthConfig{Mode: "token", Token: "mysecret"}, enabled: true},
		{name: "token mode without token", cfg: AuthConfig{Mode: "token"}, wantErr: true, errHas: "token is empty"},
		{name: "unknown mode", cfg: AuthConfig{Mode: "magic", Token: "x"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				if err == nil {
					t.Fatal("Validate() = nil, want error")
				}
				if tc.errHas != "" && !strings.Contains(err.Error(), tc.errHas) {
					t.Errorf("Validate() = %v, want substring %q", err, tc.errHas)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
			if got := tc.cfg.AuthEnabled(); got != tc.enabled {
				t.Errorf("AuthEnabled() = %v, want %v", got, tc.enabled)
			}
		})
	}
}

func TestAuthConfigNormalisesEmptyMode(t *testing.T) {
	cfg := AuthConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("Mode after Validate = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestVaultConfig_ValidIgnorePatterns(t *testing.T) {
	cfg := VaultConfig{Path: "./vault", Ignore: []string{".obsidian/**", "drafts/*.md"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid ignore patterns rejected: %v", err)
	}
}

func TestVaultConfig_InvalidIgnorePattern(t *testing.T) {
	cfg := VaultConfig{Path: "./vault", Ignore: []string{"[unclosed"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("broken glob pattern passed validation")
	}
}

func TestConfigValidateCoversAuth(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = AuthModeToken
	cfg.Auth.Token = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("top-level Validate missed the auth section")
	}
}

func TestDefaultConfig(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}
