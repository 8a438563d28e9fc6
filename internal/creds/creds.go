// Package creds loads the portal credentials and the bound authenticator
// secret. Secrets live in local files by default; the TOTP secret can
// optionally be kept in the OS keyring instead.
package creds

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"

	"attendbot/internal/auth"
	"attendbot/internal/config"
)

const (
	BackendFile    = "file"
	BackendKeyring = "keyring"

	keyringUser = "totp-secret"
)

// Indirection over go-keyring so tests run without an OS keyring.
var (
	keyringGet = keyring.Get
	keyringSet = keyring.Set
)

type credentialsFile struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type secretFile struct {
	Secret string `json:"secret"`
}

// Store resolves credentials from disk and, for the secret, from the
// configured backend.
type Store struct {
	cfg config.CredsConfig
}

func NewStore(cfg config.CredsConfig) *Store {
	return &Store{cfg: cfg}
}

// Load reads and validates everything the login flow needs. Any missing
// or malformed piece is a fatal configuration error: prompting for
// credentials at 09:03 in the background is not an option.
func (s *Store) Load() (auth.Credentials, error) {
	var out auth.Credentials

	var cf credentialsFile
	if err := readJSON(s.cfg.CredentialsFile, &cf); err != nil {
		return out, fmt.Errorf("%w: credentials: %v", config.ErrConfig, err)
	}
	if cf.Username == "" || cf.Password == "" {
		return out, fmt.Errorf("%w: %s must set username and password", config.ErrConfig, s.cfg.CredentialsFile)
	}
	out.Username = cf.Username
	out.Password = cf.Password

	secret, err := s.loadSecret()
	if err != nil {
		return out, err
	}
	out.TOTPSecret = secret
	return out, nil
}

func (s *Store) loadSecret() (string, error) {
	switch s.cfg.SecretBackend {
	case BackendKeyring:
		secret, err := keyringGet(s.cfg.KeyringService, keyringUser)
		if err != nil {
			return "", fmt.Errorf("%w: keyring secret: %v", config.ErrConfig, err)
		}
		if strings.TrimSpace(secret) == "" {
			return "", fmt.Errorf("%w: keyring holds an empty secret", config.ErrConfig)
		}
		return secret, nil
	case BackendFile, "":
		var sf secretFile
		if err := readJSON(s.cfg.SecretFile, &sf); err != nil {
			return "", fmt.Errorf("%w: authenticator secret: %v", config.ErrConfig, err)
		}
		if strings.TrimSpace(sf.Secret) == "" {
			return "", fmt.Errorf("%w: %s must set secret", config.ErrConfig, s.cfg.SecretFile)
		}
		return sf.Secret, nil
	default:
		return "", fmt.Errorf("%w: unknown secret backend %q", config.ErrConfig, s.cfg.SecretBackend)
	}
}

// BindSecret stores a freshly issued authenticator secret in the
// configured backend. Used by the one-time setup path.
func (s *Store) BindSecret(secret string) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return fmt.Errorf("refusing to bind an empty secret")
	}
	switch s.cfg.SecretBackend {
	case BackendKeyring:
		if err := keyringSet(s.cfg.KeyringService, keyringUser, secret); err != nil {
			return fmt.Errorf("store secret in keyring: %w", err)
		}
		return nil
	default:
		data, err := json.MarshalIndent(secretFile{Secret: secret}, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(s.cfg.SecretFile, data, 0o600); err != nil {
			return fmt.Errorf("write secret file: %w", err)
		}
		return nil
	}
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
