// Package syncconfig manages the replog client's on-disk state outside the
// event store: config.json for settings and identity.json for the
// provisioned identity and its token.
package syncconfig

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config is the client config stored at ~/.config/replog/config.json.
type Config struct {
	ServerURL string `json:"server_url,omitempty"`
	AutoSync  *bool  `json:"auto_sync,omitempty"` // nil = default true
}

// Identity stores the provisioned identity at ~/.config/replog/identity.json.
// Token is the bearer token in plaintext; the file is written 0600.
type Identity struct {
	UserID    string `json:"user_id"`
	Token     string `json:"token"`
	DeviceID  string `json:"device_id"`
	Anonymous bool   `json:"anonymous"`
}

const defaultServerURL = "http://localhost:8080"

// ConfigDir returns ~/.config/replog, creating it if necessary.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".config", "replog")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// DataDir returns the directory holding the local event store.
// Priority: REPLOG_DATA_DIR env > ~/.local/share/replog.
func DataDir() (string, error) {
	dir := os.Getenv("REPLOG_DATA_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home dir: %w", err)
		}
		dir = filepath.Join(home, ".local", "share", "replog")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return dir, nil
}

// DBPath returns the path of the local event store database.
func DBPath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "replog.db"), nil
}

// LoadConfig reads config.json. A missing file is an empty config.
func LoadConfig() (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveConfig writes config.json.
func SaveConfig(cfg *Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// LoadIdentity reads identity.json. A missing file returns nil, nil.
func LoadIdentity() (*Identity, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, "identity.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// SaveIdentity writes identity.json with 0600 perms. The token lives in
// this file and nowhere else.
func SaveIdentity(id *Identity) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "identity.json"), data, 0600)
}

// ClearIdentity removes identity.json.
func ClearIdentity() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(dir, "identity.json"))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// GetServerURL returns the sync server URL.
// Priority: REPLOG_SERVER_URL env > config.json > default.
func GetServerURL() string {
	if v := os.Getenv("REPLOG_SERVER_URL"); v != "" {
		return v
	}
	cfg, err := LoadConfig()
	if err == nil && cfg.ServerURL != "" {
		return cfg.ServerURL
	}
	return defaultServerURL
}

// GetToken returns the bearer token.
// Priority: REPLOG_TOKEN env > identity.json.
func GetToken() string {
	if v := os.Getenv("REPLOG_TOKEN"); v != "" {
		return v
	}
	id, err := LoadIdentity()
	if err == nil && id != nil {
		return id.Token
	}
	return ""
}

// IsProvisioned reports whether the client has an identity and token.
func IsProvisioned() bool {
	return GetToken() != ""
}

// GetAutoSync reports whether event-producing commands should push before
// exiting. Priority: REPLOG_AUTO_SYNC env > config.json > true.
func GetAutoSync() bool {
	if v := parseBoolEnv("REPLOG_AUTO_SYNC"); v != nil {
		return *v
	}
	cfg, err := LoadConfig()
	if err == nil && cfg.AutoSync != nil {
		return *cfg.AutoSync
	}
	return true
}

// GetDeviceID returns the device id from identity.json, generating a fresh
// one when no identity exists yet. The caller persists it by saving the
// identity.
func GetDeviceID() (string, error) {
	id, err := LoadIdentity()
	if err != nil {
		return "", err
	}
	if id != nil && id.DeviceID != "" {
		return id.DeviceID, nil
	}
	return GenerateDeviceID()
}

// GenerateDeviceID creates a new random device id (16 bytes hex).
func GenerateDeviceID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// parseBoolEnv returns nil if env not set, pointer to bool if set.
func parseBoolEnv(envKey string) *bool {
	v := os.Getenv(envKey)
	if v == "" {
		return nil
	}
	v = strings.ToLower(v)
	if v == "1" || v == "true" {
		b := true
		return &b
	}
	if v == "0" || v == "false" {
		b := false
		return &b
	}
	return nil
}
