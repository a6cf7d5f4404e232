package agent

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Credentials is what the controller handed out at registration.
type Credentials struct {
	AgentID   string    `yaml:"agent_id"`
	Token     string    `yaml:"token"`
	ServerURL string    `yaml:"server_url"`
	CreatedAt time.Time `yaml:"created_at"`
}

func (c Credentials) Valid() bool {
	return c.AgentID != "" && c.Token != ""
}

// LoadCredentials reads credentials from path. A missing file is not an error;
// it returns ok=false.
func LoadCredentials(path string) (Credentials, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Credentials{}, false, nil
		}
		return Credentials{}, false, fmt.Errorf("failed to read credentials: %w", err)
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return Credentials{}, false, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return creds, creds.Valid(), nil
}

func SaveCredentials(path string, creds Credentials) error {
	data, err := yaml.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	header := "# Agent registered on " + creds.CreatedAt.Format(time.RFC3339) + "\n"
	if err := os.WriteFile(path, []byte(header+string(data)), 0o600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}
