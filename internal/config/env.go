package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// ErrMissingCredential is returned when the provider API key is not set.
var ErrMissingCredential = errors.New("missing credential")

// LoadDotEnv loads a .env file from dir when present. Variables already set
// in the environment are left untouched.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat .env: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// APIKey reads the provider credential from the environment.
func (c Config) APIKey() (string, error) {
	key := strings.TrimSpace(os.Getenv(c.Provider.APIKeyEnv))
	if key == "" {
		return "", fmt.Errorf("%w: %s is not set", ErrMissingCredential, c.Provider.APIKeyEnv)
	}
	return key, nil
}
