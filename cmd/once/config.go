package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ilyakaznacheev/cleanenv"
)

// ClientConfig is the CLI configuration
type ClientConfig struct {
	BaseURL         string `yaml:"base_url" env:"ONCE_API_URL"`
	SecretKey       string `yaml:"secret_key" env:"ONCE_SECRET_KEY"`
	SignatureHeader string `yaml:"signature_header" env:"ONCE_SIGNATURE_HEADER" env-default:"x-once-signature"`
}

func defaultConfigFile() string {
	if path := os.Getenv("ONCE_CONFIG_FILE"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".once.yaml"
	}
	return filepath.Join(home, ".once.yaml")
}

// LoadClientConfig reads path when it exists, then applies environment
// overrides.
func LoadClientConfig(path string) (*ClientConfig, error) {
	if path == "" {
		path = defaultConfigFile()
	}

	var cfg ClientConfig
	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base_url is not set in %s or ONCE_API_URL", path)
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("secret_key is not set in %s or ONCE_SECRET_KEY", path)
	}
	return &cfg, nil
}

// Secret decodes the base64 shared secret
func (c *ClientConfig) Secret() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(c.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("secret_key must be base64 encoded: %w", err)
	}
	if len(key) == 0 {
		return nil, errors.New("secret_key is empty")
	}
	return key, nil
}
