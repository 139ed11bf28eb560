package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// WithEnv reads the environment into the configuration. Unset variables
// take their env-default values.
func WithEnv() Option {
	return func(c *Config) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return nil
	}
}

// WithDotEnv loads variables from the given files into the process
// environment before WithEnv reads them. Missing files are ignored.
func WithDotEnv(filenames ...string) Option {
	return func(c *Config) error {
		if len(filenames) == 0 {
			filenames = []string{".env"}
		}
		for _, name := range filenames {
			if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to load %s: %w", name, err)
			}
		}
		return nil
	}
}

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *Config) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *Config) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithBaseURL sets the public URL download links are built on
func WithBaseURL(baseURL string) Option {
	return func(c *Config) error {
		c.BaseURL = baseURL
		return nil
	}
}

// WithSecretKey sets the shared secret from raw bytes
func WithSecretKey(key []byte) Option {
	return func(c *Config) error {
		if len(key) == 0 {
			return fmt.Errorf("secret key cannot be empty")
		}
		c.SecretKey = base64.StdEncoding.EncodeToString(key)
		return nil
	}
}

// WithDatabaseURL selects the entry repository
func WithDatabaseURL(databaseURL string) Option {
	return func(c *Config) error {
		c.DatabaseURL = databaseURL
		return nil
	}
}

// WithStorageURL selects the blob store
func WithStorageURL(storageURL string) Option {
	return func(c *Config) error {
		c.StorageURL = storageURL
		return nil
	}
}

// WithMaskedUserAgents replaces the masked user agent patterns
func WithMaskedUserAgents(patterns ...string) Option {
	return func(c *Config) error {
		c.MaskedUserAgents = patterns
		return nil
	}
}
