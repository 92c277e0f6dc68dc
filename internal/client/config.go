package client

import (
	"fmt"
	"os"
	"time"

	"sigs.k8s.io/yaml"
)

// Config is the session file the CLI reads: endpoints and a bearer token for
// an already-authenticated session with the three external systems.
// Obtaining the token (interactive login, client credentials) happens outside
// this tool.
type Config struct {
	ManagementEndpoint   string `json:"managementEndpoint"`
	ProvisioningEndpoint string `json:"provisioningEndpoint"`
	DirectoryEndpoint    string `json:"directoryEndpoint"`
	Token                string `json:"token,omitempty"`
	// RequestTimeoutSeconds bounds each external call; 0 uses the default.
	RequestTimeoutSeconds int `json:"requestTimeoutSeconds,omitempty"`
}

const defaultRequestTimeout = 30 * time.Second

func (c *Config) requestTimeout() time.Duration {
	if c.RequestTimeoutSeconds > 0 {
		return time.Duration(c.RequestTimeoutSeconds) * time.Second
	}
	return defaultRequestTimeout
}

func (c *Config) Validate() error {
	if c.ManagementEndpoint == "" {
		return fmt.Errorf("session config: managementEndpoint is required")
	}
	if c.ProvisioningEndpoint == "" {
		return fmt.Errorf("session config: provisioningEndpoint is required")
	}
	if c.DirectoryEndpoint == "" {
		return fmt.Errorf("session config: directoryEndpoint is required")
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading session config: %v", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("decoding session config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
