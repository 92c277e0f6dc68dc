package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	api "github.com/retirectl/retirectl/api/v1alpha1"
	"sigs.k8s.io/yaml"
)

const (
	appName = "retirectl"
)

type Config struct {
	Database   *dbConfig     `json:"database,omitempty"`
	Service    *svcConfig    `json:"service,omitempty"`
	Retirement *retireConfig `json:"retirement,omitempty"`
}

type dbConfig struct {
	Type     string `json:"type,omitempty"`
	Hostname string `json:"hostname,omitempty"`
	Port     uint   `json:"port,omitempty"`
	Name     string `json:"name,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
}

type svcConfig struct {
	OutputDir      string `json:"outputDir,omitempty"`
	MetricsAddress string `json:"metricsAddress,omitempty"`
	LogLevel       string `json:"logLevel,omitempty"`
}

type retireConfig struct {
	// Concurrency is the default worker-pool width for a run; 1 processes
	// devices sequentially.
	Concurrency int `json:"concurrency,omitempty"`
}

func ConfigDir() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "."+appName)
}

func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

func NewDefault() *Config {
	c := &Config{
		Service: &svcConfig{
			OutputDir: ".",
			LogLevel:  "info",
		},
		Retirement: &retireConfig{
			Concurrency: 1,
		},
	}
	return c
}

func NewFromFile(cfgFile string) (*Config, error) {
	cfg, err := Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadOrGenerate(cfgFile string) (*Config, error) {
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(cfgFile), os.FileMode(0755)); err != nil {
			return nil, fmt.Errorf("creating directory for config file: %v", err)
		}
		if err := Save(NewDefault(), cfgFile); err != nil {
			return nil, err
		}
	}
	return NewFromFile(cfgFile)
}

func Load(cfgFile string) (*Config, error) {
	contents, err := os.ReadFile(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %v", err)
	}
	c := NewDefault()
	if err := yaml.Unmarshal(contents, c); err != nil {
		return nil, fmt.Errorf("decoding config: %v", err)
	}
	return c, nil
}

func Save(cfg *Config, cfgFile string) error {
	contents, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %v", err)
	}
	if err := os.WriteFile(cfgFile, contents, 0600); err != nil {
		return fmt.Errorf("writing config file: %v", err)
	}
	return nil
}

func Validate(cfg *Config) error {
	if cfg.Retirement != nil && cfg.Retirement.Concurrency < 0 {
		return fmt.Errorf("retirement.concurrency must not be negative")
	}
	return nil
}

// LoadCriteria reads an eligibility criteria file (YAML or JSON).
func LoadCriteria(path string) (*api.EligibilityCriteria, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading criteria file: %v", err)
	}
	criteria := &api.EligibilityCriteria{}
	if err := yaml.Unmarshal(contents, criteria); err != nil {
		return nil, fmt.Errorf("decoding criteria: %v", err)
	}
	return criteria, nil
}

func (cfg *Config) OutputDir() string {
	if cfg.Service != nil && cfg.Service.OutputDir != "" {
		return cfg.Service.OutputDir
	}
	return "."
}

func (cfg *Config) MetricsAddress() string {
	if cfg.Service == nil {
		return ""
	}
	return cfg.Service.MetricsAddress
}

func (cfg *Config) DatabaseConfigured() bool {
	return cfg.Database != nil && cfg.Database.Hostname != ""
}

// DatabaseDSN renders the postgres connection string for the audit store.
func (cfg *Config) DatabaseDSN() string {
	if cfg.Database == nil {
		return ""
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		cfg.Database.Hostname, cfg.Database.Port, cfg.Database.User, cfg.Database.Password, cfg.Database.Name)
}

func (cfg *Config) String() string {
	contents, err := json.Marshal(cfg)
	if err != nil {
		return "<error>"
	}
	return string(contents)
}
