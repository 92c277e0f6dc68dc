package cli

import (
	"fmt"

	"github.com/retirectl/retirectl/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type GlobalOptions struct {
	ConfigFilePath string
	LogLevel       string
}

func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{
		ConfigFilePath: config.ConfigFile(),
		LogLevel:       "",
	}
}

func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVar(&o.ConfigFilePath, "config", o.ConfigFilePath, "Path to the retirectl configuration file.")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "Log level override (debug, info, warn, error).")
}

func (o *GlobalOptions) Complete(cmd *cobra.Command, args []string) error {
	return nil
}

func (o *GlobalOptions) Validate(args []string) error {
	if o.LogLevel != "" {
		if _, err := logrus.ParseLevel(o.LogLevel); err != nil {
			return fmt.Errorf("invalid log level %q", o.LogLevel)
		}
	}
	return nil
}

// LoadConfig reads the configuration file, generating a default one on first
// use, and applies the log-level override.
func (o *GlobalOptions) LoadConfig(log *logrus.Logger) (*config.Config, error) {
	cfg, err := config.LoadOrGenerate(o.ConfigFilePath)
	if err != nil {
		return nil, err
	}
	level := o.LogLevel
	if level == "" && cfg.Service != nil {
		level = cfg.Service.LogLevel
	}
	if level != "" {
		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q", level)
		}
		log.SetLevel(parsed)
	}
	return cfg, nil
}
