package command

import (
	"serialq/src/config"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Options shared by every command.
type Options struct {
	ConfigPath string
	LogLevel   string
}

func (o *Options) Bind(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&o.ConfigPath, "config", "c", "", "path to the YAML config file")
	cmd.PersistentFlags().StringVarP(&o.LogLevel, "log-level", "l", "", "log level, overrides the config file")
}

// Load reads the config and applies the log level to logger.
func (o *Options) Load(logger *logrus.Logger) (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)
	return cfg, nil
}
