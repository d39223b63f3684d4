package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config wraps a viper instance and provides typed accessors for
// every configuration key. Create one via New.
type Config struct {
	v *viper.Viper
}

// New initializes a Config by loading values from environment
// variables, the config file, and compiled defaults (in that priority
// order; CLI flags, bound later via BindFlags, take highest
// priority).
func New() (*Config, error) {
	v := viper.New()

	for _, o := range ConnectionOptions {
		v.SetDefault(o.Key, o.Default)
	}
	for _, o := range ObservabilityOptions {
		v.SetDefault(o.Key, o.Default)
	}

	v.SetConfigName("kubedyn")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/kubedyn/")

	if err := v.ReadInConfig(); err != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !(errors.As(err, &notFoundErr) || errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("KUBEDYN")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return &Config{v: v}, nil
}

// BindFlags registers CLI flags for the given option slice and binds
// them to the underlying viper keys so that flag values override file
// and environment sources.
func (c *Config) BindFlags(fs *pflag.FlagSet, options []Option) error {
	for _, o := range options {
		switch v := o.Default.(type) {
		case string:
			fs.String(o.Flag, v, o.Description)
		case int:
			fs.Int(o.Flag, v, o.Description)
		case bool:
			fs.Bool(o.Flag, v, o.Description)
		case time.Duration:
			fs.Duration(o.Flag, v, o.Description)
		default:
			return fmt.Errorf("unsupported flag type for key: %s", o.Key)
		}

		if err := c.v.BindPFlag(o.Key, fs.Lookup(o.Flag)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", o.Flag, err)
		}
	}
	return nil
}

// MasterURL returns the configured API server base URL.
func (c *Config) MasterURL() string { return c.v.GetString(keyMasterURL) }

// Token returns the configured bearer token, if any.
func (c *Config) Token() string { return c.v.GetString(keyToken) }

// Username returns the configured basic auth username, if any.
func (c *Config) Username() string { return c.v.GetString(keyUsername) }

// Password returns the configured basic auth password, if any.
func (c *Config) Password() string { return c.v.GetString(keyPassword) }

// Kubeconfig returns the configured kubeconfig file path, if any.
func (c *Config) Kubeconfig() string { return c.v.GetString(keyKubeconfig) }

// Namespace returns the default namespace for resource operations.
func (c *Config) Namespace() string { return c.v.GetString(keyNamespace) }

// MetricsAddr returns the address to serve Prometheus metrics on, or
// "" if metrics are disabled.
func (c *Config) MetricsAddr() string { return c.v.GetString(keyMetricsAddr) }
