// Package config reads the supervisor configuration using Viper.
//
// Precedence: defaults, then an optional cadence.yml in the working
// directory, then CADENCE_-prefixed environment variables, then CLI
// flags bound by the command layer.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/teranos/cadence/errors"
)

// Config is the supervisor's process configuration.
type Config struct {
	RepoURL      string        `mapstructure:"repo_url"`
	JobsDir      string        `mapstructure:"jobs_dir"`
	HistoryFile  string        `mapstructure:"history_file"`
	SecretsFile  string        `mapstructure:"secrets_file"`
	KeyFile      string        `mapstructure:"key_file"`
	SyncInterval time.Duration `mapstructure:"sync_interval"`
	Interpreter  string        `mapstructure:"interpreter"`
	Watch        bool          `mapstructure:"watch"`
	Verbose      bool          `mapstructure:"verbose"`
	JSONLogs     bool          `mapstructure:"json_logs"`
}

// SetDefaults installs the default values on a Viper instance.
func SetDefaults(v *viper.Viper) {
	// repo_url defaults empty so env/flag overrides are visible to Unmarshal
	v.SetDefault("repo_url", "")
	v.SetDefault("jobs_dir", "./jobs")
	v.SetDefault("history_file", "./job_history.json")
	v.SetDefault("secrets_file", "./secrets.json.enc")
	v.SetDefault("key_file", "./secrets.key")
	v.SetDefault("sync_interval", 15*time.Minute)
	v.SetDefault("interpreter", "ruby")
	v.SetDefault("watch", false)
	v.SetDefault("verbose", false)
	v.SetDefault("json_logs", false)
}

// NewViper builds the configured Viper instance without reading it into
// a struct; the command layer binds flags onto it before Load.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetConfigName("cadence")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CADENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads configuration from the given Viper instance. A missing
// config file is fine; a malformed one is not.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, errors.Configurationf("Cannot read config file: %v", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Configurationf("Cannot parse configuration: %v", err)
	}
	return &cfg, nil
}
