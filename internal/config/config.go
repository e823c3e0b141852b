// This file defines the configuration structure for the application.
package config

import (
	// use Viper for loading the config.yml file.
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration settings for the application.
// It maps directly to the structure of config.yml.
type Config struct {
	Port     int `mapstructure:"port"`
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Storage struct {
		Path      string `mapstructure:"path"`
		ScratchID string `mapstructure:"scratch_id"`
	} `mapstructure:"storage"`
	Network NetworkConfig `mapstructure:"network"`
	Preload struct {
		Offsets []int `mapstructure:"offsets"`
		Workers int   `mapstructure:"workers"`
		Queue   int   `mapstructure:"queue"`
	} `mapstructure:"preload"`
	Sources SourcesConfig `mapstructure:"sources"`
	Jobs    struct {
		SweepInterval int           `mapstructure:"sweep_interval"`
		PartialMaxAge time.Duration `mapstructure:"partial_max_age"`
	} `mapstructure:"jobs"`
}

// NetworkConfig holds HTTP client settings shared by every source.
type NetworkConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
	ProbeAddress string        `mapstructure:"probe_address"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	LogLevel     string        `mapstructure:"log_level"`
}

// SourcesConfig holds the per-source settings.
type SourcesConfig struct {
	E struct {
		BaseURL string `mapstructure:"base_url"`
	} `mapstructure:"e"`
	Wn struct {
		BaseURL  string        `mapstructure:"base_url"`
		Slots    int           `mapstructure:"slots"`
		Cooldown time.Duration `mapstructure:"cooldown"`
	} `mapstructure:"wn"`
	Hi struct {
		Enabled bool   `mapstructure:"enabled"`
		Domain  string `mapstructure:"domain"`
	} `mapstructure:"hi"`
}

// Load reads configuration from a file named "config.yml" in the
// current directory and unmarshals it into a Config struct.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from the given file. An empty path falls back
// to looking for config.yml in the current directory.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config") // name of config file (without extension)
		v.SetConfigType("yml")    // or "yaml"
		v.AddConfigPath(".")      // looking for config in the current directory
	}

	// e.g., MANGO_STORAGE_PATH will override the `storage.path` key.
	v.SetEnvPrefix("MANGO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error and use defaults
		} else {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	// Defaults are static and always decode.
	_ = v.Unmarshal(&config)
	return &config
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("database.path", "./mango-pages.db")
	v.SetDefault("storage.path", "./pages")
	v.SetDefault("storage.scratch_id", "tmp")

	v.SetDefault("network.timeout", 30*time.Second)
	v.SetDefault("network.user_agent", "Mozilla/5.0 (Linux; Android 14) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Mobile Safari/537.36")
	v.SetDefault("network.probe_address", "")
	v.SetDefault("network.probe_timeout", 3*time.Second)
	v.SetDefault("network.log_level", "info")

	v.SetDefault("preload.offsets", []int{1, 2, -1})
	v.SetDefault("preload.workers", 2)
	v.SetDefault("preload.queue", 8)

	v.SetDefault("sources.e.base_url", "https://e-hentai.org")
	v.SetDefault("sources.wn.base_url", "https://www.wnacg.com")
	v.SetDefault("sources.wn.slots", 19)
	v.SetDefault("sources.wn.cooldown", 30*time.Second)
	v.SetDefault("sources.hi.enabled", false)
	v.SetDefault("sources.hi.domain", "hitomi.la")

	v.SetDefault("jobs.sweep_interval", 60)
	v.SetDefault("jobs.partial_max_age", time.Hour)
}
