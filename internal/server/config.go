package server

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the server configuration.
type Config struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	DataDir string `mapstructure:"data_dir"`
}

// Addr returns the listen address as host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.data_dir", "./data")
	v.SetDefault("server.dev_mode", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/plugins.db")

	// Event bus manager defaults (event queue depth, publish deadline, and
	// dispatch pool size for the event bus's worker goroutines).
	v.SetDefault("event_bus_manager.max_queue_size", 1000)
	v.SetDefault("event_bus_manager.publish_timeout", 5.0)
	v.SetDefault("event_bus_manager.thread_pool_size", 4)

	// Plugin installation defaults.
	v.SetDefault("plugins.dir", "./data/plugins")
	v.SetDefault("plugins.core_version", "1.0.0")
	v.SetDefault("plugins.verification_issuer", "qorzen-registry")
	v.SetDefault("plugins.signing_key_file", "")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("pluginhost")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/pluginhost")
	}

	// Environment variable support: QZ_SERVER_PORT=9090
	v.SetEnvPrefix("QZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is fine -- use defaults
	}

	return v, nil
}
