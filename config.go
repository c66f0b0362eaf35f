package steris

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Config is the steris client configuration (separate from any GUI config that the
// embedding application keeps for itself).
type Config struct {
	viper                *viper.Viper
	ConfigDir            string        `mapstructure:"config_dir"`             // Current config dir
	APIBaseURL           string        `mapstructure:"api_base_url"`           // Base URL all API paths are resolved against
	DatabaseFile         string        `mapstructure:"database_file"`          // SQLite file holding the session cache, relative to the config dir
	PingInterval         time.Duration `mapstructure:"ping_interval"`          // Keepalive ping interval for the realtime channel
	ReconnectDelay       time.Duration `mapstructure:"reconnect_delay"`        // Fixed delay between reconnect attempts
	ReconnectMaxAttempts int           `mapstructure:"reconnect_max_attempts"` // Consecutive reconnect attempt ceiling
}

// SetAPIBaseURL updates the API base in the persisted configuration file.
func (cfg *Config) SetAPIBaseURL(baseURL string) error {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("parsing base url %q : %w", baseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("base url %q must use http or https", baseURL)
	}

	cfg.viper.Set("api_base_url", baseURL)
	if err := cfg.viper.WriteConfig(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	if err := cfg.viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unmarshalling config to struct : %w", err)
	}
	return nil
}
