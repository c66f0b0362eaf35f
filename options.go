package steris

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path"

	"github.com/spf13/viper"

	"github.com/tfkr-ae/steris/db"
	"github.com/tfkr-ae/steris/domain"
)

// WithOptions applies a series of configuration functions to the client instance.
// Each option function can modify the client configuration and return an error if it fails.
//
// Parameters:
//   - options: Variadic list of configuration functions
//
// Returns:
//   - error: First error encountered from any option function
func (client *Client) WithOptions(options ...func(*Client) error) error {
	for _, option := range options {
		err := option(client)
		if err != nil {
			return fmt.Errorf("applying option on steris : %w", err)
		}
	}
	return nil
}

// WithConfigDir configures the client to use the specified configuration directory.
// It creates the directory if it doesn't exist, initializes the configuration file
// using Viper, and opens the session cache database inside the directory unless a
// repository was already provided.
//
// Parameters:
//   - appConfigDir: Path to the configuration directory
//
// Returns:
//   - func(*Client) error: Configuration function that sets up the config directory
func WithConfigDir(appConfigDir string) func(*Client) error {
	return func(client *Client) error {
		_, err := os.ReadDir(appConfigDir)
		if err != nil {
			if os.IsNotExist(err) {
				log.Println("[*] creating config dir")
				err := os.MkdirAll(appConfigDir, 0700)
				if err != nil {
					return fmt.Errorf("creating config dir %s: %w", appConfigDir, err)
				}
			} else {
				return fmt.Errorf("checking if directory exists %s: %w", appConfigDir, err)
			}
		}
		// At this point, the directory exists or was created successfully
		client.ConfigDir = appConfigDir

		// VIPER
		v := viper.New()
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(appConfigDir)
		v.SetDefault("api_base_url", "http://localhost:8080/api")
		v.SetDefault("database_file", "steris.db")
		v.SetDefault("ping_interval", "30s")
		v.SetDefault("reconnect_delay", "3s")
		v.SetDefault("reconnect_max_attempts", 5)
		err = v.ReadInConfig()
		if err != nil {
			// need to check if the error is config file doesn't exist
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				// Config file is not found
				err = v.SafeWriteConfig()
				if err != nil {
					return fmt.Errorf("writing config file : %w", err)
				}
			} else {
				return fmt.Errorf("reading config file : %w", err)
			}
		}
		if err := v.Unmarshal(client.Config); err != nil {
			return fmt.Errorf("unmarshalling config to struct : %w", err)
		}

		client.Config.viper = v
		client.Config.ConfigDir = appConfigDir
		// Rewrite entire file from struct
		err = v.WriteConfig()
		if err != nil {
			return fmt.Errorf("writing config after unmarshalling : %w", err)
		}

		if client.Repo == nil {
			conn, err := db.New(path.Join(appConfigDir, client.Config.DatabaseFile))
			if err != nil {
				return fmt.Errorf("opening session cache : %w", err)
			}
			client.Repo = db.NewCredentialRepo(conn)
		}

		return nil
	}
}

// WithLogger sets the structured logger used across the client. A nil logger keeps
// the default.
func WithLogger(logger *slog.Logger) func(*Client) error {
	return func(client *Client) error {
		if logger == nil {
			return nil
		}
		client.Logger = logger
		return nil
	}
}

// WithRepo injects a credential repository, replacing the SQLite store that
// WithConfigDir would otherwise open.
func WithRepo(repo domain.CredentialRepository) func(*Client) error {
	return func(client *Client) error {
		client.Repo = repo
		return nil
	}
}

// WithBaseURL overrides the API base from the configuration file.
func WithBaseURL(baseURL string) func(*Client) error {
	return func(client *Client) error {
		client.BaseURL = baseURL
		return nil
	}
}

// WithTransport replaces the base HTTP transport underneath the authorizer and
// normalizer chain.
func WithTransport(transport http.RoundTripper) func(*Client) error {
	return func(client *Client) error {
		if transport == nil {
			return nil
		}
		client.transport = transport
		return nil
	}
}

// WithSocketFactory replaces the websocket implementation used by the realtime
// manager. Primarily a seam for tests and embedders with their own transport.
func WithSocketFactory(factory SocketFactory) func(*Client) error {
	return func(client *Client) error {
		client.socketFactory = factory
		return nil
	}
}
