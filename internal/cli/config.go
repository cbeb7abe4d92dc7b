package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/neekly/neekly/internal/client/authapi"
	"github.com/neekly/neekly/internal/common/httpclient"
	"github.com/neekly/neekly/internal/planner"
)

const (
	// DefaultConfigFile is the default name of the config file
	DefaultConfigFile = "config.yaml"
	// DefaultSessionFile holds the persisted session next to the config file
	DefaultSessionFile = "session.yaml"
	// DefaultCookieFile holds the refresh cookie next to the config file
	DefaultCookieFile = "cookies.yaml"
	// ConfigVersion is the config format version written by this CLI
	ConfigVersion = "0.1.0"

	// EnvServerURL overrides server_url from the config file
	EnvServerURL = "NEEKLY_SERVER_URL"
	// EnvPassword supplies the login password non-interactively
	EnvPassword = "NEEKLY_PASSWORD"
)

// config files written by any 0.1.x CLI can be read
var configVersionConstraint = mustConstraint("~0.1")

func mustConstraint(c string) *semver.Constraints {
	constraint, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return constraint
}

// EndpointConfig overrides server paths. Empty fields keep their defaults.
type EndpointConfig struct {
	Auth    authapi.Endpoints `yaml:"auth,omitempty"`
	Planner planner.Endpoints `yaml:"planner,omitempty"`
}

// Config represents the configuration for the neekly CLI
type Config struct {
	// Version of the configuration file format
	Version string `yaml:"version" validate:"required"`
	// ServerURL is the base URL of the neekly backend
	ServerURL string `yaml:"server_url" validate:"required,url"`
	// SessionFile stores the access token and user info
	SessionFile string `yaml:"session_file,omitempty"`
	// CookieFile stores the refresh cookie
	CookieFile string `yaml:"cookie_file,omitempty"`
	// RequestTimeout is the default per-request timeout, e.g. "10s"
	RequestTimeout string `yaml:"request_timeout,omitempty"`
	// InsecureSkipVerify disables TLS certificate validation
	InsecureSkipVerify bool `yaml:"insecure_skip_verify,omitempty"`
	// Endpoints overrides the server paths
	Endpoints EndpointConfig `yaml:"endpoints,omitempty"`

	path string
}

var config *Config

// GetDefaultConfigPath returns the default path for the config file
// It uses the OS-specific config directory (e.g., ~/.config/neekly on Linux)
func GetDefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "neekly", DefaultConfigFile), nil
}

// LoadConfig loads the configuration from the specified file
// If no file is specified, it uses the default config location
func LoadConfig(file string) error {
	c, err := ReadConfig(file)
	if err != nil {
		return err
	}
	config = c
	return nil
}

// ReadConfig reads and validates a config file without making it current.
// NEEKLY_SERVER_URL, when set, replaces the configured server.
func ReadConfig(file string) (*Config, error) {
	if file == "" {
		var err error
		file, err = GetDefaultConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get default config path: %w", err)
		}
	}

	yamlStr, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("unable to read config file: %w", err)
	}

	var c Config
	if err = yaml.Unmarshal(yamlStr, &c); err != nil {
		return nil, fmt.Errorf("unable to parse config file: %w", err)
	}
	if server := os.Getenv(EnvServerURL); server != "" {
		c.ServerURL = server
	}

	// Morph the server URL before validating
	c.ServerURL = MorphServer(c.ServerURL)
	c.path = file

	if err := c.ValidateConfig(); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConfig returns the current configuration
func GetConfig() *Config {
	return config
}

// WriteConfig writes the current configuration to the specified file
func (cfg *Config) WriteConfig(file string) error {
	if file == "" {
		return errors.New("file path cannot be empty")
	}

	err := os.MkdirAll(filepath.Dir(file), 0o700)
	if err != nil {
		return fmt.Errorf("unable to create config directory: %w", err)
	}

	yamlStr, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("unable to generate configuration: %w", err)
	}

	err = os.WriteFile(file, yamlStr, os.FileMode(0600))
	if err != nil {
		return fmt.Errorf("unable to write config file: %w", err)
	}
	cfg.path = file

	return nil
}

// ValidateConfig validates the configuration
// Checks for required fields, the format version and the timeout
func (cfg *Config) ValidateConfig() error {
	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed on %q", strings.ToLower(verrs[0].Field()), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	v, err := semver.NewVersion(cfg.Version)
	if err != nil {
		return fmt.Errorf("invalid config version %q: %w", cfg.Version, err)
	}
	if !configVersionConstraint.Check(v) {
		return fmt.Errorf("unsupported config version %s, expected %s", v, ConfigVersion)
	}
	if cfg.RequestTimeout != "" {
		d, err := time.ParseDuration(cfg.RequestTimeout)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid request_timeout %q", cfg.RequestTimeout)
		}
	}
	return nil
}

// MorphServer ensures the server URL is properly formatted
// Adds https:// prefix if missing and removes trailing slashes
func MorphServer(server string) string {
	if server == "" {
		return server
	}

	server = strings.TrimRight(server, "/")

	if !strings.HasPrefix(server, "http://") && !strings.HasPrefix(server, "https://") {
		server = "https://" + server
	}

	return server
}

// GetServerURL returns the properly formatted server URL
func (cfg *Config) GetServerURL() string {
	return MorphServer(cfg.ServerURL)
}

// GetRequestTimeout returns the default per-request timeout
func (cfg *Config) GetRequestTimeout() time.Duration {
	if cfg.RequestTimeout == "" {
		return httpclient.DefaultTimeout
	}
	d, err := time.ParseDuration(cfg.RequestTimeout)
	if err != nil || d <= 0 {
		return httpclient.DefaultTimeout
	}
	return d
}

// Path returns the file the configuration was read from or written to
func (cfg *Config) Path() string {
	return cfg.path
}

// SessionPath returns the session file, defaulting to the config directory
func (cfg *Config) SessionPath() string {
	return cfg.siblingPath(cfg.SessionFile, DefaultSessionFile)
}

// CookiePath returns the cookie file, defaulting to the config directory
func (cfg *Config) CookiePath() string {
	return cfg.siblingPath(cfg.CookieFile, DefaultCookieFile)
}

func (cfg *Config) siblingPath(configured, name string) string {
	if configured != "" {
		return configured
	}
	dir := filepath.Dir(cfg.path)
	if cfg.path == "" {
		if p, err := GetDefaultConfigPath(); err == nil {
			dir = filepath.Dir(p)
		}
	}
	return filepath.Join(dir, name)
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long: `Manage CLI configuration settings like the server URL and request timeout.

Examples:
  # Point the CLI at a server
  neekly config --server https://api.neekly.app

  # Use a local development server
  neekly config --server http://127.0.0.1:8081 --timeout 30s`,
	RunE: func(cmd *cobra.Command, args []string) error {
		serverFlag, _ := cmd.Flags().GetString("server")
		timeoutFlag, _ := cmd.Flags().GetString("timeout")
		if serverFlag != "" {
			return setServerConfig(serverFlag, timeoutFlag)
		}

		cmd.Help()
		return nil
	},
}

// configShowCmd prints the current configuration
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := ReadConfig(configFile)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return errConfigNotFound
			}
			return err
		}
		return printConfig(cmd.OutOrStdout(), cfg)
	},
}

// configClearCmd removes the stored session
var configClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the stored session and refresh cookie",
	Long: `Clear the stored session without contacting the server. This will remove:
1. The access token and user info
2. The refresh cookie

Use "neekly logout" to also end the session on the server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := ReadConfig(configFile)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return errConfigNotFound
			}
			return err
		}
		if err := clearLocalSession(cfg); err != nil {
			return err
		}

		if jsonOutput {
			printJSON(map[string]int{"result": 1})
		} else {
			okLabel.Println("✓ Session cleared")
		}
		return nil
	},
}

// printConfig writes the effective configuration along with the files it
// resolves to
func printConfig(w io.Writer, cfg *Config) error {
	if jsonOutput {
		return writeJSON(w, map[string]any{
			"config_file":     cfg.Path(),
			"session_file":    cfg.SessionPath(),
			"cookie_file":     cfg.CookiePath(),
			"server_url":      cfg.GetServerURL(),
			"request_timeout": cfg.GetRequestTimeout().String(),
			"version":         cfg.Version,
		})
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to format config: %w", err)
	}
	fmt.Fprintf(w, "# %s\n", cfg.Path())
	if _, err := w.Write(data); err != nil {
		return err
	}
	fmt.Fprintf(w, "# session: %s\n# cookies: %s\n", cfg.SessionPath(), cfg.CookiePath())
	return nil
}

var errConfigNotFound = errors.New(`neekly config file not found. Configure neekly with "neekly config --server <url>" first`)

func init() {
	configCmd.Flags().String("server", "", "Set the server URL (e.g., https://api.neekly.app)")
	configCmd.Flags().String("timeout", "", "Set the default request timeout (e.g., 10s)")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configClearCmd)
	rootCmd.AddCommand(configCmd)
}

// setServerConfig writes the server configuration, keeping any other
// settings already in the config file
func setServerConfig(server, timeout string) error {
	configPath := configFile
	if configPath == "" {
		var err error
		configPath, err = GetDefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get default config path: %w", err)
		}
	}

	cfg := &Config{}
	if data, err := os.ReadFile(configPath); err == nil {
		_ = yaml.Unmarshal(data, cfg)
	}
	serverChanged := cfg.ServerURL != "" && MorphServer(cfg.ServerURL) != MorphServer(server)
	cfg.Version = ConfigVersion
	cfg.ServerURL = MorphServer(server)
	if timeout != "" {
		cfg.RequestTimeout = timeout
	}
	cfg.path = configPath
	if err := cfg.ValidateConfig(); err != nil {
		return err
	}

	if err := cfg.WriteConfig(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	// a session issued by another server is useless
	if serverChanged {
		if err := clearLocalSession(cfg); err != nil {
			return err
		}
	}

	if jsonOutput {
		printJSON(map[string]string{
			"server":      cfg.ServerURL,
			"config_file": configPath,
		})
	} else {
		fmt.Printf("Server configured: %s\n", cfg.ServerURL)
		fmt.Printf("Config file: %s\n", configPath)
	}

	return nil
}
