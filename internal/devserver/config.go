package devserver

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// Duration is a time.Duration that decodes from TOML strings like "15m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UserConfig is an account created at startup.
type UserConfig struct {
	Email    string `toml:"email" validate:"required,email"`
	Password string `toml:"password" validate:"required"`
	UserName string `toml:"user_name"`
}

// Config is the development server configuration.
type Config struct {
	Listen          string       `toml:"listen" validate:"required,hostname_port"`
	JWTSecret       string       `toml:"jwt_secret" validate:"required,min=16"`
	AccessTokenTTL  Duration     `toml:"access_token_ttl"`
	RefreshTokenTTL Duration     `toml:"refresh_token_ttl"`
	RequestTimeout  Duration     `toml:"request_timeout"`
	LoginTokenField string       `toml:"login_token_field" validate:"oneof=token accessToken"`
	HandleCORS      bool         `toml:"handle_cors"`
	CORSOrigins     []string     `toml:"cors_origins"`
	Users           []UserConfig `toml:"users" validate:"dive"`
}

// DefaultConfig returns a configuration suitable for local use.
func DefaultConfig() Config {
	return Config{
		Listen:          "127.0.0.1:8081",
		JWTSecret:       "neekly-development-secret",
		AccessTokenTTL:  Duration{15 * time.Minute},
		RefreshTokenTTL: Duration{7 * 24 * time.Hour},
		RequestTimeout:  Duration{30 * time.Second},
		LoginTokenField: "token",
		HandleCORS:      true,
		CORSOrigins:     []string{"http://localhost:5173"},
	}
}

// LoadConfig reads a TOML file over the defaults and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("unable to read config file: %w", err)
		}
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return cfg, fmt.Errorf("unable to parse config file: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}
	if c.AccessTokenTTL.Duration <= 0 || c.RefreshTokenTTL.Duration <= 0 {
		return fmt.Errorf("invalid server config: token lifetimes must be positive")
	}
	return nil
}
