// Package config reads the paywall's settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/vitwit/x402-paywall/clients"
	"github.com/vitwit/x402-paywall/types"
	"github.com/vitwit/x402-paywall/utils"
)

const (
	DefaultPort           = 4242
	DefaultLogLevel       = "info"
	DefaultNetwork        = string(types.NetworkBaseSepolia)
	DefaultPrice          = "$0.01"
	DefaultDepositNetwork = "base"
	DefaultTimeout        = 60 * time.Second
)

// Config is built once at startup and passed by value.
type Config struct {
	StripeSecretKey          string `validate:"required"`
	FacilitatorURL           string `validate:"required,url"`
	FacilitatorAuthorization string

	Port     int    `validate:"gte=1,lte=65535"`
	LogLevel string `validate:"oneof=debug info warn error"`

	// Network is the CAIP-2 network payments are accepted on.
	Network string `validate:"required,caip2"`
	Price   string `validate:"required,price"`

	// DepositNetwork selects the processor's deposit address entry.
	DepositNetwork string `validate:"required"`

	Timeout time.Duration `validate:"gt=0"`
}

// Load reads a .env file when present and then the process environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, types.NewError(types.ErrConfigError, "failed to load .env", err)
	}

	cfg := Config{
		StripeSecretKey:          os.Getenv("STRIPE_SECRET_KEY"),
		FacilitatorURL:           getenv("FACILITATOR_URL", clients.DefaultFacilitatorURL),
		FacilitatorAuthorization: os.Getenv("FACILITATOR_AUTHORIZATION"),
		LogLevel:                 getenv("LOG_LEVEL", DefaultLogLevel),
		Network:                  getenv("X402_NETWORK", DefaultNetwork),
		Price:                    getenv("PRICE", DefaultPrice),
		DepositNetwork:           getenv("DEPOSIT_NETWORK", DefaultDepositNetwork),
	}

	port, err := strconv.Atoi(getenv("PORT", strconv.Itoa(DefaultPort)))
	if err != nil {
		return Config{}, types.NewError(types.ErrConfigError, "PORT must be a number", err)
	}
	cfg.Port = port

	cfg.Timeout = DefaultTimeout
	if v := os.Getenv("FACILITATOR_TIMEOUT"); v != "" {
		if cfg.Timeout, err = time.ParseDuration(v); err != nil {
			return Config{}, types.NewError(types.ErrConfigError, "FACILITATOR_TIMEOUT must be a duration", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.StripeSecretKey == "" {
		return types.NewError(types.ErrConfigError, "STRIPE_SECRET_KEY is required", nil)
	}
	if err := utils.ValidateStruct(c); err != nil {
		return types.NewError(types.ErrConfigError, "invalid configuration", err)
	}
	return nil
}

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("0.0.0.0:%d", c.Port)
}

// PublicURL is the address logged at startup.
func (c Config) PublicURL() string {
	return fmt.Sprintf("http://localhost:%d", c.Port)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
