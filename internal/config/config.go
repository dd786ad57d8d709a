// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/atmx/vault-engine/internal/model"
)

var (
	// ErrMissingPrivateKey indicates ETH_RPC_URL is set without a signing key.
	ErrMissingPrivateKey = errors.New("ETH_RPC_URL requires ETH_PRIVATE_KEY")
	ErrInvalidChainID    = errors.New("ETH_CHAIN_ID must be a positive integer")
	ErrSameAssets        = errors.New("LEDGER_A and LEDGER_B must differ")
	ErrInvalidCacheTTL   = errors.New("CACHE_TTL must be a positive duration")
)

type Config struct {
	Port     string
	LogLevel string

	// Pool assets. With an Ethereum RPC configured these are token addresses.
	AssetA       model.Asset
	AssetB       model.Asset
	CustodyOwner string

	DatabaseURL string
	RedisURL    string
	CacheTTL    time.Duration
	NATSURL     string

	ETHRPCURL     string
	ETHPrivateKey string
	ETHChainID    *big.Int

	OperatorToken string
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, relying on process environment")
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables, applying defaults.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		AssetA:        model.Asset(getEnv("LEDGER_A", "ledger-a")),
		AssetB:        model.Asset(getEnv("LEDGER_B", "ledger-b")),
		CustodyOwner:  getEnv("CUSTODY_OWNER", "vault"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		NATSURL:       os.Getenv("NATS_URL"),
		ETHRPCURL:     os.Getenv("ETH_RPC_URL"),
		ETHPrivateKey: os.Getenv("ETH_PRIVATE_KEY"),
		OperatorToken: os.Getenv("OPERATOR_TOKEN"),
	}

	if cfg.AssetA == cfg.AssetB {
		return nil, ErrSameAssets
	}

	ttl, err := time.ParseDuration(getEnv("CACHE_TTL", "30s"))
	if err != nil || ttl <= 0 {
		return nil, ErrInvalidCacheTTL
	}
	cfg.CacheTTL = ttl

	if cfg.ETHRPCURL != "" {
		if cfg.ETHPrivateKey == "" {
			return nil, ErrMissingPrivateKey
		}
		id, ok := new(big.Int).SetString(getEnv("ETH_CHAIN_ID", "1"), 10)
		if !ok || id.Sign() <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidChainID, os.Getenv("ETH_CHAIN_ID"))
		}
		cfg.ETHChainID = id
	}
	return cfg, nil
}

// Custody returns the service's account on in-memory ledgers.
func (c *Config) Custody() (model.Account, error) {
	return model.ParseAccount(c.CustodyOwner)
}

// getEnv returns the variable's value, or fallback when unset.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
