package config

import (
	"errors"
	"testing"
	"time"
)

func TestFromEnv(t *testing.T) {
	t.Setenv("ETH_RPC_URL", "")
	t.Setenv("PORT", "9090")
	t.Setenv("LEDGER_A", "ledger-a")
	t.Setenv("LEDGER_B", "ledger-b")
	t.Setenv("CUSTODY_OWNER", "vault")
	t.Setenv("CACHE_TTL", "45s")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "9090" || cfg.AssetA != "ledger-a" || cfg.AssetB != "ledger-b" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.CacheTTL != 45*time.Second {
		t.Errorf("cache ttl = %s", cfg.CacheTTL)
	}
	if cfg.ETHChainID != nil {
		t.Error("chain id is only parsed with an RPC endpoint")
	}
	custody, err := cfg.Custody()
	if err != nil || custody.Owner != "vault" {
		t.Errorf("custody = %v, %v", custody, err)
	}
}

func TestFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want error
	}{
		{"same assets", map[string]string{"LEDGER_A": "x", "LEDGER_B": "x"}, ErrSameAssets},
		{"bad ttl", map[string]string{"CACHE_TTL": "soon"}, ErrInvalidCacheTTL},
		{"rpc without key", map[string]string{"ETH_RPC_URL": "http://localhost:8545", "ETH_PRIVATE_KEY": ""}, ErrMissingPrivateKey},
		{"bad chain id", map[string]string{"ETH_RPC_URL": "http://localhost:8545", "ETH_PRIVATE_KEY": "ab", "ETH_CHAIN_ID": "0"}, ErrInvalidChainID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LEDGER_A", "ledger-a")
			t.Setenv("LEDGER_B", "ledger-b")
			t.Setenv("CACHE_TTL", "30s")
			t.Setenv("ETH_RPC_URL", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := FromEnv(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestFromEnv_ChainID(t *testing.T) {
	t.Setenv("LEDGER_A", "ledger-a")
	t.Setenv("LEDGER_B", "ledger-b")
	t.Setenv("CACHE_TTL", "30s")
	t.Setenv("ETH_RPC_URL", "http://localhost:8545")
	t.Setenv("ETH_PRIVATE_KEY", "ab")
	t.Setenv("ETH_CHAIN_ID", "11155111")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ETHChainID.Int64() != 11155111 {
		t.Errorf("chain id = %s", cfg.ETHChainID)
	}
}
