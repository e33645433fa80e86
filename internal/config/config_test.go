package config

import (
	"errors"
	"testing"

	"github.com/gre/ledger-api-countervalue/internal/core/domain"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PROVIDER", "DATABASE", "MONGODB_URI", "COINAPI_KEY", "KAIKO_KEY",
		"KAIKO_KEY_WSS", "CMC_API_KEY", "KAIKO_REGION", "KAIKO_API_VERSION",
		"USE_KAIKO_WSS", "BLACKLIST_EXCHANGES",
		"MINIMAL_DAYS_TO_CONSIDER_EXCHANGE", "DISABLE_PREFETCH",
		"HACK_SYNC_IN_SERVER", "DEBUG_LIVE_RATES", "PORT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider != ProviderCryptoCompare || cfg.Database != DatabaseMongoDB {
		t.Fatalf("selection: %+v", cfg)
	}
	if cfg.MongoURI != "mongodb://localhost:27017/ledger-countervalue" {
		t.Fatalf("mongo uri: %s", cfg.MongoURI)
	}
	if cfg.Port != 8088 {
		t.Fatalf("port: %d", cfg.Port)
	}
	if cfg.MinimalDays != 20 {
		t.Fatalf("minimal days: %d", cfg.MinimalDays)
	}
	if cfg.KaikoRegion != "eu" || cfg.KaikoAPIVersion != "v1" {
		t.Fatalf("kaiko defaults: %+v", cfg)
	}
}

func TestLoad_UnknownProviderIsConfigError(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROVIDER", "binance")
	_, err := Load()
	var configErr domain.ConfigError
	if !errors.As(err, &configErr) {
		t.Fatalf("want ConfigError, got %v", err)
	}
}

func TestLoad_MissingCredentialForSelectedAdapter(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROVIDER", "coinapi")
	if _, err := Load(); err == nil {
		t.Fatal("coinapi without COINAPI_KEY must fail")
	}

	t.Setenv("COINAPI_KEY", "k")
	if _, err := Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Setenv("PROVIDER", "kaiko")
	if _, err := Load(); err == nil {
		t.Fatal("kaiko without KAIKO_KEY must fail")
	}
	t.Setenv("KAIKO_KEY", "k")
	t.Setenv("USE_KAIKO_WSS", "1")
	if _, err := Load(); err == nil {
		t.Fatal("USE_KAIKO_WSS without KAIKO_KEY_WSS must fail")
	}
	t.Setenv("KAIKO_KEY_WSS", "k")
	if _, err := Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoad_UnknownDatabaseIsConfigError(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE", "postgres")
	if _, err := Load(); err == nil {
		t.Fatal("want error")
	}
}

func TestLoad_BlacklistIsLowercased(t *testing.T) {
	clearEnv(t)
	t.Setenv("BLACKLIST_EXCHANGES", "ShadyEx, OTHER ,")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.BlacklistExchanges["shadyex"] || !cfg.BlacklistExchanges["other"] {
		t.Fatalf("blacklist: %v", cfg.BlacklistExchanges)
	}
	if len(cfg.BlacklistExchanges) != 2 {
		t.Fatalf("blacklist size: %v", cfg.BlacklistExchanges)
	}
}

func TestLoad_MinimalDaysClampedTo30(t *testing.T) {
	clearEnv(t)
	t.Setenv("MINIMAL_DAYS_TO_CONSIDER_EXCHANGE", "45")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MinimalDays != 30 {
		t.Fatalf("minimal days: %d", cfg.MinimalDays)
	}

	t.Setenv("MINIMAL_DAYS_TO_CONSIDER_EXCHANGE", "5")
	cfg, _ = Load()
	if cfg.MinimalDays != 5 {
		t.Fatalf("minimal days: %d", cfg.MinimalDays)
	}
}
