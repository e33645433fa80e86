// Package config loads the process configuration from the environment. A
// .env file is honored when present.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/gre/ledger-api-countervalue/internal/core/domain"
)

const (
	ProviderCoinAPI       = "coinapi"
	ProviderCryptoCompare = "cryptocompare"
	ProviderKaiko         = "kaiko"

	DatabaseMongoDB = "mongodb"
)

type Config struct {
	Provider string
	Database string
	MongoURI string

	CoinAPIKey  string
	KaikoKey    string
	KaikoKeyWSS string
	CMCAPIKey   string

	KaikoRegion     string
	KaikoAPIVersion string
	UseKaikoWSS     bool

	// Lowercased exchange ids excluded from every read API.
	BlacklistExchanges map[string]bool

	// Minimal day count for an exchange to be considered, clamped to 30.
	MinimalDays int

	DisablePrefetch  bool
	HackSyncInServer bool
	DebugLiveRates   bool

	Port int
}

// Load reads and validates the environment. Unknown PROVIDER/DATABASE
// selections and missing credentials are fatal.
func Load() (*Config, error) {
	// Best effort: a missing .env is the normal production case.
	_ = godotenv.Load()

	cfg := &Config{
		Provider:           envDefault("PROVIDER", ProviderCryptoCompare),
		Database:           envDefault("DATABASE", DatabaseMongoDB),
		MongoURI:           envDefault("MONGODB_URI", "mongodb://localhost:27017/ledger-countervalue"),
		CoinAPIKey:         os.Getenv("COINAPI_KEY"),
		KaikoKey:           os.Getenv("KAIKO_KEY"),
		KaikoKeyWSS:        os.Getenv("KAIKO_KEY_WSS"),
		CMCAPIKey:          os.Getenv("CMC_API_KEY"),
		KaikoRegion:        envDefault("KAIKO_REGION", "eu"),
		KaikoAPIVersion:    envDefault("KAIKO_API_VERSION", "v1"),
		UseKaikoWSS:        truthy(os.Getenv("USE_KAIKO_WSS")),
		BlacklistExchanges: parseBlacklist(os.Getenv("BLACKLIST_EXCHANGES")),
		MinimalDays:        parseMinimalDays(os.Getenv("MINIMAL_DAYS_TO_CONSIDER_EXCHANGE")),
		DisablePrefetch:    truthy(os.Getenv("DISABLE_PREFETCH")),
		HackSyncInServer:   truthy(os.Getenv("HACK_SYNC_IN_SERVER")),
		DebugLiveRates:     truthy(os.Getenv("DEBUG_LIVE_RATES")),
		Port:               8088,
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, domain.Configf("invalid PORT: %q", port)
		}
		cfg.Port = p
	}

	switch cfg.Provider {
	case ProviderCoinAPI:
		if cfg.CoinAPIKey == "" {
			return nil, domain.Configf("COINAPI_KEY is required with PROVIDER=coinapi")
		}
	case ProviderCryptoCompare:
	case ProviderKaiko:
		if cfg.KaikoKey == "" {
			return nil, domain.Configf("KAIKO_KEY is required with PROVIDER=kaiko")
		}
		if cfg.UseKaikoWSS && cfg.KaikoKeyWSS == "" {
			return nil, domain.Configf("KAIKO_KEY_WSS is required with USE_KAIKO_WSS")
		}
	default:
		return nil, domain.Configf("unknown PROVIDER: %q", cfg.Provider)
	}

	if cfg.Database != DatabaseMongoDB {
		return nil, domain.Configf("unknown DATABASE: %q", cfg.Database)
	}

	return cfg, nil
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "no":
		return false
	}
	return true
}

func parseBlacklist(v string) map[string]bool {
	out := map[string]bool{}
	for _, part := range strings.Split(v, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out[part] = true
		}
	}
	return out
}

// parseMinimalDays defaults to 20 and clamps to 30: a pair can never be
// required to have more history than the 30-day statistic window holds.
func parseMinimalDays(v string) int {
	days := 20
	if v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			days = parsed
		}
	}
	if days > 30 {
		days = 30
	}
	return days
}
