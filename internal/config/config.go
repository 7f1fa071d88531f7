// Package config provides configuration loading and management for the application.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yourorg/restake-risk-ea/internal/types"
)

// Config holds all application configuration
type Config struct {
	// HTTP server port
	Port string

	// Logging
	LogLevel  string
	LogFormat string

	// Validator telemetry (beaconcha.in)
	BeaconchainURL    string
	BeaconchainAPIKey string
	ValidatorIndices  []int
	DVTProtected      bool
	ClientDiversity   ClientDiversity

	// Restaking/AVS registry (EigenLayer)
	EigenLayerURL    string
	EigenLayerAPIKey string
	OperatorAddress  string

	// Price and yield feeds (DefiLlama)
	CoinsURL  string
	YieldsURL string

	// Liquidity indexer endpoints per chain
	Chains map[types.SupportedChain]types.ChainConfig

	// Reference trade size for slippage quotes
	ReferenceTradeUSD int

	// Upstream call bounds
	SourceTimeout time.Duration
	UpstreamRPS   float64
	UpstreamBurst int

	// Source cache
	CacheTTL   time.Duration
	CacheGrace time.Duration

	// Yield feed anomaly breaker
	MaxAPY            float64
	MaxTVLChange      float64
	CircuitResetDelay time.Duration

	// OpenTelemetry endpoint for observability
	OtelEndpoint string

	// Write-only history sinks
	HistoryWebhookURL  string
	HistoryWebhookKey  string
	HistoryDatabaseURL string

	// Hex-encoded secp256k1 key for response signing; empty disables signing
	SigningKeyHex string

	// Inbound rate limit
	RateLimitRPS   float64
	RateLimitBurst int

	// Cron spec for the cache warmer; empty disables it
	WarmSchedule string

	// Tunable scoring constants, optionally overlaid from ScoringPath
	ScoringPath string
	Scoring     Scoring
}

// ClientDiversity describes the consensus-client mix of the operator set
type ClientDiversity struct {
	Note  string
	Score int
}

// Load creates a new Config from environment variables
func Load() Config {
	chains := types.DefaultChains()
	if raw := os.Getenv("SUBGRAPH_CHAINS"); raw != "" {
		override := map[types.SupportedChain]types.ChainConfig{}
		if err := json.Unmarshal([]byte(raw), &override); err == nil {
			chains = override
		}
	}
	for chain, cc := range chains {
		key := "UNISWAP_SUBGRAPH_" + strings.ToUpper(string(chain))
		if url, ok := GetEnv(key); ok {
			cc.SubgraphURL = url
			cc.Enabled = url != ""
			chains[chain] = cc
		}
	}

	return Config{
		Port:              GetEnvOrDefault("PORT", "8080"),
		LogLevel:          GetEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:         GetEnvOrDefault("LOG_FORMAT", "text"),
		BeaconchainURL:    GetEnvOrDefault("BEACONCHAIN_URL", "https://beaconcha.in/api/v1"),
		BeaconchainAPIKey: GetEnvOrDefault("BEACONCHAIN_API_KEY", ""),
		ValidatorIndices:  GetEnvAsIntList("VALIDATOR_INDICES"),
		DVTProtected:      GetEnvAsBool("DVT_PROTECTED", true),
		ClientDiversity: ClientDiversity{
			Note:  GetEnvOrDefault("CLIENT_DIVERSITY_NOTE", "Prysm(45%), Lighthouse(30%), Teku(15%), Nimbus(10%)"),
			Score: GetEnvAsInt("CLIENT_DIVERSITY_SCORE", 75),
		},
		EigenLayerURL:      GetEnvOrDefault("EIGENLAYER_URL", "https://api.eigenlayer.xyz"),
		EigenLayerAPIKey:   GetEnvOrDefault("EIGENLAYER_API_KEY", ""),
		OperatorAddress:    GetEnvOrDefault("OPERATOR_ADDRESS", ""),
		CoinsURL:           GetEnvOrDefault("DEFILLAMA_COINS_URL", "https://coins.llama.fi"),
		YieldsURL:          GetEnvOrDefault("DEFILLAMA_YIELDS_URL", "https://yields.llama.fi"),
		Chains:             chains,
		ReferenceTradeUSD:  GetEnvAsInt("REFERENCE_TRADE_USD", 10000),
		SourceTimeout:      GetEnvAsDuration("SOURCE_TIMEOUT", 15*time.Second),
		UpstreamRPS:        GetEnvAsFloat("UPSTREAM_RPS", 5),
		UpstreamBurst:      GetEnvAsInt("UPSTREAM_BURST", 10),
		CacheTTL:           GetEnvAsDuration("CACHE_TTL", 5*time.Minute),
		CacheGrace:         GetEnvAsDuration("CACHE_GRACE", 0),
		MaxAPY:             GetEnvAsFloat("MAX_APY", 100.0), // percent
		MaxTVLChange:       GetEnvAsFloat("MAX_TVL_CHANGE", 0.5),
		CircuitResetDelay:  GetEnvAsDuration("CIRCUIT_RESET_DELAY", 5*time.Minute),
		OtelEndpoint:       GetEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		HistoryWebhookURL:  GetEnvOrDefault("HISTORY_WEBHOOK_URL", ""),
		HistoryWebhookKey:  GetEnvOrDefault("HISTORY_WEBHOOK_API_KEY", ""),
		HistoryDatabaseURL: GetEnvOrDefault("HISTORY_DATABASE_URL", ""),
		SigningKeyHex:      GetEnvOrDefault("SIGNING_KEY_HEX", ""),
		RateLimitRPS:       GetEnvAsFloat("RATE_LIMIT_RPS", 10.0),
		RateLimitBurst:     GetEnvAsInt("RATE_LIMIT_BURST", 20),
		WarmSchedule:       GetEnvOrDefault("WARM_SCHEDULE", "@every 4m"),
		ScoringPath:        GetEnvOrDefault("SCORING_CONFIG", ""),
		Scoring:            DefaultScoring(),
	}
}

// GetEnv retrieves an environment variable and whether it exists
func GetEnv(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	return value, exists
}

// GetEnvOrDefault retrieves an environment variable or returns the default value if not set
func GetEnvOrDefault(key, defaultValue string) string {
	if value, exists := GetEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt retrieves an environment variable as an integer with a default value
func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := GetEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvAsFloat retrieves an environment variable as a float with a default value
func GetEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := GetEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// GetEnvAsBool retrieves an environment variable as a bool with a default value
func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := GetEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvAsDuration retrieves an environment variable as a duration with a default value
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := GetEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GetEnvAsIntList parses a comma-separated list of integers, skipping bad entries
func GetEnvAsIntList(key string) []int {
	value, exists := GetEnv(key)
	if !exists || value == "" {
		return nil
	}
	var out []int
	for _, part := range strings.Split(value, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			out = append(out, n)
		}
	}
	return out
}
