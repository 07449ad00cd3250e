// Package config is centralized process configuration, loaded from the
// environment. Keep infra values here and pass typed config into builders.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config covers every recognized option.
type Config struct {
	ServiceName string
	HTTPPort string

	EventLogBrokers []string
	EventLogClientID string
	EventLogConsumerGroup string

	StoreURL string
	StoreKeyPrefix string

	TokenVerifierAccessKey string
	TokenVerifierSocketKey string

	PostgresDSN string

	BiddingDefaultWindowDurationSec int
	BiddingDefaultStrategyID string
	BiddingDefaultMinBidCents int64
	BiddingMaxBidsPerPorter int
	BiddingLockTTLSec int

	GatewayMaxConnections int
	GatewayPingInterval time.Duration
	GatewayLocationSampleN int
	GatewayLocationTTLSec int
	GatewayReconnectTTLSec int

	RateLimitLocationPoints int64
	RateLimitLocationWindow time.Duration
	RateLimitChatPoints int64
	RateLimitChatWindow time.Duration
	RateLimitGlobalPoints int64
	RateLimitGlobalWindow time.Duration
}

// Load reads the environment, applying defaults for anything unset.
func Load(serviceName string) (Config, error) {
	cfg := Config{
		ServiceName: serviceName,
		HTTPPort: getEnv("HTTP_PORT", "8080"),

		EventLogBrokers: splitCSV(getEnv("EVENT_LOG_BROKERS", "localhost:9092")),
		EventLogClientID: getEnv("EVENT_LOG_CLIENT_ID", serviceName),
		EventLogConsumerGroup: getEnv("EVENT_LOG_CONSUMER_GROUP", serviceName+"-cg"),

		StoreURL: getEnv("STORE_URL", "localhost:6379"),
		StoreKeyPrefix: getEnv("STORE_KEY_PREFIX", "porterdispatch"),

		TokenVerifierAccessKey: getEnv("TOKEN_VERIFIER_ACCESS_KEY", ""),
		TokenVerifierSocketKey: getEnv("TOKEN_VERIFIER_SOCKET_KEY", ""),

		PostgresDSN: getEnv("POSTGRES_DSN", ""),

		BiddingDefaultWindowDurationSec: getEnvInt("BIDDING_DEFAULT_WINDOW_DURATION_SEC", 300),
		BiddingDefaultStrategyID: getEnv("BIDDING_DEFAULT_STRATEGY_ID", "default"),
		BiddingDefaultMinBidCents: getEnvInt64("BIDDING_DEFAULT_MIN_BID_CENTS", 0),
		BiddingMaxBidsPerPorter: getEnvInt("BIDDING_MAX_BIDS_PER_PORTER", 1),
		BiddingLockTTLSec: getEnvInt("BIDDING_LOCK_TTL_SEC", 5),

		GatewayMaxConnections: getEnvInt("GATEWAY_MAX_CONNECTIONS", 10000),
		GatewayPingInterval: time.Duration(getEnvInt("GATEWAY_PING_INTERVAL_SEC", 25)) * time.Second,
		GatewayLocationSampleN: getEnvInt("GATEWAY_LOCATION_SAMPLE_RATE", 10),
		GatewayLocationTTLSec: getEnvInt("GATEWAY_LOCATION_TTL_SEC", 3600),
		GatewayReconnectTTLSec: getEnvInt("GATEWAY_RECONNECT_TTL_SEC", 60),

		RateLimitLocationPoints: getEnvInt64("RATE_LIMIT_LOCATION_POINTS", 1000),
		RateLimitLocationWindow: time.Duration(getEnvInt("RATE_LIMIT_LOCATION_WINDOW_SEC", 60)) * time.Second,
		RateLimitChatPoints: getEnvInt64("RATE_LIMIT_CHAT_POINTS", 50),
		RateLimitChatWindow: time.Duration(getEnvInt("RATE_LIMIT_CHAT_WINDOW_SEC", 60)) * time.Second,
		RateLimitGlobalPoints: getEnvInt64("RATE_LIMIT_GLOBAL_POINTS", 5000),
		RateLimitGlobalWindow: time.Duration(getEnvInt("RATE_LIMIT_GLOBAL_WINDOW_SEC", 60)) * time.Second,
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
