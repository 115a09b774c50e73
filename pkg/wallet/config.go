package wallet

import (
	"time"
)

// NetworkConfig holds the per-chain settings used for read-only RPC access.
type NetworkConfig struct {
	// ChainID is the unique identifier for the blockchain network
	ChainID int64

	// RPCURL is the HTTP(S) or WS endpoint for connecting to the network
	RPCURL string

	// MaxRetries specifies how many times to retry a failed dial
	MaxRetries int

	// RetryDelay is the duration to wait between retry attempts
	RetryDelay time.Duration

	// RequestsPerSecond caps outbound calls; public endpoints throttle aggressively
	RequestsPerSecond float64
}

// DefaultNetworkConfig returns settings for a chain with conservative defaults:
// 3 dial retries one second apart and 5 requests per second.
func DefaultNetworkConfig(chainID int64, rpcURL string) NetworkConfig {
	return NetworkConfig{
		ChainID:           chainID,
		RPCURL:            rpcURL,
		MaxRetries:        3,
		RetryDelay:        time.Second,
		RequestsPerSecond: 5,
	}
}
