package wallet

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Client gives read-only access to account state on the configured chains.
// It is used to show balance information next to an active session.
type Client struct {
	clients  map[int64]*ethclient.Client
	configs  map[int64]NetworkConfig
	limiters map[int64]*rate.Limiter
	mu       sync.RWMutex
	log      *logrus.Logger
}

// NewClient creates a new account client and dials every configured chain.
//
// Parameters:
//   - ctx: Context for initialization operations
//   - log: Logger instance for client operations
//   - configs: Network configurations for supported chains
//
// Returns:
//   - *Client: Initialized client
//   - error: Error if any chain cannot be reached
func NewClient(ctx context.Context, log *logrus.Logger, configs []NetworkConfig) (*Client, error) {
	client := &Client{
		clients:  make(map[int64]*ethclient.Client),
		configs:  make(map[int64]NetworkConfig),
		limiters: make(map[int64]*rate.Limiter),
		log:      log,
	}

	for _, config := range configs {
		ethClient, err := client.dialWithRetry(ctx, config)
		if err != nil {
			client.Close()
			return nil, NewWalletError(ErrCodeRPCError, "failed to connect to network", err, config.ChainID)
		}
		client.clients[config.ChainID] = ethClient
		client.configs[config.ChainID] = config

		limit := rate.Inf
		if config.RequestsPerSecond > 0 {
			limit = rate.Limit(config.RequestsPerSecond)
		}
		client.limiters[config.ChainID] = rate.NewLimiter(limit, 1)
	}

	return client, nil
}

// GetBalance retrieves the native token balance for an address on the specified chain.
//
// Example:
//
//	balance, err := client.GetBalance(ctx, 1, "0x742d35Cc6634C0532925a3b844Bc454e4438f44e")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(FormatBalance(balance, 4))
func (c *Client) GetBalance(ctx context.Context, chainID int64, address string) (*big.Int, error) {
	client, limiter, err := c.getClient(chainID)
	if err != nil {
		return nil, err
	}

	addr, err := ValidateAddress(address)
	if err != nil {
		return nil, err
	}

	if err := limiter.Wait(ctx); err != nil {
		return nil, err
	}

	balance, err := client.BalanceAt(ctx, common.HexToAddress(addr), nil)
	if err != nil {
		return nil, NewWalletError(ErrCodeRPCError, "failed to get balance", err, chainID)
	}

	c.log.WithFields(logrus.Fields{
		"chain_id": chainID,
		"address":  addr,
		"balance":  balance.String(),
	}).Debug("Retrieved balance")

	return balance, nil
}

// FormatBalance renders a wei amount in whole native units with the given precision.
func FormatBalance(wei *big.Int, precision int) string {
	if wei == nil {
		return "0"
	}
	value := new(big.Float).SetInt(wei)
	value.Quo(value, big.NewFloat(params.Ether))
	return value.Text('f', precision)
}

// dialWithRetry attempts to connect to the network with retry mechanism.
func (c *Client) dialWithRetry(ctx context.Context, config NetworkConfig) (*ethclient.Client, error) {
	var client *ethclient.Client
	var err error

	for i := 0; i <= config.MaxRetries; i++ {
		client, err = ethclient.DialContext(ctx, config.RPCURL)
		if err == nil {
			return client, nil
		}

		if i < config.MaxRetries {
			c.log.WithFields(logrus.Fields{
				"chain_id": config.ChainID,
				"attempt":  i + 1,
				"error":    err,
			}).Debug("Retrying network connection")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(config.RetryDelay):
			}
		}
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", config.MaxRetries+1, err)
}

func (c *Client) getClient(chainID int64) (*ethclient.Client, *rate.Limiter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	client, ok := c.clients[chainID]
	if !ok {
		return nil, nil, NewWalletError(ErrCodeUnsupportedChain, "chain not configured", nil, chainID)
	}

	return client, c.limiters[chainID], nil
}

// Close closes all network connections.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for chainID, client := range c.clients {
		client.Close()
		c.log.WithField("chain_id", chainID).Debug("Closed network connection")
	}
	c.clients = make(map[int64]*ethclient.Client)
}
