package walletconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/big14way/wagmi-project/pkg/connector"
)

// Config describes which connectors to offer and how the manager behaves.
type Config struct {
	// ChainsFile is an optional YAML chain list; empty uses the defaults
	ChainsFile string

	// InjectedRPCURL is a wallet's local JSON-RPC endpoint (e.g. Frame on
	// ws://127.0.0.1:1248). Empty disables the injected connector.
	InjectedRPCURL string
	InjectedWallet connector.WalletTag
	PollInterval   time.Duration

	// LocalPrivateKey enables the in-process development wallet
	LocalPrivateKey string
	LocalStartChain int64

	RelayBridgeURL string
	RelayProjectID string

	ConnectTimeout time.Duration
	SwitchTimeout  time.Duration

	Logger *logrus.Logger
}

// NewWalletConfig reads the connector settings from the environment, loading
// a .env file first if one exists.
func NewWalletConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		ChainsFile:      os.Getenv("CHAINS_FILE"),
		InjectedRPCURL:  os.Getenv("INJECTED_RPC_URL"),
		InjectedWallet:  connector.WalletTag(os.Getenv("INJECTED_WALLET")),
		LocalPrivateKey: os.Getenv("LOCAL_PRIVATE_KEY"),
		RelayBridgeURL:  os.Getenv("RELAY_BRIDGE_URL"),
		RelayProjectID:  os.Getenv("RELAY_PROJECT_ID"),
		Logger:          logrus.New(),
	}

	var err error
	if config.PollInterval, err = durationEnv("INJECTED_POLL_INTERVAL"); err != nil {
		return nil, err
	}
	if config.ConnectTimeout, err = durationEnv("CONNECT_TIMEOUT"); err != nil {
		return nil, err
	}
	if config.SwitchTimeout, err = durationEnv("SWITCH_TIMEOUT"); err != nil {
		return nil, err
	}
	if v := os.Getenv("LOCAL_START_CHAIN"); v != "" {
		if config.LocalStartChain, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid LOCAL_START_CHAIN %q: %w", v, err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the settings and fills defaults.
func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.InjectedRPCURL == "" && c.LocalPrivateKey == "" && c.RelayBridgeURL == "" {
		return fmt.Errorf("no connectors configured: set INJECTED_RPC_URL, LOCAL_PRIVATE_KEY or RELAY_BRIDGE_URL")
	}
	if c.RelayBridgeURL != "" && c.RelayProjectID == "" {
		return fmt.Errorf("RELAY_PROJECT_ID is required with RELAY_BRIDGE_URL")
	}
	if c.ConnectTimeout < 0 || c.SwitchTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.InjectedWallet == "" {
		c.InjectedWallet = connector.WalletMetaMask
	}
	return nil
}

func durationEnv(name string) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	return d, nil
}
