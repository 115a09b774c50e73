package wallet

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeyManager holds an in-process private key and the address derived from it.
// It backs the local development connector, which answers account requests
// without an external wallet.
type KeyManager struct {
	privateKey *ecdsa.PrivateKey // The wallet's private key
	address    common.Address    // The derived account address
}

// NewKeyManager creates a new key manager from a private key string.
// It accepts a hex-encoded private key (with or without 0x prefix).
//
// Example:
//
//	km, err := NewKeyManager("0x1234...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	address := km.GetAddress()
func NewKeyManager(privateKeyHex string) (*KeyManager, error) {
	if privateKeyHex == "" {
		return nil, NewWalletError(ErrCodeInvalidPrivateKey, "private key cannot be empty", nil, 0)
	}

	// Remove "0x" prefix if present
	if len(privateKeyHex) > 2 && privateKeyHex[:2] == "0x" {
		privateKeyHex = privateKeyHex[2:]
	}

	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, NewWalletError(ErrCodeInvalidPrivateKey, "invalid private key", err, 0)
	}

	return newKeyManager(privateKey)
}

// GenerateKeyManager creates a key manager around a freshly generated key.
func GenerateKeyManager() (*KeyManager, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return newKeyManager(privateKey)
}

func newKeyManager(privateKey *ecdsa.PrivateKey) (*KeyManager, error) {
	publicKeyECDSA, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("error casting public key to ECDSA")
	}

	return &KeyManager{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(*publicKeyECDSA),
	}, nil
}

// GetAddress returns the account address associated with this key manager.
func (km *KeyManager) GetAddress() common.Address {
	return km.address
}
