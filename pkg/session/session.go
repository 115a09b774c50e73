// Package session holds the active wallet session and its durable record.
//
// The Store keeps exactly one session in memory, mirrors it to a key-value
// backend and tells listeners about every change. Only the address, chain ID
// and connector ID are ever written; anything else about a session is
// re-derived from the wallet on the next visit.
package session

import (
	"encoding/json"
	"fmt"

	"github.com/big14way/wagmi-project/pkg/wallet"
)

// Session is the user's connection to a wallet. The zero value means no
// session.
type Session struct {
	Address     string `json:"address"`
	ChainID     int64  `json:"chainId"`
	ConnectorID string `json:"connectorId"`
}

// None is the absent session.
var None = Session{}

// Active reports whether s describes a connected account.
func (s Session) Active() bool {
	return s.Address != ""
}

// Validate checks that s is a well-formed active session.
func (s Session) Validate() error {
	if _, err := wallet.ValidateAddress(s.Address); err != nil {
		return err
	}
	if s.ChainID <= 0 {
		return fmt.Errorf("invalid chain ID %d", s.ChainID)
	}
	if s.ConnectorID == "" {
		return fmt.Errorf("connector ID is required")
	}
	return nil
}

func (s Session) String() string {
	if !s.Active() {
		return "none"
	}
	return fmt.Sprintf("%s on chain %d via %s", wallet.ShortAddress(s.Address), s.ChainID, s.ConnectorID)
}

func encodeRecord(s Session) ([]byte, error) {
	return json.Marshal(s)
}

// decodeRecord parses a stored record, normalizing the address checksum.
func decodeRecord(data []byte) (Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return None, err
	}
	if err := s.Validate(); err != nil {
		return None, err
	}
	addr, _ := wallet.ValidateAddress(s.Address)
	s.Address = addr
	return s, nil
}
