// Package wallet provides the account-level building blocks shared by the session
// core: typed errors, address handling, local keys and read-only chain access.
package wallet

import (
	"errors"
	"fmt"
)

// Error codes for connector, session and chain operations
const (
	// ErrCodeConnectorNotFound indicates no connector is registered under the requested ID
	ErrCodeConnectorNotFound = "CONNECTOR_NOT_FOUND"
	// ErrCodeConnectorUnavailable indicates the connector exists but is not ready (not installed or unreachable)
	ErrCodeConnectorUnavailable = "CONNECTOR_UNAVAILABLE"
	// ErrCodeAlreadyConnecting indicates a connection attempt is already in flight
	ErrCodeAlreadyConnecting = "ALREADY_CONNECTING"
	// ErrCodeAlreadyConnected indicates a session is already active
	ErrCodeAlreadyConnected = "ALREADY_CONNECTED"
	// ErrCodeNotConnected indicates the operation requires an active session
	ErrCodeNotConnected = "NOT_CONNECTED"
	// ErrCodeOperationInProgress indicates another session transition is in flight
	ErrCodeOperationInProgress = "OPERATION_IN_PROGRESS"
	// ErrCodeUserRejected indicates the user declined the request in the wallet
	ErrCodeUserRejected = "USER_REJECTED"
	// ErrCodeConnectionTimeout indicates the wallet did not answer within the configured bound
	ErrCodeConnectionTimeout = "CONNECTION_TIMEOUT"
	// ErrCodeConnectionFailed indicates the connector failed for any other reason
	ErrCodeConnectionFailed = "CONNECTION_FAILED"
	// ErrCodeUnsupportedChain indicates the chain is not configured or the wallet lacks it
	ErrCodeUnsupportedChain = "UNSUPPORTED_CHAIN"
	// ErrCodeChainSwitchRejected indicates the user declined a network switch
	ErrCodeChainSwitchRejected = "CHAIN_SWITCH_REJECTED"
	// ErrCodeChainSwitchFailed indicates the wallet failed the switch for any other reason
	ErrCodeChainSwitchFailed = "CHAIN_SWITCH_FAILED"
	// ErrCodeUnauthorized indicates the wallet no longer authorizes the account
	ErrCodeUnauthorized = "UNAUTHORIZED"
	// ErrCodeProviderDisconnected indicates the provider lost its connection to the wallet
	ErrCodeProviderDisconnected = "PROVIDER_DISCONNECTED"
	// ErrCodePersistenceCorrupt indicates the stored session record is malformed
	ErrCodePersistenceCorrupt = "PERSISTENCE_CORRUPT"
	// ErrCodePersistenceFailed indicates the session record could not be written or removed
	ErrCodePersistenceFailed = "PERSISTENCE_FAILED"
	// ErrCodeInvalidAddress indicates an invalid account address format
	ErrCodeInvalidAddress = "INVALID_ADDRESS"
	// ErrCodeInvalidPrivateKey indicates an invalid or malformed private key
	ErrCodeInvalidPrivateKey = "INVALID_PRIVATE_KEY"
	// ErrCodeRPCError indicates an RPC connection or call failed
	ErrCodeRPCError = "RPC_ERROR"
)

// WalletError represents a wallet-specific error with additional context
// about the error type, message, underlying error and chain.
type WalletError struct {
	Code    string // Error code identifying the type of error
	Message string // Human readable error message
	Err     error  // Underlying error if any
	ChainID int64  // Chain where the error occurred, zero if not chain specific
}

// Error implements the error interface for WalletError.
func (e *WalletError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.ChainID != 0 {
		msg = fmt.Sprintf("%s on chain %d", msg, e.ChainID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *WalletError) Unwrap() error {
	return e.Err
}

// NewWalletError creates a new WalletError with the given parameters.
//
// Parameters:
//   - code: Error code identifying the type of error
//   - message: Human readable error message
//   - err: Underlying error if any
//   - chainID: Chain where the error occurred, zero if none
//
// Returns:
//   - *WalletError: A new wallet error instance
func NewWalletError(code string, message string, err error, chainID int64) *WalletError {
	return &WalletError{
		Code:    code,
		Message: message,
		Err:     err,
		ChainID: chainID,
	}
}

// IsWalletError checks if an error is, or wraps, a WalletError with the given code.
func IsWalletError(err error, code string) bool {
	var e *WalletError
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}

// ErrorCode returns the code of the outermost WalletError in err's chain,
// or an empty string when there is none.
func ErrorCode(err error) string {
	var e *WalletError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
