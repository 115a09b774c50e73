package provider

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/big14way/wagmi-project/pkg/wallet"
)

// EIP-1193 provider error codes
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeChainDisconnected = 4901
	CodeUnrecognizedChain = 4902
)

// RPCError is a wallet error carrying an EIP-1193 code. It satisfies
// go-ethereum's rpc.Error so it classifies the same way as errors that
// arrive over an RPC connection.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string { return e.Message }

// ErrorCode implements rpc.Error.
func (e *RPCError) ErrorCode() int { return e.Code }

// ProviderCode extracts the EIP-1193 / JSON-RPC error code from err.
func ProviderCode(err error) (int, bool) {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode(), true
	}
	return 0, false
}

// ConnectError classifies a failed account request into a typed error.
func ConnectError(err error) *wallet.WalletError {
	var we *wallet.WalletError
	if errors.As(err, &we) {
		switch we.Code {
		case wallet.ErrCodeUserRejected, wallet.ErrCodeConnectionTimeout, wallet.ErrCodeConnectionFailed:
			return we
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return wallet.NewWalletError(wallet.ErrCodeConnectionTimeout, "wallet did not respond in time", err, 0)
	}
	if code, ok := ProviderCode(err); ok {
		switch code {
		case CodeUserRejected:
			return wallet.NewWalletError(wallet.ErrCodeUserRejected, "connection request rejected", err, 0)
		case CodeUnauthorized:
			return wallet.NewWalletError(wallet.ErrCodeConnectionFailed, "wallet refused authorization", err, 0)
		case CodeDisconnected, CodeChainDisconnected:
			return wallet.NewWalletError(wallet.ErrCodeConnectionFailed, "wallet is disconnected", err, 0)
		}
	}
	return wallet.NewWalletError(wallet.ErrCodeConnectionFailed, "connection failed", err, 0)
}

// SwitchError classifies a failed chain switch into a typed error.
func SwitchError(err error, chainID int64) *wallet.WalletError {
	var we *wallet.WalletError
	if errors.As(err, &we) {
		switch we.Code {
		case wallet.ErrCodeChainSwitchRejected, wallet.ErrCodeUnsupportedChain, wallet.ErrCodeChainSwitchFailed:
			return we
		}
	}
	if code, ok := ProviderCode(err); ok {
		switch code {
		case CodeUserRejected:
			return wallet.NewWalletError(wallet.ErrCodeChainSwitchRejected, "network switch rejected", err, chainID)
		case CodeUnrecognizedChain, CodeUnsupportedMethod:
			return wallet.NewWalletError(wallet.ErrCodeUnsupportedChain, "wallet does not support network", err, chainID)
		}
	}
	return wallet.NewWalletError(wallet.ErrCodeChainSwitchFailed, "network switch failed", err, chainID)
}
