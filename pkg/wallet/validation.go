package wallet

import (
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// addressRegex checks for a "0x" prefix followed by exactly 40 hexadecimal characters.
	addressRegex = regexp.MustCompile("^0x[0-9a-fA-F]{40}$")
)

// ValidateAddress validates an account address and returns its checksummed form.
// All-lowercase and all-uppercase hex are accepted as unchecksummed input; mixed
// case must match the EIP-55 checksum.
//
// Example:
//
//	addr, err := ValidateAddress("0x742d35cc6634c0532925a3b844bc454e4438f44e")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(addr) // 0x742d35Cc6634C0532925a3b844Bc454e4438f44e
func ValidateAddress(address string) (string, error) {
	if !addressRegex.MatchString(address) {
		return "", NewWalletError(ErrCodeInvalidAddress, "invalid address format", nil, 0)
	}

	checksumAddr := common.HexToAddress(address).Hex()

	body := address[2:]
	if body != strings.ToLower(body) && body != strings.ToUpper(body) && address != checksumAddr {
		return "", NewWalletError(ErrCodeInvalidAddress, "invalid address checksum", nil, 0)
	}

	return checksumAddr, nil
}

// ShortAddress abbreviates an address for display as 0x1234...abcd.
func ShortAddress(address string) string {
	if len(address) < 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}

// ContainsAddress reports whether list holds address, ignoring checksum case.
func ContainsAddress(list []string, address string) bool {
	for _, a := range list {
		if strings.EqualFold(a, address) {
			return true
		}
	}
	return false
}
