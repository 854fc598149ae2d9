package utils

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// IsEVMAddress reports whether s is a 0x-prefixed 20-byte hex address.
func IsEVMAddress(s string) bool {
	return strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

// ChecksumEVMAddress renders an address in EIP-55 form.
func ChecksumEVMAddress(s string) string {
	return common.HexToAddress(s).Hex()
}

// SameEVMAddress compares two EVM addresses ignoring checksum case.
func SameEVMAddress(a, b string) bool {
	if !common.IsHexAddress(a) || !common.IsHexAddress(b) {
		return false
	}
	return common.HexToAddress(a) == common.HexToAddress(b)
}

// NormalizeUTXOAddress lowercases bech32 addresses and strips a URI scheme
// such as "bitcoin:" so explorer output and stored deposits compare equal.
// Legacy base58 addresses are case sensitive and only trimmed.
func NormalizeUTXOAddress(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	lower := strings.ToLower(s)
	if strings.Contains(lower, "1") && isBech32Like(lower) {
		return lower
	}
	return s
}

func isBech32Like(s string) bool {
	for _, prefix := range []string{"bc1", "tb1", "bcrt1", "ltc1", "tltc1", "rltc1"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
