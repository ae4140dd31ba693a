package events

import (
	"encoding/hex"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FormatAddress renders a settlement address in EIP-55 checksummed hex.
func FormatAddress(addr [20]byte) string {
	return common.Address(addr).Hex()
}

// FormatHash renders a 32-byte identifier as 0x-prefixed lowercase hex.
func FormatHash(h [32]byte) string {
	return "0x" + hex.EncodeToString(h[:])
}

// FormatAmount renders an amount in base units; nil is zero.
func FormatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
