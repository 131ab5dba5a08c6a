package common

import (
	"math/big"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/thetatoken/hubchannel/common/result"
)

const (
	// AddressLength is the expected length of an address
	AddressLength = ethcommon.AddressLength
	// HashLength is the expected length of a hash
	HashLength = ethcommon.HashLength
)

// Address represents the 20 byte address of a channel participant.
type Address = ethcommon.Address

// Hash represents a 32 byte Keccak256 hash, also used for channel ids.
type Hash = ethcommon.Hash

// Bytes marshals/unmarshals as a 0x-prefixed hex string.
type Bytes = hexutil.Bytes

var (
	Big0   = big.NewInt(0)
	Big1   = big.NewInt(1)
	Big256 = big.NewInt(256)

	// MaxUint256 is the largest value representable by an on-chain uint256.
	MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(Big1, 256), Big1)
)

// HexToAddress returns Address with byte values of s. Lenient: use it only
// on trusted input.
func HexToAddress(s string) Address {
	return ethcommon.HexToAddress(s)
}

// HexToHash returns Hash with byte values of s. Lenient: use it only on
// trusted input.
func HexToHash(s string) Hash {
	return ethcommon.HexToHash(s)
}

// BytesToHash sets b to hash, left-padding if b is shorter than 32 bytes.
func BytesToHash(b []byte) Hash {
	return ethcommon.BytesToHash(b)
}

// BytesToAddress sets b to address, left-padding if b is shorter than 20 bytes.
func BytesToAddress(b []byte) Address {
	return ethcommon.BytesToAddress(b)
}

// IsHexAddress verifies whether a string can represent a valid hex-encoded
// address or not.
func IsHexAddress(s string) bool {
	return ethcommon.IsHexAddress(s)
}

// CopyBytes returns an exact copy of the provided bytes.
func CopyBytes(b []byte) (copiedBytes []byte) {
	if b == nil {
		return nil
	}
	copiedBytes = make([]byte, len(b))
	copy(copiedBytes, b)
	return
}

// ParseAddress strictly parses a 0x-prefixed, 40 hex digit address.
func ParseAddress(s string) (Address, error) {
	b, err := parseFixedHex("address", s, AddressLength)
	if err != nil {
		return Address{}, err
	}
	return BytesToAddress(b), nil
}

// ParseHash strictly parses a 0x-prefixed, 64 hex digit hash or channel id.
// Short forms such as "0x0" are rejected.
func ParseHash(s string) (Hash, error) {
	b, err := parseFixedHex("hash", s, HashLength)
	if err != nil {
		return Hash{}, err
	}
	return BytesToHash(b), nil
}

func parseFixedHex(field string, s string, size int) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return nil, result.Malformed(field, "%q is missing the 0x prefix", s)
	}
	if len(s) != 2+2*size {
		return nil, result.Malformed(field, "%q must be %d bytes", s, size)
	}
	b, err := hexutil.Decode("0x" + s[2:])
	if err != nil {
		return nil, result.Malformed(field, "%q: %v", s, err)
	}
	return b, nil
}
