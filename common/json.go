package common

import (
	"errors"
	"math/big"
	"strconv"
)

func isQuoted(input []byte) bool {
	return len(input) >= 2 && input[0] == '"' && input[len(input)-1] == '"'
}

// JSONBig is a non-negative wei amount that travels as a quoted decimal
// string, so JavaScript hubs never round it.
type JSONBig big.Int

// MarshalText implements encoding.TextMarshaler
func (b JSONBig) MarshalText() ([]byte, error) {
	return []byte((*big.Int)(&b).String()), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *JSONBig) UnmarshalJSON(input []byte) error {
	if !isQuoted(input) {
		return errors.New("amount must be a quoted decimal string")
	}
	return b.UnmarshalText(input[1 : len(input)-1])
}

// UnmarshalText implements encoding.TextUnmarshaler
func (b *JSONBig) UnmarshalText(input []byte) error {
	_, ok := (*big.Int)(b).SetString(string(input), 10)
	if !ok {
		return errors.New("amount is not a decimal integer")
	}
	if (*big.Int)(b).Sign() < 0 {
		return errors.New("amount must not be negative")
	}
	return nil
}

// NewJSONBig wraps a copy of x, treating nil as zero.
func NewJSONBig(x *big.Int) *JSONBig {
	if x == nil {
		return (*JSONBig)(new(big.Int))
	}
	return (*JSONBig)(new(big.Int).Set(x))
}

// ToInt converts b to a big.Int.
func (b *JSONBig) ToInt() *big.Int {
	return (*big.Int)(b)
}

// JSONUint64 is a nonce or counter quoted as a decimal string.
type JSONUint64 uint64

// MarshalText implements encoding.TextMarshaler.
func (b JSONUint64) MarshalText() ([]byte, error) {
	buf := strconv.AppendUint([]byte{}, uint64(b), 10)
	return buf, nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (b *JSONUint64) UnmarshalText(raw []byte) error {
	res, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return err
	}
	*b = JSONUint64(res)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *JSONUint64) UnmarshalJSON(input []byte) error {
	if !isQuoted(input) {
		return errors.New("counter must be a quoted decimal string")
	}
	return b.UnmarshalText(input[1 : len(input)-1])
}
