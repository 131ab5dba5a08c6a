package common

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/thetatoken/hubchannel/common/result"
)

func TestParseAddress(t *testing.T) {
	assert := assert.New(t)

	addr, err := ParseAddress("0x2E833968E5bB786Ae419c4d13189fB081Cc43bab")
	assert.Nil(err)
	assert.Equal(HexToAddress("0x2e833968e5bb786ae419c4d13189fb081cc43bab"), addr)

	for _, s := range []string{
		"2E833968E5bB786Ae419c4d13189fB081Cc43bab",
		"0x2E833968E5bB786Ae419c4d13189fB081Cc43ba",
		"0x2E833968E5bB786Ae419c4d13189fB081Cc43babab",
		"0xZZ833968E5bB786Ae419c4d13189fB081Cc43bab",
		"",
	} {
		_, err := ParseAddress(s)
		assert.True(result.IsMalformed(err), s)
	}
}

func TestParseHash(t *testing.T) {
	assert := assert.New(t)

	zero := "0x" + strings.Repeat("0", 64)
	h, err := ParseHash(zero)
	assert.Nil(err)
	assert.Equal(Hash{}, h)
	assert.Equal(zero, h.Hex())

	_, err = ParseHash("0x0")
	assert.True(result.IsMalformed(err))

	_, err = ParseHash("0x" + strings.Repeat("0", 66))
	assert.True(result.IsMalformed(err))
}

func TestMaxUint256(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(256, MaxUint256.BitLen())
	assert.Equal("0x"+strings.Repeat("f", 64), "0x"+MaxUint256.Text(16))
}
