package types

import (
	"github.com/pborman/uuid"

	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/crypto"
)

// GenerateChannelID returns a fresh random channel id, the keccak256 of a
// random UUID.
func GenerateChannelID() common.Hash {
	return crypto.Keccak256Hash(uuid.NewRandom())
}
