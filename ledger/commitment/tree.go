package commitment

import (
	"bytes"
	"sort"

	"github.com/pkg/errors"

	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/common/result"
	"github.com/thetatoken/hubchannel/crypto"
	"github.com/thetatoken/hubchannel/ledger/types"
)

// EmptyRoot is the root committed by a ledger channel without open virtual
// channels. It is a protocol constant and is not computed.
var EmptyRoot = common.Hash{}

// padLeaf is appended once when the number of leaves is odd.
var padLeaf = common.Hash{}

//
// Tree is a binary Merkle tree over the fingerprints of the opening states of
// the virtual channels bonded in one ledger channel.
//
// Leaves are sorted ascending, and a zero leaf is appended if their number is
// odd. Each level hashes neighbours left to right with keccak256(left || right);
// the unpaired last node of an upper level is promoted unchanged.
//
type Tree struct {
	levels [][]common.Hash
}

// NewTree builds the tree for the given opening states.
func NewTree(openings []*types.VirtualChannelState) (*Tree, error) {
	leaves, err := Leaves(openings)
	if err != nil {
		return nil, err
	}
	t := &Tree{}
	if len(leaves) == 0 {
		return t, nil
	}

	level := leaves
	t.levels = append(t.levels, level)
	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashPair(level[i], level[i+1]))
			} else {
				next = append(next, level[i])
			}
		}
		t.levels = append(t.levels, next)
		level = next
	}
	return t, nil
}

// Root returns the root hash, or EmptyRoot for an empty tree.
func (t *Tree) Root() common.Hash {
	if len(t.levels) == 0 {
		return EmptyRoot
	}
	return t.levels[len(t.levels)-1][0]
}

// LeafCount returns the number of leaves including the padding leaf.
func (t *Tree) LeafCount() int {
	if len(t.levels) == 0 {
		return 0
	}
	return len(t.levels[0])
}

// Proof returns the inclusion proof of leaf.
func (t *Tree) Proof(leaf common.Hash) (*Proof, error) {
	index := -1
	if len(t.levels) > 0 {
		for i, l := range t.levels[0] {
			if l == leaf {
				index = i
				break
			}
		}
	}
	if index < 0 {
		return nil, errors.Errorf("leaf %v is not in the tree", leaf.Hex())
	}

	proof := &Proof{
		Leaf:      leaf,
		LeafIndex: index,
		LeafCount: t.LeafCount(),
	}
	idx := index
	for _, level := range t.levels[:len(t.levels)-1] {
		if idx%2 == 1 {
			proof.Siblings = append(proof.Siblings, level[idx-1])
		} else if idx+1 < len(level) {
			proof.Siblings = append(proof.Siblings, level[idx+1])
		}
		idx /= 2
	}
	return proof, nil
}

// Leaves validates the opening states and returns the canonical leaf list:
// sorted fingerprints, padded to an even count.
func Leaves(openings []*types.VirtualChannelState) ([]common.Hash, error) {
	seen := make(map[common.Hash]bool, len(openings))
	leaves := make([]common.Hash, 0, len(openings)+1)
	for _, opening := range openings {
		if opening == nil {
			return nil, result.Malformed("opening", "nil opening state")
		}
		if opening.Nonce != 0 {
			return nil, result.Malformed("opening", "channel %v: nonce %v, expected 0", opening.ChannelID.Hex(), opening.Nonce)
		}
		if opening.BalanceB == nil || opening.BalanceB.Sign() != 0 {
			return nil, result.Malformed("opening", "channel %v: balanceB must be 0", opening.ChannelID.Hex())
		}
		if seen[opening.ChannelID] {
			return nil, result.Malformed("opening", "duplicate channel %v", opening.ChannelID.Hex())
		}
		seen[opening.ChannelID] = true

		leaf, err := types.FingerprintVC(opening)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, leaf)
	}

	sort.Slice(leaves, func(i, j int) bool {
		return bytes.Compare(leaves[i][:], leaves[j][:]) < 0
	})
	if len(leaves)%2 == 1 {
		leaves = append(leaves, padLeaf)
	}
	return leaves, nil
}

// BuildRoot returns the commitment root over the opening states.
func BuildRoot(openings []*types.VirtualChannelState) (common.Hash, error) {
	t, err := NewTree(openings)
	if err != nil {
		return common.Hash{}, err
	}
	return t.Root(), nil
}

// BuildProof returns the inclusion proof for the opening state of channel target.
func BuildProof(openings []*types.VirtualChannelState, target common.Hash) (*Proof, error) {
	var opening *types.VirtualChannelState
	for _, o := range openings {
		if o != nil && o.ChannelID == target {
			opening = o
			break
		}
	}
	if opening == nil {
		return nil, errors.Errorf("virtual channel %v is not among the open channels", target.Hex())
	}
	t, err := NewTree(openings)
	if err != nil {
		return nil, err
	}
	leaf, err := types.FingerprintVC(opening)
	if err != nil {
		return nil, err
	}
	return t.Proof(leaf)
}

func hashPair(left, right common.Hash) common.Hash {
	return crypto.Keccak256Hash(left[:], right[:])
}
