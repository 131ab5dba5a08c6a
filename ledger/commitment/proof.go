package commitment

import (
	"github.com/thetatoken/hubchannel/common"
)

// Proof is the sibling path from a leaf to the root. Levels where the node
// was promoted carry no sibling.
type Proof struct {
	Leaf      common.Hash   `json:"leaf"`
	LeafIndex int           `json:"leaf_index"`
	LeafCount int           `json:"leaf_count"`
	Siblings  []common.Hash `json:"siblings"`
}

// Verify recomputes the root from leaf and the sibling path.
func (p *Proof) Verify(leaf common.Hash, root common.Hash) bool {
	if p == nil || p.LeafCount <= 0 || p.LeafIndex < 0 || p.LeafIndex >= p.LeafCount {
		return false
	}

	h := leaf
	idx, size, next := p.LeafIndex, p.LeafCount, 0
	for size > 1 {
		paired := idx%2 == 1 || idx+1 < size
		if paired {
			if next >= len(p.Siblings) {
				return false
			}
			if idx%2 == 1 {
				h = hashPair(p.Siblings[next], h)
			} else {
				h = hashPair(h, p.Siblings[next])
			}
			next++
		}
		idx /= 2
		size = (size + 1) / 2
	}
	return next == len(p.Siblings) && h == root
}

// Encode returns leaf || siblings, the form consumed by the contract.
func (p *Proof) Encode() []byte {
	enc := make([]byte, 0, common.HashLength*(1+len(p.Siblings)))
	enc = append(enc, p.Leaf[:]...)
	for _, s := range p.Siblings {
		enc = append(enc, s[:]...)
	}
	return enc
}
