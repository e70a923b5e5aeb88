package tree

import (
	"fmt"
	"math/big"

	"go.vocdoni.io/dvote/db/prefixeddb"
)

// Proof is an inclusion path from a leaf to the root. PathIndices holds one
// bit per level, bit i being bit i of the leaf index in little-endian order:
// 0 means the tracked node is the left operand at that level, 1 the right.
type Proof struct {
	Leaf         *big.Int
	Root         *big.Int
	Index        uint64
	PathElements []*big.Int
	PathIndices  []byte
}

// GenProof returns the inclusion path for the given index against the current
// root. Slots that have not been inserted yet resolve to the empty leaf
// constant, so proofs for future indices are well defined and can be used to
// show a slot is still empty.
func (t *Tree) GenProof(index uint64) (*Proof, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if index >= t.capacity() {
		return nil, fmt.Errorf("%w: %d out of [0, %d)", ErrInvalidIndex, index, t.capacity())
	}
	nodes := prefixeddb.NewPrefixedReader(t.db, nodePrefix)
	leaf, err := t.node(nodes, 0, index)
	if err != nil {
		return nil, err
	}
	proof := &Proof{
		Leaf:         leaf,
		Root:         new(big.Int).Set(t.root),
		Index:        index,
		PathElements: make([]*big.Int, t.depth),
		PathIndices:  make([]byte, t.depth),
	}
	idx := index
	for level := 0; level < t.depth; level++ {
		sibling, err := t.node(nodes, level, idx^1)
		if err != nil {
			return nil, err
		}
		proof.PathElements[level] = sibling
		proof.PathIndices[level] = byte(idx & 1)
		idx >>= 1
	}
	return proof, nil
}

// RootFromPath recomputes the root implied by a leaf and its inclusion path.
// A nil hash defaults to MiMC.
func RootFromPath(leaf *big.Int, pathElements []*big.Int, pathIndices []byte, hash HashFunc) (*big.Int, error) {
	if leaf == nil {
		return nil, ErrInvalidLeaf
	}
	if len(pathElements) != len(pathIndices) {
		return nil, fmt.Errorf("path length mismatch: %d elements, %d indices",
			len(pathElements), len(pathIndices))
	}
	if hash == nil {
		hash = defaultHash
	}
	cur := new(big.Int).Set(leaf)
	for level, sibling := range pathElements {
		if sibling == nil {
			return nil, fmt.Errorf("nil sibling at level %d", level)
		}
		var err error
		switch pathIndices[level] {
		case 0:
			cur, err = hash(cur, sibling)
		case 1:
			cur, err = hash(sibling, cur)
		default:
			return nil, fmt.Errorf("path index at level %d must be 0 or 1, got %d",
				level, pathIndices[level])
		}
		if err != nil {
			return nil, fmt.Errorf("hash nodes at level %d: %w", level, err)
		}
	}
	return cur, nil
}

// CheckProof verifies that a proof's path walks from its leaf to its root.
// A nil hash defaults to MiMC.
func CheckProof(proof *Proof, hash HashFunc) (bool, error) {
	if proof == nil || proof.Root == nil {
		return false, fmt.Errorf("malformed proof")
	}
	root, err := RootFromPath(proof.Leaf, proof.PathElements, proof.PathIndices, hash)
	if err != nil {
		return false, err
	}
	return root.Cmp(proof.Root) == 0, nil
}
