// Package circuits defines the zero-knowledge constraint systems of the pool:
// the deposit circuit, which proves a single append into the commitment
// accumulator, and the withdraw circuit, which proves membership of a
// commitment without revealing its position. Both mirror the accumulator's
// hashing and indexing rules: index bits are taken little-endian and siblings
// are combined with the same MiMC hash the accumulator uses natively.
package circuits

import (
	"fmt"

	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/gnark-crypto-primitives/utils"
)

// HashFn is the in-circuit hash used to combine commitments and tree nodes.
// It must stay bit-identical to the native hasher or no proof will verify.
var HashFn = utils.MiMCHasher

// EmptyLeaf is the canonical empty-slot leaf value. The accumulator derives
// its per-level zero constants from this same value, so both sides agree on
// what an unused slot hashes to.
const EmptyLeaf = 0

// FrontendError prints an error message with its trace and makes the circuit
// fail.
func FrontendError(api frontend.API, msg string, trace error) {
	err := fmt.Errorf("%s", msg)
	if trace != nil {
		err = fmt.Errorf("%w: %v", err, trace)
	}
	api.Println(err.Error())
	api.AssertIsEqual(1, 0)
}

// IndexBits decomposes a leaf index into nbBits little-endian bits,
// range-checking it to the tree capacity as a side effect. Bit i selects the
// operand order at level i: 0 places the tracked node on the left, 1 on the
// right.
func IndexBits(api frontend.API, index frontend.Variable, nbBits int) []frontend.Variable {
	return api.ToBinary(index, nbBits)
}

// RootFromPath walks an inclusion path from a leaf to the root, choosing the
// operand order at each level from the corresponding index bit.
func RootFromPath(api frontend.API, hFn utils.Hasher, leaf frontend.Variable, bits, siblings []frontend.Variable) frontend.Variable {
	cur := leaf
	for level, sibling := range siblings {
		left := api.Select(bits[level], sibling, cur)
		right := api.Select(bits[level], cur, sibling)
		parent, err := hFn(api, left, right)
		if err != nil {
			FrontendError(api, "hash path nodes", err)
		}
		cur = parent
	}
	return cur
}
