// Package mimc hashes field elements with the MiMC function over the BN254
// scalar field, producing the same digests as the in-circuit MiMC gadget. Every
// input is reduced into the field and absorbed as a fixed 32-byte block, so
// native and circuit sides agree on the preimage layout.
package mimc

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"

	"github.com/vocdoni/zkpool/util"
)

// Hash returns the MiMC digest of the given field elements. Inputs must be
// non-negative; values outside the field are reduced into it before hashing.
func Hash(inputs ...*big.Int) (*big.Int, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs provided")
	}
	var buf [fr.Bytes]byte
	hFn := mimc.NewMiMC()
	for _, input := range inputs {
		if input == nil {
			return nil, fmt.Errorf("nil input")
		}
		if input.Sign() < 0 {
			return nil, fmt.Errorf("negative input %s", input)
		}
		util.BigToFF(input).FillBytes(buf[:])
		if _, err := hFn.Write(buf[:]); err != nil {
			return nil, err
		}
	}
	return new(big.Int).SetBytes(hFn.Sum(nil)), nil
}

// HashPair is the 2-ary form of Hash, used to combine sibling nodes.
func HashPair(left, right *big.Int) (*big.Int, error) {
	return Hash(left, right)
}
