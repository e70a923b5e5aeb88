package circuits

import (
	"github.com/consensys/gnark/frontend"
)

// WithdrawCircuit proves that some commitment opening to the revealed
// nullifier is included in the tree rooted at Root, without disclosing which
// slot holds it. The nullifier is the deposit's secret identifier, made
// public here so the ledger can block a second spend of the same deposit.
type WithdrawCircuit struct {
	// ---------------------------------------------------------------------
	// PUBLIC INPUTS (field order defines the public witness layout)

	Root      frontend.Variable `gnark:",public"`
	Nullifier frontend.Variable `gnark:",public"`

	// ---------------------------------------------------------------------
	// SECRET INPUTS

	// Blinding is the random factor used when the commitment was built.
	Blinding frontend.Variable
	// Index is the slot of the spent commitment, kept private to not link
	// the withdrawal to its deposit.
	Index frontend.Variable
	// Path holds the sibling of the spent slot at every level, bottom up.
	Path []frontend.Variable
}

// NewWithdraw returns a placeholder withdraw circuit for a tree of the given
// depth, ready for compilation or witness construction.
func NewWithdraw(depth int) *WithdrawCircuit {
	return &WithdrawCircuit{
		Path: make([]frontend.Variable, depth),
	}
}

// Define declares the withdraw constraints: rebuild the commitment from the
// nullifier and blinding, then walk the path and match the public root.
func (c WithdrawCircuit) Define(api frontend.API) error {
	commitment, err := HashFn(api, c.Nullifier, c.Blinding)
	if err != nil {
		FrontendError(api, "hash commitment opening", err)
	}
	bits := IndexBits(api, c.Index, len(c.Path))
	api.AssertIsEqual(RootFromPath(api, HashFn, commitment, bits, c.Path), c.Root)
	return nil
}
