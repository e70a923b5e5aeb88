package circuits

import (
	"github.com/consensys/gnark/frontend"
)

// DepositCircuit proves a single append into the commitment accumulator: the
// slot at Index was empty under OldRoot, holds Commitment under NewRoot, and
// nothing else changed. The opening of the commitment stays private.
type DepositCircuit struct {
	// ---------------------------------------------------------------------
	// PUBLIC INPUTS (field order defines the public witness layout)

	OldRoot    frontend.Variable `gnark:",public"`
	NewRoot    frontend.Variable `gnark:",public"`
	Commitment frontend.Variable `gnark:",public"`
	Index      frontend.Variable `gnark:",public"`

	// ---------------------------------------------------------------------
	// SECRET INPUTS

	// ID is the depositor's secret identifier, revealed only at withdraw
	// time as the nullifier.
	ID frontend.Variable
	// Blinding is the random factor that hides ID inside the commitment.
	Blinding frontend.Variable
	// OldPath holds the sibling of the inserted slot at every level, bottom
	// up. The same siblings support both the before and after walks.
	OldPath []frontend.Variable
}

// NewDeposit returns a placeholder deposit circuit for a tree of the given
// depth, ready for compilation or witness construction.
func NewDeposit(depth int) *DepositCircuit {
	return &DepositCircuit{
		OldPath: make([]frontend.Variable, depth),
	}
}

// Define declares the deposit constraints.
func (c DepositCircuit) Define(api frontend.API) error {
	c.VerifyCommitment(api)
	c.VerifyTransition(api)
	return nil
}

// VerifyCommitment binds the public commitment to its private opening.
func (c DepositCircuit) VerifyCommitment(api frontend.API) {
	commitment, err := HashFn(api, c.ID, c.Blinding)
	if err != nil {
		FrontendError(api, "hash commitment opening", err)
	}
	api.AssertIsEqual(commitment, c.Commitment)
}

// VerifyTransition walks the same inclusion path twice: starting from the
// empty leaf it must reproduce OldRoot, and starting from the commitment it
// must reproduce NewRoot. Sharing the siblings between both walks is what
// proves the rest of the tree is untouched.
func (c DepositCircuit) VerifyTransition(api frontend.API) {
	bits := IndexBits(api, c.Index, len(c.OldPath))
	api.AssertIsEqual(RootFromPath(api, HashFn, EmptyLeaf, bits, c.OldPath), c.OldRoot)
	api.AssertIsEqual(RootFromPath(api, HashFn, c.Commitment, bits, c.OldPath), c.NewRoot)
}
