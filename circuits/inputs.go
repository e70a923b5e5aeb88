package circuits

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark/frontend"
)

// DepositInputs carries the native-side values of a deposit witness: the
// private opening and path plus the four public inputs, in the same order the
// verifier consumes them.
type DepositInputs struct {
	ID       *big.Int
	Blinding *big.Int
	OldPath  []*big.Int

	OldRoot    *big.Int
	NewRoot    *big.Int
	Commitment *big.Int
	Index      uint64
}

// Valid checks that every field is set.
func (d *DepositInputs) Valid() error {
	for name, v := range map[string]*big.Int{
		"id":         d.ID,
		"r":          d.Blinding,
		"oldRoot":    d.OldRoot,
		"newRoot":    d.NewRoot,
		"commitment": d.Commitment,
	} {
		if v == nil {
			return fmt.Errorf("missing %s", name)
		}
	}
	if len(d.OldPath) == 0 {
		return fmt.Errorf("missing oldPath")
	}
	for level, sibling := range d.OldPath {
		if sibling == nil {
			return fmt.Errorf("missing oldPath sibling at level %d", level)
		}
	}
	return nil
}

// Serialize returns the public inputs in the order the deposit verifier
// expects them:
//
//	OldRoot
//	NewRoot
//	Commitment
//	Index
func (d *DepositInputs) Serialize() []*big.Int {
	return []*big.Int{d.OldRoot, d.NewRoot, d.Commitment, new(big.Int).SetUint64(d.Index)}
}

// Assignment builds the circuit assignment for these inputs.
func (d *DepositInputs) Assignment() *DepositCircuit {
	assignment := &DepositCircuit{
		OldRoot:    d.OldRoot,
		NewRoot:    d.NewRoot,
		Commitment: d.Commitment,
		Index:      d.Index,
		ID:         d.ID,
		Blinding:   d.Blinding,
		OldPath:    make([]frontend.Variable, len(d.OldPath)),
	}
	for level, sibling := range d.OldPath {
		assignment.OldPath[level] = sibling
	}
	return assignment
}

// WithdrawInputs carries the native-side values of a withdraw witness: the
// private opening, slot and path plus the two public inputs, in the same
// order the verifier consumes them.
type WithdrawInputs struct {
	Blinding *big.Int
	Index    uint64
	Path     []*big.Int

	Root      *big.Int
	Nullifier *big.Int
}

// Valid checks that every field is set.
func (w *WithdrawInputs) Valid() error {
	for name, v := range map[string]*big.Int{
		"r":    w.Blinding,
		"root": w.Root,
		"id":   w.Nullifier,
	} {
		if v == nil {
			return fmt.Errorf("missing %s", name)
		}
	}
	if len(w.Path) == 0 {
		return fmt.Errorf("missing path")
	}
	for level, sibling := range w.Path {
		if sibling == nil {
			return fmt.Errorf("missing path sibling at level %d", level)
		}
	}
	return nil
}

// Serialize returns the public inputs in the order the withdraw verifier
// expects them:
//
//	Root
//	Nullifier
func (w *WithdrawInputs) Serialize() []*big.Int {
	return []*big.Int{w.Root, w.Nullifier}
}

// Assignment builds the circuit assignment for these inputs.
func (w *WithdrawInputs) Assignment() *WithdrawCircuit {
	assignment := &WithdrawCircuit{
		Root:      w.Root,
		Nullifier: w.Nullifier,
		Blinding:  w.Blinding,
		Index:     w.Index,
		Path:      make([]frontend.Variable, len(w.Path)),
	}
	for level, sibling := range w.Path {
		assignment.Path[level] = sibling
	}
	return assignment
}
