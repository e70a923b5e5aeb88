package ledger

import "math/big"

// Verifier checks a zero-knowledge proof against an ordered list of public
// inputs, returning nil only when the proof is valid. The ledger holds one
// verifier per circuit, since deposit and withdraw proofs use different
// verifying keys.
type Verifier interface {
	Verify(proof []byte, publicInputs []*big.Int) error
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(proof []byte, publicInputs []*big.Int) error

// Verify implements Verifier.
func (f VerifierFunc) Verify(proof []byte, publicInputs []*big.Int) error {
	return f(proof, publicInputs)
}
