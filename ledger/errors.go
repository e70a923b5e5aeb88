package ledger

import "errors"

var (
	// ErrInvalidInput is returned when a transition argument is malformed:
	// missing proof, values that are not canonical field elements, or
	// mismatched path lengths. Raised before any state mutation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrWrongAmount is returned when a deposit payment differs from the
	// pool denomination.
	ErrWrongAmount = errors.New("payment does not match the pool denomination")
	// ErrProofRejected is returned when the proof verifier refuses a proof
	// against the current public inputs. The transition aborts with no state
	// change and the caller must rebuild the witness from fresh state.
	ErrProofRejected = errors.New("proof rejected")
	// ErrDoubleSpend is returned when a withdrawal reveals a nullifier that
	// was already spent. Checked before any verification effort is spent.
	ErrDoubleSpend = errors.New("nullifier already spent")
	// ErrCapacityExceeded is returned when a deposit arrives with the pool
	// already holding its maximum number of commitments.
	ErrCapacityExceeded = errors.New("pool is at capacity")
	// ErrDesync is returned when the commitment accumulator mirror diverges
	// from the ledger root.
	ErrDesync = errors.New("accumulator out of sync with the ledger")
)
