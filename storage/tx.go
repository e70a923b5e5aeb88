package storage

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vocdoni/zkpool/ledger"
	"github.com/vocdoni/zkpool/types"
)

// DepositTx is a deposit submission: the proof of the append, the root the
// accumulator takes after it, the inserted commitment and the payment.
type DepositTx struct {
	Proof      types.HexBytes `json:"proof"`
	NewRoot    *types.BigInt  `json:"newRoot"`
	Commitment *types.BigInt  `json:"commitment"`
	Amount     *types.BigInt  `json:"amount"`
}

// WithdrawTx is a withdrawal submission: the membership proof, the revealed
// nullifier and the payout address.
type WithdrawTx struct {
	Proof     types.HexBytes `json:"proof"`
	Nullifier *types.BigInt  `json:"nullifier"`
	Recipient common.Address `json:"recipient"`
}

// Tx is a queued transaction, a tagged union of the two submission kinds. ID
// is assigned by the pipeline when the transaction is pushed.
type Tx struct {
	ID       types.HexBytes `json:"txId"`
	Kind     string         `json:"kind"`
	Deposit  *DepositTx     `json:"deposit,omitempty"`
	Withdraw *WithdrawTx    `json:"withdraw,omitempty"`
}

// Valid checks that the transaction is well formed for its kind: exactly one
// payload set, with a proof and every field element present.
func (t *Tx) Valid() error {
	switch t.Kind {
	case types.TxKindDeposit:
		if t.Deposit == nil || t.Withdraw != nil {
			return fmt.Errorf("%s transaction with wrong payload", t.Kind)
		}
		if len(t.Deposit.Proof) == 0 {
			return fmt.Errorf("missing proof")
		}
		for name, v := range map[string]*types.BigInt{
			"newRoot":    t.Deposit.NewRoot,
			"commitment": t.Deposit.Commitment,
			"amount":     t.Deposit.Amount,
		} {
			if v == nil {
				return fmt.Errorf("missing %s", name)
			}
		}
	case types.TxKindWithdraw:
		if t.Withdraw == nil || t.Deposit != nil {
			return fmt.Errorf("%s transaction with wrong payload", t.Kind)
		}
		if len(t.Withdraw.Proof) == 0 {
			return fmt.Errorf("missing proof")
		}
		if t.Withdraw.Nullifier == nil {
			return fmt.Errorf("missing nullifier")
		}
	default:
		return fmt.Errorf("unknown transaction kind %q", t.Kind)
	}
	return nil
}

// TxStatus is the submitter-facing record of a transaction: pending while
// queued, then settled with its ledger event or rejected with the failing
// precondition.
type TxStatus struct {
	TxID      types.HexBytes `json:"txId"`
	Kind      string         `json:"kind"`
	Status    string         `json:"status"`
	Event     *ledger.Event  `json:"event,omitempty"`
	Error     string         `json:"error,omitempty"`
	Submitted time.Time      `json:"submitted"`
	Settled   *time.Time     `json:"settled,omitempty"`
}

// Terminal reports whether the transaction already reached its final outcome,
// settled or rejected.
func (s *TxStatus) Terminal() bool {
	return s.Status == types.TxSettled || s.Status == types.TxRejected
}
