package api

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/vocdoni/zkpool/ledger"
	"github.com/vocdoni/zkpool/types"
)

// PoolInfo is the pool summary: the canonical state the ledger accepts proofs
// against, plus the pipeline backlog.
type PoolInfo struct {
	Root          *types.BigInt  `json:"root"`
	DepositIndex  uint64         `json:"depositIndex"`
	MaxDeposits   uint64         `json:"maxDeposits"`
	TreeDepth     int            `json:"treeDepth"`
	Denomination  *types.BigInt  `json:"denomination"`
	Balance       *types.BigInt  `json:"balance"`
	NullifierRoot types.HexBytes `json:"nullifierRoot"`
	Nullifiers    uint64         `json:"nullifiers"`
	PendingTxs    int            `json:"pendingTxs"`
}

// PoolRoot is the response to a root request.
type PoolRoot struct {
	Root *types.BigInt `json:"root"`
}

// SlotProof is the inclusion path of a slot, occupied or still empty, against
// the current accumulator root.
type SlotProof struct {
	Index        uint64          `json:"index"`
	Leaf         *types.BigInt   `json:"leaf"`
	Root         *types.BigInt   `json:"root"`
	PathElements []*types.BigInt `json:"pathElements"`
	PathIndices  types.HexBytes  `json:"pathIndices"`
}

// EventList is the response to an event log query.
type EventList struct {
	Events []*ledger.Event `json:"events"`
}

// DepositRequest is the body of a deposit submission.
type DepositRequest struct {
	Proof      types.HexBytes `json:"proof"`
	NewRoot    *types.BigInt  `json:"newRoot"`
	Commitment *types.BigInt  `json:"commitment"`
	Amount     *types.BigInt  `json:"amount"`
}

// WithdrawRequest is the body of a withdrawal submission.
type WithdrawRequest struct {
	Proof     types.HexBytes `json:"proof"`
	Nullifier *types.BigInt  `json:"nullifier"`
	Recipient common.Address `json:"recipient"`
}

// TransactionRef is the response to a transaction submission.
type TransactionRef struct {
	TxID types.HexBytes `json:"txId"`
}
