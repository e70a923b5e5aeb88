package types

import "math/big"

const (
	// DefaultTreeDepth is the depth of the commitment accumulator used by a
	// deployed pool, giving a capacity of 2^DefaultTreeDepth deposits.
	DefaultTreeDepth = 20
	// MaxTreeDepth bounds the configurable accumulator depth so leaf indices
	// always fit an uint64.
	MaxTreeDepth = 48
	// FieldElemLen is the byte length of a serialized field element.
	FieldElemLen = 32
	// NullifierTreeMaxLevels is the number of levels of the used-nullifier
	// index, enough for full 32-byte nullifier keys.
	NullifierTreeMaxLevels = 256
)

// DefaultDenomination is the fixed unit amount of a pool in base units
// (10^18, one whole token with 18 decimals).
var DefaultDenomination = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

const (
	// TxPending marks a queued transaction not yet applied to the ledger.
	TxPending = "pending"
	// TxSettled marks a transaction applied to the ledger.
	TxSettled = "settled"
	// TxRejected marks a transaction refused by the ledger.
	TxRejected = "rejected"

	// TxKindDeposit and TxKindWithdraw identify the two transaction kinds.
	TxKindDeposit  = "deposit"
	TxKindWithdraw = "withdraw"
)
