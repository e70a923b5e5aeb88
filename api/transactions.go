package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vocdoni/zkpool/storage"
	"github.com/vocdoni/zkpool/types"
)

// submitDeposit queues a deposit submission for settlement.
// POST /transactions/deposit
func (a *API) submitDeposit(w http.ResponseWriter, r *http.Request) {
	req := &DepositRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	txID, err := a.storage.PushTransaction(&storage.Tx{
		Kind: types.TxKindDeposit,
		Deposit: &storage.DepositTx{
			Proof:      req.Proof,
			NewRoot:    req.NewRoot,
			Commitment: req.Commitment,
			Amount:     req.Amount,
		},
	})
	if err != nil {
		ErrInvalidTransaction.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &TransactionRef{TxID: txID})
}

// submitWithdraw queues a withdrawal submission for settlement.
// POST /transactions/withdraw
func (a *API) submitWithdraw(w http.ResponseWriter, r *http.Request) {
	req := &WithdrawRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	txID, err := a.storage.PushTransaction(&storage.Tx{
		Kind: types.TxKindWithdraw,
		Withdraw: &storage.WithdrawTx{
			Proof:     req.Proof,
			Nullifier: req.Nullifier,
			Recipient: req.Recipient,
		},
	})
	if err != nil {
		ErrInvalidTransaction.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &TransactionRef{TxID: txID})
}

// transactionStatus returns the status record of a transaction: pending,
// settled with its event, or rejected with the failing precondition.
// GET /transactions/{txId}
func (a *API) transactionStatus(w http.ResponseWriter, r *http.Request) {
	txID := types.HexBytes{}
	if err := txID.SetString(chi.URLParam(r, TransactionURLParam)); err != nil {
		ErrMalformedParam.Withf("could not decode transaction id: %v", err).Write(w)
		return
	}
	status, err := a.storage.TransactionStatus(txID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			ErrTransactionNotFound.Write(w)
			return
		}
		ErrGenericInternalServerError.Withf("could not read transaction status: %v", err).Write(w)
		return
	}
	httpWriteJSON(w, status)
}
