package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vocdoni/zkpool/types"
)

// poolInfo returns the pool summary.
// GET /pool
func (a *API) poolInfo(w http.ResponseWriter, r *http.Request) {
	nullifierRoot, err := a.ledger.NullifierRoot()
	if err != nil {
		ErrGenericInternalServerError.Withf("could not read nullifier root: %v", err).Write(w)
		return
	}
	httpWriteJSON(w, &PoolInfo{
		Root:          types.BigToBigInt(a.ledger.Root()),
		DepositIndex:  a.ledger.DepositIndex(),
		MaxDeposits:   a.ledger.MaxDeposits(),
		TreeDepth:     a.ledger.Depth(),
		Denomination:  types.BigToBigInt(a.ledger.Denomination()),
		Balance:       types.BigToBigInt(a.ledger.Balance()),
		NullifierRoot: nullifierRoot,
		Nullifiers:    a.ledger.NullifierCount(),
		PendingTxs:    a.storage.PendingTransactions(),
	})
}

// poolRoot returns the current accumulator root, the value a witness must be
// built against.
// GET /pool/root
func (a *API) poolRoot(w http.ResponseWriter, r *http.Request) {
	httpWriteJSON(w, &PoolRoot{Root: types.BigToBigInt(a.ledger.Root())})
}

// slotProof returns the inclusion path of a slot, occupied or still empty.
// GET /pool/proof/{index}
func (a *API) slotProof(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(chi.URLParam(r, ProofURLParam), 10, 64)
	if err != nil {
		ErrMalformedParam.Withf("could not parse slot index: %v", err).Write(w)
		return
	}
	proof, err := a.tree.GenProof(index)
	if err != nil {
		ErrInvalidSlotIndex.WithErr(err).Write(w)
		return
	}
	elements := make([]*types.BigInt, len(proof.PathElements))
	for i, sibling := range proof.PathElements {
		elements[i] = types.BigToBigInt(sibling)
	}
	httpWriteJSON(w, &SlotProof{
		Index:        proof.Index,
		Leaf:         types.BigToBigInt(proof.Leaf),
		Root:         types.BigToBigInt(proof.Root),
		PathElements: elements,
		PathIndices:  proof.PathIndices,
	})
}

// events returns up to max settled events starting at sequence number from.
// GET /pool/events?from=&max=
func (a *API) events(w http.ResponseWriter, r *http.Request) {
	var from uint64
	var max int
	if s := r.URL.Query().Get("from"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			ErrMalformedParam.Withf("could not parse from: %v", err).Write(w)
			return
		}
		from = v
	}
	if s := r.URL.Query().Get("max"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			ErrMalformedParam.Withf("could not parse max: %v", err).Write(w)
			return
		}
		max = v
	}
	events, err := a.ledger.ListEvents(from, max)
	if err != nil {
		ErrGenericInternalServerError.Withf("could not list events: %v", err).Write(w)
		return
	}
	httpWriteJSON(w, &EventList{Events: events})
}
