// Package sequencer runs the settlement worker: a single background loop that
// pulls queued transactions, applies them to the ledger one at a time and
// mirrors accepted deposits into the commitment accumulator. Being the only
// writer of both is what keeps the accumulator and the ledger root in sync.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vocdoni/zkpool/ledger"
	"github.com/vocdoni/zkpool/log"
	"github.com/vocdoni/zkpool/storage"
	"github.com/vocdoni/zkpool/tree"
	"github.com/vocdoni/zkpool/types"
)

// DefaultTickInterval is how often the worker polls the queue when idle.
const DefaultTickInterval = 500 * time.Millisecond

// Sequencer is the settlement worker. It serializes every state transition:
// an accepted deposit advances the ledger and the accumulator together, a
// rejected transaction gets a terminal status record and is never retried by
// the worker (the client refreshes state and resubmits).
type Sequencer struct {
	stg    *storage.Storage
	ldg    *ledger.Ledger
	tr     *tree.Tree
	tick   time.Duration
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Sequencer over the given pipeline, ledger and accumulator. A
// non-positive tick interval applies DefaultTickInterval.
func New(stg *storage.Storage, ldg *ledger.Ledger, tr *tree.Tree, tick time.Duration) (*Sequencer, error) {
	if stg == nil || ldg == nil || tr == nil {
		return nil, fmt.Errorf("storage, ledger and tree are required")
	}
	if ldg.Depth() != tr.Depth() {
		return nil, fmt.Errorf("ledger depth %d does not match tree depth %d", ldg.Depth(), tr.Depth())
	}
	if tick <= 0 {
		tick = DefaultTickInterval
	}
	if ldg.Root().Cmp(tr.Root()) != 0 {
		return nil, fmt.Errorf("%w: ledger root %s, tree root %s",
			ledger.ErrDesync, ldg.Root(), tr.Root())
	}
	return &Sequencer{stg: stg, ldg: ldg, tr: tr, tick: tick}, nil
}

// Start launches the settlement loop. It returns an error when already
// started.
func (s *Sequencer) Start(ctx context.Context) error {
	if s.cancel != nil {
		return fmt.Errorf("sequencer already running")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	go s.run()
	log.Infow("sequencer started", "tick", s.tick.String())
	return nil
}

// Stop cancels the settlement loop. Safe to call multiple times.
func (s *Sequencer) Stop() error {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
		log.Infow("sequencer stopped")
	}
	return nil
}

func (s *Sequencer) run() {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ProcessPending(); err != nil {
				log.Errorw(err, "settlement round failed")
			}
		}
	}
}

// ProcessPending drains the queue, settling every pending transaction in
// submission order, and returns how many were processed. It is what the
// background loop runs on every tick, exposed for synchronous use in tests
// and tooling.
func (s *Sequencer) ProcessPending() (int, error) {
	processed := 0
	for {
		tx, key, err := s.stg.NextTransaction()
		if errors.Is(err, storage.ErrNoMoreElements) {
			return processed, nil
		}
		if err != nil {
			return processed, fmt.Errorf("next transaction: %w", err)
		}
		if err := s.settle(tx, key); err != nil {
			// Settlement bookkeeping failed; release the reservation so the
			// transaction is retried on the next round.
			if relErr := s.stg.ReleaseTransaction(key); relErr != nil {
				log.Warnw("release transaction failed", "txId", tx.ID.String(), "error", relErr.Error())
			}
			return processed, err
		}
		processed++
	}
}

// settle applies one transaction to the ledger, mirrors it into the
// accumulator and stores the terminal status.
func (s *Sequencer) settle(tx *storage.Tx, key []byte) error {
	status, err := s.stg.TransactionStatus(tx.ID)
	if err != nil {
		// The status record should exist since push time; start a fresh one
		// rather than refusing to settle.
		status = &storage.TxStatus{TxID: tx.ID, Kind: tx.Kind, Submitted: time.Now().UTC()}
	}
	if status.Terminal() {
		// A previous settlement applied this transaction but was interrupted
		// before the queue cleanup; finish the cleanup without applying it
		// again, which would reject it against the advanced root and
		// contradict the ledger.
		return s.stg.MarkTransactionDone(key, status)
	}

	var event *ledger.Event
	var applyErr error
	switch tx.Kind {
	case types.TxKindDeposit:
		event, applyErr = s.applyDeposit(tx.Deposit)
	case types.TxKindWithdraw:
		event, applyErr = s.ldg.Withdraw(tx.Withdraw.Proof,
			tx.Withdraw.Nullifier.MathBigInt(), tx.Withdraw.Recipient)
	default:
		applyErr = fmt.Errorf("unknown transaction kind %q", tx.Kind)
	}

	now := time.Now().UTC()
	status.Settled = &now
	if applyErr != nil {
		status.Status = types.TxRejected
		status.Error = applyErr.Error()
		log.Warnw("transaction rejected", "txId", tx.ID.String(), "kind", tx.Kind, "error", applyErr.Error())
	} else {
		status.Status = types.TxSettled
		status.Event = event
		log.Infow("transaction settled", "txId", tx.ID.String(), "kind", tx.Kind, "seq", event.Seq)
	}
	return s.stg.MarkTransactionDone(key, status)
}

// applyDeposit runs the ledger transition and, on acceptance, appends the
// commitment into the accumulator mirror. Both sides must land on the same
// root; a mismatch means the submitted newRoot was built against a different
// tree and would leave the mirror unable to serve valid paths.
func (s *Sequencer) applyDeposit(d *storage.DepositTx) (*ledger.Event, error) {
	event, err := s.ldg.Deposit(d.Proof, d.NewRoot.MathBigInt(),
		d.Commitment.MathBigInt(), d.Amount.MathBigInt())
	if err != nil {
		return nil, err
	}
	index, err := s.tr.Insert(d.Commitment.MathBigInt())
	if err != nil {
		return nil, fmt.Errorf("mirror deposit into accumulator: %w", err)
	}
	if index != event.Deposit.Index {
		return nil, fmt.Errorf("%w: accumulator assigned index %d, ledger %d",
			ledger.ErrDesync, index, event.Deposit.Index)
	}
	if s.tr.Root().Cmp(s.ldg.Root()) != 0 {
		return nil, fmt.Errorf("%w: accumulator root %s, ledger root %s after deposit %d",
			ledger.ErrDesync, s.tr.Root(), s.ldg.Root(), index)
	}
	return event, nil
}
