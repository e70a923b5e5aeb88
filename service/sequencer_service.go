package service

import (
	"context"
	"time"

	"github.com/vocdoni/zkpool/ledger"
	"github.com/vocdoni/zkpool/log"
	"github.com/vocdoni/zkpool/sequencer"
	"github.com/vocdoni/zkpool/storage"
	"github.com/vocdoni/zkpool/tree"
)

// SequencerService represents the background settlement worker.
type SequencerService struct {
	sequencer *sequencer.Sequencer
}

// NewSequencer creates the settlement worker over the shared pool components.
// The tick interval defines how often the queue is polled when idle.
func NewSequencer(stg *storage.Storage, ldg *ledger.Ledger, tr *tree.Tree, tick time.Duration) *SequencerService {
	s, err := sequencer.New(stg, ldg, tr, tick)
	if err != nil {
		log.Fatalf("failed to create sequencer: %v", err)
	}
	return &SequencerService{
		sequencer: s,
	}
}

// Start begins the settlement service. It returns an error if the service is
// already running.
func (ss *SequencerService) Start(ctx context.Context) error {
	return ss.sequencer.Start(ctx)
}

// Stop halts the settlement service.
func (ss *SequencerService) Stop() {
	if err := ss.sequencer.Stop(); err != nil {
		log.Warnw("sequencer service stopped", "error", err)
	}
}
