// Package service wraps the pool subsystems into start/stop lifecycles, so
// the daemon and the integration tests compose them the same way.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/vocdoni/zkpool/api"
	"github.com/vocdoni/zkpool/ledger"
	"github.com/vocdoni/zkpool/storage"
	"github.com/vocdoni/zkpool/tree"
)

// APIService represents a service that manages the HTTP API server.
type APIService struct {
	storage *storage.Storage
	ledger  *ledger.Ledger
	tree    *tree.Tree
	api     *api.API
	mu      sync.Mutex
	cancel  context.CancelFunc
	host    string
	port    int
}

// NewAPI creates a new APIService instance over the shared pool components.
func NewAPI(stg *storage.Storage, ldg *ledger.Ledger, tr *tree.Tree, host string, port int) *APIService {
	return &APIService{
		storage: stg,
		ledger:  ldg,
		tree:    tr,
		host:    host,
		port:    port,
	}
}

// Start begins the API server. It returns an error if the service is already
// running or if it fails to start.
func (as *APIService) Start(ctx context.Context) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.cancel != nil {
		return fmt.Errorf("service already running")
	}

	_, as.cancel = context.WithCancel(ctx)

	var err error
	as.api, err = api.New(&api.APIConfig{
		Host:    as.host,
		Port:    as.port,
		Storage: as.storage,
		Ledger:  as.ledger,
		Tree:    as.tree,
	})
	if err != nil {
		as.cancel = nil
		return fmt.Errorf("failed to start API server: %w", err)
	}
	return nil
}

// Stop halts the API server.
func (as *APIService) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.cancel != nil {
		as.cancel()
		as.cancel = nil
	}
	as.storage.Close()
}

// HostPort returns the host and port of the API server.
func (as *APIService) HostPort() (string, int) {
	return as.host, as.port
}
