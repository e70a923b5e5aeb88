// Package api exposes the pool over HTTP: read endpoints for the accumulator
// state and event log, and write endpoints that queue deposit and withdrawal
// submissions for the sequencer. Handlers never touch the ledger directly;
// every state transition goes through the transaction pipeline.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/vocdoni/zkpool/ledger"
	"github.com/vocdoni/zkpool/log"
	stg "github.com/vocdoni/zkpool/storage"
	"github.com/vocdoni/zkpool/tree"
)

// APIConfig type represents the configuration for the API HTTP server.
type APIConfig struct {
	Host    string
	Port    int
	Storage *stg.Storage
	Ledger  *ledger.Ledger
	Tree    *tree.Tree
}

// API type represents the pool API HTTP server.
type API struct {
	router  *chi.Mux
	storage *stg.Storage
	ledger  *ledger.Ledger
	tree    *tree.Tree
}

// New creates a new API instance with the given configuration and starts the
// HTTP server.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Storage == nil || conf.Ledger == nil || conf.Tree == nil {
		return nil, fmt.Errorf("missing storage, ledger or tree instance")
	}
	a := &API{
		storage: conf.Storage,
		ledger:  conf.Ledger,
		tree:    conf.Tree,
	}

	// Initialize router
	a.initRouter()
	go func() {
		log.Infow("starting API server", "host", conf.Host, "port", conf.Port)
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", conf.Host, conf.Port), a.router); err != nil {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// registerHandlers registers all the API handlers.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	log.Infow("register handler", "endpoint", PoolEndpoint, "method", "GET")
	a.router.Get(PoolEndpoint, a.poolInfo)
	log.Infow("register handler", "endpoint", PoolRootEndpoint, "method", "GET")
	a.router.Get(PoolRootEndpoint, a.poolRoot)
	log.Infow("register handler", "endpoint", PoolProofEndpoint, "method", "GET")
	a.router.Get(PoolProofEndpoint, a.slotProof)
	log.Infow("register handler", "endpoint", PoolEventsEndpoint, "method", "GET")
	a.router.Get(PoolEventsEndpoint, a.events)
	log.Infow("register handler", "endpoint", DepositsEndpoint, "method", "POST")
	a.router.Post(DepositsEndpoint, a.submitDeposit)
	log.Infow("register handler", "endpoint", WithdrawalsEndpoint, "method", "POST")
	a.router.Post(WithdrawalsEndpoint, a.submitWithdraw)
	log.Infow("register handler", "endpoint", TransactionEndpoint, "method", "GET")
	a.router.Get(TransactionEndpoint, a.transactionStatus)
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	// Create the router with a basic middleware stack
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))

	// Register the API handlers
	a.registerHandlers()
}
