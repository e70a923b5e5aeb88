// zkpoold is the pool daemon. It opens (or creates) the pool database and the
// groth16 circuit keys, then serves the HTTP API and runs the settlement
// worker until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"flag"
	"math/big"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.vocdoni.io/dvote/db/metadb"
	"go.vocdoni.io/dvote/db/prefixeddb"

	"github.com/vocdoni/zkpool/config"
	"github.com/vocdoni/zkpool/ledger"
	"github.com/vocdoni/zkpool/log"
	"github.com/vocdoni/zkpool/prover"
	"github.com/vocdoni/zkpool/service"
	"github.com/vocdoni/zkpool/storage"
	"github.com/vocdoni/zkpool/tree"
)

func main() {
	cfg := config.DefaultConfig()
	denomination := cfg.Denomination.String()
	flag.StringVar(&cfg.DataDir, "dataDir", cfg.DataDir, "directory for the database and the circuit keys")
	flag.StringVar(&cfg.DBType, "dbType", cfg.DBType, "key-value database backend")
	flag.StringVar(&cfg.Host, "host", cfg.Host, "API host to bind")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "API port to bind")
	flag.IntVar(&cfg.TreeDepth, "treeDepth", cfg.TreeDepth, "depth of the commitment accumulator")
	flag.StringVar(&denomination, "denomination", denomination, "fixed transfer amount in base units")
	flag.DurationVar(&cfg.SequencerTick, "sequencerTick", cfg.SequencerTick, "settlement queue poll interval")
	flag.StringVar(&cfg.LogLevel, "logLevel", cfg.LogLevel, "log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogOutput, "logOutput", cfg.LogOutput, "log output (stdout, stderr or file path)")
	flag.Parse()

	log.Init(cfg.LogLevel, cfg.LogOutput, nil)

	d, ok := new(big.Int).SetString(denomination, 10)
	if !ok {
		log.Fatalf("malformed denomination %q", denomination)
	}
	cfg.Denomination = d
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// Circuit keys are bound to the tree depth: a pool restarted with a
	// different depth needs new keys and an empty database.
	depositProver := prover.NewDeposit(cfg.TreeDepth)
	withdrawProver := prover.NewWithdraw(cfg.TreeDepth)
	keyDir := filepath.Join(cfg.DataDir, "keys")
	log.Infow("preparing circuit keys, this can take a while on first run", "dir", keyDir)
	if err := depositProver.SetupOrLoad(keyDir); err != nil {
		log.Fatalf("deposit circuit setup: %v", err)
	}
	if err := withdrawProver.SetupOrLoad(keyDir); err != nil {
		log.Fatalf("withdraw circuit setup: %v", err)
	}

	database, err := metadb.New(cfg.DBType, filepath.Join(cfg.DataDir, "db"))
	if err != nil {
		log.Fatalf("open database: %v", err)
	}

	tr, err := tree.New(tree.Config{
		Database: prefixeddb.NewPrefixedDatabase(database, []byte("tree/")),
		Depth:    cfg.TreeDepth,
	})
	if err != nil {
		log.Fatalf("open accumulator: %v", err)
	}
	ldg, err := ledger.New(ledger.Config{
		Database:         prefixeddb.NewPrefixedDatabase(database, []byte("ledger/")),
		Depth:            cfg.TreeDepth,
		Denomination:     cfg.Denomination,
		DepositVerifier:  depositProver,
		WithdrawVerifier: withdrawProver,
	})
	if err != nil {
		log.Fatalf("open ledger: %v", err)
	}
	stg := storage.New(prefixeddb.NewPrefixedDatabase(database, []byte("txs/")))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	apiService := service.NewAPI(stg, ldg, tr, cfg.Host, cfg.Port)
	if err := apiService.Start(ctx); err != nil {
		log.Fatalf("start API service: %v", err)
	}
	sequencerService := service.NewSequencer(stg, ldg, tr, cfg.SequencerTick)
	if err := sequencerService.Start(ctx); err != nil {
		log.Fatalf("start sequencer service: %v", err)
	}

	log.Infow("pool daemon running",
		"host", cfg.Host,
		"port", cfg.Port,
		"treeDepth", cfg.TreeDepth,
		"denomination", cfg.Denomination.String(),
		"root", ldg.Root().String(),
	)

	<-ctx.Done()
	log.Infow("shutting down")
	sequencerService.Stop()
	apiService.Stop()
}
