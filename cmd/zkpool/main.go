// zkpool is the wallet CLI. It talks to a running zkpoold instance, keeps
// deposit records in a local database and drives the full client-side flow:
// note generation, witness building, proving and transaction submission.
//
// Subcommands:
//
//	zkpool deposit  -api URL [-walletDir DIR] [-keyDir DIR] [-witnessOut FILE]
//	zkpool withdraw -api URL -to ADDRESS [-record UUID] [-witnessOut FILE]
//	zkpool list     [-walletDir DIR]
//	zkpool prove    -circuit deposit|withdraw -witness FILE -out FILE [-keyDir DIR]
package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"

	"github.com/vocdoni/zkpool/api"
	"github.com/vocdoni/zkpool/api/client"
	"github.com/vocdoni/zkpool/circuits"
	"github.com/vocdoni/zkpool/log"
	"github.com/vocdoni/zkpool/prover"
	"github.com/vocdoni/zkpool/tree"
	"github.com/vocdoni/zkpool/types"
	"github.com/vocdoni/zkpool/wallet"
)

const (
	defaultWalletDir = ".zkpool-wallet"
	defaultKeyDir    = ".zkpool/keys"
	settleTimeout    = 2 * time.Minute
	pollInterval     = 500 * time.Millisecond
)

func main() {
	log.Init("info", "stderr", nil)
	if len(os.Args) < 2 {
		usage()
	}
	var err error
	switch os.Args[1] {
	case "deposit":
		err = runDeposit(os.Args[2:])
	case "withdraw":
		err = runWithdraw(os.Args[2:])
	case "list":
		err = runList(os.Args[2:])
	case "prove":
		err = runProve(os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		log.Fatalf("%s failed: %v", os.Args[1], err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: zkpool <deposit|withdraw|list|prove> [flags]")
	os.Exit(2)
}

func runDeposit(args []string) error {
	fs := flag.NewFlagSet("deposit", flag.ExitOnError)
	apiURL := fs.String("api", "http://localhost:8080", "pool API base URL")
	walletDir := fs.String("walletDir", defaultWalletDir, "wallet database directory")
	keyDir := fs.String("keyDir", defaultKeyDir, "directory holding the circuit keys")
	witnessOut := fs.String("witnessOut", "", "write the deposit witness to this TOML file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := client.New(*apiURL)
	if err != nil {
		return fmt.Errorf("connect to pool API: %w", err)
	}
	info, err := c.PoolInfo()
	if err != nil {
		return fmt.Errorf("fetch pool info: %w", err)
	}
	if info.DepositIndex >= info.MaxDeposits {
		return fmt.Errorf("pool is full (%d deposits)", info.MaxDeposits)
	}
	slot, err := c.SlotProof(info.DepositIndex)
	if err != nil {
		return fmt.Errorf("fetch slot proof: %w", err)
	}
	slotProof := slotToProof(slot)
	if err := wallet.CheckFreshRoot(slotProof, info.Root.MathBigInt()); err != nil {
		return fmt.Errorf("pool state moved while fetching, retry: %w", err)
	}

	note := wallet.NewNote()
	inputs, err := wallet.BuildDeposit(note, slotProof)
	if err != nil {
		return fmt.Errorf("build deposit witness: %w", err)
	}
	if *witnessOut != "" {
		if err := writeWitness(*witnessOut, mustEncode(circuits.EncodeDepositWitness(inputs))); err != nil {
			return err
		}
	}

	sys := prover.NewDeposit(info.TreeDepth)
	if err := sys.SetupOrLoad(*keyDir); err != nil {
		return fmt.Errorf("load deposit circuit keys: %w", err)
	}
	log.Infow("proving deposit", "index", inputs.Index)
	proof, err := sys.Prove(inputs.Assignment())
	if err != nil {
		return fmt.Errorf("prove deposit: %w", err)
	}

	txID, err := c.SubmitDeposit(&api.DepositRequest{
		Proof:      proof,
		NewRoot:    types.BigToBigInt(inputs.NewRoot),
		Commitment: types.BigToBigInt(inputs.Commitment),
		Amount:     info.Denomination,
	})
	if err != nil {
		return fmt.Errorf("submit deposit: %w", err)
	}
	log.Infow("deposit submitted", "txId", txID.String())

	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	status, err := c.WaitSettled(ctx, txID, pollInterval)
	if err != nil {
		return fmt.Errorf("wait for settlement: %w", err)
	}
	if status.Status != types.TxSettled {
		return fmt.Errorf("deposit rejected: %s", status.Error)
	}

	w, walletDB, err := openWallet(*walletDir)
	if err != nil {
		return err
	}
	defer walletDB.Close()
	recordID, err := w.SaveRecord(wallet.NewRecord(inputs, slotProof.PathIndices))
	if err != nil {
		return fmt.Errorf("save deposit record: %w", err)
	}

	fmt.Printf("deposit settled\n")
	fmt.Printf("  record:  %s\n", recordID)
	fmt.Printf("  index:   %d\n", inputs.Index)
	fmt.Printf("  newRoot: %s\n", inputs.NewRoot)
	return nil
}

func runWithdraw(args []string) error {
	fs := flag.NewFlagSet("withdraw", flag.ExitOnError)
	apiURL := fs.String("api", "http://localhost:8080", "pool API base URL")
	walletDir := fs.String("walletDir", defaultWalletDir, "wallet database directory")
	keyDir := fs.String("keyDir", defaultKeyDir, "directory holding the circuit keys")
	recordFlag := fs.String("record", "", "deposit record to spend (default: oldest unspent)")
	to := fs.String("to", "", "recipient address")
	witnessOut := fs.String("witnessOut", "", "write the withdraw witness to this TOML file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !common.IsHexAddress(*to) {
		return fmt.Errorf("malformed recipient address %q", *to)
	}
	recipient := common.HexToAddress(*to)

	w, walletDB, err := openWallet(*walletDir)
	if err != nil {
		return err
	}
	defer walletDB.Close()
	record, err := pickRecord(w, *recordFlag)
	if err != nil {
		return err
	}

	c, err := client.New(*apiURL)
	if err != nil {
		return fmt.Errorf("connect to pool API: %w", err)
	}
	info, err := c.PoolInfo()
	if err != nil {
		return fmt.Errorf("fetch pool info: %w", err)
	}
	fresh, err := c.SlotProof(record.Index)
	if err != nil {
		return fmt.Errorf("fetch slot proof: %w", err)
	}
	inputs, err := wallet.BuildWithdraw(record, slotToProof(fresh))
	if err != nil {
		return fmt.Errorf("build withdraw witness: %w", err)
	}
	if *witnessOut != "" {
		if err := writeWitness(*witnessOut, mustEncode(circuits.EncodeWithdrawWitness(inputs))); err != nil {
			return err
		}
	}

	sys := prover.NewWithdraw(info.TreeDepth)
	if err := sys.SetupOrLoad(*keyDir); err != nil {
		return fmt.Errorf("load withdraw circuit keys: %w", err)
	}
	log.Infow("proving withdrawal", "record", record.RecordID.String())
	proof, err := sys.Prove(inputs.Assignment())
	if err != nil {
		return fmt.Errorf("prove withdrawal: %w", err)
	}

	txID, err := c.SubmitWithdraw(&api.WithdrawRequest{
		Proof:     proof,
		Nullifier: types.BigToBigInt(inputs.Nullifier),
		Recipient: recipient,
	})
	if err != nil {
		return fmt.Errorf("submit withdrawal: %w", err)
	}
	log.Infow("withdrawal submitted", "txId", txID.String())

	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	status, err := c.WaitSettled(ctx, txID, pollInterval)
	if err != nil {
		return fmt.Errorf("wait for settlement: %w", err)
	}
	if status.Status != types.TxSettled {
		return fmt.Errorf("withdrawal rejected: %s", status.Error)
	}
	if err := w.MarkSpent(record.RecordID); err != nil {
		return fmt.Errorf("mark record spent: %w", err)
	}

	fmt.Printf("withdrawal settled\n")
	fmt.Printf("  record:    %s\n", record.RecordID)
	fmt.Printf("  recipient: %s\n", recipient.Hex())
	return nil
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	walletDir := fs.String("walletDir", defaultWalletDir, "wallet database directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	w, walletDB, err := openWallet(*walletDir)
	if err != nil {
		return err
	}
	defer walletDB.Close()
	records, err := w.Records()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no deposit records")
		return nil
	}
	for _, r := range records {
		state := "unspent"
		if r.Spent {
			state = "spent"
		}
		fmt.Printf("%s  index=%d  %s  created=%s\n",
			r.RecordID, r.Index, state, r.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

// runProve builds a proof from a witness file exported earlier, without
// touching the network or the wallet database.
func runProve(args []string) error {
	fs := flag.NewFlagSet("prove", flag.ExitOnError)
	circuit := fs.String("circuit", "", "circuit name: deposit or withdraw")
	witnessFile := fs.String("witness", "", "TOML witness file")
	keyDir := fs.String("keyDir", defaultKeyDir, "directory holding the circuit keys")
	out := fs.String("out", "", "output file for the serialized proof")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *witnessFile == "" || *out == "" {
		return fmt.Errorf("both -witness and -out are required")
	}
	data, err := os.ReadFile(*witnessFile)
	if err != nil {
		return fmt.Errorf("read witness file: %w", err)
	}

	var sys *prover.System
	var proof []byte
	switch *circuit {
	case prover.DepositCircuitName:
		inputs, err := circuits.DecodeDepositWitness(data)
		if err != nil {
			return fmt.Errorf("decode deposit witness: %w", err)
		}
		sys = prover.NewDeposit(len(inputs.OldPath))
		if err := sys.SetupOrLoad(*keyDir); err != nil {
			return fmt.Errorf("load deposit circuit keys: %w", err)
		}
		if proof, err = sys.Prove(inputs.Assignment()); err != nil {
			return fmt.Errorf("prove deposit: %w", err)
		}
	case prover.WithdrawCircuitName:
		inputs, err := circuits.DecodeWithdrawWitness(data)
		if err != nil {
			return fmt.Errorf("decode withdraw witness: %w", err)
		}
		sys = prover.NewWithdraw(len(inputs.Path))
		if err := sys.SetupOrLoad(*keyDir); err != nil {
			return fmt.Errorf("load withdraw circuit keys: %w", err)
		}
		if proof, err = sys.Prove(inputs.Assignment()); err != nil {
			return fmt.Errorf("prove withdrawal: %w", err)
		}
	default:
		return fmt.Errorf("unknown circuit %q", *circuit)
	}

	if err := os.WriteFile(*out, proof, 0o644); err != nil {
		return fmt.Errorf("write proof: %w", err)
	}
	fmt.Printf("%s proof written to %s (%d bytes)\n", sys.Name(), *out, len(proof))
	return nil
}

func openWallet(dir string) (*wallet.Wallet, db.Database, error) {
	database, err := metadb.New(db.TypePebble, filepath.Join(dir, "db"))
	if err != nil {
		return nil, nil, fmt.Errorf("open wallet database: %w", err)
	}
	w, err := wallet.New(database)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("open wallet: %w", err)
	}
	return w, database, nil
}

// pickRecord resolves the record to spend: the one named by id, or the oldest
// unspent record when id is empty.
func pickRecord(w *wallet.Wallet, id string) (*wallet.DepositRecord, error) {
	if id != "" {
		recordID, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("malformed record id %q: %w", id, err)
		}
		return w.Record(recordID)
	}
	records, err := w.Records()
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if !r.Spent {
			return r, nil
		}
	}
	return nil, fmt.Errorf("no unspent deposit records")
}

func slotToProof(p *api.SlotProof) *tree.Proof {
	elems := make([]*big.Int, len(p.PathElements))
	for i, e := range p.PathElements {
		elems[i] = e.MathBigInt()
	}
	return &tree.Proof{
		Leaf:         p.Leaf.MathBigInt(),
		Root:         p.Root.MathBigInt(),
		Index:        p.Index,
		PathElements: elems,
		PathIndices:  p.PathIndices,
	}
}

func mustEncode(data []byte, err error) []byte {
	if err != nil {
		log.Fatalf("encode witness: %v", err)
	}
	return data
}

func writeWitness(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write witness file: %w", err)
	}
	log.Infow("witness written", "file", path)
	return nil
}
