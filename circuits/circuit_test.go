package circuits_test

import (
	"math/big"
	"os"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/consensys/gnark/logger"
	"github.com/consensys/gnark/test"
	"github.com/rs/zerolog"
	"go.vocdoni.io/dvote/db/metadb"

	"github.com/vocdoni/zkpool/circuits"
	"github.com/vocdoni/zkpool/crypto/hash/mimc"
	"github.com/vocdoni/zkpool/tree"
)

const testDepth = 4

func skipUnlessCircuitTests(t *testing.T) {
	if os.Getenv("RUN_CIRCUIT_TESTS") == "" || os.Getenv("RUN_CIRCUIT_TESTS") == "false" {
		t.Skip("skipping circuit tests...")
	}
}

// buildDepositInputs appends a fresh commitment to the tree and returns the
// witness of that transition, honestly derived from the accumulator.
func buildDepositInputs(t *testing.T, tr *tree.Tree, id, blinding *big.Int) *circuits.DepositInputs {
	index := tr.LeafCount()
	before, err := tr.GenProof(index)
	if err != nil {
		t.Fatal(err)
	}
	commitment, err := mimc.Hash(id, blinding)
	if err != nil {
		t.Fatal(err)
	}
	oldRoot := tr.Root()
	if _, err := tr.Insert(commitment); err != nil {
		t.Fatal(err)
	}
	return &circuits.DepositInputs{
		ID:         id,
		Blinding:   blinding,
		OldPath:    before.PathElements,
		OldRoot:    oldRoot,
		NewRoot:    tr.Root(),
		Commitment: commitment,
		Index:      index,
	}
}

func buildWithdrawInputs(t *testing.T, tr *tree.Tree, id, blinding *big.Int, index uint64) *circuits.WithdrawInputs {
	proof, err := tr.GenProof(index)
	if err != nil {
		t.Fatal(err)
	}
	return &circuits.WithdrawInputs{
		Blinding:  blinding,
		Index:     index,
		Path:      proof.PathElements,
		Root:      tr.Root(),
		Nullifier: id,
	}
}

func TestDepositCircuitCompile(t *testing.T) {
	skipUnlessCircuitTests(t)
	// enable log to see nbConstraints
	logger.Set(zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).With().Timestamp().Logger())

	if _, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder,
		circuits.NewDeposit(testDepth),
	); err != nil {
		t.Fatal(err)
	}
	if _, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder,
		circuits.NewWithdraw(testDepth),
	); err != nil {
		t.Fatal(err)
	}
}

func TestDepositCircuitProve(t *testing.T) {
	skipUnlessCircuitTests(t)

	tr, err := tree.New(tree.Config{Database: metadb.NewTest(t), Depth: testDepth})
	if err != nil {
		t.Fatal(err)
	}
	assert := test.NewAssert(t)

	// first deposit on an empty tree, second on a non-trivial one
	first := buildDepositInputs(t, tr, big.NewInt(111), big.NewInt(222))
	assert.ProverSucceeded(
		circuits.NewDeposit(testDepth),
		first.Assignment(),
		test.WithCurves(ecc.BN254),
		test.WithBackends(backend.GROTH16))

	second := buildDepositInputs(t, tr, big.NewInt(333), big.NewInt(444))
	assert.ProverSucceeded(
		circuits.NewDeposit(testDepth),
		second.Assignment(),
		test.WithCurves(ecc.BN254),
		test.WithBackends(backend.GROTH16))

	// tampering with any public input must break the proof
	stale := *second
	stale.OldRoot = first.OldRoot
	assert.ProverFailed(
		circuits.NewDeposit(testDepth),
		stale.Assignment(),
		test.WithCurves(ecc.BN254),
		test.WithBackends(backend.GROTH16))

	wrongSlot := *second
	wrongSlot.Index = second.Index + 1
	assert.ProverFailed(
		circuits.NewDeposit(testDepth),
		wrongSlot.Assignment(),
		test.WithCurves(ecc.BN254),
		test.WithBackends(backend.GROTH16))

	forged := *second
	forged.Commitment = big.NewInt(9999)
	assert.ProverFailed(
		circuits.NewDeposit(testDepth),
		forged.Assignment(),
		test.WithCurves(ecc.BN254),
		test.WithBackends(backend.GROTH16))
}

func TestWithdrawCircuitProve(t *testing.T) {
	skipUnlessCircuitTests(t)

	tr, err := tree.New(tree.Config{Database: metadb.NewTest(t), Depth: testDepth})
	if err != nil {
		t.Fatal(err)
	}
	assert := test.NewAssert(t)

	id, blinding := big.NewInt(555), big.NewInt(666)
	deposit := buildDepositInputs(t, tr, id, blinding)
	for i := 0; i < 3; i++ {
		buildDepositInputs(t, tr, big.NewInt(int64(700+i)), big.NewInt(int64(800+i)))
	}

	withdraw := buildWithdrawInputs(t, tr, id, blinding, deposit.Index)
	assert.ProverSucceeded(
		circuits.NewWithdraw(testDepth),
		withdraw.Assignment(),
		test.WithCurves(ecc.BN254),
		test.WithBackends(backend.GROTH16))

	// a nullifier that does not open the commitment at Index must fail
	wrongID := *withdraw
	wrongID.Nullifier = big.NewInt(5555)
	assert.ProverFailed(
		circuits.NewWithdraw(testDepth),
		wrongID.Assignment(),
		test.WithCurves(ecc.BN254),
		test.WithBackends(backend.GROTH16))

	// a root the commitment does not belong to must fail
	wrongRoot := *withdraw
	wrongRoot.Root = deposit.OldRoot
	assert.ProverFailed(
		circuits.NewWithdraw(testDepth),
		wrongRoot.Assignment(),
		test.WithCurves(ecc.BN254),
		test.WithBackends(backend.GROTH16))
}

// TestNativeCircuitParity re-derives in-circuit results natively: the solver
// only accepts witnesses whose roots were computed with the native hasher, so
// a solved circuit means both hashers agree bit for bit.
func TestNativeCircuitParity(t *testing.T) {
	skipUnlessCircuitTests(t)

	tr, err := tree.New(tree.Config{Database: metadb.NewTest(t), Depth: testDepth})
	if err != nil {
		t.Fatal(err)
	}
	inputs := buildDepositInputs(t, tr, big.NewInt(12345), big.NewInt(67890))
	if err := test.IsSolved(
		circuits.NewDeposit(testDepth),
		inputs.Assignment(),
		ecc.BN254.ScalarField(),
	); err != nil {
		t.Fatal(err)
	}
}
