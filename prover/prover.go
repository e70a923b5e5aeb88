// Package prover wraps the groth16 backend behind the two pool circuits. A
// System owns one compiled constraint system with its proving and verifying
// keys, produces serialized proofs from witness inputs, and checks serialized
// proofs against public inputs, which makes it pluggable wherever a proof
// verifier is expected.
package prover

import (
	"bytes"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"

	"github.com/vocdoni/zkpool/circuits"
	"github.com/vocdoni/zkpool/log"
)

// Circuit names, used to derive artifact file names.
const (
	DepositCircuitName  = "deposit"
	WithdrawCircuitName = "withdraw"
)

// System manages one circuit: its compiled constraint system and groth16 key
// pair. Create it with NewDeposit or NewWithdraw and initialize it with Setup
// or SetupOrLoad before proving or verifying.
type System struct {
	name        string
	depth       int
	placeholder func(depth int) frontend.Circuit
	publics     func(depth int, publics []*big.Int) (frontend.Circuit, error)

	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
	vk  groth16.VerifyingKey
}

// NewDeposit returns the proving system of the deposit circuit for the given
// tree depth.
func NewDeposit(depth int) *System {
	return &System{
		name:  DepositCircuitName,
		depth: depth,
		placeholder: func(depth int) frontend.Circuit {
			return circuits.NewDeposit(depth)
		},
		publics: depositPublicAssignment,
	}
}

// NewWithdraw returns the proving system of the withdraw circuit for the
// given tree depth.
func NewWithdraw(depth int) *System {
	return &System{
		name:  WithdrawCircuitName,
		depth: depth,
		placeholder: func(depth int) frontend.Circuit {
			return circuits.NewWithdraw(depth)
		},
		publics: withdrawPublicAssignment,
	}
}

// Name returns the circuit name.
func (s *System) Name() string { return s.name }

// Depth returns the tree depth the circuit was built for.
func (s *System) Depth() int { return s.depth }

// Compile builds the constraint system. It is a no-op when already compiled.
func (s *System) Compile() error {
	if s.ccs != nil {
		return nil
	}
	log.Infow("compiling circuit", "name", s.name, "depth", s.depth)
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, s.placeholder(s.depth))
	if err != nil {
		return fmt.Errorf("compile %s circuit: %w", s.name, err)
	}
	s.ccs = ccs
	log.Debugw("circuit compiled", "name", s.name, "constraints", ccs.GetNbConstraints())
	return nil
}

// Setup compiles the circuit if needed and generates a fresh groth16 key
// pair. Meant for tests and throwaway environments; production deployments
// should persist keys with SetupOrLoad instead.
func (s *System) Setup() error {
	if err := s.Compile(); err != nil {
		return err
	}
	pk, vk, err := groth16.Setup(s.ccs)
	if err != nil {
		return fmt.Errorf("setup %s circuit: %w", s.name, err)
	}
	s.pk, s.vk = pk, vk
	return nil
}

// SetupOrLoad restores the key pair from dir when present, or runs a fresh
// setup and persists it there. Keys are stored as <name>.pk and <name>.vk.
func (s *System) SetupOrLoad(dir string) error {
	if err := s.Compile(); err != nil {
		return err
	}
	pkPath := filepath.Join(dir, s.name+".pk")
	vkPath := filepath.Join(dir, s.name+".vk")
	if fileExists(pkPath) && fileExists(vkPath) {
		return s.loadKeys(pkPath, vkPath)
	}
	if err := s.Setup(); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := writeArtifact(pkPath, s.pk.WriteTo); err != nil {
		return fmt.Errorf("store %s proving key: %w", s.name, err)
	}
	if err := writeArtifact(vkPath, s.vk.WriteTo); err != nil {
		return fmt.Errorf("store %s verifying key: %w", s.name, err)
	}
	log.Infow("proving keys generated", "name", s.name, "dir", dir)
	return nil
}

func (s *System) loadKeys(pkPath, vkPath string) error {
	pk := groth16.NewProvingKey(ecc.BN254)
	if err := readArtifact(pkPath, pk.ReadFrom); err != nil {
		return fmt.Errorf("load %s proving key: %w", s.name, err)
	}
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if err := readArtifact(vkPath, vk.ReadFrom); err != nil {
		return fmt.Errorf("load %s verifying key: %w", s.name, err)
	}
	s.pk, s.vk = pk, vk
	log.Infow("proving keys loaded", "name", s.name)
	return nil
}

// Prove builds a full witness from the assignment and returns a serialized
// groth16 proof.
func (s *System) Prove(assignment frontend.Circuit) ([]byte, error) {
	if s.ccs == nil || s.pk == nil {
		return nil, fmt.Errorf("%s circuit is not set up", s.name)
	}
	witness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("build %s witness: %w", s.name, err)
	}
	proof, err := groth16.Prove(s.ccs, s.pk, witness)
	if err != nil {
		return nil, fmt.Errorf("prove %s: %w", s.name, err)
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("serialize %s proof: %w", s.name, err)
	}
	return buf.Bytes(), nil
}

// Verify checks a serialized proof against the given public inputs. It
// satisfies the ledger's verifier interface.
func (s *System) Verify(proof []byte, publicInputs []*big.Int) error {
	if s.vk == nil {
		return fmt.Errorf("%s circuit is not set up", s.name)
	}
	assignment, err := s.publics(s.depth, publicInputs)
	if err != nil {
		return err
	}
	witness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("build %s public witness: %w", s.name, err)
	}
	p := groth16.NewProof(ecc.BN254)
	if _, err := p.ReadFrom(bytes.NewReader(proof)); err != nil {
		return fmt.Errorf("malformed %s proof: %w", s.name, err)
	}
	return groth16.Verify(p, s.vk, witness)
}

func depositPublicAssignment(depth int, publics []*big.Int) (frontend.Circuit, error) {
	if len(publics) != 4 {
		return nil, fmt.Errorf("deposit circuit expects 4 public inputs, got %d", len(publics))
	}
	assignment := circuits.NewDeposit(depth)
	assignment.OldRoot = publics[0]
	assignment.NewRoot = publics[1]
	assignment.Commitment = publics[2]
	assignment.Index = publics[3]
	return assignment, nil
}

func withdrawPublicAssignment(depth int, publics []*big.Int) (frontend.Circuit, error) {
	if len(publics) != 2 {
		return nil, fmt.Errorf("withdraw circuit expects 2 public inputs, got %d", len(publics))
	}
	assignment := circuits.NewWithdraw(depth)
	assignment.Root = publics[0]
	assignment.Nullifier = publics[1]
	return assignment, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func writeArtifact(path string, writeTo func(w io.Writer) (int64, error)) error {
	fd, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = fd.Close() }()
	_, err = writeTo(fd)
	return err
}

func readArtifact(path string, readFrom func(r io.Reader) (int64, error)) error {
	fd, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = fd.Close() }()
	_, err = readFrom(fd)
	return err
}
