package circuits

import (
	"fmt"
	"math/big"

	"github.com/pelletier/go-toml/v2"

	"github.com/vocdoni/zkpool/types"
	"github.com/vocdoni/zkpool/util"
)

// Witness files carry circuit inputs across process boundaries as key/value
// text. Every value is a 32-byte big-endian field element encoded as a
// 0x-prefixed 64-digit hex string.

// DepositWitnessFile is the on-disk form of DepositInputs.
type DepositWitnessFile struct {
	ID         string   `toml:"id"`
	R          string   `toml:"r"`
	OldPath    []string `toml:"oldPath"`
	OldRoot    string   `toml:"oldRoot"`
	NewRoot    string   `toml:"newRoot"`
	Commitment string   `toml:"commitment"`
	Index      string   `toml:"index"`
}

// WithdrawWitnessFile is the on-disk form of WithdrawInputs.
type WithdrawWitnessFile struct {
	R     string   `toml:"r"`
	Index string   `toml:"index"`
	Path  []string `toml:"path"`
	Root  string   `toml:"root"`
	ID    string   `toml:"id"`
}

// EncodeDepositWitness serializes deposit inputs to TOML.
func EncodeDepositWitness(d *DepositInputs) ([]byte, error) {
	if err := d.Valid(); err != nil {
		return nil, err
	}
	file := &DepositWitnessFile{
		ID:         encodeElem(d.ID),
		R:          encodeElem(d.Blinding),
		OldPath:    encodeElems(d.OldPath),
		OldRoot:    encodeElem(d.OldRoot),
		NewRoot:    encodeElem(d.NewRoot),
		Commitment: encodeElem(d.Commitment),
		Index:      encodeElem(new(big.Int).SetUint64(d.Index)),
	}
	return toml.Marshal(file)
}

// DecodeDepositWitness parses deposit inputs from TOML.
func DecodeDepositWitness(data []byte) (*DepositInputs, error) {
	file := &DepositWitnessFile{}
	if err := toml.Unmarshal(data, file); err != nil {
		return nil, fmt.Errorf("parse deposit witness: %w", err)
	}
	d := &DepositInputs{}
	var err error
	if d.ID, err = decodeElem(file.ID); err != nil {
		return nil, fmt.Errorf("id: %w", err)
	}
	if d.Blinding, err = decodeElem(file.R); err != nil {
		return nil, fmt.Errorf("r: %w", err)
	}
	if d.OldPath, err = decodeElems(file.OldPath); err != nil {
		return nil, fmt.Errorf("oldPath: %w", err)
	}
	if d.OldRoot, err = decodeElem(file.OldRoot); err != nil {
		return nil, fmt.Errorf("oldRoot: %w", err)
	}
	if d.NewRoot, err = decodeElem(file.NewRoot); err != nil {
		return nil, fmt.Errorf("newRoot: %w", err)
	}
	if d.Commitment, err = decodeElem(file.Commitment); err != nil {
		return nil, fmt.Errorf("commitment: %w", err)
	}
	index, err := decodeElem(file.Index)
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}
	if !index.IsUint64() {
		return nil, fmt.Errorf("index: %s does not fit a leaf index", index)
	}
	d.Index = index.Uint64()
	return d, d.Valid()
}

// EncodeWithdrawWitness serializes withdraw inputs to TOML.
func EncodeWithdrawWitness(w *WithdrawInputs) ([]byte, error) {
	if err := w.Valid(); err != nil {
		return nil, err
	}
	file := &WithdrawWitnessFile{
		R:     encodeElem(w.Blinding),
		Index: encodeElem(new(big.Int).SetUint64(w.Index)),
		Path:  encodeElems(w.Path),
		Root:  encodeElem(w.Root),
		ID:    encodeElem(w.Nullifier),
	}
	return toml.Marshal(file)
}

// DecodeWithdrawWitness parses withdraw inputs from TOML.
func DecodeWithdrawWitness(data []byte) (*WithdrawInputs, error) {
	file := &WithdrawWitnessFile{}
	if err := toml.Unmarshal(data, file); err != nil {
		return nil, fmt.Errorf("parse withdraw witness: %w", err)
	}
	w := &WithdrawInputs{}
	var err error
	if w.Blinding, err = decodeElem(file.R); err != nil {
		return nil, fmt.Errorf("r: %w", err)
	}
	index, err := decodeElem(file.Index)
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}
	if !index.IsUint64() {
		return nil, fmt.Errorf("index: %s does not fit a leaf index", index)
	}
	w.Index = index.Uint64()
	if w.Path, err = decodeElems(file.Path); err != nil {
		return nil, fmt.Errorf("path: %w", err)
	}
	if w.Root, err = decodeElem(file.Root); err != nil {
		return nil, fmt.Errorf("root: %w", err)
	}
	if w.Nullifier, err = decodeElem(file.ID); err != nil {
		return nil, fmt.Errorf("id: %w", err)
	}
	return w, w.Valid()
}

func encodeElem(v *big.Int) string {
	return fmt.Sprintf("0x%0*x", types.FieldElemLen*2, v)
}

func encodeElems(vs []*big.Int) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = encodeElem(v)
	}
	return out
}

func decodeElem(s string) (*big.Int, error) {
	if len(s) < 3 || s[0] != '0' || (s[1] != 'x' && s[1] != 'X') {
		return nil, fmt.Errorf("%q is not a 0x-prefixed hex value", s)
	}
	digits := util.TrimHex(s)
	if len(digits) > types.FieldElemLen*2 {
		return nil, fmt.Errorf("%q exceeds %d hex digits", s, types.FieldElemLen*2)
	}
	v, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return nil, fmt.Errorf("%q is not a valid hex value", s)
	}
	return v, nil
}

func decodeElems(ss []string) ([]*big.Int, error) {
	out := make([]*big.Int, len(ss))
	for i, s := range ss {
		v, err := decodeElem(s)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
