package types

import (
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// BigInt wraps math/big.Int to provide JSON marshaling as a decimal string
// and CBOR marshaling as a big-endian byte string, so the same struct tags
// work for the HTTP API and for the artifact store.
type BigInt big.Int

// NewBigInt returns a BigInt with the given int64 value.
func NewBigInt(x int64) *BigInt {
	return (*BigInt)(big.NewInt(x))
}

// BigToBigInt wraps a *big.Int into a *BigInt, copying the value.
func BigToBigInt(x *big.Int) *BigInt {
	if x == nil {
		return nil
	}
	return (*BigInt)(new(big.Int).Set(x))
}

// MathBigInt converts b to a standard *big.Int.
func (b *BigInt) MathBigInt() *big.Int {
	return (*big.Int)(b)
}

// SetBytes interprets buf as big-endian unsigned integer.
func (b *BigInt) SetBytes(buf []byte) *BigInt {
	b.MathBigInt().SetBytes(buf)
	return b
}

// Bytes returns the minimal big-endian representation of b.
func (b *BigInt) Bytes() []byte {
	return b.MathBigInt().Bytes()
}

// FixedBytes returns the value of b as a fixed-width big-endian slice of n
// bytes, zero padded on the left. It panics if the value does not fit.
func (b *BigInt) FixedBytes(n int) []byte {
	return b.MathBigInt().FillBytes(make([]byte, n))
}

// String returns the decimal representation of b.
func (b *BigInt) String() string {
	return b.MathBigInt().String()
}

// Equal reports whether b and x hold the same value. A nil BigInt is only
// equal to another nil BigInt.
func (b *BigInt) Equal(x *BigInt) bool {
	if b == nil || x == nil {
		return b == x
	}
	return b.MathBigInt().Cmp(x.MathBigInt()) == 0
}

// MarshalText implements the encoding.TextMarshaler interface, so BigInt
// encodes as a decimal string in JSON.
func (b *BigInt) MarshalText() ([]byte, error) {
	return b.MathBigInt().MarshalText()
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (b *BigInt) UnmarshalText(data []byte) error {
	return b.MathBigInt().UnmarshalText(data)
}

// MarshalCBOR implements the cbor.Marshaler interface, encoding the value as
// a big-endian byte string.
func (b *BigInt) MarshalCBOR() ([]byte, error) {
	if b == nil {
		return cbor.Marshal(nil)
	}
	return cbor.Marshal(b.Bytes())
}

// UnmarshalCBOR implements the cbor.Unmarshaler interface.
func (b *BigInt) UnmarshalCBOR(data []byte) error {
	var buf []byte
	if err := cbor.Unmarshal(data, &buf); err != nil {
		return fmt.Errorf("cannot unmarshal BigInt: %w", err)
	}
	b.SetBytes(buf)
	return nil
}
