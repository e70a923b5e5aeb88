package types

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// HexBytes is a []byte which encodes as hexadecimal in json, as opposed to the
// base64 default.
type HexBytes []byte

// String returns the hex string representation of the HexBytes, prefixed
// with "0x".
func (b HexBytes) String() string {
	return "0x" + hex.EncodeToString(b)
}

// BigInt converts the HexBytes to a BigInt, interpreting the bytes as a
// big-endian unsigned integer.
func (b HexBytes) BigInt() *BigInt {
	return (*BigInt)(new(big.Int).SetBytes(b))
}

// SetString decodes a hex string (with optional "0x" prefix) into the
// HexBytes.
func (b *HexBytes) SetString(s string) error {
	s = strings.TrimPrefix(s, "0x")
	dst, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	*b = dst
	return nil
}

// MarshalJSON implements the json.Marshaler interface, encoding the bytes as
// a "0x" prefixed hex string.
func (b HexBytes) MarshalJSON() ([]byte, error) {
	enc := make([]byte, hex.EncodedLen(len(b))+4)
	enc[0] = '"'
	enc[1], enc[2] = '0', 'x'
	hex.Encode(enc[3:], b)
	enc[len(enc)-1] = '"'
	return enc, nil
}

// UnmarshalJSON implements the json.Unmarshaler interface, accepting hex
// strings with or without the "0x" prefix.
func (b *HexBytes) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid JSON string: %q", data)
	}
	data = data[1 : len(data)-1]
	if len(data) >= 2 && data[0] == '0' && (data[1] == 'x' || data[1] == 'X') {
		data = data[2:]
	}
	decLen := hex.DecodedLen(len(data))
	if cap(*b) < decLen {
		*b = make([]byte, decLen)
	}
	*b = (*b)[:decLen]
	if _, err := hex.Decode(*b, data); err != nil {
		return err
	}
	return nil
}
