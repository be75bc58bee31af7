package types

import (
	"encoding/hex"
	"fmt"

	"github.com/vocdoni/zknotes/util"
)

// HexBytes is a []byte which encodes as hexadecimal in json, as opposed to
// the base64 default. It is marshaled with the 0x prefix and unmarshaled
// with or without it.
type HexBytes []byte

// String returns the hex representation with the 0x prefix.
func (b HexBytes) String() string {
	return "0x" + hex.EncodeToString(b)
}

// MarshalJSON implements json.Marshaler.
func (b HexBytes) MarshalJSON() ([]byte, error) {
	enc := make([]byte, hex.EncodedLen(len(b))+4)
	enc[0] = '"'
	enc[1] = '0'
	enc[2] = 'x'
	hex.Encode(enc[3:], b)
	enc[len(enc)-1] = '"'
	return enc, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *HexBytes) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid JSON string: %q", data)
	}
	s := util.TrimHex(string(data[1 : len(data)-1]))
	decoded := make([]byte, hex.DecodedLen(len(s)))
	if _, err := hex.Decode(decoded, []byte(s)); err != nil {
		return err
	}
	*b = decoded
	return nil
}

// HexStringToHexBytes converts a hex string, with or without the 0x prefix,
// into HexBytes.
func HexStringToHexBytes(s string) (HexBytes, error) {
	b, err := hex.DecodeString(util.TrimHex(s))
	if err != nil {
		return nil, err
	}
	return HexBytes(b), nil
}
