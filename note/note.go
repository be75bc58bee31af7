// Package note defines the value records of the shielded pool and the values
// derived from them: owner hashes, commitments and nullifiers. Every derived
// value is a Poseidon hash over the BLS12-381 scalar field, the same hash the
// circuits enforce.
package note

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/vocdoni/zknotes/crypto/hash/poseidon"
	"github.com/vocdoni/zknotes/util"
	"github.com/vocdoni/zknotes/wire"
)

// SecretKey is the only key material of a note owner.
type SecretKey struct {
	fr.Element
}

// NewSecretKey returns a uniformly random secret key.
func NewSecretKey() SecretKey {
	return SecretKey{util.RandomFieldElement()}
}

// SecretKeyFromHex parses a secret key from its 32 byte big-endian hex form,
// with or without the 0x prefix.
func SecretKeyFromHex(s string) (SecretKey, error) {
	e, err := wire.HexToFr(s)
	if err != nil {
		return SecretKey{}, fmt.Errorf("invalid secret key: %w", err)
	}
	return SecretKey{e}, nil
}

// OwnerHash returns Hash(sk), the public identity notes are addressed to.
func (sk SecretKey) OwnerHash() fr.Element {
	return poseidon.Hash(sk.Element)
}

// Nullifier returns Hash(sk, nonce), the tag revealed when the note with that
// nonce is spent. It is deterministic so a second spend reveals the same tag.
func (sk SecretKey) Nullifier(nonce fr.Element) fr.Element {
	return poseidon.Hash2(sk.Element, nonce)
}

// Note is an immutable value record. Whether it has been spent is tracked by
// the ledger through its nullifier, never by the note itself.
type Note struct {
	Value  uint64
	AppTag uint32
	Owner  fr.Element
	Nonce  fr.Element
}

// New creates a note with a fresh random nonce.
func New(value uint64, appTag uint32, owner fr.Element) *Note {
	return WithNonce(value, appTag, owner, util.RandomFieldElement())
}

// WithNonce creates a note with the given nonce.
func WithNonce(value uint64, appTag uint32, owner, nonce fr.Element) *Note {
	return &Note{
		Value:  value,
		AppTag: appTag,
		Owner:  owner,
		Nonce:  nonce,
	}
}

// ValueElement returns the value embedded in the field.
func (n *Note) ValueElement() fr.Element {
	var e fr.Element
	e.SetUint64(n.Value)
	return e
}

// AppTagElement returns the application tag embedded in the field.
func (n *Note) AppTagElement() fr.Element {
	var e fr.Element
	e.SetUint64(uint64(n.AppTag))
	return e
}

// Commitment returns Hash(value, app_tag, owner, nonce).
func (n *Note) Commitment() fr.Element {
	return poseidon.Hash(n.ValueElement(), n.AppTagElement(), n.Owner, n.Nonce)
}

// Nullifier returns the nullifier of the note under sk.
func (n *Note) Nullifier(sk SecretKey) fr.Element {
	return sk.Nullifier(n.Nonce)
}

// Equal reports whether both notes hold the same fields.
func (n *Note) Equal(o *Note) bool {
	if n == nil || o == nil {
		return n == o
	}
	return n.Value == o.Value && n.AppTag == o.AppTag &&
		n.Owner.Equal(&o.Owner) && n.Nonce.Equal(&o.Nonce)
}

// String implements fmt.Stringer without revealing the nonce.
func (n *Note) String() string {
	return fmt.Sprintf("note{value:%d tag:%d owner:%s}", n.Value, n.AppTag, util.PrettyHex(n.Owner))
}
