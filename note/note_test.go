package note

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zknotes/crypto/hash/poseidon"
	"github.com/vocdoni/zknotes/wire"
)

func TestNoteCreation(t *testing.T) {
	c := qt.New(t)
	owner := NewSecretKey().OwnerHash()
	n1 := New(1000, 1, owner)
	n2 := New(1000, 1, owner)
	c.Assert(n1.Nonce.Equal(&n2.Nonce), qt.IsFalse)
	c.Assert(n1.Value, qt.Equals, uint64(1000))
	c.Assert(n1.AppTag, qt.Equals, uint32(1))

	cm1, cm2 := n1.Commitment(), n2.Commitment()
	c.Assert(cm1.Equal(&cm2), qt.IsFalse)
	c.Assert(n1.Equal(n2), qt.IsFalse)
	c.Assert(n1.Equal(WithNonce(1000, 1, owner, n1.Nonce)), qt.IsTrue)
}

func TestCommitment(t *testing.T) {
	c := qt.New(t)
	sk := NewSecretKey()
	n := New(700, 3, sk.OwnerHash())

	var value, tag fr.Element
	value.SetUint64(700)
	tag.SetUint64(3)
	want := poseidon.Hash(value, tag, n.Owner, n.Nonce)
	got := n.Commitment()
	c.Assert(got.Equal(&want), qt.IsTrue)

	again := n.Commitment()
	c.Assert(again.Equal(&got), qt.IsTrue)
}

func TestNullifier(t *testing.T) {
	c := qt.New(t)
	sk := NewSecretKey()
	n := New(10, 1, sk.OwnerHash())

	nf1, nf2 := n.Nullifier(sk), n.Nullifier(sk)
	c.Assert(nf1.Equal(&nf2), qt.IsTrue)
	want := poseidon.Hash2(sk.Element, n.Nonce)
	c.Assert(nf1.Equal(&want), qt.IsTrue)

	other := New(10, 1, sk.OwnerHash())
	nf3 := other.Nullifier(sk)
	c.Assert(nf1.Equal(&nf3), qt.IsFalse)

	nf4 := n.Nullifier(NewSecretKey())
	c.Assert(nf1.Equal(&nf4), qt.IsFalse)
}

func TestOwnerHash(t *testing.T) {
	c := qt.New(t)
	sk := NewSecretKey()
	h1, h2 := sk.OwnerHash(), sk.OwnerHash()
	c.Assert(h1.Equal(&h2), qt.IsTrue)
	want := poseidon.Hash(sk.Element)
	c.Assert(h1.Equal(&want), qt.IsTrue)

	parsed, err := SecretKeyFromHex(wire.FrToHex(sk.Element))
	c.Assert(err, qt.IsNil)
	c.Assert(parsed.Equal(&sk.Element), qt.IsTrue)

	_, err = SecretKeyFromHex("0xzz")
	c.Assert(err, qt.IsNotNil)
}
