package gadgets

import (
	"math/big"

	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/zknotes/note"
	"github.com/vocdoni/zknotes/util"
)

// Note is the circuit form of note.Note.
type Note struct {
	Value  frontend.Variable
	AppTag frontend.Variable
	Owner  frontend.Variable
	Nonce  frontend.Variable
}

// NoteFromNative assigns a native note.
func NoteFromNative(n *note.Note) Note {
	return Note{
		Value:  new(big.Int).SetUint64(n.Value),
		AppTag: new(big.Int).SetUint64(uint64(n.AppTag)),
		Owner:  util.FrToBig(n.Owner),
		Nonce:  util.FrToBig(n.Nonce),
	}
}

// Commitment constrains Hash(value, app_tag, owner, nonce).
func (n *Note) Commitment(api frontend.API) frontend.Variable {
	cm, _ := Poseidon(api, n.Value, n.AppTag, n.Owner, n.Nonce)
	return cm
}

// OwnerHash constrains Hash(sk), the owner field of notes spendable by sk.
func OwnerHash(api frontend.API, sk frontend.Variable) frontend.Variable {
	h, _ := Poseidon(api, sk)
	return h
}

// Nullifier constrains Hash(sk, nonce).
func Nullifier(api frontend.API, sk, nonce frontend.Variable) frontend.Variable {
	return Hash2(api, sk, nonce)
}
