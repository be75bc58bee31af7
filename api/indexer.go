package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/vocdoni/zknotes/state"
	"github.com/vocdoni/zknotes/wire"
)

// health reports the API is up
// GET /v1/health
func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	httpWriteJSON(w, &Health{Status: "ok"})
}

// root returns the current tree root
// GET /v1/root
func (a *API) root(w http.ResponseWriter, _ *http.Request) {
	httpWriteJSON(w, &Root{Root: wire.FrToHex(a.state.Root())})
}

// proof returns the authentication path of a leaf
// GET /v1/proof/{index}
func (a *API) proof(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(chi.URLParam(r, ProofURLParam), 10, 64)
	if err != nil {
		ErrMalformedIndex.WithErr(err).Write(w)
		return
	}
	path, _, err := a.state.Path(index)
	if err != nil {
		if errors.Is(err, state.ErrIndexOutOfBounds) {
			ErrIndexOutOfBounds.Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	res := &MerkleProof{
		Siblings: make([]string, state.Depth),
		Indices:  make([]bool, state.Depth),
	}
	for l := range state.Depth {
		res.Siblings[l] = wire.FrToHex(path.Siblings[l])
		res.Indices[l] = path.IsRight[l]
	}
	httpWriteJSON(w, res)
}

// leaf returns the position of a commitment
// GET /v1/leaf/{commitment}
func (a *API) leaf(w http.ResponseWriter, r *http.Request) {
	cm, err := wire.HexToFr(chi.URLParam(r, LeafURLParam))
	if err != nil {
		ErrMalformedCommitment.WithErr(err).Write(w)
		return
	}
	l, err := a.state.Leaf(cm)
	if err != nil {
		if errors.Is(err, state.ErrLeafNotFound) {
			ErrCommitmentNotFound.Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &Leaf{Index: l.Index, BlockHeight: l.BlockHeight})
}

// leaves returns every commitment in insertion order
// GET /v1/leaves
func (a *API) leaves(w http.ResponseWriter, _ *http.Request) {
	all := a.state.Leaves()
	res := &Leaves{Leaves: make([]string, len(all))}
	for i := range all {
		res.Leaves[i] = wire.FrToHex(all[i])
	}
	httpWriteJSON(w, res)
}
