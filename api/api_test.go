package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/arbo/memdb"
	"github.com/vocdoni/zknotes/state"
	"github.com/vocdoni/zknotes/storage"
	"github.com/vocdoni/zknotes/util"
	"github.com/vocdoni/zknotes/wire"
)

func newTestAPI(t *testing.T, n int) (*API, []fr.Element) {
	t.Helper()
	stg := storage.New(memdb.New())
	t.Cleanup(stg.Close)
	st, err := state.New(stg)
	if err != nil {
		t.Fatal(err)
	}
	leaves := make([]fr.Element, n)
	batch := make([]state.NewLeaf, n)
	for i := range leaves {
		leaves[i] = util.RandomFieldElement()
		batch[i] = state.NewLeaf{Commitment: leaves[i], BlockHeight: uint64(10 + i)}
	}
	if n > 0 {
		if _, err := st.Insert(batch, nil); err != nil {
			t.Fatal(err)
		}
	}
	return NewHandler(st), leaves
}

func get(c *qt.C, a *API, path string, out any) int {
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	c.Assert(rec.Header().Get("Content-Type"), qt.Equals, "application/json")
	if out != nil {
		c.Assert(json.Unmarshal(rec.Body.Bytes(), out), qt.IsNil, qt.Commentf("body: %s", rec.Body.String()))
	}
	return rec.Code
}

func TestHealthAndRoot(t *testing.T) {
	c := qt.New(t)
	a, leaves := newTestAPI(t, 3)

	var health Health
	c.Assert(get(c, a, HealthEndpoint, &health), qt.Equals, http.StatusOK)
	c.Assert(health.Status, qt.Equals, "ok")

	var root Root
	c.Assert(get(c, a, RootEndpoint, &root), qt.Equals, http.StatusOK)
	want, err := state.ComputeRoot(leaves)
	c.Assert(err, qt.IsNil)
	c.Assert(root.Root, qt.Equals, wire.FrToHex(want))
	c.Assert(root.Root, qt.HasLen, 66)
}

func TestProof(t *testing.T) {
	c := qt.New(t)
	a, leaves := newTestAPI(t, 5)
	root, err := state.ComputeRoot(leaves)
	c.Assert(err, qt.IsNil)

	for i := range leaves {
		var res MerkleProof
		c.Assert(get(c, a, fmt.Sprintf("/v1/proof/%d", i), &res), qt.Equals, http.StatusOK)
		c.Assert(res.Siblings, qt.HasLen, state.Depth)
		c.Assert(res.Indices, qt.HasLen, state.Depth)
		path := &state.MerklePath{}
		for l := range state.Depth {
			path.Siblings[l], err = wire.HexToFr(res.Siblings[l])
			c.Assert(err, qt.IsNil)
			path.IsRight[l] = res.Indices[l]
		}
		c.Assert(state.VerifyPath(leaves[i], path, root), qt.IsTrue)
		c.Assert(path.Index(), qt.Equals, uint64(i))
	}

	var apiErr map[string]any
	c.Assert(get(c, a, "/v1/proof/5", &apiErr), qt.Equals, http.StatusNotFound)
	c.Assert(apiErr["code"], qt.Equals, float64(ErrIndexOutOfBounds.Code))
	c.Assert(get(c, a, "/v1/proof/abc", &apiErr), qt.Equals, http.StatusBadRequest)
	c.Assert(apiErr["code"], qt.Equals, float64(ErrMalformedIndex.Code))
	c.Assert(get(c, a, "/v1/proof/-1", nil), qt.Equals, http.StatusBadRequest)
}

func TestLeaf(t *testing.T) {
	c := qt.New(t)
	a, leaves := newTestAPI(t, 4)

	var res Leaf
	c.Assert(get(c, a, "/v1/leaf/"+wire.FrToHex(leaves[2]), &res), qt.Equals, http.StatusOK)
	c.Assert(res, qt.DeepEquals, Leaf{Index: 2, BlockHeight: 12})
	// the prefix is optional
	c.Assert(get(c, a, "/v1/leaf/"+wire.FrToRawHex(leaves[3]), &res), qt.Equals, http.StatusOK)
	c.Assert(res.Index, qt.Equals, uint64(3))

	var apiErr map[string]any
	unknown := util.RandomFieldElement()
	c.Assert(get(c, a, "/v1/leaf/"+wire.FrToHex(unknown), &apiErr), qt.Equals, http.StatusNotFound)
	c.Assert(apiErr["code"], qt.Equals, float64(ErrCommitmentNotFound.Code))
	c.Assert(get(c, a, "/v1/leaf/0xzz", &apiErr), qt.Equals, http.StatusBadRequest)
	c.Assert(apiErr["code"], qt.Equals, float64(ErrMalformedCommitment.Code))
	c.Assert(get(c, a, "/v1/leaf/0x"+strings.Repeat("ff", 33), nil), qt.Equals, http.StatusBadRequest)
}

func TestLeaves(t *testing.T) {
	c := qt.New(t)
	a, _ := newTestAPI(t, 0)
	var res Leaves
	c.Assert(get(c, a, LeavesEndpoint, &res), qt.Equals, http.StatusOK)
	c.Assert(res.Leaves, qt.HasLen, 0)

	a, leaves := newTestAPI(t, 6)
	c.Assert(get(c, a, LeavesEndpoint, &res), qt.Equals, http.StatusOK)
	c.Assert(res.Leaves, qt.HasLen, 6)
	got, err := wire.DecodeFrs(res.Leaves)
	c.Assert(err, qt.IsNil)
	for i := range leaves {
		c.Assert(got[i].Equal(&leaves[i]), qt.IsTrue)
	}
}

func TestNotFoundAndMetrics(t *testing.T) {
	c := qt.New(t)
	a, _ := newTestAPI(t, 0)
	c.Assert(get(c, a, "/v1/nothing", nil), qt.Equals, http.StatusNotFound)

	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, MetricsEndpoint, nil))
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(rec.Body.String(), qt.Contains, "zknotes_indexer_leaves")
}
