package state

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/vocdoni/zknotes/crypto/hash/poseidon"
	"github.com/vocdoni/zknotes/types"
)

const (
	// Depth is the number of levels between a leaf and the root.
	Depth = types.MerkleTreeDepth
	// Capacity is the maximum number of leaves.
	Capacity = types.MerkleTreeCapacity
)

var (
	// ErrTreeFull is returned when inserting into a tree holding Capacity
	// leaves.
	ErrTreeFull = errors.New("commitment tree is full")
	// ErrIndexOutOfBounds is returned when asking for a leaf that does not
	// exist.
	ErrIndexOutOfBounds = errors.New("leaf index out of bounds")
)

var zeroHashes = sync.OnceValue(func() [Depth + 1]fr.Element {
	var z [Depth + 1]fr.Element
	for i := 1; i <= Depth; i++ {
		z[i] = poseidon.Hash2(z[i-1], z[i-1])
	}
	return z
})

// Zero returns the root of an empty subtree of the given height: zero(0) is
// 0 and zero(i) is Hash(zero(i-1), zero(i-1)).
func Zero(level int) fr.Element {
	return zeroHashes()[level]
}

// MerklePath is the authentication path of a leaf, from the leaf level up.
// IsRight[l] is set when the node at level l is the right child.
type MerklePath struct {
	Siblings [Depth]fr.Element
	IsRight  [Depth]bool
}

// Root hashes leaf up through the path.
func (p *MerklePath) Root(leaf fr.Element) fr.Element {
	cur := leaf
	for l := range Depth {
		if p.IsRight[l] {
			cur = poseidon.Hash2(p.Siblings[l], cur)
		} else {
			cur = poseidon.Hash2(cur, p.Siblings[l])
		}
	}
	return cur
}

// Index returns the leaf index encoded by the path directions.
func (p *MerklePath) Index() uint64 {
	var i uint64
	for l := range Depth {
		if p.IsRight[l] {
			i |= 1 << l
		}
	}
	return i
}

// VerifyPath reports whether leaf hashes up through path to root.
func VerifyPath(leaf fr.Element, path *MerklePath, root fr.Element) bool {
	got := path.Root(leaf)
	return got.Equal(&root)
}

// Tree is the append-only commitment tree. It keeps every filled node, so
// insertion costs Depth hashes and paths are read without hashing. Tree is
// not safe for concurrent use; State wraps it with a lock.
type Tree struct {
	// nodes[l] holds the filled nodes of level l, nodes[0] being the leaves
	nodes [Depth + 1][]fr.Element
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{}
}

// Len returns the number of leaves.
func (t *Tree) Len() uint64 {
	return uint64(len(t.nodes[0]))
}

// Insert appends a leaf and returns its index.
func (t *Tree) Insert(leaf fr.Element) (uint64, error) {
	index := t.Len()
	if index >= Capacity {
		return 0, ErrTreeFull
	}
	t.nodes[0] = append(t.nodes[0], leaf)
	cur := leaf
	i := index
	for l := range Depth {
		if i&1 == 1 {
			cur = poseidon.Hash2(t.nodes[l][i-1], cur)
		} else {
			cur = poseidon.Hash2(cur, Zero(l))
		}
		i >>= 1
		if i < uint64(len(t.nodes[l+1])) {
			t.nodes[l+1][i] = cur
		} else {
			t.nodes[l+1] = append(t.nodes[l+1], cur)
		}
	}
	return index, nil
}

// Clone returns a copy of the tree sharing no state with t.
func (t *Tree) Clone() *Tree {
	c := &Tree{}
	for l := range t.nodes {
		c.nodes[l] = slices.Clone(t.nodes[l])
	}
	return c
}

// Root returns the current root. The empty tree has root Zero(Depth).
func (t *Tree) Root() fr.Element {
	if len(t.nodes[Depth]) == 0 {
		return Zero(Depth)
	}
	return t.nodes[Depth][0]
}

// Leaf returns the leaf at index.
func (t *Tree) Leaf(index uint64) (fr.Element, error) {
	if index >= t.Len() {
		return fr.Element{}, ErrIndexOutOfBounds
	}
	return t.nodes[0][index], nil
}

// Leaves returns a copy of the leaves in insertion order.
func (t *Tree) Leaves() []fr.Element {
	out := make([]fr.Element, len(t.nodes[0]))
	copy(out, t.nodes[0])
	return out
}

// Path returns the authentication path of the leaf at index.
func (t *Tree) Path(index uint64) (*MerklePath, error) {
	if index >= t.Len() {
		return nil, fmt.Errorf("%w: %d >= %d", ErrIndexOutOfBounds, index, t.Len())
	}
	p := &MerklePath{}
	i := index
	for l := range Depth {
		sibling := i ^ 1
		if sibling < uint64(len(t.nodes[l])) {
			p.Siblings[l] = t.nodes[l][sibling]
		} else {
			p.Siblings[l] = Zero(l)
		}
		p.IsRight[l] = i&1 == 1
		i >>= 1
	}
	return p, nil
}

// ComputeRoot computes the root of a tree holding leaves, pairing adjacent
// nodes level by level and using the zero hash of the level for a missing
// right sibling. It does not keep intermediate nodes and is used to
// cross-check roots served by an indexer.
func ComputeRoot(leaves []fr.Element) (fr.Element, error) {
	if uint64(len(leaves)) > Capacity {
		return fr.Element{}, ErrTreeFull
	}
	level := leaves
	for l := range Depth {
		if len(level) == 0 {
			return Zero(Depth), nil
		}
		next := make([]fr.Element, (len(level)+1)/2)
		for i := range next {
			left := level[2*i]
			right := Zero(l)
			if 2*i+1 < len(level) {
				right = level[2*i+1]
			}
			next[i] = poseidon.Hash2(left, right)
		}
		level = next
	}
	if len(level) == 0 {
		return Zero(Depth), nil
	}
	return level[0], nil
}
