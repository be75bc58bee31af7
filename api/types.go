package api

// Health is the response of the health endpoint.
type Health struct {
	Status string `json:"status"`
}

// Root is the current commitment tree root as 0x prefixed hex.
type Root struct {
	Root string `json:"root"`
}

// MerkleProof is the authentication path of a leaf, from the leaf level up.
// Indices[l] is true when the node at level l is the right child.
type MerkleProof struct {
	Siblings []string `json:"siblings"`
	Indices  []bool   `json:"indices"`
}

// Leaf locates a commitment in the tree.
type Leaf struct {
	Index       uint64 `json:"index"`
	BlockHeight uint64 `json:"block_height"`
}

// Leaves lists every commitment of the tree in insertion order.
type Leaves struct {
	Leaves []string `json:"leaves"`
}
