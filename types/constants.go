package types

const (
	// MerkleTreeDepth is the number of levels of the note commitment tree.
	MerkleTreeDepth = 20
	// MerkleTreeCapacity is the number of leaves the commitment tree can hold.
	MerkleTreeCapacity = 1 << MerkleTreeDepth
	// ValueBits is the bit size of a note value.
	ValueBits = 64
	// RootHistorySize is the number of recent roots a ledger accepts as the
	// old root of a transfer.
	RootHistorySize = 100
)
