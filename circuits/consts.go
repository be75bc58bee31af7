package circuits

import "github.com/vocdoni/zknotes/types"

// used across different circuits
const (
	MerkleProofLevels = types.MerkleTreeDepth
	ValueBits         = types.ValueBits
	// NbTransferPublicInputs is the number of public inputs of the transfer
	// circuit: old root, nullifier and the two output commitments.
	NbTransferPublicInputs = 4
)
