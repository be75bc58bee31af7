package circuits

// The circuits package contains the zkSNARK circuits of the shielded notes
// pool and the local cache for their keys. Every circuit is compiled to R1CS
// over the BLS12-381 scalar field and proven with Groth16. Notes are
// committed with Poseidon and stored in an append-only Merkle tree of depth
// 20, so the same gadgets (circuits/gadgets) are shared by all of them.
//
// +------------+  public: old root, nullifier,
// |  Transfer  |          out commitment 0, out commitment 1
// +------------+  spends one note, creates two, conserves value and tag
//
// +------------+
// | Ownership  |  public: owner hash          Hash(sk) == owner hash
// +------------+
//
// +------------+
// |  Preimage  |  public: hash                Hash(x) == hash
// +------------+
//
// +------------+
// | Membership |  public: root, commitment    leaf is in the tree
// +------------+
//
// +------------+
// | RangeProof |  public: min, max, commit    min <= x <= max
// +------------+
//
// Keys are produced by the prover package and cached by content hash under
// BaseDir, see Artifact. When RemoteURL is set, missing keys are downloaded
// from an operator that publishes its BaseDir before any setup is run.
