package config

const (
	// DefaultSetupSeed is the label every party feeds the deterministic
	// Groth16 setup with, so the ledger, the wallets and the indexer derive
	// the same keys without exchanging them.
	DefaultSetupSeed = "zknotes/insecure-setup/v1"
	// VerifyingKeyFile is the name pattern of the JSON verifying key written
	// by the keys command into the artifacts directory.
	VerifyingKeyFile = "%s.vk.json"
)

// CircuitSeed returns the setup seed of one circuit, derived from the shared
// seed label.
func CircuitSeed(seed, circuit string) []byte {
	return []byte(seed + "/" + circuit)
}
