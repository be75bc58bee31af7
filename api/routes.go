package api

const (
	// HealthEndpoint is the endpoint for checking the API status
	HealthEndpoint = "/v1/health"
	// RootEndpoint returns the current commitment tree root
	RootEndpoint = "/v1/root"
	// ProofEndpoint returns the Merkle path of the leaf at the given index
	ProofURLParam = "index"
	ProofEndpoint = "/v1/proof/{" + ProofURLParam + "}"
	// LeafEndpoint returns the index and ledger height of a commitment
	LeafURLParam = "commitment"
	LeafEndpoint = "/v1/leaf/{" + LeafURLParam + "}"
	// LeavesEndpoint returns every leaf in insertion order
	LeavesEndpoint = "/v1/leaves"
	// MetricsEndpoint serves the prometheus metrics
	MetricsEndpoint = "/metrics"
)
