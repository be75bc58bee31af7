package prover

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/vocdoni/zknotes/circuits"
	"github.com/vocdoni/zknotes/log"
	"github.com/vocdoni/zknotes/types"
)

// Encode serializes the constraint system and both keys with the gnark
// binary encodings. Keys are written uncompressed, which is larger but
// faster to load.
func (k *Keys) Encode() (ccs, pk, vk []byte, err error) {
	var buf bytes.Buffer
	if _, err := k.CCS.WriteTo(&buf); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to write constraint system: %w", err)
	}
	ccs = bytes.Clone(buf.Bytes())
	buf.Reset()
	if _, err := k.PK.WriteRawTo(&buf); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to write proving key: %w", err)
	}
	pk = bytes.Clone(buf.Bytes())
	buf.Reset()
	if _, err := k.VK.WriteRawTo(&buf); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to write verifying key: %w", err)
	}
	vk = bytes.Clone(buf.Bytes())
	return ccs, pk, vk, nil
}

// Decode is the inverse of Encode.
func Decode(name string, ccsBytes, pkBytes, vkBytes []byte) (*Keys, error) {
	ccs := groth16.NewCS(Curve)
	if _, err := ccs.ReadFrom(bytes.NewReader(ccsBytes)); err != nil {
		return nil, fmt.Errorf("failed to read %s circuit definition: %w", name, err)
	}
	pk := groth16.NewProvingKey(Curve)
	if _, err := pk.ReadFrom(bytes.NewReader(pkBytes)); err != nil {
		return nil, fmt.Errorf("failed to read %s proving key: %w", name, err)
	}
	vk := groth16.NewVerifyingKey(Curve)
	if _, err := vk.ReadFrom(bytes.NewReader(vkBytes)); err != nil {
		return nil, fmt.Errorf("failed to read %s verifying key: %w", name, err)
	}
	return newKeys(name, ccs, pk, vk)
}

// Artifacts returns the encoded keys as cacheable artifacts.
func (k *Keys) Artifacts() (*circuits.CircuitArtifacts, error) {
	ccs, pk, vk, err := k.Encode()
	if err != nil {
		return nil, err
	}
	return circuits.NewCircuitArtifacts(
		circuits.NewArtifact(ccs),
		circuits.NewArtifact(pk),
		circuits.NewArtifact(vk),
	), nil
}

// FromArtifacts loads and decodes the keys of a circuit.
func FromArtifacts(ctx context.Context, name string, ca *circuits.CircuitArtifacts) (*Keys, error) {
	if err := ca.LoadAll(ctx); err != nil {
		return nil, fmt.Errorf("failed to load %s artifacts: %w", name, err)
	}
	return Decode(name, ca.CircuitDefinition(), ca.ProvingKey(), ca.VerifyingKey())
}

// keyIndex maps a circuit and setup seed to the hashes of its cached
// artifacts.
type keyIndex struct {
	Circuit      string         `json:"circuit"`
	CircuitID    string         `json:"circuitId"`
	Constraints  int            `json:"constraints"`
	Definition   types.HexBytes `json:"definition"`
	ProvingKey   types.HexBytes `json:"provingKey"`
	VerifyingKey types.HexBytes `json:"verifyingKey"`
}

func indexPath(name string, seed []byte) string {
	h := sha256.Sum256(seed)
	return filepath.Join(circuits.BaseDir, fmt.Sprintf("%s-%s.json", name, hex.EncodeToString(h[:8])))
}

// LoadOrSetup returns the deterministic keys of a circuit for the given
// seed. It tries, in order, the local artifact cache, the key index and
// artifacts published under circuits.RemoteURL, and finally
// InsecureDeterministicSetup, caching the result.
func LoadOrSetup(ctx context.Context, def circuits.Definition, seed []byte) (*Keys, error) {
	path := indexPath(def.Name, seed)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		keys, err := loadIndexed(ctx, def.Name, data)
		if err == nil {
			log.Debugw("keys loaded from cache", "circuit", def.Name, "circuitID", keys.CircuitID().String())
			return keys, nil
		}
		log.Warnw("cached keys unusable, running setup again", "circuit", def.Name, "error", err)
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read key index: %w", err)
	case circuits.RemoteURL != "":
		keys, err := fetchKeys(ctx, def.Name, path)
		if err == nil {
			return keys, nil
		}
		log.Warnw("remote keys unusable, running setup", "circuit", def.Name, "url", circuits.RemoteURL, "error", err)
	}

	keys, err := InsecureDeterministicSetup(def, seed)
	if err != nil {
		return nil, err
	}
	if err := keys.Store(path); err != nil {
		return nil, err
	}
	return keys, nil
}

// loadIndexed decodes a key index and loads the artifacts it names, from the
// cache or from circuits.RemoteURL.
func loadIndexed(ctx context.Context, name string, data []byte) (*Keys, error) {
	var idx keyIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("invalid key index: %w", err)
	}
	if idx.Circuit != name {
		return nil, fmt.Errorf("key index is for circuit %q, want %q", idx.Circuit, name)
	}
	var artifacts [3]*circuits.Artifact
	for i, h := range []types.HexBytes{idx.Definition, idx.ProvingKey, idx.VerifyingKey} {
		a, err := circuits.RemoteArtifact(h)
		if err != nil {
			return nil, err
		}
		artifacts[i] = a
	}
	keys, err := FromArtifacts(ctx, name, circuits.NewCircuitArtifacts(artifacts[0], artifacts[1], artifacts[2]))
	if err != nil {
		return nil, err
	}
	if id := keys.CircuitID().String(); idx.CircuitID != id {
		return nil, fmt.Errorf("key index declares circuit id %s, keys have %s", idx.CircuitID, id)
	}
	return keys, nil
}

// fetchKeys downloads the key index published for path and its artifacts,
// then writes the index to path so later runs load from the cache.
func fetchKeys(ctx context.Context, name, path string) (*Keys, error) {
	data, err := circuits.FetchRemote(ctx, filepath.Base(path))
	if err != nil {
		return nil, err
	}
	keys, err := loadIndexed(ctx, name, data)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write key index: %w", err)
	}
	log.Infow("keys downloaded", "circuit", name, "circuitID", keys.CircuitID().String(), "url", circuits.RemoteURL)
	return keys, nil
}

// Store writes the key artifacts to the cache and the index file at path.
func (k *Keys) Store(path string) error {
	ca, err := k.Artifacts()
	if err != nil {
		return err
	}
	if err := ca.StoreAll(); err != nil {
		return err
	}
	ccsHash, pkHash, vkHash := ca.Hashes()
	data, err := json.MarshalIndent(&keyIndex{
		Circuit:      k.Name,
		CircuitID:    k.CircuitID().String(),
		Constraints:  k.ConstraintCount(),
		Definition:   ccsHash,
		ProvingKey:   pkHash,
		VerifyingKey: vkHash,
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write key index: %w", err)
	}
	log.Infow("keys stored", "circuit", k.Name, "index", path)
	return nil
}
