package circuits

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vocdoni/zknotes/log"
	"github.com/vocdoni/zknotes/types"
)

// CheckHashes determines if the hashes of the artifacts are checked when they
// are loaded or downloaded. It is disabled by setting ZKNOTES_CHECK_HASHES to
// false or 0.
var CheckHashes = true

// BaseDir is the path of the artifact cache. Artifacts not found there are
// downloaded (when a remote URL is known) or generated and stored. Defaults
// to ZKNOTES_ARTIFACTS_DIR or ~/.cache/zknotes-artifacts.
var BaseDir string

// RemoteURL is the base URL under which an operator publishes a copy of its
// BaseDir: artifacts named by their hex hash and the key index files. Empty
// disables downloads. Defaults to ZKNOTES_ARTIFACTS_URL.
var RemoteURL string

// maxRemoteFileSize bounds the small files fetched with FetchRemote.
const maxRemoteFileSize = 1 << 20

func init() {
	if checkHashes := os.Getenv("ZKNOTES_CHECK_HASHES"); checkHashes != "" {
		if strings.ToLower(checkHashes) == "false" || checkHashes == "0" {
			CheckHashes = false
		}
	}
	RemoteURL = os.Getenv("ZKNOTES_ARTIFACTS_URL")
	if dir := os.Getenv("ZKNOTES_ARTIFACTS_DIR"); dir != "" {
		BaseDir = dir
	} else {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			log.Warnf("unable to access user home directory, using temporary directory: %v", err)
			BaseDir = filepath.Join(os.TempDir(), "zknotes-artifacts")
		} else {
			BaseDir = filepath.Join(home, ".cache", "zknotes-artifacts")
		}
	}
}

// Artifact holds the content of a key or constraint system file, the sha256
// hash that names it in the cache and, optionally, a remote URL to fetch it
// from.
type Artifact struct {
	RemoteURL string
	Hash      types.HexBytes
	Content   types.HexBytes
}

// NewArtifact returns an already loaded artifact for the given content.
func NewArtifact(content []byte) *Artifact {
	h := sha256.Sum256(content)
	return &Artifact{Hash: h[:], Content: content}
}

// Load fills the artifact content from the local cache. If the artifact is
// not cached and a remote URL is set, it is downloaded first. The content
// hash is checked unless CheckHashes is false.
func (k *Artifact) Load(ctx context.Context) error {
	if len(k.Content) != 0 {
		return nil
	}
	if len(k.Hash) == 0 {
		return fmt.Errorf("artifact hash not provided")
	}
	content, err := load(k.Hash)
	if err != nil {
		return err
	}
	if content == nil {
		if k.RemoteURL == "" {
			return fmt.Errorf("artifact %x not found in %s: %w", k.Hash, BaseDir, os.ErrNotExist)
		}
		if err := k.Download(ctx); err != nil {
			return err
		}
		if content, err = load(k.Hash); err != nil {
			return err
		}
		if content == nil {
			return fmt.Errorf("no content found after download")
		}
	}
	k.Content = content
	return nil
}

// RemoteArtifact returns an artifact to be read from the cache by hash, with
// its remote URL under RemoteURL set when downloads are enabled.
func RemoteArtifact(hash []byte) (*Artifact, error) {
	a := &Artifact{Hash: hash}
	if RemoteURL == "" {
		return a, nil
	}
	u, err := url.JoinPath(RemoteURL, hex.EncodeToString(hash))
	if err != nil {
		return nil, fmt.Errorf("invalid artifacts url: %w", err)
	}
	a.RemoteURL = u
	return a, nil
}

// FetchRemote downloads a small file published under RemoteURL. A missing
// file returns an error wrapping os.ErrNotExist.
func FetchRemote(ctx context.Context, name string) ([]byte, error) {
	if RemoteURL == "" {
		return nil, fmt.Errorf("artifacts url not set")
	}
	u, err := url.JoinPath(RemoteURL, name)
	if err != nil {
		return nil, fmt.Errorf("invalid artifacts url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating the file request: %w", err)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error performing the request: %w", err)
	}
	defer res.Body.Close()
	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", u, os.ErrNotExist)
	default:
		return nil, fmt.Errorf("error downloading file %s: http status: %d", u, res.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(res.Body, maxRemoteFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", u, err)
	}
	if len(data) > maxRemoteFileSize {
		return nil, fmt.Errorf("file %s larger than %d bytes", u, maxRemoteFileSize)
	}
	return data, nil
}

// Download fetches the artifact from its remote URL into the local cache.
func (k *Artifact) Download(ctx context.Context) error {
	if k.RemoteURL == "" {
		return fmt.Errorf("artifact not loaded and remote url not provided")
	}
	return downloadAndStore(ctx, k.Hash, k.RemoteURL)
}

// Store writes the artifact content to the local cache under its hash. The
// hash is computed if not set.
func (k *Artifact) Store() error {
	if len(k.Content) == 0 {
		return fmt.Errorf("artifact has no content")
	}
	h := sha256.Sum256(k.Content)
	if len(k.Hash) == 0 {
		k.Hash = h[:]
	} else if CheckHashes && !bytes.Equal(k.Hash, h[:]) {
		return fmt.Errorf("hash mismatch: expected %x, got %x", k.Hash, h)
	}
	if err := os.MkdirAll(BaseDir, 0o755); err != nil {
		return fmt.Errorf("error creating the base directory: %w", err)
	}
	path := filepath.Join(BaseDir, hex.EncodeToString(k.Hash))
	tmp := path + ".partial"
	if err := os.WriteFile(tmp, k.Content, 0o644); err != nil {
		return fmt.Errorf("error writing artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("error renaming file: %w", err)
	}
	log.Debugw("artifact stored", "hash", hex.EncodeToString(k.Hash), "size", len(k.Content))
	return nil
}

// CircuitArtifacts groups the artifacts of a circuit: constraint system,
// proving key and verifying key.
type CircuitArtifacts struct {
	circuitDefinition *Artifact
	provingKey        *Artifact
	verifyingKey      *Artifact
}

// NewCircuitArtifacts creates a new CircuitArtifacts with the artifacts
// provided.
func NewCircuitArtifacts(circuit, provingKey, verifyingKey *Artifact) *CircuitArtifacts {
	return &CircuitArtifacts{
		circuitDefinition: circuit,
		provingKey:        provingKey,
		verifyingKey:      verifyingKey,
	}
}

// LoadAll loads the circuit artifacts into memory, downloading the ones that
// have a remote URL and are not cached yet.
func (ca *CircuitArtifacts) LoadAll(ctx context.Context) error {
	if ca.circuitDefinition != nil {
		if err := ca.circuitDefinition.Load(ctx); err != nil {
			return fmt.Errorf("error loading circuit definition: %w", err)
		}
	}
	if ca.provingKey != nil {
		if err := ca.provingKey.Load(ctx); err != nil {
			return fmt.Errorf("error loading proving key: %w", err)
		}
	}
	if ca.verifyingKey != nil {
		if err := ca.verifyingKey.Load(ctx); err != nil {
			return fmt.Errorf("error loading verifying key: %w", err)
		}
	}
	return nil
}

// StoreAll writes every loaded artifact to the local cache.
func (ca *CircuitArtifacts) StoreAll() error {
	for name, a := range map[string]*Artifact{
		"circuit definition": ca.circuitDefinition,
		"proving key":        ca.provingKey,
		"verifying key":      ca.verifyingKey,
	} {
		if a == nil {
			continue
		}
		if err := a.Store(); err != nil {
			return fmt.Errorf("error storing %s: %w", name, err)
		}
	}
	return nil
}

// CircuitDefinition returns the content of the circuit definition, or nil if
// it is not loaded.
func (ca *CircuitArtifacts) CircuitDefinition() types.HexBytes {
	if ca.circuitDefinition == nil {
		return nil
	}
	return ca.circuitDefinition.Content
}

// ProvingKey returns the content of the proving key, or nil if it is not
// loaded.
func (ca *CircuitArtifacts) ProvingKey() types.HexBytes {
	if ca.provingKey == nil {
		return nil
	}
	return ca.provingKey.Content
}

// VerifyingKey returns the content of the verifying key, or nil if it is not
// loaded.
func (ca *CircuitArtifacts) VerifyingKey() types.HexBytes {
	if ca.verifyingKey == nil {
		return nil
	}
	return ca.verifyingKey.Content
}

// Hashes returns the cache hashes of the three artifacts.
func (ca *CircuitArtifacts) Hashes() (ccs, pk, vk types.HexBytes) {
	if ca.circuitDefinition != nil {
		ccs = ca.circuitDefinition.Hash
	}
	if ca.provingKey != nil {
		pk = ca.provingKey.Hash
	}
	if ca.verifyingKey != nil {
		vk = ca.verifyingKey.Hash
	}
	return ccs, pk, vk
}

func load(hash []byte) ([]byte, error) {
	path := filepath.Join(BaseDir, hex.EncodeToString(hash))
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("error reading file %s: %w", path, err)
	}
	if CheckHashes {
		fileHash := sha256.Sum256(content)
		if !bytes.Equal(fileHash[:], hash) {
			return nil, fmt.Errorf("hash mismatch for file %s: expected %x, got %x", path, hash, fileHash)
		}
	}
	return content, nil
}

// progressReader wraps an io.Reader and keeps track of the total bytes read.
type progressReader struct {
	reader        io.Reader
	total         atomic.Int64
	contentLength int64
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.total.Add(int64(n))
	return n, err
}

// downloadAndStore downloads a file from a URL into the local cache, resuming
// a previous partial download when the server supports ranges.
func downloadAndStore(ctx context.Context, expectedHash []byte, fileURL string) error {
	if _, err := url.Parse(fileURL); err != nil {
		return fmt.Errorf("error parsing the file URL provided: %w", err)
	}
	if err := os.MkdirAll(BaseDir, 0o755); err != nil {
		return fmt.Errorf("error creating the base directory: %w", err)
	}
	path := filepath.Join(BaseDir, hex.EncodeToString(expectedHash))
	partialPath := path + ".partial"

	var startByte int64
	if info, err := os.Stat(partialPath); err == nil {
		startByte = info.Size()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return fmt.Errorf("error creating the file request: %w", err)
	}
	if startByte > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", startByte))
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("error performing the request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusPartialContent {
		return fmt.Errorf("error downloading file %s: http status: %d", fileURL, res.StatusCode)
	}
	resuming := startByte > 0 && res.StatusCode == http.StatusPartialContent
	fileMode := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if resuming {
		fileMode = os.O_APPEND | os.O_WRONLY
	} else {
		startByte = 0
	}
	fd, err := os.OpenFile(partialPath, fileMode, 0o644)
	if err != nil {
		return fmt.Errorf("error opening artifact file: %w", err)
	}
	defer fd.Close()

	hasher := sha256.New()
	if resuming {
		existing, err := os.Open(partialPath)
		if err != nil {
			return fmt.Errorf("error reading partial download: %w", err)
		}
		_, err = io.Copy(hasher, existing)
		existing.Close()
		if err != nil {
			return fmt.Errorf("error hashing partial download: %w", err)
		}
	}
	pr := &progressReader{
		reader:        res.Body,
		contentLength: res.ContentLength + startByte,
	}
	mw := io.MultiWriter(fd, hasher)
	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(mw, pr)
		done <- err
	}()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
wait:
	for {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("error copying data to file: %w", err)
			}
			break wait
		case <-ticker.C:
			total := pr.total.Load() + startByte
			var percentage float64
			if pr.contentLength > 0 {
				percentage = float64(total) / float64(pr.contentLength) * 100
			}
			log.Debugw("download artifacts", "url", fileURL,
				"downloaded", fmt.Sprintf("%.2fMiB", float64(total)/(1024*1024)),
				"progress", fmt.Sprintf("%.2f%%", percentage))
		}
	}
	if CheckHashes {
		computedHash := hasher.Sum(nil)
		if !bytes.Equal(computedHash, expectedHash) {
			os.Remove(partialPath)
			return fmt.Errorf("hash mismatch: expected %x, got %x", expectedHash, computedHash)
		}
	}
	if err := os.Rename(partialPath, path); err != nil {
		return fmt.Errorf("error renaming file: %w", err)
	}
	return nil
}
