package circuits

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

var (
	dummyPath       = "dummy.key"
	dummyKeyContent = []byte("dummy content")
)

func testDummyKeyServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, dummyPath, time.Now(), bytes.NewReader(dummyKeyContent))
	}))
}

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "zknotes-artifacts-test")
	if err != nil {
		panic(err)
	}
	BaseDir = dir
	code := m.Run()
	if err := os.RemoveAll(BaseDir); err != nil {
		panic(err)
	}
	os.Exit(code)
}

func TestLoadKey(t *testing.T) {
	c := qt.New(t)
	server := testDummyKeyServer()
	defer server.Close()
	expectedHash := sha256.Sum256(dummyKeyContent)
	remoteURL, err := url.JoinPath(server.URL, dummyPath)
	c.Assert(err, qt.IsNil)
	dummyKey := &Artifact{
		RemoteURL: remoteURL,
		Hash:      expectedHash[:],
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// not cached yet, downloaded
	c.Assert(dummyKey.Load(ctx), qt.IsNil)
	c.Assert([]byte(dummyKey.Content), qt.DeepEquals, dummyKeyContent)
	// cached
	dummyKey.Content = nil
	dummyKey.RemoteURL = ""
	c.Assert(dummyKey.Load(ctx), qt.IsNil)
	c.Assert([]byte(dummyKey.Content), qt.DeepEquals, dummyKeyContent)
	// wrong hash
	dummyKey.Content = nil
	dummyKey.RemoteURL = remoteURL
	dummyKey.Hash = []byte("wrong hash")
	c.Assert(dummyKey.Load(ctx), qt.IsNotNil)
}

func TestLoadMissing(t *testing.T) {
	c := qt.New(t)
	h := sha256.Sum256([]byte("never stored"))
	a := &Artifact{Hash: h[:]}
	err := a.Load(context.Background())
	c.Assert(errors.Is(err, os.ErrNotExist), qt.IsTrue, qt.Commentf("%v", err))

	c.Assert((&Artifact{}).Load(context.Background()), qt.IsNotNil)
}

func TestStoreArtifacts(t *testing.T) {
	c := qt.New(t)
	ccs := NewArtifact([]byte("constraint system"))
	pk := NewArtifact([]byte("proving key"))
	vk := NewArtifact([]byte("verifying key"))
	c.Assert(NewCircuitArtifacts(ccs, pk, vk).StoreAll(), qt.IsNil)

	ccsHash, pkHash, vkHash := NewCircuitArtifacts(ccs, pk, vk).Hashes()
	loaded := NewCircuitArtifacts(
		&Artifact{Hash: ccsHash},
		&Artifact{Hash: pkHash},
		&Artifact{Hash: vkHash},
	)
	c.Assert(loaded.LoadAll(context.Background()), qt.IsNil)
	c.Assert([]byte(loaded.CircuitDefinition()), qt.DeepEquals, []byte("constraint system"))
	c.Assert([]byte(loaded.ProvingKey()), qt.DeepEquals, []byte("proving key"))
	c.Assert([]byte(loaded.VerifyingKey()), qt.DeepEquals, []byte("verifying key"))

	// a corrupted cache entry is rejected
	path := filepath.Join(BaseDir, hex.EncodeToString(vkHash))
	c.Assert(os.WriteFile(path, []byte("tampered"), 0o644), qt.IsNil)
	c.Assert((&Artifact{Hash: vkHash}).Load(context.Background()), qt.IsNotNil)

	// a declared hash must match the content
	bad := &Artifact{Hash: ccsHash, Content: []byte("other")}
	c.Assert(bad.Store(), qt.IsNotNil)
	c.Assert((&Artifact{}).Store(), qt.IsNotNil)
}

func TestRemoteArtifact(t *testing.T) {
	c := qt.New(t)
	server := testDummyKeyServer()
	defer server.Close()
	prev := RemoteURL
	defer func() { RemoteURL = prev }()

	h := sha256.Sum256(dummyKeyContent)
	RemoteURL = ""
	a, err := RemoteArtifact(h[:])
	c.Assert(err, qt.IsNil)
	c.Assert(a.RemoteURL, qt.Equals, "")
	_, err = FetchRemote(context.Background(), dummyPath)
	c.Assert(err, qt.IsNotNil)

	RemoteURL = server.URL
	a, err = RemoteArtifact(h[:])
	c.Assert(err, qt.IsNil)
	c.Assert(a.RemoteURL, qt.Equals, server.URL+"/"+hex.EncodeToString(h[:]))

	data, err := FetchRemote(context.Background(), dummyPath)
	c.Assert(err, qt.IsNil)
	c.Assert(data, qt.DeepEquals, dummyKeyContent)

	missing := httptest.NewServer(http.NotFoundHandler())
	defer missing.Close()
	RemoteURL = missing.URL
	_, err = FetchRemote(context.Background(), dummyPath)
	c.Assert(errors.Is(err, os.ErrNotExist), qt.IsTrue, qt.Commentf("%v", err))
}
