// Package client is the HTTP client of the indexer API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/vocdoni/zknotes/api"
	"github.com/vocdoni/zknotes/log"
	"github.com/vocdoni/zknotes/state"
	"github.com/vocdoni/zknotes/wire"
)

const (
	// HTTPGET is the method string used for calling Request()
	HTTPGET = http.MethodGet
	// HTTPPOST is the method string used for calling Request()
	HTTPPOST = http.MethodPost

	errCodeNot200 = "API error"

	// DefaultRetries this enables Request() to handle the situation where the server connection fails
	DefaultRetries = 3
	// DefaultTimeout is the default timeout for the HTTP client
	DefaultTimeout = 10 * time.Second
	// retryDelay is the wait between two attempts of a failed request.
	retryDelay = 500 * time.Millisecond
)

// ErrCollaborator is wrapped by every failure to reach the indexer or to
// make sense of its answer.
var ErrCollaborator = errors.New("indexer collaborator failure")

// HTTPclient is the indexer API HTTP client.
type HTTPclient struct {
	c       *http.Client
	host    *url.URL
	retries int
}

// New returns a client for the indexer at host and checks it is healthy.
func New(host string) (*HTTPclient, error) {
	hostURL, err := url.Parse(host)
	if err != nil {
		return nil, err
	}

	tr := &http.Transport{
		IdleConnTimeout:    DefaultTimeout,
		DisableCompression: false,
		WriteBufferSize:    1 * 1024 * 1024, // 1 MiB
		ReadBufferSize:     1 * 1024 * 1024, // 1 MiB
	}
	c := &HTTPclient{
		c:       &http.Client{Transport: tr, Timeout: DefaultTimeout},
		host:    hostURL,
		retries: DefaultRetries,
	}
	log.Debugw("http client created", "host", hostURL.String())
	health := &api.Health{}
	if err := c.getJSON(context.Background(), health, api.HealthEndpoint); err != nil {
		return nil, err
	}
	if health.Status != "ok" {
		return nil, fmt.Errorf("%w: indexer status %q", ErrCollaborator, health.Status)
	}
	return c, nil
}

// SetRetries configures the number of retries for the HTTP client.
func (c *HTTPclient) SetRetries(n int) {
	c.retries = max(n, 1)
}

// SetTimeout configures the timeout for the HTTP client.
func (c *HTTPclient) SetTimeout(d time.Duration) {
	c.c.Timeout = d
	if tr, ok := c.c.Transport.(*http.Transport); ok {
		tr.ResponseHeaderTimeout = d
	}
}

// Root returns the current root of the indexed tree.
func (c *HTTPclient) Root(ctx context.Context) (fr.Element, error) {
	res := &api.Root{}
	if err := c.getJSON(ctx, res, api.RootEndpoint); err != nil {
		return fr.Element{}, err
	}
	root, err := wire.HexToFr(res.Root)
	if err != nil {
		return fr.Element{}, fmt.Errorf("%w: root: %w", ErrCollaborator, err)
	}
	return root, nil
}

// Proof returns the authentication path of the leaf at index.
func (c *HTTPclient) Proof(ctx context.Context, index uint64) (*state.MerklePath, error) {
	res := &api.MerkleProof{}
	if err := c.getJSON(ctx, res, "v1", "proof", strconv.FormatUint(index, 10)); err != nil {
		return nil, err
	}
	if len(res.Siblings) != state.Depth || len(res.Indices) != state.Depth {
		return nil, fmt.Errorf("%w: path of %d siblings and %d indices", ErrCollaborator, len(res.Siblings), len(res.Indices))
	}
	p := &state.MerklePath{}
	for l := range state.Depth {
		s, err := wire.HexToFr(res.Siblings[l])
		if err != nil {
			return nil, fmt.Errorf("%w: sibling %d: %w", ErrCollaborator, l, err)
		}
		p.Siblings[l] = s
		p.IsRight[l] = res.Indices[l]
	}
	return p, nil
}

// Leaf looks a commitment up. found is false when the indexer does not know
// it yet.
func (c *HTTPclient) Leaf(ctx context.Context, cm fr.Element) (leaf *api.Leaf, found bool, err error) {
	data, status, err := c.Request(ctx, HTTPGET, nil, nil, "v1", "leaf", wire.FrToHex(cm))
	if err != nil {
		return nil, false, err
	}
	if status == http.StatusNotFound {
		return nil, false, nil
	}
	leaf = &api.Leaf{}
	if err := decode(data, status, leaf); err != nil {
		return nil, false, err
	}
	return leaf, true, nil
}

// Leaves returns every indexed commitment in insertion order.
func (c *HTTPclient) Leaves(ctx context.Context) ([]fr.Element, error) {
	res := &api.Leaves{}
	if err := c.getJSON(ctx, res, api.LeavesEndpoint); err != nil {
		return nil, err
	}
	leaves, err := wire.DecodeFrs(res.Leaves)
	if err != nil {
		return nil, fmt.Errorf("%w: leaves: %w", ErrCollaborator, err)
	}
	return leaves, nil
}

func (c *HTTPclient) getJSON(ctx context.Context, out any, urlPath ...string) error {
	data, status, err := c.Request(ctx, HTTPGET, nil, nil, urlPath...)
	if err != nil {
		return err
	}
	return decode(data, status, out)
}

func decode(data []byte, status int, out any) error {
	if status != http.StatusOK {
		return fmt.Errorf("%w: %s: %d (%s)", ErrCollaborator, errCodeNot200, status, bytes.TrimSpace(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrCollaborator, err)
	}
	return nil
}

// Request performs a `method` type raw request to the endpoint specified in urlPath parameter.
// Method is either GET or POST. If POST, a JSON struct should be attached.  Returns the response,
// the status code and an error. Connection failures are retried and wrap ErrCollaborator.
//
// Supports query parameters via `params` slice. If the slice is not empty, it should contain pairs of strings;
// the first element of each pair is the key, and the second element is the value.
func (c *HTTPclient) Request(ctx context.Context, method string, jsonBody any, params []string, urlPath ...string) ([]byte, int, error) {
	var (
		body []byte
		err  error
	)

	// Marshal the JSON body if provided.
	if jsonBody != nil {
		body, err = json.Marshal(jsonBody)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal JSON: %w", err)
		}
	}

	u := *c.host
	u.Path = path.Join(u.Path, path.Join(urlPath...))

	// Expecting even-length slice: [key1, val1, key2, val2, ...]
	if len(params) > 0 {
		values := url.Values{}
		for i := 0; i < len(params)-1; i += 2 {
			values.Set(params[i], params[i+1])
		}
		u.RawQuery = values.Encode()
	}

	headers := http.Header{}
	headers.Set("Accept", "application/json")
	if jsonBody != nil {
		headers.Set("Content-Type", "application/json")
	}

	log.Debugw("http client request", "type", method, "url", u.String())

	var resp *http.Response
	for i := 1; i <= c.retries; i++ {
		// Create a fresh request each attempt
		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}
		req, rerr := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
		if rerr != nil {
			return nil, 0, fmt.Errorf("failed to create request: %w", rerr)
		}
		req.Header = headers

		resp, err = c.c.Do(req)
		if err == nil {
			break
		}
		log.Warnw("http request failed", "error", err.Error(), "attempt", i, "retries", c.retries)
		if i == c.retries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, 0, fmt.Errorf("%w: %w", ErrCollaborator, ctx.Err())
		case <-time.After(retryDelay):
		}
	}
	if err != nil {
		return nil, 0, fmt.Errorf("%w: http request failed after %d attempts: %w", ErrCollaborator, c.retries, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warnw("failed to close response body", "error", err)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: failed to read response body: %w", ErrCollaborator, err)
	}
	return data, resp.StatusCode, nil
}
