package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/oxenhq/oxen-core/internal/hashing"
	"github.com/oxenhq/oxen-core/internal/oxerr"
)

// HTTPRemote is the production RemoteClient: it drives the nine
// endpoints of the wire protocol over HTTPS, retrying transient
// failures with exponential back-off.
type HTTPRemote struct {
	BaseURL   string // e.g. https://hub.oxen.ai
	Namespace string
	Name      string
	AuthToken string // OXEN_AUTH_TOKEN, sent as a bearer token

	HTTPClient *http.Client
}

// NewHTTPRemote builds an HTTPRemote with a default http.Client.
func NewHTTPRemote(baseURL, namespace, name, authToken string) *HTTPRemote {
	return &HTTPRemote{
		BaseURL: baseURL, Namespace: namespace, Name: name, AuthToken: authToken,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (h *HTTPRemote) repoPath(suffix string) string {
	return fmt.Sprintf("%s/repos/%s/%s%s", h.BaseURL, h.Namespace, h.Name, suffix)
}

// retryBackoff returns the exponential back-off schedule used for every
// call: a handful of quick retries bounded by a short max elapsed time,
// since transfer operations are themselves retried at a higher level
// (push/fetch resuming from where they left off).
func retryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return backoff.WithContext(b, ctx)
}

func (h *HTTPRemote) do(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = io.ReadAll(body)
		if err != nil {
			return nil, err
		}
	}

	var resp *http.Response
	op := func() error {
		var reqBody io.Reader
		if bodyBytes != nil {
			reqBody = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
		if err != nil {
			return backoff.Permanent(err)
		}
		if h.AuthToken != "" {
			req.Header.Set("Authorization", "Bearer "+h.AuthToken)
		}
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/octet-stream")
		}

		r, err := h.HTTPClient.Do(req)
		if err != nil {
			return err // network error: retryable
		}
		if r.StatusCode >= 500 {
			r.Body.Close()
			return fmt.Errorf("transfer: %s %s: server error %d", method, url, r.StatusCode)
		}
		resp = r
		return nil
	}

	if err := backoff.Retry(op, retryBackoff(ctx)); err != nil {
		return nil, classifyHTTPErr(err)
	}
	return resp, nil
}

func classifyHTTPErr(err error) error {
	return oxerr.Wrap(oxerr.KindNetwork, "http request failed", err)
}

func checkStatus(resp *http.Response, want int) error {
	if resp.StatusCode == want {
		return nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	switch resp.StatusCode {
	case http.StatusNotFound:
		return oxerr.New(oxerr.KindNotFound, string(body))
	case http.StatusConflict:
		return ErrNonFastForward
	case http.StatusUnauthorized, http.StatusForbidden:
		return oxerr.New(oxerr.KindAuthRequired, string(body))
	default:
		return oxerr.New(oxerr.KindNetwork, fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, body))
	}
}

func (h *HTTPRemote) RepoInfo(ctx context.Context) (RepoInfo, error) {
	resp, err := h.do(ctx, http.MethodGet, h.repoPath(""), nil)
	if err != nil {
		return RepoInfo{}, err
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return RepoInfo{}, err
	}
	defer resp.Body.Close()
	var out struct {
		MinVersion    int    `json:"min_version"`
		DefaultBranch string `json:"default_branch"`
		Empty         bool   `json:"empty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return RepoInfo{}, oxerr.Wrap(oxerr.KindNetwork, "decode repo info", err)
	}
	return RepoInfo{MinVersion: out.MinVersion, DefaultBranch: out.DefaultBranch, Empty: out.Empty}, nil
}

func (h *HTTPRemote) GetBranch(ctx context.Context, branch string) (hashing.Hash, bool, error) {
	resp, err := h.do(ctx, http.MethodGet, h.repoPath("/branches/"+branch), nil)
	if err != nil {
		return hashing.Hash{}, false, err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return hashing.Hash{}, false, nil
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return hashing.Hash{}, false, err
	}
	defer resp.Body.Close()
	var out struct {
		Hash string `json:"hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return hashing.Hash{}, false, oxerr.Wrap(oxerr.KindNetwork, "decode branch", err)
	}
	hash, err := hashing.Parse(out.Hash)
	if err != nil {
		return hashing.Hash{}, false, oxerr.Wrap(oxerr.KindNetwork, "parse branch hash", err)
	}
	return hash, true, nil
}

func (h *HTTPRemote) SetBranch(ctx context.Context, branch string, expected, newHash hashing.Hash) error {
	body, _ := json.Marshal(struct {
		Expected string `json:"expected"`
		New      string `json:"new"`
	}{Expected: expected.String(), New: newHash.String()})

	resp, err := h.do(ctx, http.MethodPut, h.repoPath("/branches/"+branch), bytes.NewReader(body))
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusOK)
}

func (h *HTTPRemote) MissingNodes(ctx context.Context, hashes []hashing.Hash) ([]hashing.Hash, error) {
	in := make([]string, len(hashes))
	for i, hh := range hashes {
		in[i] = hh.String()
	}
	body, _ := json.Marshal(struct {
		Hashes []string `json:"hashes"`
	}{Hashes: in})

	resp, err := h.do(ctx, http.MethodPost, h.repoPath("/nodes/missing"), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out struct {
		Missing []string `json:"missing"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, oxerr.Wrap(oxerr.KindNetwork, "decode missing nodes", err)
	}
	result := make([]hashing.Hash, len(out.Missing))
	for i, s := range out.Missing {
		hh, err := hashing.Parse(s)
		if err != nil {
			return nil, oxerr.Wrap(oxerr.KindNetwork, "parse missing hash", err)
		}
		result[i] = hh
	}
	return result, nil
}

func (h *HTTPRemote) PutNode(ctx context.Context, hh hashing.Hash, data []byte) error {
	resp, err := h.do(ctx, http.MethodPost, h.repoPath("/nodes/"+hh.String()), bytes.NewReader(data))
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusCreated)
}

func (h *HTTPRemote) GetNode(ctx context.Context, hh hashing.Hash) ([]byte, error) {
	resp, err := h.do(ctx, http.MethodGet, h.repoPath("/nodes/"+hh.String()), nil)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (h *HTTPRemote) HasBlob(ctx context.Context, hh hashing.Hash) (bool, error) {
	resp, err := h.do(ctx, http.MethodGet, h.repoPath("/blobs/"+hh.String()), nil)
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, checkStatus(resp, http.StatusOK)
	}
}

func (h *HTTPRemote) PutBlobPart(ctx context.Context, hh hashing.Hash, partIndex int, data []byte) (string, error) {
	path := h.repoPath("/blobs/" + hh.String() + "/parts/" + strconv.Itoa(partIndex))
	resp, err := h.do(ctx, http.MethodPost, path, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return "", err
	}
	defer resp.Body.Close()
	etag := resp.Header.Get("ETag")
	if etag == "" {
		return "", oxerr.New(oxerr.KindNetwork, "server did not return an ETag for uploaded part")
	}
	return etag, nil
}

func (h *HTTPRemote) CompleteBlob(ctx context.Context, hh hashing.Hash, etags []string) error {
	body, _ := json.Marshal(struct {
		ETags []string `json:"etags"`
	}{ETags: etags})
	resp, err := h.do(ctx, http.MethodPost, h.repoPath("/blobs/"+hh.String()+"/complete"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusOK)
}

func (h *HTTPRemote) GetBlob(ctx context.Context, hh hashing.Hash) ([]byte, error) {
	resp, err := h.do(ctx, http.MethodGet, h.repoPath("/blobs/"+hh.String()), nil)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
