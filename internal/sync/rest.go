package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	stdsync "sync"
	"time"

	"corkboard/api/internal/board"
)

const defaultRequestTimeout = 10 * time.Second

// HeaderFunc supplies the headers for each request, typically the bearer
// token. It is called per request so credential rotation needs no adapter
// rebuild. A nil func sends no extra headers.
type HeaderFunc func() map[string]string

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Status int
	Code   string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server returned %d (%s)", e.Status, e.Code)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

// RESTAdapter maps the adapter contract 1:1 onto the HTTP surface.
type RESTAdapter struct {
	baseURL string
	client  *http.Client
	headers HeaderFunc

	mu      stdsync.Mutex
	timeout time.Duration
}

func NewRESTAdapter(baseURL string, headers HeaderFunc) *RESTAdapter {
	return &RESTAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		timeout: defaultRequestTimeout,
		headers: headers,
	}
}

// SetTimeout changes the per-request timeout. Zero restores the default.
// Safe to call while requests are in flight; they keep the timeout they
// started with.
func (a *RESTAdapter) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = defaultRequestTimeout
	}
	a.mu.Lock()
	a.timeout = d
	a.mu.Unlock()
}

func (a *RESTAdapter) requestTimeout() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timeout
}

func (a *RESTAdapter) PushOps(ctx context.Context, boardID string, ops []board.Operation, clientRevision int64) (PushResult, error) {
	body := struct {
		Ops            []board.Operation `json:"ops"`
		ClientRevision int64             `json:"clientRevision"`
	}{Ops: ops, ClientRevision: clientRevision}

	var out PushResult
	if err := a.do(ctx, http.MethodPost, a.boardPath(boardID)+"/ops", body, &out); err != nil {
		return PushResult{}, err
	}
	return out, nil
}

func (a *RESTAdapter) PullOps(ctx context.Context, boardID string, since int64) (PullResult, error) {
	var out PullResult
	path := a.boardPath(boardID) + "/ops?since=" + strconv.FormatInt(since, 10)
	if err := a.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return PullResult{}, err
	}
	return out, nil
}

func (a *RESTAdapter) FetchSnapshot(ctx context.Context, boardID string) (*Snapshot, error) {
	var out Snapshot
	err := a.do(ctx, http.MethodGet, a.boardPath(boardID), nil, &out)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (a *RESTAdapter) PushSnapshot(ctx context.Context, boardID string, doc *board.Board) (PushResult, error) {
	var out PushResult
	if err := a.do(ctx, http.MethodPut, a.boardPath(boardID), doc, &out); err != nil {
		return PushResult{}, err
	}
	return out, nil
}

func (a *RESTAdapter) boardPath(boardID string) string {
	return a.baseURL + "/api/boards/" + url.PathEscape(boardID)
}

func (a *RESTAdapter) do(ctx context.Context, method, rawURL string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, a.requestTimeout())
	defer cancel()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.headers != nil {
		for k, v := range a.headers() {
			req.Header.Set(k, v)
		}
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Status: resp.StatusCode}
		var payload struct {
			Code string `json:"code"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload); err == nil {
			se.Code = payload.Code
		}
		return se
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
