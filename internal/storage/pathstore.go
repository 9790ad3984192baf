package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"
)

// PathstoreStore keeps documents as nodes of a pathstore HTTP API.
type PathstoreStore struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger

	// backoff is swapped out in tests.
	backoff func(attempt int) time.Duration
}

func NewPathstoreStore(baseURL, apiKey string, log *slog.Logger) *PathstoreStore {
	if log == nil {
		log = slog.Default()
	}
	return &PathstoreStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log:     log,
		backoff: Backoff,
	}
}

// nodeRequest is the body for PUT /kv/{key}.
type nodeRequest struct {
	Value  json.RawMessage `json:"value"`
	Source string          `json:"source,omitempty"`
}

// nodeResponse is the response from GET /kv/{key} and one entry of a prefix scan.
type nodeResponse struct {
	Key   string          `json:"key_path"`
	Value json.RawMessage `json:"value"`
}

func (s *PathstoreStore) Load(ctx context.Context, key string) ([]byte, error) {
	var node nodeResponse
	err := s.retry(ctx, "load", key, func() error {
		resp, err := s.do(ctx, http.MethodGet, s.baseURL+"/kv/"+key, nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return ErrNotFound
		}
		if err := checkStatus(resp, http.StatusOK); err != nil {
			return err
		}
		if err := json.NewDecoder(resp.Body).Decode(&node); err != nil {
			return fmt.Errorf("decode node: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, opError("load", key, err)
	}
	if len(node.Value) == 0 {
		return nil, opError("load", key, ErrNotFound)
	}
	return node.Value, nil
}

// Save stores data, which must be a JSON document, as the node's value.
func (s *PathstoreStore) Save(ctx context.Context, key string, data []byte) error {
	if !json.Valid(data) {
		return opError("save", key, errors.New("document is not valid JSON"))
	}
	body, err := json.Marshal(nodeRequest{Value: data, Source: "docreview"})
	if err != nil {
		return opError("save", key, fmt.Errorf("marshal node: %w", err))
	}
	err = s.retry(ctx, "save", key, func() error {
		resp, err := s.do(ctx, http.MethodPut, s.baseURL+"/kv/"+key, body)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return checkStatus(resp, http.StatusOK, http.StatusCreated)
	})
	return opError("save", key, err)
}

// List does a prefix scan. The prefix is treated as a node path, so a trailing
// slash is ignored.
func (s *PathstoreStore) List(ctx context.Context, prefix string) ([]string, error) {
	scan := strings.TrimSuffix(prefix, "/")
	var nodes []nodeResponse
	err := s.retry(ctx, "list", prefix, func() error {
		resp, err := s.do(ctx, http.MethodGet, s.baseURL+"/kv/"+scan+"/*", nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			nodes = nil
			return nil
		}
		if err := checkStatus(resp, http.StatusOK); err != nil {
			return err
		}
		var result struct {
			Nodes []nodeResponse `json:"nodes"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("decode children: %w", err)
		}
		nodes = result.Nodes
		return nil
	})
	if err != nil {
		return nil, opError("list", prefix, err)
	}

	keys := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if strings.HasPrefix(n.Key, prefix) {
			keys = append(keys, n.Key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *PathstoreStore) Copy(ctx context.Context, src, dst string) error {
	data, err := s.Load(ctx, src)
	if err != nil {
		return opError("copy", src, err)
	}
	return opError("copy", dst, s.Save(ctx, dst, data))
}

// Close releases idle connections.
func (s *PathstoreStore) Close() {
	s.httpClient.CloseIdleConnections()
}

func (s *PathstoreStore) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	return s.httpClient.Do(req)
}

func (s *PathstoreStore) retry(ctx context.Context, op, key string, fn func() error) error {
	var lastErr error
	for attempt := range MaxRetries {
		lastErr = fn()
		if lastErr == nil || !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == MaxRetries-1 {
			break
		}
		s.log.Warn("retryable storage error", "op", op, "key", key, "attempt", attempt, "error", lastErr)
		select {
		case <-time.After(s.backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// checkStatus maps an unexpected status to an error, marking rate limits and
// server errors as retryable.
func checkStatus(resp *http.Response, ok ...int) error {
	for _, code := range ok {
		if resp.StatusCode == code {
			return nil
		}
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return &RetryableError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
}
