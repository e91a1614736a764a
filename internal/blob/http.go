package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jo-hoe/podify/internal/config"
)

const (
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	authSchemeBearer    = "Bearer"
	errorSnippetLimit   = 400
)

// HTTPStore talks to an object endpoint that accepts PUT, GET and DELETE on
// {baseUrl}/{key}, authenticated with a bearer token.
type HTTPStore struct {
	baseURL string
	token   string
	http    *http.Client
}

var _ Store = (*HTTPStore)(nil)

// NewHTTPStore creates an HTTPStore. Uses a client with the configured timeout
// unless one is injected via WithHTTPClient.
func NewHTTPStore(cfg config.HTTPBlobSettings) (*HTTPStore, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("blob token must not be empty")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("blob base url must not be empty")
	}
	return &HTTPStore{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// WithHTTPClient allows tests to inject a custom HTTP client (e.g., pointing to httptest.Server).
func (s *HTTPStore) WithHTTPClient(c *http.Client) *HTTPStore {
	s.http = c
	return s
}

func (s *HTTPStore) Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	req, err := s.newRequest(ctx, http.MethodPut, s.baseURL+"/"+k, r)
	if err != nil {
		return "", err
	}
	if contentType != "" {
		req.Header.Set(headerContentType, contentType)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("blob put: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", statusError("put", resp)
	}

	// The endpoint may answer with the canonical public URL of the object.
	var out putResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err == nil && out.URL != "" {
		return out.URL, nil
	}
	return s.baseURL + "/" + k, nil
}

func (s *HTTPStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	k, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	req, err := s.newRequest(ctx, http.MethodGet, s.baseURL+"/"+k, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blob get: %w", err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, nil
	case http.StatusNotFound:
		_ = resp.Body.Close()
		return nil, ErrNotFound
	default:
		defer func() { _ = resp.Body.Close() }()
		return nil, statusError("get", resp)
	}
}

func (s *HTTPStore) Delete(ctx context.Context, url string) error {
	target := url
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		k, err := cleanKey(url)
		if err != nil {
			return err
		}
		target = s.baseURL + "/" + k
	}
	req, err := s.newRequest(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("blob delete: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusAccepted, http.StatusNotFound:
		return nil
	default:
		return statusError("delete", resp)
	}
}

func (s *HTTPStore) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set(headerAuthorization, authSchemeBearer+" "+s.token)
	return req, nil
}

func statusError(op string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, errorSnippetLimit))
	var apiErr apiError
	if json.Unmarshal(b, &apiErr) == nil && apiErr.Message != "" {
		return fmt.Errorf("blob %s: status %d: %s", op, resp.StatusCode, apiErr.Message)
	}
	if len(b) > 0 {
		return fmt.Errorf("blob %s: status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return fmt.Errorf("blob %s: status %d", op, resp.StatusCode)
}

type putResponse struct {
	URL string `json:"url"`
}

type apiError struct {
	Message string `json:"message"`
}
