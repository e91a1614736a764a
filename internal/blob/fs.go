package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FSStore keeps objects in a local directory. URLs are baseURL + "/" + key,
// or file:// URLs when no base is set.
type FSStore struct {
	root    string
	baseURL string
}

var _ Store = (*FSStore)(nil)

func NewFSStore(root, baseURL string) (*FSStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("blob root must not be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve blob root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FSStore{root: abs, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *FSStore) Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	dst := s.path(k)
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".blob-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("commit blob: %w", err)
	}
	return s.url(k), nil
}

func (s *FSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	k, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(k)) // #nosec G304 - key is cleaned and rooted
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

func (s *FSStore) Delete(ctx context.Context, rawURL string) error {
	k, err := s.keyFromURL(rawURL)
	if err != nil {
		return err
	}
	if err := os.Remove(s.path(k)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

func (s *FSStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *FSStore) url(key string) string {
	if s.baseURL != "" {
		return s.baseURL + "/" + key
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(s.path(key))}).String()
}

func (s *FSStore) keyFromURL(rawURL string) (string, error) {
	if s.baseURL != "" && strings.HasPrefix(rawURL, s.baseURL+"/") {
		return cleanKey(strings.TrimPrefix(rawURL, s.baseURL+"/"))
	}
	u, err := url.Parse(rawURL)
	if err == nil && u.Scheme == "file" {
		rel, err := filepath.Rel(s.root, filepath.FromSlash(u.Path))
		if err == nil {
			return cleanKey(filepath.ToSlash(rel))
		}
	}
	return cleanKey(rawURL)
}
