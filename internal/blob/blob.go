package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jo-hoe/podify/internal/config"
)

// ErrNotFound is returned by Get for keys that do not exist.
var ErrNotFound = errors.New("blob not found")

// Store is a durable object store addressed by slash-separated keys.
type Store interface {
	// Put writes r under key and returns the public URL of the object.
	Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object previously returned by Put. Missing objects are not an error.
	Delete(ctx context.Context, url string) error
}

// New builds the configured store. It returns nil, nil when blob storage is disabled.
func New(cfg config.BlobConfig) (Store, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "fs":
		return NewFSStore(cfg.FS.Root, cfg.FS.BaseURL)
	case "http":
		return NewHTTPStore(cfg.HTTP)
	default:
		return nil, fmt.Errorf("unsupported blob type %q", cfg.Type)
	}
}

func cleanKey(key string) (string, error) {
	k := strings.TrimLeft(strings.ReplaceAll(key, `\`, "/"), "/")
	if k == "" {
		return "", errors.New("empty blob key")
	}
	for _, part := range strings.Split(k, "/") {
		if part == ".." {
			return "", fmt.Errorf("invalid blob key %q", key)
		}
	}
	return k, nil
}
