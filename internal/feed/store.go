package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/jo-hoe/podify/internal/blob"
	"github.com/jo-hoe/podify/internal/common"
	"github.com/jo-hoe/podify/internal/config"
)

const lockRetryDelay = 50 * time.Millisecond

// ManifestStore persists the manifest. A missing manifest loads as the
// default show with no episodes.
type ManifestStore interface {
	Load(ctx context.Context, outputDir string) (*Manifest, error)
	Save(ctx context.Context, outputDir string, m *Manifest) error
	// Lock serializes read-modify-write cycles across processes sharing
	// outputDir. The returned func releases the lock.
	Lock(ctx context.Context, outputDir string) (func() error, error)
}

// FileStore keeps feed.json in the output directory.
type FileStore struct {
	show config.ShowConfig
}

var _ ManifestStore = (*FileStore)(nil)

// NewFileStore keeps the manifest as a file in the output directory.
func NewFileStore(show config.ShowConfig) *FileStore {
	return &FileStore{show: show}
}

func (s *FileStore) Load(ctx context.Context, outputDir string) (*Manifest, error) {
	b, err := os.ReadFile(filepath.Join(outputDir, common.ManifestFileName)) // #nosec G304 - manifest path under configured output dir
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newManifest(s.show), nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return decode(b, s.show)
}

// Save writes the manifest atomically via a temp file and rename.
func (s *FileStore) Save(ctx context.Context, outputDir string, m *Manifest) error {
	b, err := encode(m)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(outputDir, ".feed-*.json")
	if err != nil {
		return fmt.Errorf("create temp manifest: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(outputDir, common.ManifestFileName)); err != nil {
		return fmt.Errorf("commit manifest: %w", err)
	}
	return nil
}

func (s *FileStore) Lock(ctx context.Context, outputDir string) (func() error, error) {
	return lockDir(ctx, outputDir)
}

// BlobStore keeps feed.json in the object store so that instances without a
// shared disk see one manifest. Locking still uses the local output dir.
type BlobStore struct {
	blob blob.Store
	show config.ShowConfig
}

var _ ManifestStore = (*BlobStore)(nil)

// NewBlobStore keeps the manifest in b under the manifest file name.
func NewBlobStore(b blob.Store, show config.ShowConfig) *BlobStore {
	return &BlobStore{blob: b, show: show}
}

func (s *BlobStore) Load(ctx context.Context, outputDir string) (*Manifest, error) {
	rc, err := s.blob.Get(ctx, common.ManifestFileName)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return newManifest(s.show), nil
		}
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	defer func() { _ = rc.Close() }()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return decode(b, s.show)
}

func (s *BlobStore) Save(ctx context.Context, outputDir string, m *Manifest) error {
	b, err := encode(m)
	if err != nil {
		return err
	}
	if _, err := s.blob.Put(ctx, common.ManifestFileName, bytes.NewReader(b), common.ContentTypeJSON); err != nil {
		return fmt.Errorf("store manifest: %w", err)
	}
	return nil
}

func (s *BlobStore) Lock(ctx context.Context, outputDir string) (func() error, error) {
	return lockDir(ctx, outputDir)
}

func lockDir(ctx context.Context, outputDir string) (func() error, error) {
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	lock := flock.New(filepath.Join(outputDir, common.ManifestLockFileName))
	ok, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("acquire manifest lock: %w", err)
	}
	if !ok {
		return nil, errors.New("acquire manifest lock: not acquired")
	}
	return lock.Unlock, nil
}

func encode(m *Manifest) ([]byte, error) {
	if m.Episodes == nil {
		m.Episodes = []EpisodeMeta{}
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return b, nil
}

func decode(b []byte, show config.ShowConfig) (*Manifest, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return newManifest(show), nil
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Episodes == nil {
		m.Episodes = []EpisodeMeta{}
	}
	if m.Show.Title == "" {
		m.Show = show
	}
	return &m, nil
}
