package blob

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/jo-hoe/podify/internal/config"
)

func TestFSStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir(), "https://cdn.example.com/")
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	url, err := s.Put(ctx, "episodes/ep-1.mp3", strings.NewReader("audio"), "audio/mpeg")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "https://cdn.example.com/episodes/ep-1.mp3" {
		t.Fatalf("url mismatch: %s", url)
	}

	rc, err := s.Get(ctx, "episodes/ep-1.mp3")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "audio" {
		t.Fatalf("content mismatch: %q", b)
	}

	if err := s.Delete(ctx, url); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "episodes/ep-1.mp3"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	// Deleting twice is fine.
	if err := s.Delete(ctx, url); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestFSStore_FileURLsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	url, err := s.Put(ctx, "a/b.txt", strings.NewReader("x"), "text/plain")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !strings.HasPrefix(url, "file://") {
		t.Fatalf("expected file url, got %s", url)
	}
	if err := s.Delete(ctx, url); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "a/b.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected removal, got %v", err)
	}
}

func TestCleanKeyRejectsTraversal(t *testing.T) {
	if _, err := cleanKey("../etc/passwd"); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
	if _, err := cleanKey("/"); err == nil {
		t.Fatalf("expected empty key to be rejected")
	}
	k, err := cleanKey(`/episodes\x.mp3`)
	if err != nil || k != "episodes/x.mp3" {
		t.Fatalf("unexpected clean result %q %v", k, err)
	}
}

func TestHTTPStore_RoundTrip(t *testing.T) {
	var mu sync.Mutex
	objects := map[string]string{}
	var seenAuth, seenType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		seenAuth = r.Header.Get("Authorization")
		switch r.Method {
		case http.MethodPut:
			seenType = r.Header.Get("Content-Type")
			b, _ := io.ReadAll(r.Body)
			objects[r.URL.Path] = string(b)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"url":"https://public.example.com` + r.URL.Path + `"}`))
		case http.MethodGet:
			v, ok := objects[r.URL.Path]
			if !ok {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte(v))
		case http.MethodDelete:
			delete(objects, r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	s, err := NewHTTPStore(config.HTTPBlobSettings{BaseURL: srv.URL, Token: "tok"})
	if err != nil {
		t.Fatalf("NewHTTPStore: %v", err)
	}
	s.WithHTTPClient(srv.Client())
	ctx := context.Background()

	url, err := s.Put(ctx, "feed.json", strings.NewReader(`{}`), "application/json")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "https://public.example.com/feed.json" {
		t.Fatalf("url mismatch: %s", url)
	}
	if seenAuth != "Bearer tok" || seenType != "application/json" {
		t.Fatalf("headers mismatch: auth=%q type=%q", seenAuth, seenType)
	}

	rc, err := s.Get(ctx, "feed.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "{}" {
		t.Fatalf("content mismatch: %q", b)
	}

	if err := s.Delete(ctx, "feed.json"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "feed.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHTTPStore_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"bad token"}`))
	}))
	defer srv.Close()

	s, _ := NewHTTPStore(config.HTTPBlobSettings{BaseURL: srv.URL, Token: "tok"})
	s.WithHTTPClient(srv.Client())
	_, err := s.Put(context.Background(), "x", strings.NewReader("y"), "")
	if err == nil || !strings.Contains(err.Error(), "bad token") {
		t.Fatalf("expected api error message, got %v", err)
	}
}

func TestNew(t *testing.T) {
	s, err := New(config.BlobConfig{Type: "none"})
	if err != nil || s != nil {
		t.Fatalf("none: %v %v", s, err)
	}
	if _, err := New(config.BlobConfig{Type: "http"}); err == nil {
		t.Fatalf("http without token should fail")
	}
	if _, err := New(config.BlobConfig{Type: "s3"}); err == nil {
		t.Fatalf("unknown type should fail")
	}
	s, err = New(config.BlobConfig{Type: "fs", FS: config.FSBlobSettings{Root: t.TempDir()}})
	if err != nil || s == nil {
		t.Fatalf("fs: %v %v", s, err)
	}
}
