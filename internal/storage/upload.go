package storage

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/jo-hoe/podify/internal/common"
)

// ErrTooLarge is returned when an upload exceeds the size limit.
var ErrTooLarge = errors.New("upload exceeds size limit")

// Uploader keeps uploaded source documents on disk until their job finishes.
type Uploader struct {
	baseDir string
}

var allowedTextMimes = map[string]string{
	common.MimeTextPlain:    ".txt",
	common.MimeTextMarkdown: ".md",
}

var extensionMimes = map[string]string{
	".txt":      common.MimeTextPlain,
	".text":     common.MimeTextPlain,
	".md":       common.MimeTextMarkdown,
	".markdown": common.MimeTextMarkdown,
}

// NewUploader creates an uploader that stores to baseDir/uploads.
func NewUploader(baseDir string) *Uploader {
	return &Uploader{baseDir: filepath.Join(baseDir, common.UploadsDirName)}
}

// Upload is a stored source document.
type Upload struct {
	Path     string
	MimeType string
	Content  string
	// Cleanup deletes the stored file. Callers should always invoke it once
	// the content is no longer needed.
	Cleanup func() error
}

// SaveMultipartText validates and stores an uploaded plain text or markdown
// document and returns its decoded content.
func (u *Uploader) SaveMultipartText(fileHeader *multipart.FileHeader, maxBytes int64) (*Upload, error) {
	if fileHeader == nil {
		return nil, fmt.Errorf("no file provided")
	}
	mimeType := detectMime(fileHeader)
	if !isAllowedTextMime(mimeType) {
		return nil, fmt.Errorf("unsupported content type: %s", mimeType)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("open uploaded file: %w", err)
	}
	defer func() { _ = src.Close() }()

	data, err := io.ReadAll(io.LimitReader(src, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrTooLarge
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("upload is not valid UTF-8 text")
	}

	if err := os.MkdirAll(u.baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("ensure uploads dir: %w", err)
	}
	dstPath := filepath.Join(u.baseDir, randomHex(16)+pickExtension(mimeType))
	if err := os.WriteFile(dstPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	return &Upload{
		Path:     dstPath,
		MimeType: mimeType,
		Content:  string(data),
		Cleanup: func() error {
			return os.Remove(dstPath)
		},
	}, nil
}

// detectMime trusts the part header unless it is empty or generic, then
// falls back to the file extension.
func detectMime(fh *multipart.FileHeader) string {
	mimeType := strings.TrimSpace(fh.Header.Get("Content-Type"))
	if mimeType == "" || strings.EqualFold(mimeType, "application/octet-stream") {
		ext := strings.ToLower(filepath.Ext(fh.Filename))
		if mt, ok := extensionMimes[ext]; ok {
			return mt
		}
		mimeType = mime.TypeByExtension(ext)
	}
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		return mt
	}
	return mimeType
}

func isAllowedTextMime(mimeType string) bool {
	_, ok := allowedTextMimes[strings.ToLower(strings.TrimSpace(mimeType))]
	return ok
}

func pickExtension(mimeType string) string {
	if ext, ok := allowedTextMimes[strings.ToLower(strings.TrimSpace(mimeType))]; ok {
		return ext
	}
	return ".txt"
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
