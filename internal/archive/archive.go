// Package archive writes pipeline results as JSON files under
// <dir>/<hash>/<name>.json so they survive outside the store.
package archive

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/rs/zerolog"

	"transhot/internal/logger"
)

var (
	// ErrInvalidRequest is returned when hash or data is missing.
	ErrInvalidRequest = errors.New("archive: hash and data are required")

	// ErrInvalidHash is returned for anything other than a hex SHA-256.
	ErrInvalidHash = errors.New("archive: hash must be 64 hex characters")

	// ErrInvalidName is returned for names that would escape the hash directory.
	ErrInvalidName = errors.New("archive: invalid file name")
)

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Request asks for data to be stored under hash.
type Request struct {
	Hash string
	Name string // file name without extension, e.g. "vision" or "translation"
	Data json.RawMessage
}

// Archiver persists JSON payloads.
type Archiver interface {
	Persist(ctx context.Context, req Request) (path string, err error)
}

// FileArchiver writes payloads below a root directory.
type FileArchiver struct {
	root string
	log  zerolog.Logger
}

// NewFileArchiver creates an archiver rooted at dir.
func NewFileArchiver(dir string) *FileArchiver {
	return &FileArchiver{root: dir, log: logger.WithComponent("archive")}
}

// Persist writes req.Data atomically and returns the file path.
func (a *FileArchiver) Persist(ctx context.Context, req Request) (string, error) {
	if err := Validate(req); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Join(a.root, req.Hash)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("archive: create %s: %w", dir, err)
	}

	path := filepath.Join(dir, req.Name+".json")
	tmp, err := os.CreateTemp(dir, "."+req.Name+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("archive: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(req.Data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("archive: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("archive: close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("archive: rename %s: %w", path, err)
	}

	a.log.Debug().Str("hash", req.Hash).Str("path", path).Int("bytes", len(req.Data)).Msg("Result archived")
	return path, nil
}

// Validate checks a request without writing anything.
func Validate(req Request) error {
	if req.Hash == "" || len(req.Data) == 0 || string(req.Data) == "null" {
		return ErrInvalidRequest
	}
	if b, err := hex.DecodeString(req.Hash); err != nil || len(b) != 32 {
		return ErrInvalidHash
	}
	if !validName.MatchString(req.Name) {
		return ErrInvalidName
	}
	if !json.Valid(req.Data) {
		return fmt.Errorf("%w: data is not valid JSON", ErrInvalidRequest)
	}
	return nil
}
