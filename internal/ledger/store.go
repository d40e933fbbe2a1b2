package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotExist is returned by Store.Load when no ledger has been written.
var ErrNotExist = errors.New("maintenance ledger does not exist")

// Store is durable storage for a single ledger document.
type Store interface {
	// Location identifies the ledger for log output.
	Location() string
	// Touch makes sure the ledger can be written, leaving it empty.
	Touch(ctx context.Context) error
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	// Delete removes the ledger. Deleting an absent ledger is not an error.
	Delete(ctx context.Context) error
}

// OpenStore returns the store for a ledger location: "s3://bucket/key" for
// an S3 object, anything else (optionally "file://"-prefixed) for a local
// file.
func OpenStore(location string, s3 S3Settings) (Store, error) {
	switch {
	case strings.HasPrefix(location, "s3://"):
		u, err := url.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("parse ledger location %q: %w", location, err)
		}
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return nil, fmt.Errorf("ledger location %q: expected s3://bucket/key", location)
		}
		return NewS3Store(u.Host, key, s3), nil
	case strings.HasPrefix(location, "file://"):
		return NewFileStore(strings.TrimPrefix(location, "file://")), nil
	case location == "":
		return nil, errors.New("ledger location is required")
	default:
		return NewFileStore(location), nil
	}
}

// Read loads and decodes the ledger. found is false when no ledger exists,
// in which case an empty ledger is returned.
func Read(ctx context.Context, s Store, v Variant) (l *Ledger, found bool, err error) {
	data, err := s.Load(ctx)
	if errors.Is(err, ErrNotExist) {
		return New(v), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read ledger %s: %w", s.Location(), err)
	}
	l, err = Decode(v, data)
	if err != nil {
		return nil, true, fmt.Errorf("ledger %s: %w", s.Location(), err)
	}
	return l, true, nil
}

// Write encodes and saves the ledger.
func Write(ctx context.Context, s Store, l *Ledger) error {
	data, err := l.Encode()
	if err != nil {
		return err
	}
	if err := s.Save(ctx, data); err != nil {
		return fmt.Errorf("write ledger %s: %w", s.Location(), err)
	}
	return nil
}

// FileStore keeps the ledger in a local file.
type FileStore struct {
	path string
}

// NewFileStore returns a store for path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Location() string { return f.path }

func (f *FileStore) Touch(_ context.Context) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}
	file, err := os.Create(f.path)
	if err != nil {
		return fmt.Errorf("create ledger: %w", err)
	}
	return file.Close()
}

func (f *FileStore) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotExist
	}
	return data, err
}

// Save replaces the file atomically so a crash never leaves a half-written
// ledger behind.
func (f *FileStore) Save(_ context.Context, data []byte) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	return os.Rename(tmp.Name(), f.path)
}

func (f *FileStore) Delete(_ context.Context) error {
	err := os.Remove(f.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete ledger: %w", err)
	}
	return nil
}
