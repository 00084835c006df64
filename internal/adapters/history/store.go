// Package history persists the last outcome of every test.
package history

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"go.trai.ch/tern/internal/core/domain"
	"go.trai.ch/zerr"
)

const (
	// DefaultDir is where the history lives, relative to the suite's working directory.
	DefaultDir = ".tern/history"

	dirPerm  = 0o750
	filePerm = 0o600
)

// Store implements ports.HistoryStore with one JSON file per test.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir. The directory is created on first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Get returns the last record of testID, or nil if the test never ran.
func (s *Store) Get(testID string) (*domain.RunRecord, error) {
	filename := s.filename(testID)
	//nolint:gosec // path is built from the store directory and a hashed id
	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, zerr.With(zerr.Wrap(err, domain.ErrHistoryRead.Error()), "test", testID)
	}

	var rec domain.RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrHistoryCorrupt.Error()), "test", testID)
	}
	return &rec, nil
}

// Put writes records, replacing earlier records of the same tests.
// Each file is replaced atomically so a concurrent reader never sees a partial record.
func (s *Store) Put(records ...domain.RunRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := os.MkdirAll(s.dir, dirPerm); err != nil {
		return zerr.Wrap(err, domain.ErrHistoryWrite.Error())
	}

	var errs []error
	for _, rec := range records {
		if err := s.write(rec); err != nil {
			errs = append(errs, zerr.With(zerr.Wrap(err, domain.ErrHistoryWrite.Error()), "test", rec.TestID))
		}
	}
	return errors.Join(errs...)
}

func (s *Store) write(rec domain.RunRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".record-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(filePerm); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.filename(rec.TestID))
}

func (s *Store) filename(testID string) string {
	hash := sha256.Sum256([]byte(testID))
	return filepath.Join(s.dir, hex.EncodeToString(hash[:])+".json")
}
