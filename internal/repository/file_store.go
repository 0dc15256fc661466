package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"collector-agent/internal/domain"
)

// FileStore keeps the current profile as a JSON document on local disk.
type FileStore struct {
	mu   sync.RWMutex
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("repository: profile path must not be empty")
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) LoadProfile(ctx context.Context) (domain.DebtorProfile, error) {
	if err := ctx.Err(); err != nil {
		return domain.DebtorProfile{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.DebtorProfile{}, ErrProfileNotFound
	}
	if err != nil {
		return domain.DebtorProfile{}, fmt.Errorf("repository: read profile: %w", err)
	}
	var p domain.DebtorProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.DebtorProfile{}, fmt.Errorf("repository: decode profile %s: %w", s.path, err)
	}
	return p, nil
}

// SaveProfile overwrites the whole file.
func (s *FileStore) SaveProfile(ctx context.Context, p domain.DebtorProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("repository: encode profile: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+"-*")
	if err != nil {
		return fmt.Errorf("repository: write profile: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("repository: write profile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("repository: write profile: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("repository: write profile: %w", err)
	}
	return nil
}
