package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/lox/spades/internal/fileutil"
	"github.com/lox/spades/internal/game"
)

// FileStore writes one JSON file per game into a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(id string) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}
	if strings.ContainsAny(id, `/\`) || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("invalid game id %q", id)
	}
	return filepath.Join(f.dir, id+".json"), nil
}

func (f *FileStore) Save(_ context.Context, s *game.GameState) error {
	path, err := f.path(s.ID)
	if err != nil {
		return err
	}
	return fileutil.WriteJSONAtomic(path, s, 0o644)
}

func (f *FileStore) Load(_ context.Context, id string) (*game.GameState, error) {
	path, err := f.path(id)
	if err != nil {
		return nil, err
	}
	var s game.GameState
	if err := fileutil.ReadJSON(path, &s); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return &s, nil
}

func (f *FileStore) Delete(_ context.Context, id string) error {
	path, err := f.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}
