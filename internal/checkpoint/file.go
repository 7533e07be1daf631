package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/moby/sys/atomicwriter"
	"github.com/povarna/generative-ai-agents/qa-eval/internal/models"
)

// FileStore keeps one <id>.json file per record in a directory.
type FileStore struct {
	dir string
}

// NewFileStore opens dir as a store, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(id string) (string, error) {
	name, err := objectName(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name), nil
}

func (s *FileStore) Exists(_ context.Context, id string) (bool, error) {
	p, err := s.path(id)
	if err != nil {
		return false, err
	}

	found, err := s.stat(p)
	if err != nil || found {
		return found, err
	}
	if name, ok := verbatimObjectName(id); ok {
		return s.stat(filepath.Join(s.dir, name))
	}
	return false, nil
}

func (s *FileStore) stat(p string) (bool, error) {
	_, err := os.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat record %s: %w", filepath.Base(p), err)
	}
}

// Put writes the record to a temporary file and renames it into place.
func (s *FileStore) Put(_ context.Context, id string, record models.AnnotationRecord) error {
	p, err := s.path(id)
	if err != nil {
		return err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", id, err)
	}

	if err := atomicwriter.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("write record %s: %w", id, err)
	}
	return nil
}

func (s *FileStore) Get(_ context.Context, id string) (models.AnnotationRecord, error) {
	p, err := s.path(id)
	if err != nil {
		return models.AnnotationRecord{}, err
	}

	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		name, ok := verbatimObjectName(id)
		if !ok {
			return models.AnnotationRecord{}, ErrNotFound
		}
		data, err = os.ReadFile(filepath.Join(s.dir, name))
		if errors.Is(err, os.ErrNotExist) {
			return models.AnnotationRecord{}, ErrNotFound
		}
	}
	if err != nil {
		return models.AnnotationRecord{}, fmt.Errorf("read record %s: %w", id, err)
	}
	return decodeRecord(id, data)
}

func (s *FileStore) ListIDs(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list checkpoint dir %s: %w", s.dir, err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if id, ok := idFromObjectName(entry.Name()); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *FileStore) Close() error {
	return nil
}
