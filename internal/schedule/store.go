package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"game-bridge/internal/config"
)

// Store persists the full pending set. Save replaces whatever was stored.
type Store interface {
	Load(ctx context.Context) ([]Command, error)
	Save(ctx context.Context, cmds []Command) error
}

type fileDocument struct {
	Version  int       `json:"version"`
	Commands []Command `json:"commands"`
}

// FileStore keeps the pending set in one JSON document.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

// Load returns no commands when the file does not exist yet.
func (s *FileStore) Load(_ context.Context) ([]Command, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return doc.Commands, nil
}

func (s *FileStore) Save(_ context.Context, cmds []Command) error {
	if cmds == nil {
		cmds = []Command{}
	}
	data, err := json.MarshalIndent(fileDocument{Version: 1, Commands: cmds}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode scheduled commands: %w", err)
	}
	return config.WriteFileAtomic(s.path, append(data, '\n'))
}
