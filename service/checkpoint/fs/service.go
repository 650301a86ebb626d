package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"

	"github.com/epicflow/epicflow/model/epic"
	"github.com/epicflow/epicflow/service/checkpoint"
)

// Service implements a filesystem-backed checkpoint store.  Snapshots are
// written as one JSON document per thread id, which is what allows a fresh
// process to resume a suspended epic after the in-memory owner died.
type Service struct {
	basePath string
	fs       afs.Service
	mu       sync.RWMutex
}

var _ checkpoint.Store[string, epic.State] = (*Service)(nil)

// Save persists a state snapshot, committing cost and phase in one write.
func (s *Service) Save(ctx context.Context, state *epic.State) error {
	if state == nil {
		return checkpoint.ErrNilEntity
	}
	if state.ThreadID == "" {
		return checkpoint.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(state.Clone())
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	filePath := s.statePath(state.ThreadID)
	if err = s.fs.Upload(ctx, filePath, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save state to file %s: %w", filePath, err)
	}
	return nil
}

// Load retrieves the last persisted snapshot for a thread id.
func (s *Service) Load(ctx context.Context, threadID string) (*epic.State, error) {
	if threadID == "" {
		return nil, checkpoint.ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	filePath := s.statePath(threadID)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to check if snapshot exists: %w", err)
	}
	if !exists {
		return nil, checkpoint.ErrNotFound
	}

	data, err := s.fs.DownloadWithURL(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var state epic.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &state, nil
}

// Delete removes the snapshot for a thread id.
func (s *Service) Delete(ctx context.Context, threadID string) error {
	if threadID == "" {
		return checkpoint.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	filePath := s.statePath(threadID)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return fmt.Errorf("failed to check if snapshot exists: %w", err)
	}
	if !exists {
		return checkpoint.ErrNotFound
	}
	if err := s.fs.Delete(ctx, filePath); err != nil {
		return fmt.Errorf("failed to delete snapshot file: %w", err)
	}
	return nil
}

// List returns every persisted snapshot.
func (s *Service) List(ctx context.Context) ([]*epic.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objects, err := s.fs.List(ctx, s.basePath, option.NewRecursive(true))
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot files: %w", err)
	}

	var states []*epic.State
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		data, err := s.fs.Download(ctx, object)
		if err != nil {
			continue
		}
		var state epic.State
		if err := json.Unmarshal(data, &state); err != nil {
			continue
		}
		states = append(states, &state)
	}
	return states, nil
}

func (s *Service) statePath(threadID string) string {
	return path.Join(s.basePath, fmt.Sprintf("%s.json", threadID))
}

// New creates a filesystem checkpoint store rooted at basePath.
func New(basePath string) (*Service, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}

	fsService := afs.New()
	ctx := context.Background()
	exists, _ := fsService.Exists(ctx, basePath)
	if !exists {
		if err := fsService.Create(ctx, basePath, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", err)
		}
	}
	basePath = url.Normalize(basePath, file.Scheme)

	return &Service{
		basePath: basePath,
		fs:       fsService,
	}, nil
}
