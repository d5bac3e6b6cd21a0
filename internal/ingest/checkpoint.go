package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Checkpoint is the persisted progress of a load run: directories fully
// processed and, per directory, files already inserted.
type Checkpoint struct {
	dirs  map[string]struct{}
	files map[string]map[string]struct{}
}

// NewCheckpoint returns an empty checkpoint.
func NewCheckpoint() *Checkpoint {
	return &Checkpoint{
		dirs:  make(map[string]struct{}),
		files: make(map[string]map[string]struct{}),
	}
}

// DirDone reports whether dir was fully processed.
func (c *Checkpoint) DirDone(dir string) bool {
	_, ok := c.dirs[dir]
	return ok
}

// MarkDir records dir as fully processed.
func (c *Checkpoint) MarkDir(dir string) {
	c.dirs[dir] = struct{}{}
}

// FileDone reports whether file in dir was already inserted.
func (c *Checkpoint) FileDone(dir, file string) bool {
	_, ok := c.files[dir][file]
	return ok
}

// MarkFiles records files in dir as inserted.
func (c *Checkpoint) MarkFiles(dir string, files ...string) {
	if len(files) == 0 {
		return
	}
	set, ok := c.files[dir]
	if !ok {
		set = make(map[string]struct{}, len(files))
		c.files[dir] = set
	}
	for _, f := range files {
		set[f] = struct{}{}
	}
}

// Dirs returns the processed directories in sorted order.
func (c *Checkpoint) Dirs() []string {
	return sortedKeys(c.dirs)
}

// Files returns the processed files of dir in sorted order.
func (c *Checkpoint) Files(dir string) []string {
	return sortedKeys(c.files[dir])
}

// Empty reports whether nothing has been recorded.
func (c *Checkpoint) Empty() bool {
	return len(c.dirs) == 0 && len(c.files) == 0
}

type checkpointFile struct {
	ProcessedDirs  []string            `json:"processedDirs"`
	ProcessedFiles map[string][]string `json:"processedFiles"`
}

// MarshalJSON encodes the checkpoint with sorted lists so output is stable.
func (c *Checkpoint) MarshalJSON() ([]byte, error) {
	out := checkpointFile{
		ProcessedDirs:  c.Dirs(),
		ProcessedFiles: make(map[string][]string, len(c.files)),
	}
	for dir := range c.files {
		out.ProcessedFiles[dir] = c.Files(dir)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the processedDirs/processedFiles document.
func (c *Checkpoint) UnmarshalJSON(data []byte) error {
	var in checkpointFile
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*c = *NewCheckpoint()
	for _, d := range in.ProcessedDirs {
		c.MarkDir(d)
	}
	for dir, files := range in.ProcessedFiles {
		c.MarkFiles(dir, files...)
	}
	return nil
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CheckpointStore persists checkpoints between runs.
type CheckpointStore interface {
	// Load returns the saved checkpoint, or an empty one if none exists.
	Load(ctx context.Context) (*Checkpoint, error)
	Save(ctx context.Context, cp *Checkpoint) error
	// Clear removes the saved checkpoint. Clearing a missing one is not an error.
	Clear(ctx context.Context) error
}

// FileStore keeps the checkpoint as a JSON file.
type FileStore struct {
	Path string
}

// NewFileStore returns a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads the checkpoint file. A missing file yields an empty checkpoint.
func (s *FileStore) Load(ctx context.Context) (*Checkpoint, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewCheckpoint(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("ingest: read checkpoint %s: %w", s.Path, err)
	}
	cp := NewCheckpoint()
	if err := json.Unmarshal(data, cp); err != nil {
		return nil, fmt.Errorf("ingest: decode checkpoint %s: %w", s.Path, err)
	}
	return cp, nil
}

// Save writes the checkpoint to a temporary file next to Path and renames
// it into place, so a crash never leaves a truncated file behind.
func (s *FileStore) Save(ctx context.Context, cp *Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("ingest: encode checkpoint: %w", err)
	}
	dir := filepath.Dir(s.Path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("ingest: write checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("ingest: write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("ingest: write checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("ingest: write checkpoint: %w", err)
	}
	return nil
}

// Clear deletes the checkpoint file.
func (s *FileStore) Clear(ctx context.Context) error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ingest: remove checkpoint %s: %w", s.Path, err)
	}
	return nil
}

// MemoryStore keeps the checkpoint in memory. Saved checkpoints are copied
// so later mutation by the caller does not leak into the store.
type MemoryStore struct {
	mu    sync.Mutex
	data  []byte
	saves int
	// FailAfter, when positive, makes the Nth and later Save calls fail.
	FailAfter int
}

// ErrCheckpointUnavailable is returned by MemoryStore once FailAfter is reached.
var ErrCheckpointUnavailable = errors.New("ingest: checkpoint store unavailable")

// Load returns a copy of the last saved checkpoint.
func (s *MemoryStore) Load(ctx context.Context) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := NewCheckpoint()
	if s.data == nil {
		return cp, nil
	}
	if err := json.Unmarshal(s.data, cp); err != nil {
		return nil, err
	}
	return cp, nil
}

// Save stores a copy of cp.
func (s *MemoryStore) Save(ctx context.Context, cp *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.FailAfter > 0 && s.saves >= s.FailAfter {
		return ErrCheckpointUnavailable
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	s.data = data
	return nil
}

// Clear forgets the stored checkpoint.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	return nil
}

// Saved reports whether a checkpoint is currently stored.
func (s *MemoryStore) Saved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data != nil
}
