package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gulubao/GOT-OCR2.0/internal/domain"
)

const batchDir = "batch"

type Store struct {
	root string
	log  *zap.Logger
}

func NewStore(root string, log *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", root, err)
	}
	return &Store{root: root, log: log}, nil
}

func (s *Store) Root() string {
	return s.root
}

// Acquire creates an empty workspace named id, or a fresh uuid when id is
// empty. Callers must Remove it.
func (s *Store) Acquire(id string) (*Workspace, error) {
	if id == "" {
		id = uuid.New().String()
	}
	id = filepath.Base(id)
	dir := filepath.Join(s.root, id)

	if err := os.Mkdir(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace %s: %w", dir, err)
	}

	s.log.Debug("Workspace acquired", zap.String("dir", dir))

	return &Workspace{dir: dir, log: s.log}, nil
}

func (s *Store) Sweep(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("failed to read upload directory: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	var errs []error

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(s.root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
		s.log.Info("Stale workspace removed",
			zap.String("dir", path),
			zap.Time("modified", info.ModTime()))
	}

	return removed, errors.Join(errs...)
}

type Workspace struct {
	dir  string
	log  *zap.Logger
	once sync.Once
}

func (w *Workspace) Dir() string {
	return w.dir
}

func (w *Workspace) Store(name string, data []byte) (string, error) {
	path := filepath.Join(w.dir, safeName(name))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	w.log.Debug("Artifact stored",
		zap.String("path", path),
		zap.Int("size", len(data)))

	return path, nil
}

// File names are prefixed with the upload index so pages keep upload order
// and equal names do not clash.
func (w *Workspace) StoreMany(images []domain.Image) (string, error) {
	dir := filepath.Join(w.dir, batchDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create batch directory: %w", err)
	}

	for i, img := range images {
		name := fmt.Sprintf("%04d_%s", i, safeName(img.Name))
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, img.Data, 0644); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", path, err)
		}
	}

	w.log.Debug("Batch stored",
		zap.String("dir", dir),
		zap.Int("files", len(images)))

	return dir, nil
}

// Remove is best-effort and only acts on the first call.
func (w *Workspace) Remove() {
	w.once.Do(func() {
		if err := os.RemoveAll(w.dir); err != nil {
			w.log.Warn("Failed to remove workspace",
				zap.String("dir", w.dir),
				zap.Error(err))
			return
		}
		w.log.Debug("Workspace removed", zap.String("dir", w.dir))
	})
}

func safeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return "upload"
	}
	return name
}
