package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"cleanupd/pkg/models"
)

// FileStore keeps all samples in a single JSON array on disk.
// Every append rewrites the file through a temp file and an atomic rename.
type FileStore struct {
	mu       sync.Mutex
	filePath string
	samples  []models.PerformanceSample
	loaded   bool
}

// NewFileStore creates a file-backed sample store
func NewFileStore(filePath string) *FileStore {
	return &FileStore{filePath: filePath}
}

// Load reads all samples from disk. A missing file is an empty history.
func (store *FileStore) Load() ([]models.PerformanceSample, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	if err := store.loadLocked(); err != nil {
		return nil, err
	}

	out := make([]models.PerformanceSample, len(store.samples))
	copy(out, store.samples)
	return out, nil
}

func (store *FileStore) loadLocked() error {
	if store.loaded {
		return nil
	}

	data, err := os.ReadFile(store.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			store.samples = []models.PerformanceSample{}
			store.loaded = true
			return nil
		}
		return fmt.Errorf("failed to open metrics file: %w", err)
	}

	var samples []models.PerformanceSample
	if len(data) > 0 {
		if err := json.Unmarshal(data, &samples); err != nil {
			return fmt.Errorf("failed to decode metrics file: %w", err)
		}
	}

	store.samples = samples
	store.loaded = true
	return nil
}

// Append adds a sample and flushes the whole history to disk
func (store *FileStore) Append(sample models.PerformanceSample) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if err := store.loadLocked(); err != nil {
		return err
	}

	next := append(store.samples, sample)
	if err := store.writeLocked(next); err != nil {
		return err
	}

	store.samples = next
	return nil
}

func (store *FileStore) writeLocked(samples []models.PerformanceSample) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(store.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}

	// Write to temporary file first
	tempFile := store.filePath + ".tmp"
	file, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create metrics file: %w", err)
	}

	if err := json.NewEncoder(file).Encode(samples); err != nil {
		file.Close()
		os.Remove(tempFile)
		return fmt.Errorf("failed to encode metrics: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempFile)
		return fmt.Errorf("failed to flush metrics: %w", err)
	}
	file.Close()

	// Atomic rename
	if err := os.Rename(tempFile, store.filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to save metrics file: %w", err)
	}

	return nil
}

// Close is a no-op; every append is already on disk
func (store *FileStore) Close() error {
	return nil
}
