package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// FileIndexStore keeps one gob file per key in a directory
type FileIndexStore struct {
	outputDir string
	logger    *zap.Logger
}

// NewFileIndexStore creates a file store rooted at outputDir
func NewFileIndexStore(outputDir string, logger *zap.Logger) (*FileIndexStore, error) {
	// Create output directory if it doesn't exist
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &FileIndexStore{
		outputDir: outputDir,
		logger:    logger,
	}, nil
}

// GetIndexPath returns the file path for a key
func (s *FileIndexStore) GetIndexPath(key string) string {
	return filepath.Join(s.outputDir, fmt.Sprintf("%s_trigram.gob", sanitizeKey(key)))
}

func (s *FileIndexStore) Get(key string) ([]byte, error) {
	blob, err := os.ReadFile(s.GetIndexPath(key))
	if os.IsNotExist(err) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return blob, nil
}

func (s *FileIndexStore) Put(key string, blob []byte) error {
	path := s.GetIndexPath(key)

	// Write to a sibling and rename so readers never see a partial file
	tmp, err := os.CreateTemp(s.outputDir, ".trigram-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	s.logger.Debug("Wrote trigram index file", zap.String("path", path), zap.Int("bytes", len(blob)))
	return nil
}

func (s *FileIndexStore) Delete(key string) error {
	if err := os.Remove(s.GetIndexPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete index: %w", err)
	}
	s.logger.Info("Deleted trigram index", zap.String("key", key))
	return nil
}

func (s *FileIndexStore) Name() string {
	return "file"
}

// sanitizeKey maps a key onto characters safe in a file name
func sanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, key)
}
