package processor

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileService handles basic file operations
type FileService struct{}

// NewFileService creates a new file service
func NewFileService() *FileService {
	return &FileService{}
}

// openReader opens a file for reading
func (f *FileService) openReader(filePath string) (*os.File, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// createWriter creates (or truncates) a file for writing
func (f *FileService) createWriter(destPath string) (*os.File, error) {
	if err := f.EnsureDir(filepath.Dir(destPath)); err != nil {
		return nil, err
	}

	file, err := os.Create(destPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	return file, nil
}

// EnsureDir creates directory if it doesn't exist
func (f *FileService) EnsureDir(dirPath string) error {
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}
