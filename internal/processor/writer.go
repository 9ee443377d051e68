package processor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// ChunkWriter appends accepted chunks to an output file and tracks how much
// has been written. Nothing is written past what was accepted, so a closed
// writer always leaves exactly Written() bytes on disk.
type ChunkWriter struct {
	file    *os.File
	path    string
	written uint64
}

// CreateChunkWriter creates destDir/name, truncating any previous file
func (f *FileService) CreateChunkWriter(destDir, name string) (*ChunkWriter, error) {
	destPath := filepath.Join(destDir, name)

	file, err := f.createWriter(destPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create destination file: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "CreateChunkWriter",
		"path":     destPath,
	}).Debug("File prepared for writing")

	return &ChunkWriter{
		file: file,
		path: destPath,
	}, nil
}

// WriteChunk stores data at the current write offset.
func (w *ChunkWriter) WriteChunk(data []byte) error {
	if w == nil || w.file == nil {
		return fmt.Errorf("no file prepared for writing")
	}

	n, err := w.file.WriteAt(data, int64(w.written))
	if err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}

	w.written += uint64(n)
	return nil
}

// Written returns the total number of bytes written so far
func (w *ChunkWriter) Written() uint64 {
	return w.written
}

func (w *ChunkWriter) Path() string {
	return w.path
}

// Close flushes and closes the file
func (w *ChunkWriter) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	if err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	return nil
}
