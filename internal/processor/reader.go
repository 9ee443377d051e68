package processor

import (
	"errors"
	"fmt"
	"io"
	"os"

	"yaftp/internal/protocol"
)

var ErrChunkOutOfRange = errors.New("chunk index out of range")

// ChunkReader gives random access to the fixed-size chunks of a file.
type ChunkReader struct {
	file      *os.File
	path      string
	size      uint64
	chunkSize int
}

// OpenChunkReader opens filePath and splits it into chunkSize pieces
func (f *FileService) OpenChunkReader(filePath string, chunkSize int) (*ChunkReader, error) {
	if chunkSize <= 0 || chunkSize > protocol.MaxChunkSize {
		return nil, fmt.Errorf("invalid chunk size %d", chunkSize)
	}

	file, err := f.openReader(filePath)
	if err != nil {
		return nil, err
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	return &ChunkReader{
		file:      file,
		path:      filePath,
		size:      uint64(stat.Size()),
		chunkSize: chunkSize,
	}, nil
}

// ReadChunk returns the meaningful bytes of chunk index.
func (r *ChunkReader) ReadChunk(index uint64) ([]byte, error) {
	length := protocol.ChunkLength(r.size, r.chunkSize, index)
	if length == 0 {
		return nil, fmt.Errorf("%w: %d of %d", ErrChunkOutOfRange, index, r.Count())
	}

	buf := make([]byte, length)
	n, err := r.file.ReadAt(buf, protocol.ChunkOffset(r.chunkSize, index))
	if err != nil && !(errors.Is(err, io.EOF) && n == length) {
		return nil, fmt.Errorf("failed to read chunk %d: %w", index, err)
	}
	return buf, nil
}

// Count is the number of chunks in the file
func (r *ChunkReader) Count() uint64 {
	return protocol.ChunkCount(r.size, r.chunkSize)
}

func (r *ChunkReader) Size() uint64 {
	return r.size
}

func (r *ChunkReader) Path() string {
	return r.path
}

func (r *ChunkReader) Close() error {
	return r.file.Close()
}

// CopyRange writes up to length bytes of filePath starting at offset into w.
// A negative length copies through end of file. The number of bytes copied is
// returned; a range running past the end of the file is cut short.
func (f *FileService) CopyRange(w io.Writer, filePath string, offset, length int64) (int64, error) {
	file, err := f.openReader(filePath)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return 0, fmt.Errorf("failed to seek to %d: %w", offset, err)
	}

	var src io.Reader = file
	if length >= 0 {
		src = io.LimitReader(file, length)
	}

	n, err := io.Copy(w, src)
	if err != nil {
		return n, fmt.Errorf("failed to copy range: %w", err)
	}
	return n, nil
}
