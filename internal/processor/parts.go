package processor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Range is a contiguous byte span of a file.
type Range struct {
	Offset int64
	Length int64
}

// SplitRanges divides size bytes into parts spans. Every span has size/parts
// bytes except the last, which also takes the remainder. Fewer spans are
// returned when the file is smaller than parts bytes.
func SplitRanges(size int64, parts int) []Range {
	if parts < 1 {
		parts = 1
	}
	if size < int64(parts) {
		parts = int(max(size, 1))
	}

	base := size / int64(parts)
	ranges := make([]Range, parts)
	for i := range ranges {
		ranges[i].Offset = int64(i) * base
		ranges[i].Length = base
	}
	ranges[parts-1].Length = size - ranges[parts-1].Offset
	return ranges
}

// PartPath is the staging file for 1-based part number of name.
func PartPath(destDir, name string, part int) string {
	return filepath.Join(destDir, fmt.Sprintf("%s.part%d", name, part))
}

// CreatePartWriter creates the staging file for part
func (f *FileService) CreatePartWriter(destDir, name string, part int) (*os.File, error) {
	return f.createWriter(PartPath(destDir, name, part))
}

// MergeParts concatenates parts 1..n of name into destDir/name and removes
// the staging files once the merged file is closed.
func (f *FileService) MergeParts(destDir, name string, n int) (string, error) {
	destPath := filepath.Join(destDir, name)
	out, err := f.createWriter(destPath)
	if err != nil {
		return "", err
	}

	for i := 1; i <= n; i++ {
		if err := appendPart(out, PartPath(destDir, name, i)); err != nil {
			out.Close()
			return "", err
		}
	}

	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to close merged file: %w", err)
	}

	for i := 1; i <= n; i++ {
		if err := os.Remove(PartPath(destDir, name, i)); err != nil && !os.IsNotExist(err) {
			return destPath, fmt.Errorf("failed to remove part file: %w", err)
		}
	}
	return destPath, nil
}

func appendPart(out io.Writer, partPath string) error {
	in, err := os.Open(partPath)
	if err != nil {
		return fmt.Errorf("failed to open part file: %w", err)
	}
	defer in.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to merge %s: %w", filepath.Base(partPath), err)
	}
	return nil
}
