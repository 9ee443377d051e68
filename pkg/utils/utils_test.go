package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatFileSize(t *testing.T) {
	assert.Equal(t, "0 B", FormatFileSize(0))
	assert.Equal(t, "1023 B", FormatFileSize(1023))
	assert.Equal(t, "1.0 KB", FormatFileSize(1024))
	assert.Equal(t, "2.4 KB", FormatFileSize(2500))
	assert.Equal(t, "1.5 MB", FormatFileSize(3*512*1024))
	assert.Equal(t, "1.0 GB", FormatFileSize(1<<30))
}

func TestResolveDestinationPath(t *testing.T) {
	dir := t.TempDir()

	got, err := ResolveDestinationPath(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	fresh := filepath.Join(dir, "downloads")
	got, err = ResolveDestinationPath(fresh)
	require.NoError(t, err)
	assert.Equal(t, fresh, got)

	file := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = ResolveDestinationPath(file)
	assert.Error(t, err)

	_, err = ResolveDestinationPath(filepath.Join(dir, "a", "b"))
	assert.Error(t, err)
}
