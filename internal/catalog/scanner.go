package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

// Scanner builds catalog snapshots from the files directly inside Dir.
type Scanner struct {
	Dir string
	// CatalogFile, when set, is rewritten with the listing after every scan
	// and is never offered itself.
	CatalogFile string
	// Exclude lists base names that are never offered.
	Exclude []string

	log *logrus.Entry
	// mu serializes scans; each one rewrites the catalog file
	mu sync.Mutex
}

// NewScanner creates a scanner for dir.
func NewScanner(dir, catalogFile string, exclude []string, log *logrus.Entry) *Scanner {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Scanner{
		Dir:         dir,
		CatalogFile: catalogFile,
		Exclude:     exclude,
		log:         log.WithField("component", "catalog"),
	}
}

// Scan reads the directory and returns a fresh snapshot. It is safe for
// concurrent use.
func (s *Scanner) Scan() (*Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dirEntries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog directory: %w", err)
	}

	skip := make(map[string]struct{}, len(s.Exclude)+1)
	for _, name := range s.Exclude {
		skip[name] = struct{}{}
	}
	if s.CatalogFile != "" {
		skip[filepath.Base(s.CatalogFile)] = struct{}{}
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if !de.Type().IsRegular() {
			continue
		}
		name := de.Name()
		if _, ok := skip[name]; ok || s.isCatalogTemp(name) {
			continue
		}
		if err := ValidateName(name); err != nil {
			s.log.WithFields(logrus.Fields{
				"function": "Scan",
				"name":     name,
				"error":    err,
			}).Warn("Skipping file that cannot be served")
			continue
		}

		info, err := de.Info()
		if err != nil {
			// removed between ReadDir and Info
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to stat %s: %w", name, err)
		}
		entries = append(entries, Entry{Name: name, Size: uint64(info.Size())})
	}

	snapshot, err := New(entries)
	if err != nil {
		return nil, err
	}

	if s.CatalogFile != "" {
		if err := WriteFile(s.CatalogFile, snapshot); err != nil {
			return nil, err
		}
	}

	s.log.WithFields(logrus.Fields{
		"function": "Scan",
		"dir":      s.Dir,
		"files":    snapshot.Len(),
	}).Debug("Catalog rebuilt")

	return snapshot, nil
}

// isCatalogTemp matches the temporary files WriteFile stages the catalog in
func (s *Scanner) isCatalogTemp(name string) bool {
	if s.CatalogFile == "" {
		return false
	}
	ok, _ := filepath.Match(catalogTempPattern(s.CatalogFile), name)
	return ok
}

func catalogTempPattern(path string) string {
	return filepath.Base(path) + ".*.tmp"
}

// Path returns the on-disk path of a catalog entry.
func (s *Scanner) Path(e Entry) string {
	return filepath.Join(s.Dir, e.Name)
}

// WriteFile stores the listing at path, replacing any previous file.
func WriteFile(path string, c *Catalog) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), catalogTempPattern(path))
	if err != nil {
		return fmt.Errorf("failed to create catalog file: %w", err)
	}
	defer os.Remove(tmp.Name())

	body := c.Format()
	if body != "" {
		body += "\n"
	}
	if _, err := tmp.WriteString(body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write catalog file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close catalog file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace catalog file: %w", err)
	}
	return nil
}

// ReadFile loads a listing previously stored with WriteFile.
func ReadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return ParseListing(string(data))
}
