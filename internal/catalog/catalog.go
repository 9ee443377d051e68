// Package catalog holds the read-only name to size mapping a server offers.
//
// A Catalog is an immutable snapshot. Refreshing never mutates an existing
// snapshot; a Scanner produces a new one that replaces the old value.
package catalog

import (
	"bufio"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrInvalidName     = errors.New("invalid file name")
	ErrMalformedEntry  = errors.New("malformed catalog entry")
	ErrDuplicateEntry  = errors.New("duplicate catalog entry")
	ErrNameHasSpace    = errors.New("file name contains whitespace")
	ErrDirectoryEscape = errors.New("file name escapes the served directory")
)

// Entry is a single catalog line.
type Entry struct {
	Name string
	Size uint64
}

// Catalog is an immutable snapshot of the served files.
type Catalog struct {
	entries []Entry
	index   map[string]int
}

// New builds a snapshot from entries. Entries are sorted by name.
func New(entries []Entry) (*Catalog, error) {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	index := make(map[string]int, len(sorted))
	for i, e := range sorted {
		if err := ValidateName(e.Name); err != nil {
			return nil, err
		}
		if _, dup := index[e.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntry, e.Name)
		}
		index[e.Name] = i
	}

	return &Catalog{entries: sorted, index: index}, nil
}

// Empty returns a snapshot with no entries.
func Empty() *Catalog {
	return &Catalog{index: map[string]int{}}
}

// Lookup returns the entry for name.
func (c *Catalog) Lookup(name string) (Entry, bool) {
	i, ok := c.index[name]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Entries returns a copy of the entries in name order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c *Catalog) Len() int {
	return len(c.entries)
}

// Format renders the listing sent in reply to LIST: one "name size" per line.
func (c *Catalog) Format() string {
	var b strings.Builder
	for i, e := range c.entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(e.Name)
		b.WriteByte(' ')
		b.WriteString(strconv.FormatUint(e.Size, 10))
	}
	return b.String()
}

// ParseListing is the inverse of Format. Blank lines are skipped.
func ParseListing(text string) (*Catalog, error) {
	var entries []Entry

	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: %q", ErrMalformedEntry, line)
		}
		size, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrMalformedEntry, line, err)
		}
		entries = append(entries, Entry{Name: fields[0], Size: size})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read listing: %w", err)
	}

	return New(entries)
}

// ValidateName accepts plain file names only. Listings are whitespace
// separated, so names with spaces cannot be served either.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrDirectoryEscape, name)
	}
	if strings.ContainsAny(name, " \t\r\n") {
		return fmt.Errorf("%w: %q", ErrNameHasSpace, name)
	}
	return nil
}
