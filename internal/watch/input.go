// Package watch turns an input file of requested names into a stream of
// download jobs.
package watch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"yaftp/internal/catalog"
)

// InputWatcher follows an input file holding one file name per line
type InputWatcher struct {
	path string
	log  *logrus.Entry
}

// NewInputWatcher creates a watcher for the input file at path
func NewInputWatcher(path string, log *logrus.Entry) *InputWatcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &InputWatcher{
		path: filepath.Clean(path),
		log:  log.WithField("component", "watch"),
	}
}

// Subscribe returns a channel of names requested in the input file. Names
// already present are delivered first; after that the file is re-read on
// every write and each name is delivered at most once. The channel is
// closed when ctx is done.
func (w *InputWatcher) Subscribe(ctx context.Context) (<-chan string, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// the directory is watched so the file may be created or replaced later
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	names := make(chan string)
	go func() {
		defer close(names)
		defer watcher.Close()

		seen := make(map[string]struct{})
		if !w.deliver(ctx, names, seen) {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != w.path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if !w.deliver(ctx, names, seen) {
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.log.WithFields(logrus.Fields{
					"function": "Subscribe",
					"error":    err,
				}).Warn("Watcher error")
			}
		}
	}()

	return names, nil
}

// deliver sends every unseen name in the input file. It returns false when
// ctx ended first.
func (w *InputWatcher) deliver(ctx context.Context, out chan<- string, seen map[string]struct{}) bool {
	names, err := ReadNames(w.path)
	if err != nil {
		w.log.WithFields(logrus.Fields{
			"function": "deliver",
			"path":     w.path,
			"error":    err,
		}).Warn("Failed to read input file")
		return true
	}

	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		if err := catalog.ValidateName(name); err != nil {
			w.log.WithFields(logrus.Fields{
				"function": "deliver",
				"name":     name,
				"error":    err,
			}).Warn("Ignoring invalid name")
			continue
		}

		select {
		case out <- name:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// ReadNames returns the non-empty lines of the input file in order, without
// duplicates. A missing file holds no names.
func ReadNames(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	var names []string
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	return names, nil
}

// AppendNames adds names to the input file, creating it when needed
func AppendNames(path string, names []string) error {
	for _, name := range names {
		if err := catalog.ValidateName(name); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte('\n')
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return fmt.Errorf("failed to append to input file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close input file: %w", err)
	}
	return nil
}
