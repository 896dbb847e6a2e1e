package files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sandevgo/ctxkeeper/internal/core"
	"github.com/sandevgo/ctxkeeper/pkg/log"
)

const (
	Ext      = ".txt"
	RootName = "(root)"
)

var (
	ErrExists      = core.ErrExists
	ErrInvalidName = core.ErrInvalidName
)

// Store keeps context files as plain text under root. A category is a
// single-level subdirectory; names are unique across all categories.
type Store struct {
	root string
	now  func() time.Time

	mu    sync.Mutex
	cache map[string]string
}

func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create context files directory: %w", err)
	}
	return &Store{
		root:  root,
		now:   time.Now,
		cache: make(map[string]string),
	}, nil
}

func (s *Store) Root() string {
	return s.root
}

// Create writes a new file and returns its path. An empty name becomes
// context_<timestamp>.txt.
func (s *Store) Create(ctx context.Context, content, name, category string) (string, error) {
	if name == "" {
		name = "context_" + s.now().Format("20060102_150405") + Ext
	}
	name, err := normalizeName(name)
	if err != nil {
		return "", err
	}
	if err := validSegment(category); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.findLocked(name); err == nil {
		return "", fmt.Errorf("%s: %w", name, ErrExists)
	}

	dir := s.dir(category)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create category %s: %w", category, err)
	}

	path := filepath.Join(dir, name)
	if err := writeAtomic(path, []byte(content)); err != nil {
		return "", err
	}
	delete(s.cache, name)

	log.FromCtx(ctx).Info().Str("file", name).Str("category", category).Msg("context file created")
	return path, nil
}

// Load returns file content, served from cache after the first read.
func (s *Store) Load(ctx context.Context, name string) (string, error) {
	name, err := normalizeName(name)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.cache[name]; ok {
		return c, nil
	}

	path, err := s.findLocked(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read context file %s: %w", name, err)
	}

	s.cache[name] = string(data)
	return string(data), nil
}

// Update replaces the content, or appends it on a new line when appendMode is set.
func (s *Store) Update(ctx context.Context, name, content string, appendMode bool) error {
	name, err := normalizeName(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.findLocked(name)
	if err != nil {
		return err
	}

	data := []byte(content)
	if appendMode {
		old, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read context file %s: %w", name, err)
		}
		data = append(append(old, '\n'), data...)
	}

	if err := writeAtomic(path, data); err != nil {
		return err
	}
	delete(s.cache, name)

	log.FromCtx(ctx).Info().Str("file", name).Bool("append", appendMode).Msg("context file updated")
	return nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	name, err := normalizeName(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.findLocked(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete context file %s: %w", name, err)
	}
	delete(s.cache, name)

	log.FromCtx(ctx).Info().Str("file", name).Msg("context file deleted")
	return nil
}

// Move puts the file into category; "" or "(root)" means the top directory.
func (s *Store) Move(ctx context.Context, name, category string) error {
	name, err := normalizeName(name)
	if err != nil {
		return err
	}
	if category == RootName {
		category = ""
	}
	if err := validSegment(category); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	from, err := s.findLocked(name)
	if err != nil {
		return err
	}

	dir := s.dir(category)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create category %s: %w", category, err)
	}
	if err := os.Rename(from, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("failed to move context file %s: %w", name, err)
	}
	delete(s.cache, name)

	log.FromCtx(ctx).Info().Str("file", name).Str("category", category).Msg("context file moved")
	return nil
}

// List returns files of one category, or of all categories when category is
// empty, newest first.
func (s *Store) List(ctx context.Context, category string) ([]core.ContextFileEntry, error) {
	if err := validSegment(category); err != nil {
		return nil, err
	}

	var dirs []string
	if category != "" {
		dirs = []string{category}
	} else {
		cats, err := s.subdirs()
		if err != nil {
			return nil, err
		}
		dirs = append([]string{""}, cats...)
	}

	entries := []core.ContextFileEntry{}
	for _, cat := range dirs {
		matches, err := filepath.Glob(filepath.Join(s.dir(cat), "*"+Ext))
		if err != nil {
			return nil, fmt.Errorf("failed to list context files: %w", err)
		}
		for _, path := range matches {
			info, err := os.Stat(path)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			rel, _ := filepath.Rel(s.root, path)
			entries = append(entries, core.ContextFileEntry{
				Name:     info.Name(),
				Path:     rel,
				Category: cat,
				Size:     info.Size(),
				Modified: info.ModTime(),
			})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Modified.Equal(entries[j].Modified) {
			return entries[i].Modified.After(entries[j].Modified)
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// Categories lists "(root)" and every category directory, sorted.
func (s *Store) Categories(ctx context.Context) ([]string, error) {
	cats, err := s.subdirs()
	if err != nil {
		return nil, err
	}
	out := append([]string{RootName}, cats...)
	sort.Strings(out)
	return out, nil
}

func (s *Store) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.cache)
}

func (s *Store) subdirs() ([]string, error) {
	items, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read context files directory: %w", err)
	}
	var out []string
	for _, it := range items {
		if it.IsDir() && !strings.HasPrefix(it.Name(), ".") {
			out = append(out, it.Name())
		}
	}
	return out, nil
}

func (s *Store) dir(category string) string {
	if category == "" {
		return s.root
	}
	return filepath.Join(s.root, category)
}

// findLocked looks in the root first, then in every category.
func (s *Store) findLocked(name string) (string, error) {
	path := filepath.Join(s.root, name)
	if fileExists(path) {
		return path, nil
	}

	cats, err := s.subdirs()
	if err != nil {
		return "", err
	}
	for _, cat := range cats {
		path := filepath.Join(s.root, cat, name)
		if fileExists(path) {
			return path, nil
		}
	}
	return "", fmt.Errorf("context file %s: %w", name, core.ErrNotFound)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if err := validSegment(name); err != nil || name == "" {
		return "", fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	if !strings.HasSuffix(name, Ext) {
		name += Ext
	}
	return name, nil
}

func validSegment(seg string) error {
	if seg == "" {
		return nil
	}
	if seg == "." || seg == ".." || strings.ContainsAny(seg, `/\`) || seg != filepath.Base(seg) {
		return fmt.Errorf("%q: %w", seg, ErrInvalidName)
	}
	return nil
}

// writeAtomic writes to a temp file in the target directory and renames it
// into place so readers never observe a partial file.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
