// Package safefs performs file operations jailed to a fixed root
// directory. Every input is a relative path; anything that resolves
// outside the root, and any symlink on the way there, is rejected
// before the filesystem is touched.
package safefs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var ErrEmptyPath = errors.New("empty path is not allowed")

type PathEscapeError struct {
	Path string
}

func (e *PathEscapeError) Error() string {
	return fmt.Sprintf("path escapes base directory: %s", e.Path)
}

type SymlinkNotAllowedError struct {
	Path string
}

func (e *SymlinkNotAllowedError) Error() string {
	return fmt.Sprintf("symlinks not allowed: %s", e.Path)
}

type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("path does not exist: %s", e.Path)
}

type ExistsError struct {
	Path string
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("destination exists: %s", e.Path)
}

// Move strategies reported by Move.
const (
	MovedByRename = "rename"
	MovedByCopy   = "copy"
)

type SafeFS struct {
	root           string
	forbidSymlinks bool
	allowOverwrite bool
}

type Option func(*SafeFS)

func WithAllowOverwrite() Option {
	return func(s *SafeFS) { s.allowOverwrite = true }
}

func WithAllowSymlinks() Option {
	return func(s *SafeFS) { s.forbidSymlinks = false }
}

func New(root string, opts ...Option) (*SafeFS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", root, err)
	}
	s := &SafeFS{
		root:           filepath.Clean(abs),
		forbidSymlinks: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SafeFS) Root() string {
	return s.root
}

// resolve maps a relative path into the jail, checking containment and
// the symlink policy. Nothing is created or modified here.
func (s *SafeFS) resolve(rel string, mustExist bool) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", ErrEmptyPath
	}
	if filepath.IsAbs(rel) {
		return "", &PathEscapeError{Path: rel}
	}

	candidate := filepath.Join(s.root, rel) // Join cleans, so ".." collapses here
	if candidate != s.root && !strings.HasPrefix(candidate, s.root+string(filepath.Separator)) {
		return "", &PathEscapeError{Path: rel}
	}

	if s.forbidSymlinks {
		// Walk component by component so a symlinked directory anywhere
		// on the way is caught, not only a symlink at the target.
		// Components that do not exist yet cannot be symlinks, stop there.
		current := s.root
		relPart := strings.TrimPrefix(candidate, s.root+string(filepath.Separator))
		if candidate != s.root {
			for _, part := range strings.Split(relPart, string(filepath.Separator)) {
				current = filepath.Join(current, part)
				fi, err := os.Lstat(current)
				if os.IsNotExist(err) {
					break
				}
				if err != nil {
					return "", err
				}
				if fi.Mode()&os.ModeSymlink != 0 {
					return "", &SymlinkNotAllowedError{Path: rel}
				}
			}
		}
	}

	if mustExist {
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return "", &NotFoundError{Path: rel}
		} else if err != nil {
			return "", err
		}
	}

	return candidate, nil
}

// Exists reports whether the path is present inside the jail. Escaping
// paths are an error, not a false.
func (s *SafeFS) Exists(relPath string) (bool, error) {
	p, err := s.resolve(relPath, false)
	if err != nil {
		return false, err
	}
	if _, err := os.Lstat(p); os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

// Move relocates src to dst inside the jail. It renames when it can and
// falls back to copy-then-delete across filesystems; the returned
// strategy says which happened.
func (s *SafeFS) Move(relSrc, relDst string) (string, error) {
	src, err := s.resolve(relSrc, true)
	if err != nil {
		return "", err
	}
	dst, err := s.resolve(relDst, false)
	if err != nil {
		return "", err
	}

	if _, err := os.Lstat(dst); err == nil && !s.allowOverwrite {
		return "", &ExistsError{Path: relDst}
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("failed to create parent dir for %s: %w", relDst, err)
	}

	if err := os.Rename(src, dst); err == nil {
		return MovedByRename, nil
	}

	// cross-device or similar, copy then delete
	if err := copyFileContents(src, dst); err != nil {
		return "", fmt.Errorf("failed to move %s: %w", relSrc, err)
	}
	if err := os.Remove(src); err != nil {
		return "", fmt.Errorf("failed to remove source after copy %s: %w", relSrc, err)
	}
	return MovedByCopy, nil
}

// CopyFile copies through a temp file in the destination directory and
// renames it into place, so a reader never observes a half-written file.
func (s *SafeFS) CopyFile(relSrc, relDst string) error {
	src, err := s.resolve(relSrc, true)
	if err != nil {
		return err
	}
	fi, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return fmt.Errorf("copy expects a file, got directory: %s", relSrc)
	}

	dst, err := s.resolve(relDst, false)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(dst); err == nil && !s.allowOverwrite {
		return &ExistsError{Path: relDst}
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create parent dir for %s: %w", relDst, err)
	}

	return copyFileContents(src, dst)
}

func copyFileContents(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".safefs-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if fi, err := os.Stat(src); err == nil {
		_ = os.Chmod(tmpName, fi.Mode())
	}
	return os.Rename(tmpName, dst)
}

func (s *SafeFS) Mkdir(relDir string) error {
	d, err := s.resolve(relDir, false)
	if err != nil {
		return err
	}
	return os.MkdirAll(d, 0755)
}

func (s *SafeFS) RemoveFile(relPath string) error {
	p, err := s.resolve(relPath, true)
	if err != nil {
		return err
	}
	fi, err := os.Lstat(p)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return fmt.Errorf("expected file, got directory: %s", relPath)
	}
	return os.Remove(p)
}

func (s *SafeFS) RemoveTree(relDir string) error {
	d, err := s.resolve(relDir, true)
	if err != nil {
		return err
	}
	fi, err := os.Lstat(d)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("expected directory: %s", relDir)
	}
	return os.RemoveAll(d)
}

func (s *SafeFS) ListDir(relDir string) ([]string, error) {
	d, err := s.resolve(relDir, true)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(d)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// AtomicWriteText writes data through a temp file plus rename.
func (s *SafeFS) AtomicWriteText(relPath, data string) error {
	dst, err := s.resolve(relPath, false)
	if err != nil {
		return err
	}
	if fi, err := os.Lstat(dst); err == nil {
		if fi.IsDir() {
			return fmt.Errorf("expected file path, got directory: %s", relPath)
		}
		if !s.allowOverwrite {
			return &ExistsError{Path: relPath}
		}
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create parent dir for %s: %w", relPath, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".safefs-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, dst)
}
