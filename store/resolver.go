package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Resolve maps a client supplied path to an absolute path under root.
// A leading slash is ignored, so "/a" and "a" name the same file, and an
// empty path names the root. Paths that would climb out of root are
// rejected with ErrInvalidPath.
func Resolve(root, clientPath string) (string, error) {
	rel := strings.TrimLeft(filepath.FromSlash(clientPath), string(filepath.Separator))
	if rel == "" {
		return root, nil
	}
	rel = filepath.Clean(rel)
	if rel == "." {
		return root, nil
	}
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, clientPath)
	}
	return filepath.Join(root, rel), nil
}

// EnsureParentDirs creates every missing directory between root and the
// parent of absPath, one component at a time. It stops at the first
// failure and leaves whatever it already created in place.
func EnsureParentDirs(root, absPath string, mode os.FileMode) error {
	parent := filepath.Dir(absPath)
	rel, err := filepath.Rel(root, parent)
	if err != nil {
		return err
	}
	if rel == "." {
		return nil
	}
	if !filepath.IsLocal(rel) {
		return fmt.Errorf("%w: %s", ErrInvalidPath, absPath)
	}

	cur := root
	for _, name := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, name)
		info, err := os.Stat(cur)
		if err == nil {
			if !info.IsDir() {
				return fmt.Errorf("%s: not a directory", cur)
			}
			continue
		}
		if !os.IsNotExist(err) {
			return err
		}
		if err := os.Mkdir(cur, mode); err != nil && !os.IsExist(err) {
			return err
		}
	}
	return nil
}

// OpenRoot returns the absolute form of path, creating the directory with
// mode when it does not exist yet.
func OpenRoot(path string, mode os.FileMode) (string, error) {
	if path == "" {
		return "", fmt.Errorf("root directory is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		if err := os.Mkdir(abs, mode); err != nil {
			return "", fmt.Errorf("creating root %s: %w", abs, err)
		}
		info, err = os.Stat(abs)
	}
	if err != nil {
		return "", fmt.Errorf("opening root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("root %s is not a directory", abs)
	}

	d, err := os.Open(abs)
	if err != nil {
		return "", fmt.Errorf("opening root %s: %w", abs, err)
	}
	d.Close()
	return abs, nil
}
