package sandbox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Workspace is a private directory. All names are resolved inside it;
// absolute paths and names escaping it are rejected.
type Workspace struct {
	dir string
}

// NewWorkspace creates a fresh directory under parent (os.TempDir when empty).
func NewWorkspace(parent, prefix string) (*Workspace, error) {
	if parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return nil, fmt.Errorf("create workspace parent: %w", err)
		}
	}
	dir, err := os.MkdirTemp(parent, prefix+"-*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the workspace root.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path resolves name inside the workspace.
func (w *Workspace) Path(name string) (string, error) {
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("path %q escapes the workspace", name)
	}
	return filepath.Join(w.dir, name), nil
}

// WriteFile replaces name with data.
func (w *Workspace) WriteFile(name string, data []byte) error {
	p, err := w.Path(name)
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}

// ReadFile returns the contents of name.
func (w *Workspace) ReadFile(name string) ([]byte, error) {
	p, err := w.Path(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// Exists reports whether name is a regular file.
func (w *Workspace) Exists(name string) (bool, error) {
	p, err := w.Path(name)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// Remove deletes name; a missing file is not an error.
func (w *Workspace) Remove(name string) error {
	p, err := w.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Close removes the workspace and everything in it.
func (w *Workspace) Close() error {
	return os.RemoveAll(w.dir)
}
