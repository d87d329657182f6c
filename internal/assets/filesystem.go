package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alnah/go-nbembed/internal/fileutil"
)

// Subdirectories of a custom assets directory.
const (
	staticSubdir   = "static"
	templateSubdir = "templates"
)

// FilesystemLoader reads overrides from a user assets directory laid out
// like the embedded tree: static/<file> and templates/<name>.html.
type FilesystemLoader struct {
	root string // absolute, symlinks resolved
}

// NewFilesystemLoader opens dir as an assets directory.
// Returns ErrInvalidBasePath unless dir is a readable directory.
func NewFilesystemLoader(dir string) (*FilesystemLoader, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidBasePath)
	}
	root, err := resolve(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBasePath, err)
	}
	if !fileutil.DirExists(root) {
		return nil, fmt.Errorf("%w: not a directory: %s", ErrInvalidBasePath, root)
	}
	if _, err := os.ReadDir(root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBasePath, err)
	}
	return &FilesystemLoader{root: root}, nil
}

// BasePath returns the resolved assets directory.
func (f *FilesystemLoader) BasePath() string {
	return f.root
}

// LoadStatic reads static/<name>.
func (f *FilesystemLoader) LoadStatic(name string) (string, error) {
	if err := ValidateStaticName(name); err != nil {
		return "", err
	}
	return f.read(filepath.Join(staticSubdir, name), ErrStaticNotFound)
}

// LoadTemplate reads templates/<name>.html.
func (f *FilesystemLoader) LoadTemplate(name string) (string, error) {
	if err := ValidateAssetName(name); err != nil {
		return "", err
	}
	return f.read(filepath.Join(templateSubdir, name+".html"), ErrTemplateNotFound)
}

// read loads rel from the assets directory. The resolved target must stay
// inside it, so a symlink cannot expose other files.
func (f *FilesystemLoader) read(rel string, notFound error) (string, error) {
	target, err := resolve(filepath.Join(f.root, rel))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPathTraversal, err)
	}
	if inside, err := fileutil.SlashRel(f.root, target); err != nil || inside == "." {
		return "", fmt.Errorf("%w: %s escapes %s", ErrPathTraversal, rel, f.root)
	}

	content, err := os.ReadFile(target) // #nosec G304 -- contained in the assets directory
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %q", notFound, filepath.ToSlash(rel))
		}
		return "", fmt.Errorf("%w: %v", ErrAssetRead, err)
	}
	return string(content), nil
}

// resolve returns the absolute path with symlinks evaluated. A path that
// does not exist is returned unresolved; reading it fails later.
func resolve(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, nil
	}
	return abs, nil
}

var _ AssetLoader = (*FilesystemLoader)(nil)
