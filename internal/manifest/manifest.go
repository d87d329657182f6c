// Package manifest reads and writes the JSON indexes that map notebook
// names to exported artifacts. Both manifests are rewritten wholesale on
// every build.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/alnah/go-nbembed/internal/fileutil"
)

// File names inside the static tree.
const (
	GalleryFile = "gallery_manifest.json"
	DirectFile  = "manifest.json"
)

// Version is the direct manifest format version.
const Version = "0.1.0"

// Sentinel errors for manifest operations.
var (
	ErrManifestNotFound = errors.New("manifest not found")
	ErrManifestParse    = errors.New("failed to parse manifest")
	ErrManifestWrite    = errors.New("failed to write manifest")
)

// Gallery maps gallery notebook stems to artifact paths relative to the
// _static directory.
type Gallery struct {
	Notebooks  map[string]string `json:"gallery_notebooks"`
	TotalCount int               `json:"total_count"`
}

// NewGallery builds a gallery manifest; TotalCount always equals len(m).
func NewGallery(m map[string]string) Gallery {
	if m == nil {
		m = map[string]string{}
	}
	return Gallery{Notebooks: m, TotalCount: len(m)}
}

// Entry is one notebook of the direct manifest.
type Entry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`   // source, relative to the notebook dir
	Output      string `json:"output"` // artifact, relative to the static dir
	Placeholder bool   `json:"placeholder,omitempty"`
}

// Direct is the manifest written by the direct-mode builder.
type Direct struct {
	Notebooks   []Entry   `json:"notebooks"`
	Version     string    `json:"version"`
	BuildID     string    `json:"build_id,omitempty"`
	GeneratedAt time.Time `json:"generated_at,omitzero"`
}

// Sort orders entries by name so reruns produce stable files.
func (d *Direct) Sort() {
	sort.Slice(d.Notebooks, func(i, j int) bool { return d.Notebooks[i].Name < d.Notebooks[j].Name })
}

// Lookup returns the entry with the given name.
func (d Direct) Lookup(name string) (Entry, bool) {
	for _, e := range d.Notebooks {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// WriteGallery writes g to path with 2-space indentation.
func WriteGallery(path string, g Gallery) error {
	g.TotalCount = len(g.Notebooks)
	if g.Notebooks == nil {
		g.Notebooks = map[string]string{}
	}
	return write(path, g)
}

// WriteDirect writes d to path with 2-space indentation.
func WriteDirect(path string, d Direct) error {
	if d.Notebooks == nil {
		d.Notebooks = []Entry{}
	}
	if d.Version == "" {
		d.Version = Version
	}
	return write(path, d)
}

func write(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrManifestWrite, err)
	}
	data = append(data, '\n')
	if err := fileutil.WriteFileAtomic(path, data, fileutil.FilePermissions); err != nil {
		return fmt.Errorf("%w: %v", ErrManifestWrite, err)
	}
	return nil
}

// ReadGallery reads a gallery manifest.
func ReadGallery(path string) (Gallery, error) {
	var g Gallery
	if err := read(path, &g); err != nil {
		return Gallery{}, err
	}
	if g.Notebooks == nil {
		g.Notebooks = map[string]string{}
	}
	return g, nil
}

// ReadDirect reads a direct manifest.
func ReadDirect(path string) (Direct, error) {
	var d Direct
	if err := read(path, &d); err != nil {
		return Direct{}, err
	}
	return d, nil
}

func read(path string, v any) error {
	data, err := os.ReadFile(path) // #nosec G304 -- manifest path derived from the output dir
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrManifestNotFound, path)
		}
		return fmt.Errorf("%w: %v", ErrManifestParse, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrManifestParse, path, err)
	}
	return nil
}
