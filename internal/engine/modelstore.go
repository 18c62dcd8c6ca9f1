package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"voxbridge/internal/fileutil"
)

// ModelInfoMarker is written into a model directory once every file has
// been downloaded. Its content is the full model id.
const ModelInfoMarker = ".model_info"

// InstalledModel describes one model found in the store.
type InstalledModel struct {
	ID        string
	Path      string
	Type      string
	SizeBytes int64
	Complete  bool
}

// Store is the local model directory laid out as <root>/<org>/<name>/.
type Store struct {
	root string
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the store directory.
func (s *Store) Root() string { return s.root }

// Path returns the directory holding modelID.
func (s *Store) Path(modelID string) (string, error) {
	org, name, err := splitModelID(modelID)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, org, name), nil
}

// Present reports whether modelID has every listed file plus the marker.
func (s *Store) Present(modelID string, files []string) bool {
	dir, err := s.Path(modelID)
	if err != nil {
		return false
	}
	for _, name := range append([]string{ModelInfoMarker}, files...) {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil || !info.Mode().IsRegular() {
			return false
		}
	}
	return true
}

// MarkComplete writes the marker for modelID.
func (s *Store) MarkComplete(modelID string) error {
	dir, err := s.Path(modelID)
	if err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(filepath.Join(dir, ModelInfoMarker), []byte(modelID+"\n"), 0o644)
}

// List scans <root>/<org>/<name> directories that contain a config.json.
func (s *Store) List() ([]InstalledModel, error) {
	orgs, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan model store: %w", err)
	}
	var models []InstalledModel
	for _, org := range orgs {
		if !org.IsDir() || strings.HasPrefix(org.Name(), ".") {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(s.root, org.Name()))
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			dir := filepath.Join(s.root, org.Name(), entry.Name())
			if _, err := os.Stat(filepath.Join(dir, "config.json")); err != nil {
				continue
			}
			id := org.Name() + "/" + entry.Name()
			_, markerErr := os.Stat(filepath.Join(dir, ModelInfoMarker))
			if data, err := os.ReadFile(filepath.Join(dir, ModelInfoMarker)); err == nil {
				if recorded := strings.TrimSpace(string(data)); recorded != "" {
					id = recorded
				}
			}
			size, _ := fileutil.DirSize(dir)
			models = append(models, InstalledModel{
				ID:        id,
				Path:      dir,
				Type:      modelType(dir),
				SizeBytes: size,
				Complete:  markerErr == nil,
			})
		}
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

func modelType(dir string) string {
	switch {
	case fileExists(filepath.Join(dir, "generation_config.json")):
		return "tts"
	case fileExists(filepath.Join(dir, "vocoder_config.json")):
		return "vocoder"
	default:
		return "unknown"
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func splitModelID(modelID string) (string, string, error) {
	org, name, ok := strings.Cut(strings.Trim(strings.TrimSpace(modelID), "/"), "/")
	if !ok || org == "" || name == "" || strings.Contains(name, "/") || org == ".." || name == ".." {
		return "", "", fmt.Errorf("model id %q must be <org>/<name>", modelID)
	}
	return org, name, nil
}

// modelFamily returns the lowercase family prefix of a model name, e.g.
// "speecht5" for "microsoft/speecht5_tts".
func modelFamily(modelID string) string {
	_, name, err := splitModelID(modelID)
	if err != nil {
		return ""
	}
	name = strings.ToLower(name)
	if i := strings.IndexAny(name, "_-."); i > 0 {
		return name[:i]
	}
	return name
}
