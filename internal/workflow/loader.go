package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Load reads and validates one workflow file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow %s: %w", path, err)
	}

	def := &Definition{}
	if err := yaml.Unmarshal(data, def); err != nil {
		return nil, fmt.Errorf("parse workflow %s: %w", path, err)
	}
	if def.Name == "" {
		// A file without an explicit name is named after itself.
		base := filepath.Base(path)
		def.Name = base[:len(base)-len(filepath.Ext(base))]
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// LoadDir loads every .yaml/.yml workflow in a directory, sorted by file
// name so load order is stable.
func LoadDir(dir string) ([]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read workflow dir %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)

	defs := make([]*Definition, 0, len(paths))
	for _, path := range paths {
		def, err := Load(path)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}
