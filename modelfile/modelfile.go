// Package modelfile reads decision models from YAML or JSON documents.
package modelfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/liamcoop/dmn/rules"
)

// Extensions lists the file extensions LoadDir reads
var Extensions = []string{".yaml", ".yml", ".json"}

// Decode reads one model document. Unknown fields are rejected so typos in
// clause names do not silently drop data.
func Decode(r io.Reader) (*rules.DecisionModel, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var m rules.DecisionModel
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty model document")
		}
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	if err := m.Normalize(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Parse decodes a model held in memory
func Parse(data []byte) (*rules.DecisionModel, error) {
	return Decode(bytes.NewReader(data))
}

// Encode writes m as YAML
func Encode(w io.Writer, m *rules.DecisionModel) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to encode model %s: %w", m.ID, err)
	}
	return enc.Close()
}

// LoadFile reads a model file. A model without an ID takes the file name
// without its extension.
func LoadFile(path string) (*rules.DecisionModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model file %q: %w", path, err)
	}
	defer f.Close()

	m, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if m.ID == "" {
		m.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// LoadDir loads every model file directly inside dir, in file name order.
// Files that fail are skipped and reported together in the returned error.
func LoadDir(dir string) ([]*rules.DecisionModel, error) {
	paths, err := modelFiles(dir)
	if err != nil {
		return nil, err
	}

	var (
		models []*rules.DecisionModel
		result *multierror.Error
		seen   = make(map[string]string)
	)
	for _, p := range paths {
		m, err := LoadFile(p)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if prev, dup := seen[m.ID]; dup {
			result = multierror.Append(result, fmt.Errorf("%s: model ID %q already defined in %s", p, m.ID, prev))
			continue
		}
		seen[m.ID] = p
		models = append(models, m)
	}
	return models, result.ErrorOrNil()
}

func modelFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read model directory %q: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !isModelFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func isModelFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}
