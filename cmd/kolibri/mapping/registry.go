package mapping

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// specDocument is the on-disk shape of a mapping spec: one JSON document per
// resource type. Columns are a list so declaration order survives decoding.
type specDocument struct {
	ResourceType string       `json:"resourceType"`
	Columns      []columnRule `json:"columns"`
	PartitionBy  []columnRule `json:"partitionBy,omitempty"`
}

type columnRule struct {
	Name string `json:"name"`
	Rule string `json:"rule"`
}

// Registry holds the compiled mapping specs by resource type. Specs are
// loaded once at startup and read-only afterwards, so lookups need no
// locking.
type Registry struct {
	specs map[string]*Spec
	log   zerolog.Logger
}

func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		specs: make(map[string]*Spec),
		log:   log.With().Str("component", "mapping_registry").Logger(),
	}
}

// LoadFile loads and compiles a single mapping spec file. A malformed rule
// fails the load; rules are never re-parsed per resource.
func (r *Registry) LoadFile(filePath string) error {
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read mapping spec %s: %w", filePath, err)
	}

	var doc specDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to parse mapping spec %s: %w", filePath, err)
	}
	if doc.ResourceType == "" {
		return fmt.Errorf("mapping spec %s has no resourceType", filePath)
	}
	if len(doc.Columns) == 0 {
		return fmt.Errorf("mapping spec %s has no columns", filePath)
	}

	spec, err := compileSpec(doc)
	if err != nil {
		return fmt.Errorf("mapping spec %s: %w", filePath, err)
	}

	r.specs[spec.ResourceType] = spec
	r.log.Debug().
		Str("resourceType", spec.ResourceType).
		Int("columns", len(spec.Columns)).
		Str("file", filePath).
		Msg("Loaded mapping spec")
	return nil
}

// LoadDirectory loads every .json spec file in a directory.
func (r *Registry) LoadDirectory(dirPath string) error {
	files, err := os.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("failed to read mapping spec directory %s: %w", dirPath, err)
	}

	var loadErrors []error
	loaded := 0

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		filePath := filepath.Join(dirPath, file.Name())
		if err := r.LoadFile(filePath); err != nil {
			loadErrors = append(loadErrors, err)
			r.log.Error().Err(err).
				Str("file", file.Name()).
				Msg("Failed to load mapping spec")
			continue
		}
		loaded++
	}

	r.log.Info().
		Int("total_files", len(files)).
		Int("loaded", loaded).
		Int("errors", len(loadErrors)).
		Str("directory", dirPath).
		Msg("Completed loading mapping specs")

	if len(loadErrors) > 0 {
		return fmt.Errorf("encountered %d errors while loading mapping specs: %w",
			len(loadErrors), loadErrors[0])
	}
	return nil
}

func compileSpec(doc specDocument) (*Spec, error) {
	spec := &Spec{ResourceType: doc.ResourceType}

	compile := func(rules []columnRule) ([]Column, error) {
		cols := make([]Column, 0, len(rules))
		for _, cr := range rules {
			if cr.Name == "" {
				return nil, fmt.Errorf("column with empty name")
			}
			rule, err := ParseRule(cr.Rule)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", cr.Name, err)
			}
			cols = append(cols, Column{Name: cr.Name, Rule: rule})
		}
		return cols, nil
	}

	var err error
	if spec.Columns, err = compile(doc.Columns); err != nil {
		return nil, err
	}
	if spec.PartitionBy, err = compile(doc.PartitionBy); err != nil {
		return nil, err
	}
	return spec, nil
}

// Get returns the spec for a resource type.
func (r *Registry) Get(resourceType string) (*Spec, error) {
	spec, exists := r.specs[resourceType]
	if !exists {
		return nil, fmt.Errorf("no mapping spec loaded for resource type %s", resourceType)
	}
	return spec, nil
}

// ResourceTypes lists the loaded resource types in sorted order.
func (r *Registry) ResourceTypes() []string {
	types := maps.Keys(r.specs)
	slices.Sort(types)
	return types
}
