package typemodel

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/patchcache/pkg/types"
)

// File records mirror the generated type-model files: an object keyed by
// type id whose values and associations are objects keyed by attribute id.
// JSON files parse as YAML, so one decoder serves both.

type valueRecord struct {
	ID          int64  `yaml:"id"`
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Cardinality string `yaml:"cardinality"`
	Encrypted   bool   `yaml:"encrypted"`
	Final       bool   `yaml:"final"`
}

type associationRecord struct {
	ID          int64   `yaml:"id"`
	Name        string  `yaml:"name"`
	Type        string  `yaml:"type"`
	Cardinality string  `yaml:"cardinality"`
	RefTypeID   int64   `yaml:"refTypeId"`
	Dependency  *string `yaml:"dependency"`
	Final       bool    `yaml:"final"`
}

type modelRecord struct {
	Name         string                       `yaml:"name"`
	ID           int64                        `yaml:"id"`
	Type         string                       `yaml:"type"`
	Encrypted    bool                         `yaml:"encrypted"`
	App          string                       `yaml:"app"`
	Version      string                       `yaml:"version"`
	Values       map[string]valueRecord       `yaml:"values"`
	Associations map[string]associationRecord `yaml:"associations"`
}

// Parse decodes a type-model file.
func Parse(data []byte) ([]*types.TypeModel, error) {
	var records map[string]modelRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidTypeModel, err)
	}
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	models := make([]*types.TypeModel, 0, len(records))
	for _, k := range keys {
		m, err := records[k].toModel(k)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}

func (r modelRecord) toModel(key string) (*types.TypeModel, error) {
	typeID, err := strconv.ParseInt(key, 10, 64)
	if err != nil || typeID != r.ID {
		return nil, fmt.Errorf("%w: type %q keyed %q", types.ErrInvalidTypeModel, r.Name, key)
	}
	m := &types.TypeModel{
		App:          r.App,
		ID:           r.ID,
		Name:         r.Name,
		Version:      r.Version,
		Type:         types.Kind(r.Type),
		Encrypted:    r.Encrypted,
		Values:       make(map[types.AttributeID]types.ModelValue, len(r.Values)),
		Associations: make(map[types.AttributeID]types.ModelAssociation, len(r.Associations)),
	}
	for k, v := range r.Values {
		id, err := types.ParseAttributeID(k)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", types.ErrInvalidTypeModel, r.Name, err)
		}
		m.Values[id] = types.ModelValue{
			ID:          types.AttributeID(v.ID),
			Name:        v.Name,
			Type:        types.ValueType(v.Type),
			Cardinality: types.Cardinality(v.Cardinality),
			Encrypted:   v.Encrypted,
			Final:       v.Final,
		}
	}
	for k, a := range r.Associations {
		id, err := types.ParseAttributeID(k)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", types.ErrInvalidTypeModel, r.Name, err)
		}
		dep := ""
		if a.Dependency != nil {
			dep = *a.Dependency
		}
		m.Associations[id] = types.ModelAssociation{
			ID:          types.AttributeID(a.ID),
			Name:        a.Name,
			Type:        types.AssociationType(a.Type),
			Cardinality: types.Cardinality(a.Cardinality),
			RefTypeID:   a.RefTypeID,
			Dependency:  dep,
			Final:       a.Final,
		}
	}
	return m, nil
}

// LoadFile parses one type-model file.
func LoadFile(path string) ([]*types.TypeModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	models, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return models, nil
}

// LoadDir registers every .json, .yaml and .yml file in dir, in name order,
// then verifies cross-model references.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading models dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}
		models, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		if err := r.Register(models...); err != nil {
			return fmt.Errorf("registering %s: %w", e.Name(), err)
		}
	}
	return r.Verify()
}
