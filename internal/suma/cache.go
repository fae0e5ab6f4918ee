package suma

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultCacheFile is where the service packs per technical level are kept.
const DefaultCacheFile = "aixautomation/suma/sp_per_tl.yml"

// SpPerTL maps technical levels to the service packs found at each. Levels
// keep insertion order, which is discovery order when built by the miner.
type SpPerTL struct {
	order []string
	sps   map[string][]string
}

// NewSpPerTL returns an empty map.
func NewSpPerTL() *SpPerTL {
	return &SpPerTL{sps: make(map[string][]string)}
}

// Set stores sps for level. A new level goes last; an existing one keeps its
// position.
func (m *SpPerTL) Set(level string, sps []string) {
	if m.sps == nil {
		m.sps = make(map[string][]string)
	}
	if _, ok := m.sps[level]; !ok {
		m.order = append(m.order, level)
	}
	if sps == nil {
		sps = []string{}
	}
	m.sps[level] = sps
}

// Delete removes level. Deleting an absent level is a no-op.
func (m *SpPerTL) Delete(level string) {
	if _, ok := m.sps[level]; !ok {
		return
	}
	delete(m.sps, level)
	for i, l := range m.order {
		if l == level {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Get returns the service packs of level.
func (m *SpPerTL) Get(level string) ([]string, bool) {
	if m == nil {
		return nil, false
	}
	sps, ok := m.sps[level]
	return sps, ok
}

// Levels returns the levels in order.
func (m *SpPerTL) Levels() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.order...)
}

// Len returns the number of levels.
func (m *SpPerTL) Len() int {
	if m == nil {
		return 0
	}
	return len(m.order)
}

// Merge appends every level of other, in its order.
func (m *SpPerTL) Merge(other *SpPerTL) {
	for _, level := range other.Levels() {
		sps, _ := other.Get(level)
		m.Set(level, sps)
	}
}

// MarshalYAML writes the levels as an ordered mapping.
func (m *SpPerTL) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, level := range m.order {
		list := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		sps := m.sps[level]
		if len(sps) == 0 {
			list.Style = yaml.FlowStyle
		}
		for _, sp := range sps {
			list.Content = append(list.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: sp})
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: level},
			list)
	}
	return node, nil
}

// UnmarshalYAML reads an ordered mapping of level to service packs. A null
// list reads as empty.
func (m *SpPerTL) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: service packs per technical level must be a mapping", node.Line)
	}
	out := NewSpPerTL()
	for i := 0; i+1 < len(node.Content); i += 2 {
		var level string
		if err := node.Content[i].Decode(&level); err != nil {
			return err
		}
		var sps []string
		if err := node.Content[i+1].Decode(&sps); err != nil {
			return fmt.Errorf("level %s: %w", level, err)
		}
		out.Set(level, sps)
	}
	*m = *out
	return nil
}

// Cache persists a SpPerTL between runs.
type Cache interface {
	// Load returns nil, without error, when nothing usable is stored.
	Load() (*SpPerTL, error)
	Save(*SpPerTL) error
}

// YAMLCache stores a SpPerTL in a YAML file.
type YAMLCache struct {
	Path string
}

// NewYAMLCache returns a cache backed by path (DefaultCacheFile if empty).
func NewYAMLCache(path string) *YAMLCache {
	if path == "" {
		path = DefaultCacheFile
	}
	return &YAMLCache{Path: path}
}

// Load reads the cache file. An absent, empty or null file yields nil.
func (c *YAMLCache) Load() (*SpPerTL, error) {
	data, err := os.ReadFile(c.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse cache %s: %w", c.Path, err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Tag == "!!null" {
		return nil, nil
	}

	m := NewSpPerTL()
	if err := doc.Content[0].Decode(m); err != nil {
		return nil, fmt.Errorf("parse cache %s: %w", c.Path, err)
	}
	if m.Len() == 0 {
		return nil, nil
	}
	return m, nil
}

// Save writes m to the cache file, replacing it atomically.
func (c *YAMLCache) Save(m *SpPerTL) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.Path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	tmp := c.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	if err := os.Rename(tmp, c.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace cache: %w", err)
	}
	return nil
}
