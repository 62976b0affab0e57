package portfolio

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed registry.yaml
var defaultRegistryDocument []byte

// Registry is the static catalog of resource groups. It is built once and
// exposes no mutation API; every accessor returns copies.
type Registry struct {
	groups   []ResourceGroup
	byKey    map[string]int
	byTable  map[string]string
	bindings map[string]AssetBinding
}

type registryDocument struct {
	Groups []ResourceGroup `yaml:"groups"`
	Assets []AssetBinding  `yaml:"assets"`
}

var (
	defaultRegistryOnce sync.Once
	defaultRegistry     *Registry
)

// DefaultRegistry returns the registry compiled into the binary.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		r, err := ParseRegistry(defaultRegistryDocument)
		if err != nil {
			panic(fmt.Sprintf("embedded registry is invalid: %v", err))
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

// ParseRegistry builds a registry from a YAML document.
func ParseRegistry(data []byte) (*Registry, error) {
	var doc registryDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse registry: %w", err)
	}
	return NewRegistry(doc.Groups, doc.Assets)
}

// NewRegistry validates groups and bindings and builds a registry.
//
// Keys must be unique, every table must belong to exactly one group, and
// each binding's table and bucket must belong to the same group.
func NewRegistry(groups []ResourceGroup, bindings []AssetBinding) (*Registry, error) {
	r := &Registry{
		groups:   make([]ResourceGroup, 0, len(groups)),
		byKey:    make(map[string]int, len(groups)),
		byTable:  make(map[string]string),
		bindings: make(map[string]AssetBinding, len(bindings)),
	}

	for _, g := range groups {
		if g.Key == "" {
			return nil, fmt.Errorf("resource group %q has an empty key", g.Label)
		}
		if _, dup := r.byKey[g.Key]; dup {
			return nil, fmt.Errorf("duplicate resource group key %q", g.Key)
		}
		if len(g.Tables) == 0 {
			return nil, fmt.Errorf("resource group %q owns no tables", g.Key)
		}
		for _, table := range g.Tables {
			if owner, taken := r.byTable[table]; taken {
				return nil, fmt.Errorf("table %q is owned by both %q and %q", table, owner, g.Key)
			}
			r.byTable[table] = g.Key
		}
		r.byKey[g.Key] = len(r.groups)
		r.groups = append(r.groups, cloneGroup(g))
	}

	for _, b := range bindings {
		owner, ok := r.byTable[b.Table]
		if !ok {
			return nil, fmt.Errorf("asset binding references unknown table %q", b.Table)
		}
		if b.Column == "" {
			return nil, fmt.Errorf("asset binding for table %q has no column", b.Table)
		}
		if !contains(r.groups[r.byKey[owner]].Buckets, b.Bucket) {
			return nil, fmt.Errorf("bucket %q of table %q is not listed by group %q", b.Bucket, b.Table, owner)
		}
		if _, dup := r.bindings[b.Table]; dup {
			return nil, fmt.Errorf("table %q has more than one asset binding", b.Table)
		}
		r.bindings[b.Table] = b
	}

	return r, nil
}

// AllGroups returns every group in registry order.
func (r *Registry) AllGroups() []ResourceGroup {
	out := make([]ResourceGroup, len(r.groups))
	for i, g := range r.groups {
		out[i] = cloneGroup(g)
	}
	return out
}

// GroupsByKeys resolves keys to groups in registry order. Duplicate keys are
// collapsed. Any unknown key fails the whole lookup with an
// *UnknownResourceGroupError naming every miss.
func (r *Registry) GroupsByKeys(keys []string) ([]ResourceGroup, error) {
	var unknown []string
	idx := make([]int, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		i, ok := r.byKey[k]
		if !ok {
			unknown = append(unknown, k)
			continue
		}
		idx = append(idx, i)
	}
	if len(unknown) > 0 {
		return nil, &UnknownResourceGroupError{Keys: unknown}
	}

	sort.Ints(idx)
	out := make([]ResourceGroup, len(idx))
	for n, i := range idx {
		out[n] = cloneGroup(r.groups[i])
	}
	return out, nil
}

// Group returns a single group by key.
func (r *Registry) Group(key string) (ResourceGroup, error) {
	i, ok := r.byKey[key]
	if !ok {
		return ResourceGroup{}, &UnknownResourceGroupError{Keys: []string{key}}
	}
	return cloneGroup(r.groups[i]), nil
}

// GroupForTable returns the key of the group owning table.
func (r *Registry) GroupForTable(table string) (string, bool) {
	key, ok := r.byTable[table]
	return key, ok
}

// AssetBinding returns the asset column binding of table, if it has one.
func (r *Registry) AssetBinding(table string) (AssetBinding, bool) {
	b, ok := r.bindings[table]
	return b, ok
}

// AssetBindings returns all bindings sorted by table.
func (r *Registry) AssetBindings() []AssetBinding {
	out := make([]AssetBinding, 0, len(r.bindings))
	for _, b := range r.bindings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Table < out[j].Table })
	return out
}

// Keys returns the group keys of groups in order.
func Keys(groups []ResourceGroup) []string {
	keys := make([]string, len(groups))
	for i, g := range groups {
		keys[i] = g.Key
	}
	return keys
}

// Tables returns every table owned by groups.
func Tables(groups []ResourceGroup) []string {
	var tables []string
	for _, g := range groups {
		tables = append(tables, g.Tables...)
	}
	return tables
}

func cloneGroup(g ResourceGroup) ResourceGroup {
	g.Tables = append([]string(nil), g.Tables...)
	g.Buckets = append([]string(nil), g.Buckets...)
	return g
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
