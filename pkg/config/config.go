// Package config provides the configuration resolution system for
// statusflow. Configuration is resolved exactly once at startup into a
// flat, immutable Params set, sourced from either process arguments
// (local execution) or a runtime-provided property group document
// (managed execution).
//
// Every individual setting is optional: consumers read values through
// Get(key, default), so the absence of any single key is never an
// error. Only the managed property group itself is mandatory when
// running under a managed host.
//
// Example usage:
//
//	provider := config.DetectProvider(os.Args[1:])
//	params, err := provider.Resolve()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	region := params.Get("kinesis.region", "eu-west-1")
package config

import (
	"sort"
)

// Params is a flat, immutable key/value parameter set resolved once per
// process lifetime. All accessors are read-only; the underlying map is
// never exposed directly.
type Params struct {
	values map[string]string
}

// NewParams creates a Params set from the given map. The map is copied
// so later mutation of the argument cannot affect the resolved set.
func NewParams(values map[string]string) *Params {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &Params{values: copied}
}

// Get returns the value for key, or def when the key is absent.
func (p *Params) Get(key, def string) string {
	if v, ok := p.values[key]; ok {
		return v
	}
	return def
}

// Has reports whether key is present.
func (p *Params) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// Len returns the number of resolved parameters.
func (p *Params) Len() int {
	return len(p.values)
}

// Map returns a copy of the parameter set, for diagnostic logging at
// startup.
func (p *Params) Map() map[string]string {
	copied := make(map[string]string, len(p.values))
	for k, v := range p.values {
		copied[k] = v
	}
	return copied
}

// Keys returns the parameter keys in sorted order.
func (p *Params) Keys() []string {
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
