package relay

import (
	"fmt"
	"sort"
	"strings"
)

// Registry is the static mapping of provider name to capability descriptor
// and invocation handle. It is built once at startup and read-only
// afterward; request handling never mutates it, so no locking is needed.
type Registry struct {
	entries  map[string]registryEntry
	names    []string // sorted, for deterministic prompt enumeration
	fallback string
}

type registryEntry struct {
	desc     Descriptor
	provider CapabilityProvider
}

// RegistryBuilder accumulates registrations before sealing them into an
// immutable Registry.
type RegistryBuilder struct {
	entries  map[string]registryEntry
	fallback string
	err      error
}

// NewRegistryBuilder creates a builder with the given fallback provider
// name. The fallback must be registered before Build.
func NewRegistryBuilder(fallback string) *RegistryBuilder {
	return &RegistryBuilder{
		entries:  make(map[string]registryEntry),
		fallback: fallback,
	}
}

// Register adds a provider under the descriptor's name. Duplicate names are
// an error, reported by Build.
func (b *RegistryBuilder) Register(desc Descriptor, provider CapabilityProvider) *RegistryBuilder {
	name := strings.ToLower(strings.TrimSpace(desc.Name))
	if name == "" {
		b.err = fmt.Errorf("register: empty provider name")
		return b
	}
	if _, dup := b.entries[name]; dup {
		b.err = fmt.Errorf("register: duplicate provider %q", name)
		return b
	}
	desc.Name = name
	b.entries[name] = registryEntry{desc: desc, provider: provider}
	return b
}

// Build seals the registrations into an immutable Registry.
func (b *RegistryBuilder) Build() (*Registry, error) {
	if b.err != nil {
		return nil, b.err
	}
	if _, ok := b.entries[b.fallback]; !ok {
		return nil, fmt.Errorf("build registry: fallback provider %q not registered", b.fallback)
	}
	names := make([]string, 0, len(b.entries))
	for name := range b.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return &Registry{entries: b.entries, names: names, fallback: b.fallback}, nil
}

// Fallback returns the designated default provider name.
func (r *Registry) Fallback() string { return r.fallback }

// Names returns all registered provider names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Has reports whether name is registered. Matching is case-insensitive.
func (r *Registry) Has(name string) bool {
	_, ok := r.entries[strings.ToLower(name)]
	return ok
}

// Descriptor returns the descriptor for name.
func (r *Registry) Descriptor(name string) (Descriptor, bool) {
	e, ok := r.entries[strings.ToLower(name)]
	return e.desc, ok
}

// Provider returns the invocation handle for name.
func (r *Registry) Provider(name string) (CapabilityProvider, bool) {
	e, ok := r.entries[strings.ToLower(name)]
	if !ok || e.provider == nil {
		return nil, false
	}
	return e.provider, true
}

// Describe renders the registry as a prompt-ready list, one
// "- name: description" line per provider in sorted name order.
func (r *Registry) Describe() string {
	var sb strings.Builder
	for _, name := range r.names {
		fmt.Fprintf(&sb, "- %s: %s\n", name, r.entries[name].desc.Description)
	}
	return strings.TrimRight(sb.String(), "\n")
}
