package metrics

import "context"

// Registry is the read side of a metrics store. Implementations must
// return internally consistent, caller-owned snapshots: mutating the
// returned families must not affect the registry.
//
// The interface is deliberately narrow so that the exposition endpoint can
// be wired to an in-process Store, a prometheus.Gatherer adapter, or a
// test fake without caring which.
type Registry interface {
	// Snapshot returns the current metric families. Family order must
	// be deterministic for identical registry contents.
	Snapshot(ctx context.Context) ([]Family, error)
}

// RegistryFunc adapts a function to the Registry interface.
type RegistryFunc func(ctx context.Context) ([]Family, error)

// Snapshot calls f.
func (f RegistryFunc) Snapshot(ctx context.Context) ([]Family, error) {
	return f(ctx)
}

// MultiRegistry combines several registries into one. Snapshots are
// concatenated in registry order; any backend failure fails the whole
// snapshot.
type MultiRegistry []Registry

// Snapshot implements Registry.
func (m MultiRegistry) Snapshot(ctx context.Context) ([]Family, error) {
	var out []Family
	for _, reg := range m {
		families, err := reg.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, families...)
	}
	return out, nil
}

// Ensure the provided implementations satisfy Registry.
var (
	_ Registry = (*Store)(nil)
	_ Registry = (*GathererRegistry)(nil)
	_ Registry = (RegistryFunc)(nil)
	_ Registry = (MultiRegistry)(nil)
)
