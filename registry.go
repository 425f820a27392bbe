package modloader

import "fmt"

// Registry stores module descriptors and their runtime records. It is pure
// bookkeeping: registration is expected to finish before a loading session
// begins, and the registry itself performs no asynchronous work, so no
// locking is required.
type Registry struct {
	descriptors map[string]*ModuleDescriptor
	records     map[string]*ModuleRecord
	order       []string
}

// NewRegistry creates an empty module registry.
func NewRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]*ModuleDescriptor),
		records:     make(map[string]*ModuleRecord),
	}
}

// Register adds a module descriptor and creates its pending record.
// It rejects descriptors with an empty name or nil factory, and returns
// ErrDuplicateModule when the name is already taken.
func (r *Registry) Register(descriptor ModuleDescriptor) error {
	if err := descriptor.validate(); err != nil {
		return err
	}
	if _, exists := r.descriptors[descriptor.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateModule, descriptor.Name)
	}

	d := descriptor
	r.descriptors[d.Name] = &d
	r.records[d.Name] = &ModuleRecord{State: ModuleStatePending, index: len(r.order)}
	r.order = append(r.order, d.Name)
	return nil
}

// Get returns the descriptor registered under name.
func (r *Registry) Get(name string) (*ModuleDescriptor, error) {
	d, exists := r.descriptors[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	return d, nil
}

// Record returns a snapshot of the runtime record for name.
func (r *Registry) Record(name string) (ModuleRecord, error) {
	rec, exists := r.records[name]
	if !exists {
		return ModuleRecord{}, fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	return rec.snapshot(), nil
}

// Instance returns the loaded instance for name, or ErrUnknownModule if the
// module was never registered. The second return is false when the module is
// not in the loaded state.
func (r *Registry) Instance(name string) (any, bool, error) {
	rec, exists := r.records[name]
	if !exists {
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	if rec.State != ModuleStateLoaded {
		return nil, false, nil
	}
	return rec.Instance, true, nil
}

// DependenciesOf returns the declared dependency names for name.
func (r *Registry) DependenciesOf(name string) ([]string, error) {
	d, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	deps := make([]string, len(d.Dependencies))
	copy(deps, d.Dependencies)
	return deps, nil
}

// AllNames returns every registered module name in registration order.
// The registration order doubles as the tie-break for equal priorities, so
// it must be stable.
func (r *Registry) AllNames() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	return len(r.order)
}

// record returns the mutable record for the orchestrator's loading loop.
func (r *Registry) record(name string) *ModuleRecord {
	return r.records[name]
}
