package modloader

import "time"

// DefaultModuleTimeout bounds a single factory-plus-Init attempt when a
// descriptor does not set its own timeout.
const DefaultModuleTimeout = 30 * time.Second

// ModuleDescriptor describes a module to the orchestrator. Descriptors are
// registered once, before LoadAll, and are read-only afterwards.
type ModuleDescriptor struct {
	// Name uniquely identifies the module. It is the key used for
	// dependency declarations and for all reporting.
	Name string

	// Factory constructs the module instance. Required.
	Factory ModuleFactory

	// Dependencies names the modules that must be loaded (and validated)
	// before this module's factory runs.
	Dependencies []string

	// Priority orders modules whose dependencies are equally satisfied:
	// higher priority loads first. Ties break on registration order, so a
	// fixed registration sequence always yields the same load order.
	Priority int

	// Timeout bounds a single factory-plus-Init attempt. Zero means
	// DefaultModuleTimeout.
	Timeout time.Duration

	// Critical marks a module whose failure aborts the whole session.
	// Non-critical failures are recorded and loading continues.
	Critical bool

	// TolerateFailedDeps lets the module load even when one of its
	// dependencies failed; the failed dependency is simply absent from the
	// LoadContext. Without this flag the module is skipped with a
	// dependency-failure error.
	TolerateFailedDeps bool
}

// validate checks the descriptor for structural problems at registration
// time, before any record is created.
func (d *ModuleDescriptor) validate() error {
	if d.Name == "" {
		return ErrEmptyModuleName
	}
	if d.Factory == nil {
		return ErrNilFactory
	}
	return nil
}
