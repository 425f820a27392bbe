// Package modloader provides a module loading and initialization orchestrator
// for applications assembled from interdependent subsystems.
//
// A host application registers module descriptors (an asynchronous factory
// plus dependency, priority, timeout and criticality metadata), then drives a
// single loading session. The orchestrator computes a dependency-respecting
// load order, executes each factory under a timeout, retries transient
// failures with exponential backoff, validates the produced instances, and
// aggregates a health report. Lifecycle progress is published as CloudEvents
// to registered observers, so an external progress indicator can follow the
// session without the orchestrator knowing anything about rendering.
//
// Basic usage:
//
//	registry := modloader.NewRegistry()
//	_ = registry.Register(modloader.ModuleDescriptor{
//		Name:    "storage",
//		Factory: newStorage,
//	})
//	_ = registry.Register(modloader.ModuleDescriptor{
//		Name:         "inventory",
//		Factory:      newInventory,
//		Dependencies: []string{"storage"},
//		Critical:     true,
//	})
//
//	orch := modloader.NewOrchestrator(registry, logger)
//	summary, err := orch.LoadAll(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println("loaded:", summary.LoadedModules)
package modloader

import "context"

// ModuleFactory constructs a module instance. The supplied LoadContext
// carries the shared core services and the already-loaded instances of every
// dependency the module declared.
//
// Factories run sequentially in dependency order, so a factory may assume all
// of its declared dependencies are fully initialized. A factory that exceeds
// its descriptor's timeout is abandoned, not killed: it may still run to
// completion in the background, and any side effects it produces after
// abandonment are its own responsibility.
type ModuleFactory func(ctx context.Context, lctx *LoadContext) (any, error)

// Initializable is an optional capability interface for module instances
// that need a post-construction initialization step. When a factory returns
// an instance implementing Initializable, the orchestrator calls Init under
// the same per-module timeout that covered the factory itself.
//
// Modules opt into this interface explicitly; the orchestrator never probes
// instances for loosely-named init methods.
type Initializable interface {
	// Init completes the module's initialization after construction.
	// The context is cancelled when the module's load timeout expires.
	Init(ctx context.Context) error
}

// HealthCheckable is an optional capability interface for module instances
// that can report on their own standing after loading. PerformHealthCheck
// invokes it for every loaded module that implements it; modules that do not
// are considered healthy whenever their record is in the loaded state.
type HealthCheckable interface {
	// CheckHealth reports whether the module is currently in good standing.
	// It must be side-effect free; it may be called repeatedly, for example
	// by a periodic monitor.
	CheckHealth(ctx context.Context) error
}

// LoadContext is handed to each module factory. It exposes the shared core
// services registered on the orchestrator and read-only access to the
// instances of the module's declared dependencies.
type LoadContext struct {
	coreServices map[string]any
	dependencies map[string]any
	logger       Logger
}

// CoreService returns the named shared service supplied via
// Orchestrator.SetCoreServices, or nil if no such service was registered.
func (c *LoadContext) CoreService(name string) any {
	return c.coreServices[name]
}

// Dependency returns the loaded instance of a declared dependency.
// Only modules named in the descriptor's Dependencies list are present.
func (c *LoadContext) Dependency(name string) any {
	return c.dependencies[name]
}

// Dependencies returns the loaded instances of all declared dependencies,
// keyed by module name.
func (c *LoadContext) Dependencies() map[string]any {
	out := make(map[string]any, len(c.dependencies))
	for name, instance := range c.dependencies {
		out[name] = instance
	}
	return out
}

// Logger returns the orchestrator's logger so factories can emit structured
// logs consistent with the rest of the loading session.
func (c *LoadContext) Logger() Logger {
	return c.logger
}
