// Package datasource defines the uniform async lifecycle over heterogeneous
// backend clients (spec §4.C1) and the reference-counted registry that pools
// them across adapters (spec §4.C2).
package datasource

import (
	"context"
	"fmt"
)

// Datasource is the contract every backend implementation satisfies. All
// lifecycle methods accept a context.Context and are always invoked from a
// goroutine the caller controls — no event-loop detection, ever (spec §9,
// SPEC_FULL.md supplemental feature #1).
type Datasource interface {
	// Name is the stable tag used for registry discovery, e.g. "postgres".
	Name() string

	// Configure validates and stores cfg without dialing anything. CacheKey
	// becomes meaningful only after Configure succeeds — this is what lets
	// the registry compute a candidate's cache key and potentially discard
	// it, per spec §4.C2, without ever calling Initialize on it.
	Configure(cfg map[string]interface{}) error

	// Initialize dials the backend. It must be idempotent: calling it on an
	// already-initialized instance is a no-op that returns nil.
	Initialize(ctx context.Context) error

	// HealthCheck is a cheap liveness probe. It never panics or returns an
	// error to the caller; any internal failure surfaces as false.
	HealthCheck(ctx context.Context) bool

	// Close releases all resources. The handle must not be reused after
	// Close returns.
	Close(ctx context.Context) error

	// CacheKey is a deterministic function of the configuration fields that
	// make two instances interchangeable.
	CacheKey() string

	// Client returns the vendor-specific client handle; callers downcast by
	// knowledge of Name().
	Client() interface{}
}

// FailureKind distinguishes why Initialize/HealthCheck failed (spec §4.C1).
type FailureKind string

const (
	FailureConfigInvalid     FailureKind = "config_invalid"
	FailureConnectionFailed  FailureKind = "connection_failed"
	FailureDependencyMissing FailureKind = "dependency_missing"
	FailureHealthFailed      FailureKind = "health_failed"
)

// Error wraps a failure with its kind and the datasource name it occurred
// on, so callers and logs can distinguish "this backend isn't installed"
// from "this backend is down".
type Error struct {
	Datasource string
	Kind       FailureKind
	Cause      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("datasource %q: %s: %v", e.Datasource, e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError constructs an Error with the given kind.
func NewError(name string, kind FailureKind, cause error) *Error {
	return &Error{Datasource: name, Kind: kind, Cause: cause}
}

// Constructor builds a fresh, uninitialized Datasource instance. Registered
// implementations supply one per Name() via Register.
type Constructor func() Datasource

var constructors = map[string]Constructor{}

// Register adds a datasource implementation to the process-wide registry of
// known kinds. Called from each implementation's package init() (spec §9,
// SPEC_FULL.md supplemental feature #2) — never via a reflection walk.
func Register(name string, ctor Constructor) {
	if _, exists := constructors[name]; exists {
		panic(fmt.Sprintf("datasource: implementation %q already registered", name))
	}
	constructors[name] = ctor
}

// Available lists every registered implementation name.
func Available() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	return names
}
