package provider

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/restohub/ingest/internal/order"
)

var (
	// ErrUnknownProvider is returned when no adapter is registered for a name.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrInvalidPayload is returned when a payload fails structural validation
	// or a required field cannot be extracted.
	ErrInvalidPayload = errors.New("invalid provider payload")
)

// Adapter normalizes one provider's native webhook payload into the canonical
// order shape. Implementations hold no state and perform no I/O, which keeps
// them independently testable against recorded payload fixtures.
type Adapter interface {
	// Name returns the provider identifier the adapter is registered under.
	Name() string

	// ValidatePayload performs a structural check: required top-level fields,
	// a non-empty item list, and the presence of a customer name.
	ValidatePayload(payload map[string]any) bool

	// ExtractOrder maps the provider's native JSON shape into a canonical
	// order. Field-name drift across provider webhook versions is absorbed
	// by per-field alias tables tried in a fixed declared order.
	ExtractOrder(payload map[string]any) (order.Order, error)

	// MapStatus translates a provider-native status into a canonical one,
	// falling back to PENDING for unrecognized values.
	MapStatus(nativeStatus string) order.CanonicalStatus

	// FormatAck builds the provider-specific acknowledgment body echoed back
	// in the HTTP response. Error detail is reduced to a generic message.
	FormatAck(success bool, orderID string, err error) any
}

// Registry maps provider identifiers to adapters. Lookup is case-insensitive.
// Safe for concurrent use; registration normally happens once at startup.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates a registry pre-populated with the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds an adapter under its own name, replacing any previous one.
func (r *Registry) Register(a Adapter) {
	if a == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[strings.ToLower(a.Name())] = a
}

// Get returns the adapter for the given provider name.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return a, nil
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
