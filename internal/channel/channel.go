package channel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Modality is the delivery medium a caller asks for; each modality maps
// to one active provider at a time.
type Modality string

const (
	ModalitySMS   Modality = "sms"
	ModalityEmail Modality = "email"
)

// ErrNotConfigured distinguishes a deployment problem (no provider
// registered or selected for a modality) from a provider's own delivery
// failure, which is reported inside DeliveryOutcome.
var ErrNotConfigured = errors.New("no channel configured")

// DeliveryOutcome is a channel's verdict on one send. Failure here is an
// expected operational condition (vendor outage, bad destination), not a
// fault: the code is already stored and rate-limited either way.
type DeliveryOutcome struct {
	Delivered  bool
	Diagnostic string
}

// Channel is a delivery backend. Deliver makes exactly one outbound
// attempt; the engine never retries and never fails over.
type Channel interface {
	Name() string
	Modality() Modality
	Deliver(ctx context.Context, identifier, message string) DeliveryOutcome
}

// Registry is a lookup table of named channels with one active selection
// per modality. Registration happens at startup; the active selection
// may be switched at runtime through the guarded setter and takes effect
// only for sends dispatched afterwards.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
	active   map[Modality]string
}

func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]Channel),
		active:   make(map[Modality]string),
	}
}

// Register adds a channel under its name, replacing any previous entry.
// The first channel registered for a modality becomes its active one.
func (r *Registry) Register(ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.channels[ch.Name()] = ch
	if _, ok := r.active[ch.Modality()]; !ok {
		r.active[ch.Modality()] = ch.Name()
	}
}

// Resolve returns the named channel or ErrNotConfigured.
func (r *Registry) Resolve(name string) (Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.channels[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotConfigured, name)
	}
	return ch, nil
}

// Active returns the channel currently selected for a modality.
func (r *Registry) Active(modality Modality) (Channel, error) {
	r.mu.RLock()
	name, ok := r.active[modality]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w for modality %q", ErrNotConfigured, modality)
	}
	return r.Resolve(name)
}

// SetActive switches the provider for a modality. The new selection
// applies to subsequent sends only; in-flight deliveries keep the
// channel they resolved.
func (r *Registry) SetActive(modality Modality, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.channels[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotConfigured, name)
	}
	if ch.Modality() != modality {
		return fmt.Errorf("channel %q serves modality %q, not %q", name, ch.Modality(), modality)
	}

	r.active[modality] = name
	return nil
}

// Snapshot lists registered channel names and the active selection per
// modality, for the admin surface.
func (r *Registry) Snapshot() (names []string, active map[Modality]string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names = make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	sort.Strings(names)

	active = make(map[Modality]string, len(r.active))
	for m, n := range r.active {
		active[m] = n
	}
	return names, active
}
