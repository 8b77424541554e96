package payment

import (
	"fmt"
	"sort"
	"sync"
)

// Purpose names the role a default provider plays.
type Purpose string

const (
	PurposeDeposit    Purpose = "deposit"
	PurposeWithdrawal Purpose = "withdrawal"
	PurposePayout     Purpose = "payout"
)

func (p Purpose) capability() Capability {
	if p == PurposeDeposit {
		return CapDeposit
	}
	return CapPayout
}

// Registry maps provider names to adapters and remembers which one serves
// each purpose by default.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	defaults map[Purpose]string
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter), defaults: make(map[Purpose]string)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	r.adapters[a.Name()] = a
	r.mu.Unlock()
}

func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, found := r.adapters[name]
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return a, nil
}

// SetDefault binds purpose to a registered provider after checking it has
// the capability the purpose needs.
func (r *Registry) SetDefault(purpose Purpose, name string) error {
	a, err := r.Get(name)
	if err != nil {
		return err
	}
	if !Supports(a, purpose.capability()) {
		return fmt.Errorf("%w: %s cannot serve %s", ErrUnsupported, name, purpose)
	}
	r.mu.Lock()
	r.defaults[purpose] = name
	r.mu.Unlock()
	return nil
}

func (r *Registry) Default(purpose Purpose) (Adapter, error) {
	r.mu.RLock()
	name, found := r.defaults[purpose]
	r.mu.RUnlock()
	if !found {
		return nil, fmt.Errorf("%w: no default for %s", ErrUnknownProvider, purpose)
	}
	return r.Get(name)
}

// Depositor returns the named provider (or the deposit default when name is
// empty) as a Depositor.
func (r *Registry) Depositor(name string) (Adapter, Depositor, error) {
	a, err := r.resolve(PurposeDeposit, name)
	if err != nil {
		return nil, nil, err
	}
	d, ok := a.(Depositor)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s cannot take deposits", ErrUnsupported, a.Name())
	}
	return a, d, nil
}

func (r *Registry) Payouter(purpose Purpose, name string) (Adapter, Payouter, error) {
	a, err := r.resolve(purpose, name)
	if err != nil {
		return nil, nil, err
	}
	p, ok := a.(Payouter)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s cannot send payouts", ErrUnsupported, a.Name())
	}
	return a, p, nil
}

func (r *Registry) resolve(purpose Purpose, name string) (Adapter, error) {
	if name == "" {
		return r.Default(purpose)
	}
	return r.Get(name)
}

// Names lists registered providers, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
