// Package systems is the built-in System library: generic flow-control and
// debugging building blocks keyed by the action TypeIds they handle. Hosts
// either register individual Systems on a Runner directly or drain the
// provider registry with Default.
package systems

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/emberline/blueprint/pkg/engine"
	"github.com/emberline/blueprint/pkg/schema"
)

// Provider builds one System instance bound to the given logger.
type Provider func(log *slog.Logger) engine.System

var (
	regMu     sync.RWMutex
	providers = make(map[string]Provider)
)

// RegisterProvider binds an action TypeId to a System provider. Returns an
// error on duplicate TypeId; the built-ins claim theirs at init.
func RegisterProvider(typeID string, p Provider) error {
	if p == nil {
		return schema.NewError(schema.ErrCodeValidation, "provider is nil")
	}
	if typeID == "" {
		return schema.NewError(schema.ErrCodeValidation, "provider type id is empty")
	}

	regMu.Lock()
	defer regMu.Unlock()

	if _, exists := providers[typeID]; exists {
		return schema.NewErrorf(schema.ErrCodeConfig, "provider for type %q already registered", typeID)
	}
	providers[typeID] = p
	return nil
}

func mustRegister(typeID string, p Provider) {
	if err := RegisterProvider(typeID, p); err != nil {
		panic(err)
	}
}

// Providers returns the registered TypeIds, sorted.
func Providers() []string {
	regMu.RLock()
	defer regMu.RUnlock()

	ids := make([]string, 0, len(providers))
	for id := range providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Build constructs the System handling one TypeId.
func Build(typeID string, log *slog.Logger) (engine.System, error) {
	regMu.RLock()
	p, ok := providers[typeID]
	regMu.RUnlock()

	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no provider for type %q", typeID)
	}
	return p(log), nil
}

// Default builds one System per registered provider, in sorted TypeId order
// so registration order never changes the schedule.
func Default(log *slog.Logger) []engine.System {
	ids := Providers()
	out := make([]engine.System, 0, len(ids))
	for _, id := range ids {
		s, err := Build(id, log)
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	return out
}

// RegisterDefaults drains the provider registry into a Runner.
func RegisterDefaults(r *engine.Runner, log *slog.Logger) error {
	for _, s := range Default(log) {
		if err := r.RegisterSystem(s); err != nil {
			return err
		}
	}
	return nil
}

// Lookup reports which TypeIds have a handling System: every registered
// provider plus the engine-owned End. It feeds the document validator's
// unknown-type lint.
type Lookup struct{}

// Has reports whether some System handles the TypeId.
func (Lookup) Has(typeID string) bool {
	if typeID == schema.TypeEnd {
		return true
	}
	regMu.RLock()
	defer regMu.RUnlock()
	_, ok := providers[typeID]
	return ok
}
