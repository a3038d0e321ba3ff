// Package task defines the actor abstraction executed by pipeline workers:
// the specification describing how to construct an actor, the runtime
// contracts actors implement, and the registry resolving specifications to
// concrete implementations.
//
// The composition and compilation layers never look inside an actor beyond
// its declared arity and statefulness; everything else is opaque until a
// backend invokes the compiled instruction.
package task

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Actor is a computational unit invoked with one positional argument per
// input port and returning one value per output port.
type Actor interface {
	Apply(ctx context.Context, args ...any) ([]any, error)
}

// Trainable is implemented by actors whose state can be fitted from a
// features/labels pair. Training mutates internal state only; it produces no
// data output.
type Trainable interface {
	Actor
	Train(ctx context.Context, features, labels any) error
}

// Stateful is implemented by actors whose learned parameters can be moved in
// and out as an opaque byte snapshot. SetState with a nil snapshot must leave
// the actor in its untrained condition.
type Stateful interface {
	State() ([]byte, error)
	SetState(snapshot []byte) error
}

// Spec identifies an actor implementation together with its construction
// parameters and declared shape. Specs are plain values: copying one never
// shares actor state.
type Spec struct {
	// Actor is the registry name of the implementation.
	Actor string
	// Params are construction parameters passed to the actor builder.
	Params map[string]any
	// SzIn and SzOut fix the port arity of any worker wrapping this spec.
	SzIn  int
	SzOut int
	// Stateful declares whether workers of this spec own a persisted state
	// slot. It must agree with the built actor implementing Stateful.
	Stateful bool
}

// String renders the spec in a stable, human-readable form. Bulky parameter
// values (inline datasets) are truncated so the rendition stays usable as a
// graph label and a metric dimension.
func (s Spec) String() string {
	if len(s.Params) == 0 {
		return s.Actor
	}
	keys := make([]string, 0, len(s.Params))
	for k := range s.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		value := fmt.Sprint(s.Params[k])
		if runes := []rune(value); len(runes) > 32 {
			value = string(runes[:29]) + "..."
		}
		parts = append(parts, fmt.Sprintf("%s=%s", k, value))
	}
	return fmt.Sprintf("%s(%s)", s.Actor, strings.Join(parts, ","))
}
