// Package inhibitor implements guard modules that can veto a command
// invocation, and the chain that evaluates them one phase at a time.
package inhibitor

import (
	"context"
	"fmt"

	"github.com/keshon/modkit/pkg/module"
)

// Phase is the dispatch stage an inhibitor runs in.
type Phase string

const (
	// PhaseAll runs before anything else, together with the built-in actor checks.
	PhaseAll Phase = "all"
	// PhasePre runs once the actor is known to be acceptable.
	PhasePre Phase = "pre"
	// PhasePost runs with the built-in command checks, after the target is resolved.
	PhasePost Phase = "post"
)

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseAll, PhasePre, PhasePost:
		return true
	}
	return false
}

// Settings describe when an inhibitor runs and what it reports when it blocks.
type Settings struct {
	// Phase defaults to PhasePost.
	Phase Phase
	// Priority picks the reported reason when several inhibitors block at once.
	Priority int
	// Reason defaults to the inhibitor id.
	Reason string
}

// Inhibitor is a guard predicate evaluated against an invocation context of
// type C. Exec returns true to block target.
type Inhibitor[C any] interface {
	module.Module
	Settings() Settings
	Exec(ctx context.Context, c C, target module.Module) (bool, error)
}

// Base carries the identity and settings of an inhibitor. Embed it.
type Base struct {
	module.Base
	settings Settings
}

func NewBase(id, categoryID string, s Settings) *Base {
	if s.Phase == "" {
		s.Phase = PhasePost
	}
	if s.Reason == "" {
		s.Reason = id
	}
	return &Base{Base: module.NewBase(id, categoryID), settings: s}
}

func (b *Base) Settings() Settings { return b.settings }

// Func is an inhibitor whose predicate is a plain function.
type Func[C any] struct {
	*Base
	fn func(ctx context.Context, c C, target module.Module) (bool, error)
}

// New returns an inhibitor in the default category running fn.
func New[C any](id string, s Settings, fn func(ctx context.Context, c C, target module.Module) (bool, error)) *Func[C] {
	return &Func[C]{Base: NewBase(id, "", s), fn: fn}
}

func (f *Func[C]) Exec(ctx context.Context, c C, target module.Module) (bool, error) {
	if f.fn == nil {
		return false, fmt.Errorf("inhibitor %q has no predicate", f.ID())
	}
	return f.fn(ctx, c, target)
}
