package inhibitor

import (
	"context"
	"fmt"

	"github.com/keshon/modkit/pkg/module"
	"golang.org/x/sync/errgroup"
)

// Handler is the registry of inhibitors for contexts of type C.
type Handler[C any] struct {
	*module.Handler[Inhibitor[C]]
}

func NewHandler[C any](opts module.Options) *Handler[C] {
	if opts.Name == "" {
		opts.Name = "inhibitor"
	}
	h := &Handler[C]{Handler: module.NewHandler[Inhibitor[C]](opts)}
	h.SetHooks(module.Hooks[Inhibitor[C]]{
		Register: func(i Inhibitor[C]) error {
			if p := i.Settings().Phase; !p.Valid() {
				return fmt.Errorf("inhibitor %q: unknown phase %q", i.ID(), p)
			}
			return nil
		},
	})
	return h
}

// Test evaluates every inhibitor of phase against c and target, concurrently,
// and returns the reason of the blocking inhibitor with the highest priority.
// Ties go to the inhibitor registered first. An empty reason means nothing
// blocked. The first predicate error aborts the phase.
func (h *Handler[C]) Test(ctx context.Context, phase Phase, c C, target module.Module) (string, error) {
	var matching []Inhibitor[C]
	for _, i := range h.Modules() {
		if i.Settings().Phase == phase {
			matching = append(matching, i)
		}
	}
	if len(matching) == 0 {
		return "", nil
	}

	blocked := make([]bool, len(matching))
	g, gctx := errgroup.WithContext(ctx)
	for n, i := range matching {
		g.Go(func() error {
			ok, err := i.Exec(gctx, c, target)
			if err != nil {
				return fmt.Errorf("inhibitor %q: %w", i.ID(), err)
			}
			blocked[n] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var winner *Settings
	for n, i := range matching {
		if !blocked[n] {
			continue
		}
		s := i.Settings()
		if winner == nil || s.Priority > winner.Priority {
			winner = &s
		}
	}
	if winner == nil {
		return "", nil
	}
	h.Logger().Debug().Str("phase", string(phase)).Str("reason", winner.Reason).Msg("inhibited")
	return winner.Reason, nil
}
