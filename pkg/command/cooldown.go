package command

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// cooldowns tracks per-user rate limiters of every command.
type cooldowns struct {
	mu      sync.Mutex
	buckets map[cooldownKey]*rate.Limiter
	now     func() time.Time
}

type cooldownKey struct {
	command string
	user    string
}

func newCooldowns() *cooldowns {
	return &cooldowns{buckets: make(map[cooldownKey]*rate.Limiter), now: time.Now}
}

// take spends one use of the command for user. It returns zero when allowed,
// or how long the user has to wait.
func (cd *cooldowns) take(command, user string, window time.Duration, uses int) time.Duration {
	if window <= 0 {
		return 0
	}
	if uses <= 0 {
		uses = 1
	}
	now := cd.now()
	key := cooldownKey{command: command, user: user}

	cd.mu.Lock()
	defer cd.mu.Unlock()

	lim, ok := cd.buckets[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(window/time.Duration(uses)), uses)
		cd.buckets[key] = lim
	}
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return window
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return d
	}
	return 0
}

// sweep drops limiters that are back to full capacity and returns how many
// are left.
func (cd *cooldowns) sweep() int {
	now := cd.now()
	cd.mu.Lock()
	defer cd.mu.Unlock()
	for key, lim := range cd.buckets {
		if lim.TokensAt(now) >= float64(lim.Burst()) {
			delete(cd.buckets, key)
		}
	}
	return len(cd.buckets)
}

// RunCooldownSweeper drops idle cooldown state every interval until ctx is
// done.
func (h *Handler) RunCooldownSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			left := h.cooldowns.sweep()
			h.Logger().Debug().Int("active", left).Msg("cooldowns swept")
		}
	}
}
