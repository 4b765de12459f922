package command

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// LockFunc computes the lock key of an invocation. Invocations of the same
// command sharing a key are rejected while the first one runs. An empty key
// takes no lock.
type LockFunc func(ctx context.Context, c *Context, opts Options) (string, error)

// LockGuild keys on the guild. Outside guilds the key is empty and no lock
// is taken.
func LockGuild(_ context.Context, c *Context, _ Options) (string, error) {
	return c.GuildID, nil
}

// LockChannel keys on the channel.
func LockChannel(_ context.Context, c *Context, _ Options) (string, error) {
	return c.ChannelID, nil
}

// LockUser keys on the invoking user.
func LockUser(_ context.Context, c *Context, _ Options) (string, error) {
	return c.AuthorID(), nil
}

// LockByName returns the built-in strategy called name ("guild", "channel"
// or "user"). An empty name means no lock.
func LockByName(name string) (LockFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return nil, nil
	case "guild":
		return LockGuild, nil
	case "channel":
		return LockChannel, nil
	case "user":
		return LockUser, nil
	default:
		return nil, fmt.Errorf("unknown lock strategy %q", name)
	}
}

// Locker is the set of lock keys held by running invocations of a command.
type Locker struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newLocker() *Locker {
	return &Locker{keys: make(map[string]struct{})}
}

// acquire adds key and reports whether it was free.
func (l *Locker) acquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.keys[key]; ok {
		return false
	}
	l.keys[key] = struct{}{}
	return true
}

func (l *Locker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.keys, key)
}

// Held reports whether key is currently locked.
func (l *Locker) Held(key string) bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.keys[key]
	return ok
}

// Len returns the number of held keys.
func (l *Locker) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}
