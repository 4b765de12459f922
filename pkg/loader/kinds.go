package loader

import (
	"sort"
	"strings"
	"sync"
)

// Constructor builds a module from its manifest.
type Constructor func(m *Manifest) (any, error)

// Kinds maps manifest kinds to constructors. Module packages register their
// kinds from init().
type Kinds struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// DefaultKinds is the registry used by loaders built without one.
var DefaultKinds = NewKinds()

func NewKinds() *Kinds {
	return &Kinds{ctors: make(map[string]Constructor)}
}

// Register adds or replaces the constructor for kind.
func (k *Kinds) Register(kind string, ctor Constructor) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.ctors[strings.ToLower(kind)] = ctor
}

func (k *Kinds) Lookup(kind string) (Constructor, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	ctor, ok := k.ctors[strings.ToLower(kind)]
	return ctor, ok
}

// Names returns the registered kinds, sorted.
func (k *Kinds) Names() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]string, 0, len(k.ctors))
	for name := range k.ctors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Register adds ctor to DefaultKinds.
func Register(kind string, ctor Constructor) {
	DefaultKinds.Register(kind, ctor)
}
