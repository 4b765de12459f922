// Package inhibitors provides the built-in inhibitor kinds: a blacklist of
// guilds and users, and the per-guild disabled category check.
package inhibitors

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/keshon/modkit/internal/storage"
	"github.com/keshon/modkit/pkg/command"
	"github.com/keshon/modkit/pkg/inhibitor"
	"github.com/keshon/modkit/pkg/loader"
	"github.com/keshon/modkit/pkg/module"
)

const (
	KindBlacklist        = "blacklist"
	KindDisabledCategory = "disabledCategory"

	ReasonBlacklist = "blacklist"
	ReasonDisabled  = "disabled"
)

func init() {
	Register(loader.DefaultKinds)
}

// Register adds the built-in inhibitor kinds to kinds.
func Register(kinds *loader.Kinds) {
	kinds.Register(KindBlacklist, newBlacklistFromManifest)
	kinds.Register(KindDisabledCategory, newDisabledCategoryFromManifest)
}

type settingsSpec struct {
	ID       string `yaml:"id" toml:"id" json:"id"`
	Category string `yaml:"category" toml:"category" json:"category"`
	Priority int    `yaml:"priority" toml:"priority" json:"priority"`
	Reason   string `yaml:"reason" toml:"reason" json:"reason"`
}

func decodeSettings(m *loader.Manifest) (settingsSpec, error) {
	var s settingsSpec
	if err := m.Decode(&s); err != nil {
		return s, err
	}
	if strings.TrimSpace(s.ID) == "" {
		return s, fmt.Errorf("%s: inhibitor has no id", m.Path)
	}
	return s, nil
}

// Blacklist blocks every interaction from the listed guilds or users in the
// all phase.
type Blacklist struct {
	*inhibitor.Base
	guilds map[string]struct{}
	users  map[string]struct{}
}

func NewBlacklist(id string, priority int, guilds, users []string) *Blacklist {
	return newBlacklist(settingsSpec{ID: id, Priority: priority}, guilds, users)
}

func newBlacklist(s settingsSpec, guilds, users []string) *Blacklist {
	reason := s.Reason
	if reason == "" {
		reason = ReasonBlacklist
	}
	b := &Blacklist{
		Base: inhibitor.NewBase(s.ID, s.Category, inhibitor.Settings{
			Phase:    inhibitor.PhaseAll,
			Priority: s.Priority,
			Reason:   reason,
		}),
		guilds: make(map[string]struct{}, len(guilds)),
		users:  make(map[string]struct{}, len(users)),
	}
	for _, g := range guilds {
		b.guilds[g] = struct{}{}
	}
	for _, u := range users {
		b.users[u] = struct{}{}
	}
	return b
}

func newBlacklistFromManifest(m *loader.Manifest) (any, error) {
	s, err := decodeSettings(m)
	if err != nil {
		return nil, err
	}
	var lists struct {
		Guilds []string `yaml:"guilds" toml:"guilds" json:"guilds"`
		Users  []string `yaml:"users" toml:"users" json:"users"`
	}
	if err := m.Decode(&lists); err != nil {
		return nil, err
	}
	return newBlacklist(s, lists.Guilds, lists.Users), nil
}

func (b *Blacklist) Exec(_ context.Context, c *command.Context, _ module.Module) (bool, error) {
	if _, ok := b.guilds[c.GuildID]; ok && c.GuildID != "" {
		return true, nil
	}
	_, ok := b.users[c.AuthorID()]
	return ok && c.AuthorID() != "", nil
}

// DisabledCategory blocks commands whose category was switched off in the
// guild, unless the category is exempt.
type DisabledCategory struct {
	*inhibitor.Base
	exempt []string
	store  func(*command.Context) *storage.Storage
}

func NewDisabledCategory(id string, store *storage.Storage, exempt ...string) *DisabledCategory {
	d := newDisabledCategory(settingsSpec{ID: id}, exempt)
	d.store = func(*command.Context) *storage.Storage { return store }
	return d
}

func newDisabledCategory(s settingsSpec, exempt []string) *DisabledCategory {
	reason := s.Reason
	if reason == "" {
		reason = ReasonDisabled
	}
	return &DisabledCategory{
		Base: inhibitor.NewBase(s.ID, s.Category, inhibitor.Settings{
			Phase:    inhibitor.PhasePost,
			Priority: s.Priority,
			Reason:   reason,
		}),
		exempt: exempt,
		store:  clientStore,
	}
}

func newDisabledCategoryFromManifest(m *loader.Manifest) (any, error) {
	s, err := decodeSettings(m)
	if err != nil {
		return nil, err
	}
	var extra struct {
		Exempt []string `yaml:"exempt" toml:"exempt" json:"exempt"`
	}
	if err := m.Decode(&extra); err != nil {
		return nil, err
	}
	return newDisabledCategory(s, extra.Exempt), nil
}

func clientStore(c *command.Context) *storage.Storage {
	if p, ok := c.Client.(interface{ Store() *storage.Storage }); ok {
		return p.Store()
	}
	return nil
}

func (d *DisabledCategory) Exec(_ context.Context, c *command.Context, target module.Module) (bool, error) {
	if !c.InGuild() || target == nil {
		return false, nil
	}
	category := target.CategoryID()
	if slices.ContainsFunc(d.exempt, func(e string) bool { return strings.EqualFold(e, category) }) {
		return false, nil
	}
	store := d.store(c)
	if store == nil {
		return false, nil
	}
	disabled, err := store.IsCategoryDisabled(c.GuildID, category)
	if err != nil {
		return false, fmt.Errorf("inhibitor %s: %w", d.ID(), err)
	}
	return disabled, nil
}
