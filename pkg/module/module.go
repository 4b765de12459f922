// Package module holds the pluggable-unit registry shared by commands and
// inhibitors: modules with stable ids, ordered categories, and a generic
// Handler that loads, indexes, hot-reloads and removes them.
package module

// DefaultCategory is the category id of modules that do not declare one.
const DefaultCategory = "default"

// Module is anything a Handler can hold. Embed Base to implement it.
type Module interface {
	ID() string
	CategoryID() string
	Meta() *Base
}

// Owner is the registry a module is attached to. Categories use it for their
// bulk operations.
type Owner interface {
	ReloadModule(id string) error
	RemoveModule(id string) error
}

// Attachment carries the back-references a registry hands a module when it
// registers it.
type Attachment struct {
	Category *Category
	Source   string
	Client   any
	Owner    Owner
}

// Base is the identity and bookkeeping part of a module.
type Base struct {
	id         string
	categoryID string

	category *Category
	source   string
	client   any
	owner    Owner
}

// NewBase returns a Base with the given id. An empty categoryID means
// DefaultCategory.
func NewBase(id, categoryID string) Base {
	if categoryID == "" {
		categoryID = DefaultCategory
	}
	return Base{id: id, categoryID: categoryID}
}

func (b *Base) ID() string         { return b.id }
func (b *Base) CategoryID() string { return b.categoryID }
func (b *Base) Meta() *Base        { return b }

// Category is the category the module was filed under, nil before registration.
func (b *Base) Category() *Category { return b.category }

// Source is the file the module was loaded from. Modules registered from code
// have none and cannot be reloaded.
func (b *Base) Source() string { return b.source }

// Reloadable reports whether the module has a source to reload from.
func (b *Base) Reloadable() bool { return b.source != "" }

func (b *Base) Client() any    { return b.client }
func (b *Base) Handler() Owner { return b.owner }

// Attach sets the registration back-references.
func (b *Base) Attach(a Attachment) {
	b.category = a.Category
	b.source = a.Source
	b.client = a.Client
	b.owner = a.Owner
	if a.Category != nil {
		b.categoryID = a.Category.ID()
	}
}
