package module

const (
	EventLoad   = "load"
	EventRemove = "remove"
)

// LoadEvent is emitted after a module is registered. Reload is set when the
// module replaced a previous instance loaded from the same source.
type LoadEvent struct {
	Handler string
	Module  Module
	Reload  bool
}

func (LoadEvent) EventName() string { return EventLoad }

// RemoveEvent is emitted after a module is removed.
type RemoveEvent struct {
	Handler string
	Module  Module
}

func (RemoveEvent) EventName() string { return EventRemove }
