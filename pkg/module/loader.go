package module

// Loader turns a directory into candidate source files and a file into a
// module value.
type Loader interface {
	// Files lists every file under dir, recursively.
	Files(dir string) ([]string, error)
	// Resolve returns the module built from path. A nil value with a nil
	// error means the file holds no module and should be skipped.
	Resolve(path string) (any, error)
	// Invalidate drops anything cached for path.
	Invalidate(path string)
}

// Filter selects which files LoadAll loads.
type Filter func(path string) bool
