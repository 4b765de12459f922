package module

import "errors"

var (
	ErrAlreadyLoaded        = errors.New("module already loaded")
	ErrNotReloadable        = errors.New("module is not reloadable")
	ErrModuleNotFound       = errors.New("module not found")
	ErrInvalidClassToHandle = errors.New("value cannot be handled by this registry")
	ErrAliasConflict        = errors.New("alias conflict")
)
