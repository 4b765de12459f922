package command

// Middleware wraps command execution (logging, tracing, history).
type Middleware func(next ExecFunc) ExecFunc

// Chain applies middlewares around exec; the first one is the outermost.
func Chain(exec ExecFunc, mws ...Middleware) ExecFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			exec = mws[i](exec)
		}
	}
	return exec
}
