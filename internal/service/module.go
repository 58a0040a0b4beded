// internal/service/module.go
package service

// Operation is one named remote call. Implementations are stateless; any
// access to host state goes through Host, which runs it on the host thread.
type Operation interface {
	Invoke(ctx *Context, host Host) (any, error)
}

type OperationFunc func(ctx *Context, host Host) (any, error)

func (f OperationFunc) Invoke(ctx *Context, host Host) (any, error) {
	return f(ctx, host)
}

// Module groups related operations.
type Module interface {
	Name() string
	Init() error
	Operations() map[string]Operation
}
