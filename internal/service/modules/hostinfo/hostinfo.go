// internal/service/modules/hostinfo/hostinfo.go
package hostinfo

import (
	"game-bridge/internal/protocol"
	"game-bridge/internal/service"
)

// Module reads host settings. Each call runs on the host thread.
type Module struct{}

func (m *Module) Name() string { return "hostinfo" }
func (m *Module) Init() error  { return nil }

func (m *Module) Operations() map[string]service.Operation {
	return map[string]service.Operation{
		protocol.OpGetBannedPlayers: service.OperationFunc(func(ctx *service.Context, host service.Host) (any, error) {
			return nonNil(host.BannedPlayers(ctx))
		}),
		protocol.OpGetWhitelistedPlayers: service.OperationFunc(func(ctx *service.Context, host service.Host) (any, error) {
			return nonNil(host.WhitelistedPlayers(ctx))
		}),
		protocol.OpGetMaxPlayers: service.OperationFunc(func(ctx *service.Context, host service.Host) (any, error) {
			return host.MaxPlayers(ctx)
		}),
		protocol.OpGetMOTD: service.OperationFunc(func(ctx *service.Context, host service.Host) (any, error) {
			return host.MOTD(ctx)
		}),
		protocol.OpGetVersion: service.OperationFunc(func(ctx *service.Context, host service.Host) (any, error) {
			return host.Version(ctx)
		}),
	}
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil(names []string, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}
