// internal/service/modules/common/common.go
package common

import (
	"os"
	"runtime"
	"time"

	"game-bridge/internal/protocol"
	"game-bridge/internal/service"
)

// Module holds the operations every host supports. Player reads come from
// the player cache and never reach the host thread.
type Module struct {
	now func() time.Time
}

func New() *Module {
	return &Module{now: time.Now}
}

func (m *Module) Name() string { return "common" }
func (m *Module) Init() error  { return nil }

func (m *Module) Operations() map[string]service.Operation {
	return map[string]service.Operation{
		protocol.OpGetPlayerList:      service.OperationFunc(m.playerList),
		protocol.OpGetPlayerCount:     service.OperationFunc(m.playerCount),
		protocol.OpIsConnected:        service.OperationFunc(m.isConnected),
		protocol.OpGetPluginType:      service.OperationFunc(m.pluginType),
		protocol.OpGetSystemStats:     service.OperationFunc(m.systemStats),
		protocol.OpRunCommand:         service.OperationFunc(m.runCommand),
		protocol.OpGetServerTimestamp: service.OperationFunc(m.timestamp),
	}
}

func (m *Module) playerList(_ *service.Context, host service.Host) (any, error) {
	return host.Players().List(), nil
}

func (m *Module) playerCount(_ *service.Context, host service.Host) (any, error) {
	return host.Players().Count(), nil
}

func (m *Module) isConnected(ctx *service.Context, host service.Host) (any, error) {
	name, err := ctx.StringArg(0, "name")
	if err != nil {
		return nil, err
	}
	return host.Players().Contains(name), nil
}

func (m *Module) pluginType(_ *service.Context, host service.Host) (any, error) {
	return host.Type(), nil
}

func (m *Module) timestamp(_ *service.Context, _ service.Host) (any, error) {
	return m.now().UnixMilli(), nil
}

// SystemStats is the GET_SYSTEM_STATS payload.
type SystemStats struct {
	Goroutines   int    `json:"goroutines"`
	CPUs         int    `json:"cpus"`
	HeapAlloc    uint64 `json:"heap_alloc"`
	HeapSys      uint64 `json:"heap_sys"`
	TotalAlloc   uint64 `json:"total_alloc"`
	NumGC        uint32 `json:"num_gc"`
	UptimeMillis int64  `json:"uptime_ms"`
	GoVersion    string `json:"go_version"`
	PID          int    `json:"pid"`
}

func (m *Module) systemStats(_ *service.Context, host service.Host) (any, error) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return SystemStats{
		Goroutines:   runtime.NumGoroutine(),
		CPUs:         runtime.NumCPU(),
		HeapAlloc:    mem.HeapAlloc,
		HeapSys:      mem.HeapSys,
		TotalAlloc:   mem.TotalAlloc,
		NumGC:        mem.NumGC,
		UptimeMillis: m.now().Sub(host.StartedAt()).Milliseconds(),
		GoVersion:    runtime.Version(),
		PID:          os.Getpid(),
	}, nil
}

func (m *Module) runCommand(ctx *service.Context, host service.Host) (any, error) {
	command, err := ctx.StringArg(0, "command")
	if err != nil {
		return nil, err
	}
	if command == "" {
		return nil, protocol.NewError(protocol.CodeInvalidArguments, "command is empty")
	}
	return host.RunCommand(ctx, command)
}
