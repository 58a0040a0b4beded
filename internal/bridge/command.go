package bridge

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"game-bridge/internal/config"
	"game-bridge/internal/protocol"

	"go.uber.org/zap"
)

var ErrUsage = errors.New("usage: bridge reset | port <1-65535> | status")

// Sender receives the bridge's replies to an admin command.
type Sender interface {
	SendMessage(msg string)
}

// HandleCommand runs an admin command. Success is reported to sender;
// failures are returned for the caller to report.
func (b *Bridge) HandleCommand(sender Sender, args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}
	switch strings.ToLower(args[0]) {
	case "reset":
		if len(args) != 1 {
			return ErrUsage
		}
		return b.resetConfig(sender)
	case "port":
		if len(args) != 2 {
			return ErrUsage
		}
		port, err := strconv.Atoi(args[1])
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("%w: invalid port %q", ErrUsage, args[1])
		}
		return b.setPort(sender, port)
	case "status":
		st := b.Status()
		sender.SendMessage(fmt.Sprintf("bridge mode=%s available=%t addr=%s pending=%d players=%d",
			st.Mode, st.Available, st.Addr, st.Pending, st.Players))
		if st.LastError != "" {
			sender.SendMessage("bridge last error: " + st.LastError)
		}
		return nil
	default:
		return ErrUsage
	}
}

// resetConfig rewrites config.json with the defaults. The running entry
// point is left as it is until the next enable.
func (b *Bridge) resetConfig(sender Sender) error {
	cfg, err := config.Reset(b.configPath)
	if err != nil {
		return protocol.WrapError(protocol.CodePersistenceFailure, "reset configuration", err)
	}
	b.mu.Lock()
	b.cfg = cfg
	b.mu.Unlock()
	b.applyLevel(cfg.LogLevel)

	sender.SendMessage("bridge configuration reset")
	b.logger.Info("configuration reset")
	return nil
}

// setPort persists port and moves the HTTP entry point onto it. The port is
// saved even when binding fails, so the next start retries it.
func (b *Bridge) setPort(sender Sender, port int) error {
	b.mu.Lock()
	cfg := config.DefaultBridgeConfig()
	if b.cfg != nil {
		cfg = *b.cfg
	}
	next := cfg.WithPort(port)
	if err := next.Save(b.configPath); err != nil {
		b.mu.Unlock()
		return protocol.WrapError(protocol.CodePersistenceFailure, "save configuration", err)
	}
	b.cfg = &next
	inj := b.injector
	b.mu.Unlock()

	if inj == nil {
		sender.SendMessage(fmt.Sprintf("bridge port %d saved, applied on enable", port))
		return nil
	}
	b.logger.Info("trying to start http server", zap.Int("port", port))
	if err := inj.SwitchToDedicated(port); err != nil {
		b.logger.Info("http server start failed", zap.String("reason", err.Error()))
		return fmt.Errorf("bridge port setup failed: %w", err)
	}
	sender.SendMessage(fmt.Sprintf("bridge port setup on %d", port))
	b.logger.Info("port setup", zap.Int("port", port))
	return nil
}
