package game

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"game-bridge/internal/transport"

	"go.uber.org/zap"
)

var (
	ErrUsage          = errors.New("usage")
	ErrPlayerOffline  = errors.New("player is not online")
	ErrCommandUnknown = errors.New("unknown command")
)

// Sender receives the output of a console command.
type Sender interface {
	Name() string
	SendMessage(msg string)
}

// CommandFunc handles one console command. It runs on the host thread.
type CommandFunc func(sender Sender, args []string) error

type logSender struct {
	logger *zap.Logger
}

func (l *logSender) Name() string { return "CONSOLE" }

func (l *logSender) SendMessage(msg string) {
	l.logger.Info(msg)
}

// WriterSender writes command output line by line to w.
type WriterSender struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterSender(w io.Writer) *WriterSender {
	return &WriterSender{w: w}
}

func (s *WriterSender) Name() string { return "CONSOLE" }

func (s *WriterSender) SendMessage(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, msg)
}

// RegisterCommand must be called before Run or from the host thread. A later
// registration under the same name replaces the earlier one.
func (s *Server) RegisterCommand(name string, fn CommandFunc) {
	s.commands[strings.ToLower(name)] = fn
}

// DispatchCommand runs line as the console. It reports whether a command
// with that name exists and completed without error. Host thread only.
func (s *Server) DispatchCommand(line string) bool {
	return s.DispatchAs(s.console, line) == nil
}

func (s *Server) DispatchAs(sender Sender, line string) error {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(line), "/"))
	if len(fields) == 0 {
		return ErrUsage
	}
	name := strings.ToLower(fields[0])
	fn, ok := s.commands[name]
	if !ok {
		s.logger.Info("unknown command", zap.String("command", name))
		sender.SendMessage(fmt.Sprintf("Unknown command %q", name))
		return ErrCommandUnknown
	}

	atomic.AddUint64(&s.commandCount, 1)
	if err := fn(sender, fields[1:]); err != nil {
		sender.SendMessage(fmt.Sprintf("%s: %v", name, err))
		return err
	}
	return nil
}

// RunConsole feeds lines from in to the host thread until EOF or ctx is done.
func (s *Server) RunConsole(ctx context.Context, in io.Reader, out io.Writer) error {
	sender := NewWriterSender(out)
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case line := <-lines:
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := s.queue.Submit("console", func() { _ = s.DispatchAs(sender, line) }); err != nil {
				sender.SendMessage("server busy: " + err.Error())
			}
		}
	}
}

func (s *Server) registerBuiltins() {
	s.RegisterCommand("help", s.cmdHelp)
	s.RegisterCommand("list", s.cmdList)
	s.RegisterCommand("say", s.cmdSay)
	s.RegisterCommand("kick", s.cmdKick)
	s.RegisterCommand("ban", s.cmdBan)
	s.RegisterCommand("pardon", s.cmdPardon)
	s.RegisterCommand("whitelist", s.cmdWhitelist)
	s.RegisterCommand("motd", s.cmdMOTD)
}

func (s *Server) cmdHelp(sender Sender, _ []string) error {
	names := make([]string, 0, len(s.commands))
	for name := range s.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	sender.SendMessage("Commands: " + strings.Join(names, ", "))
	return nil
}

func (s *Server) cmdList(sender Sender, _ []string) error {
	names := s.players.Names()
	sender.SendMessage(fmt.Sprintf("%d/%d players online: %s", len(names), s.maxPlayers, strings.Join(names, ", ")))
	return nil
}

func (s *Server) cmdSay(sender Sender, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: say <message>", ErrUsage)
	}
	msg, err := transport.NewMessage(map[string]any{
		"op":   "chat",
		"from": sender.Name(),
		"text": strings.Join(args, " "),
	})
	if err != nil {
		return err
	}
	s.players.Broadcast(msg)
	return nil
}

func (s *Server) cmdKick(sender Sender, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: kick <player> [reason]", ErrUsage)
	}
	p := s.players.Get(args[0])
	if p == nil {
		return fmt.Errorf("%s: %w", args[0], ErrPlayerOffline)
	}
	reason := "kicked"
	if len(args) > 1 {
		reason = strings.Join(args[1:], " ")
	}
	p.Kick(reason)
	sender.SendMessage("Kicked " + p.Name)
	return nil
}

func (s *Server) cmdBan(sender Sender, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: ban <player>", ErrUsage)
	}
	name := args[0]
	s.banned[name] = struct{}{}
	if p := s.players.Get(name); p != nil {
		p.Kick("banned")
	}
	sender.SendMessage("Banned " + name)
	return nil
}

func (s *Server) cmdPardon(sender Sender, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: pardon <player>", ErrUsage)
	}
	delete(s.banned, args[0])
	sender.SendMessage("Pardoned " + args[0])
	return nil
}

func (s *Server) cmdWhitelist(sender Sender, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: whitelist add|remove <player> | on | off | list", ErrUsage)
	}
	switch strings.ToLower(args[0]) {
	case "on":
		s.whitelistOn = true
		sender.SendMessage("Whitelist enabled")
	case "off":
		s.whitelistOn = false
		sender.SendMessage("Whitelist disabled")
	case "list":
		sender.SendMessage("Whitelisted: " + strings.Join(sortedKeys(s.whitelist), ", "))
	case "add":
		if len(args) < 2 {
			return fmt.Errorf("%w: whitelist add <player>", ErrUsage)
		}
		s.whitelist[args[1]] = struct{}{}
		sender.SendMessage("Whitelisted " + args[1])
	case "remove":
		if len(args) < 2 {
			return fmt.Errorf("%w: whitelist remove <player>", ErrUsage)
		}
		delete(s.whitelist, args[1])
		sender.SendMessage("Removed " + args[1] + " from the whitelist")
	default:
		return fmt.Errorf("%w: whitelist add|remove <player> | on | off | list", ErrUsage)
	}
	return nil
}

func (s *Server) cmdMOTD(sender Sender, args []string) error {
	if len(args) == 0 {
		sender.SendMessage(s.motd)
		return nil
	}
	s.motd = strings.Join(args, " ")
	sender.SendMessage("MOTD set")
	return nil
}
