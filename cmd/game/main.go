// cmd/game/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"game-bridge/internal/bridge"
	"game-bridge/internal/common/logging"
	"game-bridge/internal/config"
	"game-bridge/internal/game"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		configPath string
		logLevel   string
		console    bool
	)
	flag.StringVar(&configPath, "config", "configs/game.json", "host config path")
	flag.StringVar(&logLevel, "log-level", "info", "host log level")
	flag.BoolVar(&console, "console", true, "read admin commands from stdin")
	flag.Parse()

	// ========== 配置 & 日志 ==========
	cfg := config.DefaultHostConfig()
	if err := config.Load(configPath, &cfg); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Fatal(err)
		}
		log.Printf("[Game] %s not found, using defaults", configPath)
	}

	logger, _, err := logging.Build("game", logging.Options{Level: logLevel})
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ========== Host ==========
	server := game.New(cfg, logger)

	// ========== Bridge ==========
	b := bridge.New(bridge.Options{
		DataDir:  filepath.Join(cfg.DataDir, "bridge"),
		Kind:     game.PluginType,
		State:    server,
		Queue:    server.Queue(),
		Pipeline: server.Pipeline(),
		Online:   server.OnlinePlayers,
	})
	server.AddListener(b)
	server.RegisterCommand("bridge", func(sender game.Sender, args []string) error {
		return b.HandleCommand(sender, args)
	})
	if err := b.Enable(ctx); err != nil {
		logger.Fatal("bridge enable failed", zap.Error(err))
	}

	// ========== Run ==========
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error { return server.ListenAndServe(gctx) })
	if cfg.WebSocketAddr != "" {
		g.Go(func() error { return server.ServeWebSocket(gctx, cfg.WebSocketAddr) })
	}
	if console {
		go func() {
			if err := server.RunConsole(gctx, os.Stdin, os.Stdout); err != nil {
				logger.Warn("console stopped", zap.Error(err))
			}
		}()
	}

	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.Disable(shutdownCtx); err != nil {
		logger.Warn("bridge disable failed", zap.Error(err))
	}
	if runErr != nil {
		logger.Error("server stopped", zap.Error(runErr))
		os.Exit(1)
	}
	logger.Info("server stopped")
}
