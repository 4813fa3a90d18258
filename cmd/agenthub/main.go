package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/AgentHub/internal/config"
	"github.com/Strob0t/AgentHub/internal/daemon"
	"github.com/Strob0t/AgentHub/internal/logger"
	"github.com/Strob0t/AgentHub/internal/supervisor"
)

func main() {
	// Temporary bootstrap logger until config is loaded.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	args := os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "admin":
			if err := runAdmin(args[1:]); err != nil {
				slog.Error("fatal", "error", err)
				os.Exit(1)
			}
			return
		case "supervise":
			if err := runSupervised(); err != nil {
				slog.Error("fatal", "error", err)
				os.Exit(1)
			}
			return
		case "migrate-config":
			if err := runMigrate(); err != nil {
				slog.Error("fatal", "error", err)
				os.Exit(1)
			}
			return
		}
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// runSupervised re-executes this binary under the restart supervisor.
func runSupervised() error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return supervisor.New(self, nil, 5).Run(ctx)
}

func runMigrate() error {
	path, err := config.DefaultPath()
	if err != nil {
		return err
	}
	if err := config.Migrate(path); err != nil {
		return err
	}
	fmt.Println("config migrated:", path)
	return nil
}

func run() error {
	baseDir, err := config.BaseDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return fmt.Errorf("mkdir base dir: %w", err)
	}

	cfg, cfgPath, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	holder := config.NewHolder(cfg, cfgPath)

	// Replace bootstrap logger: JSON to daemon.log and stdout.
	logFile, err := os.OpenFile(filepath.Join(baseDir, "daemon.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open daemon.log: %w", err)
	}
	defer logFile.Close()
	log, closer := logger.NewTo(cfg.Logging, io.MultiWriter(os.Stdout, logFile))
	slog.SetDefault(log)
	defer closer.Close()

	slog.Info("config loaded",
		"path", cfgPath,
		"accounts", len(cfg.Accounts),
		"schema_version", cfg.SchemaVersion,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- State graph ---
	state, err := daemon.NewState(ctx, holder, baseDir)
	if err != nil {
		return err
	}
	defer state.Close()

	// --- Socket ---
	server := daemon.NewServer(state)
	if err := server.Listen(); err != nil {
		return err
	}
	defer os.Remove(server.SocketPath())

	pidPath := filepath.Join(baseDir, "daemon.pid")
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	// --- Periodic work alongside client I/O ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Serve(gctx)
	})

	if holder.Get().FeatureEnabled("slaEngine") {
		g.Go(func() error {
			state.SLA.Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		state.Sessions.RunJanitor(gctx.Done(), 30*time.Second, time.Hour)
		return nil
	})

	g.Go(func() error {
		watcher, err := config.NewWatcher(holder, nil)
		if err != nil {
			return err
		}
		if err := watcher.Run(gctx); err != nil && gctx.Err() == nil {
			return err
		}
		return nil
	})

	slog.Info("daemon ready", "base_dir", baseDir)
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	slog.Info("daemon stopped")
	return nil
}
