// askchat - a terminal client for a question-answering chat backend.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/askchat/internal/api"
	"github.com/jeranaias/askchat/internal/auth"
	"github.com/jeranaias/askchat/internal/chat"
	"github.com/jeranaias/askchat/internal/cli"
	"github.com/jeranaias/askchat/internal/config"
	"github.com/jeranaias/askchat/internal/conversation"
	"github.com/jeranaias/askchat/internal/logging"
	"github.com/jeranaias/askchat/internal/session"
	"github.com/jeranaias/askchat/internal/storage"
	"github.com/jeranaias/askchat/internal/ui/app"
	"github.com/jeranaias/askchat/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	cmd, args, err := cli.Parse(argv)
	if err != nil {
		fmt.Fprintln(os.Stderr, cli.ErrorStyle.Render("Error: "+err.Error()))
		cli.PrintUsage(os.Stderr)
		return 2
	}
	switch cmd {
	case cli.CmdHelp:
		cli.PrintUsage(os.Stdout)
		return 0
	case cli.CmdVersion:
		cli.PrintVersion(os.Stdout)
		return 0
	}

	cfg, err := config.Load()
	if cfg == nil {
		fmt.Fprintln(os.Stderr, cli.ErrorStyle.Render("Error: "+err.Error()))
		return 1
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
	}
	if args.BoolFlag("verbose") || args.BoolFlag("v") {
		cfg.Logging.Level = "debug"
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, cli.ErrorStyle.Render("Error: "+err.Error()))
		return 1
	}
	defer closeLog()
	slog.SetDefault(logger)

	configPath, _ := config.ConfigPathTOML()
	env := &cli.Env{Config: cfg, ConfigPath: configPath}

	if cli.NeedsStorage(cmd) {
		rt, err := openStores(cfg, logger)
		if err != nil {
			fmt.Fprintln(os.Stderr, cli.ErrorStyle.Render("Error: "+err.Error()))
			return 1
		}
		defer rt.close()
		env.Sessions = rt.sessions
		env.Conversation = rt.conversation
		env.Supervisor = rt.supervisor

		if cmd == cli.CmdTUI {
			return exitCode(runTUI(cfg, rt, logger))
		}
	}

	switch cmd {
	case cli.CmdConfig:
		err = cli.HandleConfig(env, args)
	case cli.CmdExport:
		err = cli.HandleExport(env, args)
	case cli.CmdStatus:
		err = cli.HandleStatus(env, args)
	case cli.CmdLogout:
		err = cli.HandleLogout(env)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintln(os.Stderr, cli.ErrorStyle.Render("Error: "+err.Error()))
	if errors.Is(err, cli.ErrUsage) {
		return 2
	}
	return 1
}

func newLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	file, err := cfg.ResolveLogFile()
	if err != nil {
		// No home directory: keep running without a log file.
		file = ""
	}
	logger, closer, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   file,
	})
	if err != nil {
		return nil, func() {}, err
	}
	return logger, func() { _ = closer.Close() }, nil
}

// =============================================================================
// STORES
// =============================================================================

// stores is the persisted state shared by the TUI and the session commands.
type stores struct {
	kv           storage.Store
	conversation *conversation.Store
	sessions     *session.Store
	supervisor   *session.Supervisor
	logger       *slog.Logger
}

func openStores(cfg *config.Config, logger *slog.Logger) (*stores, error) {
	dataDir, err := cfg.ResolveDataDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	kv, err := storage.Open(storage.Options{
		Backend:    storage.Backend(cfg.Storage.Backend),
		Dir:        dataDir,
		Passphrase: cfg.Storage.Passphrase,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	conv := conversation.NewStore(kv, conversation.WithLogger(logger))
	conv.Initialize()
	sessions := session.NewStore(kv, conv, session.WithLogger(logger))
	sessions.Initialize()

	sup := session.NewSupervisor(sessions, conv, session.SupervisorConfig{
		CheckInterval: cfg.Session.CheckInterval(),
		Logger:        logger,
	})

	return &stores{
		kv:           kv,
		conversation: conv,
		sessions:     sessions,
		supervisor:   sup,
		logger:       logger,
	}, nil
}

func (r *stores) close() {
	r.supervisor.Stop()
	if err := r.kv.Close(); err != nil {
		r.logger.Warn("failed to close storage", "error", err)
	}
}

// =============================================================================
// TUI
// =============================================================================

func runTUI(cfg *config.Config, rt *stores, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := api.NewClient(api.Config{
		BaseURL:    cfg.API.BaseURL,
		Timeout:    cfg.API.Timeout(),
		MaxRetries: cfg.API.MaxRetries,
		RateLimit:  cfg.API.RateLimitRPS,
		Burst:      cfg.API.RateLimitBurst,
		Logger:     logger,
	})
	ctrl := chat.NewController(client, rt.sessions, rt.conversation, chat.WithLogger(logger))
	flow := auth.NewFlow(client, rt.sessions, logger)

	model := app.New(ctx, app.Deps{
		Controller:     ctrl,
		Auth:           flow,
		Sessions:       rt.sessions,
		Supervisor:     rt.supervisor,
		Theme:          styles.NewTheme(cfg.UI.Theme),
		RenderMarkdown: cfg.UI.RenderMarkdown,
		Logger:         logger,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	rt.supervisor.OnReset(ctrl.Reset)
	rt.supervisor.OnReset(func() {
		// Send blocks until the program loop runs.
		go p.Send(session.ResetMsg{})
	})
	rt.supervisor.Start(ctx)

	logger.Info("askchat started", "version", Version, "api", client.BaseURL(), "storage", cfg.Storage.Backend)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
