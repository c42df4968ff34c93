package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/lox/spades/internal/client"
	"github.com/lox/spades/internal/deck"
	"github.com/lox/spades/internal/tui"
)

// ClientCmd runs the terminal client.
type ClientCmd struct {
	Config    string `short:"c" default:"spades-client.hcl" help:"Path to HCL configuration file"`
	Server    string `short:"s" help:"Server URL to connect to (overrides config)"`
	Mode      string `help:"Default mode for start and queue: ace_high or jjdd (overrides config)"`
	PointGoal int    `name:"point-goal" help:"Default point goal (overrides config)"`
	LogLevel  string `short:"l" name:"log-level" help:"Log level (overrides config)"`
	LogFile   string `name:"log-file" help:"Log file path (overrides config)"`
	NoColor   bool   `name:"no-color" help:"Disable colours"`
	Resume    string `help:"Resume token from an earlier session, to return to its game"`
}

func (c *ClientCmd) Run() error {
	cfg, err := client.LoadClientConfig(c.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if c.Server != "" {
		cfg.Server.URL = c.Server
	}
	if c.Mode != "" {
		cfg.Game.Mode = c.Mode
	}
	if c.PointGoal != 0 {
		cfg.Game.PointGoal = c.PointGoal
	}
	if c.LogLevel != "" {
		cfg.UI.LogLevel = c.LogLevel
	}
	if c.LogFile != "" {
		cfg.UI.LogFile = c.LogFile
	}
	if c.NoColor {
		cfg.UI.NoColor = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.UI.NoColor {
		tui.DisableColor()
	}

	// The terminal belongs to the TUI, so logs go to a file.
	logFile, err := os.OpenFile(cfg.UI.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	level, err := log.ParseLevel(cfg.UI.LogLevel)
	if err != nil {
		return err
	}
	logger := log.NewWithOptions(logFile, log.Options{Level: level, ReportTimestamp: true})
	logger.Info("Starting Spades client", "server", cfg.Server.URL, "config", c.Config)

	model := tui.NewModel(logger)
	program := tea.NewProgram(model, tea.WithAltScreen())

	wsClient := client.New(cfg.Server.URL, logger)
	wsClient.ResumeWith(c.Resume)
	bridge := tui.NewBridge(wsClient, wsClient, model, program.Send, tui.Defaults{
		Mode:      deck.Mode(cfg.Game.Mode),
		PointGoal: cfg.Game.PointGoal,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ConnectTimeout)*time.Second)
	err = wsClient.Connect(ctx)
	cancel()
	if err != nil {
		return err
	}
	defer func() { _ = wsClient.Disconnect() }()

	model.AddLogEntry(tui.HeaderStyle.Render(" Spades "))
	model.AddLogEntry("Connected to " + cfg.Server.URL)
	model.AddLogEntry("Type help for commands.")

	bridge.Start()
	go func() {
		<-wsClient.Done()
		if token := wsClient.ResumeToken(); token != "" {
			logger.Info("Reconnect with --resume to return to the game", "token", token)
		}
		program.Send(tui.ErrorMsg{Code: "connection", Message: "disconnected from server"})
	}()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("running TUI: %w", err)
	}
	return nil
}
