package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/earthmate/earthmate/internal/backend"
	"github.com/earthmate/earthmate/internal/chat"
	"github.com/earthmate/earthmate/internal/plan"
	"github.com/earthmate/earthmate/internal/store"
	"github.com/earthmate/earthmate/internal/ui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the terminal interface",
	Long: `Opens the action plan form and the assistant chat in the terminal.
The chat transcript is kept in the local database and restored on the next run.
Logs go to LOG_PATH because the interface owns the terminal.`,
	RunE: runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	logFile, err := openLogFile(cfg.Log.Path)
	if err != nil {
		return err
	}
	defer logFile.Close()

	logger := slog.New(slog.NewJSONHandler(logFile, &slog.HandlerOptions{
		Level: cfg.Log.Level,
	}))
	slog.SetDefault(logger)

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	client := backend.NewClient(cfg.BackendURL, cfg.RequestTimeout, backend.WithLogger(logger))
	transcripts := store.NewTranscriptStore(repo, cfg.ChatStorageKey)

	planSession := plan.New(client, plan.WithLogger(logger))
	defer planSession.Close()
	chatSession := chat.New(ctx, client, transcripts, chat.WithLogger(logger))
	defer chatSession.Close()

	slog.Info("Starting terminal interface", "backend", cfg.BackendURL, "transcript_key", transcripts.Key())

	p := tea.NewProgram(ui.New(ctx, planSession, chatSession, logger), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run terminal interface: %w", err)
	}
	return nil
}

func openLogFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
