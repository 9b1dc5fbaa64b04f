package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/docket/cmd/tui/internal/view"
	"github.com/MrJamesThe3rd/docket/internal/app"
	"github.com/MrJamesThe3rd/docket/internal/config"
	"github.com/MrJamesThe3rd/docket/internal/logging"
)

const logFile = "docket-tui.log"

type model struct {
	app      *app.App
	owner    uuid.UUID
	reviewer string

	currentView View

	queueView     view.QueueModel
	documentsView view.DocumentsModel
	recordsView   view.RecordsModel
}

type View int

const (
	ViewMenu      View = 0
	ViewQueue     View = 1
	ViewDocuments View = 2
	ViewRecords   View = 3
)

func initialModel(a *app.App, owner uuid.UUID, reviewer string) model {
	return model{
		app:           a,
		owner:         owner,
		reviewer:      reviewer,
		currentView:   ViewMenu,
		queueView:     view.NewQueueModel(a.Documents, a.Queue, owner, reviewer),
		documentsView: view.NewDocumentsModel(a.Documents, a.Pipeline, owner),
		recordsView:   view.NewRecordsModel(a.Records, owner),
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

		if m.currentView == ViewMenu {
			switch msg.String() {
			case "q":
				return m, tea.Quit
			case "1":
				m.currentView = ViewQueue
				m.queueView = view.NewQueueModel(m.app.Documents, m.app.Queue, m.owner, m.reviewer)

				return m, m.queueView.Init()
			case "2":
				m.currentView = ViewDocuments
				m.documentsView = view.NewDocumentsModel(m.app.Documents, m.app.Pipeline, m.owner)

				return m, m.documentsView.Init()
			case "3":
				m.currentView = ViewRecords
				m.recordsView = view.NewRecordsModel(m.app.Records, m.owner)

				return m, m.recordsView.Init()
			}
		}
	case view.BackMsg:
		m.currentView = ViewMenu
		return m, nil
	}

	switch m.currentView {
	case ViewQueue:
		var newModel tea.Model
		newModel, cmd = m.queueView.Update(msg)
		m.queueView = newModel.(view.QueueModel)
	case ViewDocuments:
		var newModel tea.Model
		newModel, cmd = m.documentsView.Update(msg)
		m.documentsView = newModel.(view.DocumentsModel)
	case ViewRecords:
		var newModel tea.Model
		newModel, cmd = m.recordsView.Update(msg)
		m.recordsView = newModel.(view.RecordsModel)
	}

	return m, cmd
}

func (m model) View() string {
	var current view.View

	switch m.currentView {
	case ViewMenu:
		return lipgloss.NewStyle().Padding(2).Render(
			"Docket TUI\n\n" +
				"1. Verification Queue\n" +
				"2. Documents\n" +
				"3. Financial Records\n\n" +
				"q. Quit",
		)
	case ViewQueue:
		current = m.queueView
	case ViewDocuments:
		current = m.documentsView
	case ViewRecords:
		current = m.recordsView
	default:
		return "Unknown View"
	}

	title := lipgloss.NewStyle().Bold(true).PaddingLeft(1).Render(current.Title())
	help := lipgloss.NewStyle().Foreground(lipgloss.Color("241")).PaddingLeft(1).Render(current.ShortHelp())

	return lipgloss.JoinVertical(lipgloss.Left, title, current.View(), help)
}

func resolveOwner(cfg *config.Config) (uuid.UUID, error) {
	if cfg.TUI.OwnerID != "" {
		owner, err := uuid.Parse(cfg.TUI.OwnerID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("TUI_OWNER_ID: %w", err)
		}

		return owner, nil
	}

	if cfg.App.StoreDriver == config.StoreDriverMemory {
		return uuid.New(), nil
	}

	return uuid.Nil, errors.New("TUI_OWNER_ID is required with the postgres store")
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	logger := logging.New(f, cfg.Log.Level)
	slog.SetDefault(logger)

	owner, err := resolveOwner(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// With postgres the API server owns the workers; a second recovery pass
	// would fail documents it is extracting.
	if cfg.App.StoreDriver == config.StoreDriverMemory {
		go func() {
			if err := a.Pipeline.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("pipeline stopped", "error", err)
			}
		}()
	}

	p := tea.NewProgram(initialModel(a, owner, cfg.TUI.Reviewer), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run TUI: %w", err)
	}

	return nil
}

func main() {
	if err := run(); err != nil {
		slog.Error("docket tui failed", "error", err)
		os.Exit(1)
	}
}
