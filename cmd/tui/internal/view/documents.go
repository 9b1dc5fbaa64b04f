package view

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/docket/internal/document"
	"github.com/MrJamesThe3rd/docket/internal/pipeline"
)

const uploadTimeout = time.Minute

type documentsState int

const (
	documentsStateBrowse documentsState = iota
	documentsStateKindSelect
	documentsStateFilePick
)

var statusFilters = []*document.Status{
	nil,
	new(document.StatusPending),
	new(document.StatusPendingVerification),
	new(document.StatusNeedsReextraction),
	new(document.StatusFailed),
	new(document.StatusVerified),
	new(document.StatusRejected),
}

var kinds = []document.Kind{document.KindReceipt, document.KindPayslip}

type DocumentsModel struct {
	CommonModel
	docs     *document.Service
	pipeline *pipeline.Orchestrator
	owner    uuid.UUID

	state      documentsState
	table      table.Model
	list       []*document.Document
	filterIdx  int
	kindCursor int
	filePicker filepicker.Model

	loading bool
	err     error
	status  string
}

func NewDocumentsModel(docs *document.Service, p *pipeline.Orchestrator, owner uuid.UUID) DocumentsModel {
	fp := filepicker.New()
	fp.CurrentDirectory, _ = os.Getwd()
	fp.AllowedTypes = []string{".pdf", ".txt", ".jpg", ".jpeg", ".png"}
	fp.DirAllowed = false
	fp.FileAllowed = true
	fp.SetHeight(15)

	return DocumentsModel{
		docs:       docs,
		pipeline:   p,
		owner:      owner,
		filePicker: fp,
		loading:    true,
		table: newTable([]table.Column{
			{Title: "Uploaded", Width: 17},
			{Title: "Kind", Width: 8},
			{Title: "File", Width: 28},
			{Title: "Status", Width: 21},
			{Title: "Conf.", Width: 6},
			{Title: "Reason", Width: 30},
		}),
	}
}

func (m DocumentsModel) Title() string { return "Documents" }

func (m DocumentsModel) ShortHelp() string {
	return "Esc: back | u: upload | t: retry failed | f: status filter | r: refresh"
}

func (m DocumentsModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m DocumentsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case documentsLoadedMsg:
		m.loading = false
		m.err = msg.err
		m.list = msg.docs
		m.refreshTable()

		return m, nil

	case documentActionMsg:
		m.state = documentsStateBrowse
		if msg.err != nil {
			m.status = errorStyle(fmt.Sprintf("Error: %v", msg.err))
		} else {
			m.status = okStyle(msg.text)
		}

		return m, m.loadCmd()

	case tea.WindowSizeMsg:
		m.table.SetHeight(max(msg.Height-12, 5))
	}

	switch m.state {
	case documentsStateKindSelect:
		return m.updateKindSelect(msg)
	case documentsStateFilePick:
		return m.updateFilePick(msg)
	}

	return m.updateBrowse(msg)
}

func (m DocumentsModel) updateBrowse(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "esc":
			return m, Back
		case "r":
			m.loading = true
			return m, m.loadCmd()
		case "f":
			m.filterIdx = (m.filterIdx + 1) % len(statusFilters)
			return m, m.loadCmd()
		case "u":
			m.state = documentsStateKindSelect
			return m, nil
		case "t":
			idx := m.table.Cursor()
			if idx < 0 || idx >= len(m.list) {
				return m, nil
			}

			return m, m.retryCmd(m.list[idx].ID)
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m DocumentsModel) updateKindSelect(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch keyMsg.Type {
	case tea.KeyEsc:
		m.state = documentsStateBrowse
	case tea.KeyUp:
		if m.kindCursor > 0 {
			m.kindCursor--
		}
	case tea.KeyDown:
		if m.kindCursor < len(kinds)-1 {
			m.kindCursor++
		}
	case tea.KeyEnter:
		m.state = documentsStateFilePick
		return m, m.filePicker.Init()
	}

	return m, nil
}

func (m DocumentsModel) updateFilePick(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		m.state = documentsStateKindSelect
		return m, nil
	}

	var cmd tea.Cmd
	m.filePicker, cmd = m.filePicker.Update(msg)

	if didSelect, path := m.filePicker.DidSelectFile(msg); didSelect {
		m.status = fmt.Sprintf("Uploading %s...", filepath.Base(path))
		return m, m.uploadCmd(kinds[m.kindCursor], path)
	}

	return m, cmd
}

func (m DocumentsModel) View() string {
	switch m.state {
	case documentsStateKindSelect:
		s := "Document kind:\n\n"

		for i, k := range kinds {
			cursor := " "
			if i == m.kindCursor {
				cursor = ">"
			}

			s += fmt.Sprintf("%s %s\n", cursor, k)
		}

		return lipgloss.NewStyle().Padding(2).Render(s + "\n(Enter to pick a file, Esc to cancel)")
	case documentsStateFilePick:
		return lipgloss.NewStyle().Padding(1).Render(
			fmt.Sprintf("Select the %s to upload:\n\n%s", kinds[m.kindCursor], m.filePicker.View()),
		)
	}

	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading documents...")
	}

	if m.err != nil {
		return lipgloss.NewStyle().Padding(2).Render(errorStyle(fmt.Sprintf("Error: %v", m.err)))
	}

	filter := "All"
	if s := statusFilters[m.filterIdx]; s != nil {
		filter = string(*s)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render("Filter: [f] Status: "+activeStyle(filter)),
		boxed(m.table),
	)

	if m.status != "" {
		content = m.status + "\n" + content
	}

	return lipgloss.NewStyle().Padding(1).Render(content)
}

func (m *DocumentsModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.list))
	for _, d := range m.list {
		rows = append(rows, table.Row{
			d.UploadedAt.Local().Format("2006-01-02 15:04"),
			string(d.Kind),
			d.OriginalFilename,
			string(d.Status),
			FormatConfidence(d.Confidence),
			d.FailureReason,
		})
	}

	m.table.SetRows(rows)
}

// Messages

type documentsLoadedMsg struct {
	docs []*document.Document
	err  error
}

type documentActionMsg struct {
	text string
	err  error
}

func (m DocumentsModel) loadCmd() tea.Cmd {
	filter := document.ListFilter{OwnerID: m.owner, Status: statusFilters[m.filterIdx]}

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		docs, err := m.docs.List(ctx, filter)

		return documentsLoadedMsg{docs: docs, err: err}
	}
}

func (m DocumentsModel) retryCmd(id uuid.UUID) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		doc, err := m.pipeline.Retry(ctx, m.owner, id)
		if err != nil {
			return documentActionMsg{err: err}
		}

		return documentActionMsg{text: fmt.Sprintf("%s queued for another attempt.", doc.OriginalFilename)}
	}
}

func (m DocumentsModel) uploadCmd(kind document.Kind, path string) tea.Cmd {
	return func() tea.Msg {
		data, err := os.ReadFile(path)
		if err != nil {
			return documentActionMsg{err: err}
		}

		ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
		defer cancel()

		doc, err := m.pipeline.Submit(ctx, pipeline.SubmitParams{
			OwnerID:  m.owner,
			Kind:     kind,
			Filename: filepath.Base(path),
			Data:     data,
		})
		if err != nil {
			return documentActionMsg{err: err}
		}

		return documentActionMsg{text: fmt.Sprintf("Uploaded %s, processing started.", doc.OriginalFilename)}
	}
}
