package view

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/docket/internal/record"
)

type period int

const (
	periodAll period = iota
	periodThisMonth
	periodLastMonth
	periodThisYear
)

var periodLabels = []string{"All Time", "This Month", "Last Month", "This Year"}

// dateRange returns nil bounds for periodAll.
func (p period) dateRange(now time.Time) (*time.Time, *time.Time) {
	var start time.Time

	switch p {
	case periodThisMonth:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return &start, new(start.AddDate(0, 1, -1))
	case periodLastMonth:
		start = time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, time.UTC)
		return &start, new(start.AddDate(0, 1, -1))
	case periodThisYear:
		start = time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
		return &start, new(time.Date(now.Year(), 12, 31, 0, 0, 0, 0, time.UTC))
	}

	return nil, nil
}

type RecordsModel struct {
	CommonModel
	records *record.Service
	owner   uuid.UUID

	showIncomes bool
	period      period
	table       table.Model

	loading bool
	err     error
	summary string
}

func NewRecordsModel(records *record.Service, owner uuid.UUID) RecordsModel {
	m := RecordsModel{records: records, owner: owner, loading: true}
	m.table = newTable(m.columns())

	return m
}

func (m RecordsModel) Title() string { return "Financial Records" }

func (m RecordsModel) ShortHelp() string {
	return "Esc: back | Tab: expenses/incomes | d: period | r: refresh"
}

func (m RecordsModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m RecordsModel) columns() []table.Column {
	if m.showIncomes {
		return []table.Column{
			{Title: "Date", Width: 12},
			{Title: "Source", Width: 28},
			{Title: "Net", Width: 14},
			{Title: "Gross", Width: 14},
			{Title: "Category", Width: 16},
			{Title: "Origin", Width: 9},
		}
	}

	return []table.Column{
		{Title: "Date", Width: 12},
		{Title: "Merchant", Width: 28},
		{Title: "Amount", Width: 14},
		{Title: "Category", Width: 16},
		{Title: "Subcategory", Width: 14},
		{Title: "Origin", Width: 9},
		{Title: "Review", Width: 7},
	}
}

func (m RecordsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case recordsLoadedMsg:
		m.loading = false
		m.err = msg.err

		if msg.err == nil {
			// Rows must match the column count, so swap columns and rows together.
			m.table.SetRows(nil)
			m.table.SetColumns(m.columns())
			m.table.SetRows(msg.rows)
			m.summary = msg.summary
		}

		return m, nil

	case tea.WindowSizeMsg:
		m.table.SetHeight(max(msg.Height-12, 5))
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			return m, Back
		case "tab":
			m.showIncomes = !m.showIncomes
			m.loading = true

			return m, m.loadCmd()
		case "d":
			m.period = (m.period + 1) % period(len(periodLabels))
			return m, m.loadCmd()
		case "r":
			m.loading = true
			return m, m.loadCmd()
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m RecordsModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading records...")
	}

	if m.err != nil {
		return lipgloss.NewStyle().Padding(2).Render(errorStyle(fmt.Sprintf("Error: %v", m.err)))
	}

	kind := "Expenses"
	if m.showIncomes {
		kind = "Incomes"
	}

	header := fmt.Sprintf("[Tab] %s | [d] Period: %s | %s", activeStyle(kind), activeStyle(periodLabels[m.period]), m.summary)

	return lipgloss.NewStyle().Padding(1).Render(lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render(header),
		boxed(m.table),
	))
}

func origin(documentID *uuid.UUID) string {
	if documentID == nil {
		return "manual"
	}

	return "document"
}

type recordsLoadedMsg struct {
	rows    []table.Row
	summary string
	err     error
}

func (m RecordsModel) loadCmd() tea.Cmd {
	filter := record.ListFilter{OwnerID: m.owner}
	filter.StartDate, filter.EndDate = m.period.dateRange(time.Now())

	showIncomes := m.showIncomes

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		if showIncomes {
			incomes, err := m.records.ListIncomes(ctx, filter)
			if err != nil {
				return recordsLoadedMsg{err: err}
			}

			rows := make([]table.Row, 0, len(incomes))
			for _, in := range incomes {
				gross := "-"
				if in.GrossAmount != nil {
					gross = FormatAmount(*in.GrossAmount, in.Currency)
				}

				rows = append(rows, table.Row{
					FormatDate(in.Date), in.Source, FormatAmount(in.NetAmount, in.Currency), gross, in.Category,
					origin(in.DocumentID),
				})
			}

			return recordsLoadedMsg{rows: rows, summary: fmt.Sprintf("%d incomes", len(incomes))}
		}

		expenses, err := m.records.ListExpenses(ctx, filter)
		if err != nil {
			return recordsLoadedMsg{err: err}
		}

		rows := make([]table.Row, 0, len(expenses))
		flagged := 0

		for _, e := range expenses {
			review := ""
			if e.NeedsReview {
				review = "yes"
				flagged++
			}

			rows = append(rows, table.Row{
				FormatDate(e.Date), e.Merchant, FormatAmount(e.Amount, e.Currency), e.Category, e.Subcategory,
				origin(e.DocumentID), review,
			})
		}

		return recordsLoadedMsg{rows: rows, summary: fmt.Sprintf("%d expenses, %d flagged", len(expenses), flagged)}
	}
}
