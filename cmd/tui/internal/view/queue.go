package view

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/docket/internal/document"
	"github.com/MrJamesThe3rd/docket/internal/verification"
)

type queueState int

const (
	queueStateBrowse queueState = iota
	queueStateReview
)

type QueueModel struct {
	CommonModel
	docs     *document.Service
	queue    *verification.Queue
	owner    uuid.UUID
	reviewer string

	state   queueState
	table   table.Model
	items   []verification.Item
	sort    verification.Sort
	lowOnly bool

	review *reviewForm
	form   *huh.Form

	loading bool
	err     error
	status  string
}

func NewQueueModel(docs *document.Service, queue *verification.Queue, owner uuid.UUID, reviewer string) QueueModel {
	return QueueModel{
		docs:     docs,
		queue:    queue,
		owner:    owner,
		reviewer: reviewer,
		sort:     verification.SortConfidence,
		loading:  true,
		table: newTable([]table.Column{
			{Title: "Uploaded", Width: 17},
			{Title: "Kind", Width: 8},
			{Title: "File", Width: 30},
			{Title: "Confidence", Width: 10},
			{Title: "Flag", Width: 6},
		}),
	}
}

func (m QueueModel) Title() string { return "Verification Queue" }

func (m QueueModel) ShortHelp() string {
	if m.state == queueStateReview {
		return "Navigate form | Esc: cancel"
	}

	return "Esc: back | Enter: review | s: sort | l: low confidence only | r: refresh"
}

func (m QueueModel) Init() tea.Cmd {
	return m.loadCmd()
}

func (m QueueModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case queueLoadedMsg:
		m.loading = false
		m.err = msg.err
		m.items = msg.items
		m.refreshTable()

		return m, nil

	case reviewLoadedMsg:
		if msg.err != nil {
			m.status = errorStyle(fmt.Sprintf("Error loading extraction: %v", msg.err))
			return m, nil
		}

		m.review = msg.review
		m.form = m.review.build()
		m.state = queueStateReview
		m.table.Blur()

		return m, m.form.Init()

	case decidedMsg:
		m.state = queueStateBrowse
		m.form = nil
		m.review = nil
		m.table.Focus()

		if msg.err != nil {
			m.status = errorStyle(fmt.Sprintf("Decision failed: %v", msg.err))
		} else {
			m.status = okStyle(describeOutcome(msg.outcome))
		}

		return m, m.loadCmd()

	case tea.WindowSizeMsg:
		m.table.SetHeight(max(msg.Height-12, 5))
		return m, nil
	}

	if m.state == queueStateReview {
		return m.updateReview(msg)
	}

	return m.updateBrowse(msg)
}

func (m QueueModel) updateBrowse(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "esc":
			return m, Back
		case "r":
			m.loading = true
			return m, m.loadCmd()
		case "s":
			if m.sort == verification.SortConfidence {
				m.sort = verification.SortAge
			} else {
				m.sort = verification.SortConfidence
			}

			return m, m.loadCmd()
		case "l":
			m.lowOnly = !m.lowOnly
			return m, m.loadCmd()
		case "enter":
			idx := m.table.Cursor()
			if idx < 0 || idx >= len(m.items) {
				return m, nil
			}

			return m, m.loadReviewCmd(m.items[idx].Document)
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)

	return m, cmd
}

func (m QueueModel) updateReview(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		m.state = queueStateBrowse
		m.form = nil
		m.review = nil
		m.table.Focus()

		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State != huh.StateCompleted {
		return m, cmd
	}

	return m, m.decideCmd()
}

func (m QueueModel) View() string {
	if m.loading {
		return lipgloss.NewStyle().Padding(2).Render("Loading queue...")
	}

	if m.err != nil {
		return lipgloss.NewStyle().Padding(2).Render(errorStyle(fmt.Sprintf("Error: %v", m.err)))
	}

	low := "off"
	if m.lowOnly {
		low = "on"
	}

	header := fmt.Sprintf("%d waiting | [s] Sort: %s | [l] Low confidence only: %s",
		len(m.items), activeStyle(string(m.sort)), activeStyle(low))

	content := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().PaddingBottom(1).Render(header),
		boxed(m.table),
	)

	if m.state == queueStateReview && m.form != nil {
		panel := lipgloss.NewStyle().
			Padding(1, 2).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Width(52).
			Render(fmt.Sprintf("Review %s\n\n%s", m.review.doc.OriginalFilename, m.form.View()))

		content = lipgloss.JoinHorizontal(lipgloss.Top, content, panel)
	}

	if m.status != "" {
		content = m.status + "\n" + content
	}

	return lipgloss.NewStyle().Padding(1).Render(content)
}

func (m *QueueModel) refreshTable() {
	rows := make([]table.Row, 0, len(m.items))
	for _, it := range m.items {
		flag := ""
		if it.LowConfidence {
			flag = "LOW"
		}

		rows = append(rows, table.Row{
			it.Document.UploadedAt.Local().Format("2006-01-02 15:04"),
			string(it.Document.Kind),
			it.Document.OriginalFilename,
			FormatConfidence(it.Document.Confidence),
			flag,
		})
	}

	m.table.SetRows(rows)
}

func describeOutcome(o *verification.Outcome) string {
	if o.RecordID == nil {
		return fmt.Sprintf("Document %s.", o.Status)
	}

	s := fmt.Sprintf("Document verified, %s %s created.", o.RecordKind, o.RecordID.String()[:8])
	if o.NeedsReview {
		s += " Line items do not add up to the total, the record is flagged for review."
	}

	return s
}

// Messages

type queueLoadedMsg struct {
	items []verification.Item
	err   error
}

type reviewLoadedMsg struct {
	review *reviewForm
	err    error
}

type decidedMsg struct {
	outcome *verification.Outcome
	err     error
}

func (m QueueModel) loadCmd() tea.Cmd {
	filter := verification.Filter{OwnerID: m.owner, Sort: m.sort, LowConfidenceOnly: m.lowOnly}

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		items, err := m.queue.List(ctx, filter)

		return queueLoadedMsg{items: items, err: err}
	}
}

func (m QueueModel) loadReviewCmd(doc *document.Document) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		r, err := m.docs.Extraction(ctx, m.owner, doc.ID)
		if err != nil {
			return reviewLoadedMsg{err: err}
		}

		return reviewLoadedMsg{review: newReviewForm(doc, r)}
	}
}

func (m QueueModel) decideCmd() tea.Cmd {
	r := m.review
	decision := verification.Decision{
		DocumentID: r.doc.ID,
		OwnerID:    m.owner,
		ReviewerID: m.reviewer,
		Action:     verification.Action(r.action),
	}

	if decision.Action == verification.ActionApprove {
		decision.Corrections = r.corrections()
	} else {
		decision.Reason = r.reason
	}

	return func() tea.Msg {
		ctx, cancel := DbCtx()
		defer cancel()

		outcome, err := m.queue.Decide(ctx, decision)

		return decidedMsg{outcome: outcome, err: err}
	}
}

// reviewForm holds the form bindings on the heap so copies of the model share them.
type reviewForm struct {
	doc    *document.Document
	fields []*reviewField
	action string
	reason string
}

type reviewField struct {
	key      string
	title    string
	original string
	value    string
}

func newReviewForm(doc *document.Document, r *document.ExtractionResult) *reviewForm {
	f := &reviewForm{doc: doc, action: string(verification.ActionApprove)}

	add := func(key, title, value string) {
		f.fields = append(f.fields, &reviewField{key: key, title: title, original: value, value: value})
	}

	if r == nil {
		r = &document.ExtractionResult{Kind: doc.Kind}
	}

	switch doc.Kind {
	case document.KindReceipt:
		rc := r.Receipt
		if rc == nil {
			rc = &document.ReceiptData{}
		}

		add(document.FieldMerchant, "Merchant", textValue(rc.Merchant))
		add(document.FieldTotalAmount, "Total", amountValue(rc.Total))
		add(document.FieldCurrency, "Currency", textValue(rc.Currency))
		add(document.FieldTransactionDate, "Date", dateValue(rc.TransactionDate))
	case document.KindPayslip:
		p := r.Payslip
		if p == nil {
			p = &document.PayslipData{}
		}

		add(document.FieldEmployer, "Employer", textValue(p.Employer))
		add(document.FieldGrossAmount, "Gross", amountValue(p.Gross))
		add(document.FieldNetAmount, "Net", amountValue(p.Net))
		add(document.FieldCurrency, "Currency", textValue(p.Currency))
		add(document.FieldPayPeriodStart, "Period start", dateValue(p.PayPeriodStart))
		add(document.FieldPayPeriodEnd, "Period end", dateValue(p.PayPeriodEnd))
	}

	var category, subcategory string
	if r.Classification != nil {
		category, subcategory = r.Classification.Category, r.Classification.Subcategory
	}

	add(document.FieldCategory, "Category", category)
	add(document.FieldSubcategory, "Subcategory", subcategory)

	return f
}

func (f *reviewForm) build() *huh.Form {
	inputs := make([]huh.Field, 0, len(f.fields))
	for _, fld := range f.fields {
		inputs = append(inputs, huh.NewInput().Key(fld.key).Title(fld.title).Value(&fld.value))
	}

	return huh.NewForm(
		huh.NewGroup(inputs...),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Decision").
				Options(
					huh.NewOption("Approve", string(verification.ActionApprove)),
					huh.NewOption("Reject", string(verification.ActionReject)),
				).
				Value(&f.action),
			huh.NewInput().
				Title("Reason (reject only)").
				Value(&f.reason),
		),
	).WithWidth(48).WithShowHelp(false)
}

// corrections returns only the fields the reviewer changed.
func (f *reviewForm) corrections() map[string]string {
	out := make(map[string]string)

	for _, fld := range f.fields {
		v := strings.TrimSpace(fld.value)
		if v != fld.original {
			out[fld.key] = v
		}
	}

	return out
}

func textValue(f *document.Field[string]) string {
	if f == nil {
		return ""
	}

	return f.Value
}

func amountValue(f *document.Field[decimal.Decimal]) string {
	if f == nil {
		return ""
	}

	return document.FormatAmount(f.Value)
}

func dateValue(f *document.Field[time.Time]) string {
	if f == nil {
		return ""
	}

	return FormatDate(f.Value)
}
