package record

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/docket/internal/http/auth"
	"github.com/MrJamesThe3rd/docket/internal/http/respond"
	"github.com/MrJamesThe3rd/docket/internal/record"
)

type Handler struct {
	svc *record.Service
}

func NewHandler(svc *record.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) ExpenseRoutes(r chi.Router) {
	r.Post("/", h.createExpense)
	r.Get("/", h.listExpenses)
	r.Get("/{id}", h.getExpense)
	r.Patch("/{id}", h.updateExpense)
	r.Delete("/{id}", h.deleteExpense)
}

func (h *Handler) IncomeRoutes(r chi.Router) {
	r.Post("/", h.createIncome)
	r.Get("/", h.listIncomes)
	r.Get("/{id}", h.getIncome)
	r.Patch("/{id}", h.updateIncome)
	r.Delete("/{id}", h.deleteIncome)
}

type createExpenseRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency" validate:"required,len=3"`
	Category    string          `json:"category" validate:"required,max=100"`
	Subcategory string          `json:"subcategory" validate:"max=100"`
	Merchant    string          `json:"merchant" validate:"max=200"`
	Date        string          `json:"date" validate:"required,datetime=2006-01-02"`
	Description string          `json:"description" validate:"max=500"`
}

func (h *Handler) createExpense(w http.ResponseWriter, r *http.Request) {
	owner, ok := auth.MustOwner(w, r)
	if !ok {
		return
	}

	var req createExpenseRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	date, _ := time.Parse(time.DateOnly, req.Date)

	e, err := h.svc.CreateExpense(r.Context(), record.ExpenseParams{
		OwnerID:     owner,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Category:    req.Category,
		Subcategory: req.Subcategory,
		Merchant:    req.Merchant,
		Date:        date,
		Description: req.Description,
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toExpenseResponse(e))
}

func (h *Handler) listExpenses(w http.ResponseWriter, r *http.Request) {
	filter, ok := listFilter(w, r)
	if !ok {
		return
	}

	expenses, err := h.svc.ListExpenses(r.Context(), filter)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	resp := make([]expenseResponse, len(expenses))
	for i, e := range expenses {
		resp[i] = toExpenseResponse(e)
	}

	respond.JSON(w, http.StatusOK, resp)
}

func (h *Handler) getExpense(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := ownerAndID(w, r)
	if !ok {
		return
	}

	e, err := h.svc.GetExpense(r.Context(), owner, id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toExpenseResponse(e))
}

type updateExpenseRequest struct {
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Currency    *string          `json:"currency,omitempty" validate:"omitnil,len=3"`
	Category    *string          `json:"category,omitempty" validate:"omitnil,max=100"`
	Subcategory *string          `json:"subcategory,omitempty" validate:"omitnil,max=100"`
	Merchant    *string          `json:"merchant,omitempty" validate:"omitnil,max=200"`
	Date        *string          `json:"date,omitempty" validate:"omitnil,datetime=2006-01-02"`
	Description *string          `json:"description,omitempty" validate:"omitnil,max=500"`
}

func (h *Handler) updateExpense(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := ownerAndID(w, r)
	if !ok {
		return
	}

	var req updateExpenseRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	e, err := h.svc.UpdateExpense(r.Context(), owner, id, record.ExpenseUpdate{
		Amount:      req.Amount,
		Currency:    req.Currency,
		Category:    req.Category,
		Subcategory: req.Subcategory,
		Merchant:    req.Merchant,
		Date:        parseDate(req.Date),
		Description: req.Description,
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toExpenseResponse(e))
}

func (h *Handler) deleteExpense(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := ownerAndID(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteExpense(r.Context(), owner, id); err != nil {
		respond.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type createIncomeRequest struct {
	Source      string           `json:"source" validate:"required,max=200"`
	GrossAmount *decimal.Decimal `json:"gross_amount,omitempty"`
	NetAmount   decimal.Decimal  `json:"net_amount"`
	Currency    string           `json:"currency" validate:"required,len=3"`
	Category    string           `json:"category" validate:"required,max=100"`
	Subcategory string           `json:"subcategory" validate:"max=100"`
	Date        string           `json:"date" validate:"required,datetime=2006-01-02"`
}

func (h *Handler) createIncome(w http.ResponseWriter, r *http.Request) {
	owner, ok := auth.MustOwner(w, r)
	if !ok {
		return
	}

	var req createIncomeRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	date, _ := time.Parse(time.DateOnly, req.Date)

	in, err := h.svc.CreateIncome(r.Context(), record.IncomeParams{
		OwnerID:     owner,
		Source:      req.Source,
		GrossAmount: req.GrossAmount,
		NetAmount:   req.NetAmount,
		Currency:    req.Currency,
		Category:    req.Category,
		Subcategory: req.Subcategory,
		Date:        date,
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusCreated, toIncomeResponse(in))
}

func (h *Handler) listIncomes(w http.ResponseWriter, r *http.Request) {
	filter, ok := listFilter(w, r)
	if !ok {
		return
	}

	incomes, err := h.svc.ListIncomes(r.Context(), filter)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	resp := make([]incomeResponse, len(incomes))
	for i, in := range incomes {
		resp[i] = toIncomeResponse(in)
	}

	respond.JSON(w, http.StatusOK, resp)
}

func (h *Handler) getIncome(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := ownerAndID(w, r)
	if !ok {
		return
	}

	in, err := h.svc.GetIncome(r.Context(), owner, id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toIncomeResponse(in))
}

type updateIncomeRequest struct {
	Source      *string          `json:"source,omitempty" validate:"omitnil,max=200"`
	GrossAmount *decimal.Decimal `json:"gross_amount,omitempty"`
	NetAmount   *decimal.Decimal `json:"net_amount,omitempty"`
	Currency    *string          `json:"currency,omitempty" validate:"omitnil,len=3"`
	Category    *string          `json:"category,omitempty" validate:"omitnil,max=100"`
	Subcategory *string          `json:"subcategory,omitempty" validate:"omitnil,max=100"`
	Date        *string          `json:"date,omitempty" validate:"omitnil,datetime=2006-01-02"`
}

func (h *Handler) updateIncome(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := ownerAndID(w, r)
	if !ok {
		return
	}

	var req updateIncomeRequest
	if !respond.Decode(w, r, &req) {
		return
	}

	in, err := h.svc.UpdateIncome(r.Context(), owner, id, record.IncomeUpdate{
		Source:      req.Source,
		GrossAmount: req.GrossAmount,
		NetAmount:   req.NetAmount,
		Currency:    req.Currency,
		Category:    req.Category,
		Subcategory: req.Subcategory,
		Date:        parseDate(req.Date),
	})
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	respond.JSON(w, http.StatusOK, toIncomeResponse(in))
}

func (h *Handler) deleteIncome(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := ownerAndID(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteIncome(r.Context(), owner, id); err != nil {
		respond.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func listFilter(w http.ResponseWriter, r *http.Request) (record.ListFilter, bool) {
	owner, ok := auth.MustOwner(w, r)
	if !ok {
		return record.ListFilter{}, false
	}

	filter := record.ListFilter{OwnerID: owner}
	q := r.URL.Query()

	for key, dst := range map[string]**time.Time{"start_date": &filter.StartDate, "end_date": &filter.EndDate} {
		s := q.Get(key)
		if s == "" {
			continue
		}

		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			http.Error(w, key+" must be formatted as YYYY-MM-DD", http.StatusBadRequest)
			return record.ListFilter{}, false
		}

		*dst = &t
	}

	if s := q.Get("category"); s != "" {
		filter.Category = &s
	}

	return filter, true
}

// parseDate expects s to have passed the datetime validation already.
func parseDate(s *string) *time.Time {
	if s == nil {
		return nil
	}

	t, err := time.Parse(time.DateOnly, *s)
	if err != nil {
		return nil
	}

	return &t
}

func ownerAndID(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	owner, ok := auth.MustOwner(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return uuid.Nil, uuid.Nil, false
	}

	return owner, id, true
}
