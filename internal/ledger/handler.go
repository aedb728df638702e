package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dokan-khata/dokan-khata/internal/shared"
	"github.com/dokan-khata/dokan-khata/internal/view"
)

// Handler manages customer and ledger endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		templates: templates,
		csrf:      csrf,
		validator: validator.New(),
	}
}

// MountRoutes registers ledger routes. The router wraps this whole subtree
// in the auth guard.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listCustomers)
	r.Get("/new", h.showCustomerForm)
	r.Post("/", h.createCustomer)
	r.Get("/{id}", h.showCustomerDetail)
	r.Get("/{id}/edit", h.showEditCustomerForm)
	r.Post("/{id}", h.updateCustomer)
	r.Post("/{id}/delete", h.deleteCustomer)
	r.Get("/{id}/transactions/new", h.showTransactionForm)
	r.Post("/{id}/transactions/new", h.recordTransaction)
}

type formErrors map[string]string

type customerForm struct {
	Name  string `validate:"required"`
	Phone string `validate:"omitempty,max=20"`
}

type transactionForm struct {
	Amount      string `validate:"required"`
	Type        string `validate:"required,oneof=DUE PAID"`
	Description string
	Date        string
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name, title string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if err := h.templates.Render(w, name, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", name), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) flash(r *http.Request, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
}

// listCustomers shows all customers, recent activity first.
func (h *Handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.service.ListCustomers(r.Context())
	if err != nil {
		h.logger.Error("list customers", slog.Any("error", err))
		h.render(w, r, "pages/customers.html", "Customers", map[string]any{
			"Error": shared.UserSafeMessage(err),
		}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/customers.html", "Customers", map[string]any{
		"Customers": customers,
	}, http.StatusOK)
}

func (h *Handler) showCustomerForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/customer_form.html", "Add Customer", map[string]any{
		"Form":   customerForm{},
		"Errors": formErrors{},
	}, http.StatusOK)
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := customerForm{
		Name:  strings.TrimSpace(r.PostFormValue("name")),
		Phone: strings.TrimSpace(r.PostFormValue("phone")),
	}
	errs := h.validateForm(form)
	if len(errs) == 0 {
		customer, err := h.service.CreateCustomer(r.Context(), CreateCustomerInput{Name: form.Name, Phone: form.Phone})
		if err != nil {
			errs["general"] = shared.UserSafeMessage(err)
		} else {
			h.flash(r, "success", "Customer added.")
			http.Redirect(w, r, "/customers/"+customer.ID, http.StatusSeeOther)
			return
		}
	}
	h.render(w, r, "pages/customer_form.html", "Add Customer", map[string]any{
		"Form":   form,
		"Errors": errs,
	}, http.StatusBadRequest)
}

// showCustomerDetail shows the customer's profile and full ledger history.
func (h *Handler) showCustomerDetail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	customer, err := h.service.GetCustomer(r.Context(), id)
	if err != nil {
		h.notFoundOrError(w, r, err, "get customer")
		return
	}
	txs, err := h.service.ListTransactions(r.Context(), id)
	if err != nil {
		h.logger.Error("list transactions", slog.Any("error", err), slog.String("customer_id", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/customer_detail.html", customer.Name, map[string]any{
		"Customer":     customer,
		"Transactions": txs,
	}, http.StatusOK)
}

func (h *Handler) showEditCustomerForm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	customer, err := h.service.GetCustomer(r.Context(), id)
	if err != nil {
		h.notFoundOrError(w, r, err, "get customer")
		return
	}
	h.render(w, r, "pages/customer_form.html", "Edit Customer", map[string]any{
		"Customer": customer,
		"Form":     customerForm{Name: customer.Name, Phone: customer.Phone},
		"Errors":   formErrors{},
	}, http.StatusOK)
}

func (h *Handler) updateCustomer(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")
	form := customerForm{
		Name:  strings.TrimSpace(r.PostFormValue("name")),
		Phone: strings.TrimSpace(r.PostFormValue("phone")),
	}
	errs := h.validateForm(form)
	if len(errs) == 0 {
		err := h.service.UpdateCustomer(r.Context(), id, UpdateCustomerInput{Name: form.Name, Phone: form.Phone})
		switch {
		case err == nil:
			h.flash(r, "success", "Customer updated.")
			http.Redirect(w, r, "/customers/"+id, http.StatusSeeOther)
			return
		case errors.Is(err, shared.ErrNotFound):
			http.NotFound(w, r)
			return
		default:
			errs["general"] = shared.UserSafeMessage(err)
		}
	}
	customer, getErr := h.service.GetCustomer(r.Context(), id)
	if getErr != nil {
		http.NotFound(w, r)
		return
	}
	h.render(w, r, "pages/customer_form.html", "Edit Customer", map[string]any{
		"Customer": customer,
		"Form":     form,
		"Errors":   errs,
	}, http.StatusBadRequest)
}

func (h *Handler) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.DeleteCustomer(r.Context(), id); err != nil {
		h.notFoundOrError(w, r, err, "delete customer")
		return
	}
	h.flash(r, "success", "Customer and their ledger removed.")
	http.Redirect(w, r, "/customers", http.StatusSeeOther)
}

const itemSlots = 5

func (h *Handler) showTransactionForm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	txType := TxType(r.URL.Query().Get("type"))
	if !txType.Valid() {
		http.Redirect(w, r, "/customers/"+id, http.StatusSeeOther)
		return
	}
	customer, err := h.service.GetCustomer(r.Context(), id)
	if err != nil {
		h.notFoundOrError(w, r, err, "get customer")
		return
	}
	h.render(w, r, "pages/transaction_form.html", "Add "+string(txType), map[string]any{
		"Customer":  customer,
		"IsDue":     txType == TxTypeDue,
		"Form":      transactionForm{Type: string(txType)},
		"Errors":    formErrors{},
		"ItemSlots": make([]struct{}, itemSlots),
	}, http.StatusOK)
}

func (h *Handler) recordTransaction(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	id := chi.URLParam(r, "id")
	form := transactionForm{
		Amount:      strings.TrimSpace(r.PostFormValue("amount")),
		Type:        r.PostFormValue("type"),
		Description: strings.TrimSpace(r.PostFormValue("description")),
		Date:        strings.TrimSpace(r.PostFormValue("date")),
	}
	errs := h.validateForm(form)

	amount, err := strconv.ParseFloat(form.Amount, 64)
	if err != nil || amount <= 0 {
		errs["Amount"] = "Amount must be a positive number."
	}

	var date time.Time
	if form.Date != "" {
		date, err = time.Parse("2006-01-02", form.Date)
		if err != nil {
			errs["Date"] = "Date must look like 2024-01-15."
		}
	}

	items, itemErr := parseItems(r.PostForm["item_name"], r.PostForm["item_amount"])
	if itemErr != "" {
		errs["general"] = itemErr
	}

	if len(errs) == 0 {
		_, err := h.service.RecordTransaction(r.Context(), id, RecordTransactionInput{
			Amount:      amount,
			Type:        TxType(form.Type),
			Description: form.Description,
			Date:        date,
			Items:       items,
		})
		switch {
		case err == nil:
			h.flash(r, "success", "Transaction recorded.")
			http.Redirect(w, r, "/customers/"+id, http.StatusSeeOther)
			return
		case errors.Is(err, shared.ErrNotFound):
			http.NotFound(w, r)
			return
		default:
			errs["general"] = shared.UserSafeMessage(err)
		}
	}

	customer, getErr := h.service.GetCustomer(r.Context(), id)
	if getErr != nil {
		http.NotFound(w, r)
		return
	}
	h.render(w, r, "pages/transaction_form.html", "Add "+form.Type, map[string]any{
		"Customer":  customer,
		"IsDue":     form.Type == string(TxTypeDue),
		"Form":      form,
		"Errors":    errs,
		"ItemSlots": make([]struct{}, itemSlots),
	}, http.StatusBadRequest)
}

// parseItems pairs the parallel item_name/item_amount inputs, skipping rows
// the operator left blank.
func parseItems(names, amounts []string) ([]LineItem, string) {
	var items []LineItem
	for i, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		var amount float64
		if i < len(amounts) && strings.TrimSpace(amounts[i]) != "" {
			parsed, err := strconv.ParseFloat(strings.TrimSpace(amounts[i]), 64)
			if err != nil {
				return nil, "Item amounts must be numbers."
			}
			amount = parsed
		}
		items = append(items, LineItem{Name: name, Amount: amount})
	}
	return items, ""
}

func (h *Handler) validateForm(form any) formErrors {
	errs := make(formErrors)
	if err := h.validator.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				errs[fe.Field()] = "This field is " + fe.Tag() + "."
			}
		}
	}
	return errs
}

func (h *Handler) notFoundOrError(w http.ResponseWriter, r *http.Request, err error, op string) {
	if errors.Is(err, shared.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	h.logger.Error(op, slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
