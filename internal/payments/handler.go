package payments

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler manages payment endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/payments", h.list)
	r.Post("/payments", h.apply)
	r.Get("/payments/{id}", h.show)
	r.Put("/payments/{id}", h.edit)
	r.Delete("/payments/{id}", h.delete)
}

type lineRequest struct {
	InvoiceID int64   `json:"invoiceId"`
	Amount    float64 `json:"amount" validate:"gt=0"`
	OnAccount bool    `json:"onAccount"`
}

type applyRequest struct {
	CounterpartyID int64         `json:"counterpartyId" validate:"required"`
	Number         string        `json:"number"`
	Date           string        `json:"date" validate:"required"`
	Method         string        `json:"method"`
	Reference      string        `json:"reference"`
	IsOnAccount    bool          `json:"isOnAccount"`
	AdvanceUsed    float64       `json:"advanceUsed" validate:"gte=0"`
	Lines          []lineRequest `json:"lines" validate:"min=1,dive"`
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "The request body is not valid JSON.")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return
	}

	actor := shared.ActorFromContext(r.Context())
	payment, err := h.service.ApplyPayment(r.Context(), ApplyInput{
		TenantID:       actor.TenantID,
		CounterpartyID: req.CounterpartyID,
		Number:         req.Number,
		Date:           date,
		Method:         Method(req.Method),
		Reference:      req.Reference,
		IsOnAccount:    req.IsOnAccount,
		AdvanceUsed:    req.AdvanceUsed,
		Lines:          toLineInputs(req.Lines),
		CreatedBy:      actor.Email,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

type editRequest struct {
	Date        string        `json:"date"`
	Method      string        `json:"method"`
	Reference   string        `json:"reference"`
	IsOnAccount bool          `json:"isOnAccount"`
	AdvanceUsed float64       `json:"advanceUsed" validate:"gte=0"`
	Lines       []lineRequest `json:"lines" validate:"min=1,dive"`
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req editRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", "The request body is not valid JSON.")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var date time.Time
	if req.Date != "" {
		var err error
		date, err = time.Parse("2006-01-02", req.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
			return
		}
	}

	actor := shared.ActorFromContext(r.Context())
	payment, err := h.service.EditPayment(r.Context(), actor.TenantID, id, EditInput{
		Date:        date,
		Method:      Method(req.Method),
		Reference:   req.Reference,
		IsOnAccount: req.IsOnAccount,
		AdvanceUsed: req.AdvanceUsed,
		Lines:       toLineInputs(req.Lines),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor := shared.ActorFromContext(r.Context())
	payment, err := h.service.GetPayment(r.Context(), actor.TenantID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	q := r.URL.Query()

	filter := ListFilter{Pattern: q.Get("q")}
	if v := q.Get("counterpartyId"); v != "" {
		filter.CounterpartyID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("invoiceId"); v != "" {
		filter.InvoiceID, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := q.Get("from"); v != "" {
		filter.FromDate, _ = time.Parse("2006-01-02", v)
	}
	if v := q.Get("to"); v != "" {
		filter.ToDate, _ = time.Parse("2006-01-02", v)
	}
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("perPage"))
	p := shared.NewPagination(page, perPage, 0)
	filter.Limit = p.PerPage
	filter.Offset = p.Offset()

	list, err := h.service.ListPayments(r.Context(), actor.TenantID, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"payments": list,
		"page":     p.Page,
		"perPage":  p.PerPage,
	})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.DeletePayment(r.Context(), actor.TenantID, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func toLineInputs(lines []lineRequest) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, l := range lines {
		out = append(out, LineInput{InvoiceID: l.InvoiceID, Amount: l.Amount, OnAccount: l.OnAccount})
	}
	return out
}
