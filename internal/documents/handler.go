package documents

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

// Handler manages commercial document endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/documents", h.list)
	r.Post("/documents", h.create)
	r.Get("/documents/{id}", h.show)
	r.Put("/documents/{id}", h.update)
	r.Delete("/documents/{id}", h.delete)
	r.Post("/documents/{id}/validate", h.validateDocument)
	r.Post("/documents/{id}/cancel", h.cancel)
}

type lineRequest struct {
	ProductRef  string   `json:"productRef"`
	Label       string   `json:"label"`
	Quantity    float64  `json:"quantity"`
	UnitPriceHT float64  `json:"unitPriceHT"`
	DiscountPct float64  `json:"discountPct" validate:"gte=0,lte=100"`
	TaxPct      float64  `json:"taxPct" validate:"gte=0,lte=100"`
	LevyPct     *float64 `json:"levyPct,omitempty"`
}

type linkRequest struct {
	Kind string `json:"kind" validate:"required"`
	ID   int64  `json:"id" validate:"required"`
}

type createRequest struct {
	Kind              string        `json:"kind" validate:"required"`
	Number            string        `json:"number"`
	Date              string        `json:"date" validate:"required"`
	CounterpartyID    int64         `json:"counterpartyId"`
	Lines             []lineRequest `json:"lines" validate:"dive"`
	GlobalDiscountPct float64       `json:"globalDiscountPct" validate:"gte=0,lte=100"`
	LevyEnabled       bool          `json:"levyEnabled"`
	LevyRatePct       float64       `json:"levyRatePct" validate:"gte=0,lte=100"`
	StampDuty         float64       `json:"stampDuty" validate:"gte=0"`
	PaymentTerms      string        `json:"paymentTerms"`
	Links             []linkRequest `json:"links" validate:"dive"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
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
	doc, err := h.service.CreateDocument(r.Context(), CreateInput{
		TenantID:          actor.TenantID,
		Kind:              Kind(req.Kind),
		Number:            req.Number,
		Date:              date,
		CounterpartyID:    req.CounterpartyID,
		Lines:             toLineInputs(req.Lines),
		GlobalDiscountPct: req.GlobalDiscountPct,
		LevyEnabled:       req.LevyEnabled,
		LevyRatePct:       req.LevyRatePct,
		StampDuty:         req.StampDuty,
		PaymentTerms:      req.PaymentTerms,
		Links:             toLinks(req.Links),
		CreatedBy:         actor.Email,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

type updateRequest struct {
	Date              string        `json:"date"`
	CounterpartyID    int64         `json:"counterpartyId"`
	Lines             []lineRequest `json:"lines" validate:"dive"`
	GlobalDiscountPct float64       `json:"globalDiscountPct" validate:"gte=0,lte=100"`
	LevyEnabled       bool          `json:"levyEnabled"`
	LevyRatePct       float64       `json:"levyRatePct" validate:"gte=0,lte=100"`
	StampDuty         float64       `json:"stampDuty" validate:"gte=0"`
	PaymentTerms      string        `json:"paymentTerms"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateRequest
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
	doc, err := h.service.UpdateDocument(r.Context(), actor.TenantID, id, UpdateInput{
		Date:              date,
		CounterpartyID:    req.CounterpartyID,
		Lines:             toLineInputs(req.Lines),
		GlobalDiscountPct: req.GlobalDiscountPct,
		LevyEnabled:       req.LevyEnabled,
		LevyRatePct:       req.LevyRatePct,
		StampDuty:         req.StampDuty,
		PaymentTerms:      req.PaymentTerms,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor := shared.ActorFromContext(r.Context())
	doc, err := h.service.GetDocument(r.Context(), actor.TenantID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	q := r.URL.Query()

	filter := ListFilter{
		Kind:          Kind(q.Get("kind")),
		Status:        Status(q.Get("status")),
		NumberPattern: q.Get("q"),
	}
	if v := q.Get("counterpartyId"); v != "" {
		filter.CounterpartyID, _ = strconv.ParseInt(v, 10, 64)
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

	docs, err := h.service.ListDocuments(r.Context(), actor.TenantID, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"page":      p.Page,
		"perPage":   p.PerPage,
	})
}

func (h *Handler) validateDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor := shared.ActorFromContext(r.Context())
	doc, err := h.service.ValidateDocument(r.Context(), actor.TenantID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.CancelDocument(r.Context(), actor.TenantID, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.DeleteDocument(r.Context(), actor.TenantID, id); err != nil {
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
		out = append(out, LineInput{
			ProductRef:  l.ProductRef,
			Label:       l.Label,
			Quantity:    l.Quantity,
			UnitPriceHT: l.UnitPriceHT,
			DiscountPct: l.DiscountPct,
			TaxPct:      l.TaxPct,
			LevyPct:     l.LevyPct,
		})
	}
	return out
}

func toLinks(links []linkRequest) []Link {
	out := make([]Link, 0, len(links))
	for _, l := range links {
		out = append(out, Link{Kind: Kind(l.Kind), ID: l.ID})
	}
	return out
}
