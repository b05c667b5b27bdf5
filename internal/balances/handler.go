package balances

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler serves balance and aging reports.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers balance routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/balances", h.report)
	r.Get("/balances/{counterpartyId}", h.counterpartyReport)
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, 0)
}

func (h *Handler) counterpartyReport(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "counterpartyId"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "counterpartyId must be a positive integer")
		return
	}
	h.respond(w, r, id)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, counterpartyID int64) {
	actor := shared.ActorFromContext(r.Context())

	var refDate time.Time
	if v := r.URL.Query().Get("asOf"); v != "" {
		var err error
		refDate, err = time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "asOf must be YYYY-MM-DD")
			return
		}
	}

	report, err := h.service.GetReport(r.Context(), actor.TenantID, counterpartyID, refDate)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
