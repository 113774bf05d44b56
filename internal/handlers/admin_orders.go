package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/sellerhub/api/internal/domain"
	"github.com/sellerhub/api/internal/platform/auth"
	"github.com/sellerhub/api/internal/platform/httpx"
	"github.com/sellerhub/api/internal/repositories"
	"github.com/sellerhub/api/internal/services"
)

const maxAdminActionBodySize = 16 * 1024

type assignPickupRequest struct {
	PickupPlan struct {
		Window  string `json:"window"`
		Address string `json:"address"`
		Notes   string `json:"notes"`
	} `json:"pickup_plan"`
	DeliveryPartner struct {
		Name        string `json:"name"`
		Phone       string `json:"phone"`
		ETAText     string `json:"eta_text"`
		TrackingURL string `json:"tracking_url"`
	} `json:"delivery_partner"`
}

// AdminOrderHandlers exposes the back-office order endpoints.
type AdminOrderHandlers struct {
	authn    *auth.Authenticator
	workflow services.WorkflowService
	stats    repositories.MerchantStatsRepository
}

// NewAdminOrderHandlers constructs a new AdminOrderHandlers instance.
func NewAdminOrderHandlers(authn *auth.Authenticator, workflow services.WorkflowService, stats repositories.MerchantStatsRepository) *AdminOrderHandlers {
	return &AdminOrderHandlers{
		authn:    authn,
		workflow: workflow,
		stats:    stats,
	}
}

// Routes registers the /admin endpoints.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Post("/orders/{orderID}:assign-pickup", h.assignPickup)
	r.Post("/orders/{orderID}:dispatch", h.dispatchOrder)
	r.Get("/merchants/{merchantID}/stats", h.merchantStats)
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query, err := parseOrderListQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", err.Error()))
		return
	}
	if merchantID := strings.TrimSpace(r.URL.Query().Get("merchant_id")); merchantID != "" {
		result, err := h.workflow.ListForMerchant(ctx, merchantID, query)
		if err != nil {
			writeWorkflowError(ctx, w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, orderListPayload(result))
		return
	}

	result, err := h.workflow.ListAll(ctx, query)
	if err != nil {
		writeWorkflowError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderListPayload(result))
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	view, err := h.workflow.Get(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		writeWorkflowError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderPayload(view))
}

func (h *AdminOrderHandlers) assignPickup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req assignPickupRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAdminActionBodySize))
	if err := decoder.Decode(&req); err != nil {
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", "request body is not valid JSON"))
		return
	}

	actorID := ""
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil {
		actorID = identity.UID
	}

	view, err := h.workflow.AssignPickup(ctx, services.AssignPickupCommand{
		OrderID: chi.URLParam(r, "orderID"),
		ActorID: actorID,
		PickupPlan: domain.PickupPlan{
			Window:  strings.TrimSpace(req.PickupPlan.Window),
			Address: strings.TrimSpace(req.PickupPlan.Address),
			Notes:   strings.TrimSpace(req.PickupPlan.Notes),
		},
		DeliveryPartner: domain.DeliveryPartner{
			Name:        strings.TrimSpace(req.DeliveryPartner.Name),
			Phone:       strings.TrimSpace(req.DeliveryPartner.Phone),
			ETAText:     strings.TrimSpace(req.DeliveryPartner.ETAText),
			TrackingURL: strings.TrimSpace(req.DeliveryPartner.TrackingURL),
		},
	})
	if err != nil {
		writeWorkflowError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderPayload(view))
}

func (h *AdminOrderHandlers) dispatchOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actorID := ""
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil {
		actorID = identity.UID
	}

	// Admins bypass the ownership check; MerchantID stays empty.
	view, err := h.workflow.MarkDispatched(ctx, services.DispatchOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		ActorID: actorID,
	})
	if err != nil {
		writeWorkflowError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderPayload(view))
}

func (h *AdminOrderHandlers) merchantStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stats == nil {
		httpx.WriteError(ctx, w, httpx.NewError("stats_unavailable", "stats repository unavailable", http.StatusServiceUnavailable))
		return
	}

	merchantID := strings.TrimSpace(chi.URLParam(r, "merchantID"))
	stats, err := h.stats.Get(ctx, merchantID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			// No orders yet reads as zeroed counters, not an error.
			httpx.WriteJSON(w, http.StatusOK, map[string]any{
				"merchant_id":   merchantID,
				"orders_count":  0,
				"gross_revenue": 0,
			})
			return
		}
		httpx.WriteError(ctx, w, httpx.Internal("stats_failed", "failed to load merchant stats"))
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"merchant_id":   stats.MerchantID,
		"orders_count":  stats.OrdersCount,
		"gross_revenue": stats.GrossRevenue,
		"updated_at":    stats.UpdatedAt.UTC().Format(time.RFC3339),
	})
}
