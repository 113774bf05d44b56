package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/sellerhub/api/internal/domain"
	"github.com/sellerhub/api/internal/platform/auth"
	"github.com/sellerhub/api/internal/platform/httpx"
	"github.com/sellerhub/api/internal/platform/pagination"
	"github.com/sellerhub/api/internal/services"
)

const (
	defaultOrderPageSize = 50
	maxOrderPageSize     = 200
)

// VendorOrderHandlers exposes the seller-facing order endpoints.
type VendorOrderHandlers struct {
	authn    *auth.Authenticator
	workflow services.WorkflowService
}

// NewVendorOrderHandlers constructs a new VendorOrderHandlers instance.
func NewVendorOrderHandlers(authn *auth.Authenticator, workflow services.WorkflowService) *VendorOrderHandlers {
	return &VendorOrderHandlers{
		authn:    authn,
		workflow: workflow,
	}
}

// Routes registers the /me/orders endpoints.
func (h *VendorOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleSeller, auth.RoleAdmin))
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:accept", h.acceptOrder)
	r.Post("/{orderID}:dispatch", h.dispatchOrder)
}

func (h *VendorOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := sellerIdentity(ctx, w)
	if !ok {
		return
	}

	query, err := parseOrderListQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", err.Error()))
		return
	}

	result, err := h.workflow.ListForMerchant(ctx, identity.MerchantID, query)
	if err != nil {
		writeWorkflowError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderListPayload(result))
}

func (h *VendorOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := sellerIdentity(ctx, w)
	if !ok {
		return
	}

	view, err := h.workflow.GetForMerchant(ctx, identity.MerchantID, chi.URLParam(r, "orderID"))
	if err != nil {
		writeWorkflowError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderPayload(view))
}

func (h *VendorOrderHandlers) acceptOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := sellerIdentity(ctx, w)
	if !ok {
		return
	}

	view, err := h.workflow.Accept(ctx, services.AcceptOrderCommand{
		OrderID:    chi.URLParam(r, "orderID"),
		MerchantID: identity.MerchantID,
		ActorID:    identity.UID,
	})
	if err != nil {
		writeWorkflowError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderPayload(view))
}

func (h *VendorOrderHandlers) dispatchOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := sellerIdentity(ctx, w)
	if !ok {
		return
	}

	view, err := h.workflow.MarkDispatched(ctx, services.DispatchOrderCommand{
		OrderID:    chi.URLParam(r, "orderID"),
		MerchantID: identity.MerchantID,
		ActorID:    identity.UID,
	})
	if err != nil {
		writeWorkflowError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderPayload(view))
}

func sellerIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.Unauthorized("unauthenticated", "authentication required"))
		return nil, false
	}
	if strings.TrimSpace(identity.MerchantID) == "" {
		httpx.WriteError(ctx, w, httpx.Forbidden("merchant_missing", "account is not linked to a merchant"))
		return nil, false
	}
	return identity, true
}

func parseOrderListQuery(r *http.Request) (services.OrderListQuery, error) {
	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: defaultOrderPageSize,
		MaxPageSize:     maxOrderPageSize,
	})
	if err != nil {
		return services.OrderListQuery{}, err
	}
	return services.OrderListQuery{
		Limit:          params.PageSize,
		WorkflowStatus: strings.TrimSpace(r.URL.Query().Get("status")),
		PageToken:      params.PageToken,
	}, nil
}

func orderListPayload(result services.OrderListResult) map[string]any {
	payload := map[string]any{"orders": orderPayloads(result.Views)}
	if result.NextPageToken != "" {
		payload["next_page_token"] = result.NextPageToken
	}
	return payload
}

func writeWorkflowError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", err.Error()))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NotFound("order_not_found", "order not found"))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.Forbidden("order_forbidden", "order belongs to another merchant"))
	case errors.Is(err, services.ErrOrderIllegalPhase):
		httpx.WriteError(ctx, w, httpx.Conflict("illegal_phase", err.Error()))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_unavailable", "temporary failure, retry later", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.Internal("order_failed", "failed to process order request"))
	}
}

func orderPayloads(views []services.OrderView) []map[string]any {
	payloads := make([]map[string]any, 0, len(views))
	for _, view := range views {
		payloads = append(payloads, orderPayload(view))
	}
	return payloads
}

func orderPayload(view services.OrderView) map[string]any {
	order := view.Order

	lines := make([]map[string]any, 0, len(order.LineItems))
	for _, line := range order.LineItems {
		lines = append(lines, map[string]any{
			"title":      line.Title,
			"sku":        line.SKU,
			"quantity":   line.Quantity,
			"unit_price": line.UnitPrice,
			"line_total": line.LineTotal,
			"variant_id": line.VariantID,
			"product_id": line.ProductID,
		})
	}

	payload := map[string]any{
		"id":               order.ID,
		"shopify_order_id": order.ShopifyID,
		"order_number":     order.OrderNumber,
		"merchant_id":      order.MerchantID,
		"created_at":       order.CreatedAt.UTC().Format(time.RFC3339),
		"currency":         order.Currency,
		"financial_status": order.FinancialStatus,
		"order_status":     order.OrderStatus,
		"customer_email":   order.CustomerEmail,
		"line_items":       lines,
		"subtotal":         order.Subtotal,
		"workflow_status":  string(order.WorkflowStatus),
		"phase":            string(view.Phase),
		"updated_at":       order.UpdatedAt.UTC().Format(time.RFC3339),
	}

	setTime := func(key string, value *time.Time) {
		if value != nil {
			payload[key] = value.UTC().Format(time.RFC3339)
		}
	}
	setTime("vendor_accept_by", order.VendorAcceptBy)
	setTime("vendor_accepted_at", order.VendorAcceptedAt)
	setTime("admin_plan_by", order.AdminPlanBy)
	setTime("admin_planned_at", order.AdminPlannedAt)
	setTime("dispatched_at", order.DispatchedAt)

	if order.PickupPlan != nil {
		payload["pickup_plan"] = map[string]any{
			"window":  order.PickupPlan.Window,
			"address": order.PickupPlan.Address,
			"notes":   order.PickupPlan.Notes,
		}
	}
	if order.DeliveryPartner != nil {
		payload["delivery_partner"] = map[string]any{
			"name":         order.DeliveryPartner.Name,
			"phone":        order.DeliveryPartner.Phone,
			"eta_text":     order.DeliveryPartner.ETAText,
			"tracking_url": order.DeliveryPartner.TrackingURL,
		}
	}
	if len(order.Timeline) > 0 {
		timeline := make([]map[string]any, 0, len(order.Timeline))
		for _, entry := range order.Timeline {
			timeline = append(timeline, map[string]any{
				"id":    entry.ID,
				"at":    entry.At.UTC().Format(time.RFC3339),
				"actor": entry.Actor,
				"note":  entry.Note,
			})
		}
		payload["timeline"] = timeline
	}

	if view.Countdown != nil {
		payload["countdown"] = countdownPayload(*view.Countdown)
	}
	return payload
}

func countdownPayload(countdown domain.Countdown) map[string]any {
	return map[string]any{
		"label":        countdown.Label,
		"remaining_ms": countdown.Remaining.Milliseconds(),
		"display":      formatCountdown(countdown.Remaining),
	}
}

// formatCountdown renders a remaining duration for list badges. Elapsed
// deadlines render as a flat "Overdue".
func formatCountdown(remaining time.Duration) string {
	if remaining <= 0 {
		return "Overdue"
	}
	remaining = remaining.Round(time.Minute)
	hours := int(remaining / time.Hour)
	minutes := int(remaining % time.Hour / time.Minute)
	if hours > 0 {
		return fmt.Sprintf("%dh %02dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
