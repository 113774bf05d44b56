package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sellerhub/api/internal/platform/auth"
	"github.com/sellerhub/api/internal/platform/httpx"
	"github.com/sellerhub/api/internal/services"
)

const (
	topicOrdersCreate = "orders/create"
	topicOrdersUpdate = "orders/updated"

	maxWebhookPayloadSize = 1 << 20
)

type shopifyLineItemPayload struct {
	Title     string      `json:"title"`
	SKU       string      `json:"sku"`
	Quantity  int         `json:"quantity"`
	Price     string      `json:"price"`
	VariantID json.Number `json:"variant_id"`
	ProductID json.Number `json:"product_id"`
}

type shopifyOrderPayload struct {
	ID                json.Number              `json:"id"`
	OrderNumber       json.Number              `json:"order_number"`
	Name              string                   `json:"name"`
	CreatedAt         string                   `json:"created_at"`
	Currency          string                   `json:"currency"`
	FinancialStatus   string                   `json:"financial_status"`
	FulfillmentStatus string                   `json:"fulfillment_status"`
	Email             string                   `json:"email"`
	ContactEmail      string                   `json:"contact_email"`
	Customer          shopifyCustomerPayload   `json:"customer"`
	LineItems         []shopifyLineItemPayload `json:"line_items"`
}

type shopifyCustomerPayload struct {
	Email string `json:"email"`
}

// WebhookHandlers ingests storefront webhook deliveries.
type WebhookHandlers struct {
	verifier *auth.ShopifyWebhookVerifier
	ingest   services.IngestService
}

// NewWebhookHandlers constructs a new WebhookHandlers instance.
func NewWebhookHandlers(verifier *auth.ShopifyWebhookVerifier, ingest services.IngestService) *WebhookHandlers {
	return &WebhookHandlers{
		verifier: verifier,
		ingest:   ingest,
	}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/shopify", h.handleShopify)
}

func (h *WebhookHandlers) handleShopify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ingest == nil {
		httpx.WriteError(ctx, w, httpx.NewError("ingest_unavailable", "ingest service unavailable", http.StatusServiceUnavailable))
		return
	}

	var body []byte
	if h.verifier != nil {
		verified, err := h.verifier.VerifyRequest(r)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.Unauthorized("invalid_signature", "webhook signature verification failed"))
			return
		}
		body = verified
	} else {
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookPayloadSize))
		if err != nil {
			httpx.WriteError(ctx, w, httpx.BadRequest("invalid_payload", "failed to read request body"))
			return
		}
		body = raw
	}

	topic := strings.TrimSpace(r.Header.Get(auth.ShopifyTopicHeader))
	switch topic {
	case topicOrdersCreate, topicOrdersUpdate:
	default:
		// Unknown topics are acknowledged so the upstream stops retrying.
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "ignored", "topic": topic})
		return
	}

	var payload shopifyOrderPayload
	decoder := json.NewDecoder(bytes.NewReader(body))
	if err := decoder.Decode(&payload); err != nil {
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_payload", "request body is not valid JSON"))
		return
	}

	shopifyOrderID := strings.TrimSpace(payload.ID.String())
	if shopifyOrderID == "" {
		httpx.WriteError(ctx, w, httpx.BadRequest("missing_order_id", "payload is missing the order id"))
		return
	}

	eventKey := auth.EventKey(r.Header.Get(auth.ShopifyWebhookIDHeader), topic, shopifyOrderID)

	switch topic {
	case topicOrdersCreate:
		h.handleOrderCreated(w, r, eventKey, topic, shopifyOrderID, payload)
	case topicOrdersUpdate:
		h.handleOrderUpdated(w, r, shopifyOrderID, payload)
	}
}

func (h *WebhookHandlers) handleOrderCreated(w http.ResponseWriter, r *http.Request, eventKey, topic, shopifyOrderID string, payload shopifyOrderPayload) {
	ctx := r.Context()

	cmd := services.IngestOrderCommand{
		EventKey:        eventKey,
		Topic:           topic,
		ShopifyOrderID:  shopifyOrderID,
		OrderNumber:     orderNumberFromPayload(payload),
		Currency:        strings.TrimSpace(payload.Currency),
		FinancialStatus: strings.TrimSpace(payload.FinancialStatus),
		CustomerEmail:   customerEmailFromPayload(payload),
	}
	if createdAt, err := time.Parse(time.RFC3339, payload.CreatedAt); err == nil {
		cmd.CreatedAt = createdAt
	}
	for _, line := range payload.LineItems {
		cmd.LineItems = append(cmd.LineItems, services.IngestLineItem{
			Title:     line.Title,
			SKU:       line.SKU,
			Quantity:  line.Quantity,
			UnitPrice: priceToCents(line.Price),
			VariantID: strings.TrimSpace(line.VariantID.String()),
			ProductID: strings.TrimSpace(line.ProductID.String()),
		})
	}

	receipt, err := h.ingest.IngestOrderCreated(ctx, cmd)
	if err != nil {
		writeIngestError(ctx, w, err)
		return
	}
	if receipt.AlreadyProcessed {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":        "processed",
		"orders":        receipt.OrderIDs,
		"dropped_lines": receipt.DroppedLines,
	})
}

func (h *WebhookHandlers) handleOrderUpdated(w http.ResponseWriter, r *http.Request, shopifyOrderID string, payload shopifyOrderPayload) {
	ctx := r.Context()

	receipt, err := h.ingest.MirrorOrderUpdated(ctx, services.MirrorOrderCommand{
		ShopifyOrderID:  shopifyOrderID,
		FinancialStatus: strings.TrimSpace(payload.FinancialStatus),
		OrderStatus:     strings.TrimSpace(payload.FulfillmentStatus),
	})
	if err != nil {
		writeIngestError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":         "processed",
		"updated_orders": receipt.UpdatedOrders,
	})
}

func writeIngestError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrIngestInvalidInput):
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_payload", err.Error()))
	case errors.Is(err, services.ErrIngestUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("ingest_unavailable", "temporary failure, retry later", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.Internal("ingest_failed", "failed to process webhook"))
	}
}

// customerEmailFromPayload picks the buyer email from whichever field the
// delivery happened to populate. Shopify fills these inconsistently across
// channels (POS and draft orders omit the top-level email).
func customerEmailFromPayload(payload shopifyOrderPayload) string {
	for _, candidate := range []string{payload.Email, payload.ContactEmail, payload.Customer.Email} {
		if email := strings.TrimSpace(candidate); email != "" {
			return email
		}
	}
	return ""
}

func orderNumberFromPayload(payload shopifyOrderPayload) string {
	if name := strings.TrimSpace(payload.Name); name != "" {
		return name
	}
	if number := strings.TrimSpace(payload.OrderNumber.String()); number != "" {
		return "#" + number
	}
	return ""
}

// priceToCents parses a decimal money string ("450.00") into integer cents.
// Malformed values are treated as zero rather than rejecting the delivery.
func priceToCents(raw string) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	negative := strings.HasPrefix(raw, "-")
	raw = strings.TrimPrefix(raw, "-")

	whole, fraction, _ := strings.Cut(raw, ".")
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0
	}
	cents := units * 100

	if fraction != "" {
		if len(fraction) > 2 {
			fraction = fraction[:2]
		}
		for len(fraction) < 2 {
			fraction += "0"
		}
		sub, err := strconv.ParseInt(fraction, 10, 64)
		if err != nil {
			return 0
		}
		cents += sub
	}
	if negative {
		cents = -cents
	}
	return cents
}
