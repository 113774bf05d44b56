package domain

import (
	"strings"
	"time"
)

// WorkflowStatus enumerates the persisted fulfillment workflow states for a
// vendor order. The two time-derived phases (vendor_expired, admin_overdue)
// are never stored; see workflow.go.
type WorkflowStatus string

const (
	// StatusVendorPending indicates the seller has not yet accepted the order.
	StatusVendorPending WorkflowStatus = "vendor_pending"
	// StatusVendorAccepted indicates the seller accepted and pickup planning is pending.
	StatusVendorAccepted WorkflowStatus = "vendor_accepted"
	// StatusPickupAssigned indicates an admin recorded a pickup plan.
	StatusPickupAssigned WorkflowStatus = "pickup_assigned"
	// StatusDispatched indicates the order left the seller.
	StatusDispatched WorkflowStatus = "dispatched"
)

// OrderLineItem is a purchased line attributed to a single seller. Lines are
// immutable after ingestion.
type OrderLineItem struct {
	Title     string
	SKU       string
	Quantity  int
	UnitPrice int64
	LineTotal int64
	VariantID string
	ProductID string
}

// PickupPlan records the logistics slot an admin assigned for collection.
type PickupPlan struct {
	Window  string
	Address string
	Notes   string
}

// DeliveryPartner identifies the courier handling the pickup.
type DeliveryPartner struct {
	Name        string
	Phone       string
	ETAText     string
	TrackingURL string
}

// InvoiceStatus tracks the lifecycle of the seller invoice document.
type InvoiceStatus string

const (
	// InvoiceNone means no invoice has been requested.
	InvoiceNone InvoiceStatus = "none"
	// InvoiceGenerating means invoice generation is in flight.
	InvoiceGenerating InvoiceStatus = "generating"
	// InvoiceReady means the invoice URL is available.
	InvoiceReady InvoiceStatus = "ready"
)

// Invoice mirrors invoice state onto the order aggregate.
type Invoice struct {
	Status      InvoiceStatus
	URL         string
	GeneratedAt *time.Time
}

// TimelineEntry is an append-only audit note on a vendor order.
type TimelineEntry struct {
	ID    string
	At    time.Time
	Actor string
	Note  string
}

// VendorOrder is the per-seller aggregate of an upstream commerce order. One
// document exists per (upstream order, seller) pair, keyed by the
// concatenation of the two identifiers.
type VendorOrder struct {
	ID          string
	ShopifyID   string
	OrderNumber string
	MerchantID  string

	// CreatedAt is the instant the order was first observed and anchors all
	// SLA deadline computation. Immutable.
	CreatedAt time.Time

	Currency        string
	FinancialStatus string
	OrderStatus     string
	CustomerEmail   string

	LineItems []OrderLineItem
	Subtotal  int64

	WorkflowStatus WorkflowStatus

	VendorAcceptBy   *time.Time
	VendorAcceptedAt *time.Time
	AdminPlanBy      *time.Time
	AdminPlannedAt   *time.Time
	DispatchedAt     *time.Time

	PickupPlan      *PickupPlan
	DeliveryPartner *DeliveryPartner
	Invoice         *Invoice

	Timeline []TimelineEntry

	UpdatedAt time.Time
}

// Product is the read-only catalog record consulted during ownership
// resolution. SKU is stored normalized (trimmed, upper-cased).
type Product struct {
	ID         string
	MerchantID string
	SKU        string
	VariantIDs []string
	Title      string
}

// NormalizeSKU canonicalises a SKU for lookup: trimmed and upper-cased.
// Storefront exports vary casing on re-sync, so matching is case-insensitive.
func NormalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}

// WebhookEvent is an idempotency ledger entry. A key, once present,
// permanently suppresses reprocessing of that external event.
type WebhookEvent struct {
	ID          string
	Topic       string
	ShopifyID   string
	ProcessedAt time.Time
	OrderKeys   []string
	Note        string
}

// MerchantStats carries the per-seller running counters maintained during
// ingestion. Both fields only ever grow via associative increments.
type MerchantStats struct {
	MerchantID   string
	OrdersCount  int64
	GrossRevenue int64
	UpdatedAt    time.Time
}
