package services

import (
	"context"
	"time"

	domain "github.com/sellerhub/api/internal/domain"
)

// IngestService consumes authenticated storefront webhook deliveries.
type IngestService interface {
	// IngestOrderCreated resolves line ownership, groups lines per seller,
	// and durably records one aggregate per seller under the idempotency
	// ledger. Safe to call repeatedly with the same delivery.
	IngestOrderCreated(ctx context.Context, cmd IngestOrderCommand) (IngestReceipt, error)
	// MirrorOrderUpdated copies the upstream payment/fulfillment status onto
	// every aggregate for the external order. Workflow state is never touched.
	MirrorOrderUpdated(ctx context.Context, cmd MirrorOrderCommand) (MirrorReceipt, error)
}

// WorkflowService derives phases and applies state-gated order transitions.
type WorkflowService interface {
	ListForMerchant(ctx context.Context, merchantID string, query OrderListQuery) (OrderListResult, error)
	ListAll(ctx context.Context, query OrderListQuery) (OrderListResult, error)
	GetForMerchant(ctx context.Context, merchantID, orderID string) (OrderView, error)
	Get(ctx context.Context, orderID string) (OrderView, error)

	Accept(ctx context.Context, cmd AcceptOrderCommand) (OrderView, error)
	AssignPickup(ctx context.Context, cmd AssignPickupCommand) (OrderView, error)
	MarkDispatched(ctx context.Context, cmd DispatchOrderCommand) (OrderView, error)
}

// SystemService exposes operational health information.
type SystemService interface {
	Health(ctx context.Context) (domain.SystemHealthReport, error)
	Liveness(ctx context.Context) domain.SystemHealthReport
}

// IngestOrderCommand carries the parsed orders/create payload.
type IngestOrderCommand struct {
	EventKey        string
	Topic           string
	ShopifyOrderID  string
	OrderNumber     string
	CreatedAt       time.Time
	Currency        string
	FinancialStatus string
	CustomerEmail   string
	LineItems       []IngestLineItem
}

// IngestLineItem is one purchased line from the upstream payload.
type IngestLineItem struct {
	Title     string
	SKU       string
	Quantity  int
	UnitPrice int64
	VariantID string
	ProductID string
}

// IngestReceipt reports what a delivery produced.
type IngestReceipt struct {
	AlreadyProcessed bool
	OrderIDs         []string
	DroppedLines     int
}

// MirrorOrderCommand carries the parsed orders/updated payload.
type MirrorOrderCommand struct {
	ShopifyOrderID  string
	FinancialStatus string
	OrderStatus     string
}

// MirrorReceipt reports how many aggregates picked up the new status.
type MirrorReceipt struct {
	UpdatedOrders int
}

// OrderListQuery bounds order listings.
type OrderListQuery struct {
	Limit          int
	WorkflowStatus string
	PageToken      string
}

// OrderListResult is one page of derived order views.
type OrderListResult struct {
	Views         []OrderView
	NextPageToken string
}

// OrderView pairs the persisted aggregate with its derived phase and timer.
type OrderView struct {
	Order     domain.VendorOrder
	Phase     domain.WorkflowPhase
	Countdown *domain.Countdown
}

// AcceptOrderCommand is the seller acceptance action.
type AcceptOrderCommand struct {
	OrderID    string
	MerchantID string
	ActorID    string
}

// AssignPickupCommand is the admin pickup-planning action.
type AssignPickupCommand struct {
	OrderID         string
	ActorID         string
	PickupPlan      domain.PickupPlan
	DeliveryPartner domain.DeliveryPartner
}

// DispatchOrderCommand marks the order as handed off.
type DispatchOrderCommand struct {
	OrderID string
	ActorID string
	// MerchantID is set for seller callers and enforced as ownership; admins
	// leave it empty.
	MerchantID string
}

// OrderEventPublisher publishes order lifecycle events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, message OrderEventMessage) (string, error)
}

// OrderEventMessage is the wire payload emitted on order lifecycle changes.
type OrderEventMessage struct {
	Type           string    `json:"type"`
	OrderID        string    `json:"orderId"`
	MerchantID     string    `json:"merchantId"`
	ShopifyOrderID string    `json:"shopifyOrderId"`
	WorkflowStatus string    `json:"workflowStatus"`
	OccurredAt     time.Time `json:"occurredAt"`
}
