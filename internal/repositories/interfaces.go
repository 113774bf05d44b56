package repositories

import (
	"context"
	"time"

	domain "github.com/sellerhub/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderRepository persists per-seller order aggregates.
type OrderRepository interface {
	// FindByID loads a single aggregate by its composite document id.
	FindByID(ctx context.Context, orderID string) (domain.VendorOrder, error)
	// ListByMerchant returns a merchant's aggregates, newest first.
	ListByMerchant(ctx context.Context, merchantID string, query OrderListQuery) (OrderPage, error)
	// List returns aggregates across all merchants, newest first.
	List(ctx context.Context, query OrderListQuery) (OrderPage, error)
	// Transition atomically loads the aggregate, applies mutate, and persists
	// the result. The read and write share one transaction so concurrent
	// transitions on the same document cannot both pass their phase check.
	Transition(ctx context.Context, orderID string, mutate func(domain.VendorOrder) (domain.VendorOrder, error)) (domain.VendorOrder, error)
	// UpdateMirroredStatus copies the upstream payment/fulfillment status onto
	// every per-seller aggregate sharing the external order id. Empty fields
	// keep the stored value. Returns the number of aggregates touched.
	UpdateMirroredStatus(ctx context.Context, shopifyOrderID string, status MirroredStatus, now time.Time) (int, error)
}

// MirroredStatus carries the external status fields echoed from later order
// events. Workflow fields never travel through it.
type MirroredStatus struct {
	FinancialStatus string
	OrderStatus     string
}

// OrderListQuery bounds and filters order listings.
type OrderListQuery struct {
	Limit          int
	WorkflowStatus string
	PageToken      string
}

// OrderPage is one slice of an order listing plus the cursor for the next one.
type OrderPage struct {
	Orders        []domain.VendorOrder
	NextPageToken string
}

// CatalogRepository resolves purchased lines to owning merchants.
type CatalogRepository interface {
	// FindBySKUs returns products keyed by SKU for the exact-match tier.
	FindBySKUs(ctx context.Context, skus []string) (map[string]domain.Product, error)
	// FindByVariantIDs returns products keyed by variant id for the fallback tier.
	FindByVariantIDs(ctx context.Context, variantIDs []string) (map[string]domain.Product, error)
}

// IngestionCommit is the atomic unit written when a webhook delivery is accepted.
type IngestionCommit struct {
	Event  domain.WebhookEvent
	Orders []domain.VendorOrder
	Stats  []StatDelta
}

// StatDelta describes a commutative increment applied to a merchant's counters.
type StatDelta struct {
	MerchantID   string
	OrdersCount  int64
	GrossRevenue int64
}

// IngestionResult reports the outcome of a ledger-guarded commit.
type IngestionResult struct {
	AlreadyProcessed bool
	OrderIDs         []string
}

// IngestionRepository owns the idempotency ledger and the multi-document commit.
type IngestionRepository interface {
	// Commit performs the ledger check-then-create, the per-seller order
	// creates, and the merchant stat increments inside one transaction.
	// A delivery whose ledger key already exists returns AlreadyProcessed
	// without touching any other document.
	Commit(ctx context.Context, commit IngestionCommit) (IngestionResult, error)
	// FindEvent loads a ledger entry by its delivery key.
	FindEvent(ctx context.Context, eventKey string) (domain.WebhookEvent, error)
}

// MerchantStatsRepository reads the per-merchant counters kept by ingestion.
type MerchantStatsRepository interface {
	Get(ctx context.Context, merchantID string) (domain.MerchantStats, error)
}

// HealthRepository aggregates dependency probes for readiness endpoints.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
