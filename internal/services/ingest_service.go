package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/sellerhub/api/internal/domain"
	"github.com/sellerhub/api/internal/repositories"
)

const (
	orderEventCreated        = "vendor_order.created"
	timelineEntryIDPrefix    = "tl_"
	defaultFallbackCurrency  = "INR"
	noMatchingItemsNote      = "no matching items"
	ingestTimelineNoteFormat = "order received, accept by %s"
)

var (
	// ErrIngestInvalidInput signals the payload is missing required fields.
	ErrIngestInvalidInput = errors.New("ingest: invalid input")
	// ErrIngestUnavailable indicates the persistence layer rejected the commit transiently.
	ErrIngestUnavailable = errors.New("ingest: repository unavailable")
)

// IngestServiceDeps bundles collaborators required to construct the ingest service.
type IngestServiceDeps struct {
	Ingestion   repositories.IngestionRepository
	Catalog     repositories.CatalogRepository
	Orders      repositories.OrderRepository
	Hours       domain.BusinessHours
	AcceptIn    time.Duration
	Currency    string
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type ingestService struct {
	ingestion repositories.IngestionRepository
	catalog   repositories.CatalogRepository
	orders    repositories.OrderRepository
	hours     domain.BusinessHours
	acceptIn  time.Duration
	currency  string
	clock     func() time.Time
	newID     func() string
	events    OrderEventPublisher
	logger    func(context.Context, string, map[string]any)
}

// NewIngestService wires dependencies into a concrete IngestService implementation.
func NewIngestService(deps IngestServiceDeps) (IngestService, error) {
	if deps.Ingestion == nil {
		return nil, errors.New("ingest service: ingestion repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("ingest service: catalog repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("ingest service: order repository is required")
	}

	acceptIn := deps.AcceptIn
	if acceptIn <= 0 {
		acceptIn = domain.VendorAcceptWindow
	}
	currency := strings.TrimSpace(deps.Currency)
	if currency == "" {
		currency = defaultFallbackCurrency
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &ingestService{
		ingestion: deps.Ingestion,
		catalog:   deps.Catalog,
		orders:    deps.Orders,
		hours:     deps.Hours,
		acceptIn:  acceptIn,
		currency:  currency,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *ingestService) IngestOrderCreated(ctx context.Context, cmd IngestOrderCommand) (IngestReceipt, error) {
	shopifyOrderID := strings.TrimSpace(cmd.ShopifyOrderID)
	if shopifyOrderID == "" {
		return IngestReceipt{}, fmt.Errorf("%w: external order id is required", ErrIngestInvalidInput)
	}
	eventKey := strings.TrimSpace(cmd.EventKey)
	if eventKey == "" {
		eventKey = strings.TrimSpace(cmd.Topic) + ":" + shopifyOrderID
	}

	now := s.clock()
	createdAt := cmd.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	currency := strings.TrimSpace(cmd.Currency)
	if currency == "" {
		currency = s.currency
	}

	buckets, dropped, err := s.resolveOwnership(ctx, cmd.LineItems)
	if err != nil {
		return IngestReceipt{}, s.mapRepositoryError(err)
	}

	acceptBy := s.hours.AddBusinessDuration(createdAt, s.acceptIn)

	commit := repositories.IngestionCommit{
		Event: domain.WebhookEvent{
			ID:          eventKey,
			Topic:       cmd.Topic,
			ShopifyID:   shopifyOrderID,
			ProcessedAt: now,
		},
	}
	if len(buckets) == 0 {
		commit.Event.Note = noMatchingItemsNote
	}

	for _, bucket := range buckets {
		order := domain.VendorOrder{
			ID:              shopifyOrderID + "_" + bucket.merchantID,
			ShopifyID:       shopifyOrderID,
			OrderNumber:     strings.TrimSpace(cmd.OrderNumber),
			MerchantID:      bucket.merchantID,
			CreatedAt:       createdAt,
			Currency:        currency,
			FinancialStatus: strings.TrimSpace(cmd.FinancialStatus),
			CustomerEmail:   strings.TrimSpace(cmd.CustomerEmail),
			LineItems:       bucket.lines,
			Subtotal:        bucket.subtotal,
			WorkflowStatus:  domain.StatusVendorPending,
			VendorAcceptBy:  &acceptBy,
			Timeline: []domain.TimelineEntry{{
				ID:    timelineEntryIDPrefix + s.newID(),
				At:    now,
				Actor: "system",
				Note:  fmt.Sprintf(ingestTimelineNoteFormat, acceptBy.Format(time.RFC3339)),
			}},
			UpdatedAt: now,
		}
		commit.Orders = append(commit.Orders, order)
		commit.Stats = append(commit.Stats, repositories.StatDelta{
			MerchantID:   bucket.merchantID,
			OrdersCount:  1,
			GrossRevenue: bucket.subtotal,
		})
	}

	result, err := s.ingestion.Commit(ctx, commit)
	if err != nil {
		return IngestReceipt{}, s.mapRepositoryError(err)
	}
	if result.AlreadyProcessed {
		s.logger(ctx, "ingest.order.duplicate", map[string]any{
			"event":   eventKey,
			"shopify": shopifyOrderID,
		})
		return IngestReceipt{AlreadyProcessed: true}, nil
	}

	for _, order := range commit.Orders {
		s.publishEvent(ctx, OrderEventMessage{
			Type:           orderEventCreated,
			OrderID:        order.ID,
			MerchantID:     order.MerchantID,
			ShopifyOrderID: order.ShopifyID,
			WorkflowStatus: string(order.WorkflowStatus),
			OccurredAt:     now,
		})
	}

	s.logger(ctx, "ingest.order.created", map[string]any{
		"event":   eventKey,
		"shopify": shopifyOrderID,
		"orders":  len(result.OrderIDs),
		"dropped": dropped,
	})

	return IngestReceipt{
		OrderIDs:     result.OrderIDs,
		DroppedLines: dropped,
	}, nil
}

func (s *ingestService) MirrorOrderUpdated(ctx context.Context, cmd MirrorOrderCommand) (MirrorReceipt, error) {
	shopifyOrderID := strings.TrimSpace(cmd.ShopifyOrderID)
	if shopifyOrderID == "" {
		return MirrorReceipt{}, fmt.Errorf("%w: external order id is required", ErrIngestInvalidInput)
	}
	status := repositories.MirroredStatus{
		FinancialStatus: strings.TrimSpace(cmd.FinancialStatus),
		OrderStatus:     strings.TrimSpace(cmd.OrderStatus),
	}
	if status == (repositories.MirroredStatus{}) {
		return MirrorReceipt{}, nil
	}

	updated, err := s.orders.UpdateMirroredStatus(ctx, shopifyOrderID, status, s.clock())
	if err != nil {
		return MirrorReceipt{}, s.mapRepositoryError(err)
	}
	return MirrorReceipt{UpdatedOrders: updated}, nil
}

type sellerBucket struct {
	merchantID string
	lines      []domain.OrderLineItem
	subtotal   int64
}

// resolveOwnership maps each line to its owning merchant. SKU match wins;
// variant id is the fallback; unresolved lines are dropped.
func (s *ingestService) resolveOwnership(ctx context.Context, lines []IngestLineItem) ([]*sellerBucket, int, error) {
	skus := make([]string, 0, len(lines))
	variantIDs := make([]string, 0, len(lines))
	for _, line := range lines {
		if sku := domain.NormalizeSKU(line.SKU); sku != "" {
			skus = append(skus, sku)
		}
		if variantID := strings.TrimSpace(line.VariantID); variantID != "" {
			variantIDs = append(variantIDs, variantID)
		}
	}

	var (
		bySKU     map[string]domain.Product
		byVariant map[string]domain.Product
		err       error
	)
	if len(skus) > 0 {
		bySKU, err = s.catalog.FindBySKUs(ctx, skus)
		if err != nil {
			return nil, 0, err
		}
	}
	if len(variantIDs) > 0 {
		byVariant, err = s.catalog.FindByVariantIDs(ctx, variantIDs)
		if err != nil {
			return nil, 0, err
		}
	}

	buckets := make([]*sellerBucket, 0)
	index := make(map[string]*sellerBucket)
	dropped := 0

	for _, line := range lines {
		product, ok := bySKU[domain.NormalizeSKU(line.SKU)]
		if !ok {
			product, ok = byVariant[strings.TrimSpace(line.VariantID)]
		}
		if !ok {
			dropped++
			continue
		}

		// Quantity zero is a valid line (fully refunded or removed before
		// dispatch); it contributes nothing to the totals.
		quantity := line.Quantity
		if quantity < 0 {
			quantity = 0
		}
		lineTotal := line.UnitPrice * int64(quantity)

		bucket, exists := index[product.MerchantID]
		if !exists {
			bucket = &sellerBucket{merchantID: product.MerchantID}
			index[product.MerchantID] = bucket
			buckets = append(buckets, bucket)
		}
		bucket.lines = append(bucket.lines, domain.OrderLineItem{
			Title:     strings.TrimSpace(line.Title),
			SKU:       domain.NormalizeSKU(line.SKU),
			Quantity:  quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: lineTotal,
			VariantID: strings.TrimSpace(line.VariantID),
			ProductID: product.ID,
		})
		bucket.subtotal += lineTotal
	}

	return buckets, dropped, nil
}

func (s *ingestService) publishEvent(ctx context.Context, message OrderEventMessage) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, message); err != nil {
		s.logger(ctx, "ingest.event.publish.failed", map[string]any{
			"type":  message.Type,
			"order": message.OrderID,
			"error": err.Error(),
		})
	}
}

func (s *ingestService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		if repoErr.IsUnavailable() {
			return fmt.Errorf("%w: %v", ErrIngestUnavailable, err)
		}
	}
	return err
}
