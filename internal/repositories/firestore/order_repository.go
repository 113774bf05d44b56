package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/sellerhub/api/internal/domain"
	pfirestore "github.com/sellerhub/api/internal/platform/firestore"
	"github.com/sellerhub/api/internal/platform/pagination"
	"github.com/sellerhub/api/internal/repositories"
)

const (
	vendorOrdersCollection = "vendorOrders"

	defaultOrderListLimit = 50
	maxOrderListLimit     = 200
)

type lineItemDocument struct {
	Title     string `firestore:"title"`
	SKU       string `firestore:"sku"`
	Quantity  int    `firestore:"quantity"`
	UnitPrice int64  `firestore:"unitPrice"`
	LineTotal int64  `firestore:"lineTotal"`
	VariantID string `firestore:"variantId"`
	ProductID string `firestore:"productId"`
}

type pickupPlanDocument struct {
	Window  string `firestore:"window"`
	Address string `firestore:"address"`
	Notes   string `firestore:"notes"`
}

type deliveryPartnerDocument struct {
	Name        string `firestore:"name"`
	Phone       string `firestore:"phone"`
	ETAText     string `firestore:"etaText"`
	TrackingURL string `firestore:"trackingUrl"`
}

type invoiceDocument struct {
	Status      string     `firestore:"status"`
	URL         string     `firestore:"url"`
	GeneratedAt *time.Time `firestore:"generatedAt"`
}

type timelineEntryDocument struct {
	ID    string    `firestore:"id"`
	At    time.Time `firestore:"at"`
	Actor string    `firestore:"actor"`
	Note  string    `firestore:"note"`
}

type orderDocument struct {
	ShopifyOrderID  string `firestore:"shopifyOrderId"`
	OrderNumber     string `firestore:"orderNumber"`
	MerchantID      string `firestore:"merchantId"`
	Currency        string `firestore:"currency"`
	FinancialStatus string `firestore:"financialStatus"`
	OrderStatus     string `firestore:"orderStatus"`
	CustomerEmail   string `firestore:"customerEmail"`

	LineItems []lineItemDocument `firestore:"lineItems"`
	Subtotal  int64              `firestore:"subtotal"`

	WorkflowStatus string `firestore:"workflowStatus"`

	CreatedAt        time.Time  `firestore:"createdAt"`
	VendorAcceptBy   *time.Time `firestore:"vendorAcceptBy"`
	VendorAcceptedAt *time.Time `firestore:"vendorAcceptedAt"`
	AdminPlanBy      *time.Time `firestore:"adminPlanBy"`
	AdminPlannedAt   *time.Time `firestore:"adminPlannedAt"`
	DispatchedAt     *time.Time `firestore:"dispatchedAt"`

	PickupPlan      *pickupPlanDocument      `firestore:"pickupPlan"`
	DeliveryPartner *deliveryPartnerDocument `firestore:"deliveryPartner"`
	Invoice         *invoiceDocument         `firestore:"invoice"`

	Timeline []timelineEntryDocument `firestore:"timeline"`

	UpdatedAt time.Time `firestore:"updatedAt"`
}

func newOrderDocument(order domain.VendorOrder) orderDocument {
	doc := orderDocument{
		ShopifyOrderID:   order.ShopifyID,
		OrderNumber:      order.OrderNumber,
		MerchantID:       order.MerchantID,
		Currency:         order.Currency,
		FinancialStatus:  order.FinancialStatus,
		OrderStatus:      order.OrderStatus,
		CustomerEmail:    order.CustomerEmail,
		Subtotal:         order.Subtotal,
		WorkflowStatus:   string(order.WorkflowStatus),
		CreatedAt:        order.CreatedAt.UTC(),
		VendorAcceptBy:   utcTimePtr(order.VendorAcceptBy),
		VendorAcceptedAt: utcTimePtr(order.VendorAcceptedAt),
		AdminPlanBy:      utcTimePtr(order.AdminPlanBy),
		AdminPlannedAt:   utcTimePtr(order.AdminPlannedAt),
		DispatchedAt:     utcTimePtr(order.DispatchedAt),
		UpdatedAt:        order.UpdatedAt.UTC(),
	}
	for _, item := range order.LineItems {
		doc.LineItems = append(doc.LineItems, lineItemDocument{
			Title:     item.Title,
			SKU:       item.SKU,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal,
			VariantID: item.VariantID,
			ProductID: item.ProductID,
		})
	}
	if order.PickupPlan != nil {
		doc.PickupPlan = &pickupPlanDocument{
			Window:  order.PickupPlan.Window,
			Address: order.PickupPlan.Address,
			Notes:   order.PickupPlan.Notes,
		}
	}
	if order.DeliveryPartner != nil {
		doc.DeliveryPartner = &deliveryPartnerDocument{
			Name:        order.DeliveryPartner.Name,
			Phone:       order.DeliveryPartner.Phone,
			ETAText:     order.DeliveryPartner.ETAText,
			TrackingURL: order.DeliveryPartner.TrackingURL,
		}
	}
	if order.Invoice != nil {
		doc.Invoice = &invoiceDocument{
			Status:      string(order.Invoice.Status),
			URL:         order.Invoice.URL,
			GeneratedAt: utcTimePtr(order.Invoice.GeneratedAt),
		}
	}
	for _, entry := range order.Timeline {
		doc.Timeline = append(doc.Timeline, timelineEntryDocument{
			ID:    entry.ID,
			At:    entry.At.UTC(),
			Actor: entry.Actor,
			Note:  entry.Note,
		})
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.VendorOrder {
	order := domain.VendorOrder{
		ID:               id,
		ShopifyID:        d.ShopifyOrderID,
		OrderNumber:      d.OrderNumber,
		MerchantID:       d.MerchantID,
		Currency:         d.Currency,
		FinancialStatus:  d.FinancialStatus,
		OrderStatus:      d.OrderStatus,
		CustomerEmail:    d.CustomerEmail,
		Subtotal:         d.Subtotal,
		WorkflowStatus:   domain.WorkflowStatus(d.WorkflowStatus),
		CreatedAt:        d.CreatedAt,
		VendorAcceptBy:   d.VendorAcceptBy,
		VendorAcceptedAt: d.VendorAcceptedAt,
		AdminPlanBy:      d.AdminPlanBy,
		AdminPlannedAt:   d.AdminPlannedAt,
		DispatchedAt:     d.DispatchedAt,
		UpdatedAt:        d.UpdatedAt,
	}
	for _, item := range d.LineItems {
		order.LineItems = append(order.LineItems, domain.OrderLineItem{
			Title:     item.Title,
			SKU:       item.SKU,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal,
			VariantID: item.VariantID,
			ProductID: item.ProductID,
		})
	}
	if d.PickupPlan != nil {
		order.PickupPlan = &domain.PickupPlan{
			Window:  d.PickupPlan.Window,
			Address: d.PickupPlan.Address,
			Notes:   d.PickupPlan.Notes,
		}
	}
	if d.DeliveryPartner != nil {
		order.DeliveryPartner = &domain.DeliveryPartner{
			Name:        d.DeliveryPartner.Name,
			Phone:       d.DeliveryPartner.Phone,
			ETAText:     d.DeliveryPartner.ETAText,
			TrackingURL: d.DeliveryPartner.TrackingURL,
		}
	}
	if d.Invoice != nil {
		order.Invoice = &domain.Invoice{
			Status:      domain.InvoiceStatus(d.Invoice.Status),
			URL:         d.Invoice.URL,
			GeneratedAt: d.Invoice.GeneratedAt,
		}
	}
	for _, entry := range d.Timeline {
		order.Timeline = append(order.Timeline, domain.TimelineEntry{
			ID:    entry.ID,
			At:    entry.At,
			Actor: entry.Actor,
			Note:  entry.Note,
		})
	}
	return order
}

func utcTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}

// OrderRepository persists vendor order aggregates in Firestore.
type OrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs an OrderRepository bound to the vendorOrders collection.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, vendorOrdersCollection, nil, nil)
	return &OrderRepository{provider: provider, base: base}, nil
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// FindByID loads a single aggregate by its composite document id.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.VendorOrder, error) {
	doc, err := r.base.Get(ctx, orderID)
	if err != nil {
		return domain.VendorOrder{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListByMerchant returns a merchant's aggregates, newest first.
func (r *OrderRepository) ListByMerchant(ctx context.Context, merchantID string, query repositories.OrderListQuery) (repositories.OrderPage, error) {
	merchantID = strings.TrimSpace(merchantID)
	if merchantID == "" {
		return repositories.OrderPage{}, errors.New("order repository: merchant id is required")
	}
	return r.list(ctx, query, func(q firestore.Query) firestore.Query {
		return q.Where("merchantId", "==", merchantID)
	})
}

// List returns aggregates across all merchants, newest first.
func (r *OrderRepository) List(ctx context.Context, query repositories.OrderListQuery) (repositories.OrderPage, error) {
	return r.list(ctx, query, nil)
}

func (r *OrderRepository) list(ctx context.Context, query repositories.OrderListQuery, narrow func(firestore.Query) firestore.Query) (repositories.OrderPage, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = defaultOrderListLimit
	}
	if limit > maxOrderListLimit {
		limit = maxOrderListLimit
	}

	cursorTime, cursorID, hasCursor, err := decodeOrderCursor(query.PageToken)
	if err != nil {
		return repositories.OrderPage{}, err
	}

	// Fetch one extra document to learn whether a further page exists.
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if narrow != nil {
			q = narrow(q)
		}
		if status := strings.TrimSpace(query.WorkflowStatus); status != "" {
			q = q.Where("workflowStatus", "==", status)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if hasCursor {
			q = q.StartAfter(cursorTime, cursorID)
		}
		return q.Limit(limit + 1)
	})
	if err != nil {
		return repositories.OrderPage{}, err
	}

	page := repositories.OrderPage{}
	for i, doc := range docs {
		if i == limit {
			last := docs[limit-1]
			token, err := encodeOrderCursor(last.Data.CreatedAt, last.ID)
			if err != nil {
				return repositories.OrderPage{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Orders = append(page.Orders, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

func encodeOrderCursor(createdAt time.Time, docID string) (string, error) {
	return pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{createdAt.UTC().Format(time.RFC3339Nano), docID},
	})
}

func decodeOrderCursor(token string) (time.Time, string, bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return time.Time{}, "", false, nil
	}
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return time.Time{}, "", false, err
	}
	if len(cursor.StartAfter) != 2 {
		return time.Time{}, "", false, pagination.ErrInvalidPageToken
	}
	rawTime, ok := cursor.StartAfter[0].(string)
	if !ok {
		return time.Time{}, "", false, pagination.ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, rawTime)
	if err != nil {
		return time.Time{}, "", false, fmt.Errorf("%w: %v", pagination.ErrInvalidPageToken, err)
	}
	docID, ok := cursor.StartAfter[1].(string)
	if !ok || docID == "" {
		return time.Time{}, "", false, pagination.ErrInvalidPageToken
	}
	return createdAt, docID, true, nil
}

// Transition atomically loads, mutates, and persists the aggregate. The phase
// check performed by mutate runs against the snapshot read inside the
// transaction, so racing transitions cannot both succeed.
func (r *OrderRepository) Transition(ctx context.Context, orderID string, mutate func(domain.VendorOrder) (domain.VendorOrder, error)) (domain.VendorOrder, error) {
	if mutate == nil {
		return domain.VendorOrder{}, errors.New("order repository: mutate function is required")
	}

	var updated domain.VendorOrder
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError("vendorOrders.get", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode vendor order %s: %w", orderID, err)
		}

		next, err := mutate(doc.toDomain(snap.Ref.ID))
		if err != nil {
			return err
		}

		return tx.Set(ref, newOrderDocument(next))
	})
	if err != nil {
		return domain.VendorOrder{}, err
	}

	// Re-read outside the transaction to return the committed aggregate.
	updated, err = r.FindByID(ctx, orderID)
	if err != nil {
		return domain.VendorOrder{}, err
	}
	return updated, nil
}

// UpdateMirroredStatus copies the upstream payment/fulfillment status onto
// every per-seller aggregate for the external order. Workflow fields are
// untouched; empty status fields keep their stored value.
func (r *OrderRepository) UpdateMirroredStatus(ctx context.Context, shopifyOrderID string, status repositories.MirroredStatus, now time.Time) (int, error) {
	shopifyOrderID = strings.TrimSpace(shopifyOrderID)
	if shopifyOrderID == "" {
		return 0, errors.New("order repository: shopify order id is required")
	}

	updates := []firestore.Update{
		{Path: "updatedAt", Value: now.UTC()},
	}
	if status.FinancialStatus != "" {
		updates = append(updates, firestore.Update{Path: "financialStatus", Value: status.FinancialStatus})
	}
	if status.OrderStatus != "" {
		updates = append(updates, firestore.Update{Path: "orderStatus", Value: status.OrderStatus})
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, err
	}

	iter := client.Collection(vendorOrdersCollection).
		Where("shopifyOrderId", "==", shopifyOrderID).
		Documents(ctx)
	defer iter.Stop()

	updated := 0
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return updated, pfirestore.WrapError("vendorOrders.query", err)
		}
		if _, err := snap.Ref.Update(ctx, updates); err != nil {
			return updated, pfirestore.WrapError("vendorOrders.update", err)
		}
		updated++
	}
	return updated, nil
}
