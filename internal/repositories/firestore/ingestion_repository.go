package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/sellerhub/api/internal/domain"
	pfirestore "github.com/sellerhub/api/internal/platform/firestore"
	"github.com/sellerhub/api/internal/repositories"
)

const (
	webhookEventsCollection = "webhookEvents"
	merchantStatsCollection = "merchantStats"
)

type webhookEventDocument struct {
	Topic          string    `firestore:"topic"`
	ShopifyOrderID string    `firestore:"shopifyOrderId"`
	ProcessedAt    time.Time `firestore:"processedAt"`
	OrderKeys      []string  `firestore:"orderKeys"`
	Note           string    `firestore:"note"`
}

func (d webhookEventDocument) toDomain(id string) domain.WebhookEvent {
	return domain.WebhookEvent{
		ID:          id,
		Topic:       d.Topic,
		ShopifyID:   d.ShopifyOrderID,
		ProcessedAt: d.ProcessedAt,
		OrderKeys:   append([]string(nil), d.OrderKeys...),
		Note:        d.Note,
	}
}

// IngestionRepository owns the webhook ledger and the atomic ingestion commit.
type IngestionRepository struct {
	provider *pfirestore.Provider
	events   *pfirestore.BaseRepository[webhookEventDocument]
	orders   *pfirestore.BaseRepository[orderDocument]
}

// NewIngestionRepository constructs an IngestionRepository.
func NewIngestionRepository(provider *pfirestore.Provider) (*IngestionRepository, error) {
	if provider == nil {
		return nil, errors.New("ingestion repository requires firestore provider")
	}
	return &IngestionRepository{
		provider: provider,
		events:   pfirestore.NewBaseRepository[webhookEventDocument](provider, webhookEventsCollection, nil, nil),
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, vendorOrdersCollection, nil, nil),
	}, nil
}

var _ repositories.IngestionRepository = (*IngestionRepository)(nil)

// Commit writes the ledger entry, the per-seller aggregates, and the merchant
// counter increments in a single transaction. The ledger read happens inside
// the same transaction, so two concurrent deliveries of one event cannot both
// observe an absent key.
func (r *IngestionRepository) Commit(ctx context.Context, commit repositories.IngestionCommit) (repositories.IngestionResult, error) {
	eventKey := strings.TrimSpace(commit.Event.ID)
	if eventKey == "" {
		return repositories.IngestionResult{}, errors.New("ingestion commit: event key is required")
	}

	var result repositories.IngestionResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result = repositories.IngestionResult{}

		eventRef, err := r.events.DocumentRef(ctx, eventKey)
		if err != nil {
			return err
		}

		// All reads precede writes inside a Firestore transaction.
		if _, err := tx.Get(eventRef); err == nil {
			result.AlreadyProcessed = true
			return nil
		} else if status.Code(err) != codes.NotFound {
			return pfirestore.WrapError("webhookEvents.get", err)
		}

		orderKeys := make([]string, 0, len(commit.Orders))
		for _, order := range commit.Orders {
			orderRef, err := r.orders.DocumentRef(ctx, order.ID)
			if err != nil {
				return err
			}
			if err := tx.Set(orderRef, newOrderDocument(order)); err != nil {
				return pfirestore.WrapError("vendorOrders.set", err)
			}
			orderKeys = append(orderKeys, order.ID)
		}

		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}
		for _, delta := range commit.Stats {
			merchantID := strings.TrimSpace(delta.MerchantID)
			if merchantID == "" {
				continue
			}
			statRef := client.Collection(merchantStatsCollection).Doc(merchantID)
			err := tx.Set(statRef, map[string]any{
				"ordersCount":  firestore.Increment(delta.OrdersCount),
				"grossRevenue": firestore.Increment(delta.GrossRevenue),
				"updatedAt":    commit.Event.ProcessedAt.UTC(),
			}, firestore.MergeAll)
			if err != nil {
				return pfirestore.WrapError("merchantStats.set", err)
			}
		}

		eventDoc := webhookEventDocument{
			Topic:          commit.Event.Topic,
			ShopifyOrderID: commit.Event.ShopifyID,
			ProcessedAt:    commit.Event.ProcessedAt.UTC(),
			OrderKeys:      orderKeys,
			Note:           commit.Event.Note,
		}
		if err := tx.Set(eventRef, eventDoc); err != nil {
			return pfirestore.WrapError("webhookEvents.set", err)
		}

		result.OrderIDs = orderKeys
		return nil
	})
	if err != nil {
		return repositories.IngestionResult{}, err
	}
	return result, nil
}

// FindEvent loads a ledger entry by its delivery key.
func (r *IngestionRepository) FindEvent(ctx context.Context, eventKey string) (domain.WebhookEvent, error) {
	doc, err := r.events.Get(ctx, eventKey)
	if err != nil {
		return domain.WebhookEvent{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}
