package firestore

import (
	"context"
	"errors"
	"time"

	domain "github.com/sellerhub/api/internal/domain"
	pfirestore "github.com/sellerhub/api/internal/platform/firestore"
	"github.com/sellerhub/api/internal/repositories"
)

type merchantStatsDocument struct {
	OrdersCount  int64     `firestore:"ordersCount"`
	GrossRevenue int64     `firestore:"grossRevenue"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// MerchantStatsRepository reads the counters maintained by ingestion commits.
type MerchantStatsRepository struct {
	base *pfirestore.BaseRepository[merchantStatsDocument]
}

// NewMerchantStatsRepository constructs a MerchantStatsRepository.
func NewMerchantStatsRepository(provider *pfirestore.Provider) (*MerchantStatsRepository, error) {
	if provider == nil {
		return nil, errors.New("merchant stats repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[merchantStatsDocument](provider, merchantStatsCollection, nil, nil)
	return &MerchantStatsRepository{base: base}, nil
}

var _ repositories.MerchantStatsRepository = (*MerchantStatsRepository)(nil)

// Get returns the counters for a merchant.
func (r *MerchantStatsRepository) Get(ctx context.Context, merchantID string) (domain.MerchantStats, error) {
	doc, err := r.base.Get(ctx, merchantID)
	if err != nil {
		return domain.MerchantStats{}, err
	}
	return domain.MerchantStats{
		MerchantID:   doc.ID,
		OrdersCount:  doc.Data.OrdersCount,
		GrossRevenue: doc.Data.GrossRevenue,
		UpdatedAt:    doc.Data.UpdatedAt,
	}, nil
}
