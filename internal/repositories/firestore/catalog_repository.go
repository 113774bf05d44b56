package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/sellerhub/api/internal/domain"
	pfirestore "github.com/sellerhub/api/internal/platform/firestore"
	"github.com/sellerhub/api/internal/repositories"
)

const (
	productsCollection = "products"

	// Firestore caps "in" and "array-contains-any" filters at ten values.
	queryValueChunkSize = 10
)

type productDocument struct {
	MerchantID string   `firestore:"merchantId"`
	SKU        string   `firestore:"sku"`
	VariantIDs []string `firestore:"variantIds"`
	Title      string   `firestore:"title"`
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:         id,
		MerchantID: d.MerchantID,
		SKU:        d.SKU,
		VariantIDs: append([]string(nil), d.VariantIDs...),
		Title:      d.Title,
	}
}

// CatalogRepository resolves line ownership against the products collection.
type CatalogRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

// NewCatalogRepository constructs a CatalogRepository bound to the products collection.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &CatalogRepository{base: base}, nil
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)

// FindBySKUs returns products keyed by normalized SKU. Unknown SKUs are
// simply absent from the result.
func (r *CatalogRepository) FindBySKUs(ctx context.Context, skus []string) (map[string]domain.Product, error) {
	values := normalizeValues(skus, domain.NormalizeSKU)
	out := make(map[string]domain.Product, len(values))
	for _, chunk := range chunkValues(values, queryValueChunkSize) {
		chunk := chunk
		docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
			return q.Where("sku", "in", chunk)
		})
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			product := doc.Data.toDomain(doc.ID)
			key := domain.NormalizeSKU(product.SKU)
			if key == "" {
				continue
			}
			out[key] = product
		}
	}
	return out, nil
}

// FindByVariantIDs returns products keyed by variant id. A product owning
// several of the requested variants appears once per matching id.
func (r *CatalogRepository) FindByVariantIDs(ctx context.Context, variantIDs []string) (map[string]domain.Product, error) {
	values := normalizeValues(variantIDs, strings.TrimSpace)
	requested := make(map[string]struct{}, len(values))
	for _, v := range values {
		requested[v] = struct{}{}
	}

	out := make(map[string]domain.Product, len(values))
	for _, chunk := range chunkValues(values, queryValueChunkSize) {
		chunk := chunk
		docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
			return q.Where("variantIds", "array-contains-any", chunk)
		})
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			product := doc.Data.toDomain(doc.ID)
			for _, variantID := range product.VariantIDs {
				if _, ok := requested[variantID]; ok {
					out[variantID] = product
				}
			}
		}
	}
	return out, nil
}

func normalizeValues(values []string, normalize func(string) string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		normalized := normalize(value)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}

func chunkValues(values []string, size int) [][]string {
	if size <= 0 || len(values) == 0 {
		return nil
	}
	chunks := make([][]string, 0, (len(values)+size-1)/size)
	for start := 0; start < len(values); start += size {
		end := start + size
		if end > len(values) {
			end = len(values)
		}
		chunks = append(chunks, values[start:end])
	}
	return chunks
}
