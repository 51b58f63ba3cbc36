package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	"github.com/crackersbazaar/api/internal/domain"
	pfirestore "github.com/crackersbazaar/api/internal/platform/firestore"
	"github.com/crackersbazaar/api/internal/platform/textutil"
	"github.com/crackersbazaar/api/internal/repositories"
)

const productsCollection = "products"

type productDocument struct {
	ManufacturerID   string    `firestore:"manufacturerId"`
	Name             string    `firestore:"name"`
	Description      string    `firestore:"description,omitempty"`
	Category         string    `firestore:"category,omitempty"`
	CategoryKey      string    `firestore:"categoryKey,omitempty"`
	SKU              string    `firestore:"sku,omitempty"`
	SKUKey           string    `firestore:"skuKey,omitempty"`
	Barcode          string    `firestore:"barcode,omitempty"`
	Price            string    `firestore:"price"`
	StockQuantity    int       `firestore:"stockQuantity"`
	MinOrderQuantity int       `firestore:"minOrderQuantity,omitempty"`
	MaxOrderQuantity int       `firestore:"maxOrderQuantity,omitempty"`
	Active           bool      `firestore:"active"`
	ImageURLs        []string  `firestore:"imageUrls,omitempty"`
	CreatedAt        time.Time `firestore:"createdAt"`
	UpdatedAt        time.Time `firestore:"updatedAt"`
}

// ProductRepository stores products in the products collection. Prices are kept as decimal strings.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{base: pfirestore.NewBaseRepository[productDocument](provider, productsCollection)}, nil
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.toDomain(productID), nil
}

func (r *ProductRepository) FindBySKU(ctx context.Context, sku string) (domain.Product, error) {
	key := textutil.FoldKey(sku)
	doc, id, err := r.base.First(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("skuKey", "==", key)
	})
	if err != nil {
		return domain.Product{}, err
	}
	return doc.toDomain(id), nil
}

func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	return r.base.Create(ctx, product.ID, newProductDocument(product))
}

func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	doc := newProductDocument(product)
	return r.base.Update(ctx, product.ID, []firestore.Update{
		{Path: "manufacturerId", Value: doc.ManufacturerID},
		{Path: "name", Value: doc.Name},
		{Path: "description", Value: doc.Description},
		{Path: "category", Value: doc.Category},
		{Path: "categoryKey", Value: doc.CategoryKey},
		{Path: "sku", Value: doc.SKU},
		{Path: "skuKey", Value: doc.SKUKey},
		{Path: "barcode", Value: doc.Barcode},
		{Path: "price", Value: doc.Price},
		{Path: "stockQuantity", Value: doc.StockQuantity},
		{Path: "minOrderQuantity", Value: doc.MinOrderQuantity},
		{Path: "maxOrderQuantity", Value: doc.MaxOrderQuantity},
		{Path: "active", Value: doc.Active},
		{Path: "imageUrls", Value: doc.ImageURLs},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	})
}

func (r *ProductRepository) UpdateStock(ctx context.Context, productID string, quantity int, updatedAt time.Time) error {
	if quantity < 0 {
		err := repositories.NewStockError(repositories.StockErrorNegativeTarget, productID, 0, -quantity)
		err.Op = "products.stock"
		return err
	}
	return r.base.Update(ctx, productID, []firestore.Update{
		{Path: "stockQuantity", Value: quantity},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	})
}

func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	return pageQuery[productDocument, domain.Product]{
		base: r.base,
		filter: func(q firestore.Query) firestore.Query {
			if filter.ManufacturerID != "" {
				q = q.Where("manufacturerId", "==", filter.ManufacturerID)
			}
			if filter.Category != "" {
				q = q.Where("categoryKey", "==", textutil.FoldKey(filter.Category))
			}
			if filter.ActiveOnly {
				q = q.Where("active", "==", true)
			}
			return q
		},
		decode: func(id string, doc productDocument) domain.Product { return doc.toDomain(id) },
		key:    func(p domain.Product) (time.Time, string) { return p.CreatedAt, p.ID },
	}.run(ctx, filter.Pagination)
}

func newProductDocument(p domain.Product) productDocument {
	return productDocument{
		ManufacturerID:   p.ManufacturerID,
		Name:             p.Name,
		Description:      p.Description,
		Category:         p.Category,
		CategoryKey:      textutil.FoldKey(p.Category),
		SKU:              p.SKU,
		SKUKey:           textutil.FoldKey(p.SKU),
		Barcode:          p.Barcode,
		Price:            p.Price.String(),
		StockQuantity:    p.StockQuantity,
		MinOrderQuantity: p.MinOrderQuantity,
		MaxOrderQuantity: p.MaxOrderQuantity,
		Active:           p.Active,
		ImageURLs:        p.ImageURLs,
		CreatedAt:        p.CreatedAt.UTC(),
		UpdatedAt:        p.UpdatedAt.UTC(),
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:               id,
		ManufacturerID:   d.ManufacturerID,
		Name:             d.Name,
		Description:      d.Description,
		Category:         d.Category,
		SKU:              d.SKU,
		Barcode:          d.Barcode,
		Price:            parseDecimal(d.Price),
		StockQuantity:    d.StockQuantity,
		MinOrderQuantity: d.MinOrderQuantity,
		MaxOrderQuantity: d.MaxOrderQuantity,
		Active:           d.Active,
		ImageURLs:        d.ImageURLs,
		CreatedAt:        d.CreatedAt.UTC(),
		UpdatedAt:        d.UpdatedAt.UTC(),
	}
}

func parseDecimal(value string) decimal.Decimal {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return d
}
