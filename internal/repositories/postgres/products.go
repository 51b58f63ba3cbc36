package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/crackersbazaar/api/internal/domain"
	"github.com/crackersbazaar/api/internal/platform/textutil"
	"github.com/crackersbazaar/api/internal/repositories"
)

const productColumns = `id, manufacturer_id, name, description, category, sku, barcode, price::text, stock_quantity,
	min_order_quantity, max_order_quantity, active, image_urls, created_at, updated_at`

type productRepository struct{ r *Registry }

func (p productRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	q, _ := p.r.conn(ctx)
	row := q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`+p.r.lockClause(ctx), productID)
	product, err := scanProduct(row)
	return product, wrapError("products.get", err)
}

func (p productRepository) FindBySKU(ctx context.Context, sku string) (domain.Product, error) {
	q, _ := p.r.conn(ctx)
	row := q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE sku_key = $1 AND sku_key <> ''`, textutil.FoldKey(sku))
	product, err := scanProduct(row)
	return product, wrapError("products.sku", err)
}

func (p productRepository) Insert(ctx context.Context, product domain.Product) error {
	q, _ := p.r.conn(ctx)
	_, err := q.Exec(ctx, `INSERT INTO products (id, manufacturer_id, name, description, category, sku, sku_key, barcode,
		price, stock_quantity, min_order_quantity, max_order_quantity, active, image_urls, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10, $11, $12, $13, $14, $15, $16)`,
		product.ID, product.ManufacturerID, product.Name, product.Description, product.Category, product.SKU,
		textutil.FoldKey(product.SKU), product.Barcode, product.Price.String(), product.StockQuantity,
		product.MinOrderQuantity, product.MaxOrderQuantity, product.Active, imageURLs(product.ImageURLs),
		product.CreatedAt.UTC(), product.UpdatedAt.UTC())
	return wrapError("products.insert", err)
}

func (p productRepository) Update(ctx context.Context, product domain.Product) error {
	q, _ := p.r.conn(ctx)
	tag, err := q.Exec(ctx, `UPDATE products SET manufacturer_id = $2, name = $3, description = $4, category = $5,
		sku = $6, sku_key = $7, barcode = $8, price = $9::numeric, stock_quantity = $10, min_order_quantity = $11,
		max_order_quantity = $12, active = $13, image_urls = $14, updated_at = $15 WHERE id = $1`,
		product.ID, product.ManufacturerID, product.Name, product.Description, product.Category, product.SKU,
		textutil.FoldKey(product.SKU), product.Barcode, product.Price.String(), product.StockQuantity,
		product.MinOrderQuantity, product.MaxOrderQuantity, product.Active, imageURLs(product.ImageURLs),
		product.UpdatedAt.UTC())
	if err != nil {
		return wrapError("products.update", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.NewNotFoundError("products.update", "product %s not found", product.ID)
	}
	return nil
}

func (p productRepository) UpdateStock(ctx context.Context, productID string, quantity int, updatedAt time.Time) error {
	if quantity < 0 {
		err := repositories.NewStockError(repositories.StockErrorNegativeTarget, productID, 0, -quantity)
		err.Op = "products.stock"
		return err
	}
	q, _ := p.r.conn(ctx)
	tag, err := q.Exec(ctx, `UPDATE products SET stock_quantity = $2, updated_at = $3 WHERE id = $1`, productID, quantity, updatedAt.UTC())
	if err != nil {
		return wrapError("products.stock", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.NewNotFoundError("products.stock", "product %s not found", productID)
	}
	return nil
}

func (p productRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	var w where
	if filter.ManufacturerID != "" {
		w.add("manufacturer_id = ?", filter.ManufacturerID)
	}
	if filter.Category != "" {
		w.add("lower(category) = lower(?)", filter.Category)
	}
	if filter.ActiveOnly {
		w.add("active")
	}
	suffix, size, err := keyset(&w, "", filter.Pagination)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	q, _ := p.r.conn(ctx)
	rows, err := q.Query(ctx, `SELECT `+productColumns+` FROM products`+w.String()+suffix, w.args...)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, wrapError("products.list", err)
	}
	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Product, error) {
		return scanProduct(row)
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, wrapError("products.list", err)
	}
	return trimPage(products, size, func(p domain.Product) (time.Time, string) { return p.CreatedAt, p.ID }), nil
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var (
		p     domain.Product
		price string
	)
	err := row.Scan(&p.ID, &p.ManufacturerID, &p.Name, &p.Description, &p.Category, &p.SKU, &p.Barcode, &price,
		&p.StockQuantity, &p.MinOrderQuantity, &p.MaxOrderQuantity, &p.Active, &p.ImageURLs, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	if p.Price, err = parseDecimal(price); err != nil {
		return domain.Product{}, fmt.Errorf("decode price for %s: %w", p.ID, err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func imageURLs(urls []string) []string {
	if urls == nil {
		return []string{}
	}
	return urls
}
