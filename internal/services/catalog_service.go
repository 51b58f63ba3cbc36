package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/crackersbazaar/api/internal/domain"
	"github.com/crackersbazaar/api/internal/platform/textutil"
	"github.com/crackersbazaar/api/internal/repositories"
)

const maxProductImages = 10

var (
	// ErrCatalogInvalidInput indicates the caller supplied invalid data to a catalog mutation.
	ErrCatalogInvalidInput = errors.New("catalog service: invalid input")
	// ErrCatalogNotFound indicates the product (or, for writes, the owning manufacturer) does not exist.
	ErrCatalogNotFound = errors.New("catalog service: not found")
	// ErrCatalogConflict indicates a duplicate SKU.
	ErrCatalogConflict = errors.New("catalog service: conflict")
	// ErrCatalogInvalidState indicates the manufacturer may not list products yet.
	ErrCatalogInvalidState = errors.New("catalog service: invalid state")
	// ErrCatalogUnavailable indicates the backing store could not be reached.
	ErrCatalogUnavailable = errors.New("catalog service: repository unavailable")
)

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Products      repositories.ProductRepository
	Manufacturers repositories.ManufacturerRepository
	UnitOfWork    repositories.UnitOfWork
	Cache         ProductReader
	Audit         AuditLogService
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products      repositories.ProductRepository
	manufacturers repositories.ManufacturerRepository
	unitOfWork    repositories.UnitOfWork
	cache         ProductReader
	audit         AuditLogService
	clock         func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
}

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &catalogService{
		products:      deps.Products,
		manufacturers: deps.Manufacturers,
		unitOfWork:    unit,
		cache:         deps.Cache,
		audit:         deps.Audit,
		clock:         func() time.Time { return clock().UTC() },
		newID:         idGen,
		logger:        logger,
	}, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	var (
		product Product
		err     error
	)
	if s.cache != nil {
		product, err = s.cache.FindByID(ctx, productID)
	} else {
		product, err = s.products.FindByID(ctx, productID)
	}
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error) {
	filter.ManufacturerID = strings.TrimSpace(filter.ManufacturerID)
	filter.Category = strings.TrimSpace(filter.Category)
	page, err := s.products.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Product]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error) {
	now := s.clock()
	product := Product{
		ID:               s.newID(),
		ManufacturerID:   strings.TrimSpace(cmd.ManufacturerID),
		Name:             textutil.PlainText(cmd.Name),
		Description:      textutil.PlainText(cmd.Description),
		Category:         strings.TrimSpace(cmd.Category),
		SKU:              strings.ToUpper(strings.TrimSpace(cmd.SKU)),
		Barcode:          strings.TrimSpace(cmd.Barcode),
		Price:            cmd.Price.Round(2),
		StockQuantity:    cmd.StockQuantity,
		MinOrderQuantity: cmd.MinOrderQuantity,
		MaxOrderQuantity: cmd.MaxOrderQuantity,
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if product.MinOrderQuantity == 0 {
		product.MinOrderQuantity = 1
	}
	images, err := normalizeImageURLs(cmd.ImageURLs)
	if err != nil {
		return Product{}, err
	}
	product.ImageURLs = images
	if product.ManufacturerID == "" {
		return Product{}, fmt.Errorf("%w: manufacturer id is required", ErrCatalogInvalidInput)
	}
	if product.StockQuantity < 0 {
		return Product{}, fmt.Errorf("%w: stock quantity must not be negative", ErrCatalogInvalidInput)
	}
	if err := validateProduct(product); err != nil {
		return Product{}, err
	}

	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		if s.manufacturers != nil {
			manufacturer, err := s.manufacturers.FindByID(txCtx, product.ManufacturerID)
			if err != nil {
				return s.mapRepositoryError(err)
			}
			if !manufacturer.Verified {
				return fmt.Errorf("%w: manufacturer %s is not verified", ErrCatalogInvalidState, manufacturer.ID)
			}
		}
		if err := s.ensureUniqueSKU(txCtx, product); err != nil {
			return err
		}
		return s.mapRepositoryError(s.products.Insert(txCtx, product))
	})
	if err != nil {
		return Product{}, err
	}

	s.logger(ctx, "product.created", map[string]any{"productId": product.ID, "manufacturerId": product.ManufacturerID})
	s.recordAudit(ctx, cmd.ActorID, "product.create", product.ID, map[string]any{
		"sku":   product.SKU,
		"price": product.Price.StringFixed(2),
		"stock": product.StockQuantity,
	})
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	var images []string
	if cmd.ImageURLs != nil {
		normalized, err := normalizeImageURLs(cmd.ImageURLs)
		if err != nil {
			return Product{}, err
		}
		images = normalized
	}

	var updated Product
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		product, err := s.ownedProduct(txCtx, productID, cmd.ManufacturerID)
		if err != nil {
			return err
		}
		if cmd.Name != nil {
			product.Name = textutil.PlainText(*cmd.Name)
		}
		if cmd.Description != nil {
			product.Description = textutil.PlainText(*cmd.Description)
		}
		if cmd.Category != nil {
			product.Category = strings.TrimSpace(*cmd.Category)
		}
		skuChanged := false
		if cmd.SKU != nil {
			sku := strings.ToUpper(strings.TrimSpace(*cmd.SKU))
			skuChanged = sku != product.SKU
			product.SKU = sku
		}
		if cmd.Barcode != nil {
			product.Barcode = strings.TrimSpace(*cmd.Barcode)
		}
		if cmd.Price != nil {
			product.Price = cmd.Price.Round(2)
		}
		if cmd.MinOrderQuantity != nil {
			product.MinOrderQuantity = *cmd.MinOrderQuantity
		}
		if cmd.MaxOrderQuantity != nil {
			product.MaxOrderQuantity = *cmd.MaxOrderQuantity
		}
		if cmd.Active != nil {
			product.Active = *cmd.Active
		}
		if cmd.ImageURLs != nil {
			product.ImageURLs = images
		}
		if err := validateProduct(product); err != nil {
			return err
		}
		if skuChanged {
			if err := s.ensureUniqueSKU(txCtx, product); err != nil {
				return err
			}
		}
		product.UpdatedAt = s.clock()
		if err := s.products.Update(txCtx, product); err != nil {
			return s.mapRepositoryError(err)
		}
		updated = product
		return nil
	})
	if err != nil {
		return Product{}, err
	}

	s.invalidate(ctx, updated.ID)
	s.recordAudit(ctx, cmd.ActorID, "product.update", updated.ID, map[string]any{
		"price":  updated.Price.StringFixed(2),
		"active": updated.Active,
	})
	return updated, nil
}

func (s *catalogService) AdjustStock(ctx context.Context, cmd AdjustStockCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if cmd.Target == nil && cmd.Delta == 0 {
		return Product{}, fmt.Errorf("%w: delta or target is required", ErrCatalogInvalidInput)
	}

	var (
		adjusted Product
		previous int
	)
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		product, err := s.ownedProduct(txCtx, productID, cmd.ManufacturerID)
		if err != nil {
			return err
		}
		target := product.StockQuantity + cmd.Delta
		if cmd.Target != nil {
			target = *cmd.Target
		}
		if target < 0 {
			return fmt.Errorf("%w: stock for %s would become %d", ErrCatalogInvalidInput, product.ID, target)
		}
		now := s.clock()
		if err := s.products.UpdateStock(txCtx, product.ID, target, now); err != nil {
			return s.mapRepositoryError(err)
		}
		previous = product.StockQuantity
		product.StockQuantity = target
		product.UpdatedAt = now
		adjusted = product
		return nil
	})
	if err != nil {
		return Product{}, err
	}

	s.invalidate(ctx, adjusted.ID)
	s.logger(ctx, "product.stock.adjusted", map[string]any{
		"productId": adjusted.ID,
		"previous":  previous,
		"current":   adjusted.StockQuantity,
	})
	s.recordAudit(ctx, cmd.ActorID, "product.stock.adjust", adjusted.ID, map[string]any{
		"previous": previous,
		"current":  adjusted.StockQuantity,
		"reason":   textutil.PlainText(cmd.Reason),
	})
	return adjusted, nil
}

// ownedProduct loads the product and hides it from manufacturers that do not own it.
func (s *catalogService) ownedProduct(ctx context.Context, productID, manufacturerID string) (Product, error) {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	manufacturerID = strings.TrimSpace(manufacturerID)
	if manufacturerID != "" && product.ManufacturerID != manufacturerID {
		return Product{}, fmt.Errorf("%w: product %s", ErrCatalogNotFound, productID)
	}
	return product, nil
}

func (s *catalogService) ensureUniqueSKU(ctx context.Context, product Product) error {
	if product.SKU == "" {
		return nil
	}
	existing, err := s.products.FindBySKU(ctx, product.SKU)
	switch {
	case err == nil && existing.ID != product.ID:
		return fmt.Errorf("%w: sku %s is already in use", ErrCatalogConflict, product.SKU)
	case err != nil && !repositories.IsNotFound(err):
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *catalogService) invalidate(ctx context.Context, productID string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, productID)
	}
}

func (s *catalogService) recordAudit(ctx context.Context, actor, action, productID string, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditLogRecord{
		Actor:      actor,
		Action:     action,
		TargetRef:  "products/" + productID,
		Metadata:   metadata,
		OccurredAt: s.clock(),
	})
}

func (s *catalogService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		return fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCatalogConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
		}
	}
	return err
}

func validateProduct(p Product) error {
	switch {
	case p.Name == "":
		return fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	case !p.Price.GreaterThan(decimal.Zero):
		return fmt.Errorf("%w: price must be positive", ErrCatalogInvalidInput)
	case p.MinOrderQuantity < 0 || p.MaxOrderQuantity < 0:
		return fmt.Errorf("%w: order quantity limits must not be negative", ErrCatalogInvalidInput)
	case p.MaxOrderQuantity > 0 && p.MaxOrderQuantity < p.MinOrderQuantity:
		return fmt.Errorf("%w: max order quantity %d is below min %d", ErrCatalogInvalidInput, p.MaxOrderQuantity, p.MinOrderQuantity)
	}
	return nil
}

func normalizeImageURLs(raw []string) ([]string, error) {
	if len(raw) > maxProductImages {
		return nil, fmt.Errorf("%w: at most %d images are allowed", ErrCatalogInvalidInput, maxProductImages)
	}
	out := make([]string, 0, len(raw))
	for _, candidate := range raw {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		u, err := url.Parse(candidate)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return nil, fmt.Errorf("%w: invalid image url %q", ErrCatalogInvalidInput, candidate)
		}
		out = append(out, u.String())
	}
	return out, nil
}
