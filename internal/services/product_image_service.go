package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/crackersbazaar/api/internal/platform/storage"
	"github.com/crackersbazaar/api/internal/repositories"
)

// UploadSigner signs direct-to-bucket uploads. *storage.Uploader satisfies it.
type UploadSigner interface {
	SignUpload(ctx context.Context, req storage.UploadRequest) (storage.SignedUpload, error)
}

// ProductImageServiceDeps bundles constructor inputs for the product image service.
type ProductImageServiceDeps struct {
	Products    repositories.ProductRepository
	Signer      UploadSigner
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type productImageService struct {
	products repositories.ProductRepository
	signer   UploadSigner
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewProductImageService constructs the service that hands out product photo upload URLs.
func NewProductImageService(deps ProductImageServiceDeps) (ProductImageService, error) {
	if deps.Products == nil {
		return nil, errors.New("product image service: product repository is required")
	}
	if deps.Signer == nil {
		return nil, errors.New("product image service: upload signer is required")
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &productImageService{
		products: deps.Products,
		signer:   deps.Signer,
		newID:    idGen,
		logger:   logger,
	}, nil
}

func (s *productImageService) IssueUploadURL(ctx context.Context, cmd IssueImageUploadCommand) (ImageUpload, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	manufacturerID := strings.TrimSpace(cmd.ManufacturerID)
	if productID == "" || manufacturerID == "" {
		return ImageUpload{}, fmt.Errorf("%w: product and manufacturer ids are required", ErrCatalogInvalidInput)
	}
	if cmd.Size < 0 {
		return ImageUpload{}, fmt.Errorf("%w: size must not be negative", ErrCatalogInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return ImageUpload{}, fmt.Errorf("%w: product %s", ErrCatalogNotFound, productID)
		}
		if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
			return ImageUpload{}, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
		}
		return ImageUpload{}, err
	}
	if product.ManufacturerID != manufacturerID {
		return ImageUpload{}, fmt.Errorf("%w: product %s", ErrCatalogNotFound, productID)
	}
	if len(product.ImageURLs) >= maxProductImages {
		return ImageUpload{}, fmt.Errorf("%w: product already has %d images", ErrCatalogInvalidInput, maxProductImages)
	}

	object, err := storage.ProductImageObject(manufacturerID, productID, s.newID(), cmd.FileName, cmd.ContentType)
	if err != nil {
		return ImageUpload{}, fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
	}
	signed, err := s.signer.SignUpload(ctx, storage.UploadRequest{
		Object:      object,
		ContentType: cmd.ContentType,
		Size:        cmd.Size,
	})
	switch {
	case errors.Is(err, storage.ErrContentTypeNotAllowed), errors.Is(err, storage.ErrObjectTooLarge):
		return ImageUpload{}, fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
	case err != nil:
		return ImageUpload{}, fmt.Errorf("product image service: %w", err)
	}

	s.logger(ctx, "product.image.upload_issued", map[string]any{
		"productId":      productID,
		"manufacturerId": manufacturerID,
		"actorId":        cmd.ActorID,
		"object":         signed.Object,
	})
	return ImageUpload{
		UploadURL:  signed.URL,
		Method:     signed.Method,
		Headers:    signed.Headers,
		ExpiresAt:  signed.ExpiresAt,
		ObjectPath: signed.Object,
		PublicURL:  signed.PublicURL,
	}, nil
}
