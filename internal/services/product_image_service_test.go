package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/crackersbazaar/api/internal/domain"
	"github.com/crackersbazaar/api/internal/platform/storage"
	"github.com/crackersbazaar/api/internal/repositories/memory"
)

type recordingSigner struct {
	requests []storage.UploadRequest
	err      error
}

func (r *recordingSigner) SignUpload(_ context.Context, req storage.UploadRequest) (storage.SignedUpload, error) {
	r.requests = append(r.requests, req)
	if r.err != nil {
		return storage.SignedUpload{}, r.err
	}
	return storage.SignedUpload{
		URL:       "https://storage.googleapis.com/bazaar-images/" + req.Object + "?X-Goog-Signature=abc",
		Method:    "PUT",
		Headers:   map[string]string{"Content-Type": req.ContentType},
		ExpiresAt: time.Date(2024, 10, 1, 7, 0, 0, 0, time.UTC),
		Object:    req.Object,
		PublicURL: "https://cdn.example.com/" + req.Object,
	}, nil
}

func newImageFixture(t *testing.T, signer UploadSigner, images int) ProductImageService {
	t.Helper()
	store := memory.NewStore()
	product := domain.Product{
		ID:             "prod-1",
		ManufacturerID: "mf-ok",
		Name:           "Flower Pot",
		Price:          decimal.NewFromInt(90),
		Active:         true,
	}
	for i := 0; i < images; i++ {
		product.ImageURLs = append(product.ImageURLs, fmt.Sprintf("https://cdn.example.com/%d.jpg", i))
	}
	if err := store.Products().Insert(context.Background(), product); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	svc, err := NewProductImageService(ProductImageServiceDeps{
		Products:    store.Products(),
		Signer:      signer,
		IDGenerator: func() string { return "01JUPLOAD" },
	})
	if err != nil {
		t.Fatalf("new product image service: %v", err)
	}
	return svc
}

func TestIssueUploadURL(t *testing.T) {
	signer := &recordingSigner{}
	svc := newImageFixture(t, signer, 0)

	upload, err := svc.IssueUploadURL(context.Background(), IssueImageUploadCommand{
		ProductID:      "prod-1",
		ManufacturerID: "mf-ok",
		ActorID:        "acc-ok",
		FileName:       "Flower Pot.png",
		ContentType:    "image/png",
		Size:           4096,
	})
	if err != nil {
		t.Fatalf("issue upload: %v", err)
	}
	want := "products/mf-ok/prod-1/01jupload-flower-pot.png"
	if upload.ObjectPath != want || signer.requests[0].Object != want {
		t.Fatalf("expected object %s, got %s", want, upload.ObjectPath)
	}
	if signer.requests[0].Size != 4096 || upload.Method != "PUT" {
		t.Fatalf("unexpected signing request %+v / %+v", signer.requests[0], upload)
	}
	if upload.PublicURL != "https://cdn.example.com/"+want {
		t.Fatalf("unexpected public url %s", upload.PublicURL)
	}
}

func TestIssueUploadURLRejections(t *testing.T) {
	cases := []struct {
		name   string
		images int
		signer *recordingSigner
		cmd    IssueImageUploadCommand
		want   error
	}{
		{
			name:   "other manufacturer",
			signer: &recordingSigner{},
			cmd:    IssueImageUploadCommand{ProductID: "prod-1", ManufacturerID: "mf-other", ContentType: "image/png"},
			want:   ErrCatalogNotFound,
		},
		{
			name:   "missing product",
			signer: &recordingSigner{},
			cmd:    IssueImageUploadCommand{ProductID: "nope", ManufacturerID: "mf-ok", ContentType: "image/png"},
			want:   ErrCatalogNotFound,
		},
		{
			name:   "gallery full",
			images: maxProductImages,
			signer: &recordingSigner{},
			cmd:    IssueImageUploadCommand{ProductID: "prod-1", ManufacturerID: "mf-ok", ContentType: "image/png"},
			want:   ErrCatalogInvalidInput,
		},
		{
			name:   "content type refused by signer",
			signer: &recordingSigner{err: fmt.Errorf("%w: image/gif", storage.ErrContentTypeNotAllowed)},
			cmd:    IssueImageUploadCommand{ProductID: "prod-1", ManufacturerID: "mf-ok", ContentType: "image/gif"},
			want:   ErrCatalogInvalidInput,
		},
		{
			name:   "negative size",
			signer: &recordingSigner{},
			cmd:    IssueImageUploadCommand{ProductID: "prod-1", ManufacturerID: "mf-ok", ContentType: "image/png", Size: -1},
			want:   ErrCatalogInvalidInput,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newImageFixture(t, tc.signer, tc.images)
			_, err := svc.IssueUploadURL(context.Background(), tc.cmd)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestNewProductImageServiceRequiresSigner(t *testing.T) {
	if _, err := NewProductImageService(ProductImageServiceDeps{Products: memory.NewStore().Products()}); err == nil {
		t.Fatalf("expected error without signer")
	}
}
