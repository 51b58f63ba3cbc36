package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/crackersbazaar/api/internal/domain"
	"github.com/crackersbazaar/api/internal/platform/auth"
	"github.com/crackersbazaar/api/internal/platform/httpx"
	"github.com/crackersbazaar/api/internal/services"
)

// ProductHandlers serves the public catalogue and manufacturer catalogue maintenance.
type ProductHandlers struct {
	authn         *auth.Authenticator
	catalog       services.CatalogService
	manufacturers services.ManufacturerService
	images        services.ProductImageService
}

// ProductHandlersOption customises ProductHandlers.
type ProductHandlersOption func(*ProductHandlers)

// WithProductImages enables signed photo uploads. Without it the upload endpoint answers 501.
func WithProductImages(images services.ProductImageService) ProductHandlersOption {
	return func(h *ProductHandlers) {
		h.images = images
	}
}

// NewProductHandlers constructs ProductHandlers.
func NewProductHandlers(authn *auth.Authenticator, catalog services.CatalogService, manufacturers services.ManufacturerService, opts ...ProductHandlersOption) *ProductHandlers {
	h := &ProductHandlers{authn: authn, catalog: catalog, manufacturers: manufacturers}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// PublicRoutes registers /products endpoints.
func (h *ProductHandlers) PublicRoutes(r chi.Router) {
	r.Get("/", h.listProducts)
	r.Get("/{productID}", h.getProduct)
}

// CatalogRoutes registers /catalog endpoints for manufacturers.
func (h *ProductHandlers) CatalogRoutes(r chi.Router) {
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(domain.RoleManufacturer))
	}
	r.Post("/products", h.createProduct)
	r.Put("/products/{productID}", h.updateProduct)
	r.Post("/products/{productID}:adjust-stock", h.adjustStock)
	r.Post("/products/{productID}/images:upload-url", h.issueImageUpload)
}

type createProductRequest struct {
	Name             string          `json:"name" validate:"required,max=200"`
	Description      string          `json:"description" validate:"max=4000"`
	Category         string          `json:"category" validate:"max=80"`
	SKU              string          `json:"sku" validate:"omitempty,max=60"`
	Barcode          string          `json:"barcode" validate:"omitempty,max=60"`
	Price            decimal.Decimal `json:"price"`
	StockQuantity    int             `json:"stock_quantity" validate:"gte=0"`
	MinOrderQuantity int             `json:"min_order_quantity" validate:"gte=0"`
	MaxOrderQuantity int             `json:"max_order_quantity" validate:"gte=0"`
	ImageURLs        []string        `json:"image_urls" validate:"max=10,dive,url"`
}

type updateProductRequest struct {
	Name             *string          `json:"name" validate:"omitempty,max=200"`
	Description      *string          `json:"description" validate:"omitempty,max=4000"`
	Category         *string          `json:"category" validate:"omitempty,max=80"`
	SKU              *string          `json:"sku" validate:"omitempty,max=60"`
	Barcode          *string          `json:"barcode" validate:"omitempty,max=60"`
	Price            *decimal.Decimal `json:"price"`
	MinOrderQuantity *int             `json:"min_order_quantity" validate:"omitempty,gte=0"`
	MaxOrderQuantity *int             `json:"max_order_quantity" validate:"omitempty,gte=0"`
	Active           *bool            `json:"active"`
	ImageURLs        []string         `json:"image_urls" validate:"omitempty,max=10,dive,url"`
}

type adjustStockRequest struct {
	Delta  int    `json:"delta"`
	Target *int   `json:"target" validate:"omitempty,gte=0"`
	Reason string `json:"reason" validate:"max=500"`
}

type productPayload struct {
	ID               string   `json:"id"`
	ManufacturerID   string   `json:"manufacturer_id"`
	Name             string   `json:"name"`
	Description      string   `json:"description,omitempty"`
	Category         string   `json:"category,omitempty"`
	SKU              string   `json:"sku,omitempty"`
	Barcode          string   `json:"barcode,omitempty"`
	Price            string   `json:"price"`
	StockQuantity    int      `json:"stock_quantity"`
	MinOrderQuantity int      `json:"min_order_quantity"`
	MaxOrderQuantity int      `json:"max_order_quantity,omitempty"`
	Active           bool     `json:"active"`
	ImageURLs        []string `json:"image_urls,omitempty"`
	CreatedAt        string   `json:"created_at,omitempty"`
	UpdatedAt        string   `json:"updated_at,omitempty"`
}

type productListResponse struct {
	Items         []productPayload `json:"items"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, ok := pageFromRequest(ctx, w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	result, err := h.catalog.ListProducts(ctx, services.ProductListFilter{
		ManufacturerID: strings.TrimSpace(query.Get("manufacturer_id")),
		Category:       strings.TrimSpace(query.Get("category")),
		ActiveOnly:     true,
		Pagination:     page,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := productListResponse{Items: make([]productPayload, 0, len(result.Items)), NextPageToken: result.NextPageToken}
	for _, p := range result.Items {
		resp.Items = append(resp.Items, buildProductPayload(p))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if !product.Active {
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"product": buildProductPayload(product)})
}

// callerManufacturer resolves the manufacturer profile behind the authenticated account.
func (h *ProductHandlers) callerManufacturer(w http.ResponseWriter, r *http.Request) (*auth.Identity, services.Manufacturer, bool) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return nil, services.Manufacturer{}, false
	}
	manufacturer, err := h.manufacturers.GetByAccount(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return nil, services.Manufacturer{}, false
	}
	return identity, manufacturer, true
}

func (h *ProductHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, manufacturer, ok := h.callerManufacturer(w, r)
	if !ok {
		return
	}
	var req createProductRequest
	if err := decodeRequest(r, &req); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	product, err := h.catalog.CreateProduct(ctx, services.CreateProductCommand{
		ManufacturerID:   manufacturer.ID,
		ActorID:          identity.UID,
		Name:             req.Name,
		Description:      req.Description,
		Category:         req.Category,
		SKU:              req.SKU,
		Barcode:          req.Barcode,
		Price:            req.Price,
		StockQuantity:    req.StockQuantity,
		MinOrderQuantity: req.MinOrderQuantity,
		MaxOrderQuantity: req.MaxOrderQuantity,
		ImageURLs:        req.ImageURLs,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"product": buildProductPayload(product)})
}

func (h *ProductHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, manufacturer, ok := h.callerManufacturer(w, r)
	if !ok {
		return
	}
	var req updateProductRequest
	if err := decodeRequest(r, &req); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	product, err := h.catalog.UpdateProduct(ctx, services.UpdateProductCommand{
		ProductID:        chi.URLParam(r, "productID"),
		ManufacturerID:   manufacturer.ID,
		ActorID:          identity.UID,
		Name:             req.Name,
		Description:      req.Description,
		Category:         req.Category,
		SKU:              req.SKU,
		Barcode:          req.Barcode,
		Price:            req.Price,
		MinOrderQuantity: req.MinOrderQuantity,
		MaxOrderQuantity: req.MaxOrderQuantity,
		Active:           req.Active,
		ImageURLs:        req.ImageURLs,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"product": buildProductPayload(product)})
}

func (h *ProductHandlers) adjustStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, manufacturer, ok := h.callerManufacturer(w, r)
	if !ok {
		return
	}
	var req adjustStockRequest
	if err := decodeRequest(r, &req); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	product, err := h.catalog.AdjustStock(ctx, services.AdjustStockCommand{
		ProductID:      chi.URLParam(r, "productID"),
		ManufacturerID: manufacturer.ID,
		ActorID:        identity.UID,
		Delta:          req.Delta,
		Target:         req.Target,
		Reason:         req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"product": buildProductPayload(product)})
}

type imageUploadRequest struct {
	FileName    string `json:"file_name" validate:"max=200"`
	ContentType string `json:"content_type" validate:"required"`
	Size        int64  `json:"size" validate:"gte=0"`
}

type imageUploadResponse struct {
	UploadURL  string            `json:"upload_url"`
	Method     string            `json:"method"`
	Headers    map[string]string `json:"headers"`
	ExpiresAt  string            `json:"expires_at"`
	ObjectPath string            `json:"object_path"`
	PublicURL  string            `json:"public_url"`
}

func (h *ProductHandlers) issueImageUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.images == nil {
		httpx.WriteError(ctx, w, httpx.NewError("not_implemented", "product image uploads are not configured", http.StatusNotImplemented))
		return
	}
	identity, manufacturer, ok := h.callerManufacturer(w, r)
	if !ok {
		return
	}
	var req imageUploadRequest
	if err := decodeRequest(r, &req); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	upload, err := h.images.IssueUploadURL(ctx, services.IssueImageUploadCommand{
		ProductID:      chi.URLParam(r, "productID"),
		ManufacturerID: manufacturer.ID,
		ActorID:        identity.UID,
		FileName:       req.FileName,
		ContentType:    req.ContentType,
		Size:           req.Size,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.WriteJSON(w, http.StatusOK, imageUploadResponse{
		UploadURL:  upload.UploadURL,
		Method:     upload.Method,
		Headers:    upload.Headers,
		ExpiresAt:  formatTime(upload.ExpiresAt),
		ObjectPath: upload.ObjectPath,
		PublicURL:  upload.PublicURL,
	})
}

func buildProductPayload(p services.Product) productPayload {
	return productPayload{
		ID:               p.ID,
		ManufacturerID:   p.ManufacturerID,
		Name:             p.Name,
		Description:      p.Description,
		Category:         p.Category,
		SKU:              p.SKU,
		Barcode:          p.Barcode,
		Price:            money(p.Price),
		StockQuantity:    p.StockQuantity,
		MinOrderQuantity: p.MinOrderQuantity,
		MaxOrderQuantity: p.MaxOrderQuantity,
		Active:           p.Active,
		ImageURLs:        p.ImageURLs,
		CreatedAt:        formatTime(p.CreatedAt),
		UpdatedAt:        formatTime(p.UpdatedAt),
	}
}
