package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/crackersbazaar/api/internal/domain"
	"github.com/crackersbazaar/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Account            = domain.Account
	Manufacturer       = domain.Manufacturer
	ManufacturerStatus = domain.ManufacturerStatus
	PostalAddress      = domain.PostalAddress
	Product            = domain.Product
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	AuditLogEntry      = domain.AuditLogEntry

	OrderListFilter        = repositories.OrderListFilter
	ManufacturerListFilter = repositories.ManufacturerListFilter
	ProductListFilter      = repositories.ProductListFilter
)

// OrderService places orders and drives them through the order lifecycle.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	DeleteOrder(ctx context.Context, cmd DeleteOrderCommand) error
	OrderStats(ctx context.Context, filter OrderStatsFilter) (OrderStats, error)
}

// ManufacturerService provisions manufacturers together with their login account and applies admin
// verification decisions.
type ManufacturerService interface {
	Register(ctx context.Context, cmd RegisterManufacturerCommand) (Manufacturer, error)
	Verify(ctx context.Context, cmd VerifyManufacturerCommand) (Manufacturer, error)
	Delete(ctx context.Context, cmd DeleteManufacturerCommand) error
	ResetPassword(ctx context.Context, cmd ResetPasswordCommand) (TemporaryCredential, error)
	Get(ctx context.Context, manufacturerID string) (Manufacturer, error)
	GetByAccount(ctx context.Context, accountID string) (Manufacturer, error)
	List(ctx context.Context, filter ManufacturerListFilter) (domain.CursorPage[Manufacturer], error)
	UpdateProfile(ctx context.Context, cmd UpdateManufacturerProfileCommand) (Manufacturer, error)
	Stats(ctx context.Context) (ManufacturerStats, error)
}

// AccountService manages retailer sign-up and credential checks.
type AccountService interface {
	RegisterRetailer(ctx context.Context, cmd RegisterRetailerCommand) (Account, error)
	Authenticate(ctx context.Context, cmd AuthenticateCommand) (AuthResult, error)
	GetAccount(ctx context.Context, accountID string) (Account, error)
}

// CatalogService exposes product reads and manufacturer catalogue maintenance.
type CatalogService interface {
	GetProduct(ctx context.Context, productID string) (Product, error)
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error)
	CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error)
	AdjustStock(ctx context.Context, cmd AdjustStockCommand) (Product, error)
}

// ProductImageService issues signed upload URLs for product photos.
type ProductImageService interface {
	IssueUploadURL(ctx context.Context, cmd IssueImageUploadCommand) (ImageUpload, error)
}

// AuditLogService records privileged actions. Recording never fails the caller.
type AuditLogService interface {
	Record(ctx context.Context, record AuditLogRecord)
}

// OrderNumberGenerator issues human-readable, collision-free order numbers.
type OrderNumberGenerator interface {
	NextOrderNumber(ctx context.Context) (string, error)
}

// TaxPolicy computes tax for an order subtotal.
type TaxPolicy interface {
	Tax(subtotal decimal.Decimal) decimal.Decimal
}

// PasswordHasher hashes and checks account passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// TokenIssuer signs access tokens for authenticated accounts.
type TokenIssuer interface {
	Issue(account domain.Account) (AccessToken, error)
}

// ProductReader serves cached single-product reads and drops stale entries after writes.
type ProductReader interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	Invalidate(ctx context.Context, productIDs ...string)
}

// PlaceOrderItem is one requested line of a new order.
type PlaceOrderItem struct {
	ProductID string
	Quantity  int
}

// PlaceOrderCommand carries a retailer's order request. ShippingCost and Discount default to zero.
type PlaceOrderCommand struct {
	UserID          string
	Items           []PlaceOrderItem
	ShippingAddress PostalAddress
	BillingAddress  PostalAddress
	ContactEmail    string
	ContactPhone    string
	ShippingCost    decimal.Decimal
	Discount        decimal.Decimal
	PaymentMethod   string
	Notes           string
}

// OrderStatusTransitionCommand moves an order to TargetStatus. A non-empty ManufacturerID restricts the
// transition to orders containing that manufacturer's items.
type OrderStatusTransitionCommand struct {
	OrderID        string
	TargetStatus   OrderStatus
	ActorID        string
	ManufacturerID string
	TrackingNumber string
	Reason         string
	Notes          string
}

// CancelOrderCommand cancels an order on behalf of its owner. An empty UserID skips the ownership check.
type CancelOrderCommand struct {
	OrderID string
	UserID  string
	ActorID string
	Reason  string
}

// DeleteOrderCommand removes an order and its items without touching stock.
type DeleteOrderCommand struct {
	OrderID string
	ActorID string
}

// OrderStatsFilter scopes order statistics to a user or a manufacturer.
type OrderStatsFilter struct {
	UserID         string
	ManufacturerID string
}

// OrderStats aggregates order counts and amounts. Amount is total spent for a user scope, revenue for a
// manufacturer scope, and gross order value otherwise.
type OrderStats struct {
	CountByStatus map[OrderStatus]int
	TotalOrders   int
	Amount        decimal.Decimal
}

// RegisterManufacturerCommand is a manufacturer self-registration request. An empty Username is derived
// from the company name.
type RegisterManufacturerCommand struct {
	Username        string
	CompanyName     string
	ContactPerson   string
	Email           string
	PhoneNumber     string
	Address         PostalAddress
	GSTNumber       string
	PANNumber       string
	LicenseNumber   string
	LicenseValidity *time.Time
	Password        string
	ConfirmPassword string
}

// VerifyManufacturerCommand records an admin verification decision.
type VerifyManufacturerCommand struct {
	ManufacturerID string
	Status         ManufacturerStatus
	Notes          string
	AdminID        string
}

// DeleteManufacturerCommand removes a manufacturer and its linked account.
type DeleteManufacturerCommand struct {
	ManufacturerID string
	ActorID        string
}

// ResetPasswordCommand resets a manufacturer account password to a generated temporary value.
type ResetPasswordCommand struct {
	Email   string
	ActorID string
}

// TemporaryCredential is handed back exactly once after a reset.
type TemporaryCredential struct {
	AccountID string
	Username  string
	Password  string
}

// UpdateManufacturerProfileCommand replaces the editable profile fields. Nil fields are left unchanged.
type UpdateManufacturerProfileCommand struct {
	ManufacturerID  string
	ActorID         string
	CompanyName     *string
	ContactPerson   *string
	PhoneNumber     *string
	Address         *PostalAddress
	GSTNumber       *string
	PANNumber       *string
	LicenseNumber   *string
	LicenseValidity *time.Time
}

// ManufacturerStats summarises the manufacturer population.
type ManufacturerStats struct {
	CountByStatus map[ManufacturerStatus]int
	Total         int
	Verified      int
	Unverified    int
}

// RegisterRetailerCommand is a retailer sign-up request.
type RegisterRetailerCommand struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// AuthenticateCommand identifies an account by username or email.
type AuthenticateCommand struct {
	Login    string
	Password string
}

// AccessToken is a signed bearer token.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// AuthResult pairs the authenticated account with its token.
type AuthResult struct {
	Account Account
	Token   AccessToken
}

// CreateProductCommand adds a product to a manufacturer's catalogue.
type CreateProductCommand struct {
	ManufacturerID   string
	ActorID          string
	Name             string
	Description      string
	Category         string
	SKU              string
	Barcode          string
	Price            decimal.Decimal
	StockQuantity    int
	MinOrderQuantity int
	MaxOrderQuantity int
	ImageURLs        []string
}

// UpdateProductCommand edits a product. A non-empty ManufacturerID must own the product. Nil fields are
// left unchanged. Stock is changed only through AdjustStock.
type UpdateProductCommand struct {
	ProductID        string
	ManufacturerID   string
	ActorID          string
	Name             *string
	Description      *string
	Category         *string
	SKU              *string
	Barcode          *string
	Price            *decimal.Decimal
	MinOrderQuantity *int
	MaxOrderQuantity *int
	Active           *bool
	ImageURLs        []string
}

// AdjustStockCommand changes a product's stock by Delta, or sets it to Target when Target is non-nil.
type AdjustStockCommand struct {
	ProductID      string
	ManufacturerID string
	ActorID        string
	Delta          int
	Target         *int
	Reason         string
}

// IssueImageUploadCommand requests an upload URL for a photo of a manufacturer's own product.
type IssueImageUploadCommand struct {
	ProductID      string
	ManufacturerID string
	ActorID        string
	FileName       string
	ContentType    string
	Size           int64
}

// ImageUpload tells the client where to PUT the photo and the URL to attach to the product afterwards.
type ImageUpload struct {
	UploadURL  string
	Method     string
	Headers    map[string]string
	ExpiresAt  time.Time
	ObjectPath string
	PublicURL  string
}

// AuditLogRecord describes a privileged action. Values under SensitiveMetadataKeys are stored hashed.
type AuditLogRecord struct {
	Actor                 string
	Action                string
	TargetRef             string
	Metadata              map[string]any
	SensitiveMetadataKeys []string
	OccurredAt            time.Time
}
