package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Role controls what an authenticated account may do.
type Role string

const (
	RoleAdmin          Role = "ADMIN"
	RoleDashboardAdmin Role = "DASHBOARD_ADMIN"
	RoleManufacturer   Role = "MANUFACTURER"
	RoleRetailer       Role = "RETAILER"
)

// IsAdministrative reports whether the role grants back-office access.
func (r Role) IsAdministrative() bool {
	return r == RoleAdmin || r == RoleDashboardAdmin
}

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDashboardAdmin, RoleManufacturer, RoleRetailer:
		return true
	}
	return false
}

// Account is a login credential.
type Account struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         Role
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ManufacturerStatus tracks the admin verification decision for a manufacturer.
type ManufacturerStatus string

const (
	ManufacturerStatusPending   ManufacturerStatus = "PENDING"
	ManufacturerStatusApproved  ManufacturerStatus = "APPROVED"
	ManufacturerStatusRejected  ManufacturerStatus = "REJECTED"
	ManufacturerStatusActive    ManufacturerStatus = "ACTIVE"
	ManufacturerStatusSuspended ManufacturerStatus = "SUSPENDED"
	ManufacturerStatusInactive  ManufacturerStatus = "INACTIVE"
)

// ManufacturerStatuses lists every verification status in declaration order.
var ManufacturerStatuses = []ManufacturerStatus{
	ManufacturerStatusPending,
	ManufacturerStatusApproved,
	ManufacturerStatusRejected,
	ManufacturerStatusActive,
	ManufacturerStatusSuspended,
	ManufacturerStatusInactive,
}

// Valid reports whether the status is known.
func (s ManufacturerStatus) Valid() bool {
	for _, candidate := range ManufacturerStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Verified reports whether a manufacturer in this status counts as verified.
func (s ManufacturerStatus) Verified() bool {
	return s == ManufacturerStatusApproved || s == ManufacturerStatusActive
}

// PostalAddress captures a free-form address block.
type PostalAddress struct {
	Line    string
	City    string
	State   string
	Pincode string
	Country string
}

// Manufacturer is a supplier that lists products once verified by an admin.
type Manufacturer struct {
	ID                string
	CompanyName       string
	ContactPerson     string
	Email             string
	PhoneNumber       string
	Address           PostalAddress
	GSTNumber         string
	PANNumber         string
	LicenseNumber     string
	LicenseValidity   *time.Time
	Status            ManufacturerStatus
	Verified          bool
	VerificationNotes string
	VerifiedBy        string
	VerifiedAt        *time.Time
	AccountID         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Product is a catalog entry with a stock counter.
type Product struct {
	ID               string
	ManufacturerID   string
	Name             string
	Description      string
	Category         string
	SKU              string
	Barcode          string
	Price            decimal.Decimal
	StockQuantity    int
	MinOrderQuantity int
	MaxOrderQuantity int
	Active           bool
	ImageURLs        []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PrimaryImage returns the first image URL or an empty string.
func (p Product) PrimaryImage() string {
	if len(p.ImageURLs) == 0 {
		return ""
	}
	return p.ImageURLs[0]
}

// OrderStatus represents lifecycle states for orders.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusRefunded   OrderStatus = "REFUNDED"
)

// OrderStatuses lists every order status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

// Valid reports whether the status is known.
func (s OrderStatus) Valid() bool {
	for _, candidate := range OrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// PaymentStatusPending is the payment status assigned to freshly placed orders.
const PaymentStatusPending = "PENDING"

// Order is the aggregate root for a placed order and its items.
type Order struct {
	ID                   string
	UserID               string
	OrderNumber          string
	Status               OrderStatus
	PaymentStatus        string
	PaymentMethod        string
	PaymentTransactionID string
	Subtotal             decimal.Decimal
	Tax                  decimal.Decimal
	ShippingCost         decimal.Decimal
	Discount             decimal.Decimal
	Total                decimal.Decimal
	ShippingAddress      PostalAddress
	BillingAddress       PostalAddress
	ContactEmail         string
	ContactPhone         string
	Notes                string
	TrackingNumber       string
	CancellationReason   string
	Items                []OrderItem
	ShippedAt            *time.Time
	DeliveredAt          *time.Time
	CancelledAt          *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// OrderItem is a line in an order. Product fields are snapshots taken at placement.
type OrderItem struct {
	ID             string
	ProductID      string
	ManufacturerID string
	ProductName    string
	ProductSKU     string
	ImageURL       string
	Quantity       int
	UnitPrice      decimal.Decimal
	TotalPrice     decimal.Decimal
}

// ItemsSubtotal sums the line totals of the order.
func (o Order) ItemsSubtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range o.Items {
		sum = sum.Add(item.TotalPrice)
	}
	return sum
}

// AuditLogEntry records a privileged action for later review.
type AuditLogEntry struct {
	ID         string
	Actor      string
	Action     string
	TargetRef  string
	Metadata   map[string]any
	OccurredAt time.Time
}
