package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"

	"github.com/crackersbazaar/api/internal/domain"
	pfirestore "github.com/crackersbazaar/api/internal/platform/firestore"
	"github.com/crackersbazaar/api/internal/platform/textutil"
	"github.com/crackersbazaar/api/internal/repositories"
)

const manufacturersCollection = "manufacturers"

type addressDocument struct {
	Line    string `firestore:"line,omitempty"`
	City    string `firestore:"city,omitempty"`
	State   string `firestore:"state,omitempty"`
	Pincode string `firestore:"pincode,omitempty"`
	Country string `firestore:"country,omitempty"`
}

type manufacturerDocument struct {
	CompanyName       string          `firestore:"companyName"`
	ContactPerson     string          `firestore:"contactPerson"`
	Email             string          `firestore:"email"`
	EmailKey          string          `firestore:"emailKey"`
	PhoneNumber       string          `firestore:"phoneNumber,omitempty"`
	Address           addressDocument `firestore:"address"`
	CityKey           string          `firestore:"cityKey,omitempty"`
	StateKey          string          `firestore:"stateKey,omitempty"`
	GSTNumber         string          `firestore:"gstNumber,omitempty"`
	PANNumber         string          `firestore:"panNumber,omitempty"`
	LicenseNumber     string          `firestore:"licenseNumber,omitempty"`
	LicenseValidity   *time.Time      `firestore:"licenseValidity,omitempty"`
	Status            string          `firestore:"status"`
	Verified          bool            `firestore:"verified"`
	VerificationNotes string          `firestore:"verificationNotes,omitempty"`
	VerifiedBy        string          `firestore:"verifiedBy,omitempty"`
	VerifiedAt        *time.Time      `firestore:"verifiedAt,omitempty"`
	AccountID         string          `firestore:"accountId"`
	CreatedAt         time.Time       `firestore:"createdAt"`
	UpdatedAt         time.Time       `firestore:"updatedAt"`
}

// ManufacturerRepository stores manufacturer profiles.
type ManufacturerRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[manufacturerDocument]
}

var _ repositories.ManufacturerRepository = (*ManufacturerRepository)(nil)

// NewManufacturerRepository constructs a Firestore-backed manufacturer repository.
func NewManufacturerRepository(provider *pfirestore.Provider) (*ManufacturerRepository, error) {
	if provider == nil {
		return nil, errors.New("manufacturer repository requires firestore provider")
	}
	return &ManufacturerRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[manufacturerDocument](provider, manufacturersCollection),
	}, nil
}

func (r *ManufacturerRepository) FindByID(ctx context.Context, manufacturerID string) (domain.Manufacturer, error) {
	doc, err := r.base.Get(ctx, manufacturerID)
	if err != nil {
		return domain.Manufacturer{}, err
	}
	return doc.toDomain(manufacturerID), nil
}

func (r *ManufacturerRepository) FindByEmail(ctx context.Context, email string) (domain.Manufacturer, error) {
	return r.first(ctx, "emailKey", textutil.FoldKey(email))
}

func (r *ManufacturerRepository) FindByAccountID(ctx context.Context, accountID string) (domain.Manufacturer, error) {
	return r.first(ctx, "accountId", strings.TrimSpace(accountID))
}

func (r *ManufacturerRepository) first(ctx context.Context, field, value string) (domain.Manufacturer, error) {
	doc, id, err := r.base.First(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(field, "==", value)
	})
	if err != nil {
		return domain.Manufacturer{}, err
	}
	return doc.toDomain(id), nil
}

func (r *ManufacturerRepository) Insert(ctx context.Context, manufacturer domain.Manufacturer) error {
	return r.base.Create(ctx, manufacturer.ID, newManufacturerDocument(manufacturer))
}

// Update overwrites the stored profile. The document must already exist.
func (r *ManufacturerRepository) Update(ctx context.Context, manufacturer domain.Manufacturer) error {
	return r.base.Update(ctx, manufacturer.ID, manufacturerUpdates(newManufacturerDocument(manufacturer)))
}

func (r *ManufacturerRepository) Delete(ctx context.Context, manufacturerID string) error {
	return r.base.Delete(ctx, manufacturerID)
}

func (r *ManufacturerRepository) List(ctx context.Context, filter repositories.ManufacturerListFilter) (domain.CursorPage[domain.Manufacturer], error) {
	query := strings.ToLower(strings.TrimSpace(filter.CompanyQuery))
	var keep func(domain.Manufacturer) bool
	if query != "" {
		keep = func(m domain.Manufacturer) bool {
			return strings.Contains(strings.ToLower(m.CompanyName), query)
		}
	}
	return pageQuery[manufacturerDocument, domain.Manufacturer]{
		base: r.base,
		filter: func(q firestore.Query) firestore.Query {
			switch len(filter.Status) {
			case 0:
			case 1:
				q = q.Where("status", "==", string(filter.Status[0]))
			default:
				statuses := make([]string, 0, len(filter.Status))
				for _, s := range filter.Status {
					statuses = append(statuses, string(s))
				}
				q = q.Where("status", "in", statuses)
			}
			if filter.City != "" {
				q = q.Where("cityKey", "==", textutil.FoldKey(filter.City))
			}
			if filter.State != "" {
				q = q.Where("stateKey", "==", textutil.FoldKey(filter.State))
			}
			return q
		},
		decode: func(id string, doc manufacturerDocument) domain.Manufacturer { return doc.toDomain(id) },
		key:    func(m domain.Manufacturer) (time.Time, string) { return m.CreatedAt, m.ID },
		keep:   keep,
	}.run(ctx, filter.Pagination)
}

// CountByStatus runs one count aggregation per status.
func (r *ManufacturerRepository) CountByStatus(ctx context.Context) (map[domain.ManufacturerStatus]int, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[domain.ManufacturerStatus]int, len(domain.ManufacturerStatuses))
	for _, status := range domain.ManufacturerStatuses {
		query := client.Collection(manufacturersCollection).
			Where("status", "==", string(status))
		result, err := query.
			NewAggregationQuery().
			WithCount("count").
			Get(ctx)
		if err != nil {
			return nil, pfirestore.WrapError("manufacturers.count", err)
		}
		n, err := aggregateCount(result["count"])
		if err != nil {
			return nil, fmt.Errorf("manufacturers.count %s: %w", status, err)
		}
		counts[status] = n
	}
	return counts, nil
}

func aggregateCount(value any) (int, error) {
	switch v := value.(type) {
	case *firestorepb.Value:
		return int(v.GetIntegerValue()), nil
	case int64:
		return int(v), nil
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("unexpected aggregation value %T", value)
}

func manufacturerUpdates(d manufacturerDocument) []firestore.Update {
	return []firestore.Update{
		{Path: "companyName", Value: d.CompanyName},
		{Path: "contactPerson", Value: d.ContactPerson},
		{Path: "email", Value: d.Email},
		{Path: "emailKey", Value: d.EmailKey},
		{Path: "phoneNumber", Value: d.PhoneNumber},
		{Path: "address", Value: d.Address},
		{Path: "cityKey", Value: d.CityKey},
		{Path: "stateKey", Value: d.StateKey},
		{Path: "gstNumber", Value: d.GSTNumber},
		{Path: "panNumber", Value: d.PANNumber},
		{Path: "licenseNumber", Value: d.LicenseNumber},
		{Path: "licenseValidity", Value: d.LicenseValidity},
		{Path: "status", Value: d.Status},
		{Path: "verified", Value: d.Verified},
		{Path: "verificationNotes", Value: d.VerificationNotes},
		{Path: "verifiedBy", Value: d.VerifiedBy},
		{Path: "verifiedAt", Value: d.VerifiedAt},
		{Path: "accountId", Value: d.AccountID},
		{Path: "updatedAt", Value: d.UpdatedAt},
	}
}

func newManufacturerDocument(m domain.Manufacturer) manufacturerDocument {
	return manufacturerDocument{
		CompanyName:       m.CompanyName,
		ContactPerson:     m.ContactPerson,
		Email:             m.Email,
		EmailKey:          textutil.FoldKey(m.Email),
		PhoneNumber:       m.PhoneNumber,
		Address:           toAddressDocument(m.Address),
		CityKey:           textutil.FoldKey(m.Address.City),
		StateKey:          textutil.FoldKey(m.Address.State),
		GSTNumber:         m.GSTNumber,
		PANNumber:         m.PANNumber,
		LicenseNumber:     m.LicenseNumber,
		LicenseValidity:   utcPtr(m.LicenseValidity),
		Status:            string(m.Status),
		Verified:          m.Verified,
		VerificationNotes: m.VerificationNotes,
		VerifiedBy:        m.VerifiedBy,
		VerifiedAt:        utcPtr(m.VerifiedAt),
		AccountID:         m.AccountID,
		CreatedAt:         m.CreatedAt.UTC(),
		UpdatedAt:         m.UpdatedAt.UTC(),
	}
}

func (d manufacturerDocument) toDomain(id string) domain.Manufacturer {
	return domain.Manufacturer{
		ID:                id,
		CompanyName:       d.CompanyName,
		ContactPerson:     d.ContactPerson,
		Email:             d.Email,
		PhoneNumber:       d.PhoneNumber,
		Address:           d.Address.toDomain(),
		GSTNumber:         d.GSTNumber,
		PANNumber:         d.PANNumber,
		LicenseNumber:     d.LicenseNumber,
		LicenseValidity:   utcPtr(d.LicenseValidity),
		Status:            domain.ManufacturerStatus(d.Status),
		Verified:          d.Verified,
		VerificationNotes: d.VerificationNotes,
		VerifiedBy:        d.VerifiedBy,
		VerifiedAt:        utcPtr(d.VerifiedAt),
		AccountID:         d.AccountID,
		CreatedAt:         d.CreatedAt.UTC(),
		UpdatedAt:         d.UpdatedAt.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
