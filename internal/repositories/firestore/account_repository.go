package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/crackersbazaar/api/internal/domain"
	pfirestore "github.com/crackersbazaar/api/internal/platform/firestore"
	"github.com/crackersbazaar/api/internal/platform/textutil"
	"github.com/crackersbazaar/api/internal/repositories"
)

const accountsCollection = "accounts"

type accountDocument struct {
	Username     string    `firestore:"username"`
	UsernameKey  string    `firestore:"usernameKey"`
	Email        string    `firestore:"email"`
	EmailKey     string    `firestore:"emailKey"`
	PasswordHash string    `firestore:"passwordHash"`
	FirstName    string    `firestore:"firstName,omitempty"`
	LastName     string    `firestore:"lastName,omitempty"`
	Role         string    `firestore:"role"`
	Active       bool      `firestore:"active"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// AccountRepository stores login accounts. Usernames and emails are matched on their folded keys. Writes do
// not query, so uniqueness is checked by callers inside the enclosing transaction before writing.
type AccountRepository struct {
	base *pfirestore.BaseRepository[accountDocument]
}

var _ repositories.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository constructs a Firestore-backed account repository.
func NewAccountRepository(provider *pfirestore.Provider) (*AccountRepository, error) {
	if provider == nil {
		return nil, errors.New("account repository requires firestore provider")
	}
	return &AccountRepository{base: pfirestore.NewBaseRepository[accountDocument](provider, accountsCollection)}, nil
}

func (r *AccountRepository) FindByID(ctx context.Context, accountID string) (domain.Account, error) {
	doc, err := r.base.Get(ctx, accountID)
	if err != nil {
		return domain.Account{}, err
	}
	return doc.toDomain(accountID), nil
}

func (r *AccountRepository) FindByUsername(ctx context.Context, username string) (domain.Account, error) {
	return r.findByKey(ctx, "usernameKey", username)
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (domain.Account, error) {
	return r.findByKey(ctx, "emailKey", email)
}

func (r *AccountRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return exists(r.FindByUsername(ctx, username))
}

func (r *AccountRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return exists(r.FindByEmail(ctx, email))
}

func (r *AccountRepository) findByKey(ctx context.Context, field, value string) (domain.Account, error) {
	key := textutil.FoldKey(value)
	doc, id, err := r.base.First(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(field, "==", key)
	})
	if err != nil {
		return domain.Account{}, err
	}
	return doc.toDomain(id), nil
}

func (r *AccountRepository) Insert(ctx context.Context, account domain.Account) error {
	return r.base.Create(ctx, account.ID, newAccountDocument(account))
}

func (r *AccountRepository) Update(ctx context.Context, account domain.Account) error {
	doc := newAccountDocument(account)
	return r.base.Update(ctx, account.ID, []firestore.Update{
		{Path: "username", Value: doc.Username},
		{Path: "usernameKey", Value: doc.UsernameKey},
		{Path: "email", Value: doc.Email},
		{Path: "emailKey", Value: doc.EmailKey},
		{Path: "passwordHash", Value: doc.PasswordHash},
		{Path: "firstName", Value: doc.FirstName},
		{Path: "lastName", Value: doc.LastName},
		{Path: "role", Value: doc.Role},
		{Path: "active", Value: doc.Active},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	})
}

func (r *AccountRepository) Delete(ctx context.Context, accountID string) error {
	return r.base.Delete(ctx, accountID)
}

func newAccountDocument(a domain.Account) accountDocument {
	return accountDocument{
		Username:     a.Username,
		UsernameKey:  textutil.FoldKey(a.Username),
		Email:        a.Email,
		EmailKey:     textutil.FoldKey(a.Email),
		PasswordHash: a.PasswordHash,
		FirstName:    a.FirstName,
		LastName:     a.LastName,
		Role:         string(a.Role),
		Active:       a.Active,
		CreatedAt:    a.CreatedAt.UTC(),
		UpdatedAt:    a.UpdatedAt.UTC(),
	}
}

func (d accountDocument) toDomain(id string) domain.Account {
	return domain.Account{
		ID:           id,
		Username:     d.Username,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		Role:         domain.Role(d.Role),
		Active:       d.Active,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
}

func exists[T any](_ T, err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case repositories.IsNotFound(err):
		return false, nil
	}
	return false, err
}
