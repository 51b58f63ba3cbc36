package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/crackersbazaar/api/internal/platform/firestore"
	"github.com/crackersbazaar/api/internal/repositories"
)

// Registry wires the Firestore repositories around one provider.
type Registry struct {
	provider      *pfirestore.Provider
	products      *ProductRepository
	accounts      *AccountRepository
	manufacturers *ManufacturerRepository
	orders        *OrderRepository
	counters      *CounterRepository
	auditLogs     *AuditLogRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs every Firestore repository on the provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	reg := &Registry{provider: provider}
	var err error
	if reg.products, err = NewProductRepository(provider); err != nil {
		return nil, err
	}
	if reg.accounts, err = NewAccountRepository(provider); err != nil {
		return nil, err
	}
	if reg.manufacturers, err = NewManufacturerRepository(provider); err != nil {
		return nil, err
	}
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, err
	}
	if reg.counters, err = NewCounterRepository(provider); err != nil {
		return nil, err
	}
	if reg.auditLogs, err = NewAuditLogRepository(provider); err != nil {
		return nil, err
	}
	return reg, nil
}

func (r *Registry) Products() repositories.ProductRepository           { return r.products }
func (r *Registry) Accounts() repositories.AccountRepository           { return r.accounts }
func (r *Registry) Manufacturers() repositories.ManufacturerRepository { return r.manufacturers }
func (r *Registry) Orders() repositories.OrderRepository               { return r.orders }
func (r *Registry) Counters() repositories.CounterRepository           { return r.counters }
func (r *Registry) AuditLogs() repositories.AuditLogRepository         { return r.auditLogs }

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

func (r *Registry) Ping(ctx context.Context) error { return r.provider.Ping(ctx) }

// RunInTx runs fn in a Firestore transaction; fn may be retried on contention. The error returned by fn is
// passed back unchanged so callers can match their own sentinels.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := pfirestore.TransactionFromContext(ctx); ok {
		return fn(ctx)
	}
	var fnErr error
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		fnErr = fn(ctx)
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	return err
}
