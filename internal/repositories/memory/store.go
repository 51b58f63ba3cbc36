package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/crackersbazaar/api/internal/domain"
	"github.com/crackersbazaar/api/internal/platform/pagination"
	"github.com/crackersbazaar/api/internal/platform/textutil"
	"github.com/crackersbazaar/api/internal/repositories"
)

// Store is an in-process repositories.Registry. Transactions are serialised and a failed transaction
// restores the snapshot taken when it began. Writes made outside a transaction take the same lock so they
// never interleave with a running one.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	products      map[string]domain.Product
	accounts      map[string]domain.Account
	manufacturers map[string]domain.Manufacturer
	orders        map[string]domain.Order
	counters      map[string]int64
	auditLogs     []domain.AuditLogEntry
}

var _ repositories.Registry = (*Store)(nil)

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		products:      make(map[string]domain.Product),
		accounts:      make(map[string]domain.Account),
		manufacturers: make(map[string]domain.Manufacturer),
		orders:        make(map[string]domain.Order),
		counters:      make(map[string]int64),
	}
}

func (s *Store) Products() repositories.ProductRepository           { return productRepository{s} }
func (s *Store) Accounts() repositories.AccountRepository           { return accountRepository{s} }
func (s *Store) Manufacturers() repositories.ManufacturerRepository { return manufacturerRepository{s} }
func (s *Store) Orders() repositories.OrderRepository               { return orderRepository{s} }
func (s *Store) Counters() repositories.CounterRepository           { return counterRepository{s} }
func (s *Store) AuditLogs() repositories.AuditLogRepository         { return auditLogRepository{s} }

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

type txKey struct{}

// RunInTx runs fn with exclusive write access. Nested calls join the outer transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	saved := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(saved)
		return err
	}
	return nil
}

// AuditEntries returns a copy of the recorded audit log.
func (s *Store) AuditEntries() []domain.AuditLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AuditLogEntry, 0, len(s.auditLogs))
	for _, entry := range s.auditLogs {
		out = append(out, cloneAuditEntry(entry))
	}
	return out
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

func (s *Store) write(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func (s *Store) read(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn()
}

type snapshot struct {
	products      map[string]domain.Product
	accounts      map[string]domain.Account
	manufacturers map[string]domain.Manufacturer
	orders        map[string]domain.Order
	counters      map[string]int64
	auditLen      int
}

// Stored values are never mutated in place, so a shallow copy of each map is a consistent snapshot.
func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot{
		products:      maps.Clone(s.products),
		accounts:      maps.Clone(s.accounts),
		manufacturers: maps.Clone(s.manufacturers),
		orders:        maps.Clone(s.orders),
		counters:      maps.Clone(s.counters),
		auditLen:      len(s.auditLogs),
	}
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = snap.products
	s.accounts = snap.accounts
	s.manufacturers = snap.manufacturers
	s.orders = snap.orders
	s.counters = snap.counters
	s.auditLogs = s.auditLogs[:snap.auditLen]
}

// paginate orders rows by (createdAt desc, id desc) and returns the page after the token's cursor.
func paginate[T any](rows []T, key func(T) (time.Time, string), page domain.Pagination) (domain.CursorPage[T], error) {
	cursor, err := pagination.DecodeToken(page.PageToken)
	if err != nil {
		return domain.CursorPage[T]{}, err
	}
	sort.Slice(rows, func(i, j int) bool {
		ci, ii := key(rows[i])
		cj, ij := key(rows[j])
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return ii > ij
	})

	size := pagination.NormalizePageSize(page.PageSize)
	out := domain.CursorPage[T]{Items: make([]T, 0, size)}
	for _, row := range rows {
		createdAt, id := key(row)
		if !cursor.After(createdAt, id) {
			continue
		}
		if len(out.Items) == size {
			last := out.Items[len(out.Items)-1]
			lastCreated, lastID := key(last)
			out.NextPageToken = pagination.EncodeToken(pagination.Cursor{CreatedAt: lastCreated, ID: lastID})
			break
		}
		out.Items = append(out.Items, row)
	}
	return out, nil
}

func sameFold(a, b string) bool {
	return textutil.FoldKey(a) == textutil.FoldKey(b)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneProduct(p domain.Product) domain.Product {
	p.ImageURLs = slices.Clone(p.ImageURLs)
	return p
}

func cloneManufacturer(m domain.Manufacturer) domain.Manufacturer {
	m.LicenseValidity = cloneTime(m.LicenseValidity)
	m.VerifiedAt = cloneTime(m.VerifiedAt)
	return m
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = slices.Clone(o.Items)
	o.ShippedAt = cloneTime(o.ShippedAt)
	o.DeliveredAt = cloneTime(o.DeliveredAt)
	o.CancelledAt = cloneTime(o.CancelledAt)
	return o
}

func cloneAuditEntry(e domain.AuditLogEntry) domain.AuditLogEntry {
	e.Metadata = maps.Clone(e.Metadata)
	return e
}
