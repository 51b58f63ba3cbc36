package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/crackersbazaar/api/internal/domain"
	"github.com/crackersbazaar/api/internal/platform/textutil"
	"github.com/crackersbazaar/api/internal/repositories"
)

const manufacturerColumns = `id, company_name, contact_person, email, phone_number, address_line, city, state, pincode,
	country, gst_number, pan_number, license_number, license_validity, status, verified, verification_notes,
	verified_by, verified_at, account_id, created_at, updated_at`

type manufacturerRepository struct{ r *Registry }

func (m manufacturerRepository) FindByID(ctx context.Context, manufacturerID string) (domain.Manufacturer, error) {
	return m.findOne(ctx, "manufacturers.get", "id = $1", manufacturerID)
}

func (m manufacturerRepository) FindByEmail(ctx context.Context, email string) (domain.Manufacturer, error) {
	return m.findOne(ctx, "manufacturers.email", "email_key = $1", textutil.FoldKey(email))
}

func (m manufacturerRepository) FindByAccountID(ctx context.Context, accountID string) (domain.Manufacturer, error) {
	return m.findOne(ctx, "manufacturers.account", "account_id = $1", accountID)
}

func (m manufacturerRepository) findOne(ctx context.Context, op, predicate string, arg any) (domain.Manufacturer, error) {
	q, _ := m.r.conn(ctx)
	row := q.QueryRow(ctx, `SELECT `+manufacturerColumns+` FROM manufacturers WHERE `+predicate+m.r.lockClause(ctx), arg)
	manufacturer, err := scanManufacturer(row)
	return manufacturer, wrapError(op, err)
}

func (m manufacturerRepository) Insert(ctx context.Context, mf domain.Manufacturer) error {
	q, _ := m.r.conn(ctx)
	_, err := q.Exec(ctx, `INSERT INTO manufacturers (id, company_name, contact_person, email, email_key, phone_number,
		address_line, city, state, pincode, country, gst_number, pan_number, license_number, license_validity, status,
		verified, verification_notes, verified_by, verified_at, account_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
		mf.ID, mf.CompanyName, mf.ContactPerson, mf.Email, textutil.FoldKey(mf.Email), mf.PhoneNumber,
		mf.Address.Line, mf.Address.City, mf.Address.State, mf.Address.Pincode, mf.Address.Country,
		mf.GSTNumber, mf.PANNumber, mf.LicenseNumber, mf.LicenseValidity, string(mf.Status), mf.Verified,
		mf.VerificationNotes, mf.VerifiedBy, mf.VerifiedAt, mf.AccountID, mf.CreatedAt.UTC(), mf.UpdatedAt.UTC())
	return wrapError("manufacturers.insert", err)
}

func (m manufacturerRepository) Update(ctx context.Context, mf domain.Manufacturer) error {
	q, _ := m.r.conn(ctx)
	tag, err := q.Exec(ctx, `UPDATE manufacturers SET company_name = $2, contact_person = $3, email = $4, email_key = $5,
		phone_number = $6, address_line = $7, city = $8, state = $9, pincode = $10, country = $11, gst_number = $12,
		pan_number = $13, license_number = $14, license_validity = $15, status = $16, verified = $17,
		verification_notes = $18, verified_by = $19, verified_at = $20, account_id = $21, updated_at = $22
		WHERE id = $1`,
		mf.ID, mf.CompanyName, mf.ContactPerson, mf.Email, textutil.FoldKey(mf.Email), mf.PhoneNumber,
		mf.Address.Line, mf.Address.City, mf.Address.State, mf.Address.Pincode, mf.Address.Country,
		mf.GSTNumber, mf.PANNumber, mf.LicenseNumber, mf.LicenseValidity, string(mf.Status), mf.Verified,
		mf.VerificationNotes, mf.VerifiedBy, mf.VerifiedAt, mf.AccountID, mf.UpdatedAt.UTC())
	if err != nil {
		return wrapError("manufacturers.update", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.NewNotFoundError("manufacturers.update", "manufacturer %s not found", mf.ID)
	}
	return nil
}

func (m manufacturerRepository) Delete(ctx context.Context, manufacturerID string) error {
	q, _ := m.r.conn(ctx)
	_, err := q.Exec(ctx, `DELETE FROM manufacturers WHERE id = $1`, manufacturerID)
	return wrapError("manufacturers.delete", err)
}

func (m manufacturerRepository) List(ctx context.Context, filter repositories.ManufacturerListFilter) (domain.CursorPage[domain.Manufacturer], error) {
	var w where
	if len(filter.Status) > 0 {
		statuses := make([]string, 0, len(filter.Status))
		for _, s := range filter.Status {
			statuses = append(statuses, string(s))
		}
		w.add("status = ANY(?)", statuses)
	}
	if filter.City != "" {
		w.add("lower(city) = lower(?)", filter.City)
	}
	if filter.State != "" {
		w.add("lower(state) = lower(?)", filter.State)
	}
	if filter.CompanyQuery != "" {
		w.add("company_name ILIKE '%' || ? || '%'", filter.CompanyQuery)
	}
	suffix, size, err := keyset(&w, "", filter.Pagination)
	if err != nil {
		return domain.CursorPage[domain.Manufacturer]{}, err
	}

	q, _ := m.r.conn(ctx)
	rows, err := q.Query(ctx, `SELECT `+manufacturerColumns+` FROM manufacturers`+w.String()+suffix, w.args...)
	if err != nil {
		return domain.CursorPage[domain.Manufacturer]{}, wrapError("manufacturers.list", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Manufacturer, error) {
		return scanManufacturer(row)
	})
	if err != nil {
		return domain.CursorPage[domain.Manufacturer]{}, wrapError("manufacturers.list", err)
	}
	return trimPage(items, size, func(m domain.Manufacturer) (time.Time, string) { return m.CreatedAt, m.ID }), nil
}

func (m manufacturerRepository) CountByStatus(ctx context.Context) (map[domain.ManufacturerStatus]int, error) {
	q, _ := m.r.conn(ctx)
	rows, err := q.Query(ctx, `SELECT status, COUNT(*) FROM manufacturers GROUP BY status`)
	if err != nil {
		return nil, wrapError("manufacturers.count", err)
	}
	defer rows.Close()

	counts := make(map[domain.ManufacturerStatus]int, len(domain.ManufacturerStatuses))
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, wrapError("manufacturers.count", err)
		}
		counts[domain.ManufacturerStatus(status)] = n
	}
	return counts, wrapError("manufacturers.count", rows.Err())
}

func scanManufacturer(row pgx.Row) (domain.Manufacturer, error) {
	var (
		mf     domain.Manufacturer
		status string
	)
	err := row.Scan(&mf.ID, &mf.CompanyName, &mf.ContactPerson, &mf.Email, &mf.PhoneNumber, &mf.Address.Line,
		&mf.Address.City, &mf.Address.State, &mf.Address.Pincode, &mf.Address.Country, &mf.GSTNumber, &mf.PANNumber,
		&mf.LicenseNumber, &mf.LicenseValidity, &status, &mf.Verified, &mf.VerificationNotes, &mf.VerifiedBy,
		&mf.VerifiedAt, &mf.AccountID, &mf.CreatedAt, &mf.UpdatedAt)
	if err != nil {
		return domain.Manufacturer{}, err
	}
	mf.Status = domain.ManufacturerStatus(status)
	mf.CreatedAt = mf.CreatedAt.UTC()
	mf.UpdatedAt = mf.UpdatedAt.UTC()
	return mf, nil
}
