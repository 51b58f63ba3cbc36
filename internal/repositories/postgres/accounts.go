package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/crackersbazaar/api/internal/domain"
	"github.com/crackersbazaar/api/internal/platform/textutil"
	"github.com/crackersbazaar/api/internal/repositories"
)

const accountColumns = `id, username, email, password_hash, first_name, last_name, role, active, created_at, updated_at`

type accountRepository struct{ r *Registry }

func (a accountRepository) FindByID(ctx context.Context, accountID string) (domain.Account, error) {
	return a.findOne(ctx, "accounts.get", "id = $1", accountID)
}

func (a accountRepository) FindByUsername(ctx context.Context, username string) (domain.Account, error) {
	return a.findOne(ctx, "accounts.username", "username_key = $1", textutil.FoldKey(username))
}

func (a accountRepository) FindByEmail(ctx context.Context, email string) (domain.Account, error) {
	return a.findOne(ctx, "accounts.email", "email_key = $1", textutil.FoldKey(email))
}

func (a accountRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return a.exists(ctx, "username_key = $1", textutil.FoldKey(username))
}

func (a accountRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return a.exists(ctx, "email_key = $1", textutil.FoldKey(email))
}

func (a accountRepository) findOne(ctx context.Context, op, predicate string, arg any) (domain.Account, error) {
	q, _ := a.r.conn(ctx)
	row := q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE `+predicate+a.r.lockClause(ctx), arg)
	account, err := scanAccount(row)
	return account, wrapError(op, err)
}

func (a accountRepository) exists(ctx context.Context, predicate string, arg any) (bool, error) {
	q, _ := a.r.conn(ctx)
	var found bool
	err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE `+predicate+`)`, arg).Scan(&found)
	return found, wrapError("accounts.exists", err)
}

func (a accountRepository) Insert(ctx context.Context, account domain.Account) error {
	q, _ := a.r.conn(ctx)
	_, err := q.Exec(ctx, `INSERT INTO accounts (id, username, username_key, email, email_key, password_hash, first_name,
		last_name, role, active, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		account.ID, account.Username, textutil.FoldKey(account.Username), account.Email, textutil.FoldKey(account.Email),
		account.PasswordHash, account.FirstName, account.LastName, string(account.Role), account.Active,
		account.CreatedAt.UTC(), account.UpdatedAt.UTC())
	return wrapError("accounts.insert", err)
}

func (a accountRepository) Update(ctx context.Context, account domain.Account) error {
	q, _ := a.r.conn(ctx)
	tag, err := q.Exec(ctx, `UPDATE accounts SET username = $2, username_key = $3, email = $4, email_key = $5,
		password_hash = $6, first_name = $7, last_name = $8, role = $9, active = $10, updated_at = $11 WHERE id = $1`,
		account.ID, account.Username, textutil.FoldKey(account.Username), account.Email, textutil.FoldKey(account.Email),
		account.PasswordHash, account.FirstName, account.LastName, string(account.Role), account.Active,
		account.UpdatedAt.UTC())
	if err != nil {
		return wrapError("accounts.update", err)
	}
	if tag.RowsAffected() == 0 {
		return repositories.NewNotFoundError("accounts.update", "account %s not found", account.ID)
	}
	return nil
}

func (a accountRepository) Delete(ctx context.Context, accountID string) error {
	q, _ := a.r.conn(ctx)
	_, err := q.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, accountID)
	return wrapError("accounts.delete", err)
}

func scanAccount(row pgx.Row) (domain.Account, error) {
	var (
		acc  domain.Account
		role string
	)
	if err := row.Scan(&acc.ID, &acc.Username, &acc.Email, &acc.PasswordHash, &acc.FirstName, &acc.LastName, &role,
		&acc.Active, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
		return domain.Account{}, err
	}
	acc.Role = domain.Role(role)
	acc.CreatedAt = acc.CreatedAt.UTC()
	acc.UpdatedAt = acc.UpdatedAt.UTC()
	return acc, nil
}
