package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/crackersbazaar/api/internal/domain"
	"github.com/crackersbazaar/api/internal/platform/textutil"
	"github.com/crackersbazaar/api/internal/repositories"
)

const minUsernameLength = 3

var (
	// ErrAccountInvalidInput indicates a malformed sign-up or login request.
	ErrAccountInvalidInput = errors.New("account: invalid input")
	// ErrAccountNotFound indicates the account does not exist.
	ErrAccountNotFound = errors.New("account: not found")
	// ErrAccountConflict indicates the username or email is already registered.
	ErrAccountConflict = errors.New("account: conflict")
	// ErrAccountInvalidCredentials covers unknown logins and wrong passwords alike.
	ErrAccountInvalidCredentials = errors.New("account: invalid credentials")
	// ErrAccountInactive indicates the credentials are right but the account is disabled.
	ErrAccountInactive = errors.New("account: inactive")
	// ErrAccountUnavailable indicates the backing store could not be reached.
	ErrAccountUnavailable = errors.New("account: repository unavailable")
)

// TokenIssuerFunc adapts a plain function to TokenIssuer.
type TokenIssuerFunc func(account domain.Account) (AccessToken, error)

// Issue calls f.
func (f TokenIssuerFunc) Issue(account domain.Account) (AccessToken, error) {
	return f(account)
}

// AccountServiceDeps bundles collaborators for the account service.
type AccountServiceDeps struct {
	Accounts    repositories.AccountRepository
	UnitOfWork  repositories.UnitOfWork
	Hasher      PasswordHasher
	Tokens      TokenIssuer
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type accountService struct {
	accounts   repositories.AccountRepository
	unitOfWork repositories.UnitOfWork
	hasher     PasswordHasher
	tokens     TokenIssuer
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewAccountService constructs an AccountService.
func NewAccountService(deps AccountServiceDeps) (AccountService, error) {
	if deps.Accounts == nil {
		return nil, errors.New("account service: account repository is required")
	}
	if deps.Hasher == nil {
		return nil, errors.New("account service: password hasher is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("account service: token issuer is required")
	}
	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &accountService{
		accounts:   deps.Accounts,
		unitOfWork: unit,
		hasher:     deps.Hasher,
		tokens:     deps.Tokens,
		clock:      func() time.Time { return clock().UTC() },
		newID:      idGen,
		logger:     logger,
	}, nil
}

func (s *accountService) RegisterRetailer(ctx context.Context, cmd RegisterRetailerCommand) (Account, error) {
	username := strings.TrimSpace(cmd.Username)
	email := strings.TrimSpace(cmd.Email)
	switch {
	case len(username) < minUsernameLength:
		return Account{}, fmt.Errorf("%w: username must be at least %d characters", ErrAccountInvalidInput, minUsernameLength)
	case strings.Contains(username, "@"):
		return Account{}, fmt.Errorf("%w: username must not contain @", ErrAccountInvalidInput)
	case email == "" || !strings.Contains(email, "@"):
		return Account{}, fmt.Errorf("%w: a valid email is required", ErrAccountInvalidInput)
	case len(cmd.Password) < minPasswordLength:
		return Account{}, fmt.Errorf("%w: password must be at least %d characters", ErrAccountInvalidInput, minPasswordLength)
	}

	hash, err := s.hasher.Hash(cmd.Password)
	if err != nil {
		return Account{}, fmt.Errorf("account: hash password: %w", err)
	}

	var created Account
	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		taken, err := s.accounts.ExistsByUsername(txCtx, username)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if taken {
			return fmt.Errorf("%w: username %s is already taken", ErrAccountConflict, username)
		}
		taken, err = s.accounts.ExistsByEmail(txCtx, email)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if taken {
			return fmt.Errorf("%w: email %s is already registered", ErrAccountConflict, email)
		}

		now := s.clock()
		account := Account{
			ID:           s.newID(),
			Username:     username,
			Email:        email,
			PasswordHash: hash,
			FirstName:    textutil.PlainText(cmd.FirstName),
			LastName:     textutil.PlainText(cmd.LastName),
			Role:         domain.RoleRetailer,
			Active:       true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.accounts.Insert(txCtx, account); err != nil {
			return s.mapRepositoryError(err)
		}
		created = account
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.logger(ctx, "account.registered", map[string]any{"accountId": created.ID, "role": string(created.Role)})
	return created, nil
}

func (s *accountService) Authenticate(ctx context.Context, cmd AuthenticateCommand) (AuthResult, error) {
	login := strings.TrimSpace(cmd.Login)
	if login == "" || cmd.Password == "" {
		return AuthResult{}, fmt.Errorf("%w: login and password are required", ErrAccountInvalidInput)
	}

	account, err := s.lookup(ctx, login)
	if err != nil {
		if repositories.IsNotFound(err) {
			s.logger(ctx, "account.login.failed", map[string]any{"reason": "unknown_login"})
			return AuthResult{}, ErrAccountInvalidCredentials
		}
		return AuthResult{}, s.mapRepositoryError(err)
	}
	if err := s.hasher.Compare(account.PasswordHash, cmd.Password); err != nil {
		s.logger(ctx, "account.login.failed", map[string]any{"accountId": account.ID, "reason": "password"})
		return AuthResult{}, ErrAccountInvalidCredentials
	}
	if !account.Active {
		s.logger(ctx, "account.login.failed", map[string]any{"accountId": account.ID, "reason": "inactive"})
		return AuthResult{}, ErrAccountInactive
	}

	token, err := s.tokens.Issue(account)
	if err != nil {
		return AuthResult{}, fmt.Errorf("account: issue token: %w", err)
	}
	s.logger(ctx, "account.login", map[string]any{"accountId": account.ID, "role": string(account.Role)})
	return AuthResult{Account: account, Token: token}, nil
}

// lookup resolves a login as a username first, then as an email when it looks like one.
func (s *accountService) lookup(ctx context.Context, login string) (Account, error) {
	account, err := s.accounts.FindByUsername(ctx, login)
	if err == nil || !repositories.IsNotFound(err) || !strings.Contains(login, "@") {
		return account, err
	}
	return s.accounts.FindByEmail(ctx, login)
}

func (s *accountService) GetAccount(ctx context.Context, accountID string) (Account, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return Account{}, fmt.Errorf("%w: account id is required", ErrAccountInvalidInput)
	}
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return Account{}, s.mapRepositoryError(err)
	}
	return account, nil
}

func (s *accountService) mapRepositoryError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrAccountNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrAccountConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrAccountUnavailable, err)
		}
	}
	return err
}
