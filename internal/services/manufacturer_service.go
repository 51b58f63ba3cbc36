package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/oklog/ulid/v2"

	"github.com/crackersbazaar/api/internal/domain"
	"github.com/crackersbazaar/api/internal/platform/security"
	"github.com/crackersbazaar/api/internal/platform/textutil"
	"github.com/crackersbazaar/api/internal/repositories"
)

const (
	minPasswordLength      = 8
	generatedUsernameLimit = 10
	usernameAttempts       = 100
)

var (
	// ErrManufacturerInvalidInput covers malformed registrations and verification requests.
	ErrManufacturerInvalidInput = errors.New("manufacturer: invalid input")
	// ErrManufacturerNotFound indicates the manufacturer or its account does not exist.
	ErrManufacturerNotFound = errors.New("manufacturer: not found")
	// ErrManufacturerConflict indicates a duplicate email or username.
	ErrManufacturerConflict = errors.New("manufacturer: conflict")
	// ErrManufacturerInvalidState indicates the linked account cannot take the requested action.
	ErrManufacturerInvalidState = errors.New("manufacturer: invalid state")
	// ErrManufacturerUnavailable indicates the backing store could not be reached.
	ErrManufacturerUnavailable = errors.New("manufacturer: repository unavailable")
)

type accountEffect int

const (
	accountNoChange accountEffect = iota
	accountActivate
	accountDeactivate
)

// verificationAccountEffects decides what a verification status does to the linked login account.
var verificationAccountEffects = map[domain.ManufacturerStatus]accountEffect{
	domain.ManufacturerStatusPending:   accountNoChange,
	domain.ManufacturerStatusApproved:  accountActivate,
	domain.ManufacturerStatusRejected:  accountDeactivate,
	domain.ManufacturerStatusActive:    accountActivate,
	domain.ManufacturerStatusSuspended: accountDeactivate,
	domain.ManufacturerStatusInactive:  accountNoChange,
}

// ManufacturerServiceDeps bundles collaborators required to construct the manufacturer service.
type ManufacturerServiceDeps struct {
	Manufacturers     repositories.ManufacturerRepository
	Accounts          repositories.AccountRepository
	UnitOfWork        repositories.UnitOfWork
	Hasher            PasswordHasher
	Audit             AuditLogService
	TemporaryPassword func() (string, error)
	Clock             func() time.Time
	IDGenerator       func() string
	Logger            func(ctx context.Context, event string, fields map[string]any)
}

type manufacturerService struct {
	manufacturers repositories.ManufacturerRepository
	accounts      repositories.AccountRepository
	unitOfWork    repositories.UnitOfWork
	hasher        PasswordHasher
	audit         AuditLogService
	tempPassword  func() (string, error)
	clock         func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
}

// NewManufacturerService wires dependencies into a concrete ManufacturerService implementation.
func NewManufacturerService(deps ManufacturerServiceDeps) (ManufacturerService, error) {
	if deps.Manufacturers == nil {
		return nil, errors.New("manufacturer service: manufacturer repository is required")
	}
	if deps.Accounts == nil {
		return nil, errors.New("manufacturer service: account repository is required")
	}
	if deps.Hasher == nil {
		return nil, errors.New("manufacturer service: password hasher is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	tempPassword := deps.TemporaryPassword
	if tempPassword == nil {
		tempPassword = security.TemporaryPassword
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

	return &manufacturerService{
		manufacturers: deps.Manufacturers,
		accounts:      deps.Accounts,
		unitOfWork:    unit,
		hasher:        deps.Hasher,
		audit:         deps.Audit,
		tempPassword:  tempPassword,
		clock:         func() time.Time { return clock().UTC() },
		newID:         idGen,
		logger:        logger,
	}, nil
}

func (s *manufacturerService) Register(ctx context.Context, cmd RegisterManufacturerCommand) (Manufacturer, error) {
	company := textutil.PlainText(cmd.CompanyName)
	contact := textutil.PlainText(cmd.ContactPerson)
	email := strings.TrimSpace(cmd.Email)
	username := strings.TrimSpace(cmd.Username)

	switch {
	case company == "":
		return Manufacturer{}, fmt.Errorf("%w: company name is required", ErrManufacturerInvalidInput)
	case contact == "":
		return Manufacturer{}, fmt.Errorf("%w: contact person is required", ErrManufacturerInvalidInput)
	case email == "" || !strings.Contains(email, "@"):
		return Manufacturer{}, fmt.Errorf("%w: a valid email is required", ErrManufacturerInvalidInput)
	case len(cmd.Password) < minPasswordLength:
		return Manufacturer{}, fmt.Errorf("%w: password must be at least %d characters", ErrManufacturerInvalidInput, minPasswordLength)
	case cmd.Password != cmd.ConfirmPassword:
		return Manufacturer{}, fmt.Errorf("%w: password and confirm password do not match", ErrManufacturerInvalidInput)
	}

	hash, err := s.hasher.Hash(cmd.Password)
	if err != nil {
		return Manufacturer{}, fmt.Errorf("manufacturer: hash password: %w", err)
	}
	first, last := textutil.SplitName(contact)

	var created Manufacturer
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.manufacturers.FindByEmail(txCtx, email); err == nil {
			return fmt.Errorf("%w: manufacturer with email %s already exists", ErrManufacturerConflict, email)
		} else if !repositories.IsNotFound(err) {
			return s.mapRepositoryError(err)
		}
		taken, err := s.accounts.ExistsByEmail(txCtx, email)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if taken {
			return fmt.Errorf("%w: account with email %s already exists", ErrManufacturerConflict, email)
		}

		login := username
		if login == "" {
			login, err = s.generateUsername(txCtx, company)
			if err != nil {
				return err
			}
		} else {
			taken, err := s.accounts.ExistsByUsername(txCtx, login)
			if err != nil {
				return s.mapRepositoryError(err)
			}
			if taken {
				return fmt.Errorf("%w: username %s is already taken", ErrManufacturerConflict, login)
			}
		}

		now := s.clock()
		account := Account{
			ID:           s.newID(),
			Username:     login,
			Email:        email,
			PasswordHash: hash,
			FirstName:    first,
			LastName:     last,
			Role:         domain.RoleManufacturer,
			Active:       true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		manufacturer := Manufacturer{
			ID:              s.newID(),
			CompanyName:     company,
			ContactPerson:   contact,
			Email:           email,
			PhoneNumber:     strings.TrimSpace(cmd.PhoneNumber),
			Address:         cleanAddress(cmd.Address),
			GSTNumber:       strings.ToUpper(strings.TrimSpace(cmd.GSTNumber)),
			PANNumber:       strings.ToUpper(strings.TrimSpace(cmd.PANNumber)),
			LicenseNumber:   strings.TrimSpace(cmd.LicenseNumber),
			LicenseValidity: cmd.LicenseValidity,
			Status:          domain.ManufacturerStatusPending,
			Verified:        false,
			AccountID:       account.ID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.accounts.Insert(txCtx, account); err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.manufacturers.Insert(txCtx, manufacturer); err != nil {
			return s.mapRepositoryError(err)
		}
		created = manufacturer
		return nil
	})
	if err != nil {
		return Manufacturer{}, err
	}

	s.logger(ctx, "manufacturer.registered", map[string]any{
		"manufacturerId": created.ID,
		"accountId":      created.AccountID,
		"status":         string(created.Status),
	})
	return created, nil
}

// generateUsername derives a lowercase alphanumeric login from the company name and appends a counter
// until it is free.
func (s *manufacturerService) generateUsername(ctx context.Context, company string) (string, error) {
	var b strings.Builder
	for _, r := range strings.ToLower(company) {
		if b.Len() == generatedUsernameLimit {
			break
		}
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	base := b.String()
	if base == "" {
		base = "maker"
	}
	candidate := base
	for i := 1; i <= usernameAttempts; i++ {
		taken, err := s.accounts.ExistsByUsername(ctx, candidate)
		if err != nil {
			return "", s.mapRepositoryError(err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + strconv.Itoa(i)
	}
	return "", fmt.Errorf("%w: no free username for %q", ErrManufacturerConflict, company)
}

func (s *manufacturerService) Verify(ctx context.Context, cmd VerifyManufacturerCommand) (Manufacturer, error) {
	manufacturerID := strings.TrimSpace(cmd.ManufacturerID)
	if manufacturerID == "" {
		return Manufacturer{}, fmt.Errorf("%w: manufacturer id is required", ErrManufacturerInvalidInput)
	}
	status := domain.ManufacturerStatus(strings.ToUpper(strings.TrimSpace(string(cmd.Status))))
	effect, ok := verificationAccountEffects[status]
	if !ok {
		return Manufacturer{}, fmt.Errorf("%w: unknown status %q", ErrManufacturerInvalidInput, cmd.Status)
	}

	var (
		verified       Manufacturer
		accountActive  *bool
		accountMissing bool
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		accountActive = nil
		accountMissing = false
		manufacturer, err := s.manufacturers.FindByID(txCtx, manufacturerID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		var account Account
		applyEffect := effect != accountNoChange
		if applyEffect {
			account, err = s.accounts.FindByID(txCtx, manufacturer.AccountID)
			switch {
			case repositories.IsNotFound(err):
				applyEffect = false
				accountMissing = true
			case err != nil:
				return s.mapRepositoryError(err)
			}
		}

		now := s.clock()
		manufacturer.Status = status
		manufacturer.Verified = status.Verified()
		manufacturer.VerificationNotes = textutil.PlainText(cmd.Notes)
		manufacturer.VerifiedBy = strings.TrimSpace(cmd.AdminID)
		manufacturer.VerifiedAt = &now
		manufacturer.UpdatedAt = now
		if err := s.manufacturers.Update(txCtx, manufacturer); err != nil {
			return s.mapRepositoryError(err)
		}

		if applyEffect {
			active := effect == accountActivate
			if account.Active != active {
				account.Active = active
				account.UpdatedAt = now
				if err := s.accounts.Update(txCtx, account); err != nil {
					return s.mapRepositoryError(err)
				}
			}
			accountActive = &active
		}
		verified = manufacturer
		return nil
	})
	if err != nil {
		return Manufacturer{}, err
	}

	metadata := map[string]any{
		"status":   string(verified.Status),
		"verified": verified.Verified,
	}
	if accountActive != nil {
		metadata["accountActive"] = *accountActive
	}
	if accountMissing {
		s.logger(ctx, "manufacturer.verify.account_missing", map[string]any{
			"manufacturerId": verified.ID,
			"accountId":      verified.AccountID,
			"status":         string(verified.Status),
		})
	}
	s.logger(ctx, "manufacturer.verified", map[string]any{
		"manufacturerId": verified.ID,
		"status":         string(verified.Status),
		"adminId":        verified.VerifiedBy,
	})
	s.recordAudit(ctx, cmd.AdminID, "manufacturer.verify", verified.ID, metadata, nil)
	return verified, nil
}

func (s *manufacturerService) Delete(ctx context.Context, cmd DeleteManufacturerCommand) error {
	manufacturerID := strings.TrimSpace(cmd.ManufacturerID)
	if manufacturerID == "" {
		return fmt.Errorf("%w: manufacturer id is required", ErrManufacturerInvalidInput)
	}

	var (
		deleted        Manufacturer
		accountRemoved bool
	)
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		manufacturer, err := s.manufacturers.FindByID(txCtx, manufacturerID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		_, err = s.accounts.FindByID(txCtx, manufacturer.AccountID)
		accountRemoved = err == nil
		if err != nil && !repositories.IsNotFound(err) {
			return s.mapRepositoryError(err)
		}

		if err := s.manufacturers.Delete(txCtx, manufacturer.ID); err != nil {
			return s.mapRepositoryError(err)
		}
		if accountRemoved {
			if err := s.accounts.Delete(txCtx, manufacturer.AccountID); err != nil {
				return s.mapRepositoryError(err)
			}
		}
		deleted = manufacturer
		return nil
	})
	if err != nil {
		return err
	}

	s.logger(ctx, "manufacturer.delete.cascade", map[string]any{
		"manufacturerId": deleted.ID,
		"company":        deleted.CompanyName,
		"accountId":      deleted.AccountID,
		"accountDeleted": accountRemoved,
		"actorId":        cmd.ActorID,
	})
	s.recordAudit(ctx, cmd.ActorID, "manufacturer.delete", deleted.ID, map[string]any{
		"company":   deleted.CompanyName,
		"accountId": deleted.AccountID,
	}, nil)
	return nil
}

func (s *manufacturerService) ResetPassword(ctx context.Context, cmd ResetPasswordCommand) (TemporaryCredential, error) {
	email := strings.TrimSpace(cmd.Email)
	if email == "" {
		return TemporaryCredential{}, fmt.Errorf("%w: email is required", ErrManufacturerInvalidInput)
	}

	password, err := s.tempPassword()
	if err != nil {
		return TemporaryCredential{}, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return TemporaryCredential{}, fmt.Errorf("manufacturer: hash password: %w", err)
	}

	var account Account
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		found, err := s.accounts.FindByEmail(txCtx, email)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if found.Role != domain.RoleManufacturer {
			return fmt.Errorf("%w: account is not a manufacturer account", ErrManufacturerInvalidState)
		}
		found.PasswordHash = hash
		found.UpdatedAt = s.clock()
		if err := s.accounts.Update(txCtx, found); err != nil {
			return s.mapRepositoryError(err)
		}
		account = found
		return nil
	})
	if err != nil {
		return TemporaryCredential{}, err
	}

	s.logger(ctx, "manufacturer.password.reset", map[string]any{
		"accountId": account.ID,
		"actorId":   cmd.ActorID,
	})
	s.recordAudit(ctx, cmd.ActorID, "manufacturer.password.reset", account.ID, map[string]any{
		"email": account.Email,
	}, []string{"email"})
	return TemporaryCredential{AccountID: account.ID, Username: account.Username, Password: password}, nil
}

func (s *manufacturerService) Get(ctx context.Context, manufacturerID string) (Manufacturer, error) {
	manufacturerID = strings.TrimSpace(manufacturerID)
	if manufacturerID == "" {
		return Manufacturer{}, fmt.Errorf("%w: manufacturer id is required", ErrManufacturerInvalidInput)
	}
	manufacturer, err := s.manufacturers.FindByID(ctx, manufacturerID)
	if err != nil {
		return Manufacturer{}, s.mapRepositoryError(err)
	}
	return manufacturer, nil
}

func (s *manufacturerService) GetByAccount(ctx context.Context, accountID string) (Manufacturer, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return Manufacturer{}, fmt.Errorf("%w: account id is required", ErrManufacturerInvalidInput)
	}
	manufacturer, err := s.manufacturers.FindByAccountID(ctx, accountID)
	if err != nil {
		return Manufacturer{}, s.mapRepositoryError(err)
	}
	return manufacturer, nil
}

func (s *manufacturerService) List(ctx context.Context, filter ManufacturerListFilter) (domain.CursorPage[Manufacturer], error) {
	statuses := make([]domain.ManufacturerStatus, 0, len(filter.Status))
	for _, status := range filter.Status {
		normalized := domain.ManufacturerStatus(strings.ToUpper(strings.TrimSpace(string(status))))
		if !normalized.Valid() {
			return domain.CursorPage[Manufacturer]{}, fmt.Errorf("%w: unknown status %q", ErrManufacturerInvalidInput, status)
		}
		statuses = append(statuses, normalized)
	}
	filter.Status = statuses
	filter.City = strings.TrimSpace(filter.City)
	filter.State = strings.TrimSpace(filter.State)
	filter.CompanyQuery = strings.TrimSpace(filter.CompanyQuery)

	page, err := s.manufacturers.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Manufacturer]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *manufacturerService) UpdateProfile(ctx context.Context, cmd UpdateManufacturerProfileCommand) (Manufacturer, error) {
	manufacturerID := strings.TrimSpace(cmd.ManufacturerID)
	if manufacturerID == "" {
		return Manufacturer{}, fmt.Errorf("%w: manufacturer id is required", ErrManufacturerInvalidInput)
	}

	var updated Manufacturer
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		manufacturer, err := s.manufacturers.FindByID(txCtx, manufacturerID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if cmd.CompanyName != nil {
			company := textutil.PlainText(*cmd.CompanyName)
			if company == "" {
				return fmt.Errorf("%w: company name must not be empty", ErrManufacturerInvalidInput)
			}
			manufacturer.CompanyName = company
		}
		if cmd.ContactPerson != nil {
			contact := textutil.PlainText(*cmd.ContactPerson)
			if contact == "" {
				return fmt.Errorf("%w: contact person must not be empty", ErrManufacturerInvalidInput)
			}
			manufacturer.ContactPerson = contact
		}
		if cmd.PhoneNumber != nil {
			manufacturer.PhoneNumber = strings.TrimSpace(*cmd.PhoneNumber)
		}
		if cmd.Address != nil {
			manufacturer.Address = cleanAddress(*cmd.Address)
		}
		if cmd.GSTNumber != nil {
			manufacturer.GSTNumber = strings.ToUpper(strings.TrimSpace(*cmd.GSTNumber))
		}
		if cmd.PANNumber != nil {
			manufacturer.PANNumber = strings.ToUpper(strings.TrimSpace(*cmd.PANNumber))
		}
		if cmd.LicenseNumber != nil {
			manufacturer.LicenseNumber = strings.TrimSpace(*cmd.LicenseNumber)
		}
		if cmd.LicenseValidity != nil {
			validity := cmd.LicenseValidity.UTC()
			manufacturer.LicenseValidity = &validity
		}
		manufacturer.UpdatedAt = s.clock()
		if err := s.manufacturers.Update(txCtx, manufacturer); err != nil {
			return s.mapRepositoryError(err)
		}
		updated = manufacturer
		return nil
	})
	if err != nil {
		return Manufacturer{}, err
	}
	return updated, nil
}

func (s *manufacturerService) Stats(ctx context.Context) (ManufacturerStats, error) {
	counts, err := s.manufacturers.CountByStatus(ctx)
	if err != nil {
		return ManufacturerStats{}, s.mapRepositoryError(err)
	}
	stats := ManufacturerStats{CountByStatus: make(map[ManufacturerStatus]int, len(domain.ManufacturerStatuses))}
	for _, status := range domain.ManufacturerStatuses {
		n := counts[status]
		stats.CountByStatus[status] = n
		stats.Total += n
		if status.Verified() {
			stats.Verified += n
		} else {
			stats.Unverified += n
		}
	}
	return stats, nil
}

func (s *manufacturerService) recordAudit(ctx context.Context, actor, action, target string, metadata map[string]any, sensitive []string) {
	if s.audit == nil {
		return
	}
	ref := "manufacturers/" + target
	if strings.HasPrefix(action, "manufacturer.password") {
		ref = "accounts/" + target
	}
	s.audit.Record(ctx, AuditLogRecord{
		Actor:                 actor,
		Action:                action,
		TargetRef:             ref,
		Metadata:              metadata,
		SensitiveMetadataKeys: sensitive,
		OccurredAt:            s.clock(),
	})
}

func (s *manufacturerService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrManufacturerNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrManufacturerConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrManufacturerUnavailable, err)
		}
	}
	return err
}

func (s *manufacturerService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	return s.unitOfWork.RunInTx(ctx, fn)
}

func cleanAddress(addr PostalAddress) PostalAddress {
	return PostalAddress{
		Line:    textutil.PlainText(addr.Line),
		City:    strings.TrimSpace(addr.City),
		State:   strings.TrimSpace(addr.State),
		Pincode: strings.TrimSpace(addr.Pincode),
		Country: strings.TrimSpace(addr.Country),
	}
}
