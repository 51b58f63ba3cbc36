package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/crackersbazaar/api/internal/domain"
	"github.com/crackersbazaar/api/internal/repositories"
	"github.com/crackersbazaar/api/internal/repositories/memory"
)

var manufacturerTestNow = time.Date(2024, 11, 2, 9, 0, 0, 0, time.UTC)

type prefixHasher struct{}

func (prefixHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func (prefixHasher) Compare(hash, password string) error {
	if hash != "hashed:"+password {
		return errors.New("mismatch")
	}
	return nil
}

type failingManufacturerRepo struct {
	repositories.ManufacturerRepository
	insertErr error
}

func (f failingManufacturerRepo) Insert(context.Context, domain.Manufacturer) error {
	return f.insertErr
}

type logLine struct {
	event  string
	fields map[string]any
}

type manufacturerFixture struct {
	store *memory.Store
	svc   ManufacturerService
	logs  *[]logLine
}

func newManufacturerFixture(t *testing.T, mutate func(*ManufacturerServiceDeps)) manufacturerFixture {
	t.Helper()
	store := memory.NewStore()
	audit, err := NewAuditLogService(AuditLogServiceDeps{Repository: store.AuditLogs()})
	if err != nil {
		t.Fatalf("audit service: %v", err)
	}
	var logs []logLine
	deps := ManufacturerServiceDeps{
		Manufacturers:     store.Manufacturers(),
		Accounts:          store.Accounts(),
		UnitOfWork:        store,
		Hasher:            prefixHasher{},
		Audit:             audit,
		TemporaryPassword: func() (string, error) { return "TempPassAb12Cd34", nil },
		Clock:             func() time.Time { return manufacturerTestNow },
		Logger: func(_ context.Context, event string, fields map[string]any) {
			logs = append(logs, logLine{event: event, fields: fields})
		},
	}
	if mutate != nil {
		mutate(&deps)
	}
	svc, err := NewManufacturerService(deps)
	if err != nil {
		t.Fatalf("new manufacturer service: %v", err)
	}
	return manufacturerFixture{store: store, svc: svc, logs: &logs}
}

func registration(company, email string) RegisterManufacturerCommand {
	return RegisterManufacturerCommand{
		CompanyName:     company,
		ContactPerson:   "Arun Kumar Raja",
		Email:           email,
		PhoneNumber:     "9876543210",
		Address:         PostalAddress{Line: "12 Main Road", City: "Sivakasi", State: "Tamil Nadu", Pincode: "626123", Country: "India"},
		GSTNumber:       "33abcde1234f1z5",
		Password:        "crackers123",
		ConfirmPassword: "crackers123",
	}
}

func (f manufacturerFixture) register(t *testing.T, cmd RegisterManufacturerCommand) Manufacturer {
	t.Helper()
	m, err := f.svc.Register(context.Background(), cmd)
	if err != nil {
		t.Fatalf("register %s: %v", cmd.CompanyName, err)
	}
	return m
}

func (f manufacturerFixture) account(t *testing.T, accountID string) Account {
	t.Helper()
	a, err := f.store.Accounts().FindByID(context.Background(), accountID)
	if err != nil {
		t.Fatalf("find account %s: %v", accountID, err)
	}
	return a
}

func TestRegisterManufacturerCreatesPendingProfileAndActiveAccount(t *testing.T) {
	f := newManufacturerFixture(t, nil)

	m := f.register(t, registration("Sri Kaliswari Fireworks", "sales@kaliswari.example"))
	if m.Status != domain.ManufacturerStatusPending || m.Verified {
		t.Fatalf("expected pending unverified manufacturer, got %s verified=%v", m.Status, m.Verified)
	}
	if m.GSTNumber != "33ABCDE1234F1Z5" {
		t.Fatalf("expected upper-cased GST number, got %q", m.GSTNumber)
	}

	acc := f.account(t, m.AccountID)
	if acc.Role != domain.RoleManufacturer || !acc.Active {
		t.Fatalf("expected active manufacturer account, got role=%s active=%v", acc.Role, acc.Active)
	}
	if acc.Username != "srikaliswa" {
		t.Fatalf("expected username derived from company name, got %q", acc.Username)
	}
	if acc.FirstName != "Arun" || acc.LastName != "Kumar Raja" {
		t.Fatalf("unexpected name split %q / %q", acc.FirstName, acc.LastName)
	}
	if acc.PasswordHash != "hashed:crackers123" {
		t.Fatalf("expected hashed password, got %q", acc.PasswordHash)
	}

	again := registration("Sri Kaliswari Fireworks Unit 2", "unit2@kaliswari.example")
	second := f.register(t, again)
	if got := f.account(t, second.AccountID).Username; got != "srikaliswa1" {
		t.Fatalf("expected suffixed username, got %q", got)
	}
}

func TestRegisterManufacturerRejectsInvalidInput(t *testing.T) {
	f := newManufacturerFixture(t, nil)
	cases := map[string]func(*RegisterManufacturerCommand){
		"missing company":   func(c *RegisterManufacturerCommand) { c.CompanyName = "  " },
		"missing contact":   func(c *RegisterManufacturerCommand) { c.ContactPerson = "" },
		"bad email":         func(c *RegisterManufacturerCommand) { c.Email = "not-an-email" },
		"short password":    func(c *RegisterManufacturerCommand) { c.Password, c.ConfirmPassword = "short", "short" },
		"password mismatch": func(c *RegisterManufacturerCommand) { c.ConfirmPassword = "crackers124" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cmd := registration("Standard Fireworks", "info@standard.example")
			mutate(&cmd)
			_, err := f.svc.Register(context.Background(), cmd)
			if !errors.Is(err, ErrManufacturerInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestRegisterManufacturerDuplicatesLeaveNoOrphanAccount(t *testing.T) {
	f := newManufacturerFixture(t, nil)
	ctx := context.Background()
	f.register(t, registration("Ayyan Fireworks", "hello@ayyan.example"))

	dupEmail := registration("Ayyan Crackers", "HELLO@ayyan.example")
	if _, err := f.svc.Register(ctx, dupEmail); !errors.Is(err, ErrManufacturerConflict) {
		t.Fatalf("expected conflict for duplicate email, got %v", err)
	}

	dupUsername := registration("Other Co", "other@example.com")
	dupUsername.Username = "ayyanfirew"
	if _, err := f.svc.Register(ctx, dupUsername); !errors.Is(err, ErrManufacturerConflict) {
		t.Fatalf("expected conflict for duplicate username, got %v", err)
	}
	if exists, _ := f.store.Accounts().ExistsByEmail(ctx, "other@example.com"); exists {
		t.Fatal("account created despite username conflict")
	}

	failing := newManufacturerFixture(t, func(deps *ManufacturerServiceDeps) {
		deps.Manufacturers = failingManufacturerRepo{
			ManufacturerRepository: deps.Manufacturers,
			insertErr:              repositories.NewUnavailableError("manufacturers.insert", errors.New("boom")),
		}
	})
	_, err := failing.svc.Register(ctx, registration("Vanaja Fireworks", "vanaja@example.com"))
	if !errors.Is(err, ErrManufacturerUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if exists, _ := failing.store.Accounts().ExistsByEmail(ctx, "vanaja@example.com"); exists {
		t.Fatal("account survived a failed manufacturer insert")
	}
}

func TestVerifyAppliesAccountEffect(t *testing.T) {
	cases := []struct {
		status       domain.ManufacturerStatus
		startActive  bool
		wantActive   bool
		wantVerified bool
	}{
		{domain.ManufacturerStatusApproved, false, true, true},
		{domain.ManufacturerStatusActive, false, true, true},
		{domain.ManufacturerStatusRejected, true, false, false},
		{domain.ManufacturerStatusSuspended, true, false, false},
		{domain.ManufacturerStatusPending, false, false, false},
		{domain.ManufacturerStatusInactive, true, true, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			f := newManufacturerFixture(t, nil)
			ctx := context.Background()
			m := f.register(t, registration("Cock Brand", "cock@example.com"))
			acc := f.account(t, m.AccountID)
			acc.Active = tc.startActive
			if err := f.store.Accounts().Update(ctx, acc); err != nil {
				t.Fatalf("seed account state: %v", err)
			}

			verified, err := f.svc.Verify(ctx, VerifyManufacturerCommand{
				ManufacturerID: m.ID,
				Status:         domain.ManufacturerStatus(strings.ToLower(string(tc.status))),
				Notes:          "<b>documents checked</b>",
				AdminID:        "admin-1",
			})
			if err != nil {
				t.Fatalf("verify: %v", err)
			}
			if verified.Status != tc.status || verified.Verified != tc.wantVerified {
				t.Fatalf("got status %s verified=%v", verified.Status, verified.Verified)
			}
			if verified.VerifiedBy != "admin-1" || verified.VerifiedAt == nil || !verified.VerifiedAt.Equal(manufacturerTestNow) {
				t.Fatalf("verification metadata not recorded: %+v", verified)
			}
			if verified.VerificationNotes != "documents checked" {
				t.Fatalf("expected sanitised notes, got %q", verified.VerificationNotes)
			}
			if got := f.account(t, m.AccountID).Active; got != tc.wantActive {
				t.Fatalf("account active = %v, want %v", got, tc.wantActive)
			}
		})
	}
}

func TestVerifyRejectsUnknownStatus(t *testing.T) {
	f := newManufacturerFixture(t, nil)
	ctx := context.Background()
	m := f.register(t, registration("Kaliswari", "k@example.com"))

	if _, err := f.svc.Verify(ctx, VerifyManufacturerCommand{ManufacturerID: m.ID, Status: "BLOCKED"}); !errors.Is(err, ErrManufacturerInvalidInput) {
		t.Fatalf("expected invalid input for unknown status, got %v", err)
	}
	if _, err := f.svc.Verify(ctx, VerifyManufacturerCommand{ManufacturerID: "missing", Status: "APPROVED"}); !errors.Is(err, ErrManufacturerNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestVerifyWithMissingAccountSavesStatus(t *testing.T) {
	f := newManufacturerFixture(t, nil)
	ctx := context.Background()
	m := f.register(t, registration("Kaliswari", "k@example.com"))

	if err := f.store.Accounts().Delete(ctx, m.AccountID); err != nil {
		t.Fatalf("delete account: %v", err)
	}
	approved, err := f.svc.Verify(ctx, VerifyManufacturerCommand{ManufacturerID: m.ID, Status: "APPROVED", AdminID: "admin-1"})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if approved.Status != domain.ManufacturerStatusApproved || !approved.Verified {
		t.Fatalf("expected approved and verified, got %s verified=%v", approved.Status, approved.Verified)
	}
	stored, err := f.svc.Get(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != domain.ManufacturerStatusApproved {
		t.Fatalf("expected stored status APPROVED, got %s", stored.Status)
	}

	var missing *logLine
	for i := range *f.logs {
		if (*f.logs)[i].event == "manufacturer.verify.account_missing" {
			missing = &(*f.logs)[i]
		}
	}
	if missing == nil {
		t.Fatal("expected account_missing log")
	}
	if missing.fields["accountId"] != m.AccountID {
		t.Fatalf("unexpected log fields %v", missing.fields)
	}
	if _, err := f.store.Accounts().FindByID(ctx, m.AccountID); !repositories.IsNotFound(err) {
		t.Fatalf("verify must not recreate the account, got %v", err)
	}
}

func TestDeleteManufacturerCascadesToAccount(t *testing.T) {
	f := newManufacturerFixture(t, nil)
	ctx := context.Background()
	m := f.register(t, registration("Anil Fireworks", "anil@example.com"))

	if err := f.svc.Delete(ctx, DeleteManufacturerCommand{ManufacturerID: m.ID, ActorID: "admin-9"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.svc.Get(ctx, m.ID); !errors.Is(err, ErrManufacturerNotFound) {
		t.Fatalf("expected manufacturer gone, got %v", err)
	}
	if _, err := f.store.Accounts().FindByID(ctx, m.AccountID); !repositories.IsNotFound(err) {
		t.Fatalf("expected account gone, got %v", err)
	}

	var cascade *logLine
	for i := range *f.logs {
		if (*f.logs)[i].event == "manufacturer.delete.cascade" {
			cascade = &(*f.logs)[i]
		}
	}
	if cascade == nil {
		t.Fatal("expected cascade log")
	}
	if cascade.fields["accountId"] != m.AccountID || cascade.fields["actorId"] != "admin-9" {
		t.Fatalf("unexpected cascade fields %v", cascade.fields)
	}

	if err := f.svc.Delete(ctx, DeleteManufacturerCommand{ManufacturerID: m.ID}); !errors.Is(err, ErrManufacturerNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestDeleteManufacturerToleratesMissingAccount(t *testing.T) {
	f := newManufacturerFixture(t, nil)
	ctx := context.Background()
	m := f.register(t, registration("Orphan Fireworks", "orphan@example.com"))
	if err := f.store.Accounts().Delete(ctx, m.AccountID); err != nil {
		t.Fatalf("delete account: %v", err)
	}
	if err := f.svc.Delete(ctx, DeleteManufacturerCommand{ManufacturerID: m.ID}); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestResetPasswordIssuesTemporaryCredential(t *testing.T) {
	f := newManufacturerFixture(t, nil)
	ctx := context.Background()
	m := f.register(t, registration("Ramesh Fireworks", "ramesh@example.com"))

	cred, err := f.svc.ResetPassword(ctx, ResetPasswordCommand{Email: "Ramesh@Example.com", ActorID: "admin-1"})
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if cred.Password != "TempPassAb12Cd34" || cred.AccountID != m.AccountID {
		t.Fatalf("unexpected credential %+v", cred)
	}
	if got := f.account(t, m.AccountID).PasswordHash; got != "hashed:TempPassAb12Cd34" {
		t.Fatalf("password hash not replaced: %q", got)
	}

	for _, line := range *f.logs {
		for _, v := range line.fields {
			if s, ok := v.(string); ok && strings.Contains(s, "TempPass") {
				t.Fatalf("temporary password leaked into log %s", line.event)
			}
		}
	}
	entries := f.store.AuditEntries()
	last := entries[len(entries)-1]
	if last.Action != "manufacturer.password.reset" {
		t.Fatalf("expected reset audit entry, got %s", last.Action)
	}
	if email, _ := last.Metadata["email"].(string); !strings.HasPrefix(email, "sha256:") {
		t.Fatalf("expected hashed email in audit metadata, got %v", last.Metadata["email"])
	}

	if _, err := f.svc.ResetPassword(ctx, ResetPasswordCommand{Email: "nobody@example.com"}); !errors.Is(err, ErrManufacturerNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	retailer := domain.Account{ID: "acc-r", Username: "shop", Email: "shop@example.com", Role: domain.RoleRetailer, Active: true}
	if err := f.store.Accounts().Insert(ctx, retailer); err != nil {
		t.Fatalf("seed retailer: %v", err)
	}
	if _, err := f.svc.ResetPassword(ctx, ResetPasswordCommand{Email: "shop@example.com"}); !errors.Is(err, ErrManufacturerInvalidState) {
		t.Fatalf("expected invalid state for retailer account, got %v", err)
	}
}

func TestManufacturerListProfileAndStats(t *testing.T) {
	f := newManufacturerFixture(t, nil)
	ctx := context.Background()
	a := f.register(t, registration("Alpha Fireworks", "alpha@example.com"))
	b := f.register(t, registration("Beta Fireworks", "beta@example.com"))
	f.register(t, registration("Gamma Fireworks", "gamma@example.com"))

	if _, err := f.svc.Verify(ctx, VerifyManufacturerCommand{ManufacturerID: a.ID, Status: "APPROVED"}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := f.svc.Verify(ctx, VerifyManufacturerCommand{ManufacturerID: b.ID, Status: "REJECTED"}); err != nil {
		t.Fatalf("reject: %v", err)
	}

	page, err := f.svc.List(ctx, ManufacturerListFilter{Status: []domain.ManufacturerStatus{"pending"}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].CompanyName != "Gamma Fireworks" {
		t.Fatalf("unexpected pending page %+v", page.Items)
	}
	if _, err := f.svc.List(ctx, ManufacturerListFilter{Status: []domain.ManufacturerStatus{"LOST"}}); !errors.Is(err, ErrManufacturerInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	stats, err := f.svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Verified != 1 || stats.Unverified != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.CountByStatus[domain.ManufacturerStatusSuspended] != 0 || len(stats.CountByStatus) != len(domain.ManufacturerStatuses) {
		t.Fatalf("expected every status present, got %v", stats.CountByStatus)
	}

	company := "Alpha Fireworks Pvt Ltd"
	empty := " "
	updated, err := f.svc.UpdateProfile(ctx, UpdateManufacturerProfileCommand{ManufacturerID: a.ID, CompanyName: &company})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.CompanyName != company || updated.Status != domain.ManufacturerStatusApproved {
		t.Fatalf("unexpected profile %+v", updated)
	}
	if _, err := f.svc.UpdateProfile(ctx, UpdateManufacturerProfileCommand{ManufacturerID: a.ID, ContactPerson: &empty}); !errors.Is(err, ErrManufacturerInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	byAccount, err := f.svc.GetByAccount(ctx, a.AccountID)
	if err != nil || byAccount.ID != a.ID {
		t.Fatalf("get by account: %+v %v", byAccount, err)
	}
}
