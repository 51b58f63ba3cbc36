package security

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher(t *testing.T) {
	hasher := NewBcryptHasher(bcrypt.MinCost)

	hash, err := hasher.Hash("s3cret-pass")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if hash == "s3cret-pass" {
		t.Fatal("hash must not equal the plain password")
	}
	if err := hasher.Compare(hash, "s3cret-pass"); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if err := hasher.Compare(hash, "wrong"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected ErrPasswordMismatch, got %v", err)
	}
}

func TestTemporaryPassword(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 50; i++ {
		pw, err := TemporaryPassword()
		if err != nil {
			t.Fatalf("TemporaryPassword returned error: %v", err)
		}
		if !strings.HasPrefix(pw, "TempPass") || len(pw) != len("TempPass")+8 {
			t.Fatalf("unexpected password shape %q", pw)
		}
		for _, r := range strings.TrimPrefix(pw, "TempPass") {
			if !strings.ContainsRune(tempPasswordAlphabet, r) {
				t.Fatalf("unexpected character %q in %q", r, pw)
			}
		}
		seen[pw] = struct{}{}
	}
	if len(seen) < 45 {
		t.Fatalf("expected mostly unique passwords, got %d distinct", len(seen))
	}
}
