package pagination

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestFromRequest(t *testing.T) {
	token := EncodeToken(Cursor{CreatedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), ID: "ord-9"})

	cases := []struct {
		name     string
		query    string
		wantSize int
		wantErr  error
	}{
		{name: "defaults", query: "", wantSize: DefaultPageSize},
		{name: "explicit", query: "?pageSize=5", wantSize: 5},
		{name: "clamped", query: "?pageSize=1000", wantSize: MaxPageSize},
		{name: "with token", query: "?pageSize=10&pageToken=" + token, wantSize: 10},
		{name: "negative size", query: "?pageSize=-1", wantErr: ErrInvalidPageSize},
		{name: "non numeric size", query: "?pageSize=ten", wantErr: ErrInvalidPageSize},
		{name: "garbage token", query: "?pageToken=%%%", wantErr: ErrInvalidPageToken},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/orders"+tc.query, nil)
			got, err := FromRequest(req)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.PageSize != tc.wantSize {
				t.Fatalf("expected page size %d, got %d", tc.wantSize, got.PageSize)
			}
		})
	}
}

func TestTokenRoundTripAndOrdering(t *testing.T) {
	base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	cursor := Cursor{CreatedAt: base, ID: "m"}

	decoded, err := DecodeToken(EncodeToken(cursor))
	if err != nil {
		t.Fatalf("DecodeToken returned error: %v", err)
	}
	if diff := cmp.Diff(cursor, decoded); diff != "" {
		t.Fatalf("cursor mismatch (-want +got):\n%s", diff)
	}

	if !cursor.After(base.Add(-time.Second), "z") {
		t.Fatal("older rows should follow the cursor")
	}
	if !cursor.After(base, "a") {
		t.Fatal("same timestamp with smaller id should follow the cursor")
	}
	if cursor.After(base, "m") || cursor.After(base.Add(time.Second), "a") {
		t.Fatal("cursor row and newer rows must not follow the cursor")
	}
	if EncodeToken(Cursor{}) != "" {
		t.Fatal("zero cursor should encode to an empty token")
	}
}
