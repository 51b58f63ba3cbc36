package storage

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"
)

type fakeSigner struct {
	email    string
	payloads int
}

func (f *fakeSigner) Email() string { return f.email }

func (f *fakeSigner) SignBytes(_ context.Context, _ []byte) ([]byte, error) {
	f.payloads++
	return []byte("signature"), nil
}

func newTestUploader(t *testing.T, signer Signer) *Uploader {
	t.Helper()
	now := time.Date(2024, 10, 20, 9, 0, 0, 0, time.UTC)
	uploader, err := NewUploader(signer, UploaderConfig{
		Bucket:   "bazaar-images",
		TTL:      10 * time.Minute,
		MaxBytes: 1 << 20,
	}, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewUploader: %v", err)
	}
	return uploader
}

func TestUploader_SignUpload(t *testing.T) {
	signer := &fakeSigner{email: "uploader@bazaar.iam.gserviceaccount.com"}
	uploader := newTestUploader(t, signer)

	res, err := uploader.SignUpload(context.Background(), UploadRequest{
		Object:      "products/mf-1/prod-1/01j-flower-pot.jpg",
		ContentType: "Image/JPEG",
		Size:        2048,
	})
	if err != nil {
		t.Fatalf("SignUpload: %v", err)
	}
	if signer.payloads != 1 {
		t.Fatalf("expected one signing call, got %d", signer.payloads)
	}
	if res.Method != "PUT" {
		t.Fatalf("unexpected method %s", res.Method)
	}
	if want := time.Date(2024, 10, 20, 9, 10, 0, 0, time.UTC); !res.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %s, got %s", want, res.ExpiresAt)
	}
	if res.Headers["Content-Type"] != "image/jpeg" || res.Headers["x-goog-content-length-range"] != "0,1048576" {
		t.Fatalf("unexpected headers %v", res.Headers)
	}
	parsed, err := url.Parse(res.URL)
	if err != nil {
		t.Fatalf("signed url does not parse: %v", err)
	}
	if !strings.Contains(parsed.Path, "bazaar-images") || parsed.Query().Get("X-Goog-Signature") == "" {
		t.Fatalf("unexpected signed url %s", res.URL)
	}
	if res.PublicURL != "https://storage.googleapis.com/bazaar-images/products/mf-1/prod-1/01j-flower-pot.jpg" {
		t.Fatalf("unexpected public url %s", res.PublicURL)
	}
}

func TestUploader_Rejections(t *testing.T) {
	uploader := newTestUploader(t, &fakeSigner{email: "uploader@bazaar.iam.gserviceaccount.com"})

	_, err := uploader.SignUpload(context.Background(), UploadRequest{Object: "a.gif", ContentType: "image/gif"})
	if !errors.Is(err, ErrContentTypeNotAllowed) {
		t.Fatalf("expected content type rejection, got %v", err)
	}
	_, err = uploader.SignUpload(context.Background(), UploadRequest{Object: "a.png", ContentType: "image/png", Size: 2 << 20})
	if !errors.Is(err, ErrObjectTooLarge) {
		t.Fatalf("expected size rejection, got %v", err)
	}
	if _, err := uploader.SignUpload(context.Background(), UploadRequest{ContentType: "image/png"}); err == nil {
		t.Fatalf("expected error for empty object")
	}
}

func TestNewUploader_RequiresSignerAndBucket(t *testing.T) {
	if _, err := NewUploader(nil, UploaderConfig{Bucket: "b"}); err == nil {
		t.Fatalf("expected error without signer")
	}
	if _, err := NewUploader(&fakeSigner{email: "x@y"}, UploaderConfig{}); err == nil {
		t.Fatalf("expected error without bucket")
	}
}

func TestProductImageObject(t *testing.T) {
	cases := []struct {
		name        string
		fileName    string
		contentType string
		want        string
	}{
		{name: "plain", fileName: "Flower Pot.JPG", contentType: "image/jpeg", want: "products/mf-1/prod-1/01jabc-flower-pot.jpg"},
		{name: "path stripped", fileName: `C:\photos\rocket!!.png`, contentType: "image/png", want: "products/mf-1/prod-1/01jabc-rocket.png"},
		{name: "empty name", fileName: "", contentType: "image/webp", want: "products/mf-1/prod-1/01jabc-image.webp"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ProductImageObject("mf-1", "prod-1", "01JABC", tc.fileName, tc.contentType)
			if err != nil {
				t.Fatalf("ProductImageObject: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
	if _, err := ProductImageObject("", "prod-1", "u", "a.png", "image/png"); err == nil {
		t.Fatalf("expected error for missing manufacturer")
	}
}

func TestNewKeySigner_RejectsBadKeys(t *testing.T) {
	for name, raw := range map[string]string{
		"empty":    "",
		"not json": "{",
		"no email": `{"private_key":"x"}`,
		"not pem":  `{"client_email":"a@b","private_key":"nope"}`,
	} {
		if _, err := NewKeySigner([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
