package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
)

const (
	defaultUploadTTL = 15 * time.Minute
	maxUploadTTL     = 7 * 24 * time.Hour
)

var (
	// ErrContentTypeNotAllowed is returned for uploads outside the allowed content types.
	ErrContentTypeNotAllowed = errors.New("storage: content type not allowed")
	// ErrObjectTooLarge is returned when the declared size exceeds the configured maximum.
	ErrObjectTooLarge = errors.New("storage: object exceeds maximum size")
)

// DefaultImageContentTypes lists the image formats accepted for product photos.
var DefaultImageContentTypes = []string{"image/jpeg", "image/png", "image/webp"}

// UploaderConfig describes the bucket uploads are signed for.
type UploaderConfig struct {
	Bucket        string
	PublicBaseURL string
	TTL           time.Duration
	MaxBytes      int64
	ContentTypes  []string
}

// Uploader issues V4 signed PUT URLs for direct browser uploads.
type Uploader struct {
	signer Signer
	cfg    UploaderConfig
	now    func() time.Time
}

// UploaderOption customises an Uploader.
type UploaderOption func(*Uploader)

// WithClock injects a clock, mostly for tests.
func WithClock(clock func() time.Time) UploaderOption {
	return func(u *Uploader) {
		if clock != nil {
			u.now = clock
		}
	}
}

// NewUploader validates the configuration and returns an Uploader.
func NewUploader(signer Signer, cfg UploaderConfig, opts ...UploaderOption) (*Uploader, error) {
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errors.New("storage: signer is required")
	}
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	if cfg.Bucket == "" {
		return nil, errors.New("storage: bucket is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultUploadTTL
	}
	if cfg.TTL > maxUploadTTL {
		return nil, fmt.Errorf("storage: upload ttl %s exceeds %s", cfg.TTL, maxUploadTTL)
	}
	if len(cfg.ContentTypes) == 0 {
		cfg.ContentTypes = DefaultImageContentTypes
	}
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = "https://storage.googleapis.com/" + cfg.Bucket
	}

	u := &Uploader{signer: signer, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(u)
		}
	}
	return u, nil
}

// UploadRequest describes the object a client intends to upload.
type UploadRequest struct {
	Object      string
	ContentType string
	Size        int64
}

// SignedUpload is handed back to the client. Headers must be sent verbatim with the PUT.
type SignedUpload struct {
	URL       string
	Method    string
	Headers   map[string]string
	ExpiresAt time.Time
	Object    string
	PublicURL string
}

// SignUpload signs a PUT for req.Object. A positive MaxBytes is enforced through the
// x-goog-content-length-range extension header.
func (u *Uploader) SignUpload(ctx context.Context, req UploadRequest) (SignedUpload, error) {
	object := strings.Trim(strings.TrimSpace(req.Object), "/")
	if object == "" {
		return SignedUpload{}, errors.New("storage: object name is required")
	}
	contentType := strings.ToLower(strings.TrimSpace(req.ContentType))
	if !allowedContentType(contentType, u.cfg.ContentTypes) {
		return SignedUpload{}, fmt.Errorf("%w: %q", ErrContentTypeNotAllowed, req.ContentType)
	}
	if u.cfg.MaxBytes > 0 && req.Size > u.cfg.MaxBytes {
		return SignedUpload{}, fmt.Errorf("%w: %d > %d bytes", ErrObjectTooLarge, req.Size, u.cfg.MaxBytes)
	}

	expires := u.now().Add(u.cfg.TTL).UTC()
	headers := map[string]string{"Content-Type": contentType}
	opts := &gcs.SignedURLOptions{
		GoogleAccessID: u.signer.Email(),
		Scheme:         gcs.SigningSchemeV4,
		Method:         "PUT",
		ContentType:    contentType,
		Expires:        expires,
		SignBytes: func(payload []byte) ([]byte, error) {
			return u.signer.SignBytes(ctx, payload)
		},
	}
	if u.cfg.MaxBytes > 0 {
		lengthRange := fmt.Sprintf("0,%d", u.cfg.MaxBytes)
		opts.Headers = []string{"x-goog-content-length-range:" + lengthRange}
		headers["x-goog-content-length-range"] = lengthRange
	}

	signed, err := gcs.SignedURL(u.cfg.Bucket, object, opts)
	if err != nil {
		return SignedUpload{}, fmt.Errorf("storage: sign upload url: %w", err)
	}
	return SignedUpload{
		URL:       signed,
		Method:    opts.Method,
		Headers:   headers,
		ExpiresAt: expires,
		Object:    object,
		PublicURL: u.cfg.PublicBaseURL + "/" + escapeObject(object),
	}, nil
}

func allowedContentType(contentType string, allowed []string) bool {
	if contentType == "" {
		return false
	}
	for _, candidate := range allowed {
		candidate = strings.ToLower(strings.TrimSpace(candidate))
		if candidate == contentType {
			return true
		}
		if prefix, ok := strings.CutSuffix(candidate, "/*"); ok && strings.HasPrefix(contentType, prefix+"/") {
			return true
		}
	}
	return false
}

func escapeObject(object string) string {
	parts := strings.Split(object, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
