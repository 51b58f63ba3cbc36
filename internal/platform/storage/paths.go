package storage

import (
	"errors"
	"path"
	"strings"
	"unicode"
)

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// ProductImageObject returns the object key for a product photo:
// products/{manufacturerID}/{productID}/{uploadID}-{name}{ext}.
func ProductImageObject(manufacturerID, productID, uploadID, fileName, contentType string) (string, error) {
	manufacturerID = strings.TrimSpace(manufacturerID)
	productID = strings.TrimSpace(productID)
	uploadID = strings.TrimSpace(uploadID)
	if manufacturerID == "" || productID == "" || uploadID == "" {
		return "", errors.New("storage: manufacturer, product and upload ids are required")
	}

	base := path.Base(strings.ReplaceAll(strings.TrimSpace(fileName), "\\", "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	name := slug(base)
	if name == "" {
		name = "image"
	}
	ext, ok := imageExtensions[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		ext = ".bin"
	}
	return path.Join("products", manufacturerID, productID, strings.ToLower(uploadID)+"-"+name+ext), nil
}

func slug(value string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(value) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= 48 {
			break
		}
	}
	return strings.TrimRight(b.String(), "-")
}
