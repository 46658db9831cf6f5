package image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"hydrodiag/internal/gateway/entity"
)

var (
	ErrNotFound   = errors.New("image not found")
	ErrInvalidKey = errors.New("invalid image key")
)

// ServePrefix is the route under which stored images are proxied back to clients.
const ServePrefix = "/api/images/"

// Store persists uploaded images and returns the URL recorded with a diagnosis.
type Store interface {
	Put(ctx context.Context, key string, content []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) (Object, error)
}

type Object struct {
	Data        []byte
	ContentType string
}

// PlantImageKey builds plant-diagnoses/<user>/<id><ext>.
func PlantImageKey(userID entity.UserID, id, contentType string) string {
	return "plant-diagnoses/" + userID.String() + "/" + strings.TrimSpace(id) + Extension(contentType)
}

// Extension maps an image content type to a file extension, defaulting to .jpg.
func Extension(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".jpg"
	}
	switch mediaType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/heic":
		return ".heic"
	case "image/heif":
		return ".heif"
	case "image/avif":
		return ".avif"
	}
	return ".jpg"
}

func proxyURL(key string) string {
	return ServePrefix + key
}

func normalizeKey(key string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return key, nil
}

// ISO base media brands used by HEIC/HEIF/AVIF photos, which
// http.DetectContentType does not recognise.
var ftypBrands = map[string]string{
	"heic": "image/heic",
	"heix": "image/heic",
	"hevc": "image/heic",
	"hevx": "image/heic",
	"heim": "image/heic",
	"heis": "image/heic",
	"mif1": "image/heif",
	"msf1": "image/heif",
	"heif": "image/heif",
	"avif": "image/avif",
	"avis": "image/avif",
}

// DetectContentType sniffs data like http.DetectContentType and also
// recognises HEIC/HEIF/AVIF photos from their ftyp box.
func DetectContentType(data []byte) string {
	if len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")) {
		if ct, ok := ftypBrands[string(data[8:12])]; ok {
			return ct
		}
	}
	return http.DetectContentType(data)
}

// IsImage reports whether contentType names an image media type.
func IsImage(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}
