package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"hydrodiag/internal/gateway/repository/image"
)

const presignExpiry = 15 * time.Minute

// presigner is implemented by object stores that can hand out direct download links.
type presigner interface {
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

type ImageHandler struct {
	store image.Store
}

func NewImageHandler(store image.Store) *ImageHandler {
	return &ImageHandler{store: store}
}

// Serve redirects to a presigned URL when the store supports it and otherwise
// streams the stored bytes.
func (h *ImageHandler) Serve(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if p, ok := h.store.(presigner); ok {
		url, err := p.PresignGet(r.Context(), key, presignExpiry)
		if err == nil {
			http.Redirect(w, r, url, http.StatusFound)
			return
		}
	}
	obj, err := h.store.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, image.ErrNotFound) || errors.Is(err, image.ErrInvalidKey) {
			http.NotFound(w, r)
			return
		}
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(obj.Data)
}
