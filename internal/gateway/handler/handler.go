package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"hydrodiag/internal/diagnosis"
	"hydrodiag/internal/gateway/repository/image"
	llmclient "hydrodiag/internal/llmClient"
)

// maxBodyBytes bounds JSON bodies; base64 images inflate by a third.
const maxBodyBytes = 16 << 20

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("handler: encode response failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := classify(err)
	if status >= http.StatusInternalServerError {
		log.Printf("handler: %s %s failed code=%s err=%v", r.Method, r.URL.Path, code, err)
	}
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

// classify maps service errors onto an HTTP status, a stable code and a user-visible message.
func classify(err error) (int, string, string) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge, "too_large", "request body too large"
	case errors.Is(err, diagnosis.ErrValidation):
		return http.StatusBadRequest, "validation", err.Error()
	case errors.Is(err, diagnosis.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found", err.Error()
	case errors.Is(err, diagnosis.ErrSessionCompleted):
		return http.StatusConflict, "session_completed", err.Error()
	case errors.Is(err, diagnosis.ErrSessionBusy):
		return http.StatusConflict, "session_busy", err.Error()
	case errors.Is(err, diagnosis.ErrMalformedResponse):
		return http.StatusBadGateway, "malformed_response", diagnosis.ErrMalformedResponse.Error()
	case errors.Is(err, diagnosis.ErrBackendUnavailable):
		return http.StatusBadGateway, "backend_unavailable", diagnosis.ErrBackendUnavailable.Error()
	case errors.Is(err, diagnosis.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable", diagnosis.ErrStoreUnavailable.Error()
	}
	return http.StatusInternalServerError, "internal", "internal error"
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return diagnosis.Invalid("body", "is empty")
		}
		return diagnosis.Invalid("body", fmt.Sprintf("invalid json: %v", err))
	}
	return nil
}

// decodeImage accepts raw base64 or a data URL.
func decodeImage(field, data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if data == "" {
		return nil, diagnosis.Invalid(field, "is required")
	}
	if strings.HasPrefix(data, "data:") {
		comma := strings.IndexByte(data, ',')
		if comma < 0 {
			return nil, diagnosis.Invalid(field, "malformed data URL")
		}
		data = data[comma+1:]
	}
	out, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		if out, err = base64.RawStdEncoding.DecodeString(data); err != nil {
			return nil, diagnosis.Invalid(field, "is not valid base64")
		}
	}
	return out, nil
}

// optionalImage decodes an attachment that may be absent.
func optionalImage(field, data string) (*llmclient.Image, error) {
	if strings.TrimSpace(data) == "" {
		return nil, nil
	}
	raw, err := decodeImage(field, data)
	if err != nil {
		return nil, err
	}
	contentType := image.DetectContentType(raw)
	if !image.IsImage(contentType) {
		return nil, diagnosis.Invalid(field, "is not an image ("+contentType+")")
	}
	return &llmclient.Image{MIMEType: contentType, Data: raw}, nil
}

func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
