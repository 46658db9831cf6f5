package handler

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"hydrodiag/internal/diagnosis"
	"hydrodiag/internal/gateway/entity"
	"hydrodiag/internal/gateway/service/plant"
)

type PlantHandler struct {
	svc *plant.Service
}

func NewPlantHandler(svc *plant.Service) *PlantHandler {
	return &PlantHandler{svc: svc}
}

type diagnosePlantRequest struct {
	ImageData   string   `json:"imageData"`
	Description string   `json:"description"`
	CropType    string   `json:"cropType"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	EC          *float64 `json:"ec"`
}

type diagnosePlantResponse struct {
	entity.PlantResult
	DiagnosisID string `json:"diagnosisId"`
	ImageURL    string `json:"imageUrl"`
}

type followUpRequest struct {
	DiagnosisResult json.RawMessage `json:"diagnosisResult"`
	Question        string          `json:"question"`
	ImageData       string          `json:"imageData"`
}

type followUpResponse struct {
	Answer string `json:"answer"`
}

// Diagnose accepts either a JSON body with base64 imageData or a multipart
// form with an "image" file.
func (h *PlantHandler) Diagnose(w http.ResponseWriter, r *http.Request) {
	var (
		in  plant.DiagnoseInput
		err error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		in, err = readMultipartPlant(w, r)
	} else {
		in, err = readJSONPlant(w, r)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.svc.Diagnose(r.Context(), entity.UserFrom(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, diagnosePlantResponse{
		PlantResult: res.Result,
		DiagnosisID: res.DiagnosisID,
		ImageURL:    res.ImageURL,
	})
}

func (h *PlantHandler) FollowUp(w http.ResponseWriter, r *http.Request) {
	var req followUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	img, err := optionalImage("imageData", req.ImageData)
	if err != nil {
		writeError(w, r, err)
		return
	}
	answer, err := h.svc.FollowUp(r.Context(), req.DiagnosisResult, req.Question, img)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, followUpResponse{Answer: answer})
}

func (h *PlantHandler) History(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListForUser(r.Context(), entity.UserFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func readJSONPlant(w http.ResponseWriter, r *http.Request) (plant.DiagnoseInput, error) {
	var req diagnosePlantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return plant.DiagnoseInput{}, err
	}
	raw, err := decodeImage("imageData", req.ImageData)
	if err != nil {
		return plant.DiagnoseInput{}, err
	}
	return plant.DiagnoseInput{
		Image:       raw,
		Description: req.Description,
		CropType:    req.CropType,
		Temperature: req.Temperature,
		Humidity:    req.Humidity,
		EC:          req.EC,
	}, nil
}

func readMultipartPlant(w http.ResponseWriter, r *http.Request) (plant.DiagnoseInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return plant.DiagnoseInput{}, err
		}
		return plant.DiagnoseInput{}, diagnosis.Invalid("body", "invalid multipart form")
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		return plant.DiagnoseInput{}, diagnosis.Invalid("image", "is required")
	}
	defer file.Close()
	raw, err := io.ReadAll(file)
	if err != nil {
		return plant.DiagnoseInput{}, err
	}

	in := plant.DiagnoseInput{
		Image:       raw,
		Description: r.FormValue("description"),
		CropType:    r.FormValue("cropType"),
	}
	for _, f := range []struct {
		name string
		dst  **float64
	}{
		{"temperature", &in.Temperature},
		{"humidity", &in.Humidity},
		{"ec", &in.EC},
	} {
		v, err := formFloat(r, f.name)
		if err != nil {
			return plant.DiagnoseInput{}, err
		}
		*f.dst = v
	}
	return in, nil
}

func formFloat(r *http.Request, name string) (*float64, error) {
	raw := strings.TrimSpace(r.FormValue(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, diagnosis.Invalid(name, "must be a finite number")
	}
	return &v, nil
}
