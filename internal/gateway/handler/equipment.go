package handler

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"hydrodiag/internal/diagnosis"
	"hydrodiag/internal/gateway/entity"
	"hydrodiag/internal/gateway/middleware"
	"hydrodiag/internal/gateway/service/equipment"
)

type EquipmentHandler struct {
	svc         *equipment.Service
	upgrader    websocket.Upgrader
	wsReadLimit int64
}

// NewEquipmentHandler serves the equipment conversation. Websocket upgrades
// are accepted only from origins trusts.
func NewEquipmentHandler(svc *equipment.Service, origins middleware.Origins) *EquipmentHandler {
	return &EquipmentHandler{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.Trusted,
		},
		wsReadLimit: maxBodyBytes,
	}
}

type equipmentTurnRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
	ImageData string `json:"imageData,omitempty"`
}

type equipmentTurnResponse struct {
	Stage            diagnosis.Stage            `json:"stage"`
	NextQuestion     string                     `json:"nextQuestion,omitempty"`
	DiagnosisResult  *entity.EquipmentDiagnosis `json:"diagnosisResult,omitempty"`
	Remediation      *entity.Remediation        `json:"remediation,omitempty"`
	PreventiveAdvice string                     `json:"preventiveAdvice,omitempty"`
	SessionID        string                     `json:"sessionId"`
}

func toTurnResponse(res equipment.TurnResult) equipmentTurnResponse {
	return equipmentTurnResponse{
		Stage:            res.Stage,
		NextQuestion:     res.NextQuestion,
		DiagnosisResult:  res.Diagnosis,
		Remediation:      res.Remediation,
		PreventiveAdvice: res.PreventiveAdvice,
		SessionID:        res.SessionID,
	}
}

// Diagnose runs one conversation turn. An empty sessionId starts a new session.
func (h *EquipmentHandler) Diagnose(w http.ResponseWriter, r *http.Request) {
	var req equipmentTurnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	img, err := optionalImage("imageData", req.ImageData)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.svc.Continue(r.Context(), entity.UserFrom(r.Context()), equipment.NewRequest(req.SessionID, req.Message, img))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTurnResponse(res))
}

func (h *EquipmentHandler) History(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListForUser(r.Context(), entity.UserFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Session writes the session record, or null when it does not exist.
func (h *EquipmentHandler) Session(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	sess, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
