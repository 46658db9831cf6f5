package server

import (
	"net/http"

	"hydrodiag/internal/gateway/handler"
	"hydrodiag/internal/gateway/middleware"
)

type Handlers struct {
	Plant     *handler.PlantHandler
	Equipment *handler.EquipmentHandler
	Images    *handler.ImageHandler
}

func NewMux(h Handlers, origins middleware.Origins, identity func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/plant/diagnose", h.Plant.Diagnose)
	mux.HandleFunc("POST /api/plant/follow-up", h.Plant.FollowUp)
	mux.HandleFunc("GET /api/plant/history", h.Plant.History)

	mux.HandleFunc("POST /api/equipment/diagnose", h.Equipment.Diagnose)
	mux.HandleFunc("GET /api/equipment/ws", h.Equipment.HandleWS)
	mux.HandleFunc("GET /api/equipment/history", h.Equipment.History)
	mux.HandleFunc("GET /api/equipment/sessions/{id}", h.Equipment.Session)

	mux.HandleFunc("GET /api/images/{key...}", h.Images.Serve)

	mux.HandleFunc("GET /api/auth/me", handler.Me)
	mux.HandleFunc("POST /api/auth/logout", handler.Logout)

	mux.HandleFunc("GET /healthz", handler.Healthz)

	var root http.Handler = mux
	if identity != nil {
		root = identity(root)
	}
	return middleware.CORS(origins)(root)
}
