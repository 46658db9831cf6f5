package handler

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"hydrodiag/internal/gateway/entity"
	"hydrodiag/internal/gateway/service/equipment"
)

const (
	equipmentWSWriteWait = 10 * time.Second
	equipmentWSPongWait  = 60 * time.Second
	equipmentWSPingEvery = (equipmentWSPongWait * 9) / 10
)

type equipmentWSInbound struct {
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	ImageData string `json:"imageData,omitempty"`
}

type equipmentWSOutbound struct {
	Type      string                 `json:"type"`
	SessionID string                 `json:"sessionId,omitempty"`
	Turn      *equipmentTurnResponse `json:"turn,omitempty"`
	Code      string                 `json:"code,omitempty"`
	Message   string                 `json:"message,omitempty"`
}

// wsConversation tracks the session a socket is talking to.
type wsConversation struct {
	mu        sync.Mutex
	sessionID string
	busy      bool
}

func (c *wsConversation) begin(override string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return "", false
	}
	c.busy = true
	if v := strings.TrimSpace(override); v != "" {
		c.sessionID = v
	}
	return c.sessionID, true
}

func (c *wsConversation) end(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	if sessionID != "" {
		c.sessionID = sessionID
	}
}

func (c *wsConversation) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = ""
}

// HandleWS streams the equipment conversation over a websocket. Each "message"
// frame runs one turn; "new" discards the current session so the next message
// starts a fresh one.
func (h *EquipmentHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	user := entity.UserFrom(r.Context())
	conv := &wsConversation{sessionID: strings.TrimSpace(r.URL.Query().Get("sessionId"))}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("equipment ws: upgrade rejected origin=%s err=%v", r.Header.Get("Origin"), err)
		return
	}
	defer conn.Close()
	// Frames share the HTTP body cap.
	conn.SetReadLimit(h.wsReadLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(equipmentWSPongWait)); err != nil {
		log.Printf("equipment ws set read deadline failed: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(equipmentWSPongWait))
	})

	writeCh := make(chan equipmentWSOutbound, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(equipmentWSPingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case out := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(equipmentWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(equipmentWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	pushEquipmentWS(writeCh, equipmentWSOutbound{Type: "ready", SessionID: conv.sessionID})

	var turns sync.WaitGroup
	defer turns.Wait()

	for {
		var in equipmentWSInbound
		if err := conn.ReadJSON(&in); err != nil {
			cancel()
			<-writerDone
			return
		}
		// Any frame proves the peer is alive.
		_ = conn.SetReadDeadline(time.Now().Add(equipmentWSPongWait))

		switch strings.ToLower(strings.TrimSpace(in.Type)) {
		case "ping":
			pushEquipmentWS(writeCh, equipmentWSOutbound{Type: "pong"})
		case "new":
			conv.reset()
			pushEquipmentWS(writeCh, equipmentWSOutbound{Type: "ready"})
		case "message":
			img, err := optionalImage("imageData", in.ImageData)
			if err != nil {
				pushEquipmentWSError(writeCh, err)
				continue
			}
			sessionID, ok := conv.begin(in.SessionID)
			if !ok {
				pushEquipmentWS(writeCh, equipmentWSOutbound{
					Type:    "error",
					Code:    "session_busy",
					Message: "a turn is already in flight on this connection",
				})
				continue
			}
			turns.Add(1)
			go func(req equipment.Request) {
				defer turns.Done()
				res, err := h.svc.Continue(ctx, user, req)
				if err != nil {
					conv.end("")
					pushEquipmentWSError(writeCh, err)
					return
				}
				conv.end(res.SessionID)
				turn := toTurnResponse(res)
				pushEquipmentWS(writeCh, equipmentWSOutbound{Type: "turn", SessionID: res.SessionID, Turn: &turn})
			}(equipment.NewRequest(sessionID, in.Message, img))
		case "":
			pushEquipmentWS(writeCh, equipmentWSOutbound{
				Type:    "error",
				Code:    "validation",
				Message: "type is required",
			})
		default:
			pushEquipmentWS(writeCh, equipmentWSOutbound{
				Type:    "error",
				Code:    "validation",
				Message: "unsupported type: " + in.Type,
			})
		}
	}
}

func pushEquipmentWSError(writeCh chan equipmentWSOutbound, err error) {
	_, code, msg := classify(err)
	if code == "internal" {
		log.Printf("equipment ws: turn failed err=%v", err)
	}
	pushEquipmentWS(writeCh, equipmentWSOutbound{Type: "error", Code: code, Message: msg})
}

func pushEquipmentWS(writeCh chan equipmentWSOutbound, out equipmentWSOutbound) {
	if writeCh == nil {
		return
	}
	select {
	case writeCh <- out:
		return
	default:
	}
	// Full buffer: drop the oldest frame and retry once.
	select {
	case <-writeCh:
	default:
	}
	select {
	case writeCh <- out:
	default:
		log.Printf("equipment ws: dropping outbound type=%s", out.Type)
	}
}
