package sync

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server is the HTTP/websocket front end for a Hub, grounded on the
// teacher's own Server/NewServer/handleWebSocket shape in
// cmd/server/main.go, generalized from its single rune-oplog document to
// arbitrary Document rooms.
type Server struct {
	hub      *Hub
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// NewServer returns a Server relaying through hub.
func NewServer(hub *Hub, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		hub: hub,
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router returns the mux.Router exposing this Server's endpoints, the
// same HandleFunc-on-mux.NewRouter wiring the teacher's main does.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWebSocket)
	r.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	return r
}

type stateResponse struct {
	Update []byte `json:"update"`
}

// handleState returns the full encoded update bytes for ?doc=, letting a
// client bootstrap without opening a websocket first (spec §6
// encodeStateAsUpdate, reached over HTTP instead of in-process).
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	docID := r.URL.Query().Get("doc")
	if docID == "" {
		http.Error(w, "missing doc query parameter", http.StatusBadRequest)
		return
	}
	room := s.hub.room(r.Context(), docID)
	update, err := room.doc.EncodeStateAsUpdate(nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stateResponse{Update: update})
}

// handleWebSocket upgrades the connection, registers it on docID's room,
// sends the room's current full state, then relays every binary message
// the client sends as an update to apply and rebroadcast — the same
// upgrade-register-loop shape as the teacher's handleWebSocket, with
// JSON insert/delete messages replaced by opaque update bytes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	docID := r.URL.Query().Get("doc")
	if docID == "" {
		http.Error(w, "missing doc query parameter", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := r.Context()
	room := s.hub.room(ctx, docID)
	room.addClient(conn)
	s.log.Info("client connected", zap.String("doc", docID))

	if initial, err := room.doc.EncodeStateAsUpdate(nil); err == nil {
		_ = conn.WriteMessage(websocket.BinaryMessage, initial)
	}

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		// Integrating the update runs a transaction, which fires the
		// room's OnUpdate hook (wired in Hub.room) to persist and relay
		// the resulting delta — no separate broadcast call needed here.
		if err := room.doc.ApplyUpdate(payload, docID); err != nil {
			s.log.Warn("failed to apply client update", zap.String("doc", docID), zap.Error(err))
		}
	}

	room.removeClient(conn)
	s.log.Info("client disconnected", zap.String("doc", docID))
}
