package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/abelt/coinflip-services/internal/comm"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans match events out to connected websocket clients. Clients
// subscribe to everything; filtering happens on their side.
type Hub struct {
	connMap sync.Map // socketId -> *websocket.Conn
	writeMu sync.Map // socketId -> *sync.Mutex
}

func NewHub() *Hub {
	return &Hub{}
}

// Serve upgrades the request and keeps the connection registered until
// the peer goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("ws upgrade failed: %v", err)
		return
	}

	socketId := uuid.NewString()
	h.connMap.Store(socketId, conn)
	h.writeMu.Store(socketId, &sync.Mutex{})
	log.Infof("ws client connected %s", socketId)

	go func() {
		defer func() {
			h.connMap.Delete(socketId)
			h.writeMu.Delete(socketId)
			conn.Close()
			log.Infof("ws client disconnected %s", socketId)
		}()
		for {
			// inbound frames are ignored, the feed is one-way
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// BroadcastMatch pushes a match transition to every connected client.
func (h *Hub) BroadcastMatch(ev comm.MatchEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Errorf("ws marshal match event: %v", err)
		return
	}
	msg, err := json.Marshal(comm.WSMessage{Type: "match_update", Data: data})
	if err != nil {
		log.Errorf("ws marshal frame: %v", err)
		return
	}

	h.connMap.Range(func(key, value any) bool {
		conn := value.(*websocket.Conn)
		muVal, ok := h.writeMu.Load(key)
		if !ok {
			return true
		}
		mu := muVal.(*sync.Mutex)
		mu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, msg)
		mu.Unlock()
		if err != nil {
			log.Warnf("ws write to %v failed: %v", key, err)
			h.connMap.Delete(key)
			h.writeMu.Delete(key)
			conn.Close()
		}
		return true
	})
}
