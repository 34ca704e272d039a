package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/radieske/prediction-market-poc/pkg/contracts/events"
)

// ClientMsg representa uma mensagem recebida do cliente WebSocket
type ClientMsg struct {
	Type     string `json:"type"`     // subscribe | unsubscribe | ping
	MarketID string `json:"marketId"` // requerido em subscribe/unsubscribe
}

// client serializa as escritas: gorilla/websocket aceita um único escritor por conexão
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Hub gerencia conexões WebSocket e assinaturas por mercado
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	// marketID -> conjunto de clientes
	subs map[string]map[*client]struct{}
}

// NewHub cria uma instância de Hub com política customizada de origem (CORS)
func NewHub(allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		subs:     make(map[string]map[*client]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão.
// Cada cliente pode se inscrever em vários mercados.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn}
	defer conn.Close()

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "subscribe":
			if msg.MarketID == "" {
				continue
			}
			h.mu.Lock()
			if _, ok := h.subs[msg.MarketID]; !ok {
				h.subs[msg.MarketID] = make(map[*client]struct{})
			}
			h.subs[msg.MarketID][c] = struct{}{}
			h.mu.Unlock()
			_ = c.write([]byte(`{"type":"subscribed","marketId":` + quote(msg.MarketID) + `}`))
		case "unsubscribe":
			h.remove(msg.MarketID, c)
		case "ping":
			_ = c.write([]byte(`{"type":"pong"}`))
		}
	}

	// remove a conexão de todas as assinaturas ao desconectar
	h.mu.Lock()
	for id, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, id)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) remove(marketID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.subs[marketID]; ok {
		delete(m, c)
		if len(m) == 0 {
			delete(h.subs, marketID)
		}
	}
}

// Subscribers retorna quantos clientes acompanham o mercado
func (h *Hub) Subscribers(marketID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[marketID])
}

// Broadcast envia o snapshot para todos os inscritos no mercado
func (h *Hub) Broadcast(ev events.MarketSynced) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.subs[ev.Market.ID]))
	for c := range h.subs[ev.Market.ID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	for _, c := range targets {
		_ = c.write(b)
	}
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
