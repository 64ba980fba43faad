// Package ws pushes ride offers to drivers over a persistent websocket
// connection. It is a best-effort side channel: the matcher and offer
// lifecycle never wait on it, they only use it to shave latency off of
// however a driver would otherwise discover a new offer (polling).
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	wshub "github.com/Temutjin2k/dispatch-core/pkg/wsHub"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	heartbeatInterval = 20 * time.Second
	heartbeatTimeout  = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub keeps one live connection per online driver.
type Hub struct {
	conns *wshub.ConnectionHub
	l     logger.Logger
}

func New(l logger.Logger) *Hub {
	return &Hub{conns: wshub.NewConnHub(l), l: l}
}

// Serve upgrades r into a websocket tied to driverID and blocks until
// the connection closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, driverID uuid.UUID) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade websocket: %w", err)
	}

	c := wshub.NewConn(r.Context(), driverID, conn, h.l)
	if err := h.conns.Add(c); err != nil {
		_ = conn.Close()
		return fmt.Errorf("register connection: %w", err)
	}
	defer h.conns.Delete(driverID)

	go c.HeartbeatLoop(heartbeatTimeout, heartbeatInterval)
	return c.Listen()
}

// PushOffer fire-and-forgets an offer to driverID's live connection, if
// any is currently open.
func (h *Hub) PushOffer(_ context.Context, driverID uuid.UUID, offer *models.RideOffer) error {
	data, err := json.Marshal(offer)
	if err != nil {
		return fmt.Errorf("marshal offer: %w", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decode offer: %w", err)
	}
	msg["type"] = "ride_offer"
	return h.conns.SendTo(driverID, msg)
}

func (h *Hub) Close() { h.conns.Close() }
