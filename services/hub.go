package services

import (
	"log"
	"sync"
	"time"

	"shepsigrad-server/models"

	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

// HubEvent is the wire shape of every live event. Name is one of
// booking_status_changed, payment_status_changed, notification,
// property_updated.
type HubEvent struct {
	Name           string    `json:"event"`
	Type           string    `json:"type,omitempty"`
	BookingID      uint      `json:"bookingId,omitempty"`
	PropertyID     uint      `json:"propertyId,omitempty"`
	NotificationID uint      `json:"notificationId,omitempty"`
	Status         string    `json:"status,omitempty"`
	PaymentStatus  string    `json:"paymentStatus,omitempty"`
	Title          string    `json:"title,omitempty"`
	Message        string    `json:"message,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Session is one authenticated WebSocket connection. A user may hold several
// sessions at once (two devices); each has an explicit lifecycle: opened on
// auth, removed on disconnect or write failure.
type Session struct {
	conn     *websocket.Conn
	userID   uint
	lastSeen time.Time

	writeMu sync.Mutex // gorilla conns allow one concurrent writer
}

// Hub maintains the user-id -> open-sessions routing used by the fan-out.
// Publishing to a user with no open sessions is a silent drop; the persisted
// notification row is the durable fallback.
type Hub struct {
	db *gorm.DB

	mu       sync.RWMutex
	sessions map[uint]map[*Session]struct{}
}

func NewHub(db *gorm.DB) *Hub {
	return &Hub{
		db:       db,
		sessions: make(map[uint]map[*Session]struct{}),
	}
}

// Add registers a connection for a user and returns its session.
func (h *Hub) Add(userID uint, conn *websocket.Conn) *Session {
	s := &Session{conn: conn, userID: userID, lastSeen: time.Now()}

	h.mu.Lock()
	if _, ok := h.sessions[userID]; !ok {
		h.sessions[userID] = make(map[*Session]struct{})
	}
	h.sessions[userID][s] = struct{}{}
	total := len(h.sessions[userID])
	h.mu.Unlock()

	log.Printf("ws connected: user=%d (sessions=%d)", userID, total)
	return s
}

// Remove closes and deregisters a session.
func (h *Hub) Remove(s *Session) {
	h.mu.Lock()
	if conns, ok := h.sessions[s.userID]; ok {
		delete(conns, s)
		if len(conns) == 0 {
			delete(h.sessions, s.userID)
		}
	}
	h.mu.Unlock()

	_ = s.conn.Close()
	log.Printf("ws disconnected: user=%d", s.userID)
}

// Touch records pong/read activity for heartbeat staleness checks.
func (s *Session) Touch() {
	s.lastSeen = time.Now()
}

// SessionCount returns the number of open sessions for a user.
func (h *Hub) SessionCount(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID])
}

// PublishToUser delivers the event to every open session of the user. A user
// with no sessions is not an error.
func (h *Hub) PublishToUser(userID uint, ev HubEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions[userID]))
	for s := range h.sessions[userID] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.writeMu.Lock()
		err := s.conn.WriteJSON(ev)
		s.writeMu.Unlock()
		if err != nil {
			log.Printf("ws send failed: user=%d: %v", userID, err)
			go h.Remove(s)
		}
	}
}

// PublishToProperty resolves the property's owner and publishes to them.
func (h *Hub) PublishToProperty(propertyID uint, ev HubEvent) {
	var property models.Property
	if err := h.db.Select("id, owner_id").First(&property, propertyID).Error; err != nil {
		log.Printf("ws publish: property %d lookup failed: %v", propertyID, err)
		return
	}
	ev.PropertyID = propertyID
	h.PublishToUser(property.OwnerID, ev)
}

// Heartbeat pings all sessions periodically and drops stale ones. Clients
// are expected to reconnect with backoff; missed events are not buffered
// beyond what the notification store persists.
func (h *Hub) Heartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	for range ticker.C {
		h.mu.RLock()
		stale := make([]*Session, 0)
		for _, conns := range h.sessions {
			for s := range conns {
				if time.Since(s.lastSeen) > 2*interval {
					stale = append(stale, s)
					continue
				}
				s.writeMu.Lock()
				_ = s.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second))
				s.writeMu.Unlock()
			}
		}
		h.mu.RUnlock()

		for _, s := range stale {
			h.Remove(s)
		}
	}
}
