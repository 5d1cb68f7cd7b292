package ws

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog"

	"github.com/emandor/kelas_service/internal/telemetry"
)

type Action string

const (
	ActionJoin  Action = "join"
	ActionLeave Action = "leave"
)

type Room string

const (
	RoomTest     Room = "test.room"
	RoomTestUser Room = "test.room.user"
)

type Event string

const (
	EventTestCreated Event = "test.event.created"
	EventTestReady   Event = "test.event.ready"
	EventTestFailed  Event = "test.event.failed"
)

type PayloadEvent struct {
	Event Event `json:"event"`
	Data  any   `json:"data,omitempty"`
}

type ClientMessage struct {
	Action Action `json:"action"`
	Room   string `json:"room"`
}

// TestPayload is the data carried by every test.event.* message.
type TestPayload struct {
	TestID        int64  `json:"test_id"`
	Title         string `json:"title,omitempty"`
	Status        string `json:"status"`
	QuestionCount int    `json:"question_count,omitempty"`
	ErrorKind     string `json:"error_kind,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Conn is the write side of a websocket connection.
type Conn interface {
	WriteJSON(v any) error
}

type Hub struct {
	mu    sync.RWMutex
	wmu   sync.Mutex
	rooms map[string]map[Conn]struct{}

	// WaitSubscribers is how long a test event is held back while nobody
	// has joined the test room yet.
	WaitSubscribers time.Duration
}

func NewHub() *Hub {
	return &Hub{
		rooms:           map[string]map[Conn]struct{}{},
		WaitSubscribers: 30 * time.Second,
	}
}

func logger() *zerolog.Logger {
	l := telemetry.L().With().Str("module", "ws").Logger()
	return &l
}

var Default = NewHub()

func TestRoom(testID int64) string {
	return string(RoomTest) + "." + strconv.FormatInt(testID, 10)
}

func UserRoom(userID int64) string {
	return string(RoomTestUser) + "." + strconv.FormatInt(userID, 10)
}

// Handle serves one client. The user id set by the session middleware limits
// which user rooms the client may join.
func (h *Hub) Handle(c *websocket.Conn) {
	uid, _ := c.Locals("userID").(int64)
	log := logger()
	log.Info().Int64("user_id", uid).Msg("ws_connected")
	defer func() {
		h.Drop(c)
		_ = c.Close()
	}()

	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			break
		}

		var cm ClientMessage
		if err := json.Unmarshal(msg, &cm); err != nil {
			continue
		}
		if !allowedRoom(uid, cm.Room) {
			log.Warn().Int64("user_id", uid).Str("room", cm.Room).Msg("ws_room_denied")
			continue
		}

		switch cm.Action {
		case ActionJoin:
			h.Join(c, cm.Room)
		case ActionLeave:
			h.Leave(c, cm.Room)
		}
	}
}

func allowedRoom(uid int64, room string) bool {
	prefix := string(RoomTestUser) + "."
	if strings.HasPrefix(room, prefix) {
		return room == UserRoom(uid)
	}
	return true
}

func (h *Hub) Join(c Conn, room string) {
	if room == "" {
		return
	}
	h.mu.Lock()
	if h.rooms[room] == nil {
		h.rooms[room] = map[Conn]struct{}{}
	}
	h.rooms[room][c] = struct{}{}
	h.mu.Unlock()
	logger().Debug().Str("room", room).Msg("ws_join")
}

func (h *Hub) Leave(c Conn, room string) {
	if room == "" {
		return
	}
	h.mu.Lock()
	delete(h.rooms[room], c)
	if len(h.rooms[room]) == 0 {
		delete(h.rooms, room)
	}
	h.mu.Unlock()
	logger().Debug().Str("room", room).Msg("ws_leave")
}

// Drop removes c from every room.
func (h *Hub) Drop(c Conn) {
	h.mu.Lock()
	for room, conns := range h.rooms {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) HasSubscribers(room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room]) > 0
}

func (h *Hub) publish(room string, pl PayloadEvent) int {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	h.wmu.Lock()
	defer h.wmu.Unlock()
	sent := 0
	for _, c := range conns {
		if err := c.WriteJSON(pl); err != nil {
			logger().Debug().Err(err).Str("room", room).Msg("ws_write_failed")
			continue
		}
		sent++
	}
	return sent
}

func (h *Hub) TestCreated(userID int64, p TestPayload) {
	h.publish(UserRoom(userID), PayloadEvent{Event: EventTestCreated, Data: p})
}

func (h *Hub) TestReady(userID int64, p TestPayload) {
	h.finish(userID, PayloadEvent{Event: EventTestReady, Data: p}, p.TestID)
}

func (h *Hub) TestFailed(userID int64, p TestPayload) {
	h.finish(userID, PayloadEvent{Event: EventTestFailed, Data: p}, p.TestID)
}

// finish tells the owner right away and the test room once someone is
// listening there, giving up after WaitSubscribers.
func (h *Hub) finish(userID int64, pl PayloadEvent, testID int64) {
	h.publish(UserRoom(userID), pl)

	room := TestRoom(testID)
	if h.WaitSubscribers <= 0 || h.HasSubscribers(room) {
		h.publish(room, pl)
		return
	}
	go func() {
		deadline := time.Now().Add(h.WaitSubscribers)
		for time.Now().Before(deadline) {
			time.Sleep(time.Second)
			if h.HasSubscribers(room) {
				break
			}
		}
		h.publish(room, pl)
	}()
}
