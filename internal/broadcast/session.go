package broadcast

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/practice-sem-2/chat-service/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 128
)

var (
	ErrSessionClosed  = errors.New("session closed")
	ErrBufferExceeded = errors.New("session send buffer exceeded")
)

// Session wraps one websocket connection. Outbound frames go through a
// bounded queue drained by a single writer goroutine, so frames keep the
// order in which they were sent.
type Session struct {
	id     string
	userId string
	info   *models.PresenceUserInfo

	ws    *websocket.Conn
	send  chan []byte
	once  sync.Once
	close chan struct{}
}

func NewSession(userId string, ws *websocket.Conn) *Session {
	return &Session{
		id:     uuid.NewString(),
		userId: userId,
		ws:     ws,
		send:   make(chan []byte, sendBufferSize),
		close:  make(chan struct{}),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) UserID() string { return s.userId }

// WithUserInfo sets what presence topics show about the session's user.
// It must be called before the session subscribes anywhere.
func (s *Session) WithUserInfo(info *models.PresenceUserInfo) *Session {
	s.info = info
	return s
}

func (s *Session) UserInfo() *models.PresenceUserInfo { return s.info }

// Start launches the write loop. It must be called exactly once.
func (s *Session) Start() {
	s.ws.SetReadLimit(maxMessageSize)
	_ = s.ws.SetReadDeadline(time.Now().Add(pongWait))
	s.ws.SetPongHandler(func(string) error {
		return s.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	go s.writeLoop()
}

// Send enqueues payload. A slow client whose buffer is full gets disconnected.
func (s *Session) Send(payload []byte) error {
	select {
	case <-s.close:
		return ErrSessionClosed
	default:
	}

	select {
	case s.send <- payload:
		return nil
	default:
		s.Close(websocket.CloseGoingAway, "send buffer full")
		return ErrBufferExceeded
	}
}

// ReadMessage blocks until the client sends the next data frame.
func (s *Session) ReadMessage() ([]byte, error) {
	_, data, err := s.ws.ReadMessage()
	return data, err
}

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.close
}

// Close marks the session closed right away; the close handshake runs in
// the background so that callers holding locks are never blocked on the network.
func (s *Session) Close(code int, reason string) {
	s.once.Do(func() {
		close(s.close)
		go func() {
			_ = s.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
			_ = s.ws.Close()
		}()
	})
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.close:
			return
		case msg := <-s.send:
			if err := s.write(websocket.TextMessage, msg); err != nil {
				s.Close(websocket.CloseInternalServerErr, "write failed")
				return
			}
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				s.Close(websocket.CloseInternalServerErr, "ping failed")
				return
			}
		}
	}
}

func (s *Session) write(messageType int, payload []byte) error {
	if err := s.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.ws.WriteMessage(messageType, payload)
}
