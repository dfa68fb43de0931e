// Package conn owns the persistent duplex channel bound to one (lobby, user)
// pair. The manager delivers inbound text frames to whichever handler is
// currently registered, so the channel can outlive any single owner of the
// handler reference.
package conn

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

var (
	ErrMissingLobbyID = errors.New("missing lobby id")
	ErrMissingUserID  = errors.New("missing user id")
)

const writeTimeout = 3 * time.Second

// Handler receives one inbound text frame.
type Handler func(text string)

// Manager holds one open websocket. Exactly one manager exists per screen;
// Close tears it down deterministically and is safe to call more than once.
type Manager struct {
	ws     *websocket.Conn
	log    *zap.Logger
	cancel context.CancelFunc

	mu      sync.Mutex
	handler Handler
	open    bool

	closed    chan error
	closeOnce sync.Once
}

// Open dials the lobby channel. Both identifiers are required; an absent one
// is reported as an error so the caller can redirect to the join flow.
func Open(ctx context.Context, wsBaseURL, lobbyID, userID string, log *zap.Logger) (*Manager, error) {
	if lobbyID == "" {
		return nil, ErrMissingLobbyID
	}
	if userID == "" {
		return nil, ErrMissingUserID
	}

	endpoint := fmt.Sprintf("%s/ws/%s?user_id=%s",
		strings.TrimRight(wsBaseURL, "/"), lobbyID, url.QueryEscape(userID))

	ws, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		ws:     ws,
		log:    log,
		cancel: cancel,
		open:   true,
		closed: make(chan error, 1),
	}
	go m.readLoop(readCtx)

	log.Info("channel open", zap.String("lobby_id", lobbyID), zap.String("user_id", userID))
	return m, nil
}

// SetHandler swaps the inbound frame handler without touching the connection.
// The read loop always invokes the reference current at delivery time.
func (m *Manager) SetHandler(h Handler) {
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()
}

// Send writes one text frame. A send on a channel that is no longer open is
// logged and dropped, never retried.
func (m *Manager) Send(ctx context.Context, payload []byte) {
	m.mu.Lock()
	open := m.open
	m.mu.Unlock()
	if !open {
		m.log.Warn("send on closed channel, dropping frame", zap.Int("bytes", len(payload)))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := m.ws.Write(ctx, websocket.MessageText, payload); err != nil {
		m.log.Warn("channel write failed", zap.Error(err))
	}
}

// Closed reports the end of the channel. It receives exactly one value: nil
// after a deliberate Close or clean peer shutdown, the read error otherwise.
func (m *Manager) Closed() <-chan error {
	return m.closed
}

// Close shuts the channel down. Idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	wasOpen := m.open
	m.open = false
	m.mu.Unlock()
	if !wasOpen {
		return
	}

	m.cancel()
	_ = m.ws.Close(websocket.StatusNormalClosure, "bye")
	m.finish(nil)
}

func (m *Manager) readLoop(ctx context.Context) {
	for {
		_, data, err := m.ws.Read(ctx)
		if err != nil {
			m.mu.Lock()
			deliberate := !m.open
			m.open = false
			m.mu.Unlock()

			switch {
			case deliberate || ctx.Err() != nil:
				m.finish(nil)
			case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
				websocket.CloseStatus(err) == websocket.StatusGoingAway:
				m.log.Info("channel closed by peer")
				m.finish(nil)
			default:
				m.log.Warn("channel read failed", zap.Error(err))
				m.finish(err)
			}
			return
		}

		m.mu.Lock()
		h := m.handler
		m.mu.Unlock()
		if h != nil {
			h(string(data))
		}
	}
}

func (m *Manager) finish(err error) {
	m.closeOnce.Do(func() {
		m.closed <- err
	})
}
