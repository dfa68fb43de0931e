// Package hub is the registry actor that maps lobby ids to running lobby
// actors.
package hub

import (
	"context"

	"go.uber.org/zap"

	"storyguess/internal/lobby"
)

type HubMsg interface{ isHubMsg() }

type CreateLobby struct {
	ID        string
	Topic     string
	CreatorID string
	Reply     chan *lobby.Lobby
}

type GetLobby struct {
	ID    string
	Reply chan *lobby.Lobby
}

type RemoveLobby struct {
	ID string
}

type ShutdownHub struct{}

func (CreateLobby) isHubMsg() {}
func (GetLobby) isHubMsg()    {}
func (RemoveLobby) isHubMsg() {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	ctx     context.Context
	cancel  context.CancelFunc
	log     *zap.Logger
}

func NewHub(parent context.Context, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		ctx:     ctx,
		cancel:  cancel,
		log:     log,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateLobby:
				if lb := h.lobbies[msg.ID]; lb != nil {
					msg.Reply <- lb
					break
				}
				lb := lobby.New(h.ctx, msg.ID, msg.Topic, msg.CreatorID, h.lobbyClosed, h.log)
				h.lobbies[msg.ID] = lb
				h.log.Info("lobby created", zap.String("lobby_id", msg.ID), zap.String("topic", msg.Topic))
				msg.Reply <- lb

			case GetLobby:
				msg.Reply <- h.lobbies[msg.ID] // May be nil

			case RemoveLobby:
				delete(h.lobbies, msg.ID)

			case ShutdownHub:
				for _, lb := range h.lobbies {
					lb.Inbox() <- lobby.Shutdown{}
				}
				clear(h.lobbies)
				h.cancel()
			}
		}
	}
}

// lobbyClosed runs on a lobby's goroutine as it winds down; hop back onto the
// hub loop to drop the registration.
func (h *Hub) lobbyClosed(id string) {
	select {
	case h.inbox <- RemoveLobby{ID: id}:
	case <-h.ctx.Done():
	}
}
