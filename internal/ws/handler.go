// Package ws binds websocket connections to lobby actors.
package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"storyguess/internal/hub"
	"storyguess/internal/lobby"
	"storyguess/pkg/protocol"
)

const writeTimeout = 3 * time.Second

// Handler upgrades /ws/{lobbyID}?user_id=... and pumps frames between the
// socket and the lobby actor until either side goes away.
func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lobbyID := chi.URLParam(r, "lobbyID")
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			http.Error(w, "missing user_id", http.StatusBadRequest)
			return
		}

		reply := make(chan *lobby.Lobby, 1)
		h.Inbox() <- hub.GetLobby{ID: lobbyID, Reply: reply}
		lb := <-reply
		if lb == nil {
			http.Error(w, "lobby not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		log := log.With(zap.String("lobby_id", lobbyID), zap.String("user_id", userID))

		outbox := make(chan []byte, 16)
		lb.Inbox() <- lobby.Attach{UserID: userID, Outbox: outbox}

		// A client that announces a screen transition is leaving on purpose;
		// its detach must not read as a disconnect.
		transition := false
		defer func() {
			lb.Inbox() <- lobby.Detach{UserID: userID, GameTransition: transition}
		}()

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for payload := range outbox {
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
			// Lobby closed the outbox; finish the handshake from our side.
			conn.Close(websocket.StatusNormalClosure, "lobby closed")
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}

			intent, err := protocol.DecodeIntent(data)
			if err != nil {
				if errors.Is(err, protocol.ErrUnknownType) {
					log.Info("ignoring frame", zap.Error(err))
				} else {
					log.Warn("dropping malformed frame", zap.Error(err))
				}
				continue
			}

			switch it := intent.(type) {
			case protocol.ChatIntent:
				lb.Inbox() <- lobby.Chat{UserID: it.UserID, Name: it.PlayerName, Text: it.Message}

			case protocol.GuessIntent:
				// Answers normally arrive over HTTP; accept the streamed form
				// too and grade it the same way.
				reply := make(chan error, 1)
				lb.Inbox() <- lobby.SubmitAnswer{
					UserID:   it.UserID,
					Name:     it.PlayerName,
					Text:     it.Message,
					Subtopic: it.SubtopicIndex,
					Reply:    reply,
				}
				<-reply

			case protocol.StartGameInitiated:
				transition = true
				reply := make(chan error, 1)
				lb.Inbox() <- lobby.StartGame{UserID: userID, Reply: reply}
				if err := <-reply; err != nil {
					log.Warn("start_game_initiated rejected", zap.Error(err))
				}
				return

			case protocol.TransitioningToGame:
				transition = true
				return

			case protocol.GameComplete:
				transition = true
				lb.Inbox() <- lobby.GameOver{UserID: userID}
				return
			}
		}
	}
}
