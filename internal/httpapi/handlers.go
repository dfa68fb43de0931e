package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"storyguess/internal/hub"
	"storyguess/internal/lobby"
	"storyguess/internal/rounds"
)

var lobbyIDPattern = regexp.MustCompile(`^[a-f0-9]{32}$`)

// newID mints a 32-char lowercase hex identifier.
func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, struct {
		Detail string `json:"detail"`
	}{Detail: detail})
}

// getLobby resolves a validated lobby id to its actor, writing the error
// response itself when the lookup fails.
func getLobby(h *hub.Hub, w http.ResponseWriter, id string) *lobby.Lobby {
	if !lobbyIDPattern.MatchString(id) {
		writeDetail(w, http.StatusBadRequest, "Invalid lobby ID format")
		return nil
	}
	reply := make(chan *lobby.Lobby, 1)
	h.Inbox() <- hub.GetLobby{ID: id, Reply: reply}
	lb := <-reply
	if lb == nil {
		writeDetail(w, http.StatusNotFound, "Lobby does not exist")
	}
	return lb
}

func lobbyView(lb *lobby.Lobby) lobby.View {
	reply := make(chan lobby.View, 1)
	lb.Inbox() <- lobby.Info{Reply: reply}
	return <-reply
}

type createLobbyRequest struct {
	Topic string `json:"topic"`
}

type createLobbyResponse struct {
	LobbyID   string `json:"lobby_id"`
	CreatorID string `json:"creator_id"`
}

func CreateLobby(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createLobbyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Topic == "" {
			writeDetail(w, http.StatusBadRequest, "topic is required")
			return
		}

		lobbyID := newID()
		creatorID := newID()

		reply := make(chan *lobby.Lobby, 1)
		h.Inbox() <- hub.CreateLobby{ID: lobbyID, Topic: req.Topic, CreatorID: creatorID, Reply: reply}
		if <-reply == nil {
			writeDetail(w, http.StatusInternalServerError, "failed to create lobby")
			return
		}

		writeJSON(w, http.StatusOK, createLobbyResponse{LobbyID: lobbyID, CreatorID: creatorID})
	}
}

func GetLobby(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lb := getLobby(h, w, chi.URLParam(r, "lobbyID"))
		if lb == nil {
			return
		}
		v := lobbyView(lb)
		writeJSON(w, http.StatusOK, struct {
			CreatorID string `json:"creator_id"`
			Topic     string `json:"topic"`
		}{CreatorID: v.CreatorID, Topic: v.Topic})
	}
}

func GetTopic(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "lobbyID")
		lb := getLobby(h, w, id)
		if lb == nil {
			return
		}
		v := lobbyView(lb)
		writeJSON(w, http.StatusOK, struct {
			LobbyID string `json:"lobby_id"`
			Topic   string `json:"topic"`
		}{LobbyID: id, Topic: v.Topic})
	}
}

func GetParticipants(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lb := getLobby(h, w, chi.URLParam(r, "lobbyID"))
		if lb == nil {
			return
		}
		v := lobbyView(lb)
		writeJSON(w, http.StatusOK, struct {
			Players []string `json:"players"`
		}{Players: v.Players})
	}
}

type joinRequest struct {
	UserID     string `json:"user_id"`
	PlayerName string `json:"player_name"`
}

func JoinLobby(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lb := getLobby(h, w, chi.URLParam(r, "lobbyID"))
		if lb == nil {
			return
		}

		var req joinRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.PlayerName == "" {
			writeDetail(w, http.StatusBadRequest, "user_id and player_name are required")
			return
		}

		reply := make(chan error, 1)
		lb.Inbox() <- lobby.AddPlayer{UserID: req.UserID, Name: req.PlayerName, Reply: reply}
		if err := <-reply; err != nil {
			if errors.Is(err, lobby.ErrNameTaken) {
				writeDetail(w, http.StatusUnprocessableEntity, "Player name already taken")
				return
			}
			writeDetail(w, http.StatusConflict, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, struct {
			Detail string `json:"detail"`
		}{Detail: "Joined the lobby successfully"})
	}
}

func StartGame(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lb := getLobby(h, w, chi.URLParam(r, "lobbyID"))
		if lb == nil {
			return
		}

		var req joinRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
			writeDetail(w, http.StatusBadRequest, "user_id is required")
			return
		}

		reply := make(chan error, 1)
		lb.Inbox() <- lobby.StartGame{UserID: req.UserID, Reply: reply}
		if err := <-reply; err != nil {
			writeDetail(w, http.StatusForbidden, "Only the host can start the game")
			return
		}

		writeJSON(w, http.StatusOK, struct {
			Detail string `json:"detail"`
		}{Detail: "Game started successfully"})
	}
}

// StartRound schedules round generation and returns immediately; the result
// reaches the lobby over the streaming channel.
func StartRound(h *hub.Hub, src rounds.Source, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lobbyID := r.URL.Query().Get("lobby_id")
		lb := getLobby(h, w, lobbyID)
		if lb == nil {
			return
		}
		topic := lobbyView(lb).Topic

		go func() {
			// Detached from the request: generation outlives the HTTP call.
			round, err := src.Generate(context.Background(), topic)
			if err != nil {
				log.Warn("round generation failed", zap.String("lobby_id", lobbyID), zap.Error(err))
				lb.Inbox() <- lobby.RoundFailed{Message: err.Error()}
				return
			}
			lb.Inbox() <- lobby.RoundReady{Round: round}
		}()

		writeJSON(w, http.StatusOK, struct {
			Detail string `json:"detail"`
		}{Detail: "Round generation started"})
	}
}

type answerRequest struct {
	Message       string `json:"message"`
	UserID        string `json:"user_id"`
	PlayerName    string `json:"playerName"`
	SubtopicIndex int    `json:"subtopicIndex"`
}

func SubmitAnswer(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lb := getLobby(h, w, r.URL.Query().Get("lobby_id"))
		if lb == nil {
			return
		}

		var req answerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.PlayerName == "" {
			writeDetail(w, http.StatusBadRequest, "message, user_id and playerName are required")
			return
		}

		reply := make(chan error, 1)
		lb.Inbox() <- lobby.SubmitAnswer{
			UserID:   req.UserID,
			Name:     req.PlayerName,
			Text:     req.Message,
			Subtopic: req.SubtopicIndex,
			Reply:    reply,
		}
		if err := <-reply; err != nil {
			writeDetail(w, http.StatusConflict, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, struct {
			Detail string `json:"detail"`
		}{Detail: "Answer received"})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
