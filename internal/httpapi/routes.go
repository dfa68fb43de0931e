package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"storyguess/internal/hub"
	"storyguess/internal/rounds"
	"storyguess/internal/ws"
)

func SetupRoutes(h *hub.Hub, src rounds.Source, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Post("/create-lobby", CreateLobby(h))
	r.Get("/lobby/{lobbyID}", GetLobby(h))
	r.Get("/lobby/{lobbyID}/topic", GetTopic(h))
	r.Get("/lobby/{lobbyID}/participants", GetParticipants(h))
	r.Post("/lobby/{lobbyID}/join", JoinLobby(h))
	r.Post("/lobby/{lobbyID}/start", StartGame(h))
	r.Post("/rounds/start", StartRound(h, src, log))
	r.Post("/submit-answer", SubmitAnswer(h))
	r.Get("/ws/{lobbyID}", ws.Handler(h, log))
	r.Get("/healthz", Healthz)
	return r
}
