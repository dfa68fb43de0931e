// Package screen runs the game screen: one goroutine that owns the local game
// state and is the only writer to it. Inbound frames, local timer ticks, and
// view commands all funnel into the same loop, so transitions never race.
package screen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"storyguess/internal/api"
	"storyguess/internal/conn"
	"storyguess/internal/game"
	"storyguess/internal/session"
	"storyguess/pkg/protocol"
)

// ErrMissingIdentity means the local session lacks the identifiers a game
// screen needs; the caller should send the user through the join flow.
var ErrMissingIdentity = errors.New("missing user identity")

// Notifier surfaces blocking user-facing notifications.
type Notifier interface {
	Notify(message string)
}

// Msg is a command from the view layer. The set of implementations is closed.
type Msg interface{ isScreenMsg() }

// SubmitGuess sends the local participant's answer for grading.
type SubmitGuess struct{ Text string }

// SendChat relays a chat message over the streaming channel.
type SendChat struct{ Text string }

// Snapshot requests a copy of the current state for rendering.
type Snapshot struct{ Reply chan game.State }

// Stop tears the screen down.
type Stop struct{}

func (SubmitGuess) isScreenMsg() {}
func (SendChat) isScreenMsg()    {}
func (Snapshot) isScreenMsg()    {}
func (Stop) isScreenMsg()        {}

type Options struct {
	API       *api.Client
	Store     *session.Store
	WSBaseURL string
	Notifier  Notifier
	Log       *zap.Logger

	// TickInterval overrides the 1s countdown cadence. Tests only.
	TickInterval time.Duration
}

type Screen struct {
	opts  Options
	inbox chan Msg
}

func New(opts Options) *Screen {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	return &Screen{
		opts:  opts,
		inbox: make(chan Msg, 16),
	}
}

// Inbox accepts view commands. Safe to use from any goroutine.
func (s *Screen) Inbox() chan<- Msg { return s.inbox }

// Run drives the screen until navigation, teardown, or a terminal channel
// event, and returns where the user should go next.
func (s *Screen) Run(ctx context.Context) (game.Destination, error) {
	log := s.opts.Log

	sess, err := s.opts.Store.Load()
	if err != nil {
		log.Warn("loading session", zap.Error(err))
	}
	if !sess.Complete() {
		s.opts.Notifier.Notify("User ID or Player Name not found. Please join the lobby first.")
		return game.DestJoin, ErrMissingIdentity
	}
	lobbyID := sess.LobbyID

	info, err := s.opts.API.LobbyInfo(ctx, lobbyID)
	if err != nil {
		s.opts.Notifier.Notify("Failed to load lobby details.")
		return game.DestEntry, fmt.Errorf("fetching lobby %s: %w", lobbyID, err)
	}
	isHost := info.CreatorID == sess.UserID

	state := game.NewState(sess.PlayerName)
	players, err := s.opts.API.Participants(ctx, lobbyID)
	if err != nil {
		// Recoverable: the participant list converges via join/leave events.
		log.Warn("fetching participants", zap.Error(err))
	}
	state = game.BeginGenerating(game.WithPlayers(state, players))

	mgr, err := conn.Open(ctx, s.opts.WSBaseURL, lobbyID, sess.UserID, log)
	if err != nil {
		if errors.Is(err, conn.ErrMissingLobbyID) || errors.Is(err, conn.ErrMissingUserID) {
			return game.DestJoin, ErrMissingIdentity
		}
		s.opts.Notifier.Notify("Failed to connect to the lobby.")
		return game.DestEntry, err
	}
	defer mgr.Close()

	// The read loop dereferences the handler on every delivery, and the
	// handler itself only forwards into the loop below, so frames are applied
	// strictly in arrival order on the one state-owning goroutine.
	frames := make(chan string, 64)
	loopDone := make(chan struct{})
	defer close(loopDone)
	mgr.SetHandler(func(text string) {
		select {
		case frames <- text:
		case <-loopDone:
		}
	})

	if isHost {
		if err := s.opts.API.StartRound(ctx, lobbyID); err != nil {
			log.Warn("starting round", zap.Error(err))
			s.opts.Notifier.Notify("Error starting the round.")
		}
	}

	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	for {
		var effects []game.Effect

		select {
		case <-ctx.Done():
			return game.DestEntry, ctx.Err()

		case <-ticker.C:
			state, effects = game.Tick(state)

		case text := <-frames:
			ev, err := protocol.Decode([]byte(text))
			if err != nil {
				if errors.Is(err, protocol.ErrUnknownType) {
					log.Info("ignoring frame", zap.Error(err))
				} else {
					log.Warn("dropping malformed frame", zap.Error(err))
				}
				continue
			}
			state, effects = game.Apply(state, ev)

		case err := <-mgr.Closed():
			if err != nil {
				log.Warn("channel lost", zap.Error(err))
			}
			s.opts.Notifier.Notify("Connection to the lobby was lost.")
			return game.DestEntry, nil

		case m := <-s.inbox:
			switch cmd := m.(type) {
			case SubmitGuess:
				s.submitGuess(ctx, lobbyID, sess, state, cmd.Text, loopDone)

			case SendChat:
				payload, err := protocol.Encode(protocol.ChatIntent{
					Message:    cmd.Text,
					UserID:     sess.UserID,
					PlayerName: sess.PlayerName,
				})
				if err != nil {
					log.Warn("encoding chat", zap.Error(err))
					continue
				}
				mgr.Send(ctx, payload)

			case Snapshot:
				cmd.Reply <- state

			case Stop:
				return game.DestEntry, nil
			}
		}

		if dest, done := s.execute(effects); done {
			if state.Phase == game.PhaseRoundComplete {
				// Tell the lobby the departure is a finished game, not a
				// dropped host.
				if payload, err := protocol.Encode(protocol.GameComplete{}); err == nil {
					mgr.Send(ctx, payload)
				}
			}
			return dest, nil
		}
	}
}

// submitGuess fires the grading request without blocking the loop. The
// verdict arrives back over the streaming channel; only a transport failure
// is surfaced here.
func (s *Screen) submitGuess(ctx context.Context, lobbyID string, sess session.Session, state game.State, text string, loopDone <-chan struct{}) {
	if text == "" || !game.CanGuess(state) {
		return
	}

	idx := state.Subtopic
	go func() {
		err := s.opts.API.SubmitAnswer(ctx, lobbyID, text, sess.UserID, sess.PlayerName, idx)
		if err == nil {
			return
		}
		s.opts.Log.Warn("submitting answer", zap.Error(err))
		select {
		case <-loopDone:
			// Screen already gone; discard the result.
		default:
			s.opts.Notifier.Notify("Error submitting the answer.")
		}
	}()
}

// execute performs one transition's effects. Navigation wins: the first
// Navigate ends the screen once the remaining effects have run.
func (s *Screen) execute(effects []game.Effect) (game.Destination, bool) {
	var dest game.Destination
	navigated := false

	for _, e := range effects {
		switch eff := e.(type) {
		case game.Notify:
			s.opts.Notifier.Notify(eff.Message)
		case game.ClearSession:
			if err := s.opts.Store.Clear(); err != nil {
				s.opts.Log.Warn("clearing session", zap.Error(err))
			}
		case game.Navigate:
			if eff.To == game.DestGame {
				// Already on the game screen.
				continue
			}
			if !navigated {
				dest = eff.To
				navigated = true
			}
		}
	}
	return dest, navigated
}
