// Package lobby runs one actor per lobby. The loop goroutine owns all lobby
// state; everything else talks to it through the inbox.
package lobby

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"storyguess/internal/rounds"
	"storyguess/pkg/protocol"
)

var (
	ErrNameTaken = errors.New("player name already taken")
	ErrNotHost   = errors.New("only the host can start the game")
	ErrClosed    = errors.New("lobby is closed")
)

// HostName is the display name given to the creator at lobby creation.
const HostName = "Host"

type Msg interface{ isLobbyMsg() }

// Attach binds a connected client's outbox to the lobby.
type Attach struct {
	UserID string
	Outbox chan []byte
}

// Detach removes a client. GameTransition marks a deliberate screen change
// rather than a real disconnect; only real disconnects produce player_left or,
// for the host, close the lobby.
type Detach struct {
	UserID         string
	GameTransition bool
}

// AddPlayer registers a display name for a user (HTTP join).
type AddPlayer struct {
	UserID string
	Name   string
	Reply  chan error
}

// StartGame broadcasts start_game if the requester is the host.
type StartGame struct {
	UserID string
	Reply  chan error
}

// RoundReady installs generated round data and broadcasts it.
type RoundReady struct{ Round protocol.Round }

// RoundFailed broadcasts a generation failure.
type RoundFailed struct{ Message string }

// SubmitAnswer grades a guess against the current subtopic and broadcasts
// the verdict. Stale-indexed guesses are dropped.
type SubmitAnswer struct {
	UserID   string
	Name     string
	Text     string
	Subtopic int
	Reply    chan error
}

// Chat relays a chat message to every client.
type Chat struct {
	UserID string
	Name   string
	Text   string
}

// GameOver marks a client's round as finished. From the host it closes the
// lobby with a game-ended message rather than a disconnect one.
type GameOver struct{ UserID string }

// Info is a read of the lobby's static data and participant list.
type Info struct{ Reply chan View }

type Shutdown struct{}

func (Attach) isLobbyMsg()       {}
func (Detach) isLobbyMsg()       {}
func (AddPlayer) isLobbyMsg()    {}
func (StartGame) isLobbyMsg()    {}
func (RoundReady) isLobbyMsg()   {}
func (RoundFailed) isLobbyMsg()  {}
func (SubmitAnswer) isLobbyMsg() {}
func (Chat) isLobbyMsg()         {}
func (GameOver) isLobbyMsg()     {}
func (Info) isLobbyMsg()         {}
func (Shutdown) isLobbyMsg()     {}

// View is a race-free snapshot for handlers and tests.
type View struct {
	Topic     string
	CreatorID string
	Players   []string // display names in join order
	Closed    bool
}

type Lobby struct {
	inbox chan Msg

	id        string
	topic     string
	creatorID string

	order   []string          // user ids in join order
	names   map[string]string // user id -> display name
	clients map[string]chan []byte

	round    *protocol.Round
	subtopic int
	correct  map[string]bool // user ids graded correct this subtopic

	closed   bool
	onClosed func(id string)

	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger
}

// New starts a lobby actor. onClosed is invoked as the actor winds down, so
// the registry can drop the lobby.
func New(parent context.Context, id, topic, creatorID string, onClosed func(id string), log *zap.Logger) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	l := &Lobby{
		inbox:     make(chan Msg, 64),
		id:        id,
		topic:     topic,
		creatorID: creatorID,
		order:     []string{creatorID},
		names:     map[string]string{creatorID: HostName},
		clients:   make(map[string]chan []byte),
		subtopic:  -1,
		correct:   map[string]bool{},
		onClosed:  onClosed,
		ctx:       ctx,
		cancel:    cancel,
		log:       log.With(zap.String("lobby_id", id)),
	}
	go l.loop()
	return l
}

func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

func (l *Lobby) ID() string { return l.id }

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Attach:
				if l.closed {
					close(msg.Outbox)
					break
				}
				l.clients[msg.UserID] = msg.Outbox

			case Detach:
				l.detach(msg)
				if l.closed {
					l.shutdown()
					return
				}

			case AddPlayer:
				msg.Reply <- l.addPlayer(msg)

			case StartGame:
				if msg.UserID != l.creatorID {
					msg.Reply <- ErrNotHost
					break
				}
				msg.Reply <- nil
				l.broadcast(protocol.StartGame{})

			case RoundReady:
				round := msg.Round
				l.round = &round
				l.subtopic = 0
				l.correct = map[string]bool{}
				l.broadcast(protocol.RoundDataReady{Round: round})

			case RoundFailed:
				l.broadcast(protocol.RoundError{Message: msg.Message})

			case SubmitAnswer:
				msg.Reply <- l.gradeAnswer(msg)

			case Chat:
				l.broadcast(protocol.ChatMessage{Name: msg.Name, Message: msg.Text})

			case GameOver:
				if msg.UserID == l.creatorID && !l.closed {
					l.broadcast(protocol.LobbyClosed{Message: "The game has ended! Check out the final scores."})
					l.closed = true
					l.shutdown()
					return
				}

			case Info:
				msg.Reply <- l.view()

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) view() View {
	players := make([]string, 0, len(l.order))
	for _, id := range l.order {
		players = append(players, l.names[id])
	}
	return View{Topic: l.topic, CreatorID: l.creatorID, Players: players, Closed: l.closed}
}

func (l *Lobby) addPlayer(msg AddPlayer) error {
	if l.closed {
		return ErrClosed
	}
	for id, name := range l.names {
		if name == msg.Name && id != msg.UserID {
			return fmt.Errorf("%w: %s", ErrNameTaken, msg.Name)
		}
	}

	if _, known := l.names[msg.UserID]; !known {
		l.order = append(l.order, msg.UserID)
	}
	l.names[msg.UserID] = msg.Name
	l.broadcast(protocol.PlayerJoined{Name: msg.Name})
	return nil
}

func (l *Lobby) detach(msg Detach) {
	if ch, ok := l.clients[msg.UserID]; ok {
		// Closing the outbox lets the socket's writer goroutine finish.
		close(ch)
		delete(l.clients, msg.UserID)
	}
	if msg.GameTransition || l.closed {
		return
	}

	// An ungraceful host disconnect closes the lobby for everyone; any other
	// disconnect just removes the player.
	if msg.UserID == l.creatorID {
		l.broadcast(protocol.LobbyClosed{Message: "The host has disconnected. The lobby is closed."})
		l.closed = true
		return
	}

	name, known := l.names[msg.UserID]
	if !known {
		return
	}
	delete(l.names, msg.UserID)
	for i, id := range l.order {
		if id == msg.UserID {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	delete(l.correct, msg.UserID)
	l.broadcast(protocol.PlayerLeft{Name: name})
}

func (l *Lobby) gradeAnswer(msg SubmitAnswer) error {
	if l.closed {
		return ErrClosed
	}
	if l.round == nil || l.subtopic < 0 || l.subtopic >= len(l.round.Subtopics) {
		// No active subtopic; nothing to grade.
		return nil
	}
	if msg.Subtopic != protocol.NoSubtopic && msg.Subtopic != l.subtopic {
		if msg.Subtopic < l.subtopic || msg.Subtopic >= len(l.round.Subtopics) {
			l.log.Info("dropping stale answer",
				zap.Int("got", msg.Subtopic), zap.Int("current", l.subtopic))
			return nil
		}
		// Clients advance in lockstep when a countdown runs out, so an index
		// ahead of ours means the current subtopic timed out. Catch up before
		// grading.
		l.subtopic = msg.Subtopic
		l.correct = map[string]bool{}
	}
	if l.correct[msg.UserID] {
		// Already credited this subtopic.
		return nil
	}

	if !rounds.Grade(msg.Text, l.round.Subtopics[l.subtopic]) {
		l.broadcast(protocol.WrongGuess{Name: msg.Name, Message: msg.Text, Subtopic: l.subtopic})
		return nil
	}

	l.correct[msg.UserID] = true
	l.broadcast(protocol.CorrectGuess{Name: msg.Name, Subtopic: l.subtopic})

	// Every participant answered: the clients collapse their countdowns and
	// advance in lockstep, so track the same advance here for grading.
	if len(l.correct) >= len(l.order) {
		l.subtopic++
		l.correct = map[string]bool{}
	}
	return nil
}

func (l *Lobby) broadcast(ev protocol.Event) {
	payload, err := protocol.EncodeEvent(ev)
	if err != nil {
		l.log.Error("encoding broadcast", zap.Error(err))
		return
	}
	for id, ch := range l.clients {
		select {
		case ch <- payload:
		default:
			// Slow client; drop it rather than stall the lobby.
			l.log.Warn("dropping slow client", zap.String("user_id", id))
			close(ch)
			delete(l.clients, id)
		}
	}
}

func (l *Lobby) shutdown() {
	for id, ch := range l.clients {
		close(ch)
		delete(l.clients, id)
	}
	l.cancel()
	if l.onClosed != nil {
		l.onClosed(l.id)
	}
}
