// Package protocol defines the wire format spoken over a lobby's streaming
// channel. Inbound frames (server to client) decode into a closed set of Event
// variants; outbound frames (client to server) encode from a closed set of
// Intent variants. Anything that does not match a known shape is rejected at
// this boundary rather than leaking half-parsed data into the state machine.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformed   = errors.New("malformed payload")
	ErrUnknownType = errors.New("unknown message type")
)

// DefaultDurationTicks is the countdown length used when round data does not
// carry an explicit per-subtopic duration.
const DefaultDurationTicks = 60

// Subtopic is one timed guessing segment of a round.
type Subtopic struct {
	Name           string `json:"name"`
	Narrative      string `json:"narrative"`
	Misinformation string `json:"misinformation"`
	DurationTicks  int    `json:"durationTicks,omitempty"`
}

// Duration returns the subtopic's countdown length in ticks.
func (s Subtopic) Duration() int {
	if s.DurationTicks > 0 {
		return s.DurationTicks
	}
	return DefaultDurationTicks
}

// Round is an ordered sequence of subtopics.
type Round struct {
	Subtopics []Subtopic `json:"subtopics"`
}

// Event is a server-to-client frame. The set of implementations is closed.
type Event interface{ isEvent() }

type RoundDataReady struct{ Round Round }

type RoundError struct{ Message string }

type PlayerJoined struct{ Name string }

type PlayerLeft struct{ Name string }

// WrongGuess is a rejected answer shown in the feed. Subtopic is the index the
// guess was made against, or NoSubtopic when the sender did not tag it.
type WrongGuess struct {
	Name     string
	Message  string
	Subtopic int
}

type ChatMessage struct {
	Name    string
	Message string
}

// CorrectGuess credits a participant for the current subtopic. Subtopic is the
// index the guess was graded against, or NoSubtopic when untagged.
type CorrectGuess struct {
	Name     string
	Subtopic int
}

type StartGame struct{}

type LobbyClosed struct{ Message string }

// NoSubtopic marks a guess event that arrived without a subtopic index.
const NoSubtopic = -1

func (RoundDataReady) isEvent() {}
func (RoundError) isEvent()     {}
func (PlayerJoined) isEvent()   {}
func (PlayerLeft) isEvent()     {}
func (WrongGuess) isEvent()     {}
func (ChatMessage) isEvent()    {}
func (CorrectGuess) isEvent()   {}
func (StartGame) isEvent()      {}
func (LobbyClosed) isEvent()    {}

// Intent is a client-to-server frame. The set of implementations is closed.
type Intent interface{ isIntent() }

// GuessIntent carries an answer submission: the guess text, the sender's
// opaque identifier and display name, and the subtopic the guess targets so
// the server can reject stale-round answers.
type GuessIntent struct {
	Message       string
	UserID        string
	PlayerName    string
	SubtopicIndex int
}

type ChatIntent struct {
	Message    string
	UserID     string
	PlayerName string
}

type StartGameInitiated struct{}

type TransitioningToGame struct{}

// GameComplete announces that the sender's round has finished and it is
// leaving on purpose; from the host this ends the lobby without reading as a
// disconnect.
type GameComplete struct{}

func (GuessIntent) isIntent()         {}
func (ChatIntent) isIntent()          {}
func (StartGameInitiated) isIntent()  {}
func (TransitioningToGame) isIntent() {}
func (GameComplete) isIntent()        {}

// envelope is the superset of fields any frame may carry. Pointer fields
// distinguish "absent" from zero values during validation.
type envelope struct {
	Type          string `json:"type"`
	Message       string `json:"message,omitempty"`
	PlayerName    string `json:"playerName,omitempty"`
	UserID        string `json:"user_id,omitempty"`
	RoundData     *Round `json:"roundData,omitempty"`
	SubtopicIndex *int   `json:"subtopicIndex,omitempty"`
	Correct       *bool  `json:"correct,omitempty"`
}

func (e envelope) subtopic() int {
	if e.SubtopicIndex == nil {
		return NoSubtopic
	}
	return *e.SubtopicIndex
}

// Decode parses an inbound text frame into an Event. It returns
// ErrUnknownType for unrecognized discriminators and a wrapped ErrMalformed
// when the payload is not valid JSON or misses a required field.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	switch env.Type {
	case "round_data_ready":
		if env.RoundData == nil {
			return nil, fmt.Errorf("%w: round_data_ready without roundData", ErrMalformed)
		}
		return RoundDataReady{Round: *env.RoundData}, nil

	case "round_error":
		return RoundError{Message: env.Message}, nil

	case "player_joined":
		if env.PlayerName == "" {
			return nil, fmt.Errorf("%w: player_joined without playerName", ErrMalformed)
		}
		return PlayerJoined{Name: env.PlayerName}, nil

	case "player_left":
		if env.PlayerName == "" {
			return nil, fmt.Errorf("%w: player_left without playerName", ErrMalformed)
		}
		return PlayerLeft{Name: env.PlayerName}, nil

	case "wrong_guess":
		if env.PlayerName == "" {
			return nil, fmt.Errorf("%w: wrong_guess without playerName", ErrMalformed)
		}
		return WrongGuess{Name: env.PlayerName, Message: env.Message, Subtopic: env.subtopic()}, nil

	case "chat_message":
		if env.PlayerName == "" {
			return nil, fmt.Errorf("%w: chat_message without playerName", ErrMalformed)
		}
		return ChatMessage{Name: env.PlayerName, Message: env.Message}, nil

	case "correct_guess":
		if env.PlayerName == "" {
			return nil, fmt.Errorf("%w: correct_guess without playerName", ErrMalformed)
		}
		return CorrectGuess{Name: env.PlayerName, Subtopic: env.subtopic()}, nil

	case "player_guess":
		// Alias used by some senders; the correct flag decides the variant.
		if env.PlayerName == "" || env.Correct == nil {
			return nil, fmt.Errorf("%w: player_guess without playerName or correct", ErrMalformed)
		}
		if *env.Correct {
			return CorrectGuess{Name: env.PlayerName, Subtopic: env.subtopic()}, nil
		}
		return WrongGuess{Name: env.PlayerName, Message: env.Message, Subtopic: env.subtopic()}, nil

	case "start_game":
		return StartGame{}, nil

	case "lobby_closed":
		return LobbyClosed{Message: env.Message}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// DecodeIntent parses a client-to-server frame.
func DecodeIntent(data []byte) (Intent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case "player_guess":
		if env.PlayerName == "" || env.UserID == "" {
			return nil, fmt.Errorf("%w: player_guess without sender identity", ErrMalformed)
		}
		return GuessIntent{
			Message:       env.Message,
			UserID:        env.UserID,
			PlayerName:    env.PlayerName,
			SubtopicIndex: env.subtopic(),
		}, nil

	case "chat_message":
		if env.PlayerName == "" {
			return nil, fmt.Errorf("%w: chat_message without playerName", ErrMalformed)
		}
		return ChatIntent{Message: env.Message, UserID: env.UserID, PlayerName: env.PlayerName}, nil

	case "start_game_initiated":
		return StartGameInitiated{}, nil

	case "transitioning_to_game":
		return TransitioningToGame{}, nil

	case "game_complete":
		return GameComplete{}, nil

	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// Encode serializes an outbound intent to a text frame.
func Encode(it Intent) ([]byte, error) {
	switch m := it.(type) {
	case GuessIntent:
		idx := m.SubtopicIndex
		return json.Marshal(envelope{
			Type:          "player_guess",
			Message:       m.Message,
			UserID:        m.UserID,
			PlayerName:    m.PlayerName,
			SubtopicIndex: &idx,
		})
	case ChatIntent:
		return json.Marshal(envelope{
			Type:       "chat_message",
			Message:    m.Message,
			UserID:     m.UserID,
			PlayerName: m.PlayerName,
		})
	case StartGameInitiated:
		return json.Marshal(envelope{Type: "start_game_initiated"})
	case TransitioningToGame:
		return json.Marshal(envelope{Type: "transitioning_to_game"})
	case GameComplete:
		return json.Marshal(envelope{Type: "game_complete"})
	default:
		return nil, fmt.Errorf("encode: unsupported intent %T", it)
	}
}

// EncodeEvent serializes a server-to-client event to a text frame.
func EncodeEvent(ev Event) ([]byte, error) {
	switch e := ev.(type) {
	case RoundDataReady:
		round := e.Round
		return json.Marshal(envelope{Type: "round_data_ready", RoundData: &round})
	case RoundError:
		return json.Marshal(envelope{Type: "round_error", Message: e.Message})
	case PlayerJoined:
		return json.Marshal(envelope{Type: "player_joined", PlayerName: e.Name})
	case PlayerLeft:
		return json.Marshal(envelope{Type: "player_left", PlayerName: e.Name})
	case WrongGuess:
		var idx *int
		if e.Subtopic != NoSubtopic {
			i := e.Subtopic
			idx = &i
		}
		return json.Marshal(envelope{Type: "wrong_guess", PlayerName: e.Name, Message: e.Message, SubtopicIndex: idx})
	case ChatMessage:
		return json.Marshal(envelope{Type: "chat_message", PlayerName: e.Name, Message: e.Message})
	case CorrectGuess:
		var idx *int
		if e.Subtopic != NoSubtopic {
			i := e.Subtopic
			idx = &i
		}
		return json.Marshal(envelope{Type: "correct_guess", PlayerName: e.Name, SubtopicIndex: idx})
	case StartGame:
		return json.Marshal(envelope{Type: "start_game"})
	case LobbyClosed:
		return json.Marshal(envelope{Type: "lobby_closed", Message: e.Message})
	default:
		return nil, fmt.Errorf("encode: unsupported event %T", ev)
	}
}
