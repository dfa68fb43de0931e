// Package game holds the round/timer state machine for a lobby screen. It is
// pure: Apply and Tick take a State value and return the next State plus a
// list of Effects for the caller to perform. The two entry points are only
// ever invoked from the screen's single goroutine, so no State is mutated
// concurrently.
package game

import (
	"fmt"
	"maps"
	"slices"

	"storyguess/pkg/protocol"
)

type Phase string

const (
	PhaseNotStarted     Phase = "not_started"
	PhaseGenerating     Phase = "generating"
	PhaseSubtopicActive Phase = "subtopic_active"
	PhaseRoundComplete  Phase = "round_complete"
	PhaseClosed         Phase = "closed"
)

type Destination string

const (
	DestEntry Destination = "entry"
	DestJoin  Destination = "join"
	DestGame  Destination = "game"
)

// Effect is a side effect requested by a transition. The state machine never
// performs effects itself.
type Effect interface{ isEffect() }

type Navigate struct{ To Destination }

type Notify struct{ Message string }

type ClearSession struct{}

func (Navigate) isEffect()     {}
func (Notify) isEffect()       {}
func (ClearSession) isEffect() {}

// SystemAuthor is the feed author used for announcements.
const SystemAuthor = "System"

type FeedEntry struct {
	Author string
	Text   string
}

// State is the local view of one lobby's game. The zero value is not usable;
// construct with NewState.
type State struct {
	Phase       Phase
	LocalPlayer string

	// Players holds display names in join order, unique within the lobby.
	Players []string
	Scores  map[string]int

	Round    protocol.Round
	Subtopic int // -1 before a round has started
	Ticks    int

	Feed         []FeedEntry
	Guessed      bool // local participant answered correctly this subtopic
	CorrectCount int
}

func NewState(localPlayer string) State {
	return State{
		Phase:       PhaseNotStarted,
		LocalPlayer: localPlayer,
		Scores:      map[string]int{},
		Subtopic:    -1,
	}
}

// WithPlayers installs the initial participant list, dropping duplicates and
// zeroing the scoreboard for every known participant.
func WithPlayers(s State, names []string) State {
	next := s
	next.Players = nil
	next.Scores = map[string]int{}
	for _, name := range names {
		if slices.Contains(next.Players, name) {
			continue
		}
		next.Players = append(next.Players, name)
		next.Scores[name] = 0
	}
	return next
}

// BeginGenerating marks the screen as waiting for round data.
func BeginGenerating(s State) State {
	next := s
	next.Phase = PhaseGenerating
	return next
}

// CanGuess reports whether the local participant may submit an answer.
func CanGuess(s State) bool {
	return s.Phase == PhaseSubtopicActive && s.Ticks > 0 && !s.Guessed
}

// CurrentSubtopic returns the active subtopic, if any.
func CurrentSubtopic(s State) (protocol.Subtopic, bool) {
	if s.Phase != PhaseSubtopicActive || s.Subtopic < 0 || s.Subtopic >= len(s.Round.Subtopics) {
		return protocol.Subtopic{}, false
	}
	return s.Round.Subtopics[s.Subtopic], true
}

// Apply advances the state with one inbound event.
func Apply(s State, ev protocol.Event) (State, []Effect) {
	if s.Phase == PhaseClosed {
		return s, nil
	}

	switch e := ev.(type) {
	case protocol.RoundDataReady:
		return applyRoundReady(s, e)

	case protocol.RoundError:
		msg := e.Message
		if msg == "" {
			msg = "round generation failed"
		}
		return s, []Effect{Notify{Message: fmt.Sprintf("Error generating round: %s", msg)}}

	case protocol.PlayerJoined:
		next := s
		if slices.Contains(next.Players, e.Name) {
			return next, nil
		}
		next.Players = append(slices.Clone(next.Players), e.Name)
		next.Scores = maps.Clone(next.Scores)
		next.Scores[e.Name] = 0
		return next, nil

	case protocol.PlayerLeft:
		next := s
		next.Players = slices.DeleteFunc(slices.Clone(next.Players), func(n string) bool { return n == e.Name })
		next.Scores = maps.Clone(next.Scores)
		delete(next.Scores, e.Name)
		return next, nil

	case protocol.WrongGuess:
		if stale(s, e.Subtopic) {
			return s, nil
		}
		return appendFeed(s, FeedEntry{Author: e.Name, Text: e.Message}), nil

	case protocol.ChatMessage:
		return appendFeed(s, FeedEntry{Author: e.Name, Text: e.Message}), nil

	case protocol.CorrectGuess:
		return applyCorrectGuess(s, e)

	case protocol.StartGame:
		return s, []Effect{Navigate{To: DestGame}}

	case protocol.LobbyClosed:
		msg := e.Message
		if msg == "" {
			msg = "The lobby has been closed by the host."
		}
		next := NewState(s.LocalPlayer)
		next.Phase = PhaseClosed
		return next, []Effect{Notify{Message: msg}, ClearSession{}, Navigate{To: DestEntry}}

	default:
		return s, nil
	}
}

// Tick advances the countdown by one local time unit. A subtopic whose
// countdown already sits at zero advances here, so a forced zero collapses
// into the ordinary advance path within one tick.
func Tick(s State) (State, []Effect) {
	if s.Phase != PhaseSubtopicActive {
		return s, nil
	}

	if s.Ticks > 0 {
		next := s
		next.Ticks--
		return next, nil
	}

	if s.Subtopic+1 < len(s.Round.Subtopics) {
		next := s
		next.Subtopic++
		next.Ticks = next.Round.Subtopics[next.Subtopic].Duration()
		next.Feed = nil
		next.Guessed = false
		next.CorrectCount = 0
		return next, nil
	}

	next := s
	next.Phase = PhaseRoundComplete
	next.Ticks = 0
	return next, []Effect{
		Notify{Message: "The game has ended! Check out the final scores."},
		ClearSession{},
		Navigate{To: DestEntry},
	}
}

func applyRoundReady(s State, e protocol.RoundDataReady) (State, []Effect) {
	if s.Phase != PhaseNotStarted && s.Phase != PhaseGenerating {
		return s, nil
	}
	if len(e.Round.Subtopics) == 0 {
		return s, []Effect{Notify{Message: "Error generating round: round data was empty"}}
	}

	next := s
	next.Round = e.Round
	next.Phase = PhaseSubtopicActive
	next.Subtopic = 0
	next.Ticks = e.Round.Subtopics[0].Duration()
	next.Feed = nil
	next.Guessed = false
	next.CorrectCount = 0
	return next, nil
}

func applyCorrectGuess(s State, e protocol.CorrectGuess) (State, []Effect) {
	if s.Phase != PhaseSubtopicActive || stale(s, e.Subtopic) {
		return s, nil
	}

	next := s
	next.Scores = maps.Clone(next.Scores)
	next.Scores[e.Name] += next.Ticks
	next.Feed = append(slices.Clone(next.Feed), FeedEntry{
		Author: SystemAuthor,
		Text:   fmt.Sprintf("%s got the answer!", e.Name),
	})
	if e.Name == next.LocalPlayer {
		next.Guessed = true
	}
	next.CorrectCount++
	if len(next.Players) > 0 && next.CorrectCount >= len(next.Players) {
		next.Ticks = 0
	}
	return next, nil
}

// stale reports whether a guess event was graded against a different subtopic
// than the one currently active. Untagged events count as current.
func stale(s State, subtopic int) bool {
	return subtopic != protocol.NoSubtopic && subtopic != s.Subtopic
}

func appendFeed(s State, entry FeedEntry) State {
	next := s
	next.Feed = append(slices.Clone(next.Feed), entry)
	return next
}
