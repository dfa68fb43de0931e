package game

import (
	"testing"

	"storyguess/pkg/protocol"
)

func twoSubtopicRound() protocol.Round {
	return protocol.Round{Subtopics: []protocol.Subtopic{
		{Name: "Founding", Narrative: "n1", Misinformation: "m1"},
		{Name: "Republic", Narrative: "n2", Misinformation: "m2"},
	}}
}

func activeState(t *testing.T, local string, players []string) State {
	t.Helper()
	s := WithPlayers(NewState(local), players)
	s = BeginGenerating(s)
	s, effects := Apply(s, protocol.RoundDataReady{Round: twoSubtopicRound()})
	if len(effects) != 0 {
		t.Fatalf("unexpected effects installing round: %v", effects)
	}
	if s.Phase != PhaseSubtopicActive || s.Subtopic != 0 || s.Ticks != 60 {
		t.Fatalf("bad initial round state: %+v", s)
	}
	return s
}

func hasNavigate(effects []Effect, to Destination) bool {
	for _, e := range effects {
		if nav, ok := e.(Navigate); ok && nav.To == to {
			return true
		}
	}
	return false
}

func hasClearSession(effects []Effect) bool {
	for _, e := range effects {
		if _, ok := e.(ClearSession); ok {
			return true
		}
	}
	return false
}

func TestNewStateInvariants(t *testing.T) {
	s := NewState("Alice")
	if s.Subtopic != -1 {
		t.Fatalf("subtopic index = %d before round start, want -1", s.Subtopic)
	}
	if s.Phase != PhaseNotStarted {
		t.Fatalf("phase = %s, want %s", s.Phase, PhaseNotStarted)
	}
}

func TestPlayerJoinedIsIdempotent(t *testing.T) {
	s := WithPlayers(NewState("Alice"), []string{"Alice"})

	for range 3 {
		s, _ = Apply(s, protocol.PlayerJoined{Name: "Bob"})
	}
	s, _ = Apply(s, protocol.PlayerJoined{Name: "Carol"})
	s, _ = Apply(s, protocol.PlayerJoined{Name: "Bob"})

	want := []string{"Alice", "Bob", "Carol"}
	if len(s.Players) != len(want) {
		t.Fatalf("players = %v, want %v", s.Players, want)
	}
	for i := range want {
		if s.Players[i] != want[i] {
			t.Fatalf("players = %v, want %v", s.Players, want)
		}
	}
	for _, name := range want {
		if score, ok := s.Scores[name]; !ok || score != 0 {
			t.Fatalf("score for %s = %d (present=%v), want 0", name, score, ok)
		}
	}
}

func TestPlayerLeftRemovesAllOccurrences(t *testing.T) {
	s := WithPlayers(NewState("Alice"), []string{"Alice", "Bob", "Carol"})
	s, _ = Apply(s, protocol.PlayerLeft{Name: "Bob"})

	for _, name := range s.Players {
		if name == "Bob" {
			t.Fatalf("Bob still present: %v", s.Players)
		}
	}
	if _, ok := s.Scores["Bob"]; ok {
		t.Fatalf("score entry for Bob survived removal")
	}
}

func TestWrongGuessAppendsToFeedTwice(t *testing.T) {
	s := activeState(t, "Alice", []string{"Alice", "Bob"})

	before := s.Scores["Alice"]
	s, _ = Apply(s, protocol.WrongGuess{Name: "Alice", Message: "the moon", Subtopic: 0})
	s, _ = Apply(s, protocol.WrongGuess{Name: "Alice", Message: "the moon", Subtopic: 0})

	if len(s.Feed) != 2 {
		t.Fatalf("feed length = %d, want 2", len(s.Feed))
	}
	if s.Scores["Alice"] != before {
		t.Fatalf("score changed on wrong guess: %d -> %d", before, s.Scores["Alice"])
	}
}

func TestCorrectGuessRewardsRemainingTicks(t *testing.T) {
	s := activeState(t, "Alice", []string{"Alice", "Bob"})

	// Burn 10 ticks, then Bob answers.
	for range 10 {
		s, _ = Tick(s)
	}
	s, _ = Apply(s, protocol.CorrectGuess{Name: "Bob", Subtopic: 0})

	if s.Scores["Bob"] != 50 {
		t.Fatalf("Bob's score = %d, want 50", s.Scores["Bob"])
	}
	if s.Guessed {
		t.Fatalf("local guess flag set by someone else's guess")
	}
	if len(s.Feed) != 1 || s.Feed[0].Author != SystemAuthor {
		t.Fatalf("expected one system feed entry, got %+v", s.Feed)
	}
}

func TestLocalCorrectGuessSetsFlag(t *testing.T) {
	s := activeState(t, "Alice", []string{"Alice", "Bob"})

	if !CanGuess(s) {
		t.Fatalf("expected guessing enabled at subtopic start")
	}
	s, _ = Apply(s, protocol.CorrectGuess{Name: "Alice", Subtopic: 0})
	if !s.Guessed {
		t.Fatalf("local guess flag not set")
	}
	if CanGuess(s) {
		t.Fatalf("guessing still enabled after local correct answer")
	}
}

func TestAllCorrectForcesCountdownToZero(t *testing.T) {
	s := activeState(t, "Alice", []string{"Alice", "Bob", "Carol"})

	s, _ = Apply(s, protocol.CorrectGuess{Name: "Alice", Subtopic: 0})
	s, _ = Apply(s, protocol.CorrectGuess{Name: "Bob", Subtopic: 0})
	if s.Ticks == 0 {
		t.Fatalf("countdown collapsed before every participant answered")
	}
	s, _ = Apply(s, protocol.CorrectGuess{Name: "Carol", Subtopic: 0})
	if s.Ticks != 0 {
		t.Fatalf("countdown = %d after all answered, want 0", s.Ticks)
	}

	// The advance happens on the next tick evaluation, not inside Apply.
	if s.Subtopic != 0 {
		t.Fatalf("subtopic advanced inside Apply")
	}
	s, _ = Tick(s)
	if s.Subtopic != 1 || s.Ticks != 60 {
		t.Fatalf("after tick: subtopic=%d ticks=%d, want 1/60", s.Subtopic, s.Ticks)
	}
	if len(s.Feed) != 0 || s.Guessed || s.CorrectCount != 0 {
		t.Fatalf("subtopic transition did not reset feed/guess state: %+v", s)
	}
}

func TestStaleGuessEventsAreDiscarded(t *testing.T) {
	s := activeState(t, "Alice", []string{"Alice", "Bob"})

	// Advance to subtopic 1, then deliver guesses tagged for subtopic 0.
	s.Ticks = 0
	s, _ = Tick(s)
	if s.Subtopic != 1 {
		t.Fatalf("setup: subtopic = %d, want 1", s.Subtopic)
	}

	s, _ = Apply(s, protocol.CorrectGuess{Name: "Bob", Subtopic: 0})
	if s.Scores["Bob"] != 0 || s.CorrectCount != 0 {
		t.Fatalf("stale correct_guess applied: %+v", s)
	}
	s, _ = Apply(s, protocol.WrongGuess{Name: "Bob", Message: "late", Subtopic: 0})
	if len(s.Feed) != 0 {
		t.Fatalf("stale wrong_guess appended to feed")
	}

	// Untagged events are treated as current.
	s, _ = Apply(s, protocol.CorrectGuess{Name: "Bob", Subtopic: protocol.NoSubtopic})
	if s.Scores["Bob"] == 0 {
		t.Fatalf("untagged correct_guess dropped")
	}
}

func TestRoundCompletesAfterLastSubtopic(t *testing.T) {
	s := activeState(t, "Alice", []string{"Alice"})

	// Finish subtopic 0 by timeout.
	for s.Subtopic == 0 {
		s, _ = Tick(s)
	}
	if s.Subtopic != 1 {
		t.Fatalf("subtopic = %d, want 1", s.Subtopic)
	}

	// Finish subtopic 1; the final advance completes the round.
	var effects []Effect
	for range 61 {
		s, effects = Tick(s)
	}
	if s.Phase != PhaseRoundComplete {
		t.Fatalf("phase = %s, want %s", s.Phase, PhaseRoundComplete)
	}
	if !hasNavigate(effects, DestEntry) || !hasClearSession(effects) {
		t.Fatalf("round completion effects missing: %v", effects)
	}

	// Terminal: further ticks change nothing.
	after, effects := Tick(s)
	if after.Phase != PhaseRoundComplete || len(effects) != 0 {
		t.Fatalf("round complete state not stable")
	}
}

func TestLobbyClosedDiscardsState(t *testing.T) {
	s := activeState(t, "Alice", []string{"Alice", "Bob"})
	s, _ = Apply(s, protocol.WrongGuess{Name: "Bob", Message: "guess", Subtopic: 0})

	s, effects := Apply(s, protocol.LobbyClosed{Message: "The host has disconnected. The lobby is closed."})

	if s.Phase != PhaseClosed {
		t.Fatalf("phase = %s, want %s", s.Phase, PhaseClosed)
	}
	if len(s.Players) != 0 || len(s.Feed) != 0 || s.Subtopic != -1 {
		t.Fatalf("state not discarded: %+v", s)
	}
	if !hasNavigate(effects, DestEntry) || !hasClearSession(effects) {
		t.Fatalf("lobby_closed effects missing: %v", effects)
	}

	// Events after closure are ignored.
	after, effects := Apply(s, protocol.PlayerJoined{Name: "Carol"})
	if len(after.Players) != 0 || len(effects) != 0 {
		t.Fatalf("closed state accepted an event")
	}
}

func TestScoresNeverDecrease(t *testing.T) {
	s := activeState(t, "Alice", []string{"Alice", "Bob"})

	events := []protocol.Event{
		protocol.CorrectGuess{Name: "Bob", Subtopic: 0},
		protocol.WrongGuess{Name: "Alice", Message: "x", Subtopic: 0},
		protocol.PlayerJoined{Name: "Carol"},
		protocol.CorrectGuess{Name: "Alice", Subtopic: 0},
		protocol.ChatMessage{Name: "Carol", Message: "hi"},
		protocol.CorrectGuess{Name: "Carol", Subtopic: 0},
	}

	prev := map[string]int{}
	for _, ev := range events {
		s, _ = Apply(s, ev)
		for name, score := range s.Scores {
			if score < prev[name] {
				t.Fatalf("score for %s decreased: %d -> %d", name, prev[name], score)
			}
			prev[name] = score
		}
	}
}

func TestCountdownStaysInRange(t *testing.T) {
	s := activeState(t, "Alice", []string{"Alice"})

	for range 200 {
		s, _ = Tick(s)
		if s.Ticks < 0 || s.Ticks > 60 {
			t.Fatalf("countdown out of range: %d", s.Ticks)
		}
	}
}

func TestFullScenarioThreePlayers(t *testing.T) {
	// 3 participants, 2 subtopics. Everyone answers within the window, the
	// countdown collapses, the next tick advances, and the round completes
	// after the second subtopic times out.
	s := activeState(t, "Alice", []string{"Alice", "Bob", "Carol"})

	for _, name := range []string{"Alice", "Bob", "Carol"} {
		s, _ = Apply(s, protocol.CorrectGuess{Name: name, Subtopic: 0})
	}
	if s.Ticks != 0 {
		t.Fatalf("countdown = %d, want 0", s.Ticks)
	}

	s, _ = Tick(s)
	if s.Subtopic != 1 || s.Ticks != 60 || len(s.Feed) != 0 {
		t.Fatalf("second subtopic not clean: %+v", s)
	}

	var effects []Effect
	for s.Phase == PhaseSubtopicActive {
		s, effects = Tick(s)
	}
	if s.Phase != PhaseRoundComplete || !hasClearSession(effects) {
		t.Fatalf("round did not complete cleanly: phase=%s effects=%v", s.Phase, effects)
	}
	if s.Scores["Alice"] != 60 || s.Scores["Bob"] != 60 || s.Scores["Carol"] != 60 {
		t.Fatalf("scores = %v, want 60 each", s.Scores)
	}
}

func TestRoundDataReadyIgnoredMidRound(t *testing.T) {
	s := activeState(t, "Alice", []string{"Alice"})
	s, _ = Apply(s, protocol.WrongGuess{Name: "Alice", Message: "x", Subtopic: 0})

	replacement := protocol.Round{Subtopics: []protocol.Subtopic{{Name: "other", Narrative: "n", Misinformation: "m"}}}
	next, _ := Apply(s, protocol.RoundDataReady{Round: replacement})

	if next.Subtopic != s.Subtopic || len(next.Round.Subtopics) != 2 {
		t.Fatalf("mid-round round_data_ready replaced the active round")
	}
}

func TestEmptyRoundDataIsAnError(t *testing.T) {
	s := BeginGenerating(WithPlayers(NewState("Alice"), []string{"Alice"}))
	s, effects := Apply(s, protocol.RoundDataReady{Round: protocol.Round{}})

	if s.Phase != PhaseGenerating {
		t.Fatalf("phase = %s, want still %s", s.Phase, PhaseGenerating)
	}
	if len(effects) != 1 {
		t.Fatalf("expected a notify effect, got %v", effects)
	}
}
